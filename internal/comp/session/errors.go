package session

import "fmt"

// ProtocolViolationError reports a malformed or out-of-order client
// request. The offending connection is dropped; nobody else is
// affected.
type ProtocolViolationError struct {
	Object uint32
	Reason string
}

func (err ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation on object %v: %v", err.Object, err.Reason)
}

// display.error codes from the core protocol.
const (
	errInvalidObject  = 0
	errInvalidMethod  = 1
	errNoMemory       = 2
	errImplementation = 3
)
