package wire

import "fmt"

// UnknownOpError is returned by Object.Dispatch for a request opcode
// the interface does not define.
type UnknownOpError struct {
	Interface string
	Op        uint16
}

func (err UnknownOpError) Error() string {
	return fmt.Sprintf("unknown opcode for %v: %v", err.Interface, err.Op)
}

// UnknownSenderIDError indicates a message addressed to an object ID
// the session does not know about.
type UnknownSenderIDError struct {
	ID uint32
}

func (err UnknownSenderIDError) Error() string {
	return fmt.Sprintf("unknown sender object ID: %v", err.ID)
}
