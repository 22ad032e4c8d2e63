package script

import "fmt"

// LoadError reports a user script that failed to parse or threw
// during its initial evaluation. Fatal at startup.
type LoadError struct {
	Path  string
	Cause error
}

func (err LoadError) Error() string {
	return fmt.Sprintf("load script %v: %v", err.Path, err.Cause)
}

func (err LoadError) Unwrap() error { return err.Cause }

// InvalidArgumentError reports an op call with the wrong number or
// type of arguments.
type InvalidArgumentError struct {
	Op     string
	Reason string
}

func (err InvalidArgumentError) Error() string {
	return fmt.Sprintf("%v: %v", err.Op, err.Reason)
}

// PermissionDeniedError reports a privileged op from an unprivileged
// context.
type PermissionDeniedError struct {
	Op string
}

func (err PermissionDeniedError) Error() string {
	return fmt.Sprintf("%v: permission denied", err.Op)
}

// ScriptRuntimeError reports an exception that escaped a script
// callback. The callback is abandoned; the compositor carries on.
type ScriptRuntimeError struct {
	Kind  string
	Cause error
}

func (err ScriptRuntimeError) Error() string {
	return fmt.Sprintf("script callback (%v): %v", err.Kind, err.Cause)
}

func (err ScriptRuntimeError) Unwrap() error { return err.Cause }
