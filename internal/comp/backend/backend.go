// Package backend abstracts the display hardware behind one
// interface. The compositor core is written against Backend only;
// the headless variant keeps everything testable without a GPU or a
// real seat.
package backend

import (
	"fmt"
	"image"

	"github.com/argentwm/argent/internal/ev"
)

// OutputInfo describes an output as the backend sees it.
type OutputInfo struct {
	Name     string
	Make     string
	Model    string
	Width    int
	Height   int
	Refresh  int // mHz
	PhysW    int // mm
	PhysH    int // mm
	X, Y     int // position hint in global space
	Scale    int
}

// Event is something the backend reports: hot-plug, vsync, input, or
// an unrecoverable device failure.
type Event interface {
	backendEvent()
}

// OutputAdded reports a newly connected output.
type OutputAdded struct {
	Info OutputInfo
}

// OutputRemoved reports a hot-unplugged output.
type OutputRemoved struct {
	Name string
}

// Frame reports that the named output is ready for its next frame.
type Frame struct {
	Output string
}

// Fatal reports a device failure with no recovery path. The
// compositor shuts down in response.
type Fatal struct {
	Err error
}

func (OutputAdded) backendEvent()   {}
func (OutputRemoved) backendEvent() {}
func (Frame) backendEvent()         {}
func (Fatal) backendEvent()         {}

// InputKind classifies an input event.
type InputKind int

const (
	KeyPress InputKind = iota
	KeyRelease
	PointerMotion
	PointerButton
)

// InputEvent is one device input report.
type InputEvent struct {
	Kind   InputKind
	Code   uint32
	X, Y   float64
	Button uint32
	State  int32
}

func (InputEvent) backendEvent() {}

// Backend is the contract between the compositor core and a display
// stack.
type Backend interface {
	// Outputs enumerates the currently connected outputs. Later
	// changes arrive as OutputAdded/OutputRemoved events.
	Outputs() []OutputInfo

	// Events returns the queue that hot-plug, vsync, input, and fatal
	// events arrive on. Per-queue order is submission order.
	Events() *ev.Queue[Event]

	// Present submits a composited frame for the named output. It
	// fails with a PresentationError when the output is gone; the
	// caller re-snapshots and retries on the next frame event, never
	// blocks.
	Present(output string, frame *image.RGBA) error

	Close() error
}

// PresentationError reports a frame the backend could not display.
// The frame is skipped and presentation retried next tick.
type PresentationError struct {
	Output string
	Cause  error
}

func (err PresentationError) Error() string {
	return fmt.Sprintf("present to %v: %v", err.Output, err.Cause)
}

func (err PresentationError) Unwrap() error { return err.Cause }

// FatalError wraps a backend failure with no recovery path.
type FatalError struct {
	Cause error
}

func (err FatalError) Error() string {
	return fmt.Sprintf("backend failure: %v", err.Cause)
}

func (err FatalError) Unwrap() error { return err.Cause }
