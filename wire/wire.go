// Package wire implements the Wayland wire format: 32-bit words in
// host byte order over a unix socket, with file descriptors carried as
// ancillary data. It is shared by the compositor's protocol layer and
// by tests that act as clients.
package wire

import (
	"io"
	"unsafe"
)

func hostBytes[T ~int32 | ~uint32](v T) [4]byte {
	return *(*[4]byte)(unsafe.Pointer(&v))
}

func hostValue[T ~int32 | ~uint32](data [4]byte) T {
	return *(*T)(unsafe.Pointer(&data))
}

func readWord[T ~int32 | ~uint32](r io.Reader) (T, error) {
	var data [4]byte
	_, err := io.ReadFull(r, data[:])
	if err != nil {
		return 0, err
	}
	return hostValue[T](data), nil
}

func writeWord[T ~int32 | ~uint32](w io.Writer, v T) error {
	data := hostBytes(v)
	n, err := w.Write(data[:])
	if (err == nil) && (n < len(data)) {
		return io.ErrShortWrite
	}
	return err
}

// padding returns the number of bytes needed to pad length up to a
// 32-bit boundary.
func padding(length uint32) uint32 {
	return (4 - (length & 3)) & 3
}

// NewID is the new_id argument type: the object ID a client has picked
// for an object it is creating, along with the interface and version
// when the request's argument is untyped (wl_registry.bind).
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}

// Object is a protocol object that can handle requests addressed to
// its ID.
type Object interface {
	// ID returns the object's ID, or 0 if it has not been added to a
	// session yet.
	ID() uint32

	// SetID assigns the object's ID. It is called exactly once, when
	// the object is added to a session's object table.
	SetID(id uint32)

	// Delete is called when the object is removed from its session.
	Delete()

	// Interface returns the name of the object's protocol interface,
	// e.g. "wl_surface".
	Interface() string

	// MethodName returns the name of the request with the given
	// opcode, for tracing.
	MethodName(op uint16) string

	// Dispatch performs the request carried by the message.
	Dispatch(msg *MessageBuffer) error
}
