package wire

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MessageBuilder accumulates the arguments of one outgoing event.
// Errors stick; Build reports the first one.
type MessageBuilder struct {
	// Method is the name of the event being sent, for tracing only.
	Method string

	// Args holds the arguments as passed in, for tracing only.
	Args []any

	sender uint32
	op     uint16
	data   bytes.Buffer
	fds    []int
	err    error
}

func NewMessage(sender Object, op uint16) *MessageBuilder {
	return &MessageBuilder{
		sender: sender.ID(),
		op:     op,
	}
}

func (mb *MessageBuilder) Sender() uint32 {
	return mb.sender
}

func (mb *MessageBuilder) Op() uint16 {
	return mb.op
}

func (mb *MessageBuilder) WriteInt(v int32) {
	if mb.err != nil {
		return
	}
	writeWord(&mb.data, v)
}

func (mb *MessageBuilder) WriteUint(v uint32) {
	if mb.err != nil {
		return
	}
	writeWord(&mb.data, v)
}

func (mb *MessageBuilder) WriteObject(v Object) {
	var id uint32
	if !isNil(v) {
		id = v.ID()
	}
	mb.WriteUint(id)
}

func (mb *MessageBuilder) WriteFixed(v Fixed) {
	if mb.err != nil {
		return
	}
	writeWord(&mb.data, v)
}

func (mb *MessageBuilder) WriteString(v string) {
	if mb.err != nil {
		return
	}

	pad := padding(uint32(len(v) + 1))
	writeWord(&mb.data, uint32(len(v)+1))
	mb.data.WriteString(v)
	mb.data.WriteByte(0)
	for i := uint32(0); i < pad; i++ {
		mb.data.WriteByte(0)
	}
}

func (mb *MessageBuilder) WriteArray(v []byte) {
	if mb.err != nil {
		return
	}

	pad := padding(uint32(len(v)))
	writeWord(&mb.data, uint32(len(v)))
	mb.data.Write(v)
	for i := uint32(0); i < pad; i++ {
		mb.data.WriteByte(0)
	}
}

// WriteFile attaches a duplicate of v's file descriptor to the
// message. The duplicate is closed after Build, or by a finalizer if
// the message is abandoned.
func (mb *MessageBuilder) WriteFile(v *os.File) {
	fd, err := unix.Dup(int(v.Fd()))
	if err != nil {
		mb.err = err
		return
	}

	if len(mb.fds) == 0 {
		runtime.SetFinalizer(mb, (*MessageBuilder).close)
	}
	mb.fds = append(mb.fds, fd)
}

// Build frames the message and sends it on c. The builder must not be
// reused afterwards.
func (mb *MessageBuilder) Build(c *Conn) error {
	defer mb.close()
	if mb.err != nil {
		return mb.err
	}

	length := uint32(8 + mb.data.Len())
	msg := bytes.NewBuffer(make([]byte, 0, length))
	writeWord(msg, mb.sender)
	writeWord(msg, (length<<16)|uint32(mb.op))
	msg.Write(mb.data.Bytes())

	var oob []byte
	if len(mb.fds) > 0 {
		oob = unix.UnixRights(mb.fds...)
	}

	_, _, mb.err = c.conn.WriteMsgUnix(msg.Bytes(), oob, nil)
	return mb.err
}

func (mb *MessageBuilder) close() {
	errs := make([]error, 0, len(mb.fds))
	for _, fd := range mb.fds {
		errs = append(errs, unix.Close(fd))
	}
	if mb.err == nil {
		mb.err = errors.Join(errs...)
	}
	mb.fds = nil
	runtime.SetFinalizer(mb, nil)
}

func (mb *MessageBuilder) String() string {
	args := make([]string, 0, len(mb.Args))
	for _, arg := range mb.Args {
		switch arg := arg.(type) {
		case string:
			args = append(args, strconv.Quote(arg))
		case *os.File:
			args = append(args, fmt.Sprint(arg.Fd()))
		default:
			args = append(args, fmt.Sprint(arg))
		}
	}

	return fmt.Sprintf("%v.%v(%v)", mb.sender, mb.Method, strings.Join(args, ", "))
}

func isNil(v any) bool {
	return (v == nil) || ((*[2]uintptr)(unsafe.Pointer(&v))[1] == 0)
}
