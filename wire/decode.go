package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// MessageBuffer holds one message that has been read from the socket
// but not yet decoded. The Read methods consume arguments in wire
// order; decoding errors stick and are reported by Err.
type MessageBuffer struct {
	sender  uint32
	op      uint16
	size    uint16
	data    bytes.Reader
	fds     []int
	fdindex int
	err     error
	args    []any
}

// readFull fills buf from the socket. Every read goes through
// recvmsg, because file descriptors ride as ancillary data on
// whichever segment the kernel attached them to and a plain read
// would drop them.
func (r *MessageBuffer) readFull(c *Conn, buf []byte) error {
	oob := make([]byte, unix.CmsgSpace(8*4))
	for len(buf) > 0 {
		n, oobn, _, _, err := c.conn.ReadMsgUnix(buf, oob)
		if err != nil {
			return err
		}
		if n == 0 && oobn == 0 {
			return io.ErrUnexpectedEOF
		}
		buf = buf[n:]

		if oobn == 0 {
			continue
		}
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return fmt.Errorf("parse socket control messages: %w", err)
		}
		for _, cmsg := range cmsgs {
			fds, err := unix.ParseUnixRights(&cmsg)
			if err != nil {
				if errors.Is(err, unix.EINVAL) {
					continue
				}
				return fmt.Errorf("parse unix rights: %w", err)
			}
			r.fds = append(r.fds, fds...)
		}
	}
	return nil
}

// ReadMessage reads the next message from c, collecting any file
// descriptors that arrive with it.
func ReadMessage(c *Conn) (*MessageBuffer, error) {
	var mb MessageBuffer

	var head [8]byte
	if err := mb.readFull(c, head[:]); err != nil {
		return nil, err
	}

	mb.sender = hostValue[uint32]([4]byte(head[:4]))
	so := hostValue[uint32]([4]byte(head[4:]))
	mb.size = uint16(so >> 16)
	mb.op = uint16(so & 0xFFFF)
	if mb.size < 8 {
		return nil, fmt.Errorf("message size %v shorter than header", mb.size)
	}

	body := make([]byte, mb.size-8)
	if err := mb.readFull(c, body); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}
	mb.data.Reset(body)

	return &mb, nil
}

// Sender is the object ID the message is addressed to.
func (r *MessageBuffer) Sender() uint32 {
	return r.sender
}

// Op is the opcode of the message.
func (r *MessageBuffer) Op() uint16 {
	return r.op
}

// Size is the total size of the message, including the 8 byte header.
func (r *MessageBuffer) Size() uint16 {
	return r.size
}

func (r *MessageBuffer) Err() error {
	if errors.Is(r.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return r.err
}

func (r *MessageBuffer) ReadInt() (v int32) {
	if r.err != nil {
		return
	}
	v, r.err = readWord[int32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadUint() (v uint32) {
	if r.err != nil {
		return
	}
	v, r.err = readWord[uint32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadFixed() (v Fixed) {
	if r.err != nil {
		return
	}
	v, r.err = readWord[Fixed](&r.data)
	r.args = append(r.args, v)
	return v
}

// ReadNewID reads an untyped new_id argument, as used by
// wl_registry.bind.
func (r *MessageBuffer) ReadNewID() NewID {
	return NewID{
		Interface: r.ReadString(),
		Version:   r.ReadUint(),
		ID:        r.ReadUint(),
	}
}

func (r *MessageBuffer) ReadString() string {
	if r.err != nil {
		return ""
	}

	length := r.ReadUint()
	if r.err != nil {
		return ""
	}
	if length == 0 {
		r.err = errors.New("zero-length string")
		return ""
	}
	pad := padding(length)

	var str strings.Builder
	str.Grow(int(length + pad))
	_, r.err = io.CopyN(&str, &r.data, int64(length+pad))
	if r.err != nil {
		return ""
	}
	v := str.String()
	if v[length-1] != 0 {
		r.err = errors.New("string is not null-terminated")
		return ""
	}

	r.args = append(r.args, v[:length-1])
	return v[:length-1]
}

func (r *MessageBuffer) ReadArray() []byte {
	if r.err != nil {
		return nil
	}

	length := r.ReadUint()
	if r.err != nil {
		return nil
	}
	pad := padding(length)

	buf := make([]byte, length+pad)
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return nil
	}

	r.args = append(r.args, buf[:length])
	return buf[:length]
}

// ReadFile consumes the next file descriptor delivered with the
// message.
func (r *MessageBuffer) ReadFile() *os.File {
	if r.err != nil {
		return nil
	}

	if r.fdindex >= len(r.fds) {
		r.err = errors.New("no more file descriptors")
		return nil
	}

	f := os.NewFile(uintptr(r.fds[r.fdindex]), "")
	r.fdindex++
	r.args = append(r.args, f)
	return f
}

// Debug renders the decoded call for the protocol trace.
func (r *MessageBuffer) Debug(sender Object) string {
	args := make([]string, 0, len(r.args))
	for _, arg := range r.args {
		switch arg := arg.(type) {
		case string:
			args = append(args, strconv.Quote(arg))
		case *os.File:
			args = append(args, fmt.Sprint(arg.Fd()))
		default:
			args = append(args, fmt.Sprint(arg))
		}
	}

	return fmt.Sprintf("%v@%v.%v(%v)", sender.Interface(), r.sender, sender.MethodName(r.op), strings.Join(args, ", "))
}
