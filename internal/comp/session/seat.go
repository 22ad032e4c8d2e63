package session

import (
	"image"

	"github.com/argentwm/argent/internal/shm"
	"github.com/argentwm/argent/wire"
)

// wl_seat and its devices. The seat always advertises a keyboard and a
// pointer; key events follow the registry's focus.

const (
	seatCapPointer  = 0x1
	seatCapKeyboard = 0x2
)

const keymapFormatNone = 0

type seatResource struct {
	base
	sess      *Session
	keyboards []*keyboardResource
	pointers  []*pointerResource
}

func (s *seatResource) Interface() string { return seatInterface }

func (s *seatResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "get_pointer"
	case 1:
		return "get_keyboard"
	case 2:
		return "get_touch"
	case 3:
		return "release"
	}
	return "unknown"
}

func (s *seatResource) sendCapabilities() {
	caps := wire.NewMessage(s, 0)
	caps.Method = "capabilities"
	caps.Args = []any{seatCapPointer | seatCapKeyboard}
	caps.WriteUint(seatCapPointer | seatCapKeyboard)
	s.sess.send(caps)

	name := wire.NewMessage(s, 1)
	name.Method = "name"
	name.Args = []any{"seat0"}
	name.WriteString("seat0")
	s.sess.send(name)
}

func (s *seatResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // get_pointer
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		ptr := pointerResource{sess: s.sess, seat: s}
		s.sess.store.add(id, &ptr)
		s.pointers = append(s.pointers, &ptr)
		return nil

	case 1: // get_keyboard
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		kb := keyboardResource{sess: s.sess, seat: s}
		s.sess.store.add(id, &kb)
		s.keyboards = append(s.keyboards, &kb)
		kb.sendKeymap()
		return nil

	case 2: // get_touch
		msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return wire.UnknownOpError{Interface: s.Interface(), Op: msg.Op()}

	case 3: // release
		s.sess.destroyObject(s.ID())
		return nil
	}
	return wire.UnknownOpError{Interface: s.Interface(), Op: msg.Op()}
}

func (s *seatResource) focusChanged(leave, enter *surfaceResource) {
	for _, kb := range s.keyboards {
		if leave != nil {
			kb.sendLeave(leave)
		}
		if enter != nil {
			kb.sendEnter(enter)
		}
	}
}

func (s *seatResource) key(code, state uint32) {
	for _, kb := range s.keyboards {
		kb.sendKey(code, state)
	}
}

func (s *seatResource) pointerFocusChanged(leave, enter *surfaceResource, pos image.Point) {
	for _, ptr := range s.pointers {
		if leave != nil {
			ptr.sendLeave(leave)
		}
		if enter != nil {
			ptr.sendEnter(enter, pos)
		}
	}
}

func (s *seatResource) pointerMotion(time uint32, pos image.Point) {
	for _, ptr := range s.pointers {
		ptr.sendMotion(time, pos)
	}
}

func (s *seatResource) pointerButton(time, button, state uint32) {
	for _, ptr := range s.pointers {
		ptr.sendButton(time, button, state)
	}
}

type pointerResource struct {
	base
	sess *Session
	seat *seatResource
}

func (p *pointerResource) Interface() string { return "wl_pointer" }

func (p *pointerResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "set_cursor"
	case 1:
		return "release"
	}
	return "unknown"
}

func (p *pointerResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // set_cursor, accepted and ignored
		msg.ReadUint()
		msg.ReadUint()
		msg.ReadInt()
		msg.ReadInt()
		return msg.Err()
	case 1: // release
		kept := p.seat.pointers[:0]
		for _, ptr := range p.seat.pointers {
			if ptr != p {
				kept = append(kept, ptr)
			}
		}
		p.seat.pointers = kept
		p.sess.destroyObject(p.ID())
		return nil
	}
	return wire.UnknownOpError{Interface: p.Interface(), Op: msg.Op()}
}

func (p *pointerResource) sendEnter(s *surfaceResource, pos image.Point) {
	msg := wire.NewMessage(p, 0)
	msg.Method = "enter"
	msg.Args = []any{s.ID(), pos.X, pos.Y}
	msg.WriteUint(p.sess.nextSerial())
	msg.WriteObject(s)
	msg.WriteFixed(wire.FixedInt(pos.X))
	msg.WriteFixed(wire.FixedInt(pos.Y))
	p.sess.send(msg)
}

func (p *pointerResource) sendLeave(s *surfaceResource) {
	msg := wire.NewMessage(p, 1)
	msg.Method = "leave"
	msg.Args = []any{s.ID()}
	msg.WriteUint(p.sess.nextSerial())
	msg.WriteObject(s)
	p.sess.send(msg)
}

func (p *pointerResource) sendMotion(time uint32, pos image.Point) {
	msg := wire.NewMessage(p, 2)
	msg.Method = "motion"
	msg.Args = []any{pos.X, pos.Y}
	msg.WriteUint(time)
	msg.WriteFixed(wire.FixedInt(pos.X))
	msg.WriteFixed(wire.FixedInt(pos.Y))
	p.sess.send(msg)
}

func (p *pointerResource) sendButton(time, button, state uint32) {
	msg := wire.NewMessage(p, 3)
	msg.Method = "button"
	msg.Args = []any{button, state}
	msg.WriteUint(p.sess.nextSerial())
	msg.WriteUint(time)
	msg.WriteUint(button)
	msg.WriteUint(state)
	p.sess.send(msg)
}

type keyboardResource struct {
	base
	sess *Session
	seat *seatResource
}

func (k *keyboardResource) Interface() string { return "wl_keyboard" }

func (k *keyboardResource) MethodName(op uint16) string {
	if op == 0 {
		return "release"
	}
	return "unknown"
}

func (k *keyboardResource) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() != 0 {
		return wire.UnknownOpError{Interface: k.Interface(), Op: msg.Op()}
	}
	kept := k.seat.keyboards[:0]
	for _, kb := range k.seat.keyboards {
		if kb != k {
			kept = append(kept, kb)
		}
	}
	k.seat.keyboards = kept
	k.sess.destroyObject(k.ID())
	return nil
}

// sendKeymap tells the client there is no keymap; raw codes only.
func (k *keyboardResource) sendKeymap() {
	file, err := shm.Create()
	if err != nil {
		return
	}
	msg := wire.NewMessage(k, 0)
	msg.Method = "keymap"
	msg.Args = []any{keymapFormatNone}
	msg.WriteUint(keymapFormatNone)
	msg.WriteFile(file)
	msg.WriteUint(0)
	k.sess.send(msg)
	file.Close()
}

func (k *keyboardResource) sendEnter(s *surfaceResource) {
	msg := wire.NewMessage(k, 1)
	msg.Method = "enter"
	msg.Args = []any{s.ID()}
	msg.WriteUint(k.sess.nextSerial())
	msg.WriteObject(s)
	msg.WriteArray(nil)
	k.sess.send(msg)
}

func (k *keyboardResource) sendLeave(s *surfaceResource) {
	msg := wire.NewMessage(k, 2)
	msg.Method = "leave"
	msg.Args = []any{s.ID()}
	msg.WriteUint(k.sess.nextSerial())
	msg.WriteObject(s)
	k.sess.send(msg)
}

func (k *keyboardResource) sendKey(code, state uint32) {
	msg := wire.NewMessage(k, 3)
	msg.Method = "key"
	msg.Args = []any{code, state}
	msg.WriteUint(k.sess.nextSerial())
	msg.WriteUint(0) // time, filled by the loop clock on real input
	msg.WriteUint(code)
	msg.WriteUint(state)
	k.sess.send(msg)
}
