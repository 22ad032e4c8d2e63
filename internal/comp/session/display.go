package session

import (
	"fmt"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/wire"
)

// wl_display, wl_registry, and wl_callback.

const (
	compositorInterface = "wl_compositor"
	compositorVersion   = 4
	shmInterface        = "wl_shm"
	shmVersion          = 1
	seatInterface       = "wl_seat"
	seatVersion         = 2
	outputInterface     = "wl_output"
	outputVersion       = 3
)

type displayResource struct {
	base
	sess *Session
}

func (d *displayResource) Interface() string { return "wl_display" }

func (d *displayResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "sync"
	case 1:
		return "get_registry"
	}
	return "unknown"
}

func (d *displayResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // sync
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		cb := callbackResource{sess: d.sess}
		d.sess.store.add(id, &cb)
		cb.done(d.sess.nextSerial())
		d.sess.destroyObject(id)
		return nil

	case 1: // get_registry
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		r := registryResource{sess: d.sess}
		d.sess.store.add(id, &r)
		d.sess.registries = append(d.sess.registries, &r)
		r.announceAll()
		if d.sess.phase == Connecting {
			d.sess.phase = Negotiated
		}
		return nil
	}
	return wire.UnknownOpError{Interface: d.Interface(), Op: msg.Op()}
}

func (d *displayResource) sendError(object, code uint32, text string) {
	msg := wire.NewMessage(d, 0)
	msg.Method = "error"
	msg.Args = []any{object, code, text}
	msg.WriteUint(object)
	msg.WriteUint(code)
	msg.WriteString(text)
	d.sess.send(msg)
}

func (d *displayResource) sendDeleteID(id uint32) {
	msg := wire.NewMessage(d, 1)
	msg.Method = "delete_id"
	msg.Args = []any{id}
	msg.WriteUint(id)
	d.sess.send(msg)
}

type callbackResource struct {
	base
	sess *Session
}

func (c *callbackResource) Interface() string { return "wl_callback" }

func (c *callbackResource) MethodName(op uint16) string { return "unknown" }

func (c *callbackResource) Dispatch(msg *wire.MessageBuffer) error {
	return wire.UnknownOpError{Interface: c.Interface(), Op: msg.Op()}
}

func (c *callbackResource) done(data uint32) {
	msg := wire.NewMessage(c, 0)
	msg.Method = "done"
	msg.Args = []any{data}
	msg.WriteUint(data)
	c.sess.send(msg)
}

type registryResource struct {
	base
	sess *Session
}

func (r *registryResource) Interface() string { return "wl_registry" }

func (r *registryResource) MethodName(op uint16) string {
	if op == 0 {
		return "bind"
	}
	return "unknown"
}

// announceAll advertises the fixed globals and one wl_output global
// per current output.
func (r *registryResource) announceAll() {
	r.sendGlobal(globalCompositor, compositorInterface, compositorVersion)
	r.sendGlobal(globalShm, shmInterface, shmVersion)
	r.sendGlobal(globalSeat, seatInterface, seatVersion)
	for _, name := range r.sess.mgr.outputs {
		r.sendGlobal(name, outputInterface, outputVersion)
	}
}

func (r *registryResource) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() != 0 {
		return wire.UnknownOpError{Interface: r.Interface(), Op: msg.Op()}
	}

	name := msg.ReadUint()
	id := msg.ReadNewID()
	if err := msg.Err(); err != nil {
		return err
	}

	sess := r.sess
	switch {
	case name == globalCompositor && id.Interface == compositorInterface:
		sess.store.add(id.ID, &compositorResource{sess: sess})

	case name == globalShm && id.Interface == shmInterface:
		shm := shmResource{sess: sess}
		sess.store.add(id.ID, &shm)
		shm.sendFormats()

	case name == globalSeat && id.Interface == seatInterface:
		seat := seatResource{sess: sess}
		sess.store.add(id.ID, &seat)
		sess.seats = append(sess.seats, &seat)
		seat.sendCapabilities()

	case id.Interface == outputInterface:
		out, ok := sess.mgr.outputFor(name)
		if !ok {
			return fmt.Errorf("bind to unknown global %v", name)
		}
		res := outputResource{sess: sess, id: out}
		sess.store.add(id.ID, &res)
		if sess.outputRes == nil {
			sess.outputRes = make(map[registry.OutputID][]*outputResource)
		}
		sess.outputRes[out] = append(sess.outputRes[out], &res)
		res.describe()

	default:
		return fmt.Errorf("bind to unknown global %v (%v)", name, id.Interface)
	}

	if sess.phase == Negotiated {
		sess.phase = Active
	}
	return nil
}

func (r *registryResource) sendGlobal(name uint32, iface string, version uint32) {
	msg := wire.NewMessage(r, 0)
	msg.Method = "global"
	msg.Args = []any{name, iface, version}
	msg.WriteUint(name)
	msg.WriteString(iface)
	msg.WriteUint(version)
	r.sess.send(msg)
}

func (r *registryResource) sendGlobalRemove(name uint32) {
	msg := wire.NewMessage(r, 1)
	msg.Method = "global_remove"
	msg.Args = []any{name}
	msg.WriteUint(name)
	r.sess.send(msg)
}
