package session

import (
	"image"

	"github.com/argentwm/argent/wire"
)

// wl_compositor and wl_region.

type compositorResource struct {
	base
	sess *Session
}

func (c *compositorResource) Interface() string { return compositorInterface }

func (c *compositorResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "create_surface"
	case 1:
		return "create_region"
	}
	return "unknown"
}

func (c *compositorResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // create_surface
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		sess := c.sess
		sid := sess.mgr.reg.CreateSurface(sess.client)
		s := surfaceResource{sess: sess, id: sid}
		sess.store.add(id, &s)
		sess.surfaces.Add(sid)
		return nil

	case 1: // create_region
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		c.sess.store.add(id, &regionResource{sess: c.sess})
		return nil
	}
	return wire.UnknownOpError{Interface: c.Interface(), Op: msg.Op()}
}

// regionResource tracks the bounding box of the rectangles a client
// adds. Only the union matters to the compositor; subtraction just
// shrinks nothing.
type regionResource struct {
	base
	sess *Session
	box  image.Rectangle
}

func (r *regionResource) Interface() string { return "wl_region" }

func (r *regionResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "destroy"
	case 1:
		return "add"
	case 2:
		return "subtract"
	}
	return "unknown"
}

func (r *regionResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // destroy
		r.sess.destroyObject(r.ID())
		return nil

	case 1, 2: // add, subtract
		x := int(msg.ReadInt())
		y := int(msg.ReadInt())
		w := int(msg.ReadInt())
		h := int(msg.ReadInt())
		if err := msg.Err(); err != nil {
			return err
		}
		if msg.Op() == 1 {
			r.box = r.box.Union(image.Rect(x, y, x+w, y+h))
		}
		return nil
	}
	return wire.UnknownOpError{Interface: r.Interface(), Op: msg.Op()}
}
