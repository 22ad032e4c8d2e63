package session

import (
	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/wire"
)

// wl_output. One resource per bind; describe sends the full
// geometry/mode/scale/done burst.

const (
	outputSubpixelUnknown = 0
	outputTransformNormal = 0
	outputModeCurrent     = 0x1
	outputModePreferred   = 0x2
)

type outputResource struct {
	base
	sess *Session
	id   registry.OutputID
}

func (o *outputResource) Interface() string { return outputInterface }

func (o *outputResource) MethodName(op uint16) string {
	if op == 0 {
		return "release"
	}
	return "unknown"
}

func (o *outputResource) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() != 0 {
		return wire.UnknownOpError{Interface: o.Interface(), Op: msg.Op()}
	}
	sess := o.sess
	if res := sess.outputRes[o.id]; res != nil {
		kept := res[:0]
		for _, r := range res {
			if r != o {
				kept = append(kept, r)
			}
		}
		sess.outputRes[o.id] = kept
	}
	sess.destroyObject(o.ID())
	return nil
}

// describe sends the output's current state followed by done.
func (o *outputResource) describe() {
	out, err := o.sess.mgr.reg.Output(o.id)
	if err != nil {
		return
	}

	geom := wire.NewMessage(o, 0)
	geom.Method = "geometry"
	geom.Args = []any{out.Pos.X, out.Pos.Y, out.Name}
	geom.WriteInt(int32(out.Pos.X))
	geom.WriteInt(int32(out.Pos.Y))
	geom.WriteInt(0) // physical width unknown
	geom.WriteInt(0) // physical height
	geom.WriteInt(outputSubpixelUnknown)
	geom.WriteString("argent")
	geom.WriteString(out.Name)
	geom.WriteInt(outputTransformNormal)
	o.sess.send(geom)

	mode := wire.NewMessage(o, 1)
	mode.Method = "mode"
	mode.Args = []any{out.Mode.Width, out.Mode.Height, out.Mode.Refresh}
	mode.WriteUint(outputModeCurrent | outputModePreferred)
	mode.WriteInt(int32(out.Mode.Width))
	mode.WriteInt(int32(out.Mode.Height))
	mode.WriteInt(int32(out.Mode.Refresh))
	o.sess.send(mode)

	scale := wire.NewMessage(o, 3)
	scale.Method = "scale"
	scale.Args = []any{out.Scale}
	scale.WriteInt(int32(out.Scale))
	o.sess.send(scale)

	done := wire.NewMessage(o, 2)
	done.Method = "done"
	o.sess.send(done)
}
