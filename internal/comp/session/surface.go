package session

import (
	"fmt"
	"image"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/wire"
)

// wl_surface. State is double buffered: attach and frame accumulate
// pending state, commit applies it to the registry in one step.

type surfaceResource struct {
	base
	sess *Session
	id   registry.SurfaceID

	pendingBuf    *bufferResource
	pendingAttach bool
	pendingFrames []*callbackResource
}

func (s *surfaceResource) Interface() string { return "wl_surface" }

func (s *surfaceResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "destroy"
	case 1:
		return "attach"
	case 2:
		return "damage"
	case 3:
		return "frame"
	case 4:
		return "set_opaque_region"
	case 5:
		return "set_input_region"
	case 6:
		return "commit"
	case 7:
		return "set_buffer_transform"
	case 8:
		return "set_buffer_scale"
	case 9:
		return "damage_buffer"
	case 10:
		return "offset"
	}
	return "unknown"
}

// output reports which output the surface currently sits on, or a zero
// ID if it has none.
func (s *surfaceResource) output() registry.OutputID {
	surf, err := s.sess.mgr.reg.Surface(s.id)
	if err != nil {
		return registry.OutputID{}
	}
	return surf.Output
}

func (s *surfaceResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // destroy
		s.sess.mgr.reg.DestroySurface(s.id)
		s.sess.surfaces.Delete(s.id)
		s.dropFrames()
		s.sess.destroyObject(s.ID())
		return nil

	case 1: // attach
		bufID := msg.ReadUint()
		msg.ReadInt() // dx, ignored with the offset request
		msg.ReadInt() // dy
		if err := msg.Err(); err != nil {
			return err
		}
		if bufID == 0 {
			s.pendingBuf = nil
			s.pendingAttach = true
			return nil
		}
		buf, ok := s.sess.store.get(bufID).(*bufferResource)
		if !ok {
			return fmt.Errorf("attach non-buffer object %v", bufID)
		}
		s.pendingBuf = buf
		s.pendingAttach = true
		return nil

	case 2, 9: // damage, damage_buffer
		msg.ReadInt()
		msg.ReadInt()
		msg.ReadInt()
		msg.ReadInt()
		return msg.Err()

	case 3: // frame
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		cb := callbackResource{sess: s.sess}
		s.sess.store.add(id, &cb)
		s.pendingFrames = append(s.pendingFrames, &cb)
		return nil

	case 4, 5: // set_opaque_region, set_input_region
		msg.ReadUint()
		return msg.Err()

	case 6: // commit
		return s.commit()

	case 7, 8: // set_buffer_transform, set_buffer_scale
		msg.ReadInt()
		return msg.Err()

	case 10: // offset
		msg.ReadInt()
		msg.ReadInt()
		return msg.Err()
	}
	return wire.UnknownOpError{Interface: s.Interface(), Op: msg.Op()}
}

func (s *surfaceResource) commit() error {
	sess := s.sess
	reg := sess.mgr.reg

	if s.pendingAttach {
		s.pendingAttach = false
		if s.pendingBuf == nil {
			if err := reg.CommitBuffer(s.id, nil, image.Point{}); err != nil {
				return err
			}
		} else {
			buf := s.pendingBuf
			s.pendingBuf = nil

			// Surfaces without an output land on the first
			// enabled one, so plain clients show up without any
			// script involvement.
			if s.output().IsZero() {
				if out, ok := reg.FirstEnabled(); ok {
					reg.AssignSurface(s.id, out)
				}
			}

			content, size, err := buf.lock()
			if err != nil {
				return err
			}
			if err := reg.CommitBuffer(s.id, content, size); err != nil {
				return err
			}
		}
	}

	for _, cb := range s.pendingFrames {
		sess.frames = append(sess.frames, frameReq{surface: s, cb: cb})
	}
	s.pendingFrames = nil
	return nil
}

// dropFrames discards callbacks that will never fire because the
// surface is gone.
func (s *surfaceResource) dropFrames() {
	kept := s.sess.frames[:0]
	for _, fr := range s.sess.frames {
		if fr.surface == s {
			s.sess.destroyObject(fr.cb.ID())
			continue
		}
		kept = append(kept, fr)
	}
	s.sess.frames = kept
	for _, cb := range s.pendingFrames {
		s.sess.destroyObject(cb.ID())
	}
	s.pendingFrames = nil
}
