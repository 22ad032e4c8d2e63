package registry

import (
	"image"

	"github.com/argentwm/argent/internal/arena"
)

// CreateSurface allocates a surface owned by client. It starts
// unmapped with no content.
func (r *Registry) CreateSurface(client ClientID) SurfaceID {
	return SurfaceID(r.surfaces.Insert(Surface{
		Client:    client,
		Focusable: true,
	}))
}

// DestroySurface drops a surface, removing it from its output's
// stacking order immediately.
func (r *Registry) DestroySurface(id SurfaceID) error {
	s, err := r.surface(id)
	if err != nil {
		return err
	}

	if s.Mapped {
		r.evict(id, s)
	}
	if s.buf != nil && s.buf.Release != nil {
		s.buf.Release()
	}
	if r.focus == id {
		r.focus = SurfaceID{}
	}
	r.surfaces.Remove(arena.Handle(id))
	return nil
}

// Surface returns the surface named by id for reading.
func (r *Registry) Surface(id SurfaceID) (*Surface, error) {
	return r.surface(id)
}

// Surfaces returns the IDs of all live surfaces in slot order.
func (r *Registry) Surfaces() []SurfaceID {
	ids := make([]SurfaceID, 0, r.surfaces.Len())
	for h := range r.surfaces.All() {
		ids = append(ids, SurfaceID(h))
	}
	return ids
}

// CommitBuffer replaces the surface's visible contents. A surface with
// an assigned output becomes mapped on its first commit with valid
// geometry. The previous buffer, if any, is released.
func (r *Registry) CommitBuffer(id SurfaceID, buf *Buffer, size image.Point) error {
	s, err := r.surface(id)
	if err != nil {
		return err
	}

	if s.buf != nil && s.buf.Release != nil {
		s.buf.Release()
	}
	s.buf = buf
	s.Size = size

	if buf == nil {
		// Committing a nil buffer unmaps the surface.
		if s.Mapped {
			r.evictKeepOutput(id, s)
		}
		return nil
	}

	if !s.Output.IsZero() && !s.Mapped && size.X > 0 && size.Y > 0 {
		r.mapSurface(id, s)
	}
	r.damageSurface(s)
	return nil
}

// MoveSurface repositions a surface on its output.
func (r *Registry) MoveSurface(id SurfaceID, pos image.Point) error {
	s, err := r.surface(id)
	if err != nil {
		return err
	}
	old := image.Rectangle{Min: s.Pos, Max: s.Pos.Add(s.Size)}
	s.Pos = pos
	if s.Mapped {
		if o, oerr := r.output(s.Output); oerr == nil {
			o.addDamage(old)
		}
		r.damageSurface(s)
	}
	return nil
}

// AssignSurface associates a surface with an output. A surface is on
// at most one output; assigning moves it. Surfaces with committed
// content map immediately.
func (r *Registry) AssignSurface(id SurfaceID, out OutputID) error {
	s, err := r.surface(id)
	if err != nil {
		return err
	}
	if _, err := r.output(out); err != nil {
		return err
	}

	if s.Mapped && s.Output != out {
		r.evict(id, s)
	}
	s.Output = out
	if !s.Mapped && s.buf != nil && s.Size.X > 0 && s.Size.Y > 0 {
		r.mapSurface(id, s)
	}
	return nil
}

// FocusSurface gives a surface input focus. A zero id clears focus.
func (r *Registry) FocusSurface(id SurfaceID) error {
	if id.IsZero() {
		r.focus = SurfaceID{}
		return nil
	}
	s, err := r.surface(id)
	if err != nil {
		return err
	}
	if !s.Mapped || !s.Focusable {
		return UnknownReferenceError{Kind: "surface", Key: id.Key()}
	}
	if r.focus == id {
		return nil
	}
	r.focus = id
	r.record(Delta{Kind: SurfaceFocused, Surface: id, Output: s.Output, Client: s.Client})
	return nil
}

// SurfaceAt returns the topmost mapped surface under the global point
// p, along with p translated to surface-local coordinates. A
// fullscreen surface takes the whole output.
func (r *Registry) SurfaceAt(p image.Point) (SurfaceID, image.Point, bool) {
	for _, o := range r.outputs.All() {
		if !o.Enabled || !p.In(o.Bounds()) {
			continue
		}
		local := p.Sub(o.Pos).Div(o.Scale)
		if !o.fullscreen.IsZero() {
			if s, err := r.surface(o.fullscreen); err == nil && s.Mapped {
				return o.fullscreen, local, true
			}
		}
		for i := len(o.stacking) - 1; i >= 0; i-- {
			sid := o.stacking[i]
			s, err := r.surface(sid)
			if err != nil || !s.Mapped {
				continue
			}
			area := image.Rectangle{Min: s.Pos, Max: s.Pos.Add(s.Size)}
			if local.In(area) {
				return sid, local.Sub(s.Pos), true
			}
		}
	}
	return SurfaceID{}, image.Point{}, false
}

// DestroyClientSurfaces cascades a session's teardown to its surfaces.
// It returns how many surfaces were destroyed.
func (r *Registry) DestroyClientSurfaces(client ClientID) int {
	var own []SurfaceID
	for h, s := range r.surfaces.All() {
		if s.Client == client {
			own = append(own, SurfaceID(h))
		}
	}
	for _, id := range own {
		r.DestroySurface(id)
	}
	return len(own)
}

func (r *Registry) surface(id SurfaceID) (*Surface, error) {
	s, ok := r.surfaces.Get(arena.Handle(id))
	if ok {
		return s, nil
	}
	if r.surfaces.Stale(arena.Handle(id)) {
		return nil, StaleSurfaceError{ID: id}
	}
	return nil, UnknownReferenceError{Kind: "surface", Key: id.Key()}
}

func (r *Registry) mapSurface(id SurfaceID, s *Surface) {
	o, err := r.output(s.Output)
	if err != nil {
		return
	}
	s.Mapped = true
	o.stacking = append(o.stacking, id)
	r.damageSurface(s)
	r.record(Delta{Kind: SurfaceMapped, Surface: id, Output: s.Output, OutputName: o.Name, Client: s.Client})
}

// evict unmaps a surface and detaches it from its output.
func (r *Registry) evict(id SurfaceID, s *Surface) {
	r.evictKeepOutput(id, s)
	s.Output = OutputID{}
}

func (r *Registry) evictKeepOutput(id SurfaceID, s *Surface) {
	if !s.Mapped {
		return
	}
	if o, err := r.output(s.Output); err == nil {
		o.removeFromStacking(id)
		o.addDamage(image.Rectangle{Min: s.Pos, Max: s.Pos.Add(s.Size)})
	}
	s.Mapped = false
	if r.focus == id {
		r.focus = SurfaceID{}
	}
	r.record(Delta{Kind: SurfaceUnmapped, Surface: id, Output: s.Output, Client: s.Client})
}

func (r *Registry) damageSurface(s *Surface) {
	if o, err := r.output(s.Output); err == nil {
		o.addDamage(image.Rectangle{Min: s.Pos, Max: s.Pos.Add(s.Size)})
	}
}
