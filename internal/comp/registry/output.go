package registry

import (
	"image"

	"github.com/argentwm/argent/internal/arena"
)

// AddOutput registers a new output and returns its ID.
func (r *Registry) AddOutput(name string, mode Mode, pos image.Point, scale int) OutputID {
	if scale < 1 {
		scale = 1
	}
	id := OutputID(r.outputs.Insert(Output{
		Name:    name,
		Mode:    mode,
		Pos:     pos,
		Scale:   scale,
		Enabled: true,
		damage:  image.Rect(0, 0, mode.Width, mode.Height),
	}))
	r.record(Delta{Kind: OutputAdded, Output: id, OutputName: name})
	return id
}

// RemoveOutput drops an output. Surfaces assigned to it are evicted to
// the unmapped holding state, not destroyed; script policy may
// reassign them later.
func (r *Registry) RemoveOutput(id OutputID) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}

	// evict edits o.stacking, so walk a copy.
	for _, sid := range append([]SurfaceID(nil), o.stacking...) {
		if s, ok := r.surfaces.Get(arena.Handle(sid)); ok {
			r.evict(sid, s)
		}
	}

	out, _ := r.outputs.Remove(arena.Handle(id))
	r.record(Delta{Kind: OutputRemoved, Output: id, OutputName: out.Name})
	return nil
}

// Output returns the output named by id for reading.
func (r *Registry) Output(id OutputID) (*Output, error) {
	return r.output(id)
}

// OutputByName finds an output by its connector name.
func (r *Registry) OutputByName(name string) (OutputID, bool) {
	for h, o := range r.outputs.All() {
		if o.Name == name {
			return OutputID(h), true
		}
	}
	return OutputID{}, false
}

// Outputs returns the IDs of all current outputs in slot order.
func (r *Registry) Outputs() []OutputID {
	ids := make([]OutputID, 0, r.outputs.Len())
	for h := range r.outputs.All() {
		ids = append(ids, OutputID(h))
	}
	return ids
}

// FirstEnabled returns the default output for new surfaces.
func (r *Registry) FirstEnabled() (OutputID, bool) {
	for h, o := range r.outputs.All() {
		if o.Enabled {
			return OutputID(h), true
		}
	}
	return OutputID{}, false
}

// SetOutputPosition moves an output in global space.
func (r *Registry) SetOutputPosition(id OutputID, pos image.Point) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}
	o.Pos = pos
	o.damageAll()
	return nil
}

// SetOutputMode changes an output's resolution and refresh rate.
func (r *Registry) SetOutputMode(id OutputID, mode Mode) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}
	o.Mode = mode
	o.damageAll()
	return nil
}

// SetOutputScale changes an output's scale factor.
func (r *Registry) SetOutputScale(id OutputID, scale int) error {
	if scale < 1 {
		scale = 1
	}
	o, err := r.output(id)
	if err != nil {
		return err
	}
	o.Scale = scale
	o.damageAll()
	return nil
}

// SetOutputEnabled enables or disables compositing to an output.
// Surfaces stay assigned either way.
func (r *Registry) SetOutputEnabled(id OutputID, enabled bool) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}
	o.Enabled = enabled
	o.damageAll()
	return nil
}

// SetStacking replaces an output's z-order wholesale, bottom first.
// Every listed surface must currently be mapped to that output, and
// the list must name each of them exactly once.
func (r *Registry) SetStacking(id OutputID, order []SurfaceID) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}

	if len(order) != len(o.stacking) {
		return UnknownReferenceError{Kind: "surface"}
	}
	have := make(map[SurfaceID]bool, len(o.stacking))
	for _, sid := range o.stacking {
		have[sid] = true
	}
	for _, sid := range order {
		if !have[sid] {
			return UnknownReferenceError{Kind: "surface", Key: sid.Key()}
		}
		delete(have, sid)
	}

	o.stacking = append(o.stacking[:0], order...)
	o.damageAll()
	return nil
}

// SetFullscreen makes a surface cover the whole output until cleared.
func (r *Registry) SetFullscreen(id OutputID, sid SurfaceID) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}
	s, err := r.surface(sid)
	if err != nil {
		return err
	}
	if s.Output != id {
		return UnknownReferenceError{Kind: "surface", Key: sid.Key()}
	}
	o.fullscreen = sid
	o.damageAll()
	return nil
}

// ClearFullscreen undoes SetFullscreen.
func (r *Registry) ClearFullscreen(id OutputID) error {
	o, err := r.output(id)
	if err != nil {
		return err
	}
	o.fullscreen = SurfaceID{}
	o.damageAll()
	return nil
}

// Damaged reports whether the output needs recompositing.
func (r *Registry) Damaged(id OutputID) bool {
	o, err := r.output(id)
	return err == nil && !o.damage.Empty()
}

// ClearDamage marks the output clean. The loop calls it after a
// successful present; Snapshot deliberately leaves damage untouched
// so that taking a snapshot stays side-effect-free.
func (r *Registry) ClearDamage(id OutputID) {
	if o, err := r.output(id); err == nil {
		o.damage = image.Rectangle{}
	}
}

func (r *Registry) output(id OutputID) (*Output, error) {
	o, ok := r.outputs.Get(arena.Handle(id))
	if !ok {
		return nil, UnknownReferenceError{Kind: "output", Key: id.Key()}
	}
	return o, nil
}

func (o *Output) damageAll() {
	o.damage = image.Rect(0, 0, o.Mode.Width, o.Mode.Height)
}

func (o *Output) addDamage(area image.Rectangle) {
	o.damage = o.damage.Union(area.Intersect(image.Rect(0, 0, o.Mode.Width, o.Mode.Height)))
}

func (o *Output) removeFromStacking(sid SurfaceID) {
	for i, v := range o.stacking {
		if v == sid {
			o.stacking = append(o.stacking[:i], o.stacking[i+1:]...)
			break
		}
	}
	if o.fullscreen == sid {
		o.fullscreen = SurfaceID{}
	}
}
