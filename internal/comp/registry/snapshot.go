package registry

import (
	"image"

	"github.com/argentwm/argent/internal/arena"
)

// Snapshot is an immutable point-in-time view of one output, taken by
// the loop just before rendering. It shares buffer images with the
// registry; that is safe because the render runs on the same thread
// before any further mutation.
type Snapshot struct {
	Output  OutputID
	Name    string
	Mode    Mode
	Pos     image.Point
	Scale   int
	Enabled bool
	Damage  image.Rectangle

	// Layers holds the mapped surfaces bottom to top. A fullscreen
	// surface is the only layer.
	Layers []Layer
}

// Layer is one surface as it appears in a snapshot.
type Layer struct {
	Surface    SurfaceID
	Image      image.Image
	Pos        image.Point
	Size       image.Point
	Fullscreen bool
}

// Snapshot captures the output's current state. It is side-effect
// free: calling it twice without an intervening mutation yields equal
// results.
func (r *Registry) TakeSnapshot(id OutputID) (*Snapshot, error) {
	o, err := r.output(id)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		Output:  id,
		Name:    o.Name,
		Mode:    o.Mode,
		Pos:     o.Pos,
		Scale:   o.Scale,
		Enabled: o.Enabled,
		Damage:  o.damage,
	}

	if !o.fullscreen.IsZero() {
		if s, ok := r.surfaces.Get(arena.Handle(o.fullscreen)); ok && s.buf != nil {
			snap.Layers = []Layer{{
				Surface:    o.fullscreen,
				Image:      s.buf.Image,
				Size:       s.Size,
				Fullscreen: true,
			}}
			return &snap, nil
		}
	}

	for _, sid := range o.stacking {
		s, ok := r.surfaces.Get(arena.Handle(sid))
		if !ok || s.buf == nil {
			// A surface with no committed buffer is never composited.
			continue
		}
		snap.Layers = append(snap.Layers, Layer{
			Surface: sid,
			Image:   s.buf.Image,
			Pos:     s.Pos,
			Size:    s.Size,
		})
	}
	return &snap, nil
}
