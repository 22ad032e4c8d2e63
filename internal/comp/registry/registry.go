// Package registry holds the authoritative model of outputs, client
// surfaces, and their stacking relationships. All mutation happens on
// the compositor's control loop; every mutating method records a Delta
// that the loop hands to the scripting bridge in the same tick.
package registry

import (
	"image"

	"github.com/argentwm/argent/internal/arena"
)

// OutputID names an output. IDs are generational: once an output is
// removed, IDs that referred to it stay invalid even if the slot is
// reused.
type OutputID arena.Handle

func (id OutputID) IsZero() bool { return arena.Handle(id).IsZero() }
func (id OutputID) Key() uint64  { return arena.Handle(id).Key() }

// OutputIDFromKey restores an OutputID from its packed form.
func OutputIDFromKey(k uint64) OutputID { return OutputID(arena.FromKey(k)) }

// SurfaceID names a surface, with the same staleness guarantees as
// OutputID.
type SurfaceID arena.Handle

func (id SurfaceID) IsZero() bool { return arena.Handle(id).IsZero() }
func (id SurfaceID) Key() uint64  { return arena.Handle(id).Key() }

// SurfaceIDFromKey restores a SurfaceID from its packed form.
func SurfaceIDFromKey(k uint64) SurfaceID { return SurfaceID(arena.FromKey(k)) }

// ClientID identifies the protocol session that owns a surface.
// Client 0 is the compositor itself.
type ClientID uint64

// Mode is an output's resolution and refresh rate.
type Mode struct {
	Width, Height int
	Refresh       int // mHz
}

// Output is a physical or virtual display target.
type Output struct {
	Name    string
	Mode    Mode
	Pos     image.Point
	Scale   int
	Enabled bool

	damage     image.Rectangle
	stacking   []SurfaceID
	fullscreen SurfaceID
}

// Bounds is the output's rectangle in global compositor space.
func (o *Output) Bounds() image.Rectangle {
	return image.Rect(o.Pos.X, o.Pos.Y, o.Pos.X+o.Mode.Width, o.Pos.Y+o.Mode.Height)
}

// Stacking returns the output's z-order, bottom first. The slice is
// shared; callers must not modify it.
func (o *Output) Stacking() []SurfaceID { return o.stacking }

// Fullscreen returns the surface covering the whole output, or a zero
// ID.
func (o *Output) Fullscreen() SurfaceID { return o.fullscreen }

// Buffer is committed surface content. The pixels stay owned by the
// client; Release returns them once the compositor no longer reads
// them.
type Buffer struct {
	Image   image.Image
	Release func()
}

// Surface is a client-owned drawable region.
type Surface struct {
	Client    ClientID
	Pos       image.Point
	Size      image.Point
	Output    OutputID
	Mapped    bool
	Focusable bool

	buf *Buffer
}

// Content returns the surface's committed buffer, or nil if nothing
// has been committed yet.
func (s *Surface) Content() *Buffer { return s.buf }

// Registry is the single-writer compositor state. It does no locking:
// only the control loop may call its methods.
type Registry struct {
	outputs  arena.Arena[Output]
	surfaces arena.Arena[Surface]
	focus    SurfaceID
	deltas   []Delta
}

func New() *Registry {
	return &Registry{}
}

// Flush returns the deltas recorded since the previous Flush, in
// mutation order, and clears them.
func (r *Registry) Flush() []Delta {
	d := r.deltas
	r.deltas = nil
	return d
}

// Focus returns the surface holding input focus, or a zero ID.
func (r *Registry) Focus() SurfaceID { return r.focus }

func (r *Registry) record(d Delta) {
	r.deltas = append(r.deltas, d)
}
