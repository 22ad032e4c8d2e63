// Package arena implements a generational slot arena. Values are
// addressed by handles that pair a slot index with a generation
// counter, so a handle held after its slot has been recycled is
// detectably stale instead of silently naming the new occupant.
package arena

import "iter"

// Handle names a value in an Arena. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// Index reports the slot index of the handle. It is stable for the
// lifetime of the value but may be reused afterwards.
func (h Handle) Index() uint32 { return h.index }

// Generation reports which occupancy of the slot the handle refers to.
func (h Handle) Generation() uint32 { return h.gen }

func (h Handle) IsZero() bool { return h == Handle{} }

// Key packs the handle into a single integer suitable for handing to
// code that cannot hold a Handle directly, such as embedded scripts.
func (h Handle) Key() uint64 {
	return uint64(h.index)<<32 | uint64(h.gen)
}

// FromKey is the inverse of Handle.Key. The result carries the same
// staleness guarantees as the original handle.
func FromKey(k uint64) Handle {
	return Handle{index: uint32(k >> 32), gen: uint32(k)}
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Arena stores values in recyclable slots. It is not safe for
// concurrent use; the compositor confines each arena to the control
// loop.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.count++
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[i]
		s.live = true
		s.val = v
		return Handle{index: i, gen: s.gen}
	}

	// Generations start at 1 so that the zero Handle stays invalid.
	a.slots = append(a.slots, slot[T]{gen: 1, live: true, val: v})
	return Handle{index: uint32(len(a.slots) - 1), gen: 1}
}

// Get returns a pointer to the value named by h, or false if h is
// stale or was never valid.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.val, true
}

// Remove frees the slot named by h and bumps its generation so that
// outstanding copies of h go stale. It reports whether h was live.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	p, ok := a.Get(h)
	if !ok {
		return zero, false
	}
	v := *p

	s := &a.slots[h.index]
	s.live = false
	s.gen++
	s.val = zero
	a.free = append(a.free, h.index)
	a.count--
	return v, true
}

// Stale reports whether h named a value that has since been removed.
// It is false for handles that were never issued by the arena.
func (a *Arena[T]) Stale(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.index]
	return h.gen < s.gen || (h.gen == s.gen && !s.live)
}

func (a *Arena[T]) Len() int { return a.count }

// All iterates over the live values in slot order.
func (a *Arena[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		for i := range a.slots {
			s := &a.slots[i]
			if !s.live {
				continue
			}
			if !yield(Handle{index: uint32(i), gen: s.gen}, &s.val) {
				return
			}
		}
	}
}
