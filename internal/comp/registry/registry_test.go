package registry

import (
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMode() Mode {
	return Mode{Width: 1920, Height: 1080, Refresh: 60000}
}

func solidBuffer(w, h int, c color.Color) *Buffer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return &Buffer{Image: img}
}

func mapOne(t *testing.T, r *Registry, out OutputID, client ClientID) SurfaceID {
	t.Helper()
	sid := r.CreateSurface(client)
	require.NoError(t, r.AssignSurface(sid, out))
	require.NoError(t, r.CommitBuffer(sid, solidBuffer(8, 8, color.White), image.Pt(8, 8)))
	s, err := r.Surface(sid)
	require.NoError(t, err)
	require.True(t, s.Mapped)
	return sid
}

func TestReferentialIntegrity(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s1 := mapOne(t, r, out, 1)
	s2 := mapOne(t, r, out, 1)
	r.Flush()

	require.NoError(t, r.RemoveOutput(out))

	// No surviving surface may reference the removed output.
	for _, sid := range []SurfaceID{s1, s2} {
		s, err := r.Surface(sid)
		require.NoError(t, err, "eviction must not destroy surfaces")
		assert.False(t, s.Mapped)
		assert.True(t, s.Output.IsZero())
	}

	deltas := r.Flush()
	require.Len(t, deltas, 3)
	assert.Equal(t, SurfaceUnmapped, deltas[0].Kind)
	assert.Equal(t, SurfaceUnmapped, deltas[1].Kind)
	assert.Equal(t, OutputRemoved, deltas[2].Kind)
}

func TestSnapshotIdempotent(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	mapOne(t, r, out, 1)

	a, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	b, err := r.TakeSnapshot(out)
	require.NoError(t, err)

	if !reflect.DeepEqual(a, b) {
		t.Fatal("repeated snapshots with no intervening mutation differ")
	}
	assert.True(t, r.Damaged(out), "snapshot must not clear damage")
}

func TestStaleSurfaceIDNeverHitsRecycledSlot(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)

	old := mapOne(t, r, out, 1)
	require.NoError(t, r.DestroySurface(old))

	// Force slot reuse.
	reused := r.CreateSurface(2)
	require.Equal(t, old.Key()>>32, reused.Key()>>32, "test requires the slot to be recycled")
	require.NotEqual(t, old, reused)

	err := r.CommitBuffer(old, solidBuffer(4, 4, color.White), image.Pt(4, 4))
	var stale StaleSurfaceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, old, stale.ID)

	// The new occupant is untouched.
	s, err := r.Surface(reused)
	require.NoError(t, err)
	assert.Nil(t, s.Content())
}

func TestUnknownReferenceLeavesStateUnchanged(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s1 := mapOne(t, r, out, 1)
	dead := mapOne(t, r, out, 1)
	require.NoError(t, r.DestroySurface(dead))
	r.Flush()

	before, err := r.TakeSnapshot(out)
	require.NoError(t, err)

	err = r.SetStacking(out, []SurfaceID{s1, dead})
	var unknown UnknownReferenceError
	if !assert.ErrorAs(t, err, &unknown) {
		var stale StaleSurfaceError
		require.ErrorAs(t, err, &stale)
	}

	after, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	if !reflect.DeepEqual(before, after) {
		t.Fatal("failed SetStacking mutated registry state")
	}
	assert.Empty(t, r.Flush(), "failed operation recorded a delta")
}

func TestSetStackingReorders(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s1 := mapOne(t, r, out, 1)
	s2 := mapOne(t, r, out, 1)
	s3 := mapOne(t, r, out, 1)

	require.NoError(t, r.SetStacking(out, []SurfaceID{s3, s1, s2}))
	o, err := r.Output(out)
	require.NoError(t, err)
	assert.Equal(t, []SurfaceID{s3, s1, s2}, o.Stacking())

	// Dropping a mapped surface from the list is rejected.
	assert.Error(t, r.SetStacking(out, []SurfaceID{s1, s2}))
	// Duplicates are rejected.
	assert.Error(t, r.SetStacking(out, []SurfaceID{s1, s1, s2}))
}

func TestClientTeardownCascades(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)

	const client = ClientID(7)
	var mine []SurfaceID
	for i := 0; i < 3; i++ {
		mine = append(mine, mapOne(t, r, out, client))
	}
	other := mapOne(t, r, out, 8)
	r.Flush()

	n := r.DestroyClientSurfaces(client)
	assert.Equal(t, 3, n)

	var unmapped int
	for _, d := range r.Flush() {
		if d.Kind == SurfaceUnmapped {
			unmapped++
			assert.Equal(t, client, d.Client)
		}
	}
	assert.Equal(t, 3, unmapped, "expected exactly one unmapped delta per surface")

	o, err := r.Output(out)
	require.NoError(t, err)
	assert.Equal(t, []SurfaceID{other}, o.Stacking())
	for _, sid := range mine {
		_, err := r.Surface(sid)
		assert.Error(t, err)
	}
}

func TestDeltaOrderMatchesMutationOrder(t *testing.T) {
	r := New()
	out := r.AddOutput("A", testMode(), image.Point{}, 1)
	s := mapOne(t, r, out, 1)
	require.NoError(t, r.FocusSurface(s))
	out2 := r.AddOutput("B", testMode(), image.Pt(1920, 0), 1)
	require.NoError(t, r.RemoveOutput(out2))

	kinds := make([]DeltaKind, 0, 5)
	for _, d := range r.Flush() {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []DeltaKind{OutputAdded, SurfaceMapped, SurfaceFocused, OutputAdded, OutputRemoved}, kinds)
}

func TestFocusFollowsLifecycle(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s := mapOne(t, r, out, 1)

	require.NoError(t, r.FocusSurface(s))
	assert.Equal(t, s, r.Focus())

	require.NoError(t, r.DestroySurface(s))
	assert.True(t, r.Focus().IsZero(), "focus must not outlive its surface")

	// Unmapped surfaces cannot take focus.
	bare := r.CreateSurface(1)
	assert.Error(t, r.FocusSurface(bare))
}

func TestFullscreenLayerWins(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s1 := mapOne(t, r, out, 1)
	s2 := mapOne(t, r, out, 1)

	require.NoError(t, r.SetFullscreen(out, s2))
	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	require.Len(t, snap.Layers, 1)
	assert.Equal(t, s2, snap.Layers[0].Surface)
	assert.True(t, snap.Layers[0].Fullscreen)

	require.NoError(t, r.ClearFullscreen(out))
	snap, err = r.TakeSnapshot(out)
	require.NoError(t, err)
	require.Len(t, snap.Layers, 2)
	assert.Equal(t, s1, snap.Layers[0].Surface)
}

func TestCommitNilBufferUnmaps(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s := mapOne(t, r, out, 1)
	r.Flush()

	require.NoError(t, r.CommitBuffer(s, nil, image.Point{}))
	surf, err := r.Surface(s)
	require.NoError(t, err)
	assert.False(t, surf.Mapped)
	assert.Equal(t, out, surf.Output, "nil commit keeps the output association")

	deltas := r.Flush()
	require.Len(t, deltas, 1)
	assert.Equal(t, SurfaceUnmapped, deltas[0].Kind)
}

func TestBufferReleaseOnReplaceAndDestroy(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	s := r.CreateSurface(1)
	require.NoError(t, r.AssignSurface(s, out))

	var released int
	buf := solidBuffer(4, 4, color.White)
	buf.Release = func() { released++ }
	require.NoError(t, r.CommitBuffer(s, buf, image.Pt(4, 4)))

	require.NoError(t, r.CommitBuffer(s, solidBuffer(4, 4, color.Black), image.Pt(4, 4)))
	assert.Equal(t, 1, released, "replaced buffer must be released")

	buf2 := solidBuffer(4, 4, color.White)
	buf2.Release = func() { released += 10 }
	require.NoError(t, r.CommitBuffer(s, buf2, image.Pt(4, 4)))
	require.NoError(t, r.DestroySurface(s))
	assert.Equal(t, 11, released, "destroy must release the held buffer")
}

func TestSurfaceAtPicksTopmost(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	bottom := mapOne(t, r, out, 1)
	top := mapOne(t, r, out, 1)
	require.NoError(t, r.MoveSurface(bottom, image.Pt(0, 0)))
	require.NoError(t, r.MoveSurface(top, image.Pt(4, 4)))

	// Overlap region belongs to the surface higher in the stack.
	sid, local, ok := r.SurfaceAt(image.Pt(5, 5))
	require.True(t, ok)
	assert.Equal(t, top, sid)
	assert.Equal(t, image.Pt(1, 1), local)

	// Outside the top surface, the bottom one wins.
	sid, local, ok = r.SurfaceAt(image.Pt(1, 1))
	require.True(t, ok)
	assert.Equal(t, bottom, sid)
	assert.Equal(t, image.Pt(1, 1), local)

	// Empty space hits nothing.
	_, _, ok = r.SurfaceAt(image.Pt(500, 500))
	assert.False(t, ok)
}

func TestSurfaceAtScaledOutput(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Pt(100, 0), 2)
	s := mapOne(t, r, out, 1)
	require.NoError(t, r.MoveSurface(s, image.Pt(2, 2)))

	// Global (110, 6) lands at local (5, 3) on a scale-2 output at
	// x=100, which is inside the 8x8 surface at (2, 2).
	sid, local, ok := r.SurfaceAt(image.Pt(110, 6))
	require.True(t, ok)
	assert.Equal(t, s, sid)
	assert.Equal(t, image.Pt(3, 1), local)
}

func TestSurfaceAtFullscreenTakesOutput(t *testing.T) {
	r := New()
	out := r.AddOutput("HDMI-1", testMode(), image.Point{}, 1)
	mapOne(t, r, out, 1)
	full := mapOne(t, r, out, 1)
	require.NoError(t, r.SetFullscreen(out, full))

	sid, _, ok := r.SurfaceAt(image.Pt(1000, 900))
	require.True(t, ok)
	assert.Equal(t, full, sid)
}
