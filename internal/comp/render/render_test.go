package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSurfaceAtRequestedPosition(t *testing.T) {
	r := registry.New()
	out := r.AddOutput("HDMI-1", registry.Mode{Width: 1920, Height: 1080, Refresh: 60000}, image.Point{}, 1)

	s := r.CreateSurface(1)
	require.NoError(t, r.AssignSurface(s, out))
	red := color.RGBA{R: 0xFF, A: 0xFF}
	require.NoError(t, r.CommitBuffer(s, &registry.Buffer{Image: solid(800, 600, red)}, image.Pt(800, 600)))
	require.NoError(t, r.MoveSurface(s, image.Pt(100, 50)))
	require.NoError(t, r.SetStacking(out, []registry.SurfaceID{s}))

	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	require.Len(t, snap.Layers, 1, "output should report one mapped surface")

	frame := Frame(snap)
	assert.Equal(t, 1920, frame.Rect.Dx())
	assert.Equal(t, 1080, frame.Rect.Dy())

	assert.Equal(t, red, frame.RGBAAt(100, 50), "surface top-left")
	assert.Equal(t, red, frame.RGBAAt(899, 649), "surface bottom-right")
	assert.Equal(t, Background, frame.RGBAAt(99, 50), "left of surface")
	assert.Equal(t, Background, frame.RGBAAt(900, 650), "past bottom-right")
}

func TestRenderIsDeterministic(t *testing.T) {
	r := registry.New()
	out := r.AddOutput("X", registry.Mode{Width: 64, Height: 64, Refresh: 60000}, image.Point{}, 1)
	s := r.CreateSurface(1)
	require.NoError(t, r.AssignSurface(s, out))
	require.NoError(t, r.CommitBuffer(s, &registry.Buffer{Image: solid(16, 16, color.RGBA{G: 0xFF, A: 0xFF})}, image.Pt(16, 16)))

	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	a := Frame(snap)
	b := Frame(snap)
	assert.Equal(t, a.Pix, b.Pix, "same snapshot must yield the same frame")
}

func TestStackingOrderTopWins(t *testing.T) {
	r := registry.New()
	out := r.AddOutput("X", registry.Mode{Width: 32, Height: 32, Refresh: 60000}, image.Point{}, 1)

	mk := func(c color.RGBA) registry.SurfaceID {
		s := r.CreateSurface(1)
		require.NoError(t, r.AssignSurface(s, out))
		require.NoError(t, r.CommitBuffer(s, &registry.Buffer{Image: solid(8, 8, c)}, image.Pt(8, 8)))
		return s
	}
	red := color.RGBA{R: 0xFF, A: 0xFF}
	blue := color.RGBA{B: 0xFF, A: 0xFF}
	s1 := mk(red)
	s2 := mk(blue)

	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	frame := Frame(snap)
	assert.Equal(t, blue, frame.RGBAAt(0, 0))

	require.NoError(t, r.SetStacking(out, []registry.SurfaceID{s2, s1}))
	snap, err = r.TakeSnapshot(out)
	require.NoError(t, err)
	frame = Frame(snap)
	assert.Equal(t, red, frame.RGBAAt(0, 0))
}

func TestScaleFactor(t *testing.T) {
	r := registry.New()
	out := r.AddOutput("X", registry.Mode{Width: 64, Height: 64, Refresh: 60000}, image.Point{}, 2)
	s := r.CreateSurface(1)
	require.NoError(t, r.AssignSurface(s, out))
	c := color.RGBA{R: 0xFF, A: 0xFF}
	require.NoError(t, r.CommitBuffer(s, &registry.Buffer{Image: solid(8, 8, c)}, image.Pt(8, 8)))
	require.NoError(t, r.MoveSurface(s, image.Pt(4, 4)))

	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	frame := Frame(snap)

	// Logical 4..12 maps to pixel 8..24 at scale 2.
	assert.Equal(t, c, frame.RGBAAt(8, 8))
	assert.Equal(t, c, frame.RGBAAt(23, 23))
	assert.Equal(t, Background, frame.RGBAAt(7, 8))
	assert.Equal(t, Background, frame.RGBAAt(24, 24))
}

func TestFullscreenCoversOutput(t *testing.T) {
	r := registry.New()
	out := r.AddOutput("X", registry.Mode{Width: 40, Height: 30, Refresh: 60000}, image.Point{}, 1)
	s := r.CreateSurface(1)
	require.NoError(t, r.AssignSurface(s, out))
	c := color.RGBA{B: 0xFF, A: 0xFF}
	require.NoError(t, r.CommitBuffer(s, &registry.Buffer{Image: solid(4, 3, c)}, image.Pt(4, 3)))
	require.NoError(t, r.SetFullscreen(out, s))

	snap, err := r.TakeSnapshot(out)
	require.NoError(t, err)
	frame := Frame(snap)
	assert.Equal(t, c, frame.RGBAAt(0, 0))
	assert.Equal(t, c, frame.RGBAAt(39, 29))
}
