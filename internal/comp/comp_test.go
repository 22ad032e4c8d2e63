package comp

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/comp/backend/headless"
	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCompositor(t *testing.T, outputs ...headless.OutputConfig) (*Compositor, *headless.Backend, chan error) {
	t.Helper()

	if len(outputs) == 0 {
		outputs = []headless.OutputConfig{{Name: "HL-1", Width: 64, Height: 64}}
	}
	be := headless.OpenManual(outputs)

	path := filepath.Join(t.TempDir(), "wayland-c")
	c, err := New(be, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("compositor did not stop")
		}
	})

	return c, be, done
}

// barrier waits until the control loop has processed everything
// submitted before it.
func barrier(t *testing.T, c *Compositor) {
	t.Helper()
	ch := make(chan struct{})
	c.Submit(func() error {
		close(ch)
		return nil
	})
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("control loop stalled")
	}
}

// waitDone reports Run's result, re-sending it so the registered
// cleanup sees the loop as stopped too.
func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("compositor did not stop")
		return nil
	}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func TestQuitStopsRun(t *testing.T) {
	c, _, done := startCompositor(t)
	c.Submit(func() error {
		c.Quit()
		return nil
	})
	require.NoError(t, waitDone(t, done))
}

func TestBackendLossIsFatal(t *testing.T) {
	c, be, done := startCompositor(t)
	barrier(t, c)

	be.Fail(errors.New("device lost"))
	err := waitDone(t, done)

	var fatal backend.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 0, c.Sessions())
}

func TestMapImagePresentsFrame(t *testing.T) {
	c, be, _ := startCompositor(t)
	barrier(t, c)

	c.Submit(func() error {
		_, err := c.MapImage(solid(8, 8, color.RGBA{R: 255, A: 255}), "", image.Pt(4, 4))
		return err
	})
	barrier(t, c)
	require.Len(t, c.Registry().Surfaces(), 1)

	be.Frame("HL-1")
	require.Eventually(t, func() bool {
		return be.FrameCount("HL-1") > 0
	}, 2*time.Second, 10*time.Millisecond)

	frame := be.LastFrame("HL-1")
	require.NotNil(t, frame)
	assert.Equal(t, image.Rect(0, 0, 64, 64), frame.Bounds())

	inside := frame.RGBAAt(4, 4)
	assert.Equal(t, uint8(255), inside.R)
	outside := frame.RGBAAt(0, 0)
	assert.Equal(t, uint8(0x10), outside.R)
}

func TestUndamagedVsyncPresentsNothing(t *testing.T) {
	c, be, _ := startCompositor(t)
	barrier(t, c)

	be.Frame("HL-1")
	barrier(t, c)

	assert.Equal(t, 0, be.FrameCount("HL-1"))
}

func TestTimerFiresOnce(t *testing.T) {
	c, _, _ := startCompositor(t)

	fired := make(chan struct{})
	c.Submit(func() error {
		c.After(10*time.Millisecond, func() { close(fired) })
		return nil
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestCancelledTimerDoesNotFire(t *testing.T) {
	c, _, _ := startCompositor(t)

	var fired bool
	c.Submit(func() error {
		id := c.After(20*time.Millisecond, func() { fired = true })
		c.Cancel(id)
		return nil
	})

	time.Sleep(100 * time.Millisecond)
	barrier(t, c)
	assert.False(t, fired)
}

func TestControlListOutputs(t *testing.T) {
	c, _, _ := startCompositor(t)
	barrier(t, c)

	client := control.NewClient(control.SocketPath(c.socketPath))
	outs, err := client.Outputs()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "HL-1", outs[0].Name)
	assert.Equal(t, 64, outs[0].Width)
	assert.True(t, outs[0].Enabled)
}

func TestControlMapImage(t *testing.T) {
	c, _, _ := startCompositor(t)
	barrier(t, c)

	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(16, 16, color.RGBA{G: 255, A: 255})))
	require.NoError(t, f.Close())

	client := control.NewClient(control.SocketPath(c.socketPath))
	data, err := client.MapImage(control.MapImageArgs{Path: path, X: 2, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, "HL-1", data.Output)
	assert.Equal(t, 16, data.Width)
	assert.Equal(t, 16, data.Height)

	barrier(t, c)
	require.Len(t, c.Registry().Surfaces(), 1)
}

func TestControlQuit(t *testing.T) {
	c, _, done := startCompositor(t)
	barrier(t, c)

	client := control.NewClient(control.SocketPath(c.socketPath))
	require.NoError(t, client.Quit())
	require.NoError(t, waitDone(t, done))
}

func TestOutputHotplug(t *testing.T) {
	c, be, _ := startCompositor(t)
	barrier(t, c)

	be.AddOutput(headless.OutputConfig{Name: "HL-2", Width: 32, Height: 32})
	require.Eventually(t, func() bool {
		var n int
		c.Submit(func() error {
			n = len(c.Registry().Outputs())
			return nil
		})
		barrier(t, c)
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)

	be.RemoveOutput("HL-2")
	require.Eventually(t, func() bool {
		var n int
		c.Submit(func() error {
			n = len(c.Registry().Outputs())
			return nil
		})
		barrier(t, c)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func pointerFocusOf(t *testing.T, c *Compositor) registry.SurfaceID {
	t.Helper()
	var id registry.SurfaceID
	c.Submit(func() error {
		id = c.pointerFocus
		return nil
	})
	barrier(t, c)
	return id
}

func TestPointerFocusFollowsSurface(t *testing.T) {
	c, be, _ := startCompositor(t)
	barrier(t, c)

	var sid registry.SurfaceID
	c.Submit(func() error {
		var err error
		sid, err = c.MapImage(solid(8, 8, color.RGBA{A: 255}), "", image.Pt(4, 4))
		return err
	})
	barrier(t, c)

	be.Inject(backend.InputEvent{Kind: backend.PointerMotion, X: 6, Y: 6})
	require.Eventually(t, func() bool {
		return pointerFocusOf(t, c) == sid
	}, 2*time.Second, 10*time.Millisecond)

	// Moving off the surface clears the pointer focus.
	be.Inject(backend.InputEvent{Kind: backend.PointerMotion, X: 40, Y: 40})
	require.Eventually(t, func() bool {
		return pointerFocusOf(t, c).IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	// Buttons with no surface under the pointer are dropped without
	// upsetting the loop.
	be.Inject(backend.InputEvent{Kind: backend.PointerButton, Button: 0x110, State: 1})
	barrier(t, c)
}
