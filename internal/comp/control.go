package comp

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/control"
	_ "golang.org/x/image/bmp"
)

// controlTimeout bounds how long a control client waits for the loop.
const controlTimeout = 5 * time.Second

// handleControl runs on a control connection goroutine; the actual op
// is submitted to the loop.
func (c *Compositor) handleControl(req *control.Request, privileged bool) *control.Response {
	done := make(chan *control.Response, 1)
	c.Submit(func() error {
		done <- c.controlOp(req, privileged)
		return nil
	})

	select {
	case resp := <-done:
		return resp
	case <-time.After(controlTimeout):
		return control.Error(fmt.Errorf("compositor loop did not respond"))
	}
}

func (c *Compositor) controlOp(req *control.Request, privileged bool) *control.Response {
	switch req.Op {
	case "list_outputs":
		return control.OK(c.listOutputs())

	case "map_image":
		if !privileged {
			return control.Error(fmt.Errorf("map_image: permission denied"))
		}
		var args control.MapImageArgs
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return control.Error(fmt.Errorf("map_image args: %w", err))
		}
		data, err := c.mapImageFile(args)
		if err != nil {
			return control.Error(err)
		}
		return control.OK(data)

	case "quit":
		if !privileged {
			return control.Error(fmt.Errorf("quit: permission denied"))
		}
		c.Quit()
		return control.OK(nil)
	}
	return control.Error(fmt.Errorf("unknown op %q", req.Op))
}

func (c *Compositor) listOutputs() []control.OutputInfo {
	ids := c.reg.Outputs()
	infos := make([]control.OutputInfo, 0, len(ids))
	for _, id := range ids {
		out, err := c.reg.Output(id)
		if err != nil {
			continue
		}
		infos = append(infos, control.OutputInfo{
			Name:     out.Name,
			Width:    out.Mode.Width,
			Height:   out.Mode.Height,
			Refresh:  out.Mode.Refresh,
			X:        out.Pos.X,
			Y:        out.Pos.Y,
			Scale:    out.Scale,
			Enabled:  out.Enabled,
			Surfaces: len(out.Stacking()),
		})
	}
	return infos
}

func (c *Compositor) mapImageFile(args control.MapImageArgs) (*control.MapImageData, error) {
	f, err := os.Open(args.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", args.Path, err)
	}

	id, err := c.MapImage(img, args.Output, image.Pt(args.X, args.Y))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &control.MapImageData{
		Surface: id.Key(),
		Output:  c.outputNameOf(id),
		Width:   b.Dx(),
		Height:  b.Dy(),
	}, nil
}

// MapImage shows an image as a compositor-owned static surface. Loop
// thread only.
func (c *Compositor) MapImage(img image.Image, output string, pos image.Point) (registry.SurfaceID, error) {
	var out registry.OutputID
	if output != "" {
		id, ok := c.reg.OutputByName(output)
		if !ok {
			return registry.SurfaceID{}, fmt.Errorf("no output named %q", output)
		}
		out = id
	} else {
		id, ok := c.reg.FirstEnabled()
		if !ok {
			return registry.SurfaceID{}, fmt.Errorf("no enabled output")
		}
		out = id
	}

	sid := c.reg.CreateSurface(0)
	if err := c.reg.AssignSurface(sid, out); err != nil {
		c.reg.DestroySurface(sid)
		return registry.SurfaceID{}, err
	}
	if err := c.reg.MoveSurface(sid, pos); err != nil {
		c.reg.DestroySurface(sid)
		return registry.SurfaceID{}, err
	}
	b := img.Bounds()
	buf := registry.Buffer{Image: img}
	if err := c.reg.CommitBuffer(sid, &buf, image.Pt(b.Dx(), b.Dy())); err != nil {
		c.reg.DestroySurface(sid)
		return registry.SurfaceID{}, err
	}
	return sid, nil
}

func (c *Compositor) outputNameOf(sid registry.SurfaceID) string {
	s, err := c.reg.Surface(sid)
	if err != nil {
		return ""
	}
	return c.names[s.Output]
}
