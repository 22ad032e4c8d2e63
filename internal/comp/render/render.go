// Package render turns registry snapshots into frames. It is a plain
// software compositor: deterministic, backend-agnostic, and a pure
// function of the snapshot, which is what makes frame content
// testable.
package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/argentwm/argent/internal/comp/registry"
	xdraw "golang.org/x/image/draw"
)

// Background is the color behind all surfaces.
var Background = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xFF}

// Frame composites one output. Layers draw bottom to top in snapshot
// order; a fullscreen layer stretches over the whole output. The
// output's scale factor maps logical surface coordinates to pixels.
func Frame(snap *registry.Snapshot) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, snap.Mode.Width, snap.Mode.Height))
	draw.Draw(dst, dst.Rect, image.NewUniform(Background), image.Point{}, draw.Src)

	for _, layer := range snap.Layers {
		if layer.Image == nil {
			continue
		}
		if layer.Fullscreen {
			xdraw.NearestNeighbor.Scale(dst, dst.Rect, layer.Image, layer.Image.Bounds(), draw.Over, nil)
			continue
		}

		target := image.Rectangle{
			Min: layer.Pos.Mul(snap.Scale),
			Max: layer.Pos.Add(layer.Size).Mul(snap.Scale),
		}
		if snap.Scale == 1 && layer.Image.Bounds().Size() == layer.Size {
			draw.Draw(dst, target, layer.Image, layer.Image.Bounds().Min, draw.Over)
			continue
		}
		xdraw.NearestNeighbor.Scale(dst, target, layer.Image, layer.Image.Bounds(), draw.Over, nil)
	}
	return dst
}
