package script

import (
	"fmt"
	"image"
	"os"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/dop251/goja"
	_ "golang.org/x/image/bmp"
)

// Handles cross the JS boundary as decimal strings: a packed
// index+generation does not fit a JS number safely.

func outputHandle(id registry.OutputID) string {
	return strconv.FormatUint(id.Key(), 10)
}

func surfaceHandle(id registry.SurfaceID) string {
	return strconv.FormatUint(id.Key(), 10)
}

func (b *Bridge) opsObject() *goja.Object {
	ops := b.vm.NewObject()
	ops.Set("list_outputs", b.opListOutputs)
	ops.Set("get_output", b.opGetOutput)
	ops.Set("set_output_position", b.opSetOutputPosition)
	ops.Set("set_output_scale", b.opSetOutputScale)
	ops.Set("enable_output", b.opEnableOutput)
	ops.Set("disable_output", b.opDisableOutput)
	ops.Set("list_surfaces", b.opListSurfaces)
	ops.Set("get_surface", b.opGetSurface)
	ops.Set("move_surface", b.opMoveSurface)
	ops.Set("assign_surface", b.opAssignSurface)
	ops.Set("set_stacking", b.opSetStacking)
	ops.Set("focus_surface", b.opFocusSurface)
	ops.Set("set_fullscreen", b.opSetFullscreen)
	ops.Set("clear_fullscreen", b.opClearFullscreen)
	ops.Set("close_surface", b.opCloseSurface)
	ops.Set("map_image", b.opMapImage)
	ops.Set("quit", b.opQuit)
	return ops
}

// Argument helpers. Validation comes before any handle resolution.

func (b *Bridge) need(op string, call goja.FunctionCall, n int) {
	if len(call.Arguments) != n {
		b.throw(InvalidArgumentError{Op: op, Reason: fmt.Sprintf("want %v arguments, got %v", n, len(call.Arguments))})
	}
}

func (b *Bridge) intArg(op string, call goja.FunctionCall, i int) int {
	switch call.Argument(i).Export().(type) {
	case int64, float64:
		return int(call.Argument(i).ToInteger())
	}
	b.throw(InvalidArgumentError{Op: op, Reason: fmt.Sprintf("argument %v must be a number", i)})
	return 0
}

func (b *Bridge) strArg(op string, call goja.FunctionCall, i int) string {
	if s, ok := call.Argument(i).Export().(string); ok {
		return s
	}
	b.throw(InvalidArgumentError{Op: op, Reason: fmt.Sprintf("argument %v must be a string", i)})
	return ""
}

func (b *Bridge) outputArg(op string, call goja.FunctionCall, i int) registry.OutputID {
	k, err := strconv.ParseUint(b.strArg(op, call, i), 10, 64)
	if err != nil {
		b.throw(InvalidArgumentError{Op: op, Reason: "malformed output handle"})
	}
	return registry.OutputIDFromKey(k)
}

func (b *Bridge) surfaceArg(op string, call goja.FunctionCall, i int) registry.SurfaceID {
	k, err := strconv.ParseUint(b.strArg(op, call, i), 10, 64)
	if err != nil {
		b.throw(InvalidArgumentError{Op: op, Reason: "malformed surface handle"})
	}
	return registry.SurfaceIDFromKey(k)
}

func (b *Bridge) privileged(op string) {
	if !b.opts.Privileged {
		b.throw(PermissionDeniedError{Op: op})
	}
}

// check throws registry errors (stale and unknown references
// included) into the script.
func (b *Bridge) check(err error) goja.Value {
	if err != nil {
		b.throw(err)
	}
	return goja.Undefined()
}

func (b *Bridge) outputValue(id registry.OutputID) goja.Value {
	out, err := b.host.Registry().Output(id)
	if err != nil {
		b.throw(err)
	}
	obj := b.vm.NewObject()
	obj.Set("id", outputHandle(id))
	obj.Set("name", out.Name)
	obj.Set("width", out.Mode.Width)
	obj.Set("height", out.Mode.Height)
	obj.Set("refresh", out.Mode.Refresh)
	obj.Set("x", out.Pos.X)
	obj.Set("y", out.Pos.Y)
	obj.Set("scale", out.Scale)
	obj.Set("enabled", out.Enabled)

	stacking := make([]goja.Value, len(out.Stacking()))
	for i, sid := range out.Stacking() {
		stacking[i] = b.vm.ToValue(surfaceHandle(sid))
	}
	obj.Set("stacking", b.array(stacking))
	if fs := out.Fullscreen(); !fs.IsZero() {
		obj.Set("fullscreen", surfaceHandle(fs))
	}
	return obj
}

func (b *Bridge) surfaceValue(id registry.SurfaceID) goja.Value {
	s, err := b.host.Registry().Surface(id)
	if err != nil {
		b.throw(err)
	}
	obj := b.vm.NewObject()
	obj.Set("id", surfaceHandle(id))
	obj.Set("client", int64(s.Client))
	obj.Set("x", s.Pos.X)
	obj.Set("y", s.Pos.Y)
	obj.Set("width", s.Size.X)
	obj.Set("height", s.Size.Y)
	obj.Set("mapped", s.Mapped)
	obj.Set("focusable", s.Focusable)
	if !s.Output.IsZero() {
		obj.Set("output", outputHandle(s.Output))
	}
	return obj
}

// array builds a native JS array; a wrapped Go slice would not export
// as one.
func (b *Bridge) array(vals []goja.Value) goja.Value {
	items := make([]any, len(vals))
	for i, v := range vals {
		items[i] = v
	}
	return b.vm.NewArray(items...)
}

func (b *Bridge) opListOutputs(call goja.FunctionCall) goja.Value {
	b.need("list_outputs", call, 0)
	ids := b.host.Registry().Outputs()
	vals := make([]goja.Value, len(ids))
	for i, id := range ids {
		vals[i] = b.outputValue(id)
	}
	return b.array(vals)
}

func (b *Bridge) opGetOutput(call goja.FunctionCall) goja.Value {
	b.need("get_output", call, 1)
	return b.outputValue(b.outputArg("get_output", call, 0))
}

func (b *Bridge) opSetOutputPosition(call goja.FunctionCall) goja.Value {
	b.need("set_output_position", call, 3)
	id := b.outputArg("set_output_position", call, 0)
	pos := image.Pt(b.intArg("set_output_position", call, 1), b.intArg("set_output_position", call, 2))
	b.check(b.host.Registry().SetOutputPosition(id, pos))
	b.host.NotifyOutputChanged(id)
	return goja.Undefined()
}

func (b *Bridge) opSetOutputScale(call goja.FunctionCall) goja.Value {
	b.need("set_output_scale", call, 2)
	id := b.outputArg("set_output_scale", call, 0)
	scale := b.intArg("set_output_scale", call, 1)
	if scale < 1 {
		b.throw(InvalidArgumentError{Op: "set_output_scale", Reason: "scale must be at least 1"})
	}
	b.check(b.host.Registry().SetOutputScale(id, scale))
	b.host.NotifyOutputChanged(id)
	return goja.Undefined()
}

func (b *Bridge) opEnableOutput(call goja.FunctionCall) goja.Value {
	b.need("enable_output", call, 1)
	id := b.outputArg("enable_output", call, 0)
	b.check(b.host.Registry().SetOutputEnabled(id, true))
	b.host.NotifyOutputChanged(id)
	return goja.Undefined()
}

func (b *Bridge) opDisableOutput(call goja.FunctionCall) goja.Value {
	b.need("disable_output", call, 1)
	id := b.outputArg("disable_output", call, 0)
	b.check(b.host.Registry().SetOutputEnabled(id, false))
	b.host.NotifyOutputChanged(id)
	return goja.Undefined()
}

func (b *Bridge) opListSurfaces(call goja.FunctionCall) goja.Value {
	b.need("list_surfaces", call, 0)
	ids := b.host.Registry().Surfaces()
	vals := make([]goja.Value, len(ids))
	for i, id := range ids {
		vals[i] = b.surfaceValue(id)
	}
	return b.array(vals)
}

func (b *Bridge) opGetSurface(call goja.FunctionCall) goja.Value {
	b.need("get_surface", call, 1)
	return b.surfaceValue(b.surfaceArg("get_surface", call, 0))
}

func (b *Bridge) opMoveSurface(call goja.FunctionCall) goja.Value {
	b.need("move_surface", call, 3)
	id := b.surfaceArg("move_surface", call, 0)
	pos := image.Pt(b.intArg("move_surface", call, 1), b.intArg("move_surface", call, 2))
	return b.check(b.host.Registry().MoveSurface(id, pos))
}

func (b *Bridge) opAssignSurface(call goja.FunctionCall) goja.Value {
	b.need("assign_surface", call, 2)
	sid := b.surfaceArg("assign_surface", call, 0)
	oid := b.outputArg("assign_surface", call, 1)
	return b.check(b.host.Registry().AssignSurface(sid, oid))
}

func (b *Bridge) opSetStacking(call goja.FunctionCall) goja.Value {
	b.need("set_stacking", call, 2)
	oid := b.outputArg("set_stacking", call, 0)
	raw, ok := call.Argument(1).Export().([]any)
	if !ok {
		b.throw(InvalidArgumentError{Op: "set_stacking", Reason: "second argument must be an array of surface handles"})
	}
	order := make([]registry.SurfaceID, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			b.throw(InvalidArgumentError{Op: "set_stacking", Reason: "stacking entries must be surface handles"})
		}
		k, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			b.throw(InvalidArgumentError{Op: "set_stacking", Reason: "malformed surface handle"})
		}
		order[i] = registry.SurfaceIDFromKey(k)
	}
	return b.check(b.host.Registry().SetStacking(oid, order))
}

func (b *Bridge) opFocusSurface(call goja.FunctionCall) goja.Value {
	b.need("focus_surface", call, 1)
	arg := call.Argument(0)
	if goja.IsNull(arg) || goja.IsUndefined(arg) {
		return b.check(b.host.Registry().FocusSurface(registry.SurfaceID{}))
	}
	return b.check(b.host.Registry().FocusSurface(b.surfaceArg("focus_surface", call, 0)))
}

func (b *Bridge) opSetFullscreen(call goja.FunctionCall) goja.Value {
	b.need("set_fullscreen", call, 2)
	oid := b.outputArg("set_fullscreen", call, 0)
	sid := b.surfaceArg("set_fullscreen", call, 1)
	return b.check(b.host.Registry().SetFullscreen(oid, sid))
}

func (b *Bridge) opClearFullscreen(call goja.FunctionCall) goja.Value {
	b.need("clear_fullscreen", call, 1)
	return b.check(b.host.Registry().ClearFullscreen(b.outputArg("clear_fullscreen", call, 0)))
}

func (b *Bridge) opCloseSurface(call goja.FunctionCall) goja.Value {
	b.need("close_surface", call, 1)
	return b.check(b.host.Registry().DestroySurface(b.surfaceArg("close_surface", call, 0)))
}

func (b *Bridge) opMapImage(call goja.FunctionCall) goja.Value {
	b.privileged("map_image")
	if len(call.Arguments) < 1 || len(call.Arguments) > 4 {
		b.throw(InvalidArgumentError{Op: "map_image", Reason: "want path [, output, x, y]"})
	}
	path := b.strArg("map_image", call, 0)
	var output string
	var x, y int
	if len(call.Arguments) > 1 {
		output = b.strArg("map_image", call, 1)
	}
	if len(call.Arguments) > 2 {
		x = b.intArg("map_image", call, 2)
	}
	if len(call.Arguments) > 3 {
		y = b.intArg("map_image", call, 3)
	}

	f, err := os.Open(path)
	if err != nil {
		b.throw(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		b.throw(fmt.Errorf("decode %v: %w", path, err))
	}

	id, err := b.host.MapImage(img, output, image.Pt(x, y))
	if err != nil {
		b.throw(err)
	}
	return b.vm.ToValue(surfaceHandle(id))
}

func (b *Bridge) opQuit(call goja.FunctionCall) goja.Value {
	b.privileged("quit")
	b.need("quit", call, 0)
	b.host.Quit()
	return goja.Undefined()
}
