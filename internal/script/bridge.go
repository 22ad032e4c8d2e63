// Package script embeds the policy runtime: one goja interpreter that
// loads the user's JavaScript at startup and reacts to registry deltas
// through subscriptions. Everything here runs on the compositor's
// control loop.
package script

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/argentwm/argent/internal/comp"
	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/logging"
	"github.com/dop251/goja"
	"golang.org/x/exp/slices"
)

// Host is the loop-side surface the bridge drives. *comp.Compositor
// implements it.
type Host interface {
	Registry() *registry.Registry
	OutputName(registry.OutputID) string
	NotifyOutputChanged(registry.OutputID)
	MapImage(img image.Image, output string, pos image.Point) (registry.SurfaceID, error)
	After(d time.Duration, fn func()) comp.TimerID
	Cancel(id comp.TimerID)
	Quit()
}

// Options tunes a Bridge.
type Options struct {
	// Privileged allows quit and map_image. The startup script runs
	// privileged; an unprivileged bridge gets PermissionDenied.
	Privileged bool

	// Budget caps how many callbacks run per tick. Zero means the
	// default.
	Budget int
}

const defaultBudget = 64

var eventKinds = map[string]bool{
	"output_added":     true,
	"output_removed":   true,
	"surface_mapped":   true,
	"surface_unmapped": true,
	"surface_focused":  true,
}

type pendingCall struct {
	kind string
	fn   goja.Callable
	arg  goja.Value
}

type subscriber struct {
	kind string
	fn   goja.Callable
}

// Bridge is the scripting half of the compositor. It satisfies
// comp.Bridge.
type Bridge struct {
	host Host
	vm   *goja.Runtime
	opts Options

	subs      map[int64]subscriber
	nextToken int64
	queue     []pendingCall
}

func New(host Host, opts Options) *Bridge {
	if opts.Budget <= 0 {
		opts.Budget = defaultBudget
	}
	b := Bridge{
		host: host,
		vm:   goja.New(),
		opts: opts,
		subs: make(map[int64]subscriber),
	}
	b.install()
	return &b
}

// Load reads and evaluates the user script. Any parse error or thrown
// exception is fatal.
func (b *Bridge) Load(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return LoadError{Path: path, Cause: err}
	}
	return b.Eval(path, string(src))
}

// Eval runs a script from source.
func (b *Bridge) Eval(name, src string) error {
	if _, err := b.vm.RunScript(name, src); err != nil {
		return LoadError{Path: name, Cause: err}
	}
	return nil
}

// Deliver converts registry deltas to events and queues the matching
// subscriber callbacks, in mutation order.
func (b *Bridge) Deliver(deltas []registry.Delta) {
	for _, d := range deltas {
		kind := d.Kind.String()
		var arg goja.Value
		for _, sub := range b.subscribers(kind) {
			if arg == nil {
				arg = b.eventValue(d)
			}
			b.queue = append(b.queue, pendingCall{kind: kind, fn: sub, arg: arg})
		}
	}
}

// subscribers returns the callbacks for kind in subscription order.
func (b *Bridge) subscribers(kind string) []goja.Callable {
	var tokens []int64
	for t, sub := range b.subs {
		if sub.kind == kind {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	slices.Sort(tokens)
	fns := make([]goja.Callable, len(tokens))
	for i, t := range tokens {
		fns[i] = b.subs[t].fn
	}
	return fns
}

// eventValue builds the plain object handed to subscribers. It holds
// identifiers only; the entity may be gone by the time it runs.
func (b *Bridge) eventValue(d registry.Delta) goja.Value {
	obj := b.vm.NewObject()
	obj.Set("kind", d.Kind.String())
	if !d.Output.IsZero() {
		obj.Set("output", outputHandle(d.Output))
	}
	if d.OutputName != "" {
		obj.Set("output_name", d.OutputName)
	}
	if !d.Surface.IsZero() {
		obj.Set("surface", surfaceHandle(d.Surface))
	}
	if d.Kind != registry.OutputAdded && d.Kind != registry.OutputRemoved {
		obj.Set("client", int64(d.Client))
	}
	return obj
}

// RunCallbacks drains queued callbacks up to the per-tick budget. An
// exception aborts only its own callback.
func (b *Bridge) RunCallbacks() {
	for n := 0; n < b.opts.Budget && len(b.queue) > 0; n++ {
		call := b.queue[0]
		b.queue = b.queue[1:]
		if _, err := call.fn(goja.Undefined(), call.arg); err != nil {
			logging.Logger.Error("script error", "err", ScriptRuntimeError{Kind: call.kind, Cause: err})
		}
	}
}

// Pending reports callbacks still queued after a budget-limited tick.
func (b *Bridge) Pending() bool {
	return len(b.queue) > 0
}

// install populates the argent global.
func (b *Bridge) install() {
	root := b.vm.NewObject()
	root.Set("ops", b.opsObject())
	root.Set("subscribe", b.subscribe)
	root.Set("unsubscribe", b.unsubscribe)
	root.Set("log", b.log)
	root.Set("after", b.after)
	root.Set("cancel", b.cancelTimer)
	b.vm.Set("argent", root)
}

func (b *Bridge) subscribe(call goja.FunctionCall) goja.Value {
	kind := call.Argument(0).String()
	if !eventKinds[kind] {
		b.throw(InvalidArgumentError{Op: "subscribe", Reason: fmt.Sprintf("unknown event kind %q", kind)})
	}
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		b.throw(InvalidArgumentError{Op: "subscribe", Reason: "second argument must be a function"})
	}
	b.nextToken++
	b.subs[b.nextToken] = subscriber{kind: kind, fn: fn}
	return b.vm.ToValue(b.nextToken)
}

func (b *Bridge) unsubscribe(call goja.FunctionCall) goja.Value {
	token := call.Argument(0).ToInteger()
	delete(b.subs, token)
	return goja.Undefined()
}

func (b *Bridge) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	logging.Logger.Info("script: " + strings.Join(parts, " "))
	return goja.Undefined()
}

func (b *Bridge) after(call goja.FunctionCall) goja.Value {
	ms := call.Argument(0).ToInteger()
	if ms < 0 {
		b.throw(InvalidArgumentError{Op: "after", Reason: "negative delay"})
	}
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		b.throw(InvalidArgumentError{Op: "after", Reason: "second argument must be a function"})
	}
	id := b.host.After(time.Duration(ms)*time.Millisecond, func() {
		b.queue = append(b.queue, pendingCall{kind: "timer", fn: fn, arg: goja.Undefined()})
	})
	return b.vm.ToValue(uint64(id))
}

func (b *Bridge) cancelTimer(call goja.FunctionCall) goja.Value {
	b.host.Cancel(comp.TimerID(call.Argument(0).ToInteger()))
	return goja.Undefined()
}

// throw raises err as a script exception.
func (b *Bridge) throw(err error) {
	panic(b.vm.NewGoError(err))
}
