// Package headless implements the windowed/development backend as a
// purely in-memory display stack: synthetic outputs, a ticker-driven
// vsync, and presented frames retained for inspection. It keeps the
// whole compositor runnable in CI.
package headless

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/ev"
)

// OutputConfig describes one synthetic output.
type OutputConfig struct {
	Name    string
	Width   int
	Height  int
	Refresh int // mHz, 0 means 60Hz
	Scale   int
	X, Y    int
}

type output struct {
	info   backend.OutputInfo
	frame  *image.RGBA
	stop   chan struct{}
	frames int
}

// Backend is the headless display stack.
type Backend struct {
	mu      sync.Mutex
	outputs map[string]*output
	events  *ev.Queue[backend.Event]
	manual  bool
	closed  bool
}

// Open starts a headless backend whose outputs report vsync at their
// configured refresh rate. With no configs it provides one
// 1920x1080@60 output named HEADLESS-1.
func Open(outputs []OutputConfig) *Backend {
	return open(outputs, false)
}

// OpenManual starts a headless backend with no vsync ticker; the
// caller drives frame timing with Frame. Tests use this for
// deterministic ticks.
func OpenManual(outputs []OutputConfig) *Backend {
	return open(outputs, true)
}

func open(configs []OutputConfig, manual bool) *Backend {
	if len(configs) == 0 {
		configs = []OutputConfig{{Name: "HEADLESS-1", Width: 1920, Height: 1080}}
	}

	b := Backend{
		outputs: make(map[string]*output, len(configs)),
		events:  ev.New[backend.Event](),
		manual:  manual,
	}
	for _, cfg := range configs {
		b.add(cfg)
	}
	return &b
}

func info(cfg OutputConfig) backend.OutputInfo {
	if cfg.Refresh == 0 {
		cfg.Refresh = 60000
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	return backend.OutputInfo{
		Name:    cfg.Name,
		Make:    "argent",
		Model:   "headless",
		Width:   cfg.Width,
		Height:  cfg.Height,
		Refresh: cfg.Refresh,
		X:       cfg.X,
		Y:       cfg.Y,
		Scale:   cfg.Scale,
	}
}

func (b *Backend) add(cfg OutputConfig) *output {
	o := output{
		info: info(cfg),
		stop: make(chan struct{}),
	}
	b.outputs[cfg.Name] = &o
	if !b.manual {
		go b.vsync(&o)
	}
	return &o
}

func (b *Backend) vsync(o *output) {
	interval := time.Second * 1000 / time.Duration(o.info.Refresh)
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-tick.C:
			b.events.Add() <- backend.Frame{Output: o.info.Name}
		}
	}
}

func (b *Backend) Outputs() []backend.OutputInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]backend.OutputInfo, 0, len(b.outputs))
	for _, o := range b.outputs {
		infos = append(infos, o.info)
	}
	return infos
}

func (b *Backend) Events() *ev.Queue[backend.Event] {
	return b.events
}

func (b *Backend) Present(name string, frame *image.RGBA) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.outputs[name]
	if !ok {
		return backend.PresentationError{Output: name, Cause: fmt.Errorf("output removed")}
	}
	o.frame = frame
	o.frames++
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, o := range b.outputs {
		close(o.stop)
	}
	b.events.Stop()
	return nil
}

// AddOutput hot-plugs a synthetic output.
func (b *Backend) AddOutput(cfg OutputConfig) {
	b.mu.Lock()
	o := b.add(cfg)
	b.mu.Unlock()
	b.events.Add() <- backend.OutputAdded{Info: o.info}
}

// RemoveOutput hot-unplugs a synthetic output.
func (b *Backend) RemoveOutput(name string) {
	b.mu.Lock()
	o, ok := b.outputs[name]
	if ok {
		close(o.stop)
		delete(b.outputs, name)
	}
	b.mu.Unlock()
	if ok {
		b.events.Add() <- backend.OutputRemoved{Name: name}
	}
}

// Frame injects one vsync event for the named output. Only useful
// with OpenManual.
func (b *Backend) Frame(name string) {
	b.events.Add() <- backend.Frame{Output: name}
}

// Inject feeds a synthetic input event to the compositor.
func (b *Backend) Inject(e backend.InputEvent) {
	b.events.Add() <- e
}

// Fail simulates device loss.
func (b *Backend) Fail(err error) {
	b.events.Add() <- backend.Fatal{Err: err}
}

// LastFrame returns the most recently presented frame for an output,
// or nil.
func (b *Backend) LastFrame(name string) *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.outputs[name]; ok {
		return o.frame
	}
	return nil
}

// FrameCount reports how many frames have been presented to an
// output.
func (b *Backend) FrameCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.outputs[name]; ok {
		return o.frames
	}
	return 0
}
