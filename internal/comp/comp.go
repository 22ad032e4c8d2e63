// Package comp runs the compositor core: one control loop goroutine
// that owns the registry, drains backend and client events, feeds
// deltas to the scripting bridge, and presents frames.
package comp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/comp/render"
	"github.com/argentwm/argent/internal/comp/session"
	"github.com/argentwm/argent/internal/control"
	"github.com/argentwm/argent/internal/ev"
	"github.com/argentwm/argent/internal/logging"
	"github.com/argentwm/argent/internal/set"
)

// Bridge is the scripting side of the loop. Deliver hands over the
// tick's registry deltas; RunCallbacks runs queued script callbacks
// under the bridge's budget; Pending reports callbacks still queued.
type Bridge interface {
	Deliver(deltas []registry.Delta)
	RunCallbacks()
	Pending() bool
}

// ListenError reports a failure to set up the compositor's sockets.
type ListenError struct {
	Cause error
}

func (err ListenError) Error() string {
	return fmt.Sprintf("listener failure: %v", err.Cause)
}

func (err ListenError) Unwrap() error { return err.Cause }

// Compositor ties the registry, the backend, the session manager, and
// the scripting bridge together. All fields below the queues are
// owned by the loop goroutine.
type Compositor struct {
	reg   *registry.Registry
	be    backend.Backend
	mgr   *session.Manager
	ctl   *control.Server
	tasks *ev.Queue[func() error]

	bridge    Bridge
	timers    timerHeap
	nextTimer TimerID

	outputs map[string]registry.OutputID
	names   map[registry.OutputID]string
	due     set.Set[registry.OutputID]
	focus   registry.SurfaceID

	pointer      image.Point
	pointerFocus registry.SurfaceID

	socketPath string
	start      time.Time
	quit       bool
	fatal      error
}

// New sets up the compositor's sockets over the given backend. The
// loop does not run until Run.
func New(be backend.Backend, socketPath string) (*Compositor, error) {
	c := Compositor{
		reg:        registry.New(),
		be:         be,
		tasks:      ev.New[func() error](),
		outputs:    make(map[string]registry.OutputID),
		names:      make(map[registry.OutputID]string),
		due:        make(set.Set[registry.OutputID]),
		socketPath: socketPath,
	}

	mgr, err := session.NewManager(c.reg, c.Submit, socketPath)
	if err != nil {
		return nil, ListenError{Cause: err}
	}
	c.mgr = mgr

	ctl, err := control.NewServer(control.SocketPath(socketPath), c.handleControl)
	if err != nil {
		mgr.Close()
		return nil, ListenError{Cause: err}
	}
	c.ctl = ctl

	logging.Logger.Info("compositor listening", "socket", socketPath)
	return &c, nil
}

// Registry exposes the compositor state to the scripting bridge. Loop
// thread only.
func (c *Compositor) Registry() *registry.Registry { return c.reg }

// SetBridge attaches the scripting bridge. Must happen before Run.
func (c *Compositor) SetBridge(b Bridge) { c.bridge = b }

// Submit queues fn onto the control loop. Safe from any goroutine.
func (c *Compositor) Submit(fn func() error) {
	c.tasks.Add() <- fn
}

// Quit makes the loop exit after the current tick. Loop thread only.
func (c *Compositor) Quit() {
	c.quit = true
}

// Sessions reports the number of connected clients. Loop thread only.
func (c *Compositor) Sessions() int { return c.mgr.Sessions() }

// Run is the control loop. It blocks until the context is cancelled,
// Quit is called, or the backend fails.
func (c *Compositor) Run(ctx context.Context) error {
	c.start = time.Now()
	for _, info := range c.be.Outputs() {
		c.addOutput(info)
	}
	c.flush()

	for !c.quit {
		c.wait(ctx)
		c.fireTimers()
		c.flush()
	}

	c.shutdown()
	return c.fatal
}

// wait blocks for the next batch of work. With script callbacks still
// queued it only polls, so the budget carries over without stalling.
func (c *Compositor) wait(ctx context.Context) {
	var timerC <-chan time.Time
	if d, ok := c.nextTimerWait(); ok {
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}

	if c.bridge != nil && c.bridge.Pending() {
		select {
		case fns := <-c.tasks.Get():
			c.runTasks(fns)
		case evs := <-c.be.Events().Get():
			c.handleBackend(evs)
		default:
		}
		return
	}

	select {
	case <-ctx.Done():
		c.quit = true
	case fns := <-c.tasks.Get():
		c.runTasks(fns)
	case evs := <-c.be.Events().Get():
		c.handleBackend(evs)
	case <-timerC:
	}
}

func (c *Compositor) runTasks(fns []func() error) {
	for _, fn := range fns {
		err := fn()
		switch {
		case err == nil:
		case errors.As(err, new(session.ProtocolViolationError)):
			logging.Logger.Debug("protocol violation", "err", err)
		default:
			logging.Logger.Warn("task failed", "err", err)
		}
	}
}

func (c *Compositor) handleBackend(evs []backend.Event) {
	for _, e := range evs {
		switch e := e.(type) {
		case backend.OutputAdded:
			c.addOutput(e.Info)

		case backend.OutputRemoved:
			id, ok := c.outputs[e.Name]
			if !ok {
				continue
			}
			logging.Logger.Info("output removed", "name", e.Name)
			c.reg.RemoveOutput(id)
			c.mgr.OutputRemoved(id)
			delete(c.outputs, e.Name)
			delete(c.names, id)
			c.due.Delete(id)

		case backend.Frame:
			if id, ok := c.outputs[e.Output]; ok {
				c.due.Add(id)
			}

		case backend.InputEvent:
			c.handleInput(e)

		case backend.Fatal:
			logging.Logger.Error("backend failed", "err", e.Err)
			c.fatal = backend.FatalError{Cause: e.Err}
			c.mgr.CloseAll()
			c.quit = true
		}
	}
}

func (c *Compositor) addOutput(info backend.OutputInfo) {
	scale := info.Scale
	if scale < 1 {
		scale = 1
	}
	mode := registry.Mode{Width: info.Width, Height: info.Height, Refresh: info.Refresh}
	id := c.reg.AddOutput(info.Name, mode, image.Pt(info.X, info.Y), scale)
	c.outputs[info.Name] = id
	c.names[id] = info.Name
	c.mgr.OutputAdded(id)
	logging.Logger.Info("output added", "name", info.Name,
		"mode", fmt.Sprintf("%vx%v@%v", info.Width, info.Height, info.Refresh))
}

func (c *Compositor) handleInput(e backend.InputEvent) {
	switch e.Kind {
	case backend.KeyPress:
		c.mgr.Key(e.Code, 1)
	case backend.KeyRelease:
		c.mgr.Key(e.Code, 0)
	case backend.PointerMotion:
		c.pointer = image.Pt(int(e.X), int(e.Y))
		target, local, ok := c.reg.SurfaceAt(c.pointer)
		if !ok {
			target = registry.SurfaceID{}
		}
		if target != c.pointerFocus {
			c.mgr.PointerFocusChanged(c.pointerFocus, target, local)
			c.pointerFocus = target
		}
		if !target.IsZero() {
			c.mgr.PointerMotion(target, c.now(), local)
		}
	case backend.PointerButton:
		if c.pointerFocus.IsZero() {
			return
		}
		c.mgr.PointerButton(c.pointerFocus, c.now(), e.Button, uint32(e.State))
	}
}

// flush ends a tick: deltas go to the bridge, queued script callbacks
// run under their budget, and due outputs are presented.
func (c *Compositor) flush() {
	deltas := c.reg.Flush()
	for _, d := range deltas {
		switch d.Kind {
		case registry.SurfaceFocused:
			c.mgr.FocusChanged(c.focus, d.Surface)
			c.focus = d.Surface
		case registry.SurfaceUnmapped:
			if d.Surface == c.focus {
				c.mgr.FocusChanged(c.focus, registry.SurfaceID{})
				c.focus = registry.SurfaceID{}
			}
			if d.Surface == c.pointerFocus {
				c.mgr.PointerFocusChanged(c.pointerFocus, registry.SurfaceID{}, image.Point{})
				c.pointerFocus = registry.SurfaceID{}
			}
		}
	}

	if c.bridge != nil {
		if len(deltas) > 0 {
			c.bridge.Deliver(deltas)
		}
		c.bridge.RunCallbacks()
	}

	c.present()
}

func (c *Compositor) present() {
	for id := range c.due {
		name := c.names[id]
		if c.reg.Damaged(id) {
			snap, err := c.reg.TakeSnapshot(id)
			if err != nil {
				c.due.Delete(id)
				continue
			}
			if snap.Enabled {
				frame := render.Frame(snap)
				if err := c.be.Present(name, frame); err != nil {
					logging.Logger.Warn("present failed", "output", name, "err", err)
					c.due.Delete(id)
					continue
				}
			}
			c.reg.ClearDamage(id)
		}
		c.mgr.FireFrames(id, c.now())
		c.due.Delete(id)
	}
}

// now is the millisecond timestamp used in frame callbacks.
func (c *Compositor) now() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

func (c *Compositor) shutdown() {
	c.ctl.Close()
	c.mgr.Close()
	c.be.Close()
	c.tasks.Stop()
	logging.Logger.Info("compositor stopped")
}

// NotifyOutputChanged pushes an output's new description to bound
// clients, after a scripted reconfiguration. Loop thread only.
func (c *Compositor) NotifyOutputChanged(id registry.OutputID) {
	c.mgr.OutputChanged(id)
}

// OutputName resolves an output's backend name. Loop thread only.
func (c *Compositor) OutputName(id registry.OutputID) string {
	return c.names[id]
}
