// Package session implements the Wayland protocol side of the
// compositor: listening for clients, decoding their requests, and
// translating them into registry mutations. All request handling runs
// on the compositor's control loop; each connection only contributes a
// reader goroutine that queues decoded messages for the loop.
package session

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/logging"
	"github.com/argentwm/argent/internal/set"
	"github.com/argentwm/argent/wire"
)

// Phase is a session's position in its connection state machine.
type Phase int

const (
	// Connecting: accepted, no registry bound yet.
	Connecting Phase = iota
	// Negotiated: globals have been advertised via wl_registry.
	Negotiated
	// Active: at least one global bound; normal request traffic.
	Active
	// Closing: teardown started, surfaces being destroyed.
	Closing
	// Closed: all resources released.
	Closed
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Negotiated:
		return "negotiated"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Manager owns the listening socket and all live sessions. Everything
// except the accept and per-connection reader goroutines runs on the
// control loop.
type Manager struct {
	reg    *registry.Registry
	submit func(func() error)

	lis      *net.UnixListener
	sessions set.Set[*Session]

	nextClient registry.ClientID
	nextGlobal uint32
	outputs    map[registry.OutputID]uint32 // output -> global name
}

// NewManager starts listening on socketPath. submit queues a closure
// onto the control loop; every registry access goes through it.
func NewManager(reg *registry.Registry, submit func(func() error), socketPath string) (*Manager, error) {
	lis, err := wire.Listen(socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %v: %w", socketPath, err)
	}

	m := Manager{
		reg:        reg,
		submit:     submit,
		lis:        lis,
		sessions:   make(set.Set[*Session]),
		nextClient: 1,
		nextGlobal: globalOutputBase,
		outputs:    make(map[registry.OutputID]uint32),
	}
	go m.accept()
	return &m, nil
}

// Fixed global names. Outputs get dynamic names starting at
// globalOutputBase.
const (
	globalCompositor = 1
	globalShm        = 2
	globalSeat       = 3
	globalOutputBase = 16
)

func (m *Manager) accept() {
	for {
		c, err := m.lis.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			m.submit(func() error { return fmt.Errorf("accept: %w", err) })
			continue
		}
		m.submit(func() error {
			m.addSession(wire.NewConn(c))
			return nil
		})
	}
}

func (m *Manager) addSession(conn *wire.Conn) {
	sess := Session{
		mgr:      m,
		conn:     conn,
		client:   m.nextClient,
		store:    newStore(),
		surfaces: make(set.Set[registry.SurfaceID]),
	}
	m.nextClient++

	display := displayResource{sess: &sess}
	display.SetID(1)
	sess.store.objects[1] = &display

	m.sessions.Add(&sess)
	logging.Logger.Debug("client connected", "client", sess.client)
	go sess.read()
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int {
	return m.sessions.Len()
}

// outputFor maps a global name back to its output.
func (m *Manager) outputFor(name uint32) (registry.OutputID, bool) {
	for id, n := range m.outputs {
		if n == name {
			return id, true
		}
	}
	return registry.OutputID{}, false
}

// OutputAdded advertises a new output global to every session that has
// a bound registry.
func (m *Manager) OutputAdded(id registry.OutputID) {
	name := m.nextGlobal
	m.nextGlobal++
	m.outputs[id] = name
	for sess := range m.sessions {
		sess.announceGlobal(name, outputInterface, outputVersion)
	}
}

// OutputRemoved withdraws an output's global.
func (m *Manager) OutputRemoved(id registry.OutputID) {
	name, ok := m.outputs[id]
	if !ok {
		return
	}
	delete(m.outputs, id)
	for sess := range m.sessions {
		sess.withdrawGlobal(name)
		sess.dropOutputResources(id)
	}
}

// OutputChanged resends an output's description to every session that
// bound it, after a reconfiguration.
func (m *Manager) OutputChanged(id registry.OutputID) {
	for sess := range m.sessions {
		for _, res := range sess.outputRes[id] {
			res.describe()
		}
	}
}

// FireFrames completes wl_surface.frame callbacks for surfaces that
// were just presented on the given output.
func (m *Manager) FireFrames(out registry.OutputID, ts uint32) {
	for sess := range m.sessions {
		sess.fireFrames(out, ts)
	}
}

// FocusChanged sends keyboard focus enter/leave to the sessions that
// own the surfaces involved.
func (m *Manager) FocusChanged(old, new registry.SurfaceID) {
	for sess := range m.sessions {
		sess.focusChanged(old, new)
	}
}

// Key delivers a raw key event to the session owning the focused
// surface. Events arriving with no focus are dropped.
func (m *Manager) Key(code, state uint32) {
	focus := m.reg.Focus()
	if focus.IsZero() {
		return
	}
	for sess := range m.sessions {
		if !sess.surfaces.Has(focus) {
			continue
		}
		for _, seat := range sess.seats {
			seat.key(code, state)
		}
		return
	}
}

// PointerFocusChanged sends wl_pointer leave/enter to the sessions
// owning the surfaces the pointer moved between. pos is in
// surface-local coordinates of the entered surface.
func (m *Manager) PointerFocusChanged(old, new registry.SurfaceID, pos image.Point) {
	for sess := range m.sessions {
		sess.pointerFocusChanged(old, new, pos)
	}
}

// PointerMotion delivers a motion event to the session owning the
// surface under the pointer.
func (m *Manager) PointerMotion(id registry.SurfaceID, time uint32, pos image.Point) {
	for sess := range m.sessions {
		if sess.surfaceResourceFor(id) == nil {
			continue
		}
		for _, seat := range sess.seats {
			seat.pointerMotion(time, pos)
		}
		return
	}
}

// PointerButton delivers a button event to the session owning the
// surface under the pointer.
func (m *Manager) PointerButton(id registry.SurfaceID, time, button, state uint32) {
	for sess := range m.sessions {
		if sess.surfaceResourceFor(id) == nil {
			continue
		}
		for _, seat := range sess.seats {
			seat.pointerButton(time, button, state)
		}
		return
	}
}

// CloseAll tears down every session, cascading surface destruction.
// Used for orderly shutdown, including device loss.
func (m *Manager) CloseAll() {
	for sess := range m.sessions {
		sess.close(nil)
	}
}

// Close stops accepting and closes every session.
func (m *Manager) Close() error {
	err := m.lis.Close()
	m.CloseAll()
	return err
}

// Session is one client connection.
type Session struct {
	mgr    *Manager
	conn   *wire.Conn
	client registry.ClientID
	phase  Phase
	store  *store
	serial uint32

	surfaces   set.Set[registry.SurfaceID]
	registries []*registryResource
	outputRes  map[registry.OutputID][]*outputResource
	seats      []*seatResource
	frames     []frameReq
}

type frameReq struct {
	surface *surfaceResource
	cb      *callbackResource
}

// Phase reports the session's lifecycle phase.
func (sess *Session) Phase() Phase { return sess.phase }

// Client reports the session's registry client ID.
func (sess *Session) Client() registry.ClientID { return sess.client }

func (sess *Session) read() {
	for {
		msg, err := wire.ReadMessage(sess.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
				sess.mgr.submit(func() error { sess.close(nil); return nil })
				return
			}
			sess.mgr.submit(func() error {
				sess.close(ProtocolViolationError{Reason: err.Error()})
				return nil
			})
			return
		}

		sess.mgr.submit(func() error { return sess.dispatch(msg) })
	}
}

// dispatch runs one decoded request on the control loop.
func (sess *Session) dispatch(msg *wire.MessageBuffer) error {
	if sess.phase == Closing || sess.phase == Closed {
		return nil
	}

	obj := sess.store.get(msg.Sender())
	if obj == nil {
		err := wire.UnknownSenderIDError{ID: msg.Sender()}
		sess.fail(msg.Sender(), errInvalidObject, err.Error())
		return ProtocolViolationError{Object: msg.Sender(), Reason: err.Error()}
	}

	err := obj.Dispatch(msg)
	logging.Trace("client %v: %v", sess.client, msg.Debug(obj))
	if err == nil {
		err = msg.Err()
	}
	if err != nil {
		var unknownOp wire.UnknownOpError
		code := uint32(errImplementation)
		if errors.As(err, &unknownOp) {
			code = errInvalidMethod
		}
		sess.fail(msg.Sender(), code, err.Error())
		return ProtocolViolationError{Object: msg.Sender(), Reason: err.Error()}
	}
	return nil
}

// send writes one event. A write failure starts teardown; per-client
// errors stay per-client.
func (sess *Session) send(msg *wire.MessageBuilder) {
	if sess.phase == Closed {
		return
	}
	logging.Trace("client %v:  -> %v", sess.client, msg)
	if err := msg.Build(sess.conn); err != nil {
		logging.Logger.Debug("client write failed", "client", sess.client, "err", err)
		sess.close(nil)
	}
}

// fail sends display.error and starts teardown.
func (sess *Session) fail(object uint32, code uint32, text string) {
	if display, ok := sess.store.get(1).(*displayResource); ok {
		display.sendError(object, code, text)
	}
	sess.close(ProtocolViolationError{Object: object, Reason: text})
}

// close transitions Closing -> Closed, cascading destruction of the
// session's surfaces. Safe to call twice.
func (sess *Session) close(cause error) {
	if sess.phase == Closing || sess.phase == Closed {
		return
	}
	sess.phase = Closing
	if cause != nil {
		logging.Logger.Warn("dropping client", "client", sess.client, "err", cause)
	} else {
		logging.Logger.Debug("client disconnected", "client", sess.client)
	}

	n := sess.mgr.reg.DestroyClientSurfaces(sess.client)
	if n > 0 {
		logging.Logger.Debug("cascaded surface teardown", "client", sess.client, "surfaces", n)
	}

	sess.conn.Close()
	sess.phase = Closed
	sess.mgr.sessions.Delete(sess)
}

// nextSerial returns a fresh event serial.
func (sess *Session) nextSerial() uint32 {
	sess.serial++
	return sess.serial
}

func (sess *Session) announceGlobal(name uint32, iface string, version uint32) {
	for _, r := range sess.registries {
		r.sendGlobal(name, iface, version)
	}
}

func (sess *Session) withdrawGlobal(name uint32) {
	for _, r := range sess.registries {
		r.sendGlobalRemove(name)
	}
}

func (sess *Session) dropOutputResources(id registry.OutputID) {
	if sess.outputRes != nil {
		delete(sess.outputRes, id)
	}
}

func (sess *Session) fireFrames(out registry.OutputID, ts uint32) {
	kept := sess.frames[:0]
	for _, fr := range sess.frames {
		if fr.surface.output() == out {
			fr.cb.done(ts)
			sess.destroyObject(fr.cb.ID())
			continue
		}
		kept = append(kept, fr)
	}
	sess.frames = kept
}

func (sess *Session) focusChanged(old, new registry.SurfaceID) {
	leave := sess.surfaceResourceFor(old)
	enter := sess.surfaceResourceFor(new)
	if leave == nil && enter == nil {
		return
	}
	for _, seat := range sess.seats {
		seat.focusChanged(leave, enter)
	}
}

func (sess *Session) pointerFocusChanged(old, new registry.SurfaceID, pos image.Point) {
	leave := sess.surfaceResourceFor(old)
	enter := sess.surfaceResourceFor(new)
	if leave == nil && enter == nil {
		return
	}
	for _, seat := range sess.seats {
		seat.pointerFocusChanged(leave, enter, pos)
	}
}

func (sess *Session) surfaceResourceFor(id registry.SurfaceID) *surfaceResource {
	if id.IsZero() || !sess.surfaces.Has(id) {
		return nil
	}
	for _, obj := range sess.store.objects {
		if s, ok := obj.(*surfaceResource); ok && s.id == id {
			return s
		}
	}
	return nil
}

// destroyObject removes an object and tells the client its ID is free
// again.
func (sess *Session) destroyObject(id uint32) {
	sess.store.delete(id)
	if display, ok := sess.store.get(1).(*displayResource); ok && id < serverIDBase {
		display.sendDeleteID(id)
	}
}
