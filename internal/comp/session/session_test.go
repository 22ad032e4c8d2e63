package session

import (
	"image"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/shm"
	"github.com/argentwm/argent/wire"
	"github.com/stretchr/testify/require"
)

// testLoop stands in for the compositor's control loop: the test
// drains submitted closures itself.
type testLoop struct {
	tasks chan func() error
	errs  []error
}

func newTestLoop() *testLoop {
	return &testLoop{tasks: make(chan func() error, 256)}
}

func (l *testLoop) submit(fn func() error) {
	l.tasks <- fn
}

// runUntil drains tasks until cond holds.
func (l *testLoop) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case fn := <-l.tasks:
			if err := fn(); err != nil {
				l.errs = append(l.errs, err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		}
	}
}

// settle drains tasks until the queue stays empty briefly.
func (l *testLoop) settle(t *testing.T) {
	t.Helper()
	for {
		select {
		case fn := <-l.tasks:
			if err := fn(); err != nil {
				l.errs = append(l.errs, err)
			}
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func newTestManager(t *testing.T) (*registry.Registry, *Manager, *testLoop, registry.OutputID) {
	t.Helper()

	reg := registry.New()
	out := reg.AddOutput("OUT-1", registry.Mode{Width: 640, Height: 480, Refresh: 60000}, image.Point{}, 1)
	reg.Flush()

	loop := newTestLoop()
	path := filepath.Join(t.TempDir(), "wayland-t")
	mgr, err := NewManager(reg, loop.submit, path)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	mgr.OutputAdded(out)

	return reg, mgr, loop, out
}

type clientObj struct {
	id    uint32
	iface string
}

func (o *clientObj) ID() uint32                         { return o.id }
func (o *clientObj) SetID(id uint32)                    { o.id = id }
func (o *clientObj) Delete()                            {}
func (o *clientObj) Interface() string                  { return o.iface }
func (o *clientObj) MethodName(uint16) string           { return "request" }
func (o *clientObj) Dispatch(*wire.MessageBuffer) error { return nil }

// testClient is a minimal wire-level Wayland client.
type testClient struct {
	t    *testing.T
	conn *wire.Conn
}

func dial(t *testing.T, mgr *Manager) *testClient {
	t.Helper()
	c, err := net.Dial("unix", mgr.lis.Addr().String())
	require.NoError(t, err)
	tc := testClient{t: t, conn: wire.NewConn(c.(*net.UnixConn))}
	t.Cleanup(func() { tc.conn.Close() })
	return &tc
}

func (c *testClient) request(id uint32, op uint16, build func(*wire.MessageBuilder)) {
	c.t.Helper()
	msg := wire.NewMessage(&clientObj{id: id}, op)
	if build != nil {
		build(msg)
	}
	require.NoError(c.t, msg.Build(c.conn))
}

type event struct {
	msg *wire.MessageBuffer
	err error
}

// read returns the next server event.
func (c *testClient) read() (*wire.MessageBuffer, error) {
	c.t.Helper()
	ch := make(chan event, 1)
	go func() {
		msg, err := wire.ReadMessage(c.conn)
		ch <- event{msg: msg, err: err}
	}()
	select {
	case e := <-ch:
		return e.msg, e.err
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out reading event")
		return nil, nil
	}
}

func (c *testClient) mustRead() *wire.MessageBuffer {
	c.t.Helper()
	msg, err := c.read()
	require.NoError(c.t, err)
	return msg
}

// connect performs the registry handshake and returns the global
// names by interface.
func (c *testClient) connect(loop *testLoop, mgr *Manager) map[string]uint32 {
	c.t.Helper()
	loop.runUntil(c.t, func() bool { return mgr.Sessions() > 0 })

	c.request(1, 1, func(m *wire.MessageBuilder) { m.WriteUint(2) }) // get_registry
	loop.settle(c.t)

	globals := make(map[string]uint32)
	for len(globals) < 4 {
		msg := c.mustRead()
		require.Equal(c.t, uint32(2), msg.Sender())
		require.Equal(c.t, uint16(0), msg.Op())
		name := msg.ReadUint()
		iface := msg.ReadString()
		msg.ReadUint() // version
		require.NoError(c.t, msg.Err())
		globals[iface] = name
	}
	return globals
}

func TestHandshakeAdvertisesGlobals(t *testing.T) {
	_, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)

	require.Contains(t, globals, "wl_compositor")
	require.Contains(t, globals, "wl_shm")
	require.Contains(t, globals, "wl_seat")
	require.Contains(t, globals, "wl_output")

	var sess *Session
	for s := range mgr.sessions {
		sess = s
	}
	require.NotNil(t, sess)
	require.Equal(t, Negotiated, sess.Phase())

	// Binding any global moves the session to Active.
	c.request(2, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(globals["wl_compositor"])
		m.WriteString("wl_compositor")
		m.WriteUint(4)
		m.WriteUint(3)
	})
	loop.settle(t)
	require.Equal(t, Active, sess.Phase())
	require.Empty(t, loop.errs)
}

// mapSurface drives a client through compositor bind, surface
// creation, shm pool setup, attach, and commit. Returns the buffer
// object id.
func (c *testClient) mapSurface(t *testing.T, loop *testLoop, globals map[string]uint32, base uint32, w, h int) {
	t.Helper()

	comp := base
	surf := base + 1
	shmID := base + 2
	pool := base + 3
	buffer := base + 4

	c.request(2, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(globals["wl_compositor"])
		m.WriteString("wl_compositor")
		m.WriteUint(4)
		m.WriteUint(comp)
	})
	c.request(comp, 0, func(m *wire.MessageBuilder) { m.WriteUint(surf) })

	c.request(2, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(globals["wl_shm"])
		m.WriteString("wl_shm")
		m.WriteUint(1)
		m.WriteUint(shmID)
	})

	size := w * h * 4
	f, err := shm.Create()
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(int64(size)))

	c.request(shmID, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(pool)
		m.WriteFile(f)
		m.WriteInt(int32(size))
	})
	c.request(pool, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(buffer)
		m.WriteInt(0)
		m.WriteInt(int32(w))
		m.WriteInt(int32(h))
		m.WriteInt(int32(w * 4))
		m.WriteUint(0) // argb8888
	})

	c.request(surf, 1, func(m *wire.MessageBuilder) { // attach
		m.WriteUint(buffer)
		m.WriteInt(0)
		m.WriteInt(0)
	})
	c.request(surf, 6, nil) // commit
	loop.settle(t)
}

func TestCommitMapsSurfaceOnFirstOutput(t *testing.T) {
	reg, mgr, loop, out := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)

	c.mapSurface(t, loop, globals, 3, 4, 4)
	require.Empty(t, loop.errs)

	ids := reg.Surfaces()
	require.Len(t, ids, 1)
	s, err := reg.Surface(ids[0])
	require.NoError(t, err)
	require.True(t, s.Mapped)
	require.Equal(t, image.Pt(4, 4), s.Size)
	require.Equal(t, out, s.Output)
	require.NotNil(t, s.Content())

	var mapped bool
	for _, d := range reg.Flush() {
		if d.Kind == registry.SurfaceMapped {
			mapped = true
		}
	}
	require.True(t, mapped)
}

func TestRecommittedBufferKeepsPoolMapped(t *testing.T) {
	reg, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)
	c.mapSurface(t, loop, globals, 3, 4, 4)

	var sess *Session
	for s := range mgr.sessions {
		sess = s
	}
	require.NotNil(t, sess)
	pool, ok := sess.store.get(6).(*shmPoolResource)
	require.True(t, ok)

	// Attach and commit the same buffer again. Releasing the first
	// lock must not invalidate the pixels the second lock reads.
	c.request(4, 1, func(m *wire.MessageBuilder) {
		m.WriteUint(7)
		m.WriteInt(0)
		m.WriteInt(0)
	})
	c.request(4, 6, nil)
	loop.settle(t)

	// Drop the pool and the buffer while the committed lock is live.
	c.request(6, 1, nil) // wl_shm_pool.destroy
	c.request(7, 0, nil) // wl_buffer.destroy
	loop.settle(t)

	require.NotNil(t, pool.mmap)
	ids := reg.Surfaces()
	require.Len(t, ids, 1)
	s, err := reg.Surface(ids[0])
	require.NoError(t, err)
	require.NotNil(t, s.Content())

	// The surface's destruction releases the last lock and with it
	// the mapping.
	c.request(4, 0, nil) // wl_surface.destroy
	loop.settle(t)
	require.Nil(t, pool.mmap)
}

func TestProtocolViolationDropsOnlyThatClient(t *testing.T) {
	reg, mgr, loop, _ := newTestManager(t)

	good := dial(t, mgr)
	goodGlobals := good.connect(loop, mgr)
	good.mapSurface(t, loop, goodGlobals, 3, 4, 4)
	require.Empty(t, loop.errs)

	bad := dial(t, mgr)
	bad.connect(loop, mgr)
	require.Equal(t, 2, mgr.Sessions())

	// A request for an object that was never created.
	bad.request(99, 0, nil)
	loop.runUntil(t, func() bool { return mgr.Sessions() == 1 })

	// The offender got a display.error first.
	msg := bad.mustRead()
	require.Equal(t, uint32(1), msg.Sender())
	require.Equal(t, uint16(0), msg.Op())
	require.Equal(t, uint32(99), msg.ReadUint())

	require.NotEmpty(t, loop.errs)

	// The well-behaved client's surface is untouched.
	require.Len(t, reg.Surfaces(), 1)
}

func TestDisconnectCascadesToSurfaces(t *testing.T) {
	reg, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)

	c.mapSurface(t, loop, globals, 3, 4, 4)
	c.mapSurface(t, loop, globals, 20, 8, 8)
	require.Len(t, reg.Surfaces(), 2)
	reg.Flush()

	c.conn.Close()
	loop.runUntil(t, func() bool { return mgr.Sessions() == 0 })

	require.Empty(t, reg.Surfaces())

	var unmapped int
	for _, d := range reg.Flush() {
		if d.Kind == registry.SurfaceUnmapped {
			unmapped++
		}
	}
	require.Equal(t, 2, unmapped)
}

func TestUnknownOpcodeReportsInvalidMethod(t *testing.T) {
	_, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	c.connect(loop, mgr)

	// wl_display has no opcode 9.
	c.request(1, 9, nil)
	loop.runUntil(t, func() bool { return mgr.Sessions() == 0 })

	msg := c.mustRead()
	require.Equal(t, uint32(1), msg.Sender())
	require.Equal(t, uint16(0), msg.Op())
	msg.ReadUint() // offending object
	require.Equal(t, uint32(errInvalidMethod), msg.ReadUint())
}

func TestSyncFiresCallback(t *testing.T) {
	_, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	loop.runUntil(t, func() bool { return mgr.Sessions() > 0 })

	c.request(1, 0, func(m *wire.MessageBuilder) { m.WriteUint(5) }) // sync
	loop.settle(t)

	done := c.mustRead()
	require.Equal(t, uint32(5), done.Sender())
	require.Equal(t, uint16(0), done.Op())

	deleted := c.mustRead()
	require.Equal(t, uint32(1), deleted.Sender())
	require.Equal(t, uint16(1), deleted.Op())
	require.Equal(t, uint32(5), deleted.ReadUint())
}

func TestPointerEventsReachBoundPointer(t *testing.T) {
	reg, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)
	c.mapSurface(t, loop, globals, 3, 4, 4)

	c.request(2, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(globals["wl_seat"])
		m.WriteString("wl_seat")
		m.WriteUint(7)
		m.WriteUint(10)
	})
	c.request(10, 0, func(m *wire.MessageBuilder) { m.WriteUint(11) }) // get_pointer
	loop.settle(t)

	c.mustRead() // shm format
	c.mustRead() // shm format
	caps := c.mustRead()
	require.Equal(t, uint32(10), caps.Sender())
	require.Equal(t, uint16(0), caps.Op())
	name := c.mustRead()
	require.Equal(t, uint16(1), name.Op())

	sid := reg.Surfaces()[0]
	loop.submit(func() error {
		mgr.PointerFocusChanged(registry.SurfaceID{}, sid, image.Pt(1, 2))
		mgr.PointerMotion(sid, 55, image.Pt(2, 3))
		mgr.PointerButton(sid, 56, 0x110, 1)
		return nil
	})
	loop.settle(t)

	enter := c.mustRead()
	require.Equal(t, uint32(11), enter.Sender())
	require.Equal(t, uint16(0), enter.Op())
	enter.ReadUint() // serial
	require.Equal(t, uint32(4), enter.ReadUint(), "surface the pointer entered")
	require.Equal(t, 1, enter.ReadFixed().Int())
	require.Equal(t, 2, enter.ReadFixed().Int())
	require.NoError(t, enter.Err())

	motion := c.mustRead()
	require.Equal(t, uint16(2), motion.Op())
	require.Equal(t, uint32(55), motion.ReadUint())
	require.Equal(t, 2, motion.ReadFixed().Int())
	require.Equal(t, 3, motion.ReadFixed().Int())
	require.NoError(t, motion.Err())

	button := c.mustRead()
	require.Equal(t, uint16(3), button.Op())
	button.ReadUint() // serial
	require.Equal(t, uint32(56), button.ReadUint())
	require.Equal(t, uint32(0x110), button.ReadUint())
	require.Equal(t, uint32(1), button.ReadUint())
	require.NoError(t, button.Err())
	require.Empty(t, loop.errs)
}

func TestReleasedPointerGetsNoEvents(t *testing.T) {
	reg, mgr, loop, _ := newTestManager(t)
	c := dial(t, mgr)
	globals := c.connect(loop, mgr)
	c.mapSurface(t, loop, globals, 3, 4, 4)

	c.request(2, 0, func(m *wire.MessageBuilder) {
		m.WriteUint(globals["wl_seat"])
		m.WriteString("wl_seat")
		m.WriteUint(7)
		m.WriteUint(10)
	})
	c.request(10, 0, func(m *wire.MessageBuilder) { m.WriteUint(11) })
	c.request(11, 1, nil) // release
	loop.settle(t)

	c.mustRead() // shm format
	c.mustRead() // shm format
	c.mustRead() // capabilities
	c.mustRead() // name

	sid := reg.Surfaces()[0]
	loop.submit(func() error {
		mgr.PointerMotion(sid, 55, image.Pt(1, 1))
		return nil
	})
	loop.settle(t)

	// The next event must be the delete_id for the released pointer,
	// not a motion.
	msg := c.mustRead()
	require.Equal(t, uint32(1), msg.Sender())
	require.Equal(t, uint16(1), msg.Op())
	require.Equal(t, uint32(11), msg.ReadUint())
	require.Empty(t, loop.errs)
}
