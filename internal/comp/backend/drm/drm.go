// Package drm implements the hardware backend on top of kernel
// mode-setting with dumb buffers. It scans the card's connectors,
// programs each connected one with its preferred mode, and presents
// by copying composited frames into the scanout buffer.
//
// Vsync is approximated with a per-output ticker at the mode's refresh
// rate rather than page-flip completion events; scanout tearing is
// acceptable for the workloads this backend targets.
package drm

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/ev"
	"github.com/argentwm/argent/internal/set"
	"github.com/argentwm/argent/internal/shm"
	"golang.org/x/sys/unix"
)

type crtc struct {
	info     backend.OutputInfo
	crtcID   uint32
	connID   uint32
	fbID     uint32
	handle   uint32
	pitch    uint32
	mmap     shm.Mmap
	stop     chan struct{}
	saved    modeCRTC
	mode     modeInfo
}

// Backend drives one DRM card.
type Backend struct {
	mu     sync.Mutex
	card   *os.File
	crtcs  map[string]*crtc
	events *ev.Queue[backend.Event]
	closed bool
}

// Open initializes the card at path, defaulting to /dev/dri/card0.
// It requires mode-setting rights on the device (a bare VT or a
// session handed over by a seat manager).
func Open(path string) (*Backend, error) {
	if path == "" {
		path = "/dev/dri/card0"
	}
	card, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", path, err)
	}

	b := Backend{
		card:   card,
		crtcs:  make(map[string]*crtc),
		events: ev.New[backend.Event](),
	}
	if err := b.scan(); err != nil {
		card.Close()
		return nil, err
	}
	if len(b.crtcs) == 0 {
		card.Close()
		return nil, fmt.Errorf("%v: no connected outputs", path)
	}

	for _, c := range b.crtcs {
		go b.vsync(c)
	}
	return &b, nil
}

func (b *Backend) scan() error {
	var res modeCardRes
	if err := ioctl(b.card, reqModeGetResources, unsafe.Pointer(&res)); err != nil {
		return fmt.Errorf("get resources: %w", err)
	}

	connectors := make([]uint32, res.countConnectors)
	crtcs := make([]uint32, res.countCRTCs)
	if len(connectors) > 0 {
		res.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	}
	if len(crtcs) > 0 {
		res.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	res.countFBs = 0
	res.countEncoders = 0
	if err := ioctl(b.card, reqModeGetResources, unsafe.Pointer(&res)); err != nil {
		return fmt.Errorf("get resources: %w", err)
	}

	used := make(set.Set[uint32])
	var pos int
	for _, connID := range connectors {
		conn, modes, err := b.connector(connID)
		if err != nil {
			return err
		}
		if conn.connection != connectionConnected || len(modes) == 0 {
			continue
		}

		// Prefer the CRTC the connector's current encoder is already
		// driving; fall back to the first free one.
		crtcID := b.currentCRTC(conn)
		if crtcID == 0 || used.Has(crtcID) {
			crtcID = 0
			for _, id := range crtcs {
				if !used.Has(id) {
					crtcID = id
					break
				}
			}
		}
		if crtcID == 0 {
			break
		}

		mode := preferredMode(modes)
		c, err := b.setup(conn, mode, crtcID, pos)
		if err != nil {
			return err
		}
		used.Add(crtcID)
		pos += int(mode.hdisplay)
		b.crtcs[c.info.Name] = c
	}
	return nil
}

// currentCRTC resolves the CRTC attached to the connector's active
// encoder, or 0 if the connector is idle.
func (b *Backend) currentCRTC(conn *modeGetConnector) uint32 {
	if conn.encoderID == 0 {
		return 0
	}
	enc := modeGetEncoder{encoderID: conn.encoderID}
	if err := ioctl(b.card, reqModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return 0
	}
	return enc.crtcID
}

func (b *Backend) connector(id uint32) (*modeGetConnector, []modeInfo, error) {
	conn := modeGetConnector{connectorID: id}
	if err := ioctl(b.card, reqModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, nil, fmt.Errorf("get connector %v: %w", id, err)
	}

	modes := make([]modeInfo, conn.countModes)
	if len(modes) > 0 {
		conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	}
	conn.countProps = 0
	conn.countEncoders = 0
	if err := ioctl(b.card, reqModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, nil, fmt.Errorf("get connector %v modes: %w", id, err)
	}
	return &conn, modes[:conn.countModes], nil
}

func preferredMode(modes []modeInfo) modeInfo {
	for _, m := range modes {
		if m.typ&modeTypePreferred != 0 {
			return m
		}
	}
	return modes[0]
}

func connectorName(conn *modeGetConnector) string {
	typ, ok := connectorTypeNames[conn.connectorType]
	if !ok {
		typ = "Unknown"
	}
	return fmt.Sprintf("%v-%v", typ, conn.connectorTypeID)
}

func (b *Backend) setup(conn *modeGetConnector, mode modeInfo, crtcID uint32, x int) (*crtc, error) {
	create := modeCreateDumb{
		height: uint32(mode.vdisplay),
		width:  uint32(mode.hdisplay),
		bpp:    32,
	}
	if err := ioctl(b.card, reqModeCreateDumb, unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("create dumb buffer: %w", err)
	}

	fb := modeFBCmd{
		width:  create.width,
		height: create.height,
		pitch:  create.pitch,
		bpp:    32,
		depth:  24,
		handle: create.handle,
	}
	if err := ioctl(b.card, reqModeAddFB, unsafe.Pointer(&fb)); err != nil {
		return nil, fmt.Errorf("add framebuffer: %w", err)
	}

	mapReq := modeMapDumb{handle: create.handle}
	if err := ioctl(b.card, reqModeMapDumb, unsafe.Pointer(&mapReq)); err != nil {
		return nil, fmt.Errorf("map dumb buffer: %w", err)
	}
	mmap, err := shm.MapAt(b.card, int64(mapReq.offset), int(create.size), unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		return nil, fmt.Errorf("mmap scanout: %w", err)
	}

	c := crtc{
		crtcID: crtcID,
		connID: conn.connectorID,
		fbID:   fb.fbID,
		handle: create.handle,
		pitch:  create.pitch,
		mmap:   mmap,
		stop:   make(chan struct{}),
		mode:   mode,
		info: backend.OutputInfo{
			Name:    connectorName(conn),
			Make:    "drm",
			Model:   string(mode.name[:nameLen(mode.name)]),
			Width:   int(mode.hdisplay),
			Height:  int(mode.vdisplay),
			Refresh: int(mode.vrefresh) * 1000,
			PhysW:   int(conn.mmWidth),
			PhysH:   int(conn.mmHeight),
			X:       x,
			Scale:   1,
		},
	}

	c.saved = modeCRTC{crtcID: crtcID}
	if err := ioctl(b.card, reqModeGetCRTC, unsafe.Pointer(&c.saved)); err != nil {
		return nil, fmt.Errorf("save crtc: %w", err)
	}

	connID := conn.connectorID
	set := modeCRTC{
		setConnectorsPtr: uint64(uintptr(unsafe.Pointer(&connID))),
		countConnectors:  1,
		crtcID:           crtcID,
		fbID:             fb.fbID,
		modeValid:        1,
		mode:             mode,
	}
	if err := ioctl(b.card, reqModeSetCRTC, unsafe.Pointer(&set)); err != nil {
		return nil, fmt.Errorf("set crtc mode: %w", err)
	}
	return &c, nil
}

func nameLen(name [32]byte) int {
	for i, b := range name {
		if b == 0 {
			return i
		}
	}
	return len(name)
}

func (b *Backend) vsync(c *crtc) {
	tick := time.NewTicker(time.Second * 1000 / time.Duration(c.info.Refresh))
	defer tick.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			b.events.Add() <- backend.Frame{Output: c.info.Name}
		}
	}
}

func (b *Backend) Outputs() []backend.OutputInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]backend.OutputInfo, 0, len(b.crtcs))
	for _, c := range b.crtcs {
		infos = append(infos, c.info)
	}
	return infos
}

func (b *Backend) Events() *ev.Queue[backend.Event] {
	return b.events
}

// Present copies the composited frame into the output's scanout
// buffer, converting RGBA to the XRGB layout scanout expects.
func (b *Backend) Present(name string, frame *image.RGBA) error {
	b.mu.Lock()
	c, ok := b.crtcs[name]
	b.mu.Unlock()
	if !ok {
		return backend.PresentationError{Output: name, Cause: fmt.Errorf("output removed")}
	}

	w := min(frame.Rect.Dx(), c.info.Width)
	h := min(frame.Rect.Dy(), c.info.Height)
	for y := 0; y < h; y++ {
		src := frame.Pix[y*frame.Stride:]
		dst := c.mmap[y*int(c.pitch):]
		for x := 0; x < w; x++ {
			dst[x*4+0] = src[x*4+2] // B
			dst[x*4+1] = src[x*4+1] // G
			dst[x*4+2] = src[x*4+0] // R
			dst[x*4+3] = 0xFF
		}
	}
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, c := range b.crtcs {
		close(c.stop)

		// Restore whatever was scanned out before we took over.
		if c.saved.modeValid != 0 {
			connID := c.connID
			c.saved.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connID)))
			c.saved.countConnectors = 1
			ioctl(b.card, reqModeSetCRTC, unsafe.Pointer(&c.saved))
		}

		c.mmap.Unmap()
		fbID := c.fbID
		ioctl(b.card, reqModeRmFB, unsafe.Pointer(&fbID))
		destroy := modeDestroyDumb{handle: c.handle}
		ioctl(b.card, reqModeDestroyDumb, unsafe.Pointer(&destroy))
	}
	b.events.Stop()
	return b.card.Close()
}
