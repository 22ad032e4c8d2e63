package session

import (
	"fmt"
	"image"
	"os"

	"deedles.dev/ximage/format"
	"github.com/argentwm/argent/internal/comp/registry"
	"github.com/argentwm/argent/internal/shm"
	"github.com/argentwm/argent/wire"
	"golang.org/x/sys/unix"
)

// wl_shm, wl_shm_pool, and wl_buffer. Pools are client memory mapped
// read-only into the compositor; buffers are windows into a pool.

const (
	shmFormatArgb8888 = 0
	shmFormatXrgb8888 = 1
)

type shmResource struct {
	base
	sess *Session
}

func (s *shmResource) Interface() string { return shmInterface }

func (s *shmResource) MethodName(op uint16) string {
	if op == 0 {
		return "create_pool"
	}
	return "unknown"
}

func (s *shmResource) sendFormats() {
	for _, f := range []uint32{shmFormatArgb8888, shmFormatXrgb8888} {
		msg := wire.NewMessage(s, 0)
		msg.Method = "format"
		msg.Args = []any{f}
		msg.WriteUint(f)
		s.sess.send(msg)
	}
}

func (s *shmResource) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() != 0 {
		return wire.UnknownOpError{Interface: s.Interface(), Op: msg.Op()}
	}

	id := msg.ReadUint()
	file := msg.ReadFile()
	size := msg.ReadInt()
	if err := msg.Err(); err != nil {
		return err
	}
	if size <= 0 {
		file.Close()
		return fmt.Errorf("create_pool with size %v", size)
	}

	mmap, err := shm.Map(file, int(size), unix.PROT_READ)
	if err != nil {
		file.Close()
		return fmt.Errorf("map pool: %w", err)
	}

	pool := shmPoolResource{sess: s.sess, file: file, mmap: mmap}
	s.sess.store.add(id, &pool)
	return nil
}

type shmPoolResource struct {
	base
	sess *Session
	file *os.File
	mmap shm.Mmap
	refs int
}

func (p *shmPoolResource) Interface() string { return "wl_shm_pool" }

func (p *shmPoolResource) MethodName(op uint16) string {
	switch op {
	case 0:
		return "create_buffer"
	case 1:
		return "destroy"
	case 2:
		return "resize"
	}
	return "unknown"
}

func (p *shmPoolResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0: // create_buffer
		id := msg.ReadUint()
		offset := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		stride := msg.ReadInt()
		pixfmt := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		var xf format.Format
		switch pixfmt {
		case shmFormatArgb8888:
			xf = format.ARGB8888
		case shmFormatXrgb8888:
			xf = format.XRGB8888
		default:
			return fmt.Errorf("unsupported shm format %#x", pixfmt)
		}
		if width <= 0 || height <= 0 || stride != width*4 {
			return fmt.Errorf("bad buffer geometry %vx%v stride %v", width, height, stride)
		}
		end := int64(offset) + int64(stride)*int64(height)
		if offset < 0 || end > int64(len(p.mmap)) {
			return fmt.Errorf("buffer exceeds pool: offset %v size %v pool %v", offset, end-int64(offset), len(p.mmap))
		}

		buf := bufferResource{
			sess:   p.sess,
			pool:   p,
			format: xf,
			rect:   image.Rect(0, 0, int(width), int(height)),
			offset: int(offset),
		}
		p.refs++
		p.sess.store.add(id, &buf)
		return nil

	case 1: // destroy
		p.sess.destroyObject(p.ID())
		p.release()
		return nil

	case 2: // resize
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if int(size) < len(p.mmap) {
			return fmt.Errorf("shrinking pool from %v to %v", len(p.mmap), size)
		}
		mmap, err := shm.Map(p.file, int(size), unix.PROT_READ)
		if err != nil {
			return fmt.Errorf("remap pool: %w", err)
		}
		p.mmap.Unmap()
		p.mmap = mmap
		return nil
	}
	return wire.UnknownOpError{Interface: p.Interface(), Op: msg.Op()}
}

// release drops one reference. The mapping lives until the pool object
// and every buffer created from it are gone.
func (p *shmPoolResource) release() {
	if p.refs > 0 {
		p.refs--
		return
	}
	p.mmap.Unmap()
	p.mmap = nil
	p.file.Close()
}

type bufferResource struct {
	base
	sess   *Session
	pool   *shmPoolResource
	format format.Format
	rect   image.Rectangle
	offset int

	locks     int
	destroyed bool
}

func (b *bufferResource) Interface() string { return "wl_buffer" }

func (b *bufferResource) MethodName(op uint16) string {
	if op == 0 {
		return "destroy"
	}
	return "unknown"
}

func (b *bufferResource) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() != 0 {
		return wire.UnknownOpError{Interface: b.Interface(), Op: msg.Op()}
	}
	b.destroyed = true
	b.sess.destroyObject(b.ID())
	if b.locks == 0 {
		b.pool.release()
	}
	return nil
}

// lock hands the buffer's pixels to the registry. The returned
// Release sends wl_buffer.release once the compositor is done
// reading, always on the control loop. A buffer can be locked more
// than once when a client commits it to several surfaces; the pool
// mapping outlives the last lock.
func (b *bufferResource) lock() (*registry.Buffer, image.Point, error) {
	if b.pool.mmap == nil {
		return nil, image.Point{}, fmt.Errorf("buffer pool already unmapped")
	}
	n := b.rect.Dx() * b.rect.Dy() * 4
	img := &format.Image{
		Format: b.format,
		Rect:   b.rect,
		Pix:    b.pool.mmap[b.offset : b.offset+n],
	}
	b.locks++
	buf := registry.Buffer{
		Image:   img,
		Release: b.unlock,
	}
	return &buf, b.rect.Max, nil
}

func (b *bufferResource) unlock() {
	if b.locks > 0 {
		b.locks--
	}
	if b.destroyed {
		if b.locks == 0 {
			b.pool.release()
		}
		return
	}
	msg := wire.NewMessage(b, 0)
	msg.Method = "release"
	b.sess.send(msg)
}
