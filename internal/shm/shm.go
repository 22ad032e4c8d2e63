// Package shm wraps the memory mapping helpers the compositor uses
// for client buffer pools and scanout buffers.
package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create returns an anonymous shared memory file, for tests and
// clients that need to hand a pool to the compositor.
func Create() (*os.File, error) {
	fd, err := unix.MemfdCreate("argent-shm", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	return os.NewFile(uintptr(fd), "argent-shm"), nil
}

// Mmap is a mapped region. The zero value is unusable.
type Mmap []byte

// Map maps size bytes of file from its start.
func Map(file *os.File, size int, prot int) (Mmap, error) {
	return MapAt(file, 0, size, prot)
}

// MapAt maps size bytes of file at the given offset.
func MapAt(file *os.File, offset int64, size int, prot int) (mmap Mmap, err error) {
	sc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}

	cerr := sc.Control(func(fd uintptr) {
		m, merr := unix.Mmap(int(fd), offset, size, prot, unix.MAP_SHARED)
		mmap, err = Mmap(m), merr
	})
	if cerr != nil {
		return nil, cerr
	}
	return mmap, err
}

func (mmap Mmap) Unmap() error {
	if mmap == nil {
		return nil
	}
	return unix.Munmap(mmap)
}
