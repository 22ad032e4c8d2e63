package wire

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/argentwm/argent/internal/set"
)

func runtimeDir() string {
	if dir, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok {
		return dir
	}
	return fmt.Sprintf("/var/run/user/%v", os.Getuid())
}

// SocketPath determines the path of the Wayland socket named by
// $WAYLAND_DISPLAY, defaulting to wayland-0. It does not check that
// anything is listening there.
func SocketPath() string {
	v, ok := os.LookupEnv("WAYLAND_DISPLAY")
	if !ok {
		v = "wayland-0"
	}
	if filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(runtimeDir(), v)
}

// PathFor returns the socket path for a Wayland display name.
func PathFor(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(runtimeDir(), name)
}

// NewSocketPath picks an unused wayland-N socket path in the runtime
// directory for a new compositor to listen on.
func NewSocketPath() (string, error) {
	dir := runtimeDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	taken := make(set.Set[int], len(entries))
	for _, ent := range entries {
		after, ok := strings.CutPrefix(ent.Name(), "wayland-")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(after, 10, 0)
		if err != nil {
			continue
		}
		taken.Add(int(n))
	}

	var num int
	for taken.Has(num) {
		num++
	}
	return filepath.Join(dir, fmt.Sprintf("wayland-%v", num)), nil
}

// Listen opens a listening socket at path, removing a stale socket
// file if one is left over from a previous run.
func Listen(path string) (*net.UnixListener, error) {
	os.Remove(path)
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return lis.(*net.UnixListener), nil
}

// Conn is one Wayland connection. Messages are read and written whole;
// the connection itself holds no protocol state.
type Conn struct {
	conn *net.UnixConn
}

// NewConn wraps c. Close the returned Conn instead of c afterwards.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{conn: c}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
