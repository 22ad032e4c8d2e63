package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/argentwm/argent/internal/logging"
	"golang.org/x/sys/unix"
)

// Handler runs one request. Privileged is true when the peer's uid
// matches the compositor's.
type Handler func(req *Request, privileged bool) *Response

// Server accepts control connections and hands requests to a Handler.
// The handler is called from connection goroutines; it must do its own
// synchronization with the loop.
type Server struct {
	path    string
	lis     *net.UnixListener
	handler Handler
}

func NewServer(path string, handler Handler) (*Server, error) {
	os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	lis, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		lis.Close()
		return nil, err
	}

	s := Server{path: path, lis: lis, handler: handler}
	go s.accept()
	return &s, nil
}

func (s *Server) accept() {
	for {
		conn, err := s.lis.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Logger.Warn("control accept failed", "err", err)
			continue
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn *net.UnixConn) {
	defer conn.Close()

	priv := peerIsOwner(conn)
	scan := bufio.NewScanner(conn)
	for scan.Scan() {
		var req Request
		resp := &Response{}
		if err := json.Unmarshal(scan.Bytes(), &req); err != nil {
			resp = Error(fmt.Errorf("bad request: %w", err))
		} else {
			resp = s.handler(&req, priv)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return
		}
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// peerIsOwner checks SO_PEERCRED against our own uid.
func peerIsOwner(conn *net.UnixConn) bool {
	sc, err := conn.SyscallConn()
	if err != nil {
		return false
	}
	var cred *unix.Ucred
	cerr := sc.Control(func(fd uintptr) {
		cred, err = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if cerr != nil || err != nil || cred == nil {
		return false
	}
	return int(cred.Uid) == os.Getuid()
}

func (s *Server) Close() error {
	err := s.lis.Close()
	os.Remove(s.path)
	return err
}
