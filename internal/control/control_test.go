package control

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayland-0.ctl")
	srv, err := NewServer(path, handler)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return path
}

func TestOutputsRoundtrip(t *testing.T) {
	want := []OutputInfo{
		{Name: "DP-1", Width: 1920, Height: 1080, Refresh: 60000, Scale: 1, Enabled: true, Surfaces: 2},
		{Name: "DP-2", Width: 1280, Height: 720, Refresh: 75000, Scale: 2, X: 1920},
	}
	path := startServer(t, func(req *Request, privileged bool) *Response {
		assert.Equal(t, "list_outputs", req.Op)
		assert.True(t, privileged)
		return OK(want)
	})

	got, err := NewClient(path).Outputs()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMapImageRoundtrip(t *testing.T) {
	path := startServer(t, func(req *Request, privileged bool) *Response {
		require.Equal(t, "map_image", req.Op)
		var args MapImageArgs
		require.NoError(t, json.Unmarshal(req.Args, &args))
		assert.Equal(t, "/tmp/a.png", args.Path)
		assert.Equal(t, 7, args.X)
		return OK(MapImageData{Surface: 42, Output: "DP-1", Width: 16, Height: 16})
	})

	data, err := NewClient(path).MapImage(MapImageArgs{Path: "/tmp/a.png", X: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), data.Surface)
	assert.Equal(t, "DP-1", data.Output)
}

func TestErrorResponse(t *testing.T) {
	path := startServer(t, func(req *Request, privileged bool) *Response {
		return Error(errors.New("no such output"))
	})

	_, err := NewClient(path).Outputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such output")
}

func TestQuit(t *testing.T) {
	var got string
	path := startServer(t, func(req *Request, privileged bool) *Response {
		got = req.Op
		return OK(nil)
	})

	require.NoError(t, NewClient(path).Quit())
	assert.Equal(t, "quit", got)
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayland-0.ctl")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv, err := NewServer(path, func(*Request, bool) *Response { return OK(nil) })
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, NewClient(path).Quit())
}
