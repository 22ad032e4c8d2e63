// Package control implements the compositor's side channel: a unix
// socket next to the Wayland socket speaking one JSON object per line.
// The collaborator commands (argent outputs, argent img) use it.
package control

import (
	"encoding/json"
	"fmt"
)

// SocketPath derives the control socket path from the Wayland socket
// path.
func SocketPath(waylandSocket string) string {
	return waylandSocket + ".ctl"
}

// Request is one client command.
type Request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response is the server's reply.
type Response struct {
	Status string          `json:"status"` // "ok" or "error"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OutputInfo describes one output as seen on the control socket.
type OutputInfo struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Refresh  int    `json:"refresh_mhz"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Scale    int    `json:"scale"`
	Enabled  bool   `json:"enabled"`
	Surfaces int    `json:"surfaces"`
}

// MapImageArgs asks the compositor to decode an image file and show it
// as a static surface.
type MapImageArgs struct {
	Path   string `json:"path"`
	Output string `json:"output,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// MapImageData reports where the image ended up.
type MapImageData struct {
	Surface uint64 `json:"surface"`
	Output  string `json:"output"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// OK builds a success response carrying data.
func OK(data any) *Response {
	if data == nil {
		return &Response{Status: "ok"}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Error(fmt.Errorf("marshal response: %w", err))
	}
	return &Response{Status: "ok", Data: raw}
}

// Error builds a failure response.
func Error(err error) *Response {
	return &Response{Status: "error", Error: err.Error()}
}
