package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client talks to a running compositor's control socket.
type Client struct {
	path    string
	timeout time.Duration
}

func NewClient(path string) *Client {
	return &Client{path: path, timeout: 5 * time.Second}
}

func (c *Client) do(op string, args any) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to compositor: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	req := Request{Op: op}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		req.Args = raw
	}
	out, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("compositor: %v", resp.Error)
	}
	return resp.Data, nil
}

// Outputs lists the compositor's outputs.
func (c *Client) Outputs() ([]OutputInfo, error) {
	data, err := c.do("list_outputs", nil)
	if err != nil {
		return nil, err
	}
	var infos []OutputInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("parse outputs: %w", err)
	}
	return infos, nil
}

// MapImage shows an image file as a static surface.
func (c *Client) MapImage(args MapImageArgs) (*MapImageData, error) {
	data, err := c.do("map_image", args)
	if err != nil {
		return nil, err
	}
	var md MapImageData
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse map_image reply: %w", err)
	}
	return &md, nil
}

// Quit asks the compositor to exit.
func (c *Client) Quit() error {
	_, err := c.do("quit", nil)
	return err
}
