// Package wireclient is a minimal client for the daemon's wire protocol,
// grounded on original_source/cli/src/main.rs's send_request: connect,
// frame, write, read frame, parse. It exists purely so internal/ipc and
// daemon tests can drive the real protocol over a real socket end to
// end; it is not a shipped CLI (spec.md lists the CLI front-end as an
// external collaborator out of this core's scope).
package wireclient

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/wire"
)

// Client is a single connection to a daemon socket, usable for one
// strictly-ordered sequence of request/response pairs (spec §4.5).
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon listening on a Unix-domain socket at
// socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("wireclient: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes req as one framed JSON request and returns the framed JSON
// reply, decoded into a protocol.Response.
func (c *Client) Send(req protocol.Request) (protocol.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("wireclient: marshal request: %w", err)
	}
	if err := wire.WriteFrame(c.conn, payload); err != nil {
		return protocol.Response{}, fmt.Errorf("wireclient: write frame: %w", err)
	}

	respPayload, err := wire.ReadFrame(c.conn)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("wireclient: read frame: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("wireclient: unmarshal response: %w", err)
	}
	return resp, nil
}

// Ping is a convenience wrapper for a Ping request.
func (c *Client) Ping(db string) (protocol.Response, error) {
	return c.Send(protocol.Request{Type: protocol.RequestPing, DB: db})
}

// Shutdown is a convenience wrapper for a Shutdown request. The caller
// must expect the daemon to close the connection after replying.
func (c *Client) Shutdown() (protocol.Response, error) {
	return c.Send(protocol.Request{Type: protocol.RequestShutdown})
}
