// Package ipc implements the listener and per-connection handler (C5):
// it binds the local-socket endpoint, accepts connections in an
// unbounded loop, and services each one as a strict sequence of framed
// request/response pairs.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/serialite/serialite/internal/id"
	"github.com/serialite/serialite/internal/metrics"
	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/wire"
)

// Router is the dispatch dependency a Listener forwards requests to. It
// is satisfied by *router.Router; the interface exists so listener tests
// can substitute a stub.
type Router interface {
	Dispatch(req *protocol.Request) protocol.Response
}

// Listener owns the bound local-socket endpoint.
type Listener struct {
	ln     net.Listener
	router Router
}

// Listen binds a Unix-domain socket at socketPath, removing a stale
// socket file left behind by a prior process first. A non-socket file
// already at the path is left alone and reported as an error, matching
// the teacher's removeStaleSocket/hub.Serve guard.
func Listen(socketPath string, router Router) (*Listener, error) {
	if err := removeStaleSocket(socketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("ipc: chmod %s: %w", socketPath, err)
	}

	return &Listener{ln: ln, router: router}, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ipc: stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("ipc: %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ipc: remove stale socket %s: %w", path, err)
	}
	return nil
}

// Addr returns the bound socket address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until ctx is canceled or Close is called,
// servicing each on its own goroutine. A cancellation that arrives while
// Accept is blocked is delivered by closing the listener, which causes
// Accept to return an error Serve recognizes as a clean shutdown.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("ipc: accept: %w", err)
			}
		}
		connID := id.Generate()
		go l.handleConn(conn, connID)
	}
}

// handleConn services one connection as a strict sequence of
// request/response pairs (spec §4.5): read a frame, parse it, dispatch
// through the router, write the framed reply, and close the connection
// only on EOF, a protocol fault, or a Shutdown reply.
func (l *Listener) handleConn(conn net.Conn, connID string) {
	defer conn.Close()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		payload, err := wire.ReadFrame(r)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Clean disconnect at a frame boundary — normal.
			case errors.Is(err, wire.ErrMessageTooLarge):
				slog.Debug("ipc: oversized frame, dropping connection", "conn", connID)
			default:
				slog.Debug("ipc: frame read error, dropping connection", "conn", connID, "err", err)
			}
			return
		}
		metrics.FrameSizeBytes.WithLabelValues("read").Observe(float64(len(payload)))

		req, parseErr := protocol.ParseRequest(payload)
		if parseErr != nil {
			// Protocol errors keep the connection open — the next frame
			// may be well-formed (spec §4.5 step 2).
			if err := l.writeResponse(w, connID, protocol.Error(parseErr.Error())); err != nil {
				return
			}
			continue
		}

		resp := l.router.Dispatch(req)
		if err := l.writeResponse(w, connID, resp); err != nil {
			return
		}

		if req.Type == protocol.RequestShutdown {
			return
		}
	}
}

func (l *Listener) writeResponse(w *bufio.Writer, connID string, resp protocol.Response) error {
	payload, err := resp.Marshal()
	if err != nil {
		slog.Error("ipc: failed to marshal response", "conn", connID, "err", err)
		return err
	}
	metrics.FrameSizeBytes.WithLabelValues("write").Observe(float64(len(payload)))

	if err := wire.WriteFrame(w, payload); err != nil {
		if errors.Is(err, wire.ErrMessageTooLarge) {
			slog.Error("ipc: response exceeds max message size, dropping connection without reply", "conn", connID)
		} else {
			slog.Debug("ipc: write error, dropping connection", "conn", connID, "err", err)
		}
		return err
	}
	return nil
}
