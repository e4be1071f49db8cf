package ipc_test

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialite/serialite/internal/ipc"
	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/wire"
	"github.com/serialite/serialite/internal/wireclient"
)

type stubRouter struct {
	responses map[protocol.RequestType]protocol.Response
}

func (s *stubRouter) Dispatch(req *protocol.Request) protocol.Response {
	if req.Type == protocol.RequestShutdown {
		return protocol.OkShutdown()
	}
	if resp, ok := s.responses[req.Type]; ok {
		return resp
	}
	return protocol.OkPing("test", "x.db", 0)
}

func startListener(t *testing.T, router ipc.Router) (socketPath string, stop func()) {
	t.Helper()
	socketPath = filepath.Join(t.TempDir(), "serialited.sock")

	l, err := ipc.Listen(socketPath, router)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Serve(ctx)
		close(done)
	}()

	return socketPath, func() {
		cancel()
		<-done
	}
}

func TestListener_RoundTripsPing(t *testing.T) {
	socketPath, stop := startListener(t, &stubRouter{})
	defer stop()

	client, err := wireclient.Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Ping("galaxy.db")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestListener_MalformedJSONKeepsConnectionOpen(t *testing.T) {
	socketPath, stop := startListener(t, &stubRouter{})
	defer stop()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, []byte("not json")))

	payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	var resp1 protocol.Response
	require.NoError(t, json.Unmarshal(payload, &resp1))
	assert.Equal(t, "error", resp1.Status)

	reqPayload, err := json.Marshal(protocol.Request{Type: protocol.RequestPing, DB: "a.db"})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, reqPayload))

	payload2, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	var resp2 protocol.Response
	require.NoError(t, json.Unmarshal(payload2, &resp2))
	assert.Equal(t, "ok", resp2.Status, "the connection must survive a malformed frame")
}

func TestListener_ShutdownClosesConnectionAfterReply(t *testing.T) {
	socketPath, stop := startListener(t, &stubRouter{})
	defer stop()

	client, err := wireclient.Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Shutdown()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	_, err = client.Ping("a.db")
	assert.Error(t, err, "the daemon must have closed the connection after Shutdown")
}
