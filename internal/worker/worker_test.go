package worker_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/worker"
)

func spawn(t *testing.T) (*worker.Worker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.db")
	w := worker.Spawn("t.db", path)
	t.Cleanup(func() {
		select {
		case <-w.Done():
		case <-time.After(time.Second):
		}
	})
	return w, path
}

func send(t *testing.T, w *worker.Worker, req *protocol.Request) protocol.Response {
	t.Helper()
	replyCh, err := w.Send(req)
	require.NoError(t, err)
	select {
	case resp := <-replyCh:
		return resp
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker reply")
		return protocol.Response{}
	}
}

func TestWorker_PingOnFreshDatabaseReportsRevZero(t *testing.T) {
	w, path := spawn(t)
	resp := send(t, w, &protocol.Request{Type: protocol.RequestPing, DB: "t.db"})
	require.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Rev)
	assert.Equal(t, int64(0), *resp.Rev)
	assert.Equal(t, path, resp.DBPath)
}

func TestWorker_ExecBatchBumpsRevisionByOne(t *testing.T) {
	w, _ := spawn(t)

	resp := send(t, w, &protocol.Request{
		Type: protocol.RequestExecBatch,
		DB:   "t.db",
		Stmts: []protocol.Statement{
			{SQL: "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"},
			{SQL: "INSERT INTO widgets (name) VALUES (?)", Params: []interface{}{"sprocket"}},
		},
	})
	require.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Rev)
	assert.Equal(t, int64(1), *resp.Rev)
	require.NotNil(t, resp.RowsAffected)
	assert.Equal(t, uint64(1), *resp.RowsAffected, "CREATE TABLE affects 0 rows; only the INSERT counts")

	ping := send(t, w, &protocol.Request{Type: protocol.RequestPing, DB: "t.db"})
	assert.Equal(t, int64(1), *ping.Rev)
}

func TestWorker_ExecBatchAtomicRollsBackOnStatementFailure(t *testing.T) {
	w, _ := spawn(t)

	send(t, w, &protocol.Request{
		Type:  protocol.RequestExecBatch,
		DB:    "t.db",
		Stmts: []protocol.Statement{{SQL: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)"}},
	})

	resp := send(t, w, &protocol.Request{
		Type: protocol.RequestExecBatch,
		DB:   "t.db",
		Stmts: []protocol.Statement{
			{SQL: "INSERT INTO widgets (id) VALUES (99)"},
			{SQL: "INSERT INTO widge FRM BOGUS SYNTAX"},
		},
	})
	require.Equal(t, "error", resp.Status)
	assert.Equal(t, protocol.ErrCodeSQLError, resp.Code)
	assert.Contains(t, resp.Message, "Statement 1:")

	ping := send(t, w, &protocol.Request{Type: protocol.RequestPing, DB: "t.db"})
	assert.Equal(t, int64(1), *ping.Rev, "failed batch must not bump rev")

	count := send(t, w, &protocol.Request{
		Type:  protocol.RequestExecBatch,
		DB:    "t.db",
		Stmts: []protocol.Statement{{SQL: "SELECT count(*) FROM widgets WHERE id = 99"}},
	})
	require.Equal(t, "ok", count.Status)
	assert.Equal(t, uint64(0), *count.RowsAffected, "the rolled-back insert must have no visible effect")
}

func TestWorker_MaintenanceCycle(t *testing.T) {
	w, _ := spawn(t)

	send(t, w, &protocol.Request{
		Type:  protocol.RequestExecBatch,
		DB:    "t.db",
		Stmts: []protocol.Statement{{SQL: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)"}},
	})

	prep := send(t, w, &protocol.Request{Type: protocol.RequestPrepareForMaintenance, DB: "t.db"})
	require.Equal(t, "ok", prep.Status)
	assert.True(t, *prep.Checkpointed)

	closeResp := send(t, w, &protocol.Request{Type: protocol.RequestCloseDatabase, DB: "t.db"})
	require.Equal(t, "ok", closeResp.Status)
	assert.True(t, *closeResp.Closed)

	blocked := send(t, w, &protocol.Request{
		Type:  protocol.RequestExecBatch,
		DB:    "t.db",
		Stmts: []protocol.Statement{{SQL: "INSERT INTO widgets DEFAULT VALUES"}},
	})
	require.Equal(t, "error", blocked.Status)
	assert.Equal(t, protocol.ErrCodeDatabaseClosed, blocked.Code)

	reopen := send(t, w, &protocol.Request{Type: protocol.RequestReopenDatabase, DB: "t.db"})
	require.Equal(t, "ok", reopen.Status)
	assert.True(t, *reopen.Reopened)
	assert.Equal(t, int64(1), *reopen.Rev, "rev is preserved across the maintenance cycle")
}

func TestWorker_PrepareForMaintenanceTwiceErrors(t *testing.T) {
	w, _ := spawn(t)
	send(t, w, &protocol.Request{Type: protocol.RequestPrepareForMaintenance, DB: "t.db"})

	resp := send(t, w, &protocol.Request{Type: protocol.RequestPrepareForMaintenance, DB: "t.db"})
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, resp.Code, "validation-style 'already preparing' is an uncoded error")
}

func TestWorker_ReopenWhileOpenErrors(t *testing.T) {
	w, _ := spawn(t)
	resp := send(t, w, &protocol.Request{Type: protocol.RequestReopenDatabase, DB: "t.db"})
	assert.Equal(t, "error", resp.Status)
}

func TestWorker_EmptyBatchRejected(t *testing.T) {
	w, _ := spawn(t)
	resp := send(t, w, &protocol.Request{Type: protocol.RequestExecBatch, DB: "t.db", Stmts: nil})
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, resp.Code)
}
