// Package worker implements the per-database write-serializing task (C3):
// a single goroutine that exclusively owns one SQLite connection pool,
// services commands serially from a bounded channel, runs the
// Open/Preparing/Closed maintenance lifecycle, and self-terminates after
// an idle timeout.
package worker

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/serialite/serialite/internal/metrics"
	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/store"
	"github.com/serialite/serialite/internal/util/sanitize"
)

// maxEngineErrorLen bounds how much of a raw SQLite driver error gets
// embedded in a SQL_ERROR response. modernc.org/sqlite error strings
// sometimes echo back the offending SQL text verbatim; sanitizeEngineErr
// strips control characters (a malformed statement can contain
// newlines or worse) and caps the length so one oversized statement
// can't blow up a response frame.
const maxEngineErrorLen = 2000

func sanitizeEngineErr(err error) string {
	return sanitize.Title(err.Error(), maxEngineErrorLen)
}

// Version is reported in Ping responses.
const Version = "0.1.0"

// CommandQueueCapacity bounds the worker's inbound command channel. Once
// full, a router send blocks, applying backpressure to connection
// handlers without refusing new connections outright (spec §5).
const CommandQueueCapacity = 1000

// IdleTimeout is how long a worker waits with an empty queue and no
// inbound command before exiting.
const IdleTimeout = 5 * time.Minute

// lifecycleState is WorkerState.lifecycle from spec §3 — Open carries a
// live pool (here just db != nil), Preparing and Closed do not.
type lifecycleState int

const (
	stateClosed lifecycleState = iota
	stateOpen
	statePreparing
)

func (s lifecycleState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case statePreparing:
		return "preparing"
	default:
		return "closed"
	}
}

// ErrWorkerStopped is returned by Send when the worker has already exited
// (idle timeout or a failed open) and can no longer accept commands. The
// caller (router) must remove its handle on this error.
var ErrWorkerStopped = fmt.Errorf("worker: stopped")

type command struct {
	req   *protocol.Request
	reply chan protocol.Response
}

// Worker owns one database file end to end. All of its mutable state
// (state, db) is touched only from the run goroutine; Send and Done are
// the only methods safe to call from other goroutines.
type Worker struct {
	dbName string
	dbPath string

	cmds chan command
	done chan struct{}

	state lifecycleState
	db    *sql.DB
}

// Spawn starts a new worker for dbName at dbPath and returns immediately;
// the worker attempts to open the database in its own goroutine. A
// failed open logs and causes the worker to exit without ever servicing
// a request — callers observe this as Send returning ErrWorkerStopped.
func Spawn(dbName, dbPath string) *Worker {
	w := &Worker{
		dbName: dbName,
		dbPath: dbPath,
		cmds:   make(chan command, CommandQueueCapacity),
		done:   make(chan struct{}),
	}
	metrics.WorkersSpawnedTotal.Inc()
	go w.run()
	return w
}

// Send enqueues req and returns a channel that receives exactly one
// reply. It returns ErrWorkerStopped without enqueuing if the worker has
// already exited.
func (w *Worker) Send(req *protocol.Request) (<-chan protocol.Response, error) {
	select {
	case <-w.done:
		return nil, ErrWorkerStopped
	default:
	}
	reply := make(chan protocol.Response, 1)
	select {
	case w.cmds <- command{req: req, reply: reply}:
		return reply, nil
	case <-w.done:
		return nil, ErrWorkerStopped
	}
}

// Done is closed once the worker goroutine has exited for any reason.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := w.openInitial(); err != nil {
		slog.Error("worker: initial open failed", "db", w.dbName, "path", w.dbPath, "err", err)
		return
	}
	defer w.closePoolIfOpen()

	idleTimer := time.NewTimer(IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case cmd, ok := <-w.cmds:
			if !ok {
				return
			}
			resp := w.handle(cmd.req)
			cmd.reply <- resp
			close(cmd.reply)

			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(IdleTimeout)

		case <-idleTimer.C:
			if len(w.cmds) > 0 {
				// A racing send landed just as the timer fired; give it a
				// chance to be picked up on the next loop instead of
				// exiting out from under it.
				idleTimer.Reset(IdleTimeout)
				continue
			}
			slog.Info("worker: idle timeout, shutting down", "db", w.dbName)
			metrics.WorkerIdleShutdownsTotal.Inc()
			return
		}
	}
}

func (w *Worker) openInitial() error {
	db, err := store.Open(w.dbPath)
	if err != nil {
		return err
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return err
	}
	w.db = db
	w.state = stateOpen
	return nil
}

func (w *Worker) closePoolIfOpen() {
	if w.db == nil {
		return
	}
	if err := store.CheckpointTruncate(w.db); err != nil {
		slog.Warn("worker: checkpoint on shutdown failed", "db", w.dbName, "err", err)
	}
	_ = w.db.Close()
	w.db = nil
}

func (w *Worker) handle(req *protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.RequestPing:
		return w.handlePing()
	case protocol.RequestExecBatch:
		return w.handleExecBatch(req)
	case protocol.RequestPrepareForMaintenance:
		return w.handlePrepareForMaintenance()
	case protocol.RequestCloseDatabase:
		return w.handleCloseDatabase()
	case protocol.RequestReopenDatabase:
		return w.handleReopenDatabase()
	case protocol.RequestShutdown:
		// The router answers Shutdown directly in this design (spec §4.4);
		// a worker that somehow receives one anyway treats it as a no-op.
		return protocol.OkShutdown()
	default:
		return protocol.Error(fmt.Sprintf("worker: unsupported request type %q", req.Type))
	}
}

func stateError(state lifecycleState) protocol.Response {
	switch state {
	case statePreparing:
		return protocol.ErrorWithCode("database is preparing for maintenance", protocol.ErrCodeDatabasePreparing)
	default:
		return protocol.ErrorWithCode("database is closed", protocol.ErrCodeDatabaseClosed)
	}
}

func (w *Worker) handlePing() protocol.Response {
	if w.state != stateOpen {
		return stateError(w.state)
	}
	rev, err := store.CurrentRevision(w.db)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.OkPing(Version, w.dbPath, rev)
}

func (w *Worker) handlePrepareForMaintenance() protocol.Response {
	switch w.state {
	case stateOpen:
		if err := store.CheckpointTruncate(w.db); err != nil {
			return protocol.Error(fmt.Sprintf("checkpoint: %v", err))
		}
		_ = w.db.Close()
		w.db = nil
		w.state = statePreparing
		return protocol.OkPrepareForMaintenance(true)
	case statePreparing:
		return protocol.Error("already preparing")
	default: // stateClosed
		return protocol.ErrorWithCode("database is closed", protocol.ErrCodeDatabaseClosed)
	}
}

func (w *Worker) handleCloseDatabase() protocol.Response {
	switch w.state {
	case stateOpen:
		if err := store.CheckpointTruncate(w.db); err != nil {
			slog.Warn("worker: best-effort checkpoint before close failed", "db", w.dbName, "err", err)
		}
		_ = w.db.Close()
		w.db = nil
		w.state = stateClosed
		return protocol.OkCloseDatabase(true)
	case statePreparing:
		// Pool is already closed; nothing further to do.
		w.state = stateClosed
		return protocol.OkCloseDatabase(true)
	default: // stateClosed
		return protocol.Error("already closed")
	}
}

func (w *Worker) handleReopenDatabase() protocol.Response {
	switch w.state {
	case stateClosed:
		db, err := store.Open(w.dbPath)
		if err != nil {
			return protocol.Error(fmt.Sprintf("reopen: %v", err))
		}
		if err := store.Migrate(db); err != nil {
			_ = db.Close()
			return protocol.Error(fmt.Sprintf("reopen: %v", err))
		}
		rev, err := store.CurrentRevision(db)
		if err != nil {
			_ = db.Close()
			return protocol.Error(fmt.Sprintf("reopen: %v", err))
		}
		w.db = db
		w.state = stateOpen
		return protocol.OkReopenDatabase(true, rev)
	case stateOpen:
		return protocol.Error("already open")
	default: // statePreparing
		return protocol.Error("cannot reopen while preparing for maintenance")
	}
}

func (w *Worker) handleExecBatch(req *protocol.Request) protocol.Response {
	if w.state != stateOpen {
		return stateError(w.state)
	}
	if err := protocol.ValidateBatch(req.Stmts); err != nil {
		return protocol.Error(err.Error())
	}

	start := time.Now()
	var resp protocol.Response
	if req.Tx == protocol.TxNone {
		resp = w.execBatchNone(req.Stmts)
	} else {
		resp = w.execBatchAtomic(req.Stmts)
	}
	metrics.BatchDuration.WithLabelValues(string(req.Tx)).Observe(time.Since(start).Seconds())
	return resp
}

// execBatchAtomic implements spec §4.3's Atomic ExecBatch algorithm: one
// transaction wraps the statements and the revision bump, with rollback
// guaranteed on every exit path but the single success path.
func (w *Worker) execBatchAtomic(stmts []protocol.Statement) protocol.Response {
	tx, err := w.db.Begin()
	if err != nil {
		return protocol.ErrorWithCode(err.Error(), protocol.ErrCodeTxBeginFailed)
	}

	var rowsAffected uint64
	for i, stmt := range stmts {
		bound, err := protocol.BindParams(stmt.Params)
		if err != nil {
			_ = tx.Rollback()
			return protocol.ErrorWithCode(fmt.Sprintf("Statement %d: %s", i, sanitizeEngineErr(err)), protocol.ErrCodeSQLError)
		}
		res, err := tx.Exec(stmt.SQL, bound...)
		if err != nil {
			_ = tx.Rollback()
			return protocol.ErrorWithCode(fmt.Sprintf("Statement %d: %s", i, sanitizeEngineErr(err)), protocol.ErrCodeSQLError)
		}
		if n, err := res.RowsAffected(); err == nil {
			rowsAffected += uint64(n)
		}
		metrics.BatchStatementsTotal.Inc()
	}

	if _, err := tx.Exec("UPDATE meta SET rev = rev + 1, ts = ?", time.Now().Unix()); err != nil {
		_ = tx.Rollback()
		return protocol.ErrorWithCode(fmt.Sprintf("bump revision: %v", err), protocol.ErrCodeSQLError)
	}

	var rev int64
	if err := tx.QueryRow("SELECT rev FROM meta").Scan(&rev); err != nil {
		_ = tx.Rollback()
		return protocol.ErrorWithCode(fmt.Sprintf("read revision: %v", err), protocol.ErrCodeSQLError)
	}

	if err := tx.Commit(); err != nil {
		return protocol.ErrorWithCode(err.Error(), protocol.ErrCodeTxCommitFailed)
	}

	return protocol.OkExecBatch(rev, rowsAffected)
}

// execBatchNone implements the tx=none mode: each statement runs against
// the pool directly with no enclosing transaction, and the revision bump
// is not atomic with the batch. Retained for backward compatibility only
// (spec §4.3, §9) — partial application on a mid-batch failure is exposed
// to the client.
func (w *Worker) execBatchNone(stmts []protocol.Statement) protocol.Response {
	slog.Warn("worker: executing batch in tx=none mode; partial application is possible on failure", "db", w.dbName)

	var rowsAffected uint64
	for i, stmt := range stmts {
		bound, err := protocol.BindParams(stmt.Params)
		if err != nil {
			return protocol.ErrorWithCode(fmt.Sprintf("Statement %d: %s", i, sanitizeEngineErr(err)), protocol.ErrCodeSQLError)
		}
		res, err := w.db.Exec(stmt.SQL, bound...)
		if err != nil {
			return protocol.ErrorWithCode(fmt.Sprintf("Statement %d: %s", i, sanitizeEngineErr(err)), protocol.ErrCodeSQLError)
		}
		if n, err := res.RowsAffected(); err == nil {
			rowsAffected += uint64(n)
		}
		metrics.BatchStatementsTotal.Inc()
	}

	if _, err := w.db.Exec("UPDATE meta SET rev = rev + 1, ts = ?", time.Now().Unix()); err != nil {
		return protocol.ErrorWithCode(err.Error(), protocol.ErrCodeSQLError)
	}
	rev, err := store.CurrentRevision(w.db)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.OkExecBatch(rev, rowsAffected)
}
