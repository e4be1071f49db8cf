// Package router implements the map-and-dispatch component (C4): it maps
// a DatabaseName to a live worker, spawning one lazily on first use and
// reaping the entry once the worker's task ends.
package router

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serialite/serialite/internal/dbname"
	"github.com/serialite/serialite/internal/metrics"
	"github.com/serialite/serialite/internal/protocol"
	"github.com/serialite/serialite/internal/worker"
)

// handle is the router's internal record for one live worker. generation
// is the fix for the self-removal race called out in spec §9 "Handle
// identity": a dead worker's deferred cleanup must not evict a newer
// replacement spawned for the same database name. Removal always
// compares generation, never just map-key presence.
type handle struct {
	worker     *worker.Worker
	generation uint64
}

// Router owns the DatabaseName -> worker mapping behind a single
// reader/writer mutex (spec §5's one allowed mutex held only across
// cheap in-memory operations).
type Router struct {
	mu      sync.RWMutex
	workers map[string]*handle
	baseDir string
	nextGen atomic.Uint64
}

// New returns a Router that spawns workers against database files inside
// baseDir.
func New(baseDir string) *Router {
	return &Router{
		workers: make(map[string]*handle),
		baseDir: baseDir,
	}
}

// Dispatch implements the dispatch path from spec §4.4. Shutdown is
// answered directly without ever touching a worker.
func (r *Router) Dispatch(req *protocol.Request) protocol.Response {
	if req.Type == protocol.RequestShutdown {
		return protocol.OkShutdown()
	}

	start := time.Now()
	resp := r.dispatchToWorker(req)
	metrics.DispatchDuration.WithLabelValues(string(req.Type)).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if resp.Status != "ok" {
		outcome = "error"
	}
	metrics.DispatchTotal.WithLabelValues(string(req.Type), outcome).Inc()

	return resp
}

func (r *Router) dispatchToWorker(req *protocol.Request) protocol.Response {
	if req.DB == "" {
		return protocol.Error("router: request is missing \"db\"")
	}
	if err := dbname.Validate(req.DB); err != nil {
		return protocol.Error(err.Error())
	}

	h := r.getOrCreate(req.DB)

	replyCh, err := h.worker.Send(req)
	if err != nil {
		// The worker has already exited; remove the stale handle so the
		// next request respawns instead of hitting the same dead worker.
		// Do not auto-retry here — the client re-issues (spec §4.4).
		r.removeIfCurrent(req.DB, h)
		return protocol.Error("worker communication failed")
	}

	resp, ok := <-replyCh
	if !ok {
		r.removeIfCurrent(req.DB, h)
		return protocol.Error("worker communication failed")
	}
	return resp
}

func (r *Router) getOrCreate(dbName string) *handle {
	r.mu.RLock()
	if h, ok := r.workers[dbName]; ok {
		r.mu.RUnlock()
		return h
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another goroutine may have spawned one while we waited
	// for the write lock.
	if h, ok := r.workers[dbName]; ok {
		return h
	}

	gen := r.nextGen.Add(1)
	w := worker.Spawn(dbName, filepath.Join(r.baseDir, dbName))
	h := &handle{worker: w, generation: gen}
	r.workers[dbName] = h

	go r.reapOnDeath(dbName, h)

	return h
}

// reapOnDeath waits for a worker's task to end and removes its handle.
// It compares generation, not presence, before deleting: if this
// worker's replacement has already taken the map slot, that replacement
// must survive this cleanup untouched (spec §9).
func (r *Router) reapOnDeath(dbName string, h *handle) {
	<-h.worker.Done()
	r.removeIfCurrent(dbName, h)
}

func (r *Router) removeIfCurrent(dbName string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.workers[dbName]; ok && cur.generation == h.generation {
		delete(r.workers, dbName)
	}
}

// LiveWorkerCount reports how many database workers are currently
// registered. Exposed for tests and for the daemon's shutdown sequence.
func (r *Router) LiveWorkerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// NotifyShutdown asks every currently live worker to close its database
// (mirroring CloseDatabase) and waits up to timeout per worker. It is
// best-effort: a worker that does not reply within timeout is left to the
// process teardown that follows. Mirrors the teacher's
// workermgr.NotifyShutdown best-effort fan-out.
func (r *Router) NotifyShutdown(timeout time.Duration) {
	r.mu.RLock()
	handles := make([]*handle, 0, len(r.workers))
	for _, h := range r.workers {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *handle) {
			defer wg.Done()
			replyCh, err := h.worker.Send(&protocol.Request{Type: protocol.RequestCloseDatabase})
			if err != nil {
				return
			}
			select {
			case <-replyCh:
			case <-time.After(timeout):
			}
		}(h)
	}
	wg.Wait()
}
