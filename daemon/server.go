// Package daemon wires the bootstrap (C7): given a resolved configuration,
// it acquires the single-instance guard, builds the router, binds the
// listener, and runs the whole thing until told to stop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/serialite/serialite/internal/config"
	"github.com/serialite/serialite/internal/ipc"
	"github.com/serialite/serialite/internal/router"
	"github.com/serialite/serialite/internal/singleinstance"
)

// Version is the daemon's own version string, printed in the startup
// banner. Ping replies carry worker.Version instead.
const Version = "0.1.0"

// ShutdownDrainTimeout bounds how long Serve waits for each live worker
// to close its database during an orderly shutdown before moving on.
const ShutdownDrainTimeout = 10 * time.Second

// Server owns everything the bootstrap creates: the single-instance
// guard, the router, the listener, and (optionally) a metrics endpoint.
type Server struct {
	cfg    *config.Config
	router *router.Router
	ln     *ipc.Listener
	guard  singleinstance.Guard
}

// New acquires the single-instance guard and binds the listener. On any
// failure after the guard is acquired, the guard is released before
// returning — a failed bootstrap must not leave a stale lock behind.
func New(cfg *config.Config) (*Server, error) {
	guard, err := singleinstance.Acquire(singleinstance.DefaultPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	r := router.New(cfg.DataDir)

	ln, err := ipc.Listen(cfg.SocketPath, r)
	if err != nil {
		_ = guard.Release()
		return nil, fmt.Errorf("daemon: %w", err)
	}

	return &Server{cfg: cfg, router: r, ln: ln, guard: guard}, nil
}

// Serve runs the listener (and, if configured, a Prometheus metrics
// endpoint) until ctx is canceled or either fails. On the way out it
// implements the shutdown sequence spec §9 calls out as an open
// question: stop accepting new connections, ask every live worker to
// close its database, then release the single-instance guard.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.ln.Serve(gctx)
	})

	var metricsSrv *http.Server
	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("daemon: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	<-gctx.Done()

	_ = s.ln.Close()

	slog.Info("daemon: draining live workers")
	s.router.NotifyShutdown(ShutdownDrainTimeout)

	if err := s.guard.Release(); err != nil {
		slog.Warn("daemon: failed to release single-instance guard", "err", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SocketPath returns the daemon's bound endpoint, for logging and tests.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}
