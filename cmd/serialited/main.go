// Command serialited is the write-serializing daemon's entry point: it
// resolves configuration, sets up logging, bootstraps the daemon, and
// runs it until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/serialite/serialite/daemon"
	"github.com/serialite/serialite/internal/config"
	"github.com/serialite/serialite/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	logging.Setup()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "serialited:", err)
		return 1
	}

	if level, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		slog.Warn("serialited: ignoring unrecognized log level, keeping default", "log_level", cfg.LogLevel)
	} else {
		logging.SetLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("serialited: invalid configuration", "err", err)
		return 1
	}

	logging.PrintBanner(daemon.Version, cfg.SocketPath)

	srv, err := daemon.New(cfg)
	if err != nil {
		slog.Error("serialited: failed to start", "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("serialited: ready", "socket", cfg.SocketPath, "data_dir", cfg.DataDir)
	if err := srv.Serve(ctx); err != nil {
		slog.Error("serialited: exited with error", "err", err)
		return 1
	}

	slog.Info("serialited: shut down cleanly")
	return 0
}
