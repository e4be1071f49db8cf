// Package singleinstance implements the bootstrap's machine-wide
// mutual-exclusion guard (C6): on Unix, an advisory flock on a
// well-known lock file with the daemon's PID written into it as a
// diagnostic hint.
package singleinstance

import "fmt"

// DefaultPath is the well-known lock file location. The version suffix
// mirrors the default socket path's (internal/config) so a future breaking
// revision can coexist during upgrade without colliding. It is a var,
// not a const, so tests can point multiple daemon instances at
// per-test lock files instead of contending on one machine-wide path.
var DefaultPath = "/tmp/serialited-v1.lock"

// Guard is a held mutual-exclusion token. Release must be called exactly
// once; daemon.Server.Serve calls it after draining live workers.
type Guard interface {
	Release() error
}

// ErrAlreadyRunning is wrapped into the error Acquire returns when
// another instance already holds the guard. The message always contains
// the literal substring "already running" (spec §8 scenario 5, §4.6).
var ErrAlreadyRunning = fmt.Errorf("serialited: another instance is already running")
