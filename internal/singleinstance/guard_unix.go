//go:build unix

package singleinstance

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

type fileGuard struct {
	file *os.File
	path string
}

// Acquire opens (creating if needed) the lock file at path and takes a
// non-blocking exclusive advisory lock on it. On success the daemon's
// own PID is written into the file — purely diagnostic, grounded on
// original_source/daemon/src/single_instance.rs's
// write!(file, "{}", pid)?, so an operator can `cat` the lock file to
// find which process to signal without asking the daemon itself.
func Acquire(path string) (Guard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("singleinstance: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w (lock file %s): %v", ErrAlreadyRunning, path, err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("singleinstance: truncate %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("singleinstance: write pid to %s: %w", path, err)
	}

	return &fileGuard{file: f, path: path}, nil
}

// Release unlocks and removes the lock file. The unlock happens
// implicitly on process exit too (the kernel drops flock locks when the
// descriptor closes), but an explicit Release lets a long-lived test
// process reacquire the same path without exiting.
func (g *fileGuard) Release() error {
	defer os.Remove(g.path)
	if err := unix.Flock(int(g.file.Fd()), unix.LOCK_UN); err != nil {
		_ = g.file.Close()
		return fmt.Errorf("singleinstance: unlock %s: %w", g.path, err)
	}
	return g.file.Close()
}
