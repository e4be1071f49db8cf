//go:build unix

package singleinstance_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialite/serialite/internal/singleinstance"
)

func TestAcquire_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serialited.lock")

	first, err := singleinstance.Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = singleinstance.Acquire(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquire_ReacquireAfterReleaseSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serialited.lock")

	first, err := singleinstance.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := singleinstance.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquire_WritesPIDIntoLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serialited.lock")

	g, err := singleinstance.Acquire(path)
	require.NoError(t, err)
	defer g.Release()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, contents)
}
