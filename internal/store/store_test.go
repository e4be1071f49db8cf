package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialite/serialite/internal/store"
)

func TestOpen_InMemory(t *testing.T) {
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, sqlDB.Ping())

	var mode string
	require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	// :memory: databases cannot use WAL; the pragma silently falls back to
	// "memory", confirming Open did not error out trying to force it.
	assert.NotEmpty(t, mode)
}

func TestMigrate_CreatesSingleSeededRow(t *testing.T) {
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, store.Migrate(sqlDB))

	rev, err := store.CurrentRevision(sqlDB)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)

	var count int
	require.NoError(t, sqlDB.QueryRow("SELECT count(*) FROM meta").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrate_Idempotent(t *testing.T) {
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, store.Migrate(sqlDB))
	_, err = sqlDB.Exec("UPDATE meta SET rev = 7")
	require.NoError(t, err)

	require.NoError(t, store.Migrate(sqlDB))

	rev, err := store.CurrentRevision(sqlDB)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rev, "re-running migrate must not reseed an existing row")
}
