package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildConnectionString(t *testing.T) {
	connStr := buildConnectionString("/tmp/x.db", ProfileCache)
	assert.Contains(t, connStr, "/tmp/x.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, connStr, "synchronous(OFF)")

	connStr = buildConnectionString("file:mem?mode=memory", ProfileStandard)
	assert.Contains(t, connStr, "mode=memory&_pragma=journal_mode(WAL)")
	assert.Contains(t, connStr, "synchronous(NORMAL)")
}

func TestMigrate_CreatesCacheTable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate()) // idempotent

	var name string
	err := db.Conn().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='market_data_cache'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "market_data_cache", name)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "other.db"), Name: "other"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO market_data_cache (cache_key, data, created_at, expires_at) VALUES ('k', x'00', 0, 0)")
		require.NoError(t, err)
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM market_data_cache").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t)
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("bad")
	})
	assert.ErrorContains(t, err, "panic in transaction")
}

func TestVacuumIntoAndStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.VacuumInto(context.Background(), dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}
