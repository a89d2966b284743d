package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestNewAppliesProfile(t *testing.T) {
	testCases := []struct {
		name    string
		profile DatabaseProfile
	}{
		{"ledger", ProfileLedger},
		{"cache", ProfileCache},
		{"results", ProfileStandard},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t, tc.name, tc.profile)
			assert.Equal(t, tc.profile, db.Profile())
			assert.Equal(t, tc.name, db.Name())

			var mode string
			err := db.QueryRow("PRAGMA journal_mode").Scan(&mode)
			require.NoError(t, err)
			assert.Equal(t, "wal", mode)
		})
	}
}

func TestMigrateCreatesSchemas(t *testing.T) {
	testCases := []struct {
		name  string
		table string
	}{
		{"market", "bars"},
		{"cache", "indicator_cache"},
		{"ledger", "trades"},
		{"results", "strategy_signals"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t, tc.name, ProfileStandard)
			require.NoError(t, db.Migrate())

			// Migrations are idempotent
			require.NoError(t, db.Migrate())

			var count int
			err := db.QueryRow(
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tc.table,
			).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "expected table %s to exist", tc.table)
		})
	}
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "txtest", ProfileStandard)
	_, err := db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	t.Run("commit on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (name) VALUES (?)", "kept")
			return err
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items WHERE name='kept'").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("rollback on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES (?)", "dropped"); err != nil {
				return err
			}
			return sentinel
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items WHERE name='dropped'").Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES (?)", "panicked"); err != nil {
				return err
			}
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items WHERE name='panicked'").Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("nil connection rejected", func(t *testing.T) {
		err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestHealthCheckAndMaintenance(t *testing.T) {
	db := newTestDB(t, "market", ProfileStandard)
	require.NoError(t, db.Migrate())

	ctx := context.Background()
	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}
