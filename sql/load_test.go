package sql

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func initDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestLoadAllSql(t *testing.T) {
	t.Run("Valid call LoadAllSql", func(t *testing.T) {
		db := initDB(t)
		err := LoadAllSql(db, "sqlite", false)
		require.NoError(t, err, "Expected LoadAllSql to not return an error")

		for _, table := range Tables {
			exists, err := checkTable(db, "sqlite", table)
			require.NoError(t, err)
			assert.True(t, exists, "Expected table %s to exist", table)
		}
	})

	t.Run("Loading twice is idempotent", func(t *testing.T) {
		db := initDB(t)
		err := LoadAllSql(db, "sqlite", false)
		require.NoError(t, err)
		err = LoadAllSql(db, "sqlite", false)
		assert.NoError(t, err, "Expected a second LoadAllSql to not return an error")
	})

	t.Run("Force reload on existing tables", func(t *testing.T) {
		db := initDB(t)
		err := LoadAllSql(db, "sqlite", false)
		require.NoError(t, err)

		// The schema files only contain IF NOT EXISTS statements, so
		// a forced reload must succeed as well.
		err = LoadAllSql(db, "sqlite", true)
		assert.NoError(t, err, "Expected forced LoadAllSql to not return an error")
	})
}

func TestCheckTable(t *testing.T) {
	t.Run("Missing table reports false", func(t *testing.T) {
		db := initDB(t)
		exists, err := checkTable(db, "sqlite", "does_not_exist")
		require.NoError(t, err, "Expected checkTable to not return an error")
		assert.False(t, exists, "Expected missing table to report false")
	})

	t.Run("Created table reports true", func(t *testing.T) {
		db := initDB(t)
		err := LoadMetadataSql(db, "sqlite", false)
		require.NoError(t, err)

		exists, err := checkTable(db, "sqlite", "metadata")
		require.NoError(t, err)
		assert.True(t, exists, "Expected metadata table to report true")
	})
}
