package helper

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSQLiteConfig(t *testing.T) *DatabaseConfiguration {
	t.Helper()
	return &DatabaseConfiguration{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("Valid call NewDatabase with sqlite", func(t *testing.T) {
		db, err := NewDatabase("test", testSQLiteConfig(t), slog.Default())
		require.NoError(t, err, "Expected NewDatabase to not return an error")
		require.NotNil(t, db, "Expected NewDatabase to return a non-nil instance")
		assert.NotNil(t, db.Instance, "Expected database to have a non-nil connection instance")
		assert.NotNil(t, db.Logger, "Expected database to have a non-nil logger")

		err = db.Instance.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Invalid call NewDatabase with nil configuration", func(t *testing.T) {
		_, err := NewDatabase("test", nil, slog.Default())
		assert.Error(t, err, "Expected error when creating database with nil configuration")
		assert.Contains(t, err.Error(), "database configuration is nil", "Expected specific error message for nil configuration")
	})

	t.Run("Invalid call NewDatabase with unsupported driver", func(t *testing.T) {
		_, err := NewDatabase("test", &DatabaseConfiguration{Driver: "oracle"}, slog.Default())
		assert.Error(t, err, "Expected error for unsupported driver")
		assert.Contains(t, err.Error(), "unsupported driver", "Expected specific error message for unsupported driver")
	})

	t.Run("NewDatabase with nil logger uses default", func(t *testing.T) {
		db, err := NewDatabase("test", testSQLiteConfig(t), nil)
		require.NoError(t, err, "Expected NewDatabase to not return an error")
		assert.NotNil(t, db.Logger, "Expected database to fall back to the default logger")

		db.Instance.Close()
	})
}

func TestNewDatabaseConfiguration(t *testing.T) {
	t.Run("Defaults to sqlite when no envs are set", func(t *testing.T) {
		t.Setenv("PSEUDONYMIZER_DB_DRIVER", "")
		t.Setenv("PSEUDONYMIZER_DB_PATH", "")

		config, err := NewDatabaseConfiguration()
		require.NoError(t, err, "Expected NewDatabaseConfiguration to not return an error")
		assert.Equal(t, DriverSQLite, config.Driver, "Expected driver to default to sqlite")
		assert.NotEmpty(t, config.Path, "Expected a default sqlite path")
	})

	t.Run("Reads a .env file from the working directory", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		content := "PSEUDONYMIZER_DB_DRIVER=sqlite\nPSEUDONYMIZER_DB_PATH=" + filepath.Join(dir, "from-env-file.db") + "\n"
		require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
		t.Chdir(dir)
		// t.Setenv registers the restore; the unset makes the variables
		// absent so the .env values take effect.
		t.Setenv("PSEUDONYMIZER_DB_DRIVER", "")
		t.Setenv("PSEUDONYMIZER_DB_PATH", "")
		os.Unsetenv("PSEUDONYMIZER_DB_DRIVER")
		os.Unsetenv("PSEUDONYMIZER_DB_PATH")

		config, err := NewDatabaseConfiguration()
		require.NoError(t, err, "Expected NewDatabaseConfiguration to not return an error")
		assert.Equal(t, DriverSQLite, config.Driver)
		assert.Equal(t, filepath.Join(dir, "from-env-file.db"), config.Path, "Expected the path from the .env file")
	})

	t.Run("Postgres driver requires host and database", func(t *testing.T) {
		t.Setenv("PSEUDONYMIZER_DB_DRIVER", DriverPostgres)
		t.Setenv("PSEUDONYMIZER_DB_HOST", "")
		t.Setenv("PSEUDONYMIZER_DB_DATABASE", "")

		_, err := NewDatabaseConfiguration()
		assert.Error(t, err, "Expected error when postgres host and database are missing")
	})

	t.Run("Postgres driver validates port", func(t *testing.T) {
		t.Setenv("PSEUDONYMIZER_DB_DRIVER", DriverPostgres)
		t.Setenv("PSEUDONYMIZER_DB_HOST", "localhost")
		t.Setenv("PSEUDONYMIZER_DB_DATABASE", "pseudonymizer")
		t.Setenv("PSEUDONYMIZER_DB_PORT", "not-a-port")

		_, err := NewDatabaseConfiguration()
		assert.Error(t, err, "Expected error for invalid postgres port")
	})
}

func TestRebind(t *testing.T) {
	t.Run("Sqlite queries are unchanged", func(t *testing.T) {
		db := &Database{Config: &DatabaseConfiguration{Driver: DriverSQLite}}
		query := `SELECT * FROM component_mappings WHERE real_component = ? AND role = ?`

		assert.Equal(t, query, db.Rebind(query), "Expected sqlite query to be unchanged")
	})

	t.Run("Postgres queries get numbered placeholders", func(t *testing.T) {
		db := &Database{Config: &DatabaseConfiguration{Driver: DriverPostgres}}

		rebound := db.Rebind(`INSERT INTO metadata (key, value) VALUES (?, ?)`)
		assert.Equal(t, `INSERT INTO metadata (key, value) VALUES ($1, $2)`, rebound, "Expected placeholders to be numbered")
	})
}
