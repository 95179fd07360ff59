package helper

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers. SQLite is the default, local-only
// backend; Postgres is available for shared deployments (the schema
// stores only ciphertext, so it is portable between the two).
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfiguration holds the connection settings for the store.
// Path is used by the sqlite driver, the remaining connection fields
// by postgres.
type DatabaseConfiguration struct {
	Driver   string
	Path     string
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// NewDatabaseConfiguration creates a configuration from environment
// variables (PSEUDONYMIZER_DB_*), defaulting to a local sqlite file.
// A .env file in the working directory is loaded first; variables
// already set in the environment keep precedence.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Driver:   os.Getenv("PSEUDONYMIZER_DB_DRIVER"),
		Path:     os.Getenv("PSEUDONYMIZER_DB_PATH"),
		Host:     os.Getenv("PSEUDONYMIZER_DB_HOST"),
		Port:     os.Getenv("PSEUDONYMIZER_DB_PORT"),
		Database: os.Getenv("PSEUDONYMIZER_DB_DATABASE"),
		Username: os.Getenv("PSEUDONYMIZER_DB_USERNAME"),
		Password: os.Getenv("PSEUDONYMIZER_DB_PASSWORD"),
		SSLMode:  os.Getenv("PSEUDONYMIZER_DB_SSLMODE"),
	}
	if config.Driver == "" {
		config.Driver = DriverSQLite
	}
	if config.Driver == DriverSQLite && config.Path == "" {
		config.Path = "pseudonymizer.db"
	}
	if config.Driver == DriverPostgres {
		if config.Host == "" || config.Database == "" {
			return nil, NewError("database configuration validation", fmt.Errorf("postgres driver requires host and database"))
		}
		if _, err := strconv.Atoi(config.Port); err != nil {
			return nil, NewError("database configuration validation", fmt.Errorf("invalid postgres port %q", config.Port))
		}
	}
	return config, nil
}

// Database wraps the sql connection together with the logger the
// handlers log through.
type Database struct {
	Name     string
	Instance *sql.DB
	Config   *DatabaseConfiguration
	Logger   *slog.Logger
}

// NewDatabase opens the configured database and verifies the
// connection. Open or ping failures are store-unavailable errors.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration validation", fmt.Errorf("database configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	var instance *sql.DB
	var err error
	switch config.Driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(config.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, NewError("create database directory", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
			}
		}
		instance, err = sql.Open("sqlite", config.Path)
		if err == nil {
			// WAL allows concurrent readers with exactly one writer,
			// matching the single-writer discipline of the engine.
			var mode string
			err = instance.QueryRow(`PRAGMA journal_mode=WAL;`).Scan(&mode)
		}
		if err == nil {
			_, err = instance.Exec(`PRAGMA busy_timeout=5000;`)
		}
		if err == nil {
			_, err = instance.Exec(`PRAGMA foreign_keys=ON;`)
		}
	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode,
		)
		instance, err = sql.Open("postgres", dsn)
	default:
		return nil, NewError("database configuration validation", fmt.Errorf("unsupported driver %q", config.Driver))
	}
	if err != nil {
		return nil, NewError("open database", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}

	if err := instance.Ping(); err != nil {
		return nil, NewError("ping database", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}

	logger.Info("Opened database", slog.String("name", name), slog.String("driver", config.Driver))

	return &Database{
		Name:     name,
		Instance: instance,
		Config:   config,
		Logger:   logger,
	}, nil
}

// Rebind rewrites `?` placeholders to the `$N` form when the postgres
// driver is active. Handlers write queries with `?` once and stay
// portable across both drivers.
func (d *Database) Rebind(query string) string {
	if d.Config == nil || d.Config.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
