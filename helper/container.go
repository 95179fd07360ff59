package helper

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MustStartPostgresContainer starts a throwaway postgres instance for
// tests and returns its teardown function and mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	if err != nil {
		return nil, "", err
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return pgContainer.Terminate, "", err
	}

	return pgContainer.Terminate, mappedPort.Port(), nil
}

// SetTestDatabaseConfigEnvs points the PSEUDONYMIZER_DB_* environment
// variables at a test postgres instance.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("PSEUDONYMIZER_DB_DRIVER", DriverPostgres)
	t.Setenv("PSEUDONYMIZER_DB_HOST", "localhost")
	t.Setenv("PSEUDONYMIZER_DB_PORT", port)
	t.Setenv("PSEUDONYMIZER_DB_DATABASE", "database")
	t.Setenv("PSEUDONYMIZER_DB_USERNAME", "user")
	t.Setenv("PSEUDONYMIZER_DB_PASSWORD", "password")
	t.Setenv("PSEUDONYMIZER_DB_SSLMODE", "disable")
}
