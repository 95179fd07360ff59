package database

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/siherrmann/pseudonymizer/cipher"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/stretchr/testify/require"
)

func initDB(t *testing.T) *helper.Database {
	t.Helper()
	config := &helper.DatabaseConfiguration{
		Driver: helper.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := helper.NewDatabase("test", config, logger)
	require.NoError(t, err, "failed to create database")

	t.Cleanup(func() {
		database.Instance.Close()
	})

	return database
}

func initCodec(t *testing.T) *cipher.Codec {
	t.Helper()
	salt := []byte("fixed-test-salt-for-handler-tests")
	key, err := cipher.DeriveKey("test passphrase", salt, cipher.DefaultKDFIterations)
	require.NoError(t, err, "failed to derive key")

	codec, err := cipher.NewCodec(key)
	require.NoError(t, err, "failed to create codec")

	return codec
}
