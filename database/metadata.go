package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/siherrmann/pseudonymizer/helper"
	loadSql "github.com/siherrmann/pseudonymizer/sql"
)

// Metadata keys used by the store.
const (
	MetaSalt          = "salt"
	MetaKDFIterations = "kdf_iterations"
	MetaCanary        = "canary"
	MetaSchemaVersion = "schema_version"
)

// SchemaVersion is written on store initialization.
const SchemaVersion = "1"

// MetadataDBHandlerFunctions defines the interface for metadata
// database operations.
type MetadataDBHandlerFunctions interface {
	SetValue(key string, value string) error
	SetValues(values map[string]string) error
	GetValue(key string) (string, error)
	HasValue(key string) (bool, error)
}

// MetadataDBHandler handles the key/value metadata table holding the
// crypto parameters (salt, kdf iteration count, canary) and the
// schema version. Values in this table are not encrypted.
type MetadataDBHandler struct {
	db *helper.Database
}

// NewMetadataDBHandler creates a new metadata database handler.
// If force is true, it reloads the schema even if the table exists.
func NewMetadataDBHandler(db *helper.Database, force bool) (*MetadataDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	metadataDbHandler := &MetadataDBHandler{
		db: db,
	}

	err := loadSql.LoadMetadataSql(db.Instance, db.Config.Driver, force)
	if err != nil {
		return nil, helper.NewError("load metadata sql", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	db.Logger.Info("Initialized MetadataDBHandler")

	return metadataDbHandler, nil
}

// SetValue inserts or updates a metadata value.
func (h *MetadataDBHandler) SetValue(key string, value string) error {
	_, err := h.db.Instance.Exec(
		h.db.Rebind(`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key,
		value,
	)
	if err != nil {
		return helper.NewError("exec", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return nil
}

// SetValues inserts or updates several metadata values in one
// transaction. Store initialization writes the salt, iteration count,
// schema version and canary through it so a crash cannot leave a
// store with a salt but no canary.
func (h *MetadataDBHandler) SetValues(values map[string]string) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	defer tx.Rollback()

	for key, value := range values {
		_, err = tx.Exec(
			h.db.Rebind(`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
			key,
			value,
		)
		if err != nil {
			return helper.NewError("exec", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit transaction", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return nil
}

// GetValue retrieves a metadata value by key.
func (h *MetadataDBHandler) GetValue(key string) (string, error) {
	var value string
	err := h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT value FROM metadata WHERE key = ?`),
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", helper.NewError("select metadata", fmt.Errorf("key %q not found", key))
	}
	if err != nil {
		return "", helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return value, nil
}

// HasValue reports whether a metadata key is present.
func (h *MetadataDBHandler) HasValue(key string) (bool, error) {
	var exists bool
	err := h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM metadata WHERE key = ?)`),
		key,
	).Scan(&exists)
	if err != nil {
		return false, helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return exists, nil
}
