package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/pseudonymizer/cipher"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
	loadSql "github.com/siherrmann/pseudonymizer/sql"
)

// MappingsDBHandlerFunctions defines the interface for component
// mapping database operations.
type MappingsDBHandlerFunctions interface {
	InsertMapping(mapping *model.ComponentMapping) error
	SelectMapping(realComponent string, role model.ComponentRole, category model.Category) (*model.ComponentMapping, error)
	SelectMappingsByRole(category model.Category, role model.ComponentRole) ([]*model.ComponentMapping, error)
	CountMappings(category model.Category, role model.ComponentRole) (int, error)
}

// MappingsDBHandler handles the component_mappings table. Both the
// real component and the pseudonym component are stored encrypted;
// the primary key on the encrypted real component works because the
// codec is deterministic, and it doubles as the defensive uniqueness
// check behind the non-collision guarantee.
type MappingsDBHandler struct {
	db    *helper.Database
	codec *cipher.Codec
}

// NewMappingsDBHandler creates a new component mappings database
// handler. If force is true, it reloads the schema even if the table
// exists.
func NewMappingsDBHandler(db *helper.Database, codec *cipher.Codec, force bool) (*MappingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if codec == nil {
		return nil, helper.NewError("codec validation", fmt.Errorf("codec is nil"))
	}

	mappingsDbHandler := &MappingsDBHandler{
		db:    db,
		codec: codec,
	}

	err := loadSql.LoadMappingsSql(db.Instance, db.Config.Driver, force)
	if err != nil {
		return nil, helper.NewError("load mappings sql", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	db.Logger.Info("Initialized MappingsDBHandler")

	return mappingsDbHandler, nil
}

// InsertMapping inserts a new component mapping. Mappings are
// immutable; inserting a key that already exists means the
// single-writer discipline was broken somewhere and surfaces as an
// invariant violation.
func (h *MappingsDBHandler) InsertMapping(mapping *model.ComponentMapping) error {
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}

	encryptedReal, err := h.codec.EncryptString(mapping.RealComponent)
	if err != nil {
		return helper.NewError("encrypt real component", err)
	}
	encryptedPseudonym, err := h.codec.EncryptString(mapping.PseudonymComponent)
	if err != nil {
		return helper.NewError("encrypt pseudonym component", err)
	}

	_, err = h.db.Instance.Exec(
		h.db.Rebind(`INSERT INTO component_mappings (real_component, role, category, pseudonym_component, created_at)
			VALUES (?, ?, ?, ?, ?)`),
		encryptedReal,
		string(mapping.Role),
		string(mapping.Category),
		encryptedPseudonym,
		mapping.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			h.db.Logger.Error(
				"Component mapping uniqueness violated",
				slog.String("role", string(mapping.Role)),
				slog.String("category", string(mapping.Category)),
			)
			return helper.NewError("insert mapping", fmt.Errorf("%w: duplicate component mapping key", helper.ErrInvariantViolation))
		}
		return helper.NewError("exec", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	return nil
}

// SelectMapping retrieves a mapping by its key. Returns nil without
// error when no mapping exists; a miss means the component has not
// been assigned yet.
func (h *MappingsDBHandler) SelectMapping(realComponent string, role model.ComponentRole, category model.Category) (*model.ComponentMapping, error) {
	encryptedReal, err := h.codec.EncryptString(realComponent)
	if err != nil {
		return nil, helper.NewError("encrypt real component", err)
	}

	var (
		encryptedPseudonym string
		createdAt          int64
	)
	err = h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT pseudonym_component, created_at FROM component_mappings
			WHERE real_component = ? AND role = ? AND category = ?`),
		encryptedReal,
		string(role),
		string(category),
	).Scan(&encryptedPseudonym, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	pseudonym, err := h.codec.DecryptString(encryptedPseudonym)
	if err != nil {
		return nil, helper.NewError("decrypt pseudonym component", err)
	}

	return &model.ComponentMapping{
		RealComponent:      realComponent,
		Role:               role,
		Category:           category,
		PseudonymComponent: pseudonym,
		CreatedAt:          time.Unix(createdAt, 0).UTC(),
	}, nil
}

// SelectMappingsByRole retrieves all mappings for a (category, role).
// The component mapper hydrates its in-memory used-set from this at
// store open.
func (h *MappingsDBHandler) SelectMappingsByRole(category model.Category, role model.ComponentRole) ([]*model.ComponentMapping, error) {
	rows, err := h.db.Instance.Query(
		h.db.Rebind(`SELECT real_component, pseudonym_component, created_at FROM component_mappings
			WHERE category = ? AND role = ?`),
		string(category),
		string(role),
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var mappings []*model.ComponentMapping
	for rows.Next() {
		var (
			encryptedReal      string
			encryptedPseudonym string
			createdAt          int64
		)
		err := rows.Scan(&encryptedReal, &encryptedPseudonym, &createdAt)
		if err != nil {
			return nil, helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
		}

		realComponent, err := h.codec.DecryptString(encryptedReal)
		if err != nil {
			return nil, helper.NewError("decrypt real component", err)
		}
		pseudonym, err := h.codec.DecryptString(encryptedPseudonym)
		if err != nil {
			return nil, helper.NewError("decrypt pseudonym component", err)
		}

		mappings = append(mappings, &model.ComponentMapping{
			RealComponent:      realComponent,
			Role:               role,
			Category:           category,
			PseudonymComponent: pseudonym,
			CreatedAt:          time.Unix(createdAt, 0).UTC(),
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	return mappings, nil
}

// CountMappings returns the number of mappings for a (category, role).
func (h *MappingsDBHandler) CountMappings(category model.Category, role model.ComponentRole) (int, error) {
	var count int
	err := h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT COUNT(*) FROM component_mappings WHERE category = ? AND role = ?`),
		string(category),
		string(role),
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return count, nil
}

// isUniqueViolation detects a primary key or unique constraint
// violation for both supported drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
