package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pseudonymizer/cipher"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
	loadSql "github.com/siherrmann/pseudonymizer/sql"
)

// IdentitiesDBHandlerFunctions defines the interface for identity
// database operations.
type IdentitiesDBHandlerFunctions interface {
	InsertIdentity(identity *model.Identity) error
	SelectIdentity(id uuid.UUID) (*model.Identity, error)
	SelectIdentityByFullText(fullText string, category model.Category) (*model.Identity, error)
	SelectIdentitiesByCategory(category model.Category, limit int) ([]*model.Identity, error)
	SelectAmbiguousIdentities(category model.Category) ([]*model.Identity, error)
	DeleteIdentity(id uuid.UUID) error
}

// IdentitiesDBHandler handles identity-related database operations.
// The full text and pseudonym columns are stored encrypted; lookups
// by full text rely on the codec being deterministic.
type IdentitiesDBHandler struct {
	db    *helper.Database
	codec *cipher.Codec
}

// NewIdentitiesDBHandler creates a new identities database handler.
// If force is true, it reloads the schema even if the table exists.
func NewIdentitiesDBHandler(db *helper.Database, codec *cipher.Codec, force bool) (*IdentitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if codec == nil {
		return nil, helper.NewError("codec validation", fmt.Errorf("codec is nil"))
	}

	identitiesDbHandler := &IdentitiesDBHandler{
		db:    db,
		codec: codec,
	}

	err := loadSql.LoadIdentitiesSql(db.Instance, db.Config.Driver, force)
	if err != nil {
		return nil, helper.NewError("load identities sql", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	db.Logger.Info("Initialized IdentitiesDBHandler")

	return identitiesDbHandler, nil
}

// InsertIdentity inserts a new identity. The identity ID and creation
// time are assigned here when unset.
func (h *IdentitiesDBHandler) InsertIdentity(identity *model.Identity) error {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	if identity.Gender == "" {
		identity.Gender = model.GenderUnknown
	}
	identity.PseudonymFullText = identity.Pseudonym()

	encryptedFullText, err := h.codec.EncryptString(identity.FullText)
	if err != nil {
		return helper.NewError("encrypt full text", err)
	}
	encryptedPseudonym, err := h.codec.EncryptString(identity.PseudonymFullText)
	if err != nil {
		return helper.NewError("encrypt pseudonym", err)
	}

	ambiguous := 0
	if identity.IsAmbiguous {
		ambiguous = 1
	}

	_, err = h.db.Instance.Exec(
		h.db.Rebind(`INSERT INTO identities (id, category, full_text, pseudonym_full_text, gender, is_ambiguous, ambiguity_reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		identity.ID.String(),
		string(identity.Category),
		encryptedFullText,
		encryptedPseudonym,
		string(identity.Gender),
		ambiguous,
		identity.AmbiguityReason,
		identity.CreatedAt.Unix(),
	)
	if err != nil {
		return helper.NewError("exec", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	return nil
}

// SelectIdentity retrieves an identity by ID.
func (h *IdentitiesDBHandler) SelectIdentity(id uuid.UUID) (*model.Identity, error) {
	row := h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT id, category, full_text, pseudonym_full_text, gender, is_ambiguous, ambiguity_reason, created_at
			FROM identities WHERE id = ?`),
		id.String(),
	)
	identity, err := h.scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return identity, err
}

// SelectIdentityByFullText retrieves an identity by its normalized
// full text and category. Returns nil without error when no identity
// matches; a miss is the normal first-sighting case.
func (h *IdentitiesDBHandler) SelectIdentityByFullText(fullText string, category model.Category) (*model.Identity, error) {
	encryptedFullText, err := h.codec.EncryptString(fullText)
	if err != nil {
		return nil, helper.NewError("encrypt full text", err)
	}

	row := h.db.Instance.QueryRow(
		h.db.Rebind(`SELECT id, category, full_text, pseudonym_full_text, gender, is_ambiguous, ambiguity_reason, created_at
			FROM identities WHERE full_text = ? AND category = ?`),
		encryptedFullText,
		string(category),
	)
	identity, err := h.scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return identity, err
}

// SelectIdentitiesByCategory retrieves identities of one category,
// newest first.
func (h *IdentitiesDBHandler) SelectIdentitiesByCategory(category model.Category, limit int) ([]*model.Identity, error) {
	rows, err := h.db.Instance.Query(
		h.db.Rebind(`SELECT id, category, full_text, pseudonym_full_text, gender, is_ambiguous, ambiguity_reason, created_at
			FROM identities WHERE category = ? ORDER BY created_at DESC LIMIT ?`),
		string(category),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := h.scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	return identities, nil
}

// SelectAmbiguousIdentities retrieves all identities of one category
// that carry a cluster-scoped pseudonym. The mapper reserves their
// pseudonym components so later runs never hand them out again.
func (h *IdentitiesDBHandler) SelectAmbiguousIdentities(category model.Category) ([]*model.Identity, error) {
	rows, err := h.db.Instance.Query(
		h.db.Rebind(`SELECT id, category, full_text, pseudonym_full_text, gender, is_ambiguous, ambiguity_reason, created_at
			FROM identities WHERE category = ? AND is_ambiguous = 1`),
		string(category),
	)
	if err != nil {
		return nil, helper.NewError("query", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := h.scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	return identities, nil
}

// DeleteIdentity removes an identity row. It exists for the external
// audited erasure operation; the engine itself never deletes.
func (h *IdentitiesDBHandler) DeleteIdentity(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		h.db.Rebind(`DELETE FROM identities WHERE id = ?`),
		id.String(),
	)
	if err != nil {
		return helper.NewError("exec", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (h *IdentitiesDBHandler) scanIdentity(row rowScanner) (*model.Identity, error) {
	var (
		idText             string
		category           string
		encryptedFullText  string
		encryptedPseudonym string
		gender             string
		ambiguous          int
		ambiguityReason    string
		createdAt          int64
	)
	err := row.Scan(&idText, &category, &encryptedFullText, &encryptedPseudonym, &gender, &ambiguous, &ambiguityReason, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, helper.NewError("scan", fmt.Errorf("%w: %v", helper.ErrStoreUnavailable, err))
	}

	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, helper.NewError("parse identity id", err)
	}
	fullText, err := h.codec.DecryptString(encryptedFullText)
	if err != nil {
		return nil, helper.NewError("decrypt full text", err)
	}
	pseudonym, err := h.codec.DecryptString(encryptedPseudonym)
	if err != nil {
		return nil, helper.NewError("decrypt pseudonym", err)
	}

	return &model.Identity{
		ID:                id,
		Category:          model.Category(category),
		FullText:          fullText,
		Gender:            model.ParseGender(gender),
		PseudonymFullText: pseudonym,
		IsAmbiguous:       ambiguous != 0,
		AmbiguityReason:   ambiguityReason,
		CreatedAt:         time.Unix(createdAt, 0).UTC(),
	}, nil
}
