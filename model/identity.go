package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity is one detected real-world entity within the processing
// scope. It is created on first resolution of a mention cluster and
// reused idempotently when later documents mention the same entity.
// The full pseudonym is always composed from the component pseudonyms,
// never maintained independently of them.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Category Category  `json:"category"`
	FullText string    `json:"full_text"`

	// Decomposed real components, by category: first/last for PERSON,
	// single token for LOCATION and ORGANIZATION.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Token     string `json:"token,omitempty"`

	Gender Gender `json:"gender"`

	PseudonymFirstName string `json:"pseudonym_first_name,omitempty"`
	PseudonymLastName  string `json:"pseudonym_last_name,omitempty"`
	PseudonymToken     string `json:"pseudonym_token,omitempty"`

	// PseudonymFullText is the composed pseudonym as persisted. For
	// identities loaded from the store the components above may be
	// empty; Pseudonym falls back to this value.
	PseudonymFullText string `json:"pseudonym_full_text,omitempty"`

	IsAmbiguous     bool   `json:"is_ambiguous"`
	AmbiguityReason string `json:"ambiguity_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Pseudonym composes the full pseudonym text from the component
// pseudonyms using the category's concatenation rule.
func (i *Identity) Pseudonym() string {
	switch i.Category {
	case CategoryPerson:
		if i.PseudonymFirstName != "" && i.PseudonymLastName != "" {
			return i.PseudonymFirstName + " " + i.PseudonymLastName
		}
		if i.PseudonymFirstName != "" {
			return i.PseudonymFirstName
		}
		if i.PseudonymLastName != "" {
			return i.PseudonymLastName
		}
	default:
		if i.PseudonymToken != "" {
			return i.PseudonymToken
		}
	}
	return i.PseudonymFullText
}
