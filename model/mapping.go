package model

import "time"

// ComponentMapping is the atomic unit of the non-collision guarantee:
// one normalized real component mapped to exactly one pseudonym
// component within its (role, category). Mappings are created on first
// assignment and immutable thereafter.
type ComponentMapping struct {
	RealComponent      string        `json:"real_component"`
	Role               ComponentRole `json:"role"`
	Category           Category      `json:"category"`
	PseudonymComponent string        `json:"pseudonym_component"`
	CreatedAt          time.Time     `json:"created_at"`
}
