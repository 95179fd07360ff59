package model

import (
	"fmt"
	"sort"
)

// Replacement substitutes one span of the original document text.
type Replacement struct {
	StartOffset     int    `json:"start_offset"`
	EndOffset       int    `json:"end_offset"`
	ReplacementText string `json:"replacement_text"`
}

// ReplacementPlan is the ordered, non-overlapping list of replacements
// produced for one document. It is safe to apply in a single
// reverse-offset pass.
type ReplacementPlan struct {
	Replacements []Replacement `json:"replacements"`
}

// Validate checks that the replacements are sorted and non-overlapping.
func (p *ReplacementPlan) Validate() error {
	for i := 1; i < len(p.Replacements); i++ {
		prev, cur := p.Replacements[i-1], p.Replacements[i]
		if cur.StartOffset < prev.EndOffset {
			return fmt.Errorf("replacement [%d, %d) overlaps previous [%d, %d)", cur.StartOffset, cur.EndOffset, prev.StartOffset, prev.EndOffset)
		}
	}
	return nil
}

// Sort orders the replacements by start offset.
func (p *ReplacementPlan) Sort() {
	sort.Slice(p.Replacements, func(i, j int) bool {
		return p.Replacements[i].StartOffset < p.Replacements[j].StartOffset
	})
}

// Apply produces the pseudonymized document text by applying the
// replacements in reverse-offset order, so earlier offsets stay valid.
func (p *ReplacementPlan) Apply(text string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	out := []byte(text)
	for i := len(p.Replacements) - 1; i >= 0; i-- {
		r := p.Replacements[i]
		if r.StartOffset < 0 || r.EndOffset > len(out) {
			return "", fmt.Errorf("replacement [%d, %d) out of bounds for document of length %d", r.StartOffset, r.EndOffset, len(out))
		}
		out = append(out[:r.StartOffset], append([]byte(r.ReplacementText), out[r.EndOffset:]...)...)
	}
	return string(out), nil
}
