package model

import (
	"fmt"
	"strings"
)

// Mention is one occurrence of an entity's text in a document, as
// reported by the span detector. Offsets are byte offsets into the
// document text and are never altered by normalization.
type Mention struct {
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	RawText     string   `json:"raw_text"`
	Category    Category `json:"category"`
	TitlePrefix string   `json:"title_prefix,omitempty"`
	GenderHint  Gender   `json:"gender_hint,omitempty"`
}

// Validate checks the mention against the document it was detected in.
// A mention with out-of-bounds offsets or an empty category is an input
// error and rejects the whole document, not the batch.
func (m *Mention) Validate(documentLength int) error {
	if m.StartOffset < 0 || m.EndOffset > documentLength || m.StartOffset >= m.EndOffset {
		return fmt.Errorf("mention offsets [%d, %d) out of bounds for document of length %d", m.StartOffset, m.EndOffset, documentLength)
	}
	if !m.Category.Valid() {
		return fmt.Errorf("mention %q has invalid category %q", m.RawText, m.Category)
	}
	if strings.TrimSpace(m.RawText) == "" {
		return fmt.Errorf("mention at [%d, %d) has empty text", m.StartOffset, m.EndOffset)
	}
	return nil
}
