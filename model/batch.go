package model

// DocumentState tracks one document through a batch run. Committed and
// Failed are terminal; a Committed document is never retracted by the
// batch itself.
type DocumentState string

const (
	StatePending            DocumentState = "pending"
	StateResolving          DocumentState = "resolving"
	StateAwaitingAssignment DocumentState = "awaiting_assignment"
	StateCommitted          DocumentState = "committed"
	StateFailed             DocumentState = "failed"
)

// DocumentStatus is the per-document outcome reported in a batch summary.
type DocumentStatus struct {
	Index int           `json:"index"`
	State DocumentState `json:"state"`
	Error string        `json:"error,omitempty"`
}

// BatchSummary is the explicit end-of-run report: a batch never claims
// success while silently dropping a document.
type BatchSummary struct {
	Committed int              `json:"committed"`
	Failed    int              `json:"failed"`
	Documents []DocumentStatus `json:"documents"`
}
