package pipeline

import "github.com/siherrmann/pseudonymizer/model"

// DetectFunc is a function that proposes candidate entity mention
// spans for one document. Detection is a pluggable collaborator; the
// engine only relies on this contract. The returned mentions must
// carry byte offsets into the given text.
type DetectFunc func(text string) ([]*model.Mention, error)
