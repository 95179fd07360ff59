package model

// Ambiguity reason codes attached to clusters that could not be merged
// safely. They are surfaced to the external review step unchanged.
const (
	AmbiguitySharedToken      = "shared_token"
	AmbiguityStandaloneToken  = "standalone_token"
	AmbiguityUnsplittableName = "unsplittable_name"
)

// MentionCluster groups the mentions believed to denote a single
// identity within one document. Clusters are transient; they are
// consumed entirely within one document's resolution pass and never
// persisted.
type MentionCluster struct {
	Category Category
	Mentions []*Mention

	// FullText is the normalized full form of the identity, when one
	// was observed ("Marie Dubois"). For single-token clusters it is
	// the token itself.
	FullText string

	// Decomposed components. FirstName/LastName are set for PERSON
	// clusters with a known full form, Token for LOCATION/ORGANIZATION
	// clusters and for standalone single-token PERSON clusters.
	FirstName string
	LastName  string
	Token     string

	Gender Gender

	// IsAmbiguous marks clusters that must not write component
	// mappings; see the bridging-safety rule in the resolver.
	IsAmbiguous     bool
	AmbiguityReason string
}

// HasFullName reports whether the cluster decomposed into first and
// last name components.
func (c *MentionCluster) HasFullName() bool {
	return c.FirstName != "" && c.LastName != ""
}
