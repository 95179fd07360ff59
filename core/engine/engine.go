// Package engine turns resolved mention clusters into pseudonym
// assignments and a per-document replacement plan. All methods write
// to the store and must only be called from the single writer.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/pseudonymizer/core/mapper"
	"github.com/siherrmann/pseudonymizer/core/resolver"
	"github.com/siherrmann/pseudonymizer/database"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
)

// AssignmentEngine orchestrates mapping lookup, new-pseudonym
// selection and composition for one document's clusters.
type AssignmentEngine struct {
	identities database.IdentitiesDBHandlerFunctions
	mapper     *mapper.Mapper
	log        *slog.Logger
}

// NewAssignmentEngine creates a new assignment engine and reserves the
// pseudonym components of all persisted cluster-scoped identities, so
// a restart cannot re-issue them to a mapped component.
func NewAssignmentEngine(identities database.IdentitiesDBHandlerFunctions, m *mapper.Mapper, logger *slog.Logger) (*AssignmentEngine, error) {
	if identities == nil {
		return nil, helper.NewError("identities handler validation", fmt.Errorf("identities handler is nil"))
	}
	if m == nil {
		return nil, helper.NewError("mapper validation", fmt.Errorf("mapper is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	engine := &AssignmentEngine{
		identities: identities,
		mapper:     m,
		log:        logger,
	}
	err := engine.reserveAmbiguousPseudonyms()
	if err != nil {
		return nil, helper.NewError("reserve ambiguous pseudonyms", err)
	}
	return engine, nil
}

// reserveAmbiguousPseudonyms replays the pseudonym components of the
// stored ambiguous identities into the mapper's used-sets. Those
// components have no mapping rows, so the mapper cannot hydrate them
// on its own.
func (e *AssignmentEngine) reserveAmbiguousPseudonyms() error {
	for _, category := range []model.Category{model.CategoryPerson, model.CategoryLocation, model.CategoryOrganization} {
		ambiguous, err := e.identities.SelectAmbiguousIdentities(category)
		if err != nil {
			return err
		}
		for _, identity := range ambiguous {
			e.hydratePseudonymComponents(identity)
			if category == model.CategoryPerson {
				e.mapper.Reserve(category, model.RoleFirstName, identity.PseudonymFirstName)
				e.mapper.Reserve(category, model.RoleLastName, identity.PseudonymLastName)
				continue
			}
			e.mapper.Reserve(category, model.RoleToken, identity.PseudonymToken)
		}
	}
	return nil
}

// Assign produces the replacement plan for one document's clusters
// and persists any newly seen identities. Reprocessing a document
// whose identities are already mapped performs only reads and yields
// a byte-identical plan.
func (e *AssignmentEngine) Assign(clusters []*model.MentionCluster) (*model.ReplacementPlan, []*model.Identity, error) {
	plan := &model.ReplacementPlan{}
	var identities []*model.Identity

	for _, cluster := range clusters {
		identity, err := e.identityFor(cluster)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, identity)

		for _, mention := range cluster.Mentions {
			plan.Replacements = append(plan.Replacements, model.Replacement{
				StartOffset:     mention.StartOffset,
				EndOffset:       mention.EndOffset,
				ReplacementText: e.replacementText(cluster, mention, identity),
			})
		}
	}

	plan.Sort()
	if err := plan.Validate(); err != nil {
		return nil, nil, helper.NewError("validate replacement plan", err)
	}
	return plan, identities, nil
}

// identityFor returns the persisted identity for a cluster, creating
// and storing it on first sight.
func (e *AssignmentEngine) identityFor(cluster *model.MentionCluster) (*model.Identity, error) {
	existing, err := e.identities.SelectIdentityByFullText(cluster.FullText, cluster.Category)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e.hydratePseudonymComponents(existing)
		return existing, nil
	}

	identity := &model.Identity{
		Category:        cluster.Category,
		FullText:        cluster.FullText,
		FirstName:       cluster.FirstName,
		LastName:        cluster.LastName,
		Token:           cluster.Token,
		Gender:          cluster.Gender,
		IsAmbiguous:     cluster.IsAmbiguous,
		AmbiguityReason: cluster.AmbiguityReason,
	}

	if cluster.IsAmbiguous {
		e.assignClusterScoped(cluster, identity)
	} else {
		err = e.assignMapped(cluster, identity)
		if err != nil {
			return nil, err
		}
	}

	err = e.identities.InsertIdentity(identity)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// assignMapped assigns component-scoped pseudonyms through the
// persistent mapping, so the same real component maps identically
// across identities and documents.
func (e *AssignmentEngine) assignMapped(cluster *model.MentionCluster, identity *model.Identity) error {
	switch cluster.Category {
	case model.CategoryPerson:
		if !cluster.HasFullName() {
			// A person cluster without a decomposed full name cannot
			// be keyed safely; treat it like an ambiguous cluster.
			e.log.Warn(
				"Person cluster without full name, assigning cluster-scoped pseudonym",
				slog.String("full_text", cluster.FullText),
			)
			identity.IsAmbiguous = true
			identity.AmbiguityReason = model.AmbiguityUnsplittableName
			e.assignClusterScoped(cluster, identity)
			return nil
		}
		first, _, err := e.mapper.ResolveOrAssign(cluster.FirstName, model.RoleFirstName, cluster.Category, cluster.Gender)
		if err != nil {
			return err
		}
		last, _, err := e.mapper.ResolveOrAssign(cluster.LastName, model.RoleLastName, cluster.Category, cluster.Gender)
		if err != nil {
			return err
		}
		identity.PseudonymFirstName = first
		identity.PseudonymLastName = last
	default:
		token, _, err := e.mapper.ResolveOrAssign(cluster.Token, model.RoleToken, cluster.Category, cluster.Gender)
		if err != nil {
			return err
		}
		identity.PseudonymToken = token
	}
	return nil
}

// assignClusterScoped draws pseudonym components that are reserved
// against collision but never written as component mappings, so an
// ambiguous guess cannot contaminate future lookups.
func (e *AssignmentEngine) assignClusterScoped(cluster *model.MentionCluster, identity *model.Identity) {
	switch {
	case cluster.Category == model.CategoryPerson && cluster.HasFullName():
		identity.PseudonymFirstName = e.mapper.ClusterScoped(cluster.Category, model.RoleFirstName, cluster.Gender)
		identity.PseudonymLastName = e.mapper.ClusterScoped(cluster.Category, model.RoleLastName, cluster.Gender)
	case cluster.Category == model.CategoryPerson:
		identity.PseudonymLastName = e.mapper.ClusterScoped(cluster.Category, model.RoleLastName, cluster.Gender)
	default:
		identity.PseudonymToken = e.mapper.ClusterScoped(cluster.Category, model.RoleToken, cluster.Gender)
	}
}

// hydratePseudonymComponents recovers the component pseudonyms of a
// stored identity from its persisted full pseudonym, so partial
// mentions of a reloaded identity still replace correctly.
func (e *AssignmentEngine) hydratePseudonymComponents(identity *model.Identity) {
	if identity.Category == model.CategoryPerson {
		if identity.PseudonymFirstName == "" && identity.PseudonymLastName == "" {
			first, last, ok := resolver.SplitPersonName(identity.PseudonymFullText)
			if ok {
				identity.PseudonymFirstName = first
				identity.PseudonymLastName = last
			} else {
				identity.PseudonymLastName = identity.PseudonymFullText
			}
		}
		return
	}
	if identity.PseudonymToken == "" {
		identity.PseudonymToken = identity.PseudonymFullText
	}
}

// replacementText picks the pseudonym form matching the mention's own
// form: a full mention gets the full pseudonym, a bare component gets
// that component's pseudonym, and an honorific prefix is kept in
// front of the replacement.
func (e *AssignmentEngine) replacementText(cluster *model.MentionCluster, mention *model.Mention, identity *model.Identity) string {
	title := mention.TitlePrefix
	remainder := mention.RawText
	if title == "" {
		title, remainder = resolver.StripTitle(mention.RawText)
	} else {
		// The span includes the prefix; drop it from the name part.
		_, remainder = resolver.StripTitle(mention.RawText)
	}
	normalized := resolver.NormalizeName(remainder)

	text := identity.Pseudonym()
	if cluster.Category == model.CategoryPerson && normalized != cluster.FullText {
		switch normalized {
		case cluster.FirstName:
			if identity.PseudonymFirstName != "" {
				text = identity.PseudonymFirstName
			}
		case cluster.LastName:
			if identity.PseudonymLastName != "" {
				text = identity.PseudonymLastName
			}
		}
	}

	if title != "" {
		return title + " " + text
	}
	return text
}
