// Package resolver clusters the raw mention spans of one document
// into identity groups. Resolution is pure and read-only, so it is
// safe to run for many documents in parallel.
package resolver

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
)

// Resolver partitions mention spans into MentionClusters.
type Resolver struct {
	log *slog.Logger
}

// NewResolver creates a new resolver logging through the given logger.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{log: logger}
}

// normalized is one mention after title stripping.
type normalized struct {
	mention *model.Mention
	name    string
	gender  model.Gender
}

// Resolve clusters the mentions of one document. Zero mentions yield
// an empty result. A malformed mention rejects the document.
func (r *Resolver) Resolve(documentText string, mentions []*model.Mention) ([]*model.MentionCluster, error) {
	for _, mention := range mentions {
		if err := mention.Validate(len(documentText)); err != nil {
			return nil, helper.NewError("validate mention", fmt.Errorf("%w: %v", helper.ErrInvalidMention, err))
		}
	}
	if err := validateMentionSpans(mentions); err != nil {
		return nil, helper.NewError("validate mention", fmt.Errorf("%w: %v", helper.ErrInvalidMention, err))
	}

	var clusters []*model.MentionCluster
	persons := make([]*normalized, 0, len(mentions))
	others := make([]*normalized, 0, len(mentions))

	for _, mention := range mentions {
		title := mention.TitlePrefix
		name := NormalizeName(mention.RawText)
		if title == "" {
			title, name = StripTitle(mention.RawText)
			name = NormalizeName(name)
		} else {
			// Detector-supplied title prefixes still appear in the raw
			// span text; strip them from the name once more.
			_, name = StripTitle(name)
			name = NormalizeName(name)
		}

		if name == "" {
			// A title with no following name carries no identity.
			r.log.Debug("Discarding title-only mention", slog.Int("start", mention.StartOffset), slog.String("title", title))
			continue
		}

		gender := mention.GenderHint
		if gender == "" || gender == model.GenderUnknown {
			gender = TitleGender(title)
		}

		n := &normalized{mention: mention, name: name, gender: gender}
		if mention.Category == model.CategoryPerson {
			persons = append(persons, n)
		} else {
			others = append(others, n)
		}
	}

	clusters = append(clusters, r.clusterPersons(persons)...)
	clusters = append(clusters, r.clusterTokens(others)...)

	return clusters, nil
}

// validateMentionSpans rejects mention lists with overlapping byte
// ranges. Each mention passed per-mention validation already, so only
// the pairwise ordering is checked here.
func validateMentionSpans(mentions []*model.Mention) error {
	sorted := make([]*model.Mention, len(mentions))
	copy(sorted, mentions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartOffset < sorted[j].StartOffset
	})
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		cur := sorted[i]
		if cur.StartOffset < prev.EndOffset {
			return fmt.Errorf("mention [%d, %d) overlaps [%d, %d)", cur.StartOffset, cur.EndOffset, prev.StartOffset, prev.EndOffset)
		}
	}
	return nil
}

// clusterPersons applies the union-find bridging rules to PERSON
// mentions: identical full names merge, standalone tokens merge into
// a full cluster only when exactly one full cluster shares the token.
func (r *Resolver) clusterPersons(persons []*normalized) []*model.MentionCluster {
	fulls := make([]*normalized, 0, len(persons))
	standalones := make([]*normalized, 0, len(persons))
	for _, p := range persons {
		if _, _, ok := SplitPersonName(p.name); ok {
			fulls = append(fulls, p)
		} else {
			standalones = append(standalones, p)
		}
	}

	// Merge full mentions with identical normalized full text.
	uf := newUnionFind(len(fulls))
	byFullText := map[string]int{}
	for i, f := range fulls {
		if j, ok := byFullText[f.name]; ok {
			uf.union(i, j)
		} else {
			byFullText[f.name] = i
		}
	}

	clusterByRoot := map[int]*model.MentionCluster{}
	var clusters []*model.MentionCluster
	for i, f := range fulls {
		root := uf.find(i)
		cluster, ok := clusterByRoot[root]
		if !ok {
			firstName, lastName, _ := SplitPersonName(f.name)
			cluster = &model.MentionCluster{
				Category:  model.CategoryPerson,
				FullText:  f.name,
				FirstName: firstName,
				LastName:  lastName,
			}
			clusterByRoot[root] = cluster
			clusters = append(clusters, cluster)
		}
		cluster.Mentions = append(cluster.Mentions, f.mention)
		if cluster.Gender == "" || cluster.Gender == model.GenderUnknown {
			cluster.Gender = f.gender
		}
	}

	// Attach standalone tokens, or isolate them when merging could
	// bridge two different people through a shared name.
	for _, s := range standalones {
		var matches []*model.MentionCluster
		for _, cluster := range clusters {
			if !cluster.HasFullName() {
				continue
			}
			if cluster.FirstName == s.name || cluster.LastName == s.name {
				matches = append(matches, cluster)
			}
		}

		switch len(matches) {
		case 1:
			matches[0].Mentions = append(matches[0].Mentions, s.mention)
		case 0:
			clusters = append(clusters, &model.MentionCluster{
				Category:        model.CategoryPerson,
				FullText:        s.name,
				Token:           s.name,
				Gender:          s.gender,
				Mentions:        []*model.Mention{s.mention},
				IsAmbiguous:     true,
				AmbiguityReason: model.AmbiguityStandaloneToken,
			})
		default:
			r.log.Info(
				"Isolated ambiguous standalone mention",
				slog.String("token", s.name),
				slog.Int("matching_clusters", len(matches)),
			)
			clusters = append(clusters, &model.MentionCluster{
				Category:        model.CategoryPerson,
				FullText:        s.name,
				Token:           s.name,
				Gender:          s.gender,
				Mentions:        []*model.Mention{s.mention},
				IsAmbiguous:     true,
				AmbiguityReason: model.AmbiguitySharedToken,
			})
		}
	}

	return clusters
}

// clusterTokens groups LOCATION and ORGANIZATION mentions by their
// identical normalized text.
func (r *Resolver) clusterTokens(others []*normalized) []*model.MentionCluster {
	type key struct {
		category model.Category
		name     string
	}
	byKey := map[key]*model.MentionCluster{}
	var clusters []*model.MentionCluster
	for _, o := range others {
		k := key{category: o.mention.Category, name: o.name}
		cluster, ok := byKey[k]
		if !ok {
			cluster = &model.MentionCluster{
				Category: o.mention.Category,
				FullText: o.name,
				Token:    o.name,
			}
			byKey[k] = cluster
			clusters = append(clusters, cluster)
		}
		cluster.Mentions = append(cluster.Mentions, o.mention)
	}
	return clusters
}
