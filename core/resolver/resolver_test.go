package resolver

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mentionIn builds a mention for the first occurrence of text in doc.
func mentionIn(t *testing.T, doc string, text string, category model.Category) *model.Mention {
	t.Helper()
	start := strings.Index(doc, text)
	require.GreaterOrEqual(t, start, 0, "test text %q must occur in the document", text)
	return &model.Mention{
		StartOffset: start,
		EndOffset:   start + len(text),
		RawText:     text,
		Category:    category,
	}
}

func TestResolveEmpty(t *testing.T) {
	t.Run("Zero mentions yield an empty result", func(t *testing.T) {
		clusters, err := testResolver().Resolve("no entities here", nil)
		assert.NoError(t, err, "Expected Resolve to not return an error")
		assert.Empty(t, clusters, "Expected no clusters for no mentions")
	})
}

func TestResolveValidation(t *testing.T) {
	t.Run("Out of bounds mention rejects the document", func(t *testing.T) {
		_, err := testResolver().Resolve("short", []*model.Mention{{
			StartOffset: 0,
			EndOffset:   100,
			RawText:     "too long",
			Category:    model.CategoryPerson,
		}})
		assert.Error(t, err, "Expected error for out-of-bounds offsets")
		assert.ErrorIs(t, err, helper.ErrInvalidMention, "Expected the invalid mention sentinel")
	})

	t.Run("Empty category rejects the document", func(t *testing.T) {
		_, err := testResolver().Resolve("Marie Dubois", []*model.Mention{{
			StartOffset: 0,
			EndOffset:   12,
			RawText:     "Marie Dubois",
		}})
		assert.Error(t, err, "Expected error for an empty category")
		assert.ErrorIs(t, err, helper.ErrInvalidMention, "Expected the invalid mention sentinel")
	})

	t.Run("Overlapping mention spans reject the document", func(t *testing.T) {
		doc := "Marie Dubois habite ici"
		_, err := testResolver().Resolve(doc, []*model.Mention{
			{
				StartOffset: 0,
				EndOffset:   12,
				RawText:     "Marie Dubois",
				Category:    model.CategoryPerson,
			},
			{
				StartOffset: 6,
				EndOffset:   19,
				RawText:     "Dubois habite",
				Category:    model.CategoryPerson,
			},
		})
		assert.Error(t, err, "Expected error for overlapping spans")
		assert.ErrorIs(t, err, helper.ErrInvalidMention, "Expected the invalid mention sentinel")
	})
}

func TestResolveFullNames(t *testing.T) {
	t.Run("Identical full names merge into one cluster", func(t *testing.T) {
		doc := "Marie Dubois chaired. Later, Marie Dubois signed."
		first := mentionIn(t, doc, "Marie Dubois", model.CategoryPerson)
		second := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Marie Dubois"),
			EndOffset:   strings.LastIndex(doc, "Marie Dubois") + len("Marie Dubois"),
			RawText:     "Marie Dubois",
			Category:    model.CategoryPerson,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{first, second})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1, "Expected both mentions in one cluster")
		assert.Len(t, clusters[0].Mentions, 2, "Expected the cluster to hold both mentions")
		assert.Equal(t, "Marie", clusters[0].FirstName, "Expected the first name component")
		assert.Equal(t, "Dubois", clusters[0].LastName, "Expected the last name component")
		assert.False(t, clusters[0].IsAmbiguous, "Expected a full name cluster to not be ambiguous")
	})

	t.Run("Titled mentions merge with untitled full names", func(t *testing.T) {
		doc := "Dr. Marie Dubois examined. Marie Dubois concluded."
		titled := mentionIn(t, doc, "Dr. Marie Dubois", model.CategoryPerson)
		plain := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Marie Dubois"),
			EndOffset:   strings.LastIndex(doc, "Marie Dubois") + len("Marie Dubois"),
			RawText:     "Marie Dubois",
			Category:    model.CategoryPerson,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{titled, plain})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1, "Expected the titled mention to merge by its stripped name")
		assert.Len(t, clusters[0].Mentions, 2, "Expected both mentions in the merged cluster")
	})

	t.Run("Gendered title sets the cluster gender", func(t *testing.T) {
		doc := "Mme Alice Durand attended."
		mention := mentionIn(t, doc, "Mme Alice Durand", model.CategoryPerson)

		clusters, err := testResolver().Resolve(doc, []*model.Mention{mention})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1)
		assert.Equal(t, model.GenderFemale, clusters[0].Gender, "Expected Mme to imply female")
	})
}

func TestResolveStandaloneTokens(t *testing.T) {
	t.Run("A unique token match merges into the full cluster", func(t *testing.T) {
		doc := "Marie Dubois spoke first. Dubois replied later."
		full := mentionIn(t, doc, "Marie Dubois", model.CategoryPerson)
		bare := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Dubois"),
			EndOffset:   strings.LastIndex(doc, "Dubois") + len("Dubois"),
			RawText:     "Dubois",
			Category:    model.CategoryPerson,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{full, bare})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1, "Expected the bare surname to merge into its only matching cluster")
		assert.Len(t, clusters[0].Mentions, 2, "Expected the cluster to hold both mentions")
	})

	t.Run("A shared token is isolated instead of bridged", func(t *testing.T) {
		doc := "M. Olivier Durand and Mme Alice Durand met. Durand signed."
		olivier := mentionIn(t, doc, "M. Olivier Durand", model.CategoryPerson)
		alice := mentionIn(t, doc, "Mme Alice Durand", model.CategoryPerson)
		bare := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Durand"),
			EndOffset:   strings.LastIndex(doc, "Durand") + len("Durand"),
			RawText:     "Durand",
			Category:    model.CategoryPerson,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{olivier, alice, bare})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 3, "Expected two full clusters and one isolated cluster")

		var ambiguous *model.MentionCluster
		for _, cluster := range clusters {
			if cluster.IsAmbiguous {
				require.Nil(t, ambiguous, "Expected exactly one ambiguous cluster")
				ambiguous = cluster
			} else {
				assert.Len(t, cluster.Mentions, 1, "Expected the full clusters to stay uncorrupted")
			}
		}
		require.NotNil(t, ambiguous, "Expected the standalone mention to be isolated")
		assert.Equal(t, model.AmbiguitySharedToken, ambiguous.AmbiguityReason, "Expected the shared token reason code")
		assert.Equal(t, "Durand", ambiguous.Token, "Expected the isolated cluster to carry the token")
	})

	t.Run("A token without any match becomes its own ambiguous cluster", func(t *testing.T) {
		doc := "Dubois arrived alone."
		bare := mentionIn(t, doc, "Dubois", model.CategoryPerson)

		clusters, err := testResolver().Resolve(doc, []*model.Mention{bare})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1)
		assert.True(t, clusters[0].IsAmbiguous, "Expected a lone token cluster to be ambiguous")
		assert.Equal(t, model.AmbiguityStandaloneToken, clusters[0].AmbiguityReason, "Expected the standalone token reason code")
	})

	t.Run("A bare first name merges with its full cluster", func(t *testing.T) {
		doc := "Marie Dubois presented. Marie concluded."
		full := mentionIn(t, doc, "Marie Dubois", model.CategoryPerson)
		bare := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Marie"),
			EndOffset:   strings.LastIndex(doc, "Marie") + len("Marie"),
			RawText:     "Marie",
			Category:    model.CategoryPerson,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{full, bare})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 1, "Expected the bare first name to merge")
		assert.Len(t, clusters[0].Mentions, 2, "Expected the cluster to hold both mentions")
	})
}

func TestResolveTitleOnly(t *testing.T) {
	t.Run("A title-only mention is discarded as noise", func(t *testing.T) {
		doc := "Mme entered the room. Marie Dubois followed."
		titleOnly := mentionIn(t, doc, "Mme", model.CategoryPerson)
		full := mentionIn(t, doc, "Marie Dubois", model.CategoryPerson)

		clusters, err := testResolver().Resolve(doc, []*model.Mention{titleOnly, full})
		assert.NoError(t, err, "Expected a title-only mention to not be an error")
		require.Len(t, clusters, 1, "Expected only the full name cluster")
		assert.Equal(t, "Marie Dubois", clusters[0].FullText, "Expected the remaining cluster to be the full name")
	})
}

func TestResolveOtherCategories(t *testing.T) {
	t.Run("Locations cluster by identical text", func(t *testing.T) {
		doc := "The meeting in Lyon moved to Paris, then back to Lyon."
		first := mentionIn(t, doc, "Lyon", model.CategoryLocation)
		paris := mentionIn(t, doc, "Paris", model.CategoryLocation)
		second := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Lyon"),
			EndOffset:   strings.LastIndex(doc, "Lyon") + len("Lyon"),
			RawText:     "Lyon",
			Category:    model.CategoryLocation,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{first, paris, second})
		require.NoError(t, err, "Expected Resolve to not return an error")
		require.Len(t, clusters, 2, "Expected one cluster per distinct location")

		byToken := map[string]*model.MentionCluster{}
		for _, cluster := range clusters {
			byToken[cluster.Token] = cluster
		}
		assert.Len(t, byToken["Lyon"].Mentions, 2, "Expected both Lyon mentions in one cluster")
		assert.Len(t, byToken["Paris"].Mentions, 1, "Expected Paris in its own cluster")
	})

	t.Run("Organizations and persons do not mix", func(t *testing.T) {
		doc := "Durand worked at Durand."
		person := mentionIn(t, doc, "Durand", model.CategoryPerson)
		org := &model.Mention{
			StartOffset: strings.LastIndex(doc, "Durand"),
			EndOffset:   strings.LastIndex(doc, "Durand") + len("Durand"),
			RawText:     "Durand",
			Category:    model.CategoryOrganization,
		}

		clusters, err := testResolver().Resolve(doc, []*model.Mention{person, org})
		require.NoError(t, err, "Expected Resolve to not return an error")
		assert.Len(t, clusters, 2, "Expected separate clusters per category")
	})
}
