package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siherrmann/pseudonymizer/cipher"
	"github.com/siherrmann/pseudonymizer/core/engine"
	"github.com/siherrmann/pseudonymizer/core/mapper"
	"github.com/siherrmann/pseudonymizer/core/resolver"
	"github.com/siherrmann/pseudonymizer/database"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/library"
	"github.com/siherrmann/pseudonymizer/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// knownNames drives the stub detector used in place of a NER model.
var knownNames = map[string]model.Category{
	"Marie Dubois":   model.CategoryPerson,
	"Olivier Durand": model.CategoryPerson,
	"Alice Durand":   model.CategoryPerson,
	"Acme":           model.CategoryOrganization,
	"Lyon":           model.CategoryLocation,
	"Paris":          model.CategoryLocation,
}

func stubDetect(text string) ([]*model.Mention, error) {
	var mentions []*model.Mention
	for name, category := range knownNames {
		offset := 0
		for {
			start := strings.Index(text[offset:], name)
			if start < 0 {
				break
			}
			start += offset
			mentions = append(mentions, &model.Mention{
				StartOffset: start,
				EndOffset:   start + len(name),
				RawText:     name,
				Category:    category,
			})
			offset = start + len(name)
		}
	}
	return mentions, nil
}

func initCoordinator(t *testing.T) (*Coordinator, *database.MappingsDBHandler) {
	t.Helper()
	config := &helper.DatabaseConfiguration{
		Driver: helper.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := helper.NewDatabase("test", config, logger)
	require.NoError(t, err, "failed to create database")
	t.Cleanup(func() {
		db.Instance.Close()
	})

	key, err := cipher.DeriveKey("test passphrase", []byte("fixed-test-salt"), cipher.DefaultKDFIterations)
	require.NoError(t, err, "failed to derive key")
	codec, err := cipher.NewCodec(key)
	require.NoError(t, err, "failed to create codec")

	identities, err := database.NewIdentitiesDBHandler(db, codec, true)
	require.NoError(t, err, "failed to create identities handler")
	mappings, err := database.NewMappingsDBHandler(db, codec, true)
	require.NoError(t, err, "failed to create mappings handler")

	lib, err := library.Default()
	require.NoError(t, err, "failed to load library")
	m, err := mapper.NewMapper(mappings, lib, logger)
	require.NoError(t, err, "failed to create mapper")
	e, err := engine.NewAssignmentEngine(identities, m, logger)
	require.NoError(t, err, "failed to create engine")

	coordinator, err := NewCoordinator(stubDetect, resolver.NewResolver(logger), e, logger)
	require.NoError(t, err, "failed to create coordinator")

	return coordinator, mappings
}

func TestNewCoordinator(t *testing.T) {
	t.Run("Invalid call NewCoordinator with nil detector", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		_, err := NewCoordinator(nil, resolver.NewResolver(logger), nil, logger)
		assert.Error(t, err, "Expected error for nil detect function")
	})
}

func TestRun(t *testing.T) {
	t.Run("Batch commits every document", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		documents := []string{
			"Marie Dubois habite à Lyon.",
			"Acme a un bureau à Paris.",
			"Marie Dubois travaille chez Acme.",
		}

		plans, summary, err := coordinator.Run(context.Background(), documents, 3)
		require.NoError(t, err, "Expected Run to not return an error")
		require.NotNil(t, summary)
		assert.Equal(t, 3, summary.Committed, "Expected all documents committed")
		assert.Equal(t, 0, summary.Failed)

		for i, plan := range plans {
			require.NotNil(t, plan, "Expected a plan for document %d", i)
			output, err := plan.Apply(documents[i])
			require.NoError(t, err)
			assert.NotContains(t, output, "Marie", "Expected document %d to be pseudonymized", i)
			assert.NotContains(t, output, "Acme", "Expected document %d to be pseudonymized", i)
		}
	})

	t.Run("Same name maps identically across documents", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		documents := []string{
			"Marie Dubois habite à Lyon.",
			"Marie Dubois travaille chez Acme à Lyon.",
		}

		plans, _, err := coordinator.Run(context.Background(), documents, 2)
		require.NoError(t, err)

		var pseudonyms []string
		for _, plan := range plans {
			require.NotNil(t, plan)
			for _, replacement := range plan.Replacements {
				pseudonyms = append(pseudonyms, replacement.ReplacementText)
			}
		}
		// Both documents open with the same full name.
		assert.Equal(t, plans[0].Replacements[0].ReplacementText, plans[1].Replacements[0].ReplacementText,
			"Expected the same identity to receive the same pseudonym in every document")
	})

	t.Run("Concurrent run assigns without collisions", func(t *testing.T) {
		coordinator, mappings := initCoordinator(t)

		var documents []string
		for i := 0; i < 20; i++ {
			documents = append(documents, fmt.Sprintf("Marie Dubois et Alice Durand à Lyon, dossier %d.", i))
		}

		_, summary, err := coordinator.Run(context.Background(), documents, 8)
		require.NoError(t, err, "Expected Run to not return an error")
		assert.Equal(t, 20, summary.Committed)

		// Two first names, two last names, one location token total.
		firstCount, err := mappings.CountMappings(model.CategoryPerson, model.RoleFirstName)
		require.NoError(t, err)
		lastCount, err := mappings.CountMappings(model.CategoryPerson, model.RoleLastName)
		require.NoError(t, err)
		tokenCount, err := mappings.CountMappings(model.CategoryLocation, model.RoleToken)
		require.NoError(t, err)
		assert.Equal(t, 2, firstCount, "Expected exactly one mapping per distinct first name")
		assert.Equal(t, 2, lastCount, "Expected exactly one mapping per distinct last name")
		assert.Equal(t, 1, tokenCount, "Expected exactly one mapping for the location")
	})

	t.Run("Detection failure skips the document and continues", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		coordinator.detect = func(text string) ([]*model.Mention, error) {
			if strings.Contains(text, "corrompu") {
				return nil, fmt.Errorf("unreadable input")
			}
			return stubDetect(text)
		}

		documents := []string{
			"Marie Dubois habite à Lyon.",
			"document corrompu",
			"Acme a un bureau à Paris.",
		}

		plans, summary, err := coordinator.Run(context.Background(), documents, 2)
		require.NoError(t, err, "Expected a skipped document to not fail the batch")
		assert.Equal(t, 2, summary.Committed)
		assert.Equal(t, 1, summary.Failed)
		assert.Nil(t, plans[1], "Expected no plan for the skipped document")
		assert.Equal(t, model.StateFailed, summary.Documents[1].State)
		assert.NotEmpty(t, summary.Documents[1].Error)
	})

	t.Run("Invalid mention spans skip the document", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		coordinator.detect = func(text string) ([]*model.Mention, error) {
			return []*model.Mention{{StartOffset: 5, EndOffset: 2, RawText: "x", Category: model.CategoryPerson}}, nil
		}

		_, summary, err := coordinator.Run(context.Background(), []string{"un document"}, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed, "Expected the malformed document to fail")
		assert.Equal(t, 0, summary.Committed)
	})

	t.Run("Overlapping mention spans skip the document and continue", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		coordinator.detect = func(text string) ([]*model.Mention, error) {
			if strings.Contains(text, "Olivier") {
				return []*model.Mention{
					{StartOffset: 0, EndOffset: 7, RawText: "Olivier", Category: model.CategoryPerson},
					{StartOffset: 4, EndOffset: 11, RawText: "ier Dur", Category: model.CategoryPerson},
				}, nil
			}
			return stubDetect(text)
		}

		documents := []string{
			"Olivier Durand est ici.",
			"Marie Dubois habite à Lyon.",
		}

		plans, summary, err := coordinator.Run(context.Background(), documents, 1)
		require.NoError(t, err, "Expected a malformed document to not fail the batch")
		assert.Equal(t, 1, summary.Committed, "Expected the clean document to commit")
		assert.Equal(t, 1, summary.Failed)
		assert.Nil(t, plans[0], "Expected no plan for the malformed document")
		assert.NotNil(t, plans[1], "Expected a plan for the clean document")
		assert.Equal(t, model.StateFailed, summary.Documents[0].State)
		assert.Equal(t, model.StateCommitted, summary.Documents[1].State)
	})

	t.Run("Cancelled context fails remaining documents", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		plans, summary, err := coordinator.Run(ctx, []string{"Marie Dubois.", "Acme."}, 1)
		require.NoError(t, err, "Expected cancellation to not surface as a store error")
		assert.Equal(t, 0, summary.Committed, "Expected no commits after cancellation")
		assert.Equal(t, 2, summary.Failed)
		for _, plan := range plans {
			assert.Nil(t, plan)
		}
	})

	t.Run("Empty batch yields an empty summary", func(t *testing.T) {
		coordinator, _ := initCoordinator(t)
		plans, summary, err := coordinator.Run(context.Background(), nil, 4)
		require.NoError(t, err)
		assert.Empty(t, plans)
		assert.Equal(t, 0, summary.Committed)
		assert.Equal(t, 0, summary.Failed)
	})
}
