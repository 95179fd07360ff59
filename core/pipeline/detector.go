package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/pseudonymizer/core/resolver"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
)

// DefaultDetector creates a mention detector using a NER model
// Uses distilbert-NER for named entity recognition
// Detects: PERSON, ORGANIZATION, LOCATION mentions
func DefaultDetector() (DetectFunc, error) {
	// Prepare model (download if needed)
	// Using KnightsAnalytics optimized distilbert-NER model
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create token classification pipeline for NER
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(text string) ([]*model.Mention, error) {
		// Run NER on the text
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var mentions []*model.Mention
		for _, entity := range result.Entities[0] {
			category, err := model.ParseCategory(normalizeLabel(entity.Entity))
			if err != nil {
				// MISC and other labels have no pseudonym category.
				continue
			}

			start, end := int(entity.Start), int(entity.End)
			if start < 0 || end > len(text) || start >= end {
				continue
			}

			mention := &model.Mention{
				StartOffset: start,
				EndOffset:   end,
				RawText:     text[start:end],
				Category:    category,
			}
			if category == model.CategoryPerson {
				captureTitlePrefix(text, mention)
			}
			mentions = append(mentions, mention)
		}

		return mentions, nil
	}, nil
}

// normalizeLabel removes B- and I- prefixes from NER labels
func normalizeLabel(label string) string {
	// Remove BIO tagging prefixes (B- for beginning, I- for inside)
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// captureTitlePrefix widens a person span to include an honorific
// directly preceding it ("Mme Marie Dubois"). The prefix is recorded
// on the mention and kept inside the span so the replacement can
// preserve it.
func captureTitlePrefix(text string, mention *model.Mention) {
	end := mention.StartOffset
	for end > 0 && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	start := end
	for start > 0 && !unicode.IsSpace(rune(text[start-1])) {
		start--
	}
	if start >= end {
		return
	}

	token := text[start:end]
	if !resolver.IsTitle(token) {
		return
	}

	mention.TitlePrefix = token
	mention.StartOffset = start
	mention.RawText = text[start:mention.EndOffset]
}
