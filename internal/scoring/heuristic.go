package scoring

import (
	"fmt"

	"github.com/starford/laguz/internal/models"
)

// Weighted linear combination weights for the v1 heuristic. They sum to 1
// so the overall score stays in [0,1].
const (
	weightPopularity     = 0.25
	weightCodeQuality    = 0.20
	weightContentQuality = 0.20
	weightCategorization = 0.15
	weightRecency        = 0.10
	weightAuthor         = 0.10
)

// highValueCategories are the automation categories worth curating most.
var highValueCategories = map[string]struct{}{
	"automation":      {},
	"web_scraping":    {},
	"api_wrapper":     {},
	"bot":             {},
	"data_processing": {},
}

// Heuristic is the rule-based v1 scoring strategy.
type Heuristic struct{}

// NewHeuristic creates the default heuristic strategy.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Name implements Strategy.
func (h *Heuristic) Name() string { return "heuristic" }

// Score implements Strategy with a weighted linear combination of
// normalized features. Each reason entry names the feature that pushed
// the score up or down.
func (h *Heuristic) Score(fs models.FeatureSet) (float64, float64, []string, error) {
	var reasons []string

	// Popularity.
	popularity := fs.PopularityScore
	if popularity >= 0.7 {
		reasons = append(reasons, fmt.Sprintf("High popularity (score: %.2f)", popularity))
	} else if popularity <= 0.2 {
		reasons = append(reasons, fmt.Sprintf("Low popularity (score: %.2f)", popularity))
	}

	// Code quality. Text-only loops get a flat low score.
	codeQuality := 0.3
	if fs.HasCode {
		lineScore := clamp01(float64(fs.CodeLines) / 100.0)
		codeQuality = clamp01(fs.CodeComplexity*0.6 + lineScore*0.4)
		reasons = append(reasons, fmt.Sprintf("Contains code (complexity: %.2f)", fs.CodeComplexity))
	} else {
		reasons = append(reasons, "No code detected")
	}

	// Content quality: description depth plus tutorial/documentation bonus.
	var contentQuality float64
	switch {
	case fs.DescriptionLength >= 200:
		contentQuality = 0.4
		reasons = append(reasons, "Detailed description")
	case fs.DescriptionLength < 50:
		contentQuality = 0.1
		reasons = append(reasons, "Very short description")
	default:
		contentQuality = 0.25
	}
	if fs.HasTutorial {
		contentQuality += 0.3
		reasons = append(reasons, "Has tutorial content")
	}
	if fs.HasDocumentation {
		contentQuality += 0.3
		reasons = append(reasons, "Has documentation")
	}
	contentQuality = clamp01(contentQuality)

	// Categorization: prefer concrete automation categories.
	var categorization float64
	if _, ok := highValueCategories[fs.PrimaryCategory]; ok {
		categorization = 0.8
		reasons = append(reasons, fmt.Sprintf("High-value category: %s", fs.PrimaryCategory))
	} else if fs.PrimaryCategory == "general" {
		categorization = 0.3
		reasons = append(reasons, "General category (unclear automation value)")
	} else {
		categorization = 0.5
	}

	overall := popularity*weightPopularity +
		codeQuality*weightCodeQuality +
		contentQuality*weightContentQuality +
		categorization*weightCategorization +
		fs.RecencyScore*weightRecency +
		fs.AuthorReputation*weightAuthor

	// Confidence reflects how much signal was available to score on.
	confidence := 1.0
	if fs.DescriptionLength == 0 {
		confidence = 0.7
	}

	return clamp01(overall), confidence, reasons, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
