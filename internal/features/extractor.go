// Package features derives structured signals from Loops: code analysis,
// text analysis, and popularity/reputation scoring. Extraction is
// deterministic for a given extractor version and never fails fatally —
// unusable content yields zeroed defaults with a degraded marker.
package features

import (
	"context"
	"time"

	"github.com/starford/laguz/internal/models"
)

const maxKeywords = 10

// Extractor produces exactly one FeatureSet per Loop.
type Extractor struct {
	version string
	now     func() time.Time
}

// NewExtractor creates an Extractor stamped with the given version tag.
func NewExtractor(version string) *Extractor {
	return &Extractor{version: version, now: time.Now}
}

// Version returns the extractor version tag recorded on every FeatureSet.
func (e *Extractor) Version() string { return e.version }

// Extract runs the code, text, and popularity sub-analyses on a Loop and
// merges their outputs. Each sub-analysis fails soft; the returned
// FeatureSet is always usable by the scorer.
func (e *Extractor) Extract(_ context.Context, loop *models.Loop) models.FeatureSet {
	title := loop.Metadata["title"]
	content := loop.RawContent
	if loop.ContentType == models.ContentHTML && content != "" {
		content = StripHTML(content)
	}
	fullText := title + " " + content

	fs := models.FeatureSet{
		LoopID:           loop.ID,
		ExtractorVersion: e.version,
		ExtractedAt:      e.now().UTC(),
	}

	// Code signals.
	if HasCode(content) {
		fs.HasCode = true
		fs.CodeLanguage = DetectLanguage(content)
		fs.CodeComplexity = EstimateComplexity(content, fs.CodeLanguage)
		fs.CodeLines = CountLines(content)
	}

	// Text signals. Description depth prefers the connector-supplied
	// description; content length is the fallback for bare candidates.
	fs.TitleLength = len(title)
	if desc := loop.Metadata["description"]; desc != "" {
		fs.DescriptionLength = len(desc)
	} else {
		fs.DescriptionLength = len(content)
	}
	fs.HasTutorial = HasTutorialMarkers(fullText)
	fs.HasDocumentation = HasDocumentationMarkers(fullText)
	fs.Keywords = ExtractKeywords(fullText, maxKeywords)
	fs.PrimaryCategory, fs.SecondaryCategories = Categorize(fullText)
	fs.ComplexityLevel = DetectComplexityLevel(fullText)
	fs.AutomationType = fs.PrimaryCategory

	// Popularity signals.
	fs.PopularityScore = PopularityScore(loop.Metadata, loop.SourceType)
	fs.AuthorReputation = AuthorReputation(loop.Metadata)
	fs.RecencyScore = RecencyScore(loop.DiscoveredAt, e.now())

	// No usable content for any sub-analysis: keep the zeroed defaults
	// and mark the set so the scorer lowers its confidence.
	if title == "" && content == "" {
		fs.Degraded = true
	}

	return fs
}
