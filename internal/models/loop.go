// Package models defines the domain types for Laguz.
package models

import "time"

// SourceType identifies the connector family a candidate came from.
type SourceType string

// Known source types. Connectors may introduce new ones; the pipeline
// treats unknown types as generic.
const (
	SourceGitHub  SourceType = "github"
	SourceReddit  SourceType = "reddit"
	SourceForum   SourceType = "forum"
	SourceManual  SourceType = "manual"
	SourceGeneric SourceType = "generic"
)

// ContentType describes the shape of a candidate's raw content.
type ContentType string

const (
	ContentCodeSnippet ContentType = "code_snippet"
	ContentArticle     ContentType = "article"
	ContentHTML        ContentType = "html"
	ContentDiscussion  ContentType = "discussion"
)

// Disposition is the curation verdict for a loop.
type Disposition string

const (
	DispositionApproved    Disposition = "approved"
	DispositionRejected    Disposition = "rejected"
	DispositionNeedsReview Disposition = "needs_review"
)

// Stage enumerates the per-candidate state machine milestones.
type Stage string

const (
	StageReceived     Stage = "received"
	StageNormalized   Stage = "normalized"
	StageFeaturized   Stage = "featurized"
	StageScored       Stage = "scored"
	StageDedupChecked Stage = "dedup_checked"
	StageDecided      Stage = "decided"
)

// ComplexityLevel is the ordinal difficulty classification of a loop.
type ComplexityLevel string

const (
	ComplexityBeginner     ComplexityLevel = "beginner"
	ComplexityIntermediate ComplexityLevel = "intermediate"
	ComplexityAdvanced     ComplexityLevel = "advanced"
)

// RawCandidate is the normalized record a connector hands to the pipeline.
type RawCandidate struct {
	SourceURL   string            `json:"source_url"`
	SourceType  string            `json:"source_type"`
	ContentType string            `json:"content_type"`
	RawContent  string            `json:"raw_content,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Loop is a normalized candidate automation opportunity under curation.
// Identity is the canonical source URL; ID is its SHA-256 digest.
// Immutable after creation except for metadata enrichment.
type Loop struct {
	ID           string            `json:"id"`
	SourceURL    string            `json:"source_url"`
	SourceType   SourceType        `json:"source_type"`
	ContentType  ContentType       `json:"content_type"`
	RawContent   string            `json:"raw_content,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}

// FeatureSet holds the structured signals derived from a Loop. Exactly one
// per (loop, extractor version); immutable once written.
type FeatureSet struct {
	LoopID           string `json:"loop_id"`
	ExtractorVersion string `json:"extractor_version"`

	// Code signals.
	HasCode        bool    `json:"has_code"`
	CodeLanguage   string  `json:"code_language,omitempty"`
	CodeComplexity float64 `json:"code_complexity"`
	CodeLines      int     `json:"code_lines"`

	// Text signals.
	TitleLength         int             `json:"title_length"`
	DescriptionLength   int             `json:"description_length"`
	HasTutorial         bool            `json:"has_tutorial"`
	HasDocumentation    bool            `json:"has_documentation"`
	PrimaryCategory     string          `json:"primary_category"`
	SecondaryCategories []string        `json:"secondary_categories,omitempty"`
	Keywords            []string        `json:"keywords,omitempty"`
	AutomationType      string          `json:"automation_type"`
	ComplexityLevel     ComplexityLevel `json:"complexity_level"`

	// Popularity and reputation signals, all on a [0,1] scale.
	PopularityScore  float64 `json:"popularity_score"`
	AuthorReputation float64 `json:"author_reputation"`
	RecencyScore     float64 `json:"recency_score"`

	// Degraded marks feature sets produced from unusable content; the
	// scorer treats them as low confidence.
	Degraded    bool      `json:"degraded,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// QualityScore is the scoring strategy output for a loop. Score and
// disposition are always written together.
type QualityScore struct {
	LoopID        string      `json:"loop_id"`
	Overall       float64     `json:"overall_score"`
	Disposition   Disposition `json:"disposition"`
	Confidence    float64     `json:"confidence"`
	Reasons       []string    `json:"reasons"`
	Strategy      string      `json:"strategy"`
	ScorerVersion string      `json:"scorer_version"`
}

// EmbeddingVector is the fixed-dimension similarity vector for a loop.
// Used only for nearest-neighbor lookup, never displayed.
type EmbeddingVector struct {
	LoopID string    `json:"loop_id"`
	Vector []float32 `json:"-"`
}

// DuplicateLink records a near-duplicate relation found during dedup.
// Never mutated after creation.
type DuplicateLink struct {
	LoopID      string    `json:"loop_id"`
	DuplicateOf string    `json:"duplicate_of"`
	Similarity  float64   `json:"similarity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decision is the terminal curation artifact emitted to downstream
// consumers.
type Decision struct {
	LoopID           string      `json:"loop_id"`
	Disposition      Disposition `json:"disposition"`
	Overall          float64     `json:"overall_score"`
	Confidence       float64     `json:"confidence"`
	Reasons          []string    `json:"reasons"`
	DuplicateOf      string      `json:"duplicate_of,omitempty"`
	DedupSkipped     bool        `json:"dedup_skipped,omitempty"`
	ExtractorVersion string      `json:"extractor_version"`
	ScorerVersion    string      `json:"scorer_version"`
	DecidedAt        time.Time   `json:"decided_at"`
}

// PipelineStats summarizes disposition counts for reporting surfaces.
type PipelineStats struct {
	Total       int            `json:"total"`
	Approved    int            `json:"approved"`
	Rejected    int            `json:"rejected"`
	NeedsReview int            `json:"needs_review"`
	Categories  map[string]int `json:"categories,omitempty"`
}
