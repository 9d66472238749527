package api

import (
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
)

// IngestRequest is the request body for submitting a candidate.
type IngestRequest struct {
	SourceURL   string            `json:"source_url" example:"https://github.com/acme/scraper"`
	SourceType  string            `json:"source_type" example:"github"`
	ContentType string            `json:"content_type" example:"code_snippet"`
	RawContent  string            `json:"raw_content,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Candidate converts the request into the pipeline's candidate record.
func (r IngestRequest) Candidate() models.RawCandidate {
	return models.RawCandidate{
		SourceURL:   r.SourceURL,
		SourceType:  r.SourceType,
		ContentType: r.ContentType,
		RawContent:  r.RawContent,
		Metadata:    r.Metadata,
	}
}

// IngestResponse is the synchronous ingestion response.
type IngestResponse = pipeline.Result

// AsyncAccepted is returned for asynchronous ingestion.
type AsyncAccepted struct {
	CorrelationID string `json:"correlation_id"`
}

// ReevaluateRequest optionally carries metadata enrichment for a forced
// re-evaluation.
type ReevaluateRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoopListResponse wraps paginated loop listings.
type LoopListResponse struct {
	Loops []models.Loop `json:"loops"`
	Total int           `json:"total" example:"42"`
}

// LoopDetail is the full representation of a loop with its pipeline
// artifacts.
type LoopDetail struct {
	Loop           models.Loop            `json:"loop"`
	Features       *models.FeatureSet     `json:"features,omitempty"`
	Decision       *models.Decision       `json:"decision,omitempty"`
	DuplicateLinks []models.DuplicateLink `json:"duplicate_links,omitempty"`
}

// DecisionListResponse wraps the pollable decision log.
type DecisionListResponse struct {
	Decisions []models.Decision `json:"decisions"`
}

// StatsResponse reports pipeline throughput and disposition breakdown.
type StatsResponse struct {
	models.PipelineStats
	QueueDepth int `json:"queue_depth"`
}
