package store

import (
	"context"
	"time"

	"github.com/starford/laguz/internal/models"
)

// Store defines the persistence surface for the curation pipeline.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Store interface {
	CreateLoop(ctx context.Context, loop *models.Loop) error
	GetLoop(ctx context.Context, id string) (*models.Loop, error)
	GetLoopByURL(ctx context.Context, sourceURL string) (*models.Loop, error)
	EnrichLoopMetadata(ctx context.Context, id string, metadata map[string]string) error
	ListLoops(ctx context.Context, filter LoopFilter) ([]models.Loop, int, error)

	SaveFeatureSet(ctx context.Context, fs *models.FeatureSet) error
	GetFeatureSet(ctx context.Context, loopID string) (*models.FeatureSet, error)

	SaveQualityScore(ctx context.Context, qs *models.QualityScore) error

	SaveEmbedding(ctx context.Context, vec models.EmbeddingVector) error
	ApprovedEmbeddings(ctx context.Context) ([]models.EmbeddingVector, error)

	SaveDuplicateLink(ctx context.Context, link *models.DuplicateLink) error
	DuplicateLinks(ctx context.Context, loopID string) ([]models.DuplicateLink, error)

	SaveDecision(ctx context.Context, d *models.Decision) error
	GetDecision(ctx context.Context, loopID string) (*models.Decision, error)
	ListDecisions(ctx context.Context, since time.Time, limit int) ([]models.Decision, error)

	Stats(ctx context.Context) (models.PipelineStats, error)
	Close() error
}

// LoopFilter narrows ListLoops results.
type LoopFilter struct {
	SourceType  string
	Category    string
	Disposition string
	Limit       int
	Offset      int
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
