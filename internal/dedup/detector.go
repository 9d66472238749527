// Package dedup embeds loops into similarity vectors and flags
// near-duplicates against an index of previously approved loops. Index
// membership is a function of accepted history only: vectors are inserted
// after a Decision is finalized as approved, never before.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// Detector runs the redundancy check for the pipeline.
type Detector struct {
	embedder *Embedder
	index    SimilarityIndex

	mu        sync.RWMutex
	threshold float64

	now func() time.Time
}

// NewDetector creates a Detector with the given duplicate threshold.
func NewDetector(embedder *Embedder, index SimilarityIndex, threshold float64) *Detector {
	return &Detector{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetThreshold atomically replaces the duplicate threshold (hot reload).
func (d *Detector) SetThreshold(t float64) {
	d.mu.Lock()
	d.threshold = t
	d.mu.Unlock()
}

// Threshold returns the active duplicate threshold.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// Check embeds the loop and queries the index of approved loops. A
// DuplicateLink is returned when the top neighbor's similarity meets the
// threshold; the candidate's own vector is returned for a later Commit.
// Index failures surface as ErrIndexUnavailable so the caller can skip
// dedup and annotate the decision.
func (d *Detector) Check(fs models.FeatureSet, content string) (models.EmbeddingVector, *models.DuplicateLink, error) {
	vec := models.EmbeddingVector{
		LoopID: fs.LoopID,
		Vector: d.embedder.Embed(fs, content),
	}

	neighbor, found, err := d.index.Nearest(vec.Vector)
	if err != nil {
		return vec, nil, fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	if !found || neighbor.Similarity < d.Threshold() {
		return vec, nil, nil
	}

	return vec, &models.DuplicateLink{
		LoopID:      fs.LoopID,
		DuplicateOf: neighbor.LoopID,
		Similarity:  neighbor.Similarity,
		CreatedAt:   d.now().UTC(),
	}, nil
}

// Commit inserts a loop's vector into the index. Callers invoke this only
// once the loop's Decision is finalized as approved.
func (d *Detector) Commit(vec models.EmbeddingVector) error {
	if err := d.index.Insert(vec.LoopID, vec.Vector); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	return nil
}
