// Package scoring maps FeatureSets to QualityScores through a replaceable
// strategy. The heuristic strategy is the v1 default; a learned model can
// be swapped in behind the same interface without touching callers.
package scoring

import (
	"fmt"
	"sync"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// Strategy is the replaceable scoring algorithm. Implementations must be
// deterministic for a given FeatureSet and safe for concurrent use.
type Strategy interface {
	Name() string
	Score(fs models.FeatureSet) (overall, confidence float64, reasons []string, err error)
}

// NewStrategy resolves a strategy by its configuration tag.
func NewStrategy(tag string) (Strategy, error) {
	switch tag {
	case "heuristic":
		return NewHeuristic(), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", apperr.ErrScoringUnavailable, tag)
	}
}

// Thresholds are the disposition cut-offs. Approve must exceed Reject.
type Thresholds struct {
	Approve float64
	Reject  float64
}

// Scorer wraps a Strategy with disposition thresholds. Thresholds may be
// swapped at runtime (hot reload); Scorer is safe for concurrent use.
type Scorer struct {
	strategy Strategy
	version  string

	mu         sync.RWMutex
	thresholds Thresholds
}

// NewScorer creates a Scorer around the given strategy.
func NewScorer(strategy Strategy, version string, t Thresholds) *Scorer {
	return &Scorer{strategy: strategy, version: version, thresholds: t}
}

// Version returns the scorer version tag recorded on every QualityScore.
func (s *Scorer) Version() string { return s.version }

// SetThresholds atomically replaces the disposition thresholds. Applies to
// candidates scored after the call; prior decisions are not re-evaluated.
func (s *Scorer) SetThresholds(t Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
}

// Thresholds returns the active thresholds.
func (s *Scorer) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Score runs the active strategy and derives the disposition. Boundary
// values resolve to needs_review: only a score strictly above the approve
// threshold approves, only one strictly below the reject threshold
// rejects. Strategy failure returns ErrScoringUnavailable.
func (s *Scorer) Score(fs models.FeatureSet) (models.QualityScore, error) {
	overall, confidence, reasons, err := s.strategy.Score(fs)
	if err != nil {
		return models.QualityScore{}, fmt.Errorf("%w: %v", apperr.ErrScoringUnavailable, err)
	}

	t := s.Thresholds()
	var disposition models.Disposition
	switch {
	case overall > t.Approve:
		disposition = models.DispositionApproved
		confidence *= clamp01((overall - t.Approve) / (1.0 - t.Approve))
	case overall < t.Reject:
		disposition = models.DispositionRejected
		confidence *= clamp01((t.Reject - overall) / t.Reject)
	default:
		disposition = models.DispositionNeedsReview
		confidence *= 0.5
	}

	if fs.Degraded && confidence > 0.3 {
		confidence = 0.3
		reasons = append(reasons, "Degraded extraction, confidence capped")
	}

	reasons = append(reasons, fmt.Sprintf("Overall score: %.2f -> %s", overall, disposition))

	return models.QualityScore{
		LoopID:        fs.LoopID,
		Overall:       overall,
		Disposition:   disposition,
		Confidence:    confidence,
		Reasons:       reasons,
		Strategy:      s.strategy.Name(),
		ScorerVersion: s.version,
	}, nil
}
