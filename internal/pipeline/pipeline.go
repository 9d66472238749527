// Package pipeline orchestrates the curation state machine: received →
// normalized → featurized → scored → dedup-checked → decided. Each
// candidate runs the stages sequentially; failures past normalization
// degrade toward needs_review instead of halting, so every well-formed
// candidate receives a disposition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/dedup"
	"github.com/starford/laguz/internal/features"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/normalizer"
	"github.com/starford/laguz/internal/scoring"
	"github.com/starford/laguz/internal/store"
)

// Emitter publishes finalized decisions to downstream consumers.
type Emitter interface {
	PublishDecision(d models.Decision)
}

// Outcome classifies what an ingestion call did.
type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeDuplicateIngestion Outcome = "duplicate_ingestion"
	OutcomeRejectedMalformed  Outcome = "rejected_malformed"
	OutcomeReevaluated        Outcome = "reevaluated"
)

// Result is the ingestion outcome returned to callers.
type Result struct {
	Outcome  Outcome          `json:"outcome"`
	LoopID   string           `json:"loop_id,omitempty"`
	Decision *models.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Deps wires the stage components into the orchestrator.
type Deps struct {
	Store      store.Store
	Normalizer *normalizer.Normalizer
	Extractor  *features.Extractor
	Scorer     *scoring.Scorer
	Detector   *dedup.Detector
	Emitter    Emitter
	Logger     *slog.Logger

	Workers       int
	QueueCapacity int
	StageTimeout  time.Duration
}

// Pipeline sequences the curation stages and guarantees at-most-one
// concurrent run per source identity.
type Pipeline struct {
	store        store.Store
	normalizer   *normalizer.Normalizer
	extractor    *features.Extractor
	scorer       *scoring.Scorer
	detector     *dedup.Detector
	emitter      Emitter
	logger       *slog.Logger
	workers      int
	stageTimeout time.Duration

	locks *keyedLock
	queue *ingestQueue

	asyncMu      sync.RWMutex
	asyncResults map[string]Result

	now func() time.Time
}

// New constructs the orchestrator.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:        deps.Store,
		normalizer:   deps.Normalizer,
		extractor:    deps.Extractor,
		scorer:       deps.Scorer,
		detector:     deps.Detector,
		emitter:      deps.Emitter,
		logger:       logger,
		workers:      workers,
		stageTimeout: deps.StageTimeout,
		locks:        newKeyedLock(),
		queue:        newIngestQueue(deps.QueueCapacity),
		asyncResults: make(map[string]Result),
		now:          time.Now,
	}
}

// Ingest runs one candidate through the full state machine and returns
// its Result. Outcomes are encoded in the Result; a non-nil error means
// an infrastructure failure (storage, cancellation), not a disposition.
func (p *Pipeline) Ingest(ctx context.Context, cand models.RawCandidate) (Result, error) {
	canonical, err := normalizer.CanonicalizeURL(cand.SourceURL)
	if err != nil {
		return p.rejectMalformed(err), nil
	}

	// Serialize races on the same source identity for the whole
	// received → decided span.
	release, err := p.locks.Acquire(ctx, canonical)
	if err != nil {
		return Result{}, err
	}
	defer release()

	loop, created, err := p.normalizer.Normalize(ctx, cand)
	if errors.Is(err, apperr.ErrMalformedInput) {
		return p.rejectMalformed(err), nil
	}
	if err != nil {
		return Result{}, err
	}

	if !created {
		decision, err := p.store.GetDecision(ctx, loop.ID)
		if err == nil {
			// Idempotent re-ingestion: return the prior Decision untouched.
			return Result{Outcome: OutcomeDuplicateIngestion, LoopID: loop.ID, Decision: decision}, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return Result{}, err
		}
		// Loop exists without a decision (earlier run died mid-flight);
		// finish processing it.
	}

	decision, err := p.process(ctx, loop)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeCreated, LoopID: loop.ID, Decision: decision}, nil
}

// Reevaluate reruns the stages for an already-decided loop under the
// currently configured extractor/scorer versions, superseding the stored
// Decision. New candidate metadata, if any, is merged first.
func (p *Pipeline) Reevaluate(ctx context.Context, loopID string, metadata map[string]string) (Result, error) {
	loop, err := p.store.GetLoop(ctx, loopID)
	if err != nil {
		return Result{}, err
	}

	release, err := p.locks.Acquire(ctx, loop.SourceURL)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if len(metadata) > 0 {
		if err := p.store.EnrichLoopMetadata(ctx, loop.ID, metadata); err != nil {
			return Result{}, err
		}
		if loop, err = p.store.GetLoop(ctx, loop.ID); err != nil {
			return Result{}, err
		}
	}

	decision, err := p.process(ctx, loop)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeReevaluated, LoopID: loop.ID, Decision: decision}, nil
}

func (p *Pipeline) rejectMalformed(cause error) Result {
	decision := models.Decision{
		Disposition: models.DispositionRejected,
		Reasons:     []string{"malformed input"},
		DecidedAt:   p.now().UTC(),
	}
	if p.emitter != nil {
		p.emitter.PublishDecision(decision)
	}
	p.logger.Info("candidate rejected at ingestion", slog.String("error", cause.Error()))
	return Result{Outcome: OutcomeRejectedMalformed, Error: cause.Error()}
}

// process runs featurize → score → dedup-check → decide for a normalized
// loop and persists each stage output before the next stage consumes it.
func (p *Pipeline) process(ctx context.Context, loop *models.Loop) (*models.Decision, error) {
	log := p.logger.With(slog.String("loop_id", loop.ID))
	log.Debug("stage complete", slog.String("stage", string(models.StageNormalized)))

	// Featurize. A timed-out extraction degrades to zeroed defaults.
	fs, err := runStage(ctx, p.stageTimeout, "extract", func(sctx context.Context) (models.FeatureSet, error) {
		return p.extractor.Extract(sctx, loop), nil
	})
	if err != nil {
		log.Warn("extraction degraded", slog.String("error", err.Error()))
		fs = models.FeatureSet{
			LoopID:           loop.ID,
			ExtractorVersion: p.extractor.Version(),
			PrimaryCategory:  features.CategoryGeneral,
			AutomationType:   features.CategoryGeneral,
			ComplexityLevel:  models.ComplexityIntermediate,
			Degraded:         true,
			ExtractedAt:      p.now().UTC(),
		}
	}
	if err := p.store.SaveFeatureSet(ctx, &fs); err != nil {
		return nil, err
	}
	log.Debug("stage complete", slog.String("stage", string(models.StageFeaturized)))

	// Score. An unavailable strategy routes to needs_review, never drops.
	qs, err := runStage(ctx, p.stageTimeout, "score", func(context.Context) (models.QualityScore, error) {
		return p.scorer.Score(fs)
	})
	if err != nil {
		log.Warn("scoring unavailable, routing to review", slog.String("error", err.Error()))
		qs = models.QualityScore{
			LoopID:        loop.ID,
			Disposition:   models.DispositionNeedsReview,
			Reasons:       []string{"scoring unavailable, routed to review"},
			Strategy:      "none",
			ScorerVersion: p.scorer.Version(),
		}
	}
	if err := p.store.SaveQualityScore(ctx, &qs); err != nil {
		return nil, err
	}
	log.Debug("stage complete", slog.String("stage", string(models.StageScored)))

	// Dedup check against approved history.
	dedupSkipped := false
	dr, err := runStage(ctx, p.stageTimeout, "dedup", func(context.Context) (dedupResult, error) {
		vec, link, derr := p.detector.Check(fs, loop.RawContent)
		return dedupResult{vec: vec, link: link}, derr
	})
	if err != nil {
		dedupSkipped = true
		log.Warn("dedup skipped", slog.String("error", err.Error()))
	}
	vec, link := dr.vec, dr.link
	log.Debug("stage complete", slog.String("stage", string(models.StageDedupChecked)))

	// Finalize. A duplicate can only downgrade approved to needs_review.
	decision := models.Decision{
		LoopID:           loop.ID,
		Disposition:      qs.Disposition,
		Overall:          qs.Overall,
		Confidence:       qs.Confidence,
		Reasons:          qs.Reasons,
		DedupSkipped:     dedupSkipped,
		ExtractorVersion: fs.ExtractorVersion,
		ScorerVersion:    qs.ScorerVersion,
		DecidedAt:        p.now().UTC(),
	}
	if link != nil {
		if err := p.store.SaveDuplicateLink(ctx, link); err != nil {
			return nil, err
		}
		decision.DuplicateOf = link.DuplicateOf
		if decision.Disposition == models.DispositionApproved {
			decision.Disposition = models.DispositionNeedsReview
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("Near-duplicate of %s (similarity %.2f), routed to review", link.DuplicateOf, link.Similarity))
		}
	}
	if dedupSkipped {
		decision.Reasons = append(decision.Reasons, "dedup-skipped")
	}
	if err := p.store.SaveDecision(ctx, &decision); err != nil {
		return nil, err
	}

	// Index membership tracks accepted history only: insert after the
	// Decision is finalized approved, and before the event is emitted so
	// observers get read-your-writes.
	if decision.Disposition == models.DispositionApproved && len(vec.Vector) > 0 {
		if err := p.store.SaveEmbedding(ctx, vec); err != nil {
			log.Warn("persist embedding failed", slog.String("error", err.Error()))
		}
		if err := p.detector.Commit(vec); err != nil {
			log.Warn("index insert failed", slog.String("error", err.Error()))
		}
	}

	if p.emitter != nil {
		p.emitter.PublishDecision(decision)
	}
	log.Info("candidate decided",
		slog.String("stage", string(models.StageDecided)),
		slog.String("disposition", string(decision.Disposition)),
		slog.Float64("overall", decision.Overall))
	return &decision, nil
}

// dedupResult bundles the dedup stage outputs for runStage.
type dedupResult struct {
	vec  models.EmbeddingVector
	link *models.DuplicateLink
}

// stageOutput carries a stage's result across the timeout boundary.
type stageOutput[T any] struct {
	val T
	err error
}

// runStage executes fn bounded by the timeout. The stage delivers its
// result over a channel; on timeout the caller gets the zero value and an
// error, and anything the abandoned goroutine produces later is discarded
// rather than written into caller state. A timed-out stage is an error for
// the caller's soft-failure handling.
func runStage[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stageOutput[T], 1)
	go func() {
		v, err := fn(sctx)
		done <- stageOutput[T]{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-sctx.Done():
		var zero T
		return zero, fmt.Errorf("stage %s: %w", name, sctx.Err())
	}
}

// Enqueue admits a candidate for asynchronous processing and returns the
// correlation id for later pickup. Well-formed URLs correlate by loop id
// so the decision is also retrievable through the regular endpoints.
func (p *Pipeline) Enqueue(cand models.RawCandidate) string {
	corrID := ""
	if canonical, err := normalizer.CanonicalizeURL(cand.SourceURL); err == nil {
		corrID = normalizer.LoopID(canonical)
	} else {
		corrID = uuid.NewString()
	}
	p.queue.push(job{correlationID: corrID, candidate: cand})
	return corrID
}

// AsyncResult returns the stored result for a correlation id, if the
// candidate has finished processing.
func (p *Pipeline) AsyncResult(correlationID string) (Result, bool) {
	p.asyncMu.RLock()
	defer p.asyncMu.RUnlock()
	res, ok := p.asyncResults[correlationID]
	return res, ok
}

func (p *Pipeline) setAsyncResult(correlationID string, res Result) {
	p.asyncMu.Lock()
	p.asyncResults[correlationID] = res
	p.asyncMu.Unlock()
}

// QueueDepth reports the async backlog size.
func (p *Pipeline) QueueDepth() int {
	return p.queue.size()
}

// Run starts the worker pool draining the ingestion queue and blocks
// until ctx is cancelled. Workers are stateless; parallelism across
// distinct source identities is bounded only by the worker count.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				j, err := p.queue.pop(gctx)
				if err != nil {
					return nil
				}
				res, ierr := p.Ingest(gctx, j.candidate)
				if ierr != nil {
					p.logger.Error("ingestion failed",
						slog.String("correlation_id", j.correlationID),
						slog.String("error", ierr.Error()))
					res = Result{Error: ierr.Error()}
				}
				p.setAsyncResult(j.correlationID, res)
			}
		})
	}
	return g.Wait()
}
