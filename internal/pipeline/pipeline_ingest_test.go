package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/dedup"
	"github.com/starford/laguz/internal/features"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/normalizer"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/scoring"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/testutil"
)

func ingest(t *testing.T, pipe *pipeline.Pipeline, cand models.RawCandidate) pipeline.Result {
	t.Helper()
	res, err := pipe.Ingest(context.Background(), cand)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return res
}

func TestIngestApproves(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	res := ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))
	if res.Outcome != pipeline.OutcomeCreated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if res.Decision == nil || res.Decision.Disposition != models.DispositionApproved {
		t.Fatalf("decision = %+v", res.Decision)
	}

	// Decision, feature set, and embedding are all persisted.
	ctx := context.Background()
	if _, err := db.GetDecision(ctx, res.LoopID); err != nil {
		t.Errorf("GetDecision: %v", err)
	}
	if _, err := db.GetFeatureSet(ctx, res.LoopID); err != nil {
		t.Errorf("GetFeatureSet: %v", err)
	}
	vecs, err := db.ApprovedEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 1 || vecs[0].LoopID != res.LoopID {
		t.Errorf("approved embeddings = %+v", vecs)
	}
}

func TestIngestIdempotent(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	first := ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))

	// Same identity, different URL spelling.
	cand := testutil.GithubCandidate("www.github.com/acme/widget#readme")
	second := ingest(t, pipe, cand)

	if second.Outcome != pipeline.OutcomeDuplicateIngestion {
		t.Fatalf("second outcome = %q", second.Outcome)
	}
	if second.LoopID != first.LoopID {
		t.Errorf("loop ids differ: %q vs %q", second.LoopID, first.LoopID)
	}
	if second.Decision.Disposition != first.Decision.Disposition ||
		second.Decision.Overall != first.Decision.Overall {
		t.Errorf("re-ingestion altered the decision: %+v vs %+v",
			second.Decision, first.Decision)
	}

	_, total, err := db.ListLoops(context.Background(), store.LoopFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("loops = %d, want 1", total)
	}
}

func TestIngestMalformed(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	res := ingest(t, pipe, models.RawCandidate{SourceURL: "ftp://example.com/x", SourceType: "generic"})
	if res.Outcome != pipeline.OutcomeRejectedMalformed {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if res.Error == "" {
		t.Error("error detail missing")
	}

	// Nothing persisted.
	_, total, err := db.ListLoops(context.Background(), store.LoopFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("malformed candidate persisted a loop: %d", total)
	}
}

func TestIngestEmptyContentStillDecides(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	res := ingest(t, pipe, models.RawCandidate{
		SourceURL:  "https://example.com/empty",
		SourceType: "manual",
	})
	if res.Outcome != pipeline.OutcomeCreated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if res.Decision == nil {
		t.Fatal("no decision for empty candidate")
	}
	if res.Decision.Disposition != models.DispositionNeedsReview {
		t.Errorf("disposition = %q, want needs_review", res.Decision.Disposition)
	}
	if res.Decision.Confidence > 0.3 {
		t.Errorf("degraded confidence = %v, want <= 0.3", res.Decision.Confidence)
	}

	fs, err := db.GetFeatureSet(context.Background(), res.LoopID)
	if err != nil {
		t.Fatal(err)
	}
	if !fs.Degraded {
		t.Error("empty content not marked degraded")
	}
}

func TestIngestRejectsLowSignal(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	res := ingest(t, pipe, models.RawCandidate{
		SourceURL:  "https://github.com/acme/abandoned",
		SourceType: "github",
		RawContent: "misc note",
		Metadata:   map[string]string{"stars": "0"},
	})
	if res.Decision.Disposition != models.DispositionRejected {
		t.Fatalf("disposition = %q, want rejected (score %v)",
			res.Decision.Disposition, res.Decision.Overall)
	}

	// Rejected loops never enter the similarity index.
	vecs, err := db.ApprovedEmbeddings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 0 {
		t.Errorf("rejected loop indexed: %+v", vecs)
	}
}

func TestDuplicateDowngradesApproved(t *testing.T) {
	pipe, _ := testutil.TestPipeline(t)

	first := ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))
	if first.Decision.Disposition != models.DispositionApproved {
		t.Fatalf("setup: first candidate not approved: %+v", first.Decision)
	}

	// Identical content under a different identity.
	second := ingest(t, pipe, testutil.GithubCandidate("https://github.com/mirror/widget"))
	if second.Outcome != pipeline.OutcomeCreated {
		t.Fatalf("second outcome = %q", second.Outcome)
	}
	if second.Decision.Disposition != models.DispositionNeedsReview {
		t.Errorf("duplicate disposition = %q, want needs_review", second.Decision.Disposition)
	}
	if second.Decision.DuplicateOf != first.LoopID {
		t.Errorf("DuplicateOf = %q, want %q", second.Decision.DuplicateOf, first.LoopID)
	}
	found := false
	for _, r := range second.Decision.Reasons {
		if strings.Contains(r, "Near-duplicate") {
			found = true
		}
	}
	if !found {
		t.Errorf("no duplicate reason in %v", second.Decision.Reasons)
	}
}

func TestDuplicateNeverUpgrades(t *testing.T) {
	pipe, _ := testutil.TestPipeline(t)

	// Approve one loop so the index is non-empty, then send a rejectable
	// candidate; the duplicate check must not change its disposition.
	ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))

	res := ingest(t, pipe, models.RawCandidate{
		SourceURL:  "https://github.com/acme/junk",
		SourceType: "github",
		RawContent: "misc note",
	})
	if res.Decision.Disposition != models.DispositionRejected {
		t.Errorf("disposition = %q, want rejected untouched by dedup", res.Decision.Disposition)
	}
}

func TestReevaluateSupersedes(t *testing.T) {
	pipe, db := testutil.TestPipeline(t)

	cand := testutil.GithubCandidate("https://github.com/acme/widget")
	cand.Metadata["stars"] = "100"
	first := ingest(t, pipe, cand)
	if first.Decision.Disposition != models.DispositionNeedsReview {
		t.Fatalf("setup: low-star candidate = %q (score %v), want needs_review",
			first.Decision.Disposition, first.Decision.Overall)
	}

	res, err := pipe.Reevaluate(context.Background(), first.LoopID, map[string]string{"stars": "2500"})
	if err != nil {
		t.Fatalf("Reevaluate: %v", err)
	}
	if res.Outcome != pipeline.OutcomeReevaluated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if res.Decision.Disposition != models.DispositionApproved {
		t.Errorf("reevaluated disposition = %q (score %v), want approved",
			res.Decision.Disposition, res.Decision.Overall)
	}

	stored, err := db.GetDecision(context.Background(), first.LoopID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Disposition != models.DispositionApproved {
		t.Errorf("stored decision not superseded: %q", stored.Disposition)
	}
}

func TestReevaluateUnknownLoop(t *testing.T) {
	pipe, _ := testutil.TestPipeline(t)
	if _, err := pipe.Reevaluate(context.Background(), "no-such-loop", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// failingStrategy simulates a scoring backend that is down.
type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Score(models.FeatureSet) (float64, float64, []string, error) {
	return 0, 0, nil, errors.New("model backend offline")
}

// downIndex simulates an unreachable similarity index.
type downIndex struct{}

func (downIndex) Nearest([]float32) (dedup.Neighbor, bool, error) {
	return dedup.Neighbor{}, false, errors.New("index offline")
}
func (downIndex) Insert(string, []float32) error { return errors.New("index offline") }
func (downIndex) Len() int                       { return 0 }

func customPipeline(t *testing.T, scorer *scoring.Scorer, detector *dedup.Detector) (*pipeline.Pipeline, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	pipe := pipeline.New(pipeline.Deps{
		Store:        db,
		Normalizer:   normalizer.New(db),
		Extractor:    features.NewExtractor("v1"),
		Scorer:       scorer,
		Detector:     detector,
		Workers:      1,
		StageTimeout: 5 * time.Second,
	})
	return pipe, db
}

func TestScoringFailureRoutesToReview(t *testing.T) {
	scorer := scoring.NewScorer(failingStrategy{}, "v1", scoring.Thresholds{Approve: 0.60, Reject: 0.35})
	detector := dedup.NewDetector(dedup.NewEmbedder(64), dedup.NewMemoryIndex(64), 0.90)
	pipe, db := customPipeline(t, scorer, detector)

	res := ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))
	if res.Outcome != pipeline.OutcomeCreated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if res.Decision.Disposition != models.DispositionNeedsReview {
		t.Errorf("disposition = %q, want needs_review when scoring is down", res.Decision.Disposition)
	}
	found := false
	for _, r := range res.Decision.Reasons {
		if strings.Contains(r, "scoring unavailable") {
			found = true
		}
	}
	if !found {
		t.Errorf("no scoring fallback reason in %v", res.Decision.Reasons)
	}

	// A review-routed candidate never enters the approved index.
	vecs, err := db.ApprovedEmbeddings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 0 {
		t.Errorf("unscored loop indexed: %+v", vecs)
	}
}

func TestIndexFailureSkipsDedup(t *testing.T) {
	strategy, err := scoring.NewStrategy("heuristic")
	if err != nil {
		t.Fatal(err)
	}
	scorer := scoring.NewScorer(strategy, "v1", scoring.Thresholds{Approve: 0.60, Reject: 0.35})
	detector := dedup.NewDetector(dedup.NewEmbedder(64), downIndex{}, 0.90)
	pipe, _ := customPipeline(t, scorer, detector)

	res := ingest(t, pipe, testutil.GithubCandidate("https://github.com/acme/widget"))
	if res.Outcome != pipeline.OutcomeCreated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	// Quality disposition stands; the skipped check only annotates.
	if res.Decision.Disposition != models.DispositionApproved {
		t.Errorf("disposition = %q, want approved despite index outage", res.Decision.Disposition)
	}
	if !res.Decision.DedupSkipped {
		t.Error("DedupSkipped not set on decision")
	}
	found := false
	for _, r := range res.Decision.Reasons {
		if r == "dedup-skipped" {
			found = true
		}
	}
	if !found {
		t.Errorf("no dedup-skipped annotation in %v", res.Decision.Reasons)
	}
}

func TestAsyncIngestion(t *testing.T) {
	pipe, _ := testutil.TestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = pipe.Run(ctx)
		close(done)
	}()

	corrID := pipe.Enqueue(testutil.GithubCandidate("https://github.com/acme/widget"))
	if corrID == "" {
		t.Fatal("empty correlation id")
	}

	deadline := time.Now().Add(5 * time.Second)
	var res pipeline.Result
	var ok bool
	for time.Now().Before(deadline) {
		if res, ok = pipe.AsyncResult(corrID); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ok {
		t.Fatal("async result never appeared")
	}
	if res.Outcome != pipeline.OutcomeCreated || res.LoopID != corrID {
		t.Errorf("async result = %+v", res)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker pool did not stop on cancel")
	}
}
