package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "laguz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleLoop(id, url string) *models.Loop {
	return &models.Loop{
		ID:           id,
		SourceURL:    url,
		SourceType:   models.SourceGitHub,
		ContentType:  models.ContentCodeSnippet,
		RawContent:   "package main",
		Metadata:     map[string]string{"title": "widget"},
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"loops", "feature_sets", "quality_scores", "embeddings", "duplicate_links", "decisions"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestCreateAndGetLoop(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	loop := sampleLoop("l1", "https://github.com/acme/widget")

	if err := db.CreateLoop(ctx, loop); err != nil {
		t.Fatalf("CreateLoop: %v", err)
	}

	got, err := db.GetLoop(ctx, "l1")
	if err != nil {
		t.Fatalf("GetLoop: %v", err)
	}
	if got.SourceURL != loop.SourceURL || got.Metadata["title"] != "widget" {
		t.Errorf("got %+v", got)
	}

	byURL, err := db.GetLoopByURL(ctx, loop.SourceURL)
	if err != nil {
		t.Fatalf("GetLoopByURL: %v", err)
	}
	if byURL.ID != "l1" {
		t.Errorf("byURL.ID = %q", byURL.ID)
	}

	if _, err := db.GetLoop(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing loop err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetLoopByURL(ctx, "https://nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing url err = %v, want ErrNotFound", err)
	}
}

func TestEnrichLoopMetadata(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateLoop(ctx, sampleLoop("l1", "https://github.com/acme/widget")); err != nil {
		t.Fatal(err)
	}

	err := db.EnrichLoopMetadata(ctx, "l1", map[string]string{"stars": "900", "title": "renamed"})
	if err != nil {
		t.Fatalf("EnrichLoopMetadata: %v", err)
	}

	got, _ := db.GetLoop(ctx, "l1")
	if got.Metadata["stars"] != "900" {
		t.Errorf("new key not merged: %v", got.Metadata)
	}
	if got.Metadata["title"] != "renamed" {
		t.Errorf("existing key not updated: %v", got.Metadata)
	}
}

func TestFeatureSetImmutable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	fs := &models.FeatureSet{
		LoopID:           "l1",
		ExtractorVersion: "v1",
		PrimaryCategory:  "automation",
		Keywords:         []string{"workflow"},
		ComplexityLevel:  models.ComplexityIntermediate,
		ExtractedAt:      time.Now().UTC(),
	}
	if err := db.SaveFeatureSet(ctx, fs); err != nil {
		t.Fatalf("SaveFeatureSet: %v", err)
	}

	// Second write with the same (loop, version) is ignored.
	altered := *fs
	altered.PrimaryCategory = "bot"
	if err := db.SaveFeatureSet(ctx, &altered); err != nil {
		t.Fatalf("second SaveFeatureSet: %v", err)
	}

	got, err := db.GetFeatureSet(ctx, "l1")
	if err != nil {
		t.Fatalf("GetFeatureSet: %v", err)
	}
	if got.PrimaryCategory != "automation" {
		t.Errorf("feature set overwritten: category = %q", got.PrimaryCategory)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "workflow" {
		t.Errorf("keywords = %v", got.Keywords)
	}

	if _, err := db.GetFeatureSet(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing feature set err = %v", err)
	}
}

func TestDecisionSupersession(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := &models.Decision{
		LoopID: "l1", Disposition: models.DispositionNeedsReview,
		Overall: 0.5, Confidence: 0.5, Reasons: []string{"borderline"},
		ExtractorVersion: "v1", ScorerVersion: "v1", DecidedAt: time.Now().UTC(),
	}
	if err := db.SaveDecision(ctx, first); err != nil {
		t.Fatalf("SaveDecision: %v", err)
	}

	second := &models.Decision{
		LoopID: "l1", Disposition: models.DispositionApproved,
		Overall: 0.7, Confidence: 0.8, Reasons: []string{"rescored"},
		ExtractorVersion: "v2", ScorerVersion: "v2", DecidedAt: time.Now().UTC().Add(time.Second),
	}
	if err := db.SaveDecision(ctx, second); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	got, err := db.GetDecision(ctx, "l1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if got.Disposition != models.DispositionApproved || got.ScorerVersion != "v2" {
		t.Errorf("decision not superseded: %+v", got)
	}
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	vec := models.EmbeddingVector{LoopID: "l1", Vector: []float32{0.1, 0.2, 0.3, 0.4}}
	if err := db.SaveEmbedding(ctx, vec); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	// Not approved yet: rebuild set is empty.
	got, err := db.ApprovedEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("embeddings surfaced without approval: %d", len(got))
	}

	d := &models.Decision{
		LoopID: "l1", Disposition: models.DispositionApproved, Overall: 0.8, Confidence: 0.9,
		ExtractorVersion: "v1", ScorerVersion: "v1", DecidedAt: time.Now().UTC(),
	}
	if err := db.SaveDecision(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err = db.ApprovedEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("approved embeddings = %d, want 1", len(got))
	}
	for i, v := range vec.Vector {
		if got[0].Vector[i] != v {
			t.Fatalf("vector corrupted at %d: %v != %v", i, got[0].Vector[i], v)
		}
	}

	// Supersession to needs_review drops it from the rebuild set.
	d.Disposition = models.DispositionNeedsReview
	if err := db.SaveDecision(ctx, d); err != nil {
		t.Fatal(err)
	}
	got, _ = db.ApprovedEmbeddings(ctx)
	if len(got) != 0 {
		t.Errorf("superseded loop still in rebuild set: %d", len(got))
	}
}

func TestDuplicateLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	link := &models.DuplicateLink{LoopID: "l2", DuplicateOf: "l1", Similarity: 0.95, CreatedAt: time.Now().UTC()}
	if err := db.SaveDuplicateLink(ctx, link); err != nil {
		t.Fatalf("SaveDuplicateLink: %v", err)
	}
	// Re-detection of the same pair is a no-op.
	if err := db.SaveDuplicateLink(ctx, link); err != nil {
		t.Fatalf("repeat SaveDuplicateLink: %v", err)
	}

	links, err := db.DuplicateLinks(ctx, "l2")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	if links[0].DuplicateOf != "l1" || links[0].Similarity != 0.95 {
		t.Errorf("link = %+v", links[0])
	}
}

func TestListLoopsFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a := sampleLoop("a", "https://github.com/acme/a")
	b := sampleLoop("b", "https://reddit.com/r/automation/b")
	b.SourceType = models.SourceReddit
	for _, loop := range []*models.Loop{a, b} {
		if err := db.CreateLoop(ctx, loop); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SaveFeatureSet(ctx, &models.FeatureSet{
		LoopID: "a", ExtractorVersion: "v1", PrimaryCategory: "automation",
		ComplexityLevel: models.ComplexityIntermediate, ExtractedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveDecision(ctx, &models.Decision{
		LoopID: "a", Disposition: models.DispositionApproved, Overall: 0.8, Confidence: 0.9,
		ExtractorVersion: "v1", ScorerVersion: "v1", DecidedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	all, total, err := db.ListLoops(ctx, LoopFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("unfiltered: total=%d len=%d", total, len(all))
	}

	github, total, err := db.ListLoops(ctx, LoopFilter{SourceType: "github"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || github[0].ID != "a" {
		t.Errorf("source filter: total=%d %+v", total, github)
	}

	byCat, total, err := db.ListLoops(ctx, LoopFilter{Category: "automation"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || byCat[0].ID != "a" {
		t.Errorf("category filter: total=%d", total)
	}

	approved, total, err := db.ListLoops(ctx, LoopFilter{Disposition: "approved"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || approved[0].ID != "a" {
		t.Errorf("disposition filter: total=%d", total)
	}

	_, total, err = db.ListLoops(ctx, LoopFilter{Category: "security"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("empty filter match: total=%d", total)
	}
}

func TestListDecisionsSince(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"a", "b", "c"} {
		if err := db.SaveDecision(ctx, &models.Decision{
			LoopID: id, Disposition: models.DispositionApproved, Overall: 0.7, Confidence: 0.8,
			ExtractorVersion: "v1", ScorerVersion: "v1",
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListDecisions(ctx, base.Add(time.Minute), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("decisions since = %d, want 2", len(got))
	}
	// Oldest first.
	if got[0].LoopID != "b" || got[1].LoopID != "c" {
		t.Errorf("order = %s, %s", got[0].LoopID, got[1].LoopID)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	dispositions := []models.Disposition{
		models.DispositionApproved, models.DispositionApproved,
		models.DispositionRejected, models.DispositionNeedsReview,
	}
	for i, disp := range dispositions {
		if err := db.SaveDecision(ctx, &models.Decision{
			LoopID: string(rune('a' + i)), Disposition: disp, Overall: 0.5, Confidence: 0.5,
			ExtractorVersion: "v1", ScorerVersion: "v1", DecidedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SaveFeatureSet(ctx, &models.FeatureSet{
		LoopID: "a", ExtractorVersion: "v1", PrimaryCategory: "bot",
		ComplexityLevel: models.ComplexityIntermediate, ExtractedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Approved != 2 || stats.Rejected != 1 || stats.NeedsReview != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Categories["bot"] != 1 {
		t.Errorf("categories = %v", stats.Categories)
	}
}
