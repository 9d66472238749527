package features

import (
	"context"
	"testing"
	"time"

	"github.com/starford/laguz/internal/models"
)

func TestExtract(t *testing.T) {
	ex := NewExtractor("v1")
	loop := &models.Loop{
		ID:         "loop-1",
		SourceURL:  "https://github.com/acme/scraper",
		SourceType: models.SourceGitHub,
		RawContent: goSample + "\nA web scraper tutorial: a crawler spider built on selenium, explained step by step.",
		Metadata: map[string]string{
			"title":  "Scraper automation",
			"author": "acme",
			"stars":  "800",
		},
		DiscoveredAt: time.Now(),
	}

	fs := ex.Extract(context.Background(), loop)

	if fs.LoopID != "loop-1" || fs.ExtractorVersion != "v1" {
		t.Fatalf("identity fields wrong: %+v", fs)
	}
	if !fs.HasCode {
		t.Error("code not detected")
	}
	if fs.CodeLanguage != "go" {
		t.Errorf("language = %q, want go", fs.CodeLanguage)
	}
	if fs.PrimaryCategory != "web_scraping" {
		t.Errorf("primary category = %q, want web_scraping", fs.PrimaryCategory)
	}
	if fs.AutomationType != fs.PrimaryCategory {
		t.Errorf("automation type %q != primary category %q", fs.AutomationType, fs.PrimaryCategory)
	}
	if !fs.HasTutorial {
		t.Error("tutorial markers missed")
	}
	if fs.PopularityScore != 0.8 {
		t.Errorf("popularity = %v, want 0.8", fs.PopularityScore)
	}
	if fs.Degraded {
		t.Error("usable content marked degraded")
	}
	if len(fs.Keywords) == 0 {
		t.Error("no keywords extracted")
	}
}

func TestExtractEmptyContentDegrades(t *testing.T) {
	ex := NewExtractor("v1")
	fs := ex.Extract(context.Background(), &models.Loop{ID: "empty", SourceType: models.SourceManual})

	if !fs.Degraded {
		t.Fatal("empty loop not marked degraded")
	}
	if fs.PrimaryCategory != CategoryGeneral {
		t.Errorf("primary category = %q, want %q", fs.PrimaryCategory, CategoryGeneral)
	}
	if fs.ComplexityLevel != models.ComplexityIntermediate {
		t.Errorf("complexity = %q, want intermediate", fs.ComplexityLevel)
	}
	if fs.HasCode {
		t.Error("empty loop cannot have code")
	}
}

func TestExtractDescriptionLength(t *testing.T) {
	ex := NewExtractor("v1")
	desc := "A short summary of the project."
	withDesc := ex.Extract(context.Background(), &models.Loop{
		ID:         "desc-1",
		SourceType: models.SourceGitHub,
		RawContent: goSample,
		Metadata:   map[string]string{"description": desc},
	})
	if withDesc.DescriptionLength != len(desc) {
		t.Errorf("description length = %d, want %d (metadata description)",
			withDesc.DescriptionLength, len(desc))
	}

	// Without connector metadata the content itself is the description.
	bare := ex.Extract(context.Background(), &models.Loop{
		ID:         "desc-2",
		SourceType: models.SourceGitHub,
		RawContent: goSample,
	})
	if bare.DescriptionLength != len(goSample) {
		t.Errorf("fallback description length = %d, want %d",
			bare.DescriptionLength, len(goSample))
	}
}

func TestExtractStripsHTML(t *testing.T) {
	ex := NewExtractor("v1")
	loop := &models.Loop{
		ID:          "html-1",
		SourceType:  models.SourceForum,
		ContentType: models.ContentHTML,
		RawContent:  "<html><body><script>var x=1</script><p>A crawler discussion</p></body></html>",
	}
	fs := ex.Extract(context.Background(), loop)

	if fs.HasCode {
		t.Error("script tag content leaked into code detection")
	}
	if fs.PrimaryCategory != "web_scraping" {
		t.Errorf("primary category = %q, want web_scraping", fs.PrimaryCategory)
	}
}

func TestExtractDeterministic(t *testing.T) {
	ex := NewExtractor("v1")
	loop := &models.Loop{
		ID:         "det-1",
		SourceType: models.SourceGeneric,
		RawContent: "An automation workflow for scheduling tasks",
	}
	a := ex.Extract(context.Background(), loop)
	b := ex.Extract(context.Background(), loop)

	a.ExtractedAt, b.ExtractedAt = time.Time{}, time.Time{}
	if a.PrimaryCategory != b.PrimaryCategory || len(a.Keywords) != len(b.Keywords) {
		t.Errorf("extraction not deterministic: %+v vs %+v", a, b)
	}
}
