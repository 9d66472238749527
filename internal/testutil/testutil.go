// Package testutil provides shared test helpers for setting up databases and pipelines.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/laguz/internal/dedup"
	"github.com/starford/laguz/internal/features"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/normalizer"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/scoring"
	"github.com/starford/laguz/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPipeline wires a pipeline over a temporary database with the stock
// heuristic strategy and default thresholds.
func TestPipeline(t *testing.T) (*pipeline.Pipeline, *store.DB) {
	t.Helper()
	db := TestDB(t)

	strategy, err := scoring.NewStrategy("heuristic")
	if err != nil {
		t.Fatal(err)
	}
	scorer := scoring.NewScorer(strategy, "v1", scoring.Thresholds{Approve: 0.60, Reject: 0.35})

	dim := 64
	detector := dedup.NewDetector(dedup.NewEmbedder(dim), dedup.NewMemoryIndex(dim), 0.90)

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

// GithubCandidate returns a well-formed candidate with enough signal to
// clear the approve threshold under the heuristic strategy.
func GithubCandidate(url string) models.RawCandidate {
	return models.RawCandidate{
		SourceURL:   url,
		SourceType:  "github",
		ContentType: "code_snippet",
		RawContent: `package main

import "fmt"

func main() {
	for i := 0; i < 3; i++ {
		if err := work(i); err != nil {
			fmt.Println("error:", err)
		}
	}
}

This automation script shows how to build a deployment pipeline workflow
with continuous integration hooks, error handling, and retry logic. The
example walks through each step of the process in detail so you can adapt
the automation to your own infrastructure and testing setup.`,
		Metadata: map[string]string{
			"title":       "Deployment automation workflow",
			"description": "A detailed walkthrough of a CI/CD automation pipeline with code samples, retries and structured error handling for production use.",
			"author":      "acme-dev",
			"stars":       "2500",
			"created_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}
}
