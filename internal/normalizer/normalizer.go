// Package normalizer validates and canonicalizes raw candidates into Loops.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/checksum"
	"github.com/starford/laguz/internal/models"
)

// LoopStore is the persistence surface the normalizer needs.
type LoopStore interface {
	GetLoopByURL(ctx context.Context, sourceURL string) (*models.Loop, error)
	CreateLoop(ctx context.Context, loop *models.Loop) error
}

// Normalizer turns raw candidate records into persisted Loops.
type Normalizer struct {
	store LoopStore
	now   func() time.Time
}

// New creates a Normalizer backed by the given store.
func New(store LoopStore) *Normalizer {
	return &Normalizer{store: store, now: time.Now}
}

// validateCandidate checks the mandatory candidate fields.
func validateCandidate(c models.RawCandidate) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SourceURL, validation.Required, validation.Length(1, 2048)),
		validation.Field(&c.SourceType, validation.Required),
	)
}

// CanonicalizeURL normalizes a source URL: fragment stripped, leading
// "www." removed, scheme defaulted to https. Returns ErrMalformedInput
// when the URL cannot identify a host.
func CanonicalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty url", apperr.ErrMalformedInput)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrMalformedInput, err)
	}
	if parsed.Scheme == "" {
		// Re-parse so a bare "host/path" form splits correctly.
		parsed, err = url.Parse("https://" + trimmed)
		if err != nil {
			return "", fmt.Errorf("%w: %v", apperr.ErrMalformedInput, err)
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", apperr.ErrMalformedInput, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: url has no host", apperr.ErrMalformedInput)
	}
	parsed.Fragment = ""
	parsed.Host = strings.ToLower(strings.TrimPrefix(parsed.Host, "www."))
	return parsed.String(), nil
}

// LoopID derives the stable loop identifier for a canonical source URL.
func LoopID(canonicalURL string) string {
	return checksum.Sum([]byte(canonicalURL))
}

func parseSourceType(s string) models.SourceType {
	switch models.SourceType(strings.ToLower(strings.TrimSpace(s))) {
	case models.SourceGitHub:
		return models.SourceGitHub
	case models.SourceReddit:
		return models.SourceReddit
	case models.SourceForum:
		return models.SourceForum
	case models.SourceManual:
		return models.SourceManual
	default:
		return models.SourceGeneric
	}
}

func parseContentType(s string) models.ContentType {
	switch models.ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case models.ContentCodeSnippet:
		return models.ContentCodeSnippet
	case models.ContentHTML:
		return models.ContentHTML
	case models.ContentDiscussion:
		return models.ContentDiscussion
	default:
		return models.ContentArticle
	}
}

// Normalize validates a raw candidate and returns the corresponding Loop.
// Re-ingestion of a known URL is a no-op success returning the existing
// Loop with created=false. Malformed candidates return ErrMalformedInput
// and persist nothing.
func (n *Normalizer) Normalize(ctx context.Context, cand models.RawCandidate) (loop *models.Loop, created bool, err error) {
	if err := validateCandidate(cand); err != nil {
		return nil, false, fmt.Errorf("%w: %v", apperr.ErrMalformedInput, err)
	}

	canonical, err := CanonicalizeURL(cand.SourceURL)
	if err != nil {
		return nil, false, err
	}

	existing, err := n.store.GetLoopByURL(ctx, canonical)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, fmt.Errorf("normalizer: lookup loop: %w", err)
	}

	loop = &models.Loop{
		ID:           LoopID(canonical),
		SourceURL:    canonical,
		SourceType:   parseSourceType(cand.SourceType),
		ContentType:  parseContentType(cand.ContentType),
		RawContent:   cand.RawContent,
		Metadata:     cand.Metadata,
		DiscoveredAt: n.now().UTC(),
	}
	if err := n.store.CreateLoop(ctx, loop); err != nil {
		return nil, false, fmt.Errorf("normalizer: persist loop: %w", err)
	}
	return loop, true, nil
}
