// Package apperr defines the pipeline error taxonomy.
package apperr

import "errors"

var (
	// ErrMalformedInput rejects a candidate at ingestion; no Loop is created.
	ErrMalformedInput = errors.New("malformed input")

	// ErrDuplicateIngestion signals an already-decided source URL. Not a
	// failure: callers receive the prior Decision.
	ErrDuplicateIngestion = errors.New("duplicate ingestion")

	// ErrNotFound is returned for unknown loop or decision identifiers.
	ErrNotFound = errors.New("not found")

	// ErrScoringUnavailable means the active strategy could not produce a
	// score; the candidate is routed to needs_review.
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrIndexUnavailable means the similarity index could not be queried;
	// dedup is skipped and the decision annotated.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
)
