package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// CreateLoop inserts a new loop. The source URL is unique; callers check
// existence first via GetLoopByURL.
func (db *DB) CreateLoop(ctx context.Context, loop *models.Loop) error {
	md, err := json.Marshal(loop.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO loops (id, source_url, source_type, content_type, raw_content, metadata, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, loop.ID, loop.SourceURL, string(loop.SourceType), string(loop.ContentType),
		loop.RawContent, string(md), loop.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("store: insert loop: %w", err)
	}
	return nil
}

func scanLoop(row interface{ Scan(...any) error }) (*models.Loop, error) {
	var loop models.Loop
	var sourceType, contentType, md string
	err := row.Scan(&loop.ID, &loop.SourceURL, &sourceType, &contentType,
		&loop.RawContent, &md, &loop.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	loop.SourceType = models.SourceType(sourceType)
	loop.ContentType = models.ContentType(contentType)
	if err := json.Unmarshal([]byte(md), &loop.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
	}
	return &loop, nil
}

const loopColumns = `id, source_url, source_type, content_type, raw_content, metadata, discovered_at`

// GetLoop fetches a loop by id.
func (db *DB) GetLoop(ctx context.Context, id string) (*models.Loop, error) {
	loop, err := scanLoop(db.conn.QueryRowContext(ctx,
		`SELECT `+loopColumns+` FROM loops WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get loop: %w", err)
	}
	return loop, nil
}

// GetLoopByURL fetches a loop by its canonical source URL.
func (db *DB) GetLoopByURL(ctx context.Context, sourceURL string) (*models.Loop, error) {
	loop, err := scanLoop(db.conn.QueryRowContext(ctx,
		`SELECT `+loopColumns+` FROM loops WHERE source_url = ?`, sourceURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get loop by url: %w", err)
	}
	return loop, nil
}

// EnrichLoopMetadata merges new keys into a loop's metadata. This is the
// only permitted mutation of a loop.
func (db *DB) EnrichLoopMetadata(ctx context.Context, id string, metadata map[string]string) error {
	loop, err := db.GetLoop(ctx, id)
	if err != nil {
		return err
	}
	merged := make(map[string]string, len(loop.Metadata)+len(metadata))
	for k, v := range loop.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	md, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `UPDATE loops SET metadata = ? WHERE id = ?`, string(md), id)
	if err != nil {
		return fmt.Errorf("store: enrich metadata: %w", err)
	}
	return nil
}

// ListLoops returns loops matching the filter plus the total match count.
func (db *DB) ListLoops(ctx context.Context, filter LoopFilter) ([]models.Loop, int, error) {
	base := sq.Select().From("loops l")
	if filter.SourceType != "" {
		base = base.Where(sq.Eq{"l.source_type": filter.SourceType})
	}
	if filter.Category != "" {
		base = base.Where(`l.id IN (SELECT loop_id FROM feature_sets WHERE primary_category = ?)`, filter.Category)
	}
	if filter.Disposition != "" {
		base = base.Where(`l.id IN (SELECT loop_id FROM decisions WHERE disposition = ?)`, filter.Disposition)
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("store: build count query: %w", err)
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count loops: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	listSQL, listArgs, err := base.
		Columns("l.id", "l.source_url", "l.source_type", "l.content_type", "l.raw_content", "l.metadata", "l.discovered_at").
		OrderBy("l.discovered_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(max(filter.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("store: build list query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list loops: %w", err)
	}
	defer rows.Close()

	var out []models.Loop
	for rows.Next() {
		loop, err := scanLoop(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *loop)
	}
	return out, total, rows.Err()
}

// SaveFeatureSet persists a feature set. A set already stored for the same
// (loop, extractor version) is left untouched: feature sets are immutable.
func (db *DB) SaveFeatureSet(ctx context.Context, fs *models.FeatureSet) error {
	secondary, _ := json.Marshal(fs.SecondaryCategories)
	keywords, _ := json.Marshal(fs.Keywords)
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO feature_sets (
			loop_id, extractor_version, has_code, code_language, code_complexity, code_lines,
			title_length, description_length, has_tutorial, has_documentation,
			primary_category, secondary_categories, keywords, automation_type, complexity_level,
			popularity_score, author_reputation, recency_score, degraded, extracted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fs.LoopID, fs.ExtractorVersion, fs.HasCode, fs.CodeLanguage, fs.CodeComplexity, fs.CodeLines,
		fs.TitleLength, fs.DescriptionLength, fs.HasTutorial, fs.HasDocumentation,
		fs.PrimaryCategory, string(secondary), string(keywords), fs.AutomationType, string(fs.ComplexityLevel),
		fs.PopularityScore, fs.AuthorReputation, fs.RecencyScore, fs.Degraded, fs.ExtractedAt)
	if err != nil {
		return fmt.Errorf("store: save feature set: %w", err)
	}
	return nil
}

// GetFeatureSet returns the most recently extracted feature set for a loop.
func (db *DB) GetFeatureSet(ctx context.Context, loopID string) (*models.FeatureSet, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT loop_id, extractor_version, has_code, code_language, code_complexity, code_lines,
			title_length, description_length, has_tutorial, has_documentation,
			primary_category, secondary_categories, keywords, automation_type, complexity_level,
			popularity_score, author_reputation, recency_score, degraded, extracted_at
		FROM feature_sets WHERE loop_id = ?
		ORDER BY extracted_at DESC LIMIT 1
	`, loopID)

	var fs models.FeatureSet
	var secondary, keywords, level string
	err := row.Scan(&fs.LoopID, &fs.ExtractorVersion, &fs.HasCode, &fs.CodeLanguage, &fs.CodeComplexity, &fs.CodeLines,
		&fs.TitleLength, &fs.DescriptionLength, &fs.HasTutorial, &fs.HasDocumentation,
		&fs.PrimaryCategory, &secondary, &keywords, &fs.AutomationType, &level,
		&fs.PopularityScore, &fs.AuthorReputation, &fs.RecencyScore, &fs.Degraded, &fs.ExtractedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get feature set: %w", err)
	}
	fs.ComplexityLevel = models.ComplexityLevel(level)
	_ = json.Unmarshal([]byte(secondary), &fs.SecondaryCategories)
	_ = json.Unmarshal([]byte(keywords), &fs.Keywords)
	return &fs, nil
}

// SaveQualityScore persists a quality score; idempotent per
// (loop, scorer version).
func (db *DB) SaveQualityScore(ctx context.Context, qs *models.QualityScore) error {
	reasons, _ := json.Marshal(qs.Reasons)
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO quality_scores (loop_id, overall, disposition, confidence, reasons, strategy, scorer_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, qs.LoopID, qs.Overall, string(qs.Disposition), qs.Confidence, string(reasons), qs.Strategy, qs.ScorerVersion)
	if err != nil {
		return fmt.Errorf("store: save quality score: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("store: vector blob is %d bytes, want %d", len(buf), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// SaveEmbedding persists a loop's similarity vector. Callers invoke this
// only for approved loops; the index is rebuilt from these rows at startup.
func (db *DB) SaveEmbedding(ctx context.Context, vec models.EmbeddingVector) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO embeddings (loop_id, dim, vector) VALUES (?, ?, ?)
		ON CONFLICT(loop_id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector
	`, vec.LoopID, len(vec.Vector), encodeVector(vec.Vector))
	if err != nil {
		return fmt.Errorf("store: save embedding: %w", err)
	}
	return nil
}

// ApprovedEmbeddings returns vectors for every loop whose current decision
// is approved. Joining on decisions keeps the accepted-history invariant
// even if a decision was later superseded.
func (db *DB) ApprovedEmbeddings(ctx context.Context) ([]models.EmbeddingVector, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.loop_id, e.dim, e.vector
		FROM embeddings e
		JOIN decisions d ON d.loop_id = e.loop_id
		WHERE d.disposition = ?
	`, string(models.DispositionApproved))
	if err != nil {
		return nil, fmt.Errorf("store: approved embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.EmbeddingVector
	for rows.Next() {
		var loopID string
		var dim int
		var blob []byte
		if err := rows.Scan(&loopID, &dim, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			return nil, err
		}
		out = append(out, models.EmbeddingVector{LoopID: loopID, Vector: vec})
	}
	return out, rows.Err()
}

// SaveDuplicateLink records a near-duplicate relation. Links are never
// mutated; re-detection of the same pair is a no-op.
func (db *DB) SaveDuplicateLink(ctx context.Context, link *models.DuplicateLink) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO duplicate_links (loop_id, duplicate_of, similarity, created_at)
		VALUES (?, ?, ?, ?)
	`, link.LoopID, link.DuplicateOf, link.Similarity, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save duplicate link: %w", err)
	}
	return nil
}

// DuplicateLinks returns all links recorded for a loop.
func (db *DB) DuplicateLinks(ctx context.Context, loopID string) ([]models.DuplicateLink, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT loop_id, duplicate_of, similarity, created_at
		FROM duplicate_links WHERE loop_id = ?
	`, loopID)
	if err != nil {
		return nil, fmt.Errorf("store: duplicate links: %w", err)
	}
	defer rows.Close()

	var out []models.DuplicateLink
	for rows.Next() {
		var l models.DuplicateLink
		if err := rows.Scan(&l.LoopID, &l.DuplicateOf, &l.Similarity, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveDecision upserts the terminal decision for a loop. Re-evaluation
// with a newer stage version supersedes the stored record.
func (db *DB) SaveDecision(ctx context.Context, d *models.Decision) error {
	reasons, _ := json.Marshal(d.Reasons)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decisions (loop_id, disposition, overall, confidence, reasons,
			duplicate_of, dedup_skipped, extractor_version, scorer_version, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(loop_id) DO UPDATE SET
			disposition       = excluded.disposition,
			overall           = excluded.overall,
			confidence        = excluded.confidence,
			reasons           = excluded.reasons,
			duplicate_of      = excluded.duplicate_of,
			dedup_skipped     = excluded.dedup_skipped,
			extractor_version = excluded.extractor_version,
			scorer_version    = excluded.scorer_version,
			decided_at        = excluded.decided_at
	`, d.LoopID, string(d.Disposition), d.Overall, d.Confidence, string(reasons),
		d.DuplicateOf, d.DedupSkipped, d.ExtractorVersion, d.ScorerVersion, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("store: save decision: %w", err)
	}
	return nil
}

func scanDecision(row interface{ Scan(...any) error }) (*models.Decision, error) {
	var d models.Decision
	var disposition, reasons string
	err := row.Scan(&d.LoopID, &disposition, &d.Overall, &d.Confidence, &reasons,
		&d.DuplicateOf, &d.DedupSkipped, &d.ExtractorVersion, &d.ScorerVersion, &d.DecidedAt)
	if err != nil {
		return nil, err
	}
	d.Disposition = models.Disposition(disposition)
	_ = json.Unmarshal([]byte(reasons), &d.Reasons)
	return &d, nil
}

const decisionColumns = `loop_id, disposition, overall, confidence, reasons,
	duplicate_of, dedup_skipped, extractor_version, scorer_version, decided_at`

// GetDecision returns the stored decision for a loop.
func (db *DB) GetDecision(ctx context.Context, loopID string) (*models.Decision, error) {
	d, err := scanDecision(db.conn.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE loop_id = ?`, loopID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns decisions finalized at or after since, oldest
// first, acting as the pollable decision log.
func (db *DB) ListDecisions(ctx context.Context, since time.Time, limit int) ([]models.Decision, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query, args, err := sq.Select("loop_id", "disposition", "overall", "confidence", "reasons",
		"duplicate_of", "dedup_skipped", "extractor_version", "scorer_version", "decided_at").
		From("decisions").
		Where(sq.GtOrEq{"decided_at": since}).
		OrderBy("decided_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build decisions query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Stats summarizes disposition and category counts.
func (db *DB) Stats(ctx context.Context) (models.PipelineStats, error) {
	stats := models.PipelineStats{Categories: map[string]int{}}

	rows, err := db.conn.QueryContext(ctx, `SELECT disposition, COUNT(*) FROM decisions GROUP BY disposition`)
	if err != nil {
		return stats, fmt.Errorf("store: stats dispositions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var disposition string
		var n int
		if err := rows.Scan(&disposition, &n); err != nil {
			return stats, err
		}
		stats.Total += n
		switch models.Disposition(disposition) {
		case models.DispositionApproved:
			stats.Approved = n
		case models.DispositionRejected:
			stats.Rejected = n
		case models.DispositionNeedsReview:
			stats.NeedsReview = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	catRows, err := db.conn.QueryContext(ctx, `SELECT primary_category, COUNT(*) FROM feature_sets GROUP BY primary_category`)
	if err != nil {
		return stats, fmt.Errorf("store: stats categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var cat string
		var n int
		if err := catRows.Scan(&cat, &n); err != nil {
			return stats, err
		}
		stats.Categories[cat] = n
	}
	return stats, catRows.Err()
}
