package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Tracker aggregates when and what kind of memories get retrieved, bucketed
// by hour of day, weekday and category. The buckets feed usage suggestions.
type Tracker struct {
	store  *Store
	logger *slog.Logger
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store *Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}
}

// Record increments the bucket for the given category at time at.
func (t *Tracker) Record(ctx context.Context, category string, at time.Time) error {
	if category == "" {
		category = "general"
	}
	_, err := t.store.pool.Exec(ctx, `
		INSERT INTO memory_access_patterns (hour_of_day, day_of_week, category, access_count, last_accessed)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (hour_of_day, day_of_week, category) DO UPDATE SET
			access_count  = memory_access_patterns.access_count + 1,
			last_accessed = EXCLUDED.last_accessed`,
		at.Hour(), int(at.Weekday()), category, at)
	if err != nil {
		return fmt.Errorf("recording access pattern: %w", err)
	}
	return nil
}

// Suggest returns the categories historically retrieved in the bucket
// matching time at, most used first.
func (t *Tracker) Suggest(ctx context.Context, at time.Time, limit int) ([]AccessPattern, error) {
	if limit <= 0 {
		limit = 5
	}
	return t.queryPatterns(ctx, `
		SELECT hour_of_day, day_of_week, category, access_count, last_accessed
		FROM memory_access_patterns
		WHERE hour_of_day = $1 AND day_of_week = $2
		ORDER BY access_count DESC, category ASC
		LIMIT $3`, at.Hour(), int(at.Weekday()), limit)
}

// SuggestEntries returns memories likely wanted right now: the most
// recently accessed entries of the categories historically retrieved in
// the time slot matching at, optionally topped up with a keyword lookup
// for query. Results are de-duplicated by id and capped at limit.
func (t *Tracker) SuggestEntries(ctx context.Context, query string, at time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	patterns, err := t.Suggest(ctx, at, limit)
	if err != nil {
		return nil, err
	}

	var out []Entry
	seen := make(map[uuid.UUID]bool)
	take := func(entries []Entry) {
		for _, e := range entries {
			if len(out) >= limit {
				return
			}
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}

	if len(patterns) > 0 {
		categories := make([]string, 0, len(patterns))
		for _, p := range patterns {
			categories = append(categories, p.Category)
		}
		entries, err := t.store.queryEntries(ctx, `
			SELECT `+entryColumns+` FROM memories
			WHERE category = ANY($1) AND access_count > 0
			ORDER BY last_accessed DESC
			LIMIT $2`, categories, limit)
		if err != nil {
			return nil, err
		}
		take(entries)
	}

	if query != "" && len(out) < limit {
		entries, err := t.store.queryEntries(ctx, `
			SELECT `+entryColumns+` FROM memories
			WHERE content ILIKE ANY($1)
			ORDER BY importance_score DESC, created_at DESC
			LIMIT $2`, suggestPatterns(query), limit)
		if err != nil {
			return nil, err
		}
		take(entries)
	}

	return out, nil
}

// suggestKeywordCap bounds how many extracted keywords feed the lookup.
const suggestKeywordCap = 3

// suggestPatterns turns a free form query into ILIKE patterns, one per
// extracted keyword, so a multi word query matches on any of its terms. A
// query yielding no keywords falls back to a single whole query pattern.
func suggestPatterns(query string) []string {
	keywords := ExtractKeywords(query)
	if len(keywords) > suggestKeywordCap {
		keywords = keywords[:suggestKeywordCap]
	}
	if len(keywords) == 0 {
		return []string{"%" + query + "%"}
	}
	patterns := make([]string, len(keywords))
	for i, k := range keywords {
		patterns[i] = "%" + k + "%"
	}
	return patterns
}

// Patterns returns the busiest buckets overall.
func (t *Tracker) Patterns(ctx context.Context, limit int) ([]AccessPattern, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.queryPatterns(ctx, `
		SELECT hour_of_day, day_of_week, category, access_count, last_accessed
		FROM memory_access_patterns
		ORDER BY access_count DESC, category ASC
		LIMIT $1`, limit)
}

func (t *Tracker) queryPatterns(ctx context.Context, query string, args ...any) ([]AccessPattern, error) {
	conn, err := t.store.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading access patterns: %w", err)
	}
	defer rows.Close()

	var patterns []AccessPattern
	for rows.Next() {
		var p AccessPattern
		if err := rows.Scan(&p.Hour, &p.Weekday, &p.Category, &p.AccessCount, &p.LastAccessed); err != nil {
			return nil, fmt.Errorf("scanning access pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading access patterns: %w", err)
	}
	return patterns, nil
}
