package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Similarity scoring weights. The components are additive and the total is
// capped at 1.0; a pair links when it clears linkThreshold.
const (
	weightSameCategory  = 0.3
	weightKeywordShare  = 0.4
	weightCommonWords   = 0.2
	weightTimeProximity = 0.1

	commonWordFloor = 3
	proximityWindow = 24 * time.Hour

	linkThreshold = 0.6

	// autoLinkCandidates bounds the pairwise pass. Linking is quadratic in
	// the candidate count, so the window stays small and recent.
	autoLinkCandidates = 100

	// autoLinkWindowDays bounds how far back candidates are drawn from.
	autoLinkWindowDays = 7
)

// Linker discovers related memories and records typed, weighted links
// between them.
type Linker struct {
	store  *Store
	logger *slog.Logger
}

// NewLinker creates a Linker over the given store.
func NewLinker(store *Store, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{store: store, logger: logger}
}

// AutoLink scores recent memories pairwise and upserts a link for every
// pair above the threshold. Re-running refreshes strengths instead of
// piling up duplicate edges. Returns the number of links written.
func (l *Linker) AutoLink(ctx context.Context, candidates int) (int, error) {
	if candidates <= 0 {
		candidates = autoLinkCandidates
	}

	entries, err := l.store.RecentWithin(ctx, autoLinkWindowDays, candidates)
	if err != nil {
		return 0, fmt.Errorf("loading link candidates: %w", err)
	}

	written := 0
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			score := Similarity(&entries[i], &entries[j])
			if score <= linkThreshold {
				continue
			}
			kind := classifyLink(&entries[i], &entries[j])
			if err := l.upsert(ctx, entries[i].ID, entries[j].ID, kind, score); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// upsert writes one directed link, overwriting the strength of an existing
// edge with the same endpoints and type.
func (l *Linker) upsert(ctx context.Context, source, target uuid.UUID, kind string, strength float64) error {
	_, err := l.store.pool.Exec(ctx, `
		INSERT INTO memory_links (source_memory_id, target_memory_id, link_type, strength)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_memory_id, target_memory_id, link_type)
		DO UPDATE SET strength = EXCLUDED.strength`,
		source, target, kind, strength)
	if err != nil {
		return fmt.Errorf("writing link: %w", err)
	}
	return nil
}

// LinksFor returns every link touching the given memory, strongest first.
func (l *Linker) LinksFor(ctx context.Context, id uuid.UUID) ([]Link, error) {
	conn, err := l.store.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT id, source_memory_id, target_memory_id, link_type, strength, created_at
		FROM memory_links
		WHERE source_memory_id = $1 OR target_memory_id = $1
		ORDER BY strength DESC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var lk Link
		if err := rows.Scan(&lk.ID, &lk.SourceID, &lk.TargetID, &lk.Type, &lk.Strength, &lk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, lk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}
	return links, nil
}

// Similarity scores how related two memories are, in [0, 1]. Category
// match, shared keywords, shared content words and temporal proximity each
// contribute a fixed weight.
func Similarity(a, b *Entry) float64 {
	score := 0.0

	if a.Category != "" && a.Category == b.Category {
		score += weightSameCategory
	}

	if ratio := keywordOverlap(a.Keywords, b.Keywords); ratio > 0 {
		score += weightKeywordShare * ratio
	}

	if commonWords(a.Content, b.Content) > commonWordFloor {
		score += weightCommonWords
	}

	if gap := a.CreatedAt.Sub(b.CreatedAt); gap < 0 && -gap <= proximityWindow || gap >= 0 && gap <= proximityWindow {
		score += weightTimeProximity
	}

	if score > 1 {
		score = 1
	}
	return score
}

// classifyLink names the relationship: shared keywords make a topic link,
// otherwise a shared category, otherwise generically related.
func classifyLink(a, b *Entry) string {
	if keywordOverlap(a.Keywords, b.Keywords) > 0 {
		return LinkSameTopic
	}
	if a.Category != "" && a.Category == b.Category {
		return LinkSameCategory
	}
	return LinkRelated
}

// keywordOverlap returns the shared fraction of the larger keyword set.
func keywordOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	common := 0
	for _, k := range b {
		if set[k] {
			common++
		}
	}
	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	return float64(common) / float64(larger)
}

// commonWords counts distinct tokens present in both contents.
func commonWords(a, b string) int {
	set := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(a, -1) {
		set[strings.ToLower(tok)] = true
	}
	n := 0
	seen := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(b, -1) {
		tok = strings.ToLower(tok)
		if set[tok] && !seen[tok] {
			seen[tok] = true
			n++
		}
	}
	return n
}
