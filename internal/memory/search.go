package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// rrfK is the reciprocal rank fusion constant. Larger values flatten the
// difference between top and bottom ranks.
const rrfK = 60

const (
	defaultSearchTimeout   = 10 * time.Second
	defaultStrategyTimeout = 3 * time.Second
	defaultSearchLimit     = 10

	// cacheTTL keeps fused result lists hot across bursts of identical
	// queries without serving stale results for long.
	cacheTTL = 30 * time.Second
)

// linkSeedLimit caps how many high importance matches seed the link graph
// strategy.
const linkSeedLimit = 5

// RetrieverConfig tunes the retrieval engine. Zero values take defaults.
type RetrieverConfig struct {
	SearchTimeout   time.Duration
	StrategyTimeout time.Duration
}

// SearchOption narrows a search.
type SearchOption func(*searchParams)

type searchParams struct {
	sessionKey string
}

// WithSession restricts results to memories recorded under the given
// session key.
func WithSession(key string) SearchOption {
	return func(p *searchParams) {
		p.sessionKey = key
	}
}

// Retriever answers queries by fanning out over several search strategies
// concurrently and fusing their rankings. A failed or slow strategy
// degrades the result set instead of failing the search.
type Retriever struct {
	store   *Store
	tracker *Tracker
	cache   *ristretto.Cache[string, []Entry]
	logger  *slog.Logger

	searchTimeout   time.Duration
	strategyTimeout time.Duration
}

// NewRetriever creates a Retriever. tracker may be nil to disable access
// pattern recording.
func NewRetriever(store *Store, tracker *Tracker, cfg RetrieverConfig, logger *slog.Logger) (*Retriever, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = defaultStrategyTimeout
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []Entry]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating search cache: %w", err)
	}

	return &Retriever{
		store:           store,
		tracker:         tracker,
		cache:           cache,
		logger:          logger,
		searchTimeout:   cfg.SearchTimeout,
		strategyTimeout: cfg.StrategyTimeout,
	}, nil
}

// Close releases the cache.
func (r *Retriever) Close() {
	r.cache.Close()
}

// Search runs all strategies for query and returns up to limit fused
// results. Every returned memory is touched and counted toward access
// patterns exactly once per call, cache hit or not.
func (r *Retriever) Search(ctx context.Context, query string, limit int, opts ...SearchOption) ([]Entry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var params searchParams
	for _, opt := range opts {
		opt(&params)
	}

	key := fmt.Sprintf("%d|%s|%s", limit, params.sessionKey, query)
	results, hit := r.cache.Get(key)
	if !hit {
		var err error
		results, err = r.fanOut(ctx, query, limit, params)
		if err != nil {
			return nil, err
		}
		r.cache.SetWithTTL(key, results, int64(len(results)+1), cacheTTL)
	}

	r.recordAccess(ctx, results)
	return results, nil
}

// fanOut runs the strategies concurrently and fuses their rankings.
func (r *Retriever) fanOut(ctx context.Context, query string, limit int, params searchParams) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	strategies := []struct {
		name string
		run  func(context.Context, string, int, searchParams) ([]Entry, error)
	}{
		{"fulltext", r.searchFullText},
		{"keyword", r.searchKeyword},
		{"linkgraph", r.searchLinkGraph},
	}

	lists := make([][]Entry, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range strategies {
		g.Go(func() error {
			sctx, scancel := context.WithTimeout(gctx, r.strategyTimeout)
			defer scancel()

			entries, err := st.run(sctx, query, limit, params)
			if err != nil {
				// One broken strategy thins the results, it does not fail
				// the search.
				r.logger.Warn("search strategy failed", "strategy", st.name, "error", err)
				return nil
			}
			lists[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(lists, limit), nil
}

// fuse merges per-strategy rankings with reciprocal rank fusion. A memory's
// score is the sum over strategies of 1/(k + rank + 1); duplicates within a
// single strategy list count once at their best rank. Ties break by newest
// creation time, then by id, so scoring is fully deterministic.
func fuse(lists [][]Entry, limit int) []Entry {
	scores := make(map[uuid.UUID]float64)
	byID := make(map[uuid.UUID]Entry)

	for _, list := range lists {
		seen := make(map[uuid.UUID]bool, len(list))
		for rank, e := range list {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			scores[e.ID] += 1.0 / float64(rrfK+rank+1)
			if _, ok := byID[e.ID]; !ok {
				byID[e.ID] = e
			}
		}
	}

	fused := make([]Entry, 0, len(byID))
	for id := range byID {
		fused = append(fused, byID[id])
	}
	sort.Slice(fused, func(i, j int) bool {
		si, sj := scores[fused[i].ID], scores[fused[j].ID]
		if si != sj {
			return si > sj
		}
		if !fused[i].CreatedAt.Equal(fused[j].CreatedAt) {
			return fused[i].CreatedAt.After(fused[j].CreatedAt)
		}
		return fused[i].ID.String() < fused[j].ID.String()
	})

	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

// recordAccess applies the per-search side effects: access counters on the
// returned memories and the hour/weekday/category usage pattern.
func (r *Retriever) recordAccess(ctx context.Context, results []Entry) {
	if len(results) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(results))
	categories := make(map[string]bool)
	for i, e := range results {
		ids[i] = e.ID
		categories[e.Category] = true
	}

	if err := r.store.TouchAll(ctx, ids); err != nil {
		r.logger.Warn("recording memory access failed", "count", len(ids), "error", err)
	}
	if r.tracker != nil {
		for category := range categories {
			if err := r.tracker.Record(ctx, category, time.Now()); err != nil {
				r.logger.Warn("recording access pattern failed", "category", category, "error", err)
			}
		}
	}
}

// searchFullText ranks by PostgreSQL full text relevance. The simple
// configuration skips stemming, which keeps behavior uniform across
// languages.
func (r *Retriever) searchFullText(ctx context.Context, query string, limit int, params searchParams) ([]Entry, error) {
	return r.store.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE to_tsvector('simple', content) @@ plainto_tsquery('simple', $1)
		  AND ($3 = '' OR session_key = $3)
		ORDER BY ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', $1)) DESC
		LIMIT $2`, query, limit, params.sessionKey)
}

// searchKeyword matches the query as a substring of the content or the
// serialized keyword list, which is what makes CJK queries work at all: full
// text with the simple configuration cannot split unsegmented text.
func (r *Retriever) searchKeyword(ctx context.Context, query string, limit int, params searchParams) ([]Entry, error) {
	return r.store.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE (content ILIKE '%' || $1 || '%' OR keywords::text ILIKE '%' || $1 || '%')
		  AND ($3 = '' OR session_key = $3)
		ORDER BY importance_score DESC, created_at DESC
		LIMIT $2`, query, limit, params.sessionKey)
}

// searchLinkGraph seeds with the newest substring matches and follows their
// links in both directions, strongest first. Edges are stored once but
// treated as undirected.
func (r *Retriever) searchLinkGraph(ctx context.Context, query string, limit int, params searchParams) ([]Entry, error) {
	return r.store.queryEntries(ctx, `
		WITH seeds AS (
			SELECT id FROM memories
			WHERE content ILIKE '%' || $1 || '%'
			  AND ($4 = '' OR session_key = $4)
			ORDER BY created_at DESC
			LIMIT $3
		), neighbors AS (
			SELECT l.target_memory_id AS mid, l.strength
			FROM memory_links l JOIN seeds s ON l.source_memory_id = s.id
			UNION ALL
			SELECT l.source_memory_id AS mid, l.strength
			FROM memory_links l JOIN seeds s ON l.target_memory_id = s.id
		)
		SELECT `+entryColumns+` FROM memories
		JOIN (
			SELECT mid, MAX(strength) AS strength FROM neighbors GROUP BY mid
		) n ON n.mid = memories.id
		ORDER BY n.strength DESC
		LIMIT $2`, query, limit, linkSeedLimit, params.sessionKey)
}
