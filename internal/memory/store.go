package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/realerich/marvin-memory/internal/database"
)

// promotion and cleanup thresholds for maintenance passes.
const (
	promoteMinAccess     = 5
	promoteMinImportance = 0.7
	cleanupMaxImportance = 0.3
	cleanupMaxAccess     = 3

	// longTermImportance is the importance above which a new memory with no
	// explicit tier goes straight to long term storage.
	longTermImportance = 0.7
)

// entryColumns is the select list shared by every Entry query.
const entryColumns = `id, COALESCE(session_key, ''), memory_type, category, content,
	keywords, importance_score, COALESCE(source, ''), created_at, last_accessed, access_count`

// Store persists memories in PostgreSQL through a resilient pool. Writes
// that cannot reach the backend are accepted anyway and parked in a durable
// fallback queue; subsequent successful writes opportunistically replay the
// backlog.
type Store struct {
	pool   *database.Pool
	queue  *database.FallbackQueue
	logger *slog.Logger

	draining atomic.Bool
	wg       sync.WaitGroup
}

// NewStore creates a Store over the given pool and fallback queue.
func NewStore(pool *database.Pool, queue *database.FallbackQueue, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, queue: queue, logger: logger}
}

// Close waits for background queue drains to finish.
func (s *Store) Close() {
	s.wg.Wait()
}

// insertRecord is the full write payload. It is also the fallback queue
// serialization, so a queued write replays with the identity it was
// accepted under.
type insertRecord struct {
	ID         uuid.UUID `json:"id"`
	SessionKey string    `json:"session_key,omitempty"`
	Type       Type      `json:"memory_type"`
	Category   string    `json:"category"`
	Content    string    `json:"content"`
	Keywords   []string  `json:"keywords"`
	Importance float64   `json:"importance_score"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Add stores a new memory and returns its id. Keywords are derived from the
// content, and when no tier is given the importance decides it. If the
// backend is unreachable the write is queued locally and the id is still
// returned; the memory becomes visible once the queue drains.
func (s *Store) Add(ctx context.Context, in AddInput) (uuid.UUID, error) {
	if strings.TrimSpace(in.Content) == "" {
		return uuid.Nil, fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if in.Importance < 0 || in.Importance > 1 {
		return uuid.Nil, fmt.Errorf("%w: importance %.2f outside [0, 1]", ErrValidation, in.Importance)
	}
	if in.Type != "" && !in.Type.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown memory type %q", ErrValidation, in.Type)
	}

	tier := in.Type
	if tier == "" {
		tier = TypeShortTerm
		if in.Importance > longTermImportance {
			tier = TypeLongTerm
		}
	}
	category := in.Category
	if category == "" {
		category = "general"
	}

	rec := insertRecord{
		ID:         uuid.New(),
		SessionKey: in.SessionKey,
		Type:       tier,
		Category:   category,
		Content:    in.Content,
		Keywords:   ExtractKeywords(in.Content),
		Importance: in.Importance,
		Source:     in.Source,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.insert(ctx, rec); err != nil {
		if !errors.Is(err, database.ErrUnavailable) {
			return uuid.Nil, err
		}
		if qErr := s.enqueue(rec); qErr != nil {
			return uuid.Nil, fmt.Errorf("storing memory: %w (queue also failed: %w)", err, qErr)
		}
		s.logger.Warn("backend unreachable, memory queued locally", "id", rec.ID)
		return rec.ID, nil
	}

	s.drainAsync()
	return rec.ID, nil
}

// insert writes one record. The conflict clause makes queued replays
// idempotent: a record whose original write actually landed is a no-op.
func (s *Store) insert(ctx context.Context, rec insertRecord) error {
	keywords, err := json.Marshal(rec.Keywords)
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	if rec.Keywords == nil {
		keywords = []byte("[]")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO memories
			(id, session_key, memory_type, category, content, keywords,
			 importance_score, source, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6::jsonb, $7, NULLIF($8, ''), $9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SessionKey, rec.Type, rec.Category, rec.Content,
		string(keywords), rec.Importance, rec.Source, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

func (s *Store) enqueue(rec insertRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding write for queue: %w", err)
	}
	return s.queue.Append(payload)
}

// drainAsync kicks off a background drain if the queue has a backlog and no
// drain is already running.
func (s *Store) drainAsync() {
	n, err := s.queue.Len()
	if err != nil || n == 0 {
		return
	}
	if !s.draining.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.draining.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		replayed, remaining, err := s.DrainQueue(ctx)
		if err != nil {
			s.logger.Warn("queue drain failed", "replayed", replayed, "remaining", remaining, "error", err)
			return
		}
		if replayed > 0 {
			s.logger.Info("fallback queue drained", "replayed", replayed, "remaining", remaining)
		}
	}()
}

// DrainQueue replays queued writes against the backend. Writes that still
// fail remain queued.
func (s *Store) DrainQueue(ctx context.Context) (replayed, remaining int, err error) {
	return s.queue.Drain(ctx, func(ctx context.Context, w database.QueuedWrite) error {
		var rec insertRecord
		if err := json.Unmarshal(w.Payload, &rec); err != nil {
			return fmt.Errorf("decoding queued write: %w", err)
		}
		return s.insert(ctx, rec)
	})
}

// Get returns the memory with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+entryColumns+` FROM memories WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}
	return e, nil
}

// UpdateInput holds the fields of an existing memory that may change. Nil
// fields are left untouched.
type UpdateInput struct {
	Content    *string
	Category   *string
	Importance *float64
	Type       *Type
}

// Update modifies an existing memory. Changing the content re-derives its
// keywords.
func (s *Store) Update(ctx context.Context, id uuid.UUID, in UpdateInput) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return fmt.Errorf("%w: content is empty", ErrValidation)
		}
		keywords, err := json.Marshal(ExtractKeywords(*in.Content))
		if err != nil {
			return fmt.Errorf("encoding keywords: %w", err)
		}
		sets = append(sets, "content = "+arg(*in.Content))
		sets = append(sets, "keywords = "+arg(string(keywords))+"::jsonb")
	}
	if in.Category != nil {
		sets = append(sets, "category = "+arg(*in.Category))
	}
	if in.Importance != nil {
		if *in.Importance < 0 || *in.Importance > 1 {
			return fmt.Errorf("%w: importance %.2f outside [0, 1]", ErrValidation, *in.Importance)
		}
		sets = append(sets, "importance_score = "+arg(*in.Importance))
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return fmt.Errorf("%w: unknown memory type %q", ErrValidation, *in.Type)
		}
		sets = append(sets, "memory_type = "+arg(string(*in.Type)))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE memories SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a memory. Its links are removed with it.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Touch bumps a memory's access counter and timestamp in a single
// statement, so concurrent touches never lose increments.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching memory: %w", err)
	}
	return nil
}

// TouchAll bumps access counters for a batch of memories.
func (s *Store) TouchAll(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = now()
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("touching memories: %w", err)
	}
	return nil
}

// Recent returns the memories created in the last hours, most recent first.
func (s *Store) Recent(ctx context.Context, hours, limit int) ([]Entry, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE created_at > now() - make_interval(hours => $1)
		ORDER BY created_at DESC
		LIMIT $2`, hours, limit)
}

// RecentWithin returns the newest memories created in the last windowDays
// days, most recent first.
func (s *Store) RecentWithin(ctx context.Context, windowDays, limit int) ([]Entry, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE created_at > now() - make_interval(days => $1)
		ORDER BY created_at DESC
		LIMIT $2`, windowDays, limit)
}

// Popular returns the most accessed memories.
func (s *Store) Popular(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE access_count > 0
		ORDER BY access_count DESC, last_accessed DESC
		LIMIT $1`, limit)
}

// ByDay returns every memory created on the given calendar day (UTC).
func (s *Store) ByDay(ctx context.Context, day time.Time) ([]Entry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM memories
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY importance_score DESC, created_at ASC`, start, start.Add(24*time.Hour))
}

// Stats returns an aggregate snapshot, including the local queue backlog.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByType:     make(map[string]int),
		ByCategory: make(map[string]int),
	}
	if n, err := s.queue.Len(); err == nil {
		st.QueuedWrites = n
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(importance_score), 0) FROM memories`)
	if err := row.Scan(&st.Total, &st.AvgImportance); err != nil {
		return nil, fmt.Errorf("loading totals: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return nil, fmt.Errorf("loading type counts: %w", err)
	}
	if err := scanCounts(rows, st.ByType); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT category, COUNT(*) FROM memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("loading category counts: %w", err)
	}
	if err := scanCounts(rows, st.ByCategory); err != nil {
		return nil, err
	}

	return st, nil
}

// Promote moves short term memories that earned their keep into long term
// storage. Returns how many were promoted.
func (s *Store) Promote(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memories
		SET memory_type = $1
		WHERE memory_type = $2
		  AND access_count > $3
		  AND importance_score > $4`,
		TypeLongTerm, TypeShortTerm, promoteMinAccess, promoteMinImportance)
	if err != nil {
		return 0, fmt.Errorf("promoting memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Cleanup deletes stale, unimportant, rarely touched short term memories
// older than maxAgeDays. Returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM memories
		WHERE memory_type = $1
		  AND importance_score < $2
		  AND access_count < $3
		  AND created_at < now() - make_interval(days => $4)`,
		TypeShortTerm, cleanupMaxImportance, cleanupMaxAccess, maxAgeDays)
	if err != nil {
		return 0, fmt.Errorf("cleaning up memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// queryEntries runs a query whose select list is entryColumns and scans the
// result set.
func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	return scanEntries(rows)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.SessionKey, &e.Type, &e.Category, &e.Content,
		&e.Keywords, &e.Importance, &e.Source, &e.CreatedAt, &e.LastAccessed, &e.AccessCount)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading memories: %w", err)
	}
	return entries, nil
}

func scanCounts(rows pgx.Rows, into map[string]int) error {
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scanning count: %w", err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading counts: %w", err)
	}
	return nil
}
