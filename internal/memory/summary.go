package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Marker phrases that flag a memory as a decision or an open action, in both
// vocabularies the content shows up in.
var (
	decisionMarkers = []string{
		"决定", "选择", "确定", "完成", "创建", "配置",
		"decided", "chose", "completed", "created", "configured",
	}
	actionMarkers = []string{
		"TODO", "待办", "需要", "计划",
		"pending", "need to", "plan to",
	}
)

const (
	// summaryItemCap bounds decisions and actions per daily summary.
	summaryItemCap = 10

	// summaryExcerptRunes is the length memories are clipped to when quoted
	// in a summary.
	summaryExcerptRunes = 100

	summaryTopicCap = 10
)

// defaultPeople are the names scanned for mentions when no roster is
// configured.
var defaultPeople = []string{"大王", "Marvin", "用户", "管理员"}

// Summarizer condenses one day of memories into a stored digest.
type Summarizer struct {
	store  *Store
	people []string
	logger *slog.Logger
}

// NewSummarizer creates a Summarizer. people is the roster scanned for
// mentions; nil uses the default roster.
func NewSummarizer(store *Store, people []string, logger *slog.Logger) *Summarizer {
	if len(people) == 0 {
		people = defaultPeople
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{store: store, people: people, logger: logger}
}

// Summarize builds and stores the digest for the given calendar day,
// replacing any previous digest for that day. It returns ErrNoData when the
// day holds no memories.
func (s *Summarizer) Summarize(ctx context.Context, day time.Time) (*Summary, error) {
	entries, err := s.store.ByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, day.Format("2006-01-02"))
	}

	sum := buildSummary(entries, s.people)
	sum.Date = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	if err := s.save(ctx, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Summarizer) save(ctx context.Context, sum *Summary) error {
	decisions, err := json.Marshal(sum.KeyDecisions)
	if err != nil {
		return fmt.Errorf("encoding decisions: %w", err)
	}
	actions, err := json.Marshal(sum.ActionItems)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}
	people, err := json.Marshal(sum.People)
	if err != nil {
		return fmt.Errorf("encoding people: %w", err)
	}
	topics, err := json.Marshal(sum.Topics)
	if err != nil {
		return fmt.Errorf("encoding topics: %w", err)
	}

	_, err = s.store.pool.Exec(ctx, `
		INSERT INTO memory_summaries
			(summary_date, content_summary, key_decisions, action_items, people_mentioned, topics)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb)
		ON CONFLICT (summary_date) DO UPDATE SET
			content_summary  = EXCLUDED.content_summary,
			key_decisions    = EXCLUDED.key_decisions,
			action_items     = EXCLUDED.action_items,
			people_mentioned = EXCLUDED.people_mentioned,
			topics           = EXCLUDED.topics`,
		sum.Date, sum.Content, string(decisions), string(actions), string(people), string(topics))
	if err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

// Get returns the stored digest for a day, or ErrNotFound.
func (s *Summarizer) Get(ctx context.Context, day time.Time) (*Summary, error) {
	conn, err := s.store.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var sum Summary
	err = conn.QueryRow(ctx, `
		SELECT id, summary_date, content_summary, key_decisions, action_items,
		       people_mentioned, topics, created_at
		FROM memory_summaries
		WHERE summary_date = $1`, date).
		Scan(&sum.ID, &sum.Date, &sum.Content, &sum.KeyDecisions, &sum.ActionItems,
			&sum.People, &sum.Topics, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary for %s", ErrNotFound, date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading summary: %w", err)
	}
	return &sum, nil
}

// buildSummary derives the digest fields from one day's memories.
func buildSummary(entries []Entry, people []string) *Summary {
	categories := make(map[string]bool)
	for _, e := range entries {
		categories[e.Category] = true
	}

	sum := &Summary{
		Content: fmt.Sprintf("%d memories recorded across %d categories",
			len(entries), len(categories)),
		KeyDecisions: extractMarked(entries, decisionMarkers),
		ActionItems:  extractMarked(entries, actionMarkers),
		People:       mentionedPeople(entries, people),
		Topics:       dayTopics(entries, summaryTopicCap),
	}
	return sum
}

// extractMarked collects excerpts of memories containing any of the
// markers, capped at summaryItemCap.
func extractMarked(entries []Entry, markers []string) []string {
	var out []string
	for _, e := range entries {
		if !containsAny(e.Content, markers) {
			continue
		}
		out = append(out, excerpt(e.Content))
		if len(out) == summaryItemCap {
			break
		}
	}
	return out
}

// mentionedPeople returns the roster names found in the day's memories,
// preserving roster order.
func mentionedPeople(entries []Entry, roster []string) []string {
	var out []string
	for _, name := range roster {
		for _, e := range entries {
			if strings.Contains(e.Content, name) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// dayTopics lists the day's distinct categories in order of first
// appearance, capped at limit.
func dayTopics(entries []Entry, limit int) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, e := range entries {
		if e.Category == "" || seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		topics = append(topics, e.Category)
		if len(topics) == limit {
			break
		}
	}
	return topics
}

func containsAny(content string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// excerpt clips content to summaryExcerptRunes runes.
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryExcerptRunes {
		return content
	}
	return string(runes[:summaryExcerptRunes])
}
