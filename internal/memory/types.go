// Package memory implements the tiered persistent memory subsystem: a
// store over PostgreSQL with a durable fallback queue, multi-strategy
// retrieval with rank fusion, similarity-based linking, daily summaries and
// access pattern tracking.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by the memory subsystem.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrValidation indicates rejected input. The wrapped message names the
	// offending field.
	ErrValidation = errors.New("invalid memory input")

	// ErrNoData indicates an aggregate operation found nothing to work on,
	// such as a summary for a day with no memories.
	ErrNoData = errors.New("no data for period")
)

// Type is the retention tier of a memory.
type Type string

const (
	TypeShortTerm Type = "short_term"
	TypeLongTerm  Type = "long_term"
	TypeUserPref  Type = "user_pref"
)

// Valid reports whether t is a known tier.
func (t Type) Valid() bool {
	switch t {
	case TypeShortTerm, TypeLongTerm, TypeUserPref:
		return true
	}
	return false
}

// Link types assigned by the linker.
const (
	LinkSameTopic    = "same_topic"
	LinkSameCategory = "same_category"
	LinkRelated      = "related"
)

// Entry is one stored memory.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	SessionKey   string     `json:"session_key,omitempty"`
	Type         Type       `json:"memory_type"`
	Category     string     `json:"category"`
	Content      string     `json:"content"`
	Keywords     []string   `json:"keywords"`
	Importance   float64    `json:"importance_score"`
	Source       string     `json:"source,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int        `json:"access_count"`
}

// Link is a typed, weighted edge between two memories.
type Link struct {
	ID        int64     `json:"id"`
	SourceID  uuid.UUID `json:"source_memory_id"`
	TargetID  uuid.UUID `json:"target_memory_id"`
	Type      string    `json:"link_type"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the digest of one day's memories.
type Summary struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"summary_date"`
	Content      string    `json:"content_summary"`
	KeyDecisions []string  `json:"key_decisions"`
	ActionItems  []string  `json:"action_items"`
	People       []string  `json:"people_mentioned"`
	Topics       []string  `json:"topics"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccessPattern is an aggregated access counter for one
// (hour, weekday, category) bucket.
type AccessPattern struct {
	Hour         int       `json:"hour_of_day"`
	Weekday      int       `json:"day_of_week"`
	Category     string    `json:"category"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Stats is an aggregate snapshot of the store.
type Stats struct {
	Total         int            `json:"total"`
	ByType        map[string]int `json:"by_type"`
	ByCategory    map[string]int `json:"by_category"`
	AvgImportance float64        `json:"avg_importance"`
	QueuedWrites  int            `json:"queued_writes"`
}

// AddInput is the caller-supplied portion of a new memory. Type is optional;
// when empty the tier is derived from Importance.
type AddInput struct {
	SessionKey string
	Content    string
	Category   string
	Type       Type
	Importance float64
	Source     string
}
