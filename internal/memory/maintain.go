package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/realerich/marvin-memory/internal/database"
)

// Report describes one maintenance pass. Errors collects step failures;
// a step failing never stops the remaining steps.
type Report struct {
	Promoted       int                   `json:"promoted"`
	Removed        int                   `json:"removed"`
	LinksWritten   int                   `json:"links_written"`
	Summarized     bool                  `json:"summarized"`
	QueueReplayed  int                   `json:"queue_replayed"`
	QueueRemaining int                   `json:"queue_remaining"`
	Health         database.HealthStatus `json:"health"`
	Duration       time.Duration         `json:"duration"`
	Errors         []string              `json:"errors,omitempty"`
}

// Maintainer runs the periodic upkeep pass: drain the fallback queue,
// promote earned short term memories, remove stale ones, refresh links,
// write the daily digest, and probe backend health. Passes are serialized;
// a second caller blocks until the running pass finishes.
type Maintainer struct {
	store      *Store
	linker     *Linker
	summarizer *Summarizer
	pool       *database.Pool
	cleanupAge int
	logger     *slog.Logger

	mu sync.Mutex
}

// NewMaintainer creates a Maintainer. cleanupAgeDays below 1 defaults to 30.
func NewMaintainer(store *Store, linker *Linker, summarizer *Summarizer, pool *database.Pool, cleanupAgeDays int, logger *slog.Logger) *Maintainer {
	if cleanupAgeDays <= 0 {
		cleanupAgeDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{
		store:      store,
		linker:     linker,
		summarizer: summarizer,
		pool:       pool,
		cleanupAge: cleanupAgeDays,
		logger:     logger,
	}
}

// Run executes one full maintenance pass and reports what happened.
func (m *Maintainer) Run(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	var rep Report
	fail := func(step string, err error) {
		m.logger.Warn("maintenance step failed", "step", step, "error", err)
		rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", step, err))
	}

	replayed, remaining, err := m.store.DrainQueue(ctx)
	rep.QueueReplayed, rep.QueueRemaining = replayed, remaining
	if err != nil {
		fail("drain", err)
	}

	if n, err := m.store.Promote(ctx); err != nil {
		fail("promote", err)
	} else {
		rep.Promoted = n
	}

	if n, err := m.store.Cleanup(ctx, m.cleanupAge); err != nil {
		fail("cleanup", err)
	} else {
		rep.Removed = n
	}

	if n, err := m.linker.AutoLink(ctx, 0); err != nil {
		fail("autolink", err)
	} else {
		rep.LinksWritten = n
	}

	// A day with nothing recorded is not a failure.
	if _, err := m.summarizer.Summarize(ctx, time.Now().UTC()); err == nil {
		rep.Summarized = true
	} else if !errors.Is(err, ErrNoData) {
		fail("summarize", err)
	}

	rep.Health = m.pool.Health(ctx)
	rep.Duration = time.Since(start)

	m.logger.Info("maintenance pass finished",
		"promoted", rep.Promoted,
		"removed", rep.Removed,
		"links", rep.LinksWritten,
		"summarized", rep.Summarized,
		"queue_replayed", rep.QueueReplayed,
		"queue_remaining", rep.QueueRemaining,
		"health", rep.Health.Status,
		"duration", rep.Duration,
		"errors", len(rep.Errors))
	return rep
}
