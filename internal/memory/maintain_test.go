package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/realerich/marvin-memory/internal/database"
	"github.com/realerich/marvin-memory/internal/log"
)

func newOfflineMaintainer(t *testing.T) (*Maintainer, *Store) {
	t.Helper()

	store := newOfflineStore(t)
	linker := NewLinker(store, log.NewNop())
	summarizer := NewSummarizer(store, nil, log.NewNop())
	return NewMaintainer(store, linker, summarizer, store.pool, 30, log.NewNop()), store
}

func TestMaintainerRunContinuesPastFailures(t *testing.T) {
	m, _ := newOfflineMaintainer(t)

	rep := m.Run(context.Background())

	// Promote, cleanup, autolink and summarize each fail against the dead
	// backend but the pass still finishes and reports health.
	if len(rep.Errors) != 4 {
		t.Errorf("Errors = %v, want 4 step failures", rep.Errors)
	}
	summarizeFailed := false
	for _, e := range rep.Errors {
		if strings.HasPrefix(e, "summarize:") {
			summarizeFailed = true
		}
	}
	if !summarizeFailed {
		t.Errorf("Errors = %v, want a summarize failure reported", rep.Errors)
	}
	if rep.Summarized {
		t.Error("Summarized = true, want false against a dead backend")
	}
	if rep.Health.Status != database.StatusUnhealthy {
		t.Errorf("Health.Status = %q, want %q", rep.Health.Status, database.StatusUnhealthy)
	}
	if rep.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestMaintainerRunReportsQueueBacklog(t *testing.T) {
	m, store := newOfflineMaintainer(t)

	if _, err := store.Add(context.Background(), AddInput{Content: "queued while offline"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	rep := m.Run(context.Background())
	if rep.QueueReplayed != 0 {
		t.Errorf("QueueReplayed = %d, want 0", rep.QueueReplayed)
	}
	if rep.QueueRemaining != 1 {
		t.Errorf("QueueRemaining = %d, want 1", rep.QueueRemaining)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	m, _ := newOfflineMaintainer(t)
	s := NewScheduler(m, time.Hour, log.NewNop())

	// Snapshot after setup so pool housekeeping goroutines don't count;
	// only the scheduler loop itself must be gone.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s.Start(context.Background())
	s.Stop()
}

func TestSchedulerDoubleStartAndStop(t *testing.T) {
	m, _ := newOfflineMaintainer(t)
	s := NewScheduler(m, time.Hour, log.NewNop())

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
