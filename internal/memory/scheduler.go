package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs maintenance passes on a fixed interval until stopped.
type Scheduler struct {
	maintainer *Maintainer
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler. Intervals below one minute are raised
// to one minute.
func NewScheduler(maintainer *Maintainer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{maintainer: maintainer, interval: interval, logger: logger}
}

// Start launches the maintenance loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started", "interval", s.interval)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maintainer.Run(ctx)
		}
	}
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("maintenance scheduler stopped")
}
