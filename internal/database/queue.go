package database

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"
)

// drainRate caps replay throughput so a long backlog does not flood a
// backend that just recovered.
const drainRate = rate.Limit(20)

// QueuedWrite is one record in the fallback queue file. Payload is the full
// write as the producer serialized it; the queue itself does not interpret
// it.
type QueuedWrite struct {
	Payload  json.RawMessage `json:"payload"`
	QueuedAt time.Time       `json:"queued_at"`
}

// ReplayFunc re-applies one queued write against the recovered backend.
type ReplayFunc func(ctx context.Context, w QueuedWrite) error

// FallbackQueue is an append-only JSONL file holding writes that could not
// reach the backend. Appends are fsynced so an accepted write survives a
// process crash. A sibling .lock file guards against concurrent processes;
// an in-process mutex guards against concurrent goroutines.
type FallbackQueue struct {
	path    string
	flk     *flock.Flock
	limiter *rate.Limiter
	logger  *slog.Logger

	mu sync.Mutex
}

// NewFallbackQueue creates the queue at path, creating parent directories
// as needed. The file itself is created on first append.
func NewFallbackQueue(path string, logger *slog.Logger) (*FallbackQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("queue path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}

	return &FallbackQueue{
		path:    path,
		flk:     flock.New(path + ".lock"),
		limiter: rate.NewLimiter(drainRate, 1),
		logger:  logger,
	}, nil
}

// Append durably records one write. It returns only after the record is
// flushed to disk.
func (q *FallbackQueue) Append(payload json.RawMessage) error {
	rec := QueuedWrite{Payload: payload, QueuedAt: time.Now().UTC()}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding queued write: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.flk.Lock(); err != nil {
		return fmt.Errorf("locking queue: %w", err)
	}
	defer q.flk.Unlock() //nolint:errcheck

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing queued record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing queue: %w", err)
	}
	return nil
}

// Len reports the number of records currently queued.
func (q *FallbackQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening queue: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading queue: %w", err)
	}
	return n, nil
}

// Drain replays queued writes through replay, pacing with a rate limiter.
// It snapshots the current file contents first, replays without holding the
// queue lock (so replay callbacks may themselves Append), then rewrites the
// file keeping failed records plus anything appended during the replay.
// Failed records stay queued for the next drain.
//
// Drain returns how many records were replayed and how many remain.
func (q *FallbackQueue) Drain(ctx context.Context, replay ReplayFunc) (replayed, remaining int, err error) {
	records, rawLines, offset, err := q.snapshot()
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	var failed [][]byte
	for i, rec := range records {
		if err := q.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-drain: everything not yet replayed
			// stays queued.
			failed = append(failed, rawLines[i:]...)
			if n, rewriteErr := q.rewrite(failed, offset); rewriteErr == nil {
				return replayed, n, err
			}
			return replayed, len(failed), err
		}
		if err := replay(ctx, rec); err != nil {
			q.logger.Warn("queued write replay failed", "queued_at", rec.QueuedAt, "error", err)
			failed = append(failed, rawLines[i])
			continue
		}
		replayed++
	}

	remaining, err = q.rewrite(failed, offset)
	if err != nil {
		return replayed, len(failed), err
	}
	return replayed, remaining, nil
}

// snapshot reads the queue under lock, returning parsed records, their raw
// lines, and the byte offset the snapshot covered. Records appended after
// the snapshot live past offset and are preserved by rewrite.
func (q *FallbackQueue) snapshot() (records []QueuedWrite, rawLines [][]byte, offset int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.flk.Lock(); err != nil {
		return nil, nil, 0, fmt.Errorf("locking queue: %w", err)
	}
	defer q.flk.Unlock() //nolint:errcheck

	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("opening queue: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		offset += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}
		var rec QueuedWrite
		if err := json.Unmarshal(line, &rec); err != nil {
			// Torn or corrupt line, unrecoverable; drop it.
			q.logger.Warn("dropping corrupt queue record", "error", err)
			continue
		}
		records = append(records, rec)
		rawLines = append(rawLines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("reading queue: %w", err)
	}
	return records, rawLines, offset, nil
}

// rewrite replaces the queue file with failed records plus any tail written
// past offset, via a temp file and atomic rename. Returns the number of
// records left in the file.
func (q *FallbackQueue) rewrite(failed [][]byte, offset int64) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.flk.Lock(); err != nil {
		return 0, fmt.Errorf("locking queue: %w", err)
	}
	defer q.flk.Unlock() //nolint:errcheck

	var tail []byte
	f, err := os.Open(q.path)
	if err == nil {
		if _, err := f.Seek(offset, io.SeekStart); err == nil {
			tail, _ = io.ReadAll(f)
		}
		f.Close()
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("opening queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".queue-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp queue: %w", err)
	}
	tmpPath := tmp.Name()

	kept := 0
	writeErr := func() error {
		for _, line := range failed {
			if _, err := tmp.Write(append(line, '\n')); err != nil {
				return err
			}
			kept++
		}
		if len(tail) > 0 {
			if _, err := tmp.Write(tail); err != nil {
				return err
			}
			for _, b := range tail {
				if b == '\n' {
					kept++
				}
			}
		}
		return tmp.Sync()
	}()
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if writeErr != nil {
			return 0, fmt.Errorf("writing temp queue: %w", writeErr)
		}
		return 0, fmt.Errorf("closing temp queue: %w", closeErr)
	}

	if err := os.Rename(tmpPath, q.path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("replacing queue: %w", err)
	}
	return kept, nil
}
