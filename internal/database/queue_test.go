package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/realerich/marvin-memory/internal/log"
)

func newTestQueue(t *testing.T) *FallbackQueue {
	t.Helper()

	q, err := NewFallbackQueue(filepath.Join(t.TempDir(), "queue", "fallback.jsonl"), log.NewNop())
	if err != nil {
		t.Fatalf("NewFallbackQueue() error = %v", err)
	}
	return q
}

func mustAppend(t *testing.T, q *FallbackQueue, payload string) {
	t.Helper()
	if err := q.Append(json.RawMessage(payload)); err != nil {
		t.Fatalf("Append(%s) error = %v", payload, err)
	}
}

func TestQueueLenEmpty(t *testing.T) {
	q := newTestQueue(t)

	n, err := q.Len()
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestQueueAppendAndLen(t *testing.T) {
	q := newTestQueue(t)

	for i := 0; i < 3; i++ {
		mustAppend(t, q, fmt.Sprintf(`{"n":%d}`, i))
	}

	n, err := q.Len()
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}
}

func TestQueueAppendSetsQueuedAt(t *testing.T) {
	q := newTestQueue(t)
	mustAppend(t, q, `{"n":1}`)

	data, err := os.ReadFile(q.path)
	if err != nil {
		t.Fatalf("reading queue file: %v", err)
	}
	var rec QueuedWrite
	if err := json.Unmarshal(data[:len(data)-1], &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec.QueuedAt.IsZero() {
		t.Error("QueuedAt is zero")
	}
	if string(rec.Payload) != `{"n":1}` {
		t.Errorf("Payload = %s, want {\"n\":1}", rec.Payload)
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	q := newTestQueue(t)

	replayed, remaining, err := q.Drain(context.Background(), func(context.Context, QueuedWrite) error {
		t.Error("replay called on empty queue")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if replayed != 0 || remaining != 0 {
		t.Errorf("Drain() = (%d, %d), want (0, 0)", replayed, remaining)
	}
}

func TestDrainReplaysInOrder(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 3; i++ {
		mustAppend(t, q, fmt.Sprintf(`{"n":%d}`, i))
	}

	var seen []string
	replayed, remaining, err := q.Drain(context.Background(), func(_ context.Context, w QueuedWrite) error {
		seen = append(seen, string(w.Payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if replayed != 3 || remaining != 0 {
		t.Errorf("Drain() = (%d, %d), want (3, 0)", replayed, remaining)
	}
	want := []string{`{"n":0}`, `{"n":1}`, `{"n":2}`}
	for i, p := range want {
		if seen[i] != p {
			t.Errorf("replay[%d] = %s, want %s", i, seen[i], p)
		}
	}

	if n, _ := q.Len(); n != 0 {
		t.Errorf("Len() after drain = %d, want 0", n)
	}
}

func TestDrainKeepsFailedRecords(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 3; i++ {
		mustAppend(t, q, fmt.Sprintf(`{"n":%d}`, i))
	}

	replayErr := errors.New("backend still down")
	replayed, remaining, err := q.Drain(context.Background(), func(_ context.Context, w QueuedWrite) error {
		if strings.Contains(string(w.Payload), `"n":1`) {
			return replayErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if replayed != 2 || remaining != 1 {
		t.Errorf("Drain() = (%d, %d), want (2, 1)", replayed, remaining)
	}

	// The failed record is still there for the next drain.
	var kept []string
	if _, _, err := q.Drain(context.Background(), func(_ context.Context, w QueuedWrite) error {
		kept = append(kept, string(w.Payload))
		return nil
	}); err != nil {
		t.Fatalf("second Drain() error = %v", err)
	}
	if len(kept) != 1 || kept[0] != `{"n":1}` {
		t.Errorf("kept records = %v, want [{\"n\":1}]", kept)
	}
}

func TestDrainPreservesConcurrentAppends(t *testing.T) {
	q := newTestQueue(t)
	mustAppend(t, q, `{"n":0}`)

	// Appending from inside the replay callback models a writer racing the
	// drain. The new record must survive the rewrite untouched.
	replayed, remaining, err := q.Drain(context.Background(), func(_ context.Context, w QueuedWrite) error {
		mustAppend(t, q, `{"n":99}`)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if replayed != 1 {
		t.Errorf("replayed = %d, want 1", replayed)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}

	var left []string
	if _, _, err := q.Drain(context.Background(), func(_ context.Context, w QueuedWrite) error {
		left = append(left, string(w.Payload))
		return nil
	}); err != nil {
		t.Fatalf("second Drain() error = %v", err)
	}
	if len(left) != 1 || left[0] != `{"n":99}` {
		t.Errorf("surviving records = %v, want [{\"n\":99}]", left)
	}
}

func TestDrainDropsCorruptLines(t *testing.T) {
	q := newTestQueue(t)
	mustAppend(t, q, `{"n":0}`)

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("opening queue file: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("writing corrupt line: %v", err)
	}
	f.Close()

	replayed, remaining, err := q.Drain(context.Background(), func(context.Context, QueuedWrite) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if replayed != 1 || remaining != 0 {
		t.Errorf("Drain() = (%d, %d), want (1, 0)", replayed, remaining)
	}
}

func TestNewFallbackQueueEmptyPath(t *testing.T) {
	if _, err := NewFallbackQueue("", log.NewNop()); err == nil {
		t.Fatal("NewFallbackQueue(\"\") expected error")
	}
}
