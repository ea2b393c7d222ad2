package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func entryAt(id byte, created time.Time) Entry {
	var raw [16]byte
	raw[15] = id
	return Entry{ID: uuid.UUID(raw), CreatedAt: created}
}

func ids(entries []Entry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestFuseAgreementOutranksSingleStrategy(t *testing.T) {
	now := time.Now()
	a := entryAt(1, now)
	b := entryAt(2, now.Add(-time.Hour))
	c := entryAt(3, now.Add(-2*time.Hour))

	// b appears in both lists, a and c in one each. Two mid ranks beat one
	// top rank at k=60.
	lists := [][]Entry{
		{a, b},
		{b, c},
	}

	got := fuse(lists, 10)
	if len(got) != 3 {
		t.Fatalf("fuse() returned %d entries, want 3", len(got))
	}
	if got[0].ID != b.ID {
		t.Errorf("fuse()[0] = %s, want %s (agreed on by both strategies)", got[0].ID, b.ID)
	}
}

func TestFuseTieBreaksByNewestCreation(t *testing.T) {
	now := time.Now()
	older := entryAt(1, now.Add(-time.Hour))
	newer := entryAt(2, now)

	// Same rank in disjoint lists gives identical scores.
	got := fuse([][]Entry{{older}, {newer}}, 10)
	if len(got) != 2 {
		t.Fatalf("fuse() returned %d entries, want 2", len(got))
	}
	if got[0].ID != newer.ID {
		t.Errorf("fuse()[0] = %s, want newer entry %s", got[0].ID, newer.ID)
	}
}

func TestFuseDuplicateWithinListCountsOnce(t *testing.T) {
	now := time.Now()
	a := entryAt(1, now.Add(-time.Minute))
	b := entryAt(2, now)

	// a is duplicated inside one list; its repeat must not double its
	// score past b, which holds the same top rank in another list.
	got := fuse([][]Entry{{a, a, a}, {b}}, 10)
	if got[0].ID != b.ID {
		t.Errorf("fuse()[0] = %s, want %s (duplicates must count once)", got[0].ID, b.ID)
	}
}

func TestFuseRespectsLimit(t *testing.T) {
	now := time.Now()
	list := []Entry{entryAt(1, now), entryAt(2, now), entryAt(3, now), entryAt(4, now)}

	got := fuse([][]Entry{list}, 2)
	if len(got) != 2 {
		t.Errorf("fuse() returned %d entries, want 2", len(got))
	}
	if got[0].ID != list[0].ID || got[1].ID != list[1].ID {
		t.Errorf("fuse() = %v, want first two of input ranking", ids(got))
	}
}

func TestFuseDeterministic(t *testing.T) {
	now := time.Now()
	lists := [][]Entry{
		{entryAt(1, now), entryAt(2, now), entryAt(3, now)},
		{entryAt(3, now), entryAt(4, now), entryAt(1, now)},
		{entryAt(5, now), entryAt(2, now)},
	}

	first := fuse(lists, 10)
	for run := 0; run < 20; run++ {
		got := fuse(lists, 10)
		if len(got) != len(first) {
			t.Fatalf("run %d: length %d, want %d", run, len(got), len(first))
		}
		for i := range got {
			if got[i].ID != first[i].ID {
				t.Fatalf("run %d: order diverged at %d: %s vs %s", run, i, got[i].ID, first[i].ID)
			}
		}
	}
}

func TestFuseEmptyLists(t *testing.T) {
	if got := fuse(nil, 10); len(got) != 0 {
		t.Errorf("fuse(nil) = %v, want empty", ids(got))
	}
	if got := fuse([][]Entry{nil, {}}, 10); len(got) != 0 {
		t.Errorf("fuse(empty lists) = %v, want empty", ids(got))
	}
}
