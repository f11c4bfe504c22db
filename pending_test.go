package stationlink

import "testing"

func entry(id, key, action string) *pendingEntry {
	return &pendingEntry{id: id, key: key, action: action, fallback: AssumeSuccess, onResult: func(Result) {}}
}

func TestPendingTable_PutReplaces(t *testing.T) {
	tbl := newPendingTable()

	first := entry("alice", "alice", "check")
	if old := tbl.put(first); old != nil {
		t.Fatalf("expected no replaced entry, got %+v", old)
	}
	second := entry("alice", "alice", "check")
	if old := tbl.put(second); old != first {
		t.Fatalf("expected the first entry to be replaced")
	}
	if tbl.size() != 1 {
		t.Fatalf("expected 1 entry, got %d", tbl.size())
	}

	if tbl.takeEntry(first) {
		t.Fatalf("expected a replaced entry not to be taken")
	}
	if !tbl.takeEntry(second) {
		t.Fatalf("expected the current entry to be taken")
	}
}

func TestPendingTable_TakeChecksAction(t *testing.T) {
	tbl := newPendingTable()
	tbl.put(entry("alice", "alice", "check"))

	if e := tbl.take("alice", "submit"); e != nil {
		t.Fatalf("expected no match for another action")
	}
	if e := tbl.take("alice", "check"); e == nil {
		t.Fatalf("expected a match")
	}
	if e := tbl.take("alice", "check"); e != nil {
		t.Fatalf("expected a taken entry to be gone")
	}
}

func TestPendingTable_TakeOldestByKey(t *testing.T) {
	tbl := newPendingTable()
	a := entry("id-1", "bob", "check")
	b := entry("id-2", "bob", "check")
	c := entry("id-3", "carol", "check")
	tbl.put(a)
	tbl.put(b)
	tbl.put(c)

	if got := tbl.takeOldestByKey("bob", "check"); got != a {
		t.Fatalf("expected the oldest entry for the key")
	}
	if got := tbl.takeOldestByKey("bob", "check"); got != b {
		t.Fatalf("expected the next entry for the key")
	}
	if got := tbl.takeOldestByKey("bob", "check"); got != nil {
		t.Fatalf("expected no entry left for the key")
	}
}

func TestPendingTable_DrainInIssueOrder(t *testing.T) {
	tbl := newPendingTable()
	ids := []string{"d", "a", "c", "b"}
	for _, id := range ids {
		tbl.put(entry(id, id, "check"))
	}

	drained := tbl.drain()
	if len(drained) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(drained))
	}
	for i, e := range drained {
		if e.id != ids[i] {
			t.Fatalf("expected %q at %d, got %q", ids[i], i, e.id)
		}
	}
	if tbl.size() != 0 {
		t.Fatalf("expected an empty table after drain")
	}
}

func TestPendingEntry_ResolveOnce(t *testing.T) {
	calls := 0
	e := entry("alice", "alice", "check")
	e.onResult = func(Result) { calls++ }

	if !e.resolve(Result{Key: "alice"}) {
		t.Fatalf("expected the first resolve to succeed")
	}
	if e.resolve(Result{Key: "alice"}) {
		t.Fatalf("expected the second resolve to be ignored")
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}
}
