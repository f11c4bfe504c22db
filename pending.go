package stationlink

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// pendingEntry is one in-flight request.
type pendingEntry struct {
	id       string
	key      string
	action   string
	seq      uint64
	issuedAt time.Time
	fallback FallbackPolicy
	onResult func(Result)
	timer    Timer
	resolved bool
}

// resolve invokes the callback once, later calls are no-ops.
func (e *pendingEntry) resolve(r Result) bool {
	if e.resolved {
		return false
	}
	e.resolved = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.onResult(r)
	return true
}

// fallbackResult builds the fallback result for e.
func (e *pendingEntry) fallbackResult(how Resolution, now time.Time) Result {
	r := e.fallback(e.key)
	r.Key = e.key
	r.Resolution = how
	r.Elapsed = now.Sub(e.issuedAt)
	return r
}

// pendingTable maps correlation ids to in-flight requests. The id is the key
// itself unless correlation ids are enabled. It is not safe for concurrent use.
type pendingTable struct {
	entries map[string]*pendingEntry
	seq     uint64
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

// put inserts e and returns the entry it replaced, if any.
func (t *pendingTable) put(e *pendingEntry) *pendingEntry {
	t.seq++
	e.seq = t.seq
	old := t.entries[e.id]
	t.entries[e.id] = e
	return old
}

// take removes and returns the entry for id when it was issued for action.
func (t *pendingTable) take(id, action string) *pendingEntry {
	e, ok := t.entries[id]
	if !ok || e.action != action {
		return nil
	}
	delete(t.entries, id)
	return e
}

// takeEntry removes e only if it is still the entry stored under its id.
func (t *pendingTable) takeEntry(e *pendingEntry) bool {
	if cur, ok := t.entries[e.id]; !ok || cur != e {
		return false
	}
	delete(t.entries, e.id)
	return true
}

// takeOldestByKey removes and returns the oldest entry issued for key and action.
func (t *pendingTable) takeOldestByKey(key, action string) *pendingEntry {
	var oldest *pendingEntry
	for _, e := range t.entries {
		if e.key != key || e.action != action {
			continue
		}
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest != nil {
		delete(t.entries, oldest.id)
	}
	return oldest
}

// drain removes every entry and returns them in issue order.
func (t *pendingTable) drain() []*pendingEntry {
	out := maps.Values(t.entries)
	slices.SortFunc(out, func(a, b *pendingEntry) int {
		return int(a.seq) - int(b.seq)
	})
	maps.Clear(t.entries)
	return out
}

func (t *pendingTable) size() int {
	return len(t.entries)
}
