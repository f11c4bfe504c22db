package stationlink

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ambitiousfew/stationlink/topic"
	"github.com/ambitiousfew/stationlink/transport/transporttest"
)

// fakeClock only moves when Advance is called. Timer callbacks run on the
// goroutine calling Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Active returns the number of timers that neither fired nor were stopped.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// recorder collects results delivered on the dispatcher goroutine.
type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) record(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *recorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

type harness struct {
	tr    *transporttest.Transport
	d     *Dispatcher
	clock *fakeClock
}

// newHarness returns a running dispatcher over a connected recording transport.
func newHarness(t *testing.T) *harness {
	t.Helper()

	tr := transporttest.New()
	d := NewDispatcher(tr)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})

	if err := d.Connect(ctx); err != nil {
		t.Fatalf("error connecting: %v", err)
	}
	return &harness{tr: tr, d: d, clock: newFakeClock()}
}

func (h *harness) client(t *testing.T, ns topic.Namespace, opts ...ClientOption) *Client {
	t.Helper()
	return NewClient(h.d, ns, append([]ClientOption{WithClock(h.clock)}, opts...)...)
}

// flush waits until everything queued on the dispatcher ran.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.d.Sync(ctx, func() {}); err != nil {
		t.Fatalf("error flushing dispatcher: %v", err)
	}
}

func (h *harness) respond(t *testing.T, topicName, payload string) {
	t.Helper()
	if !h.tr.Deliver(topicName, []byte(payload)) {
		t.Fatalf("topic %q is not subscribed", topicName)
	}
	h.flush(t)
}

func station(t *testing.T, id int) topic.Namespace {
	t.Helper()
	ns, err := topic.NewStation("leaderboard", id)
	if err != nil {
		t.Fatalf("error creating namespace: %v", err)
	}
	return ns
}

func side(t *testing.T, s topic.Side) topic.Namespace {
	t.Helper()
	ns, err := topic.NewSide("fm", s)
	if err != nil {
		t.Fatalf("error creating namespace: %v", err)
	}
	return ns
}
