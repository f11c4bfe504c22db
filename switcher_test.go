package stationlink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ambitiousfew/stationlink/topic"
)

type persisted struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *persisted) PersistIdentifier(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

func (p *persisted) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func TestSwitcher_SwitchTo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.client(t, station(t, 3))
	l := NewBroadcastListener(h.d, station(t, 3), "top10")
	_ = l.Subscribe(ctx)

	store := &persisted{}
	s := NewSwitcher([]Switchable{c, l}, WithPersister(store))

	rec := &recorder{}
	c.IssueRequest(Request{Action: checkUsername, Key: "alice", Fallback: AssumeFailure}, rec.record)

	if err := s.SwitchTo(ctx, "4"); err != nil {
		t.Fatalf("error switching: %v", err)
	}
	h.flush(t)

	results := rec.all()
	if len(results) != 1 || results[0].Resolution != ResolvedBySwitch || results[0].Value {
		t.Fatalf("expected the pending request to resolve with its fallback, got %+v", results)
	}
	if h.clock.Active() != 0 {
		t.Fatalf("expected the timeout to be cancelled, %d timers active", h.clock.Active())
	}

	if h.tr.Subscribed(responseTopic) {
		t.Fatalf("expected the old response topic to be unsubscribed")
	}
	if !h.tr.Subscribed("leaderboard/check_username/response/4") {
		t.Fatalf("expected the new response topic to be subscribed")
	}
	if !h.tr.Subscribed("leaderboard/top10") {
		t.Fatalf("expected the shared broadcast topic to stay subscribed")
	}

	// a message on the old topic matches nothing.
	c.IssueRequest(Request{Action: checkUsername, Key: "alice"}, rec.record)
	h.tr.DeliverAny(responseTopic, []byte(`{"key":"alice","success":true,"result":false}`))
	h.flush(t)
	if n := len(rec.all()); n != 1 {
		t.Fatalf("expected the old response topic to be ignored, got %d results", n)
	}

	h.respond(t, "leaderboard/check_username/response/4", `{"key":"alice","success":true,"result":false}`)
	if n := len(rec.all()); n != 2 {
		t.Fatalf("expected the new response topic to resolve, got %d results", n)
	}

	if got := s.Current(); got != "4" {
		t.Fatalf("expected current identifier 4, got %q", got)
	}
	if got := l.Namespace().Identifier(); got != "4" {
		t.Fatalf("expected the listener to follow the switch, got %q", got)
	}
	if ids := store.all(); len(ids) != 1 || ids[0] != "4" {
		t.Fatalf("expected the identifier to be persisted once, got %v", ids)
	}

	published := h.tr.Published()
	env, err := DecodeEnvelope(published[len(published)-1].Payload)
	if err != nil || env.Station != "4" {
		t.Fatalf("expected requests to carry the new station, got %+v, %v", env, err)
	}
}

func TestSwitcher_SameIdentifierIsNoop(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, station(t, 3))
	store := &persisted{}
	s := NewSwitcher([]Switchable{c}, WithPersister(store))

	rec := &recorder{}
	c.IssueRequest(Request{Action: checkUsername, Key: "bob"}, rec.record)

	if err := s.SwitchTo(context.Background(), " 3"); err != nil {
		t.Fatalf("error switching: %v", err)
	}
	h.flush(t)

	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected pending requests to survive a no-op switch, got %d results", n)
	}
	if ids := store.all(); len(ids) != 0 {
		t.Fatalf("expected nothing persisted, got %v", ids)
	}
}

func TestSwitcher_InvalidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		side bool
		id   string
	}{
		{"station not a number", false, "four"},
		{"station zero", false, "0"},
		{"side unknown", true, "middle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ns := station(t, 3)
			if tt.side {
				ns = side(t, topic.Left)
			}
			c := h.client(t, ns)
			s := NewSwitcher([]Switchable{c})

			err := s.SwitchTo(context.Background(), tt.id)
			var opErr OpError
			if !errors.As(err, &opErr) || opErr.Action != ActionSwitching {
				t.Fatalf("expected a switching OpError, got %v", err)
			}
			if c.Namespace() != ns {
				t.Fatalf("expected the namespace to be unchanged")
			}
		})
	}
}

func TestSwitcher_SideSwitch(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, side(t, topic.Left), WithActions("submit_score"))
	s := NewSwitcher([]Switchable{c})

	if err := s.SwitchTo(context.Background(), "RIGHT"); err != nil {
		t.Fatalf("error switching: %v", err)
	}

	if h.tr.Subscribed("fm/left/submit_score/response") {
		t.Fatalf("expected the left response topic to be unsubscribed")
	}
	if !h.tr.Subscribed("fm/right/submit_score/response") {
		t.Fatalf("expected the right response topic to be subscribed")
	}
	if s.Current() != "right" {
		t.Fatalf("expected current side right, got %q", s.Current())
	}
}

func TestSwitcher_PersistError(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, station(t, 3))
	s := NewSwitcher([]Switchable{c}, WithPersister(&persisted{err: errors.New("disk full")}))

	err := s.SwitchTo(context.Background(), "5")
	var opErr OpError
	if !errors.As(err, &opErr) || opErr.Action != ActionPersist {
		t.Fatalf("expected a persist OpError, got %v", err)
	}
	if s.Current() != "5" {
		t.Fatalf("expected the switch to be applied despite the persist error")
	}
}

func TestSwitcher_NoMembers(t *testing.T) {
	s := NewSwitcher(nil)
	if err := s.SwitchTo(context.Background(), "1"); !errors.Is(err, ErrNoMembers) {
		t.Fatalf("expected ErrNoMembers, got %v", err)
	}
}
