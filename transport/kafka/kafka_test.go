package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ambitiousfew/stationlink/transport"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeClient struct {
	mu       sync.Mutex
	pingErr  error
	consumed map[string]bool
	produced []*kgo.Record
	fetches  chan kgo.Fetches
	closed   chan struct{}
	once     sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		consumed: make(map[string]bool),
		fetches:  make(chan kgo.Fetches, 4),
		closed:   make(chan struct{}),
	}
}

func (c *fakeClient) Ping(context.Context) error { return c.pingErr }

func (c *fakeClient) AddConsumeTopics(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		c.consumed[topic] = true
	}
}

func (c *fakeClient) PurgeTopicsFromConsuming(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.consumed, topic)
	}
}

func (c *fakeClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		c.produced = append(c.produced, r)
		results = append(results, kgo.ProduceResult{Record: r})
	}
	return results
}

func (c *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case f := <-c.fetches:
		return f
	case <-ctx.Done():
		return kgo.Fetches{{Topics: []kgo.FetchTopic{{Partitions: []kgo.FetchPartition{{Err: ctx.Err()}}}}}}
	case <-c.closed:
		return kgo.Fetches{{Topics: []kgo.FetchTopic{{Partitions: []kgo.FetchPartition{{Err: kgo.ErrClientClosed}}}}}}
	}
}

func (c *fakeClient) Close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeClient) isConsuming(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumed[topic]
}

func newFake(t *testing.T, fc *fakeClient) *Transport {
	t.Helper()
	tr := New([]string{"localhost:9092"})
	tr.newClient = func(opts ...kgo.Opt) (client, error) {
		if len(opts) < 4 {
			t.Errorf("expected the default client options, got %d", len(opts))
		}
		return fc, nil
	}
	return tr
}

func records(topic string, values ...string) kgo.Fetches {
	rs := make([]*kgo.Record, 0, len(values))
	for _, v := range values {
		rs = append(rs, &kgo.Record{Topic: topic, Value: []byte(v)})
	}
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{Topic: topic, Partitions: []kgo.FetchPartition{{Records: rs}}}}}}
}

func TestTopicMapping(t *testing.T) {
	tests := []struct {
		topic string
		kafka string
	}{
		{"leaderboard/check_username", "leaderboard.check_username"},
		{"leaderboard/check_username/response/3", "leaderboard.check_username.response.3"},
		{"fm/right/submit_score/response", "fm.right.submit_score.response"},
		{"arena.v2/check_username", "arena-2ev2.check_username"},
		{"fm-2/left/top10", "fm-2d2.left.top10"},
		{"lb/score board", "lb.score-20board"},
	}

	for _, tt := range tests {
		if got := KafkaTopic(tt.topic); got != tt.kafka {
			t.Errorf("KafkaTopic(%q): expected %q, got %q", tt.topic, tt.kafka, got)
		}
		if got := TopicName(tt.kafka); got != tt.topic {
			t.Errorf("TopicName(%q): expected %q, got %q", tt.kafka, tt.topic, got)
		}
	}
}

func TestTopicMapping_Reversible(t *testing.T) {
	topics := []string{
		"a.b/c", "a/b/c", "a-b/c", "a-2e/b", "-", ".", "/", "x--y", "ümlaut/top10",
	}
	seen := make(map[string]string)
	for _, topicName := range topics {
		k := KafkaTopic(topicName)
		if got := TopicName(k); got != topicName {
			t.Errorf("TopicName(KafkaTopic(%q)): expected the topic back, got %q", topicName, got)
		}
		if other, ok := seen[k]; ok {
			t.Errorf("topics %q and %q both map to %q", other, topicName, k)
		}
		seen[k] = topicName
		for i := 0; i < len(k); i++ {
			if c := k[i]; c != '.' && c != '-' && !plainTopicByte(c) {
				t.Errorf("KafkaTopic(%q) = %q holds byte %q Kafka does not allow", topicName, k, c)
			}
		}
	}
}

func TestTransport_SubscribeAndDeliver(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	tr := newFake(t, fc)

	got := make(chan string, 4)
	tr.SetHandler(transport.HandlerFunc(func(topic string, payload []byte) {
		got <- topic + " " + string(payload)
	}))

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect(ctx)

	if err := tr.Subscribe(ctx, "leaderboard/check_username/response/3"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !fc.isConsuming("leaderboard.check_username.response.3") {
		t.Fatalf("expected the mapped topic to be consumed")
	}

	fc.fetches <- records("leaderboard.check_username.response.3", `{"key":"alice"}`, `{"key":"bob"}`)

	for _, want := range []string{
		`leaderboard/check_username/response/3 {"key":"alice"}`,
		`leaderboard/check_username/response/3 {"key":"bob"}`,
	} {
		select {
		case msg := <-got:
			if msg != want {
				t.Fatalf("expected %q, got %q", want, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	if err := tr.Unsubscribe(ctx, "leaderboard/check_username/response/3"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if fc.isConsuming("leaderboard.check_username.response.3") {
		t.Fatalf("expected the topic to be purged")
	}
}

func TestTransport_Publish(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	tr := newFake(t, fc)

	if err := tr.Publish(ctx, "leaderboard/check_username", nil); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect(ctx)

	if err := tr.Publish(ctx, "leaderboard/check_username", []byte(`{"key":"alice"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.produced) != 1 || fc.produced[0].Topic != "leaderboard.check_username" || string(fc.produced[0].Value) != `{"key":"alice"}` {
		t.Fatalf("unexpected produced records %v", fc.produced)
	}
}

func TestTransport_SubscribeBeforeConnect(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	tr := newFake(t, fc)

	var optCount int
	tr.newClient = func(opts ...kgo.Opt) (client, error) {
		optCount = len(opts)
		return fc, nil
	}

	if err := tr.Subscribe(ctx, "a/b"); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect(ctx)

	// seed brokers, client id, reset offset, auto create and the remembered topic.
	if optCount != 5 {
		t.Fatalf("expected 5 client options, got %d", optCount)
	}
}

func TestTransport_ConnectPingError(t *testing.T) {
	fc := newFakeClient()
	fc.pingErr = errors.New("no brokers")
	tr := newFake(t, fc)

	var opErr transport.OpError
	if err := tr.Connect(context.Background()); !errors.As(err, &opErr) || opErr.Action != transport.ActionConnect {
		t.Fatalf("expected a connect OpError, got %v", err)
	}
	if tr.IsConnected() {
		t.Fatalf("expected the transport to stay disconnected")
	}
}

func TestTransport_DisconnectStopsPolling(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	tr := newFake(t, fc)

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = tr.Disconnect(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disconnect did not stop the poll loop")
	}
	if tr.IsConnected() {
		t.Fatalf("expected the transport to be disconnected")
	}
}
