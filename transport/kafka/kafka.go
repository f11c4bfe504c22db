// Package kafka is the transport for a Kafka compatible broker.
//
// Kafka topic names may not contain '/', so every topic is mapped with
// KafkaTopic and mapped back with TopicName. Consumption starts at the end of each topic; a station only
// cares about messages published while it is listening.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

const name = "kafka"

// client is the subset of *kgo.Client the transport uses.
type client interface {
	Ping(ctx context.Context) error
	AddConsumeTopics(topics ...string)
	PurgeTopicsFromConsuming(topics ...string)
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Option configures a Transport.
type Option func(*Transport)

// WithClientID sets the client id reported to the brokers.
func WithClientID(id string) Option {
	return func(t *Transport) {
		if id != "" {
			t.clientID = id
		}
	}
}

// WithCredentials enables SASL/PLAIN.
func WithCredentials(username, password string) Option {
	return func(t *Transport) {
		t.username = username
		t.password = password
	}
}

// WithTLS dials the brokers over TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// WithClientOpts appends raw client options, applied last.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(t *Transport) {
		t.extra = append(t.extra, opts...)
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport consumes every subscribed topic directly, without a consumer group.
type Transport struct {
	brokers   []string
	clientID  string
	username  string
	password  string
	tlsConfig *tls.Config
	extra     []kgo.Opt
	logger    log.Logger

	newClient func(opts ...kgo.Opt) (client, error)

	mu      sync.Mutex
	cl      client
	handler transport.Handler
	topics  map[string]struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport for the given seed brokers.
func New(brokers []string, opts ...Option) *Transport {
	t := &Transport{
		brokers:  brokers,
		clientID: "stationlink",
		logger:   log.Noop(),
		topics:   make(map[string]struct{}),
		newClient: func(opts ...kgo.Opt) (client, error) {
			return kgo.NewClient(opts...)
		},
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// KafkaTopic maps a topic to a Kafka topic name. '/' becomes '.', letters,
// digits and '_' are kept and every other byte is written as '-' followed by
// two hex digits, so TopicName gives the topic back.
func KafkaTopic(topicName string) string {
	var b strings.Builder
	b.Grow(len(topicName))
	for i := 0; i < len(topicName); i++ {
		c := topicName[i]
		switch {
		case c == '/':
			b.WriteByte('.')
		case plainTopicByte(c):
			b.WriteByte(c)
		default:
			b.WriteByte('-')
			b.WriteString(hex.EncodeToString([]byte{c}))
		}
	}
	return b.String()
}

// TopicName maps a Kafka topic name back to a topic. Malformed escapes are
// kept as they are.
func TopicName(kafkaTopic string) string {
	var b strings.Builder
	b.Grow(len(kafkaTopic))
	for i := 0; i < len(kafkaTopic); i++ {
		c := kafkaTopic[i]
		switch c {
		case '.':
			b.WriteByte('/')
		case '-':
			if i+2 < len(kafkaTopic) {
				if v, err := hex.DecodeString(kafkaTopic[i+1 : i+3]); err == nil {
					b.WriteByte(v[0])
					i += 2
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func plainTopicByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cl != nil {
		return nil
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(t.brokers...),
		kgo.ClientID(t.clientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.AllowAutoTopicCreation(),
	}
	if len(t.topics) > 0 {
		kopts = append(kopts, kgo.ConsumeTopics(t.kafkaTopics()...))
	}
	if t.tlsConfig != nil {
		kopts = append(kopts, kgo.DialTLSConfig(t.tlsConfig))
	}
	if t.username != "" {
		kopts = append(kopts, kgo.SASL(plain.Auth{User: t.username, Pass: t.password}.AsMechanism()))
	}
	kopts = append(kopts, t.extra...)

	cl, err := t.newClient(kopts...)
	if err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionConnect, Err: err}
	}
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return transport.OpError{Transport: name, Action: transport.ActionConnect, Err: err}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	t.cl, t.cancel = cl, cancel
	t.wg.Add(1)
	go t.poll(pollCtx, cl)

	t.logger.Log(log.LevelInfo, "kafka connected", log.Any("brokers", t.brokers))
	return nil
}

func (t *Transport) kafkaTopics() []string {
	names := make([]string, 0, len(t.topics))
	for topicName := range t.topics {
		names = append(names, KafkaTopic(topicName))
	}
	return names
}

// Disconnect stops the poll loop and closes the client.
func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	cl, cancel := t.cl, t.cancel
	t.cl, t.cancel = nil, nil
	t.mu.Unlock()

	if cl == nil {
		return nil
	}
	cancel()
	cl.Close()
	t.wg.Wait()
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cl != nil
}

// Subscribe starts consuming topic. The topic is remembered and consumed again
// on the next Connect.
func (t *Transport) Subscribe(_ context.Context, topicName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.topics[topicName] = struct{}{}
	if t.cl == nil {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: transport.ErrNotConnected}
	}
	t.cl.AddConsumeTopics(KafkaTopic(topicName))
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, topicName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.topics, topicName)
	if t.cl != nil {
		t.cl.PurgeTopicsFromConsuming(KafkaTopic(topicName))
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte) error {
	t.mu.Lock()
	cl := t.cl
	t.mu.Unlock()

	if cl == nil {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: transport.ErrNotConnected}
	}

	rec := &kgo.Record{Topic: KafkaTopic(topicName), Value: payload}
	if err := cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: err}
	}
	return nil
}

// poll hands fetched records to the handler until ctx is cancelled or the
// client is closed.
func (t *Transport) poll(ctx context.Context, cl client) {
	defer t.wg.Done()
	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topicName string, partition int32, err error) {
			t.logger.Log(log.LevelWarning, "kafka fetch error",
				log.String("topic", topicName), log.Int("partition", partition), log.Error("error", err))
		})

		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h == nil {
			continue
		}

		fetches.EachRecord(func(r *kgo.Record) {
			h.HandleMessage(TopicName(r.Topic), r.Value)
		})
	}
}
