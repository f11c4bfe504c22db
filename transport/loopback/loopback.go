// Package loopback is an in-process transport backed by intracom.
//
// A Broker plays the part of the message broker for every Transport attached
// to it, which is how a single PC install runs the game and a local backend
// without a network broker, and how tests exercise the full request/response
// path.
package loopback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ambitiousfew/stationlink/intracom"
	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport"
)

const name = "loopback"

// Broker routes messages between the transports attached to it.
type Broker struct {
	ic     *intracom.Intracom
	buffer int
	logger log.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithSubscriberBuffer sets the per subscription buffer size.
func WithSubscriberBuffer(size int) BrokerOption {
	return func(b *Broker) {
		if size >= 0 {
			b.buffer = size
		}
	}
}

// WithBrokerLogger sets the logger of the underlying intracom registry.
func WithBrokerLogger(logger log.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// NewBroker returns an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		buffer: 64,
		logger: log.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ic = intracom.New(name, intracom.WithLogger(b.logger))
	return b
}

// Close shuts down every topic, ending every subscription.
func (b *Broker) Close() error {
	return intracom.Close(b.ic)
}

func (b *Broker) topic(name string) (intracom.Topic[[]byte], error) {
	return intracom.CreateTopic[[]byte](b.ic, intracom.TopicConfig{Name: name, Buffer: b.buffer})
}

// Transport is a client attached to a Broker.
type Transport struct {
	broker   *Broker
	clientID string

	handler   transport.Handler
	connected atomic.Bool

	mu     sync.Mutex
	topics map[string]struct{}
	subs   map[string]intracom.Topic[[]byte]
	wg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport attached to broker. clientID names its consumer
// group on every topic, so it must be unique per broker.
func New(broker *Broker, clientID string) *Transport {
	return &Transport{
		broker:   broker,
		clientID: clientID,
		topics:   make(map[string]struct{}),
		subs:     make(map[string]intracom.Topic[[]byte]),
	}
}

func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Connect attaches every remembered topic again.
func (t *Transport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected.Swap(true) {
		return nil
	}
	for topicName := range t.topics {
		if err := t.attach(topicName); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect drops every subscription and waits for in-flight deliveries.
// Subscribed topics are remembered for the next Connect.
func (t *Transport) Disconnect(_ context.Context) error {
	if !t.connected.Swap(false) {
		return nil
	}

	t.mu.Lock()
	for topicName, topic := range t.subs {
		// the topic may already be gone with a closed broker.
		_ = topic.Unsubscribe(t.clientID)
		delete(t.subs, topicName)
	}
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// Subscribe records topicName and attaches it when connected.
func (t *Transport) Subscribe(_ context.Context, topicName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.topics[topicName] = struct{}{}
	if !t.connected.Load() {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: transport.ErrNotConnected}
	}
	return t.attach(topicName)
}

// attach must be called with mu held.
func (t *Transport) attach(topicName string) error {
	if _, ok := t.subs[topicName]; ok {
		return nil
	}

	topic, err := t.broker.topic(topicName)
	if err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: err}
	}

	ch, err := topic.Subscribe(intracom.SubscriberConfig{
		ConsumerGroup: t.clientID,
		BufferSize:    t.broker.buffer,
		BufferPolicy:  intracom.DropNone,
	})
	if err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionSubscribe, Topic: topicName, Err: err}
	}

	t.subs[topicName] = topic
	t.wg.Add(1)
	go t.forward(topicName, ch)
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, topicName string) error {
	t.mu.Lock()
	delete(t.topics, topicName)
	topic, ok := t.subs[topicName]
	delete(t.subs, topicName)
	t.mu.Unlock()

	if !ok {
		return nil
	}

	if err := topic.Unsubscribe(t.clientID); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionUnsubscribe, Topic: topicName, Err: err}
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte) error {
	if !t.connected.Load() {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: transport.ErrNotConnected}
	}

	topic, err := t.broker.topic(topicName)
	if err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: err}
	}

	// subscribers share the payload, give them their own copy.
	b := make([]byte, len(payload))
	copy(b, payload)
	if err := topic.Publish(ctx, b); err != nil {
		return transport.OpError{Transport: name, Action: transport.ActionPublish, Topic: topicName, Err: err}
	}
	return nil
}

// forward hands messages of one subscription to the handler until the
// subscription channel is closed.
func (t *Transport) forward(topicName string, ch <-chan []byte) {
	defer t.wg.Done()
	for payload := range ch {
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			h.HandleMessage(topicName, payload)
		}
	}
}
