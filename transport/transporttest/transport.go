// Package transporttest provides an in-memory transport.Transport that records
// every call, for use in tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/ambitiousfew/stationlink/transport"
)

// Message is a recorded publish.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport records publishes and subscriptions and lets a test inject inbound
// messages with Deliver. Like the real adapters it remembers topics subscribed
// while disconnected, reports transport.ErrNotConnected for them and holds
// them again on the next Connect.
type Transport struct {
	mu         sync.Mutex
	connected  bool
	handler    transport.Handler
	subscribed map[string]int
	published  []Message

	// PublishErr, SubscribeErr and ConnectErr are returned by the matching call when set.
	PublishErr   error
	SubscribeErr error
	ConnectErr   error
	// OnPublish, when set, is called after a publish is recorded. It runs on the
	// caller's goroutine, so it can be used to script a backend reply.
	OnPublish func(topic string, payload []byte)
}

// New returns a disconnected recording transport.
func New() *Transport {
	return &Transport{subscribed: make(map[string]int)}
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// SetConnected flips the connection state without going through Connect.
func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Subscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SubscribeErr != nil {
		return t.SubscribeErr
	}
	t.subscribed[topic]++
	if !t.connected {
		return transport.OpError{Transport: "transporttest", Action: transport.ActionSubscribe, Topic: topic, Err: transport.ErrNotConnected}
	}
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribed, topic)
	if !t.connected {
		return transport.OpError{Transport: "transporttest", Action: transport.ActionUnsubscribe, Topic: topic, Err: transport.ErrNotConnected}
	}
	return nil
}

func (t *Transport) Publish(_ context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	if t.PublishErr != nil {
		err := t.PublishErr
		t.mu.Unlock()
		return err
	}
	if !t.connected {
		t.mu.Unlock()
		return transport.ErrNotConnected
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	t.published = append(t.published, Message{Topic: topic, Payload: b})
	onPublish := t.OnPublish
	t.mu.Unlock()

	if onPublish != nil {
		onPublish(topic, b)
	}
	return nil
}

func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Deliver hands a message to the handler as if it arrived from the broker.
// Messages on topics that are not subscribed are dropped, like a real broker would.
func (t *Transport) Deliver(topic string, payload []byte) bool {
	t.mu.Lock()
	h := t.handler
	_, ok := t.subscribed[topic]
	ok = ok && t.connected
	t.mu.Unlock()
	if h == nil || !ok {
		return false
	}
	h.HandleMessage(topic, payload)
	return true
}

// DeliverAny hands a message to the handler regardless of subscriptions.
func (t *Transport) DeliverAny(topic string, payload []byte) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.HandleMessage(topic, payload)
	}
}

// Published returns a copy of every recorded publish.
func (t *Transport) Published() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.published))
	copy(out, t.published)
	return out
}

// Subscribed reports whether topic is subscribed on a live connection.
func (t *Transport) Subscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subscribed[topic]
	return ok && t.connected
}

// Remembered reports whether topic will be subscribed on the next connect.
func (t *Transport) Remembered(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subscribed[topic]
	return ok
}

// Subscriptions returns the remembered topics.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subscribed))
	for topic := range t.subscribed {
		out = append(out, topic)
	}
	return out
}
