package stationlink

import (
	"context"
	"sync"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/topic"
)

// ListenerOption configures a BroadcastListener.
type ListenerOption func(*BroadcastListener)

// WithListenerLogger sets the listener logger.
func WithListenerLogger(logger log.Logger) ListenerOption {
	return func(l *BroadcastListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// BroadcastListener receives a periodically published broadcast, such as the
// top-10 list, and hands every decoded message to its observers. It never
// publishes.
//
// The broadcast topic is shared by every identifier of a namespace, so the
// listener stays subscribed when the station or side changes.
type BroadcastListener struct {
	d      *Dispatcher
	name   string
	logger log.Logger

	mu         sync.Mutex
	ns         topic.Namespace
	routeID    uint64
	subscribed bool
	closed     bool
	last       *Broadcast
	observers  []observer
	nextID     uint64
}

type observer struct {
	id uint64
	fn func(Broadcast)
}

// NewBroadcastListener returns a listener for the broadcast called name in ns.
func NewBroadcastListener(d *Dispatcher, ns topic.Namespace, name string, opts ...ListenerOption) *BroadcastListener {
	l := &BroadcastListener{
		d:      d,
		name:   name,
		logger: log.Noop(),
		ns:     ns,
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Topic returns the broadcast topic.
func (l *BroadcastListener) Topic() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ns.BroadcastTopic(l.name)
}

// Namespace returns the namespace the listener belongs to.
func (l *BroadcastListener) Namespace() topic.Namespace {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ns
}

// Subscribe routes the broadcast topic. Subscribing twice is a no-op.
func (l *BroadcastListener) Subscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrListenerClosed
	}
	if l.subscribed {
		return nil
	}
	return l.subscribe(ctx)
}

// Unsubscribe unroutes the broadcast topic. The cached broadcast is kept.
func (l *BroadcastListener) Unsubscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.subscribed {
		return nil
	}
	return l.unsubscribe(ctx)
}

// Close unroutes the broadcast topic and drops every observer. Subscribe and
// SwitchNamespace return ErrListenerClosed afterwards, closing twice is a no-op.
func (l *BroadcastListener) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.observers = nil

	if !l.subscribed {
		return nil
	}
	return l.unsubscribe(ctx)
}

// Observe registers fn for every broadcast, in registration order. The returned
// cancel func unregisters fn and may be called any number of times.
func (l *BroadcastListener) Observe(fn func(Broadcast)) (cancel func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return func() {}
	}
	l.nextID++
	id := l.nextID
	l.observers = append(l.observers, observer{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, o := range l.observers {
				if o.id == id {
					l.observers = append(l.observers[:i:i], l.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Last returns the most recent broadcast, if one was received.
func (l *BroadcastListener) Last() (Broadcast, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return Broadcast{}, false
	}
	return *l.last, true
}

// SwitchNamespace adopts ns. The route only moves when the broadcast topic
// differs, which happens only for a different root.
func (l *BroadcastListener) SwitchNamespace(ctx context.Context, ns topic.Namespace) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrListenerClosed
	}

	moved := ns.BroadcastTopic(l.name) != l.ns.BroadcastTopic(l.name)
	if !moved || !l.subscribed {
		l.ns = ns
		return nil
	}

	if err := l.unsubscribe(ctx); err != nil {
		l.logger.Log(log.LevelError, "error leaving broadcast topic", log.Error("error", err))
	}
	l.ns = ns
	return l.subscribe(ctx)
}

// handle runs on the dispatcher goroutine for every message on the broadcast topic.
func (l *BroadcastListener) handle(topicName string, payload []byte) {
	bc, err := DecodeBroadcast(payload)
	if err != nil {
		l.logger.Log(log.LevelWarning, "dropping malformed broadcast",
			log.String("topic", topicName), log.Error("error", err))
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.last = &bc
	observers := append([]observer(nil), l.observers...)
	l.mu.Unlock()

	for _, o := range observers {
		o.fn(bc)
	}
}

// subscribe must be called with l.mu held.
func (l *BroadcastListener) subscribe(ctx context.Context) error {
	topicName := l.ns.BroadcastTopic(l.name)
	id, err := l.d.Route(ctx, topicName, func(payload []byte) {
		l.handle(topicName, payload)
	})
	l.routeID = id
	l.subscribed = true
	return err
}

// unsubscribe must be called with l.mu held.
func (l *BroadcastListener) unsubscribe(ctx context.Context) error {
	err := l.d.Unroute(ctx, l.ns.BroadcastTopic(l.name), l.routeID)
	l.subscribed = false
	l.routeID = 0
	return err
}
