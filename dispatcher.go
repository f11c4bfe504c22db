package stationlink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithOperationTimeout bounds every subscribe, unsubscribe and publish call
// made on the transport. Defaults to 2 seconds.
func WithOperationTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.opTimeout = timeout
		}
	}
}

// Dispatcher is the single logical thread every inbound message and every
// result callback runs on. Transport adapters deliver from their own network
// goroutines, the dispatcher queues those deliveries and runs them in arrival
// order from Run.
//
// It also owns the route table: which topics are subscribed on the transport
// and who receives their messages. A topic stays subscribed as long as one
// route references it.
type Dispatcher struct {
	transport transport.Transport
	logger    log.Logger
	opTimeout time.Duration

	queueMu sync.Mutex
	queue   []func()
	stopped bool
	signalC chan struct{}
	stopC   chan struct{}
	doneC   chan struct{}
	running atomic.Bool
	closed  atomic.Bool

	routesMu sync.Mutex
	routes   map[string][]route
	nextID   uint64
}

type route struct {
	id uint64
	fn func(payload []byte)
}

// NewDispatcher returns a dispatcher for tr and registers itself as tr's handler.
func NewDispatcher(tr transport.Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: tr,
		logger:    log.Noop(),
		opTimeout: 2 * time.Second,
		signalC:   make(chan struct{}, 1),
		stopC:     make(chan struct{}),
		doneC:     make(chan struct{}),
		routes:    make(map[string][]route),
	}

	for _, opt := range opts {
		opt(d)
	}

	tr.SetHandler(d)
	return d
}

// Transport returns the transport the dispatcher routes for.
func (d *Dispatcher) Transport() transport.Transport {
	return d.transport
}

// HandleMessage queues an inbound message, it never blocks the caller.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) {
	b := make([]byte, len(payload))
	copy(b, payload)
	if !d.Post(func() { d.deliver(topic, b) }) {
		d.logger.Log(log.LevelDebug, "dropping message, dispatcher closed", log.String("topic", topic))
	}
}

// Post queues fn to run on the dispatcher goroutine. It returns false once the
// dispatcher is closed or Run has finished its last drain. Work accepted
// while Run is still active always runs.
func (d *Dispatcher) Post(fn func()) bool {
	d.queueMu.Lock()
	if d.stopped || (d.closed.Load() && !d.running.Load()) {
		d.queueMu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.queueMu.Unlock()

	select {
	case d.signalC <- struct{}{}:
	default:
		// a wake up is already pending.
	}
	return true
}

// Sync queues fn and waits until it ran. It must not be called from the
// dispatcher goroutine.
func (d *Dispatcher) Sync(ctx context.Context, fn func()) error {
	ranC := make(chan struct{})
	if !d.Post(func() {
		fn()
		close(ranC)
	}) {
		return ErrDispatcherClosed
	}

	select {
	case <-ranC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued work until ctx is done or Close is called. Work queued
// before the dispatcher stopped is still run before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.running.Swap(true) {
		return ErrDispatcherRunning
	}
	defer close(d.doneC)

	for {
		d.drain()

		select {
		case <-ctx.Done():
			d.closed.Store(true)
			d.shutdown()
			return nil
		case <-d.stopC:
			d.shutdown()
			return nil
		case <-d.signalC:
		}
	}
}

// shutdown runs what is left in the queue, then refuses new work under the
// queue lock so nothing accepted by Post is left behind.
func (d *Dispatcher) shutdown() {
	for {
		d.drain()

		d.queueMu.Lock()
		if len(d.queue) == 0 {
			d.stopped = true
			d.queueMu.Unlock()
			return
		}
		d.queueMu.Unlock()
	}
}

// Close stops the dispatcher. Queued work still runs if Run is active.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}
	close(d.stopC)
}

// Done is closed when Run returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.doneC
}

func (d *Dispatcher) drain() {
	for {
		d.queueMu.Lock()
		batch := d.queue
		d.queue = nil
		d.queueMu.Unlock()

		if len(batch) == 0 {
			return
		}

		for _, fn := range batch {
			d.run(fn)
		}
	}
}

// run executes one unit of work, a panicking callback must not take the loop down.
func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Log(log.LevelError, "recovered from a panic in dispatched work", log.Any("panic", r))
		}
	}()
	fn()
}

func (d *Dispatcher) deliver(topic string, payload []byte) {
	d.routesMu.Lock()
	routes := append([]route(nil), d.routes[topic]...)
	d.routesMu.Unlock()

	if len(routes) == 0 {
		d.logger.Log(log.LevelDebug, "no route for inbound message", log.String("topic", topic))
		return
	}

	for _, r := range routes {
		r.fn(payload)
	}
}

// Connect connects the transport and subscribes every routed topic.
func (d *Dispatcher) Connect(ctx context.Context) error {
	if err := d.transport.Connect(ctx); err != nil {
		return OpError{Action: ActionConnect, Err: err}
	}
	return d.Resubscribe(ctx)
}

// Resubscribe subscribes every routed topic on the transport again, e.g. after
// the transport reconnected with a clean session.
func (d *Dispatcher) Resubscribe(ctx context.Context) error {
	d.routesMu.Lock()
	defer d.routesMu.Unlock()

	var firstErr error
	for topic := range d.routes {
		if err := d.subscribe(ctx, topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Disconnect disconnects the transport, routes are kept for the next Connect.
func (d *Dispatcher) Disconnect(ctx context.Context) error {
	return d.transport.Disconnect(ctx)
}

// Route registers fn for messages on topic and subscribes the transport when
// topic had no route yet. While the transport is disconnected the adapter only
// remembers the topic and subscribes it once the connection is back.
func (d *Dispatcher) Route(ctx context.Context, topic string, fn func(payload []byte)) (uint64, error) {
	d.routesMu.Lock()
	defer d.routesMu.Unlock()

	d.nextID++
	id := d.nextID
	existing := d.routes[topic]
	d.routes[topic] = append(existing, route{id: id, fn: fn})

	if len(existing) > 0 {
		return id, nil
	}

	return id, d.subscribe(ctx, topic)
}

// Unroute removes the route with id, unsubscribing topic once no route is left.
// Removing an unknown route is a no-op.
func (d *Dispatcher) Unroute(ctx context.Context, topic string, id uint64) error {
	d.routesMu.Lock()
	defer d.routesMu.Unlock()

	routes := d.routes[topic]
	kept := routes[:0:0]
	for _, r := range routes {
		if r.id != id {
			kept = append(kept, r)
		}
	}

	if len(kept) == len(routes) {
		return nil
	}

	if len(kept) > 0 {
		d.routes[topic] = kept
		return nil
	}

	delete(d.routes, topic)

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()
	if err := d.transport.Unsubscribe(opCtx, topic); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			d.logger.Log(log.LevelDebug, "forgot topic while disconnected", log.String("topic", topic))
			return nil
		}
		d.logger.Log(log.LevelError, "error unsubscribing", log.String("topic", topic), log.Error("error", err))
		return OpError{Action: ActionUnrouting, Target: topic, Err: err}
	}
	d.logger.Log(log.LevelDebug, "unsubscribed", log.String("topic", topic))
	return nil
}

// Routed reports whether topic has at least one route.
func (d *Dispatcher) Routed(topic string) bool {
	d.routesMu.Lock()
	defer d.routesMu.Unlock()
	return len(d.routes[topic]) > 0
}

// Publish publishes payload on topic bounded by the operation timeout.
func (d *Dispatcher) Publish(ctx context.Context, topic string, payload []byte) error {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()
	return d.transport.Publish(opCtx, topic, payload)
}

// subscribe must be called with routesMu held.
func (d *Dispatcher) subscribe(ctx context.Context, topic string) error {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.transport.Subscribe(opCtx, topic); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			// the adapter remembers the topic for its next connect.
			d.logger.Log(log.LevelDebug, "topic remembered while disconnected", log.String("topic", topic))
			return nil
		}
		d.logger.Log(log.LevelError, "error subscribing", log.String("topic", topic), log.Error("error", err))
		return OpError{Action: ActionRouting, Target: topic, Err: err}
	}
	d.logger.Log(log.LevelDebug, "subscribed", log.String("topic", topic))
	return nil
}
