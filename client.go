package stationlink

import (
	"context"
	"sync"
	"time"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/topic"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"
)

// DefaultTimeout is how long a request waits for its response before the
// fallback is used.
const DefaultTimeout = 3 * time.Second

// Client issues requests for one namespace and correlates their responses.
//
// Requests are keyed by Request.Key. Issuing a second request for a key that is
// still pending replaces the first one, which resolves right away with its own
// fallback. WithCorrelationIDs keys requests by a generated id instead so
// requests for the same key can be in flight together.
//
// Result callbacks always run on the dispatcher goroutine.
type Client struct {
	d         *Dispatcher
	logger    log.Logger
	clock     Clock
	timeout   time.Duration
	fallback  FallbackPolicy
	correlate bool
	limiter   *rate.Limiter
	actions   []string

	mu      sync.Mutex
	ns      topic.Namespace
	pending *pendingTable
	routes  map[string]uint64 // action -> route id on ns.ResponseTopic(action)
	closed  bool
}

// NewClient returns a client publishing through d for namespace ns.
func NewClient(d *Dispatcher, ns topic.Namespace, opts ...ClientOption) *Client {
	c := &Client{
		d:        d,
		logger:   log.Noop(),
		clock:    SystemClock(),
		timeout:  DefaultTimeout,
		fallback: AssumeSuccess,
		ns:       ns,
		pending:  newPendingTable(),
		routes:   make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	for _, action := range c.actions {
		c.ensureRoute(context.Background(), action)
	}
	c.mu.Unlock()
	return c
}

// Namespace returns the namespace the client currently addresses.
func (c *Client) Namespace() topic.Namespace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ns
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.size()
}

// Actions returns the actions whose response topics are routed, sorted.
func (c *Client) Actions() []string {
	c.mu.Lock()
	actions := maps.Keys(c.routes)
	c.mu.Unlock()
	slices.Sort(actions)
	return actions
}

// IssueRequest publishes req and returns without waiting for the answer.
// onResult is called exactly once on the dispatcher goroutine, with the
// backend's answer or with req's fallback when the transport is not connected,
// the publish fails or no response arrives in time. When connected the request
// is published before IssueRequest returns.
func (c *Client) IssueRequest(req Request, onResult func(Result)) {
	if onResult == nil {
		onResult = func(Result) {}
	}

	e := &pendingEntry{
		key:      req.Key,
		action:   req.Action,
		issuedAt: c.clock.Now(),
		fallback: req.Fallback,
		onResult: onResult,
	}
	if e.fallback == nil {
		e.fallback = c.fallback
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.resolveLater(e, ResolvedByClose)
		return
	}

	if !c.d.Transport().IsConnected() {
		c.mu.Unlock()
		c.logger.Log(log.LevelDebug, "transport not connected, resolving with fallback",
			log.String("action", req.Action), log.String("key", req.Key))
		c.resolveLater(e, ResolvedUnavailable)
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.mu.Unlock()
		c.logger.Log(log.LevelWarning, "publish rate exceeded, resolving with fallback",
			log.String("action", req.Action), log.String("key", req.Key))
		c.resolveLater(e, ResolvedThrottled)
		return
	}

	ns := c.ns
	c.ensureRoute(context.Background(), req.Action)

	e.id = req.Key
	env := Envelope{Key: req.Key, Station: ns.Identifier(), Fields: req.Fields}
	if c.correlate {
		e.id = uuid.NewString()
		env.CorrelationID = e.id
	}

	payload, err := EncodeEnvelope(env)
	if err != nil {
		c.mu.Unlock()
		c.logger.Log(log.LevelError, "error encoding request, resolving with fallback",
			log.String("action", req.Action), log.String("key", req.Key), log.Error("error", err))
		c.resolveLater(e, ResolvedUnavailable)
		return
	}

	superseded := c.pending.put(e)
	e.timer = c.clock.AfterFunc(timeout, func() {
		c.post(func() { c.expire(e, timeout) })
	})
	c.mu.Unlock()

	if superseded != nil {
		c.logger.Log(log.LevelWarning, "request superseded by a newer request for the same key",
			log.String("action", superseded.action), log.String("key", superseded.key))
		c.resolveLater(superseded, ResolvedBySupersede)
	}

	requestTopic := ns.RequestTopic(req.Action)
	if err := c.d.Publish(context.Background(), requestTopic, payload); err != nil {
		c.mu.Lock()
		removed := c.pending.takeEntry(e)
		c.mu.Unlock()
		if removed {
			c.logger.Log(log.LevelError, "error publishing request, resolving with fallback",
				log.String("topic", requestTopic), log.String("key", req.Key), log.Error("error", err))
			c.resolveLater(e, ResolvedUnavailable)
		}
		return
	}

	c.logger.Log(log.LevelDebug, "request published",
		log.String("topic", requestTopic), log.String("key", req.Key), log.Duration("timeout", timeout))
}

// HandleMessage processes a message received on one of the client's response
// topics. It must run on the dispatcher goroutine, the dispatcher routes
// response topics to it.
func (c *Client) HandleMessage(topicName string, payload []byte) {
	c.mu.Lock()
	action, ok := c.ns.ParseResponseTopic(topicName)
	if ok {
		_, ok = c.routes[action]
	}
	ns := c.ns
	c.mu.Unlock()

	if !ok {
		c.logger.Log(log.LevelDebug, "ignoring message on a topic that is not a current response topic",
			log.String("topic", topicName))
		return
	}

	resp, err := DecodeResponse(payload)
	if err != nil {
		c.logger.Log(log.LevelWarning, "dropping malformed response",
			log.String("topic", topicName), log.Error("error", err))
		return
	}

	if resp.Station != "" && resp.Station != ns.Identifier() {
		c.logger.Log(log.LevelDebug, "ignoring response addressed to another identifier",
			log.String("topic", topicName), log.String("station", resp.Station))
		return
	}

	c.mu.Lock()
	var e *pendingEntry
	if resp.CorrelationID != "" {
		e = c.pending.take(resp.CorrelationID, action)
	}
	if e == nil && resp.Key != "" {
		if c.correlate {
			e = c.pending.takeOldestByKey(resp.Key, action)
		} else {
			e = c.pending.take(resp.Key, action)
		}
	}
	c.mu.Unlock()

	if e == nil {
		c.logger.Log(log.LevelDebug, "no pending request for response, late or duplicate",
			log.String("topic", topicName), log.String("key", resp.Key))
		return
	}

	e.resolve(Result{
		Key:        e.key,
		Success:    resp.Success,
		Value:      resp.Result,
		Resolution: ResolvedByResponse,
		Elapsed:    c.clock.Now().Sub(e.issuedAt),
	})
}

// SwitchNamespace moves the client to ns. Response topics of the old namespace
// are unrouted, every pending request resolves with its fallback and the
// response topics of ns are routed.
func (c *Client) SwitchNamespace(ctx context.Context, ns topic.Namespace) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	old := c.ns
	var firstErr error
	for action, id := range c.routes {
		if err := c.d.Unroute(ctx, old.ResponseTopic(action), id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	entries := c.pending.drain()
	c.ns = ns
	for action := range c.routes {
		if err := c.route(ctx, action); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.mu.Unlock()

	c.logger.Log(log.LevelInfo, "client switched namespace",
		log.String("from", old.String()), log.String("to", ns.String()), log.Int("resolved", len(entries)))

	for _, e := range entries {
		c.resolveLater(e, ResolvedBySwitch)
	}
	return firstErr
}

// Close unroutes the client's response topics and resolves every pending
// request with its fallback. Requests issued afterwards resolve with their
// fallback right away.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	for action, id := range c.routes {
		_ = c.d.Unroute(context.Background(), c.ns.ResponseTopic(action), id)
	}
	maps.Clear(c.routes)
	entries := c.pending.drain()
	c.mu.Unlock()

	for _, e := range entries {
		c.resolveLater(e, ResolvedByClose)
	}
}

// expire runs on the dispatcher goroutine when e's timer fired.
func (c *Client) expire(e *pendingEntry, timeout time.Duration) {
	c.mu.Lock()
	ok := c.pending.takeEntry(e)
	c.mu.Unlock()
	if !ok {
		return
	}

	c.logger.Log(log.LevelInfo, "no response in time, resolving with fallback",
		log.String("action", e.action), log.String("key", e.key), log.Duration("timeout", timeout))
	e.resolve(e.fallbackResult(ResolvedByTimeout, c.clock.Now()))
}

// ensureRoute routes the response topic of action once, c.mu must be held.
func (c *Client) ensureRoute(ctx context.Context, action string) {
	if _, ok := c.routes[action]; ok {
		return
	}
	if err := c.route(ctx, action); err != nil {
		c.logger.Log(log.LevelError, "error routing response topic",
			log.String("action", action), log.Error("error", err))
	}
}

// route routes the response topic of action for the current namespace, c.mu must be held.
func (c *Client) route(ctx context.Context, action string) error {
	responseTopic := c.ns.ResponseTopic(action)
	id, err := c.d.Route(ctx, responseTopic, func(payload []byte) {
		c.HandleMessage(responseTopic, payload)
	})
	c.routes[action] = id
	return err
}

func (c *Client) resolveLater(e *pendingEntry, how Resolution) {
	c.post(func() {
		e.resolve(e.fallbackResult(how, c.clock.Now()))
	})
}

// post runs fn on the dispatcher, or inline once the dispatcher is closed so
// no callback is lost.
func (c *Client) post(fn func()) {
	if !c.d.Post(fn) {
		fn()
	}
}
