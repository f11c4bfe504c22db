// Package intracom is an in-process publish/subscribe registry.
//
// Topics are typed, created on demand and fan every published value out to
// each consumer group subscribed to them. Each subscriber has its own buffered
// channel and a buffer policy deciding what happens when that buffer is full.
package intracom

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ambitiousfew/stationlink/log"
)

// Option configures an Intracom.
type Option func(*Intracom)

// WithLogger sets the logger used for errors that cannot be returned to a caller.
func WithLogger(logger log.Logger) Option {
	return func(ic *Intracom) {
		if logger != nil {
			ic.logger = logger
		}
	}
}

// Intracom acts as a registry for all topics.
type Intracom struct {
	name   string
	topics map[string]closer
	mu     sync.RWMutex

	logger log.Logger
	closed atomic.Bool
}

type closer interface {
	Close() error
}

// New creates a new, empty registry.
func New(name string, opts ...Option) *Intracom {
	ic := &Intracom{
		name:   name,
		topics: make(map[string]closer),
		logger: log.Noop(),
		mu:     sync.RWMutex{},
	}

	for _, opt := range opts {
		opt(ic)
	}

	ic.logger = ic.logger.With(log.String("intracom", name))
	return ic
}

// Name returns the name the registry was created with.
func (ic *Intracom) Name() string {
	return ic.name
}

// CreateTopic creates a new topic with the given configuration or returns the
// existing one. If conf.ErrIfExists is set an existing topic is returned together
// with ErrTopicAlreadyExists.
func CreateTopic[T any](ic *Intracom, conf TopicConfig) (Topic[T], error) {
	if ic == nil {
		return nil, ErrTopic{Topic: conf.Name, Action: ActionCreatingTopic, Err: ErrInvalidIntracomNil}
	}

	if ic.closed.Load() {
		return nil, ErrTopic{Topic: conf.Name, Action: ActionCreatingTopic, Err: ErrIntracomClosed}
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	existing, ok := ic.topics[conf.Name]
	if !ok {
		t := newTopic[T](conf, ic.logger)
		ic.topics[conf.Name] = t
		return t, nil
	}

	t, ok := existing.(Topic[T])
	if !ok {
		return nil, ErrTopic{Topic: conf.Name, Action: ActionCreatingTopic, Err: ErrInvalidTopicType}
	}

	if conf.ErrIfExists {
		return t, ErrTopic{Topic: conf.Name, Action: ActionCreatingTopic, Err: ErrTopicAlreadyExists}
	}

	return t, nil
}

// LookupTopic returns the topic registered under name.
func LookupTopic[T any](ic *Intracom, name string) (Topic[T], error) {
	if ic == nil {
		return nil, ErrInvalidIntracomNil
	}

	ic.mu.RLock()
	existing, ok := ic.topics[name]
	ic.mu.RUnlock()
	if !ok {
		return nil, ErrTopicNotFound
	}

	t, ok := existing.(Topic[T])
	if !ok {
		return nil, ErrInvalidTopicType
	}
	return t, nil
}

// RemoveTopic closes the topic, closing every subscriber channel, and removes it.
func RemoveTopic[T any](ic *Intracom, name string) error {
	if ic == nil {
		return ErrTopic{Topic: name, Action: ActionRemovingTopic, Err: ErrInvalidIntracomNil}
	}

	ic.mu.Lock()
	existing, ok := ic.topics[name]
	if !ok {
		ic.mu.Unlock()
		return ErrTopic{Topic: name, Action: ActionRemovingTopic, Err: ErrTopicDoesNotExist}
	}

	if _, ok := existing.(Topic[T]); !ok {
		ic.mu.Unlock()
		return ErrTopic{Topic: name, Action: ActionRemovingTopic, Err: ErrInvalidTopicType}
	}
	delete(ic.topics, name)
	ic.mu.Unlock()

	return existing.Close()
}

// Publish is a convenience wrapper creating the topic if needed and publishing msg to it.
func Publish[T any](ctx context.Context, ic *Intracom, name string, msg T) error {
	t, err := CreateTopic[T](ic, TopicConfig{Name: name})
	if err != nil {
		return err
	}
	return t.Publish(ctx, msg)
}

// Close closes every topic and makes the registry unusable.
func Close(ic *Intracom) error {
	if ic == nil {
		return ErrIntracom{Action: ActionClosingIntracom, Err: ErrInvalidIntracomNil}
	}

	if ic.closed.Swap(true) {
		return ErrIntracom{Action: ActionClosingIntracom, Err: ErrIntracomClosed}
	}

	ic.mu.Lock()
	topics := ic.topics
	ic.topics = make(map[string]closer)
	ic.mu.Unlock()

	for name, t := range topics {
		if err := t.Close(); err != nil {
			ic.logger.Log(log.LevelError, "error closing topic", log.String("topic", name), log.Error("error", err))
		}
	}
	return nil
}
