package intracom

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ambitiousfew/stationlink/log"
)

// Topic fans published values out to every subscribed consumer group.
type Topic[T any] interface {
	Name() string
	Publish(ctx context.Context, msg T) error
	Subscribe(conf SubscriberConfig) (<-chan T, error)
	Unsubscribe(consumer string) error
	Subscribers() int
	Close() error
}

// TopicConfig configures a topic on creation.
type TopicConfig struct {
	Name        string // unique name for the topic
	Buffer      int    // buffer size of the publish channel
	ErrIfExists bool   // return error if topic already exists
}

type topic[T any] struct {
	name        string
	publishC    chan T
	doneC       chan struct{}
	subscribers map[string]*subscriber[T]
	logger      log.Logger
	closed      atomic.Bool
	mu          sync.RWMutex
}

func newTopic[T any](conf TopicConfig, logger log.Logger) *topic[T] {
	t := &topic[T]{
		name:        conf.Name,
		publishC:    make(chan T, conf.Buffer),
		doneC:       make(chan struct{}),
		subscribers: make(map[string]*subscriber[T]),
		logger:      logger.With(log.String("topic", conf.Name)),
		mu:          sync.RWMutex{},
	}

	go t.broadcast()
	return t
}

func (t *topic[T]) Name() string {
	return t.name
}

// Publish queues msg for broadcast, blocking while the publish buffer is full.
func (t *topic[T]) Publish(ctx context.Context, msg T) error {
	if t.closed.Load() {
		return ErrTopic{Topic: t.name, Action: ActionPublishing, Err: ErrTopicClosed}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.doneC:
		return ErrTopic{Topic: t.name, Action: ActionPublishing, Err: ErrTopicClosed}
	case t.publishC <- msg:
		return nil
	}
}

func (t *topic[T]) Subscribe(conf SubscriberConfig) (<-chan T, error) {
	if t.closed.Load() {
		return nil, ErrSubscribe{Topic: t.name, Consumer: conf.ConsumerGroup, Action: ActionCreatingSubscription, Err: ErrTopicClosed}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, exists := t.subscribers[conf.ConsumerGroup]; exists {
		if conf.ErrIfExists {
			return sub.ch, ErrSubscribe{Topic: t.name, Consumer: conf.ConsumerGroup, Action: ActionCreatingSubscription, Err: ErrConsumerAlreadyExists}
		}
		return sub.ch, nil
	}

	sub := newSubscriber[T](conf)
	t.subscribers[conf.ConsumerGroup] = sub
	return sub.ch, nil
}

// Unsubscribe removes the consumer group and closes its channel.
func (t *topic[T]) Unsubscribe(consumer string) error {
	t.mu.RLock()
	sub, exists := t.subscribers[consumer]
	t.mu.RUnlock()
	if !exists {
		return ErrSubscribe{Topic: t.name, Consumer: consumer, Action: ActionRemovingSubscription, Err: ErrConsumerNotFound}
	}

	// release any send blocked on this subscriber before waiting for the write lock.
	sub.stop()

	t.mu.Lock()
	if current, ok := t.subscribers[consumer]; ok && current == sub {
		delete(t.subscribers, consumer)
		sub.close()
	}
	t.mu.Unlock()
	return nil
}

func (t *topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

func (t *topic[T]) Close() error {
	if t.closed.Swap(true) {
		return ErrTopic{Topic: t.name, Action: ActionClosingTopic, Err: ErrTopicClosed}
	}

	close(t.doneC)

	// waits for an in-flight broadcast to finish before closing subscriber channels.
	t.mu.Lock()
	for name, sub := range t.subscribers {
		sub.close()
		delete(t.subscribers, name)
	}
	t.mu.Unlock()
	return nil
}

// broadcast delivers every published message to all subscribers, one message
// at a time so each subscriber sees messages in publish order.
func (t *topic[T]) broadcast() {
	for {
		select {
		case <-t.doneC:
			return
		case msg := <-t.publishC:
			var wg sync.WaitGroup
			// the read lock is held until every send finished so Unsubscribe
			// can never close a channel with a send in flight.
			t.mu.RLock()
			wg.Add(len(t.subscribers))
			for _, sub := range t.subscribers {
				go func(sub *subscriber[T]) {
					defer wg.Done()
					if err := sub.send(msg); err != nil {
						t.logger.Log(log.LevelDebug, "message not delivered", log.String("consumer", sub.consumerGroup), log.Error("error", err))
					}
				}(sub)
			}
			wg.Wait()
			t.mu.RUnlock()
		}
	}
}
