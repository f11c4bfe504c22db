package intracom

import (
	"sync"
)

type subscriber[T any] struct {
	consumerGroup string
	policy        BufferPolicyHandler[T]
	ch            chan T
	stopC         chan struct{}
	stopOnce      sync.Once
	closeOnce     sync.Once
}

func newSubscriber[T any](conf SubscriberConfig) *subscriber[T] {
	var policy BufferPolicyHandler[T]
	switch conf.BufferPolicy {
	case DropOldest:
		policy = BufferPolicyDropOldest[T]{}
	case DropNewest:
		policy = BufferPolicyDropNewest[T]{}
	default:
		policy = BufferPolicyDropNone[T]{}
	}

	return &subscriber[T]{
		consumerGroup: conf.ConsumerGroup,
		policy:        policy,
		ch:            make(chan T, conf.BufferSize),
		stopC:         make(chan struct{}),
	}
}

// send pushes message to the subscriber channel following its buffer policy.
func (s *subscriber[T]) send(message T) error {
	return s.policy.Handle(s.ch, message, s.stopC)
}

// stop releases any send blocked on this subscriber.
func (s *subscriber[T]) stop() {
	s.stopOnce.Do(func() { close(s.stopC) })
}

// close must only be called while no send is in flight.
func (s *subscriber[T]) close() {
	s.stop()
	s.closeOnce.Do(func() { close(s.ch) })
}
