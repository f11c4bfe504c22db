package intracom

// BufferPolicyHandler defines how a message is pushed onto a subscriber channel.
// Implementations must return ErrSubscriberStopped once stopC is closed.
type BufferPolicyHandler[T any] interface {
	Handle(ch chan T, message T, stopC <-chan struct{}) error
}

// BufferPolicyDropNone blocks until the message is sent or the subscriber stops.
type BufferPolicyDropNone[T any] struct{}

func (d BufferPolicyDropNone[T]) Handle(ch chan T, message T, stopC <-chan struct{}) error {
	select {
	case <-stopC:
		return ErrSubscriberStopped
	case ch <- message:
		return nil
	}
}

// BufferPolicyDropOldest pops the oldest buffered message when the channel is full.
type BufferPolicyDropOldest[T any] struct{}

func (d BufferPolicyDropOldest[T]) Handle(ch chan T, message T, stopC <-chan struct{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-stopC:
			return ErrSubscriberStopped
		case ch <- message:
			return nil
		default:
		}

		// full, drop one and try again.
		select {
		case <-ch:
		default:
		}
	}
	return ErrBufferFull
}

// BufferPolicyDropNewest discards message when the channel is full.
type BufferPolicyDropNewest[T any] struct{}

func (d BufferPolicyDropNewest[T]) Handle(ch chan T, message T, stopC <-chan struct{}) error {
	select {
	case <-stopC:
		return ErrSubscriberStopped
	case ch <- message:
		return nil
	default:
		return ErrBufferFull
	}
}
