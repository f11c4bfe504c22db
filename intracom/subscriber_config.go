package intracom

// BufferPolicy decides what a subscriber does when its buffer is full.
type BufferPolicy int

const (
	// DropNone blocks the broadcaster until the subscriber has room.
	DropNone BufferPolicy = iota
	// DropOldest discards the oldest buffered message to make room.
	DropOldest
	// DropNewest discards the message being delivered.
	DropNewest
)

// SubscriberConfig configures a consumer group on a topic.
type SubscriberConfig struct {
	ConsumerGroup string
	ErrIfExists   bool
	BufferSize    int
	BufferPolicy  BufferPolicy
}
