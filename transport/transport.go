// Package transport defines the publish/subscribe contract stationlink consumes.
//
// Adapters live in sub packages (mqtt, amqp, kafka, loopback). An adapter only
// moves opaque payload bytes between topics; wire framing, TLS and reconnects
// are its own business.
package transport

import "context"

// Handler receives every message delivered on a subscribed topic.
// Adapters may call HandleMessage from their own network goroutines.
type Handler interface {
	HandleMessage(topic string, payload []byte)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(topic string, payload []byte)

func (f HandlerFunc) HandleMessage(topic string, payload []byte) {
	f(topic, payload)
}

// Transport is a connection to a publish/subscribe broker.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	// SetHandler sets the receiver of inbound messages, it must be called before Connect.
	SetHandler(h Handler)
}

// Error is a constant error type shared by the adapters.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = Error("transport is not connected")
	// ErrClosed is returned once a transport has been disconnected for good.
	ErrClosed = Error("transport is closed")
)

// Action names the operation that failed.
type Action string

const (
	ActionConnect     = Action("connecting")
	ActionDisconnect  = Action("disconnecting")
	ActionSubscribe   = Action("subscribing")
	ActionUnsubscribe = Action("unsubscribing")
	ActionPublish     = Action("publishing")
)

// OpError wraps an adapter failure with the action and topic involved.
type OpError struct {
	Transport string
	Action    Action
	Topic     string
	Err       error
}

func (e OpError) Error() string {
	msg := e.Transport + ": error " + string(e.Action)
	if e.Topic != "" {
		msg += " '" + e.Topic + "'"
	}
	return msg + " reason: " + e.Err.Error()
}

func (e OpError) Unwrap() error {
	return e.Err
}
