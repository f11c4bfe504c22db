package stationlink

// Error is a constant error type for the stationlink package.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrDispatcherRunning is returned when Run is called twice.
	ErrDispatcherRunning = Error("dispatcher is already running")
	// ErrDispatcherClosed is returned once the dispatcher stopped accepting work.
	ErrDispatcherClosed = Error("dispatcher is closed")
	// ErrMalformedResponse is returned for response payloads without a key or correlation id.
	ErrMalformedResponse = Error("response has neither key nor correlation_id")
	// ErrMalformedBroadcast is returned for broadcast payloads without entries.
	ErrMalformedBroadcast = Error("broadcast has no entries field")
	// ErrNoMembers is returned by a Switcher created without anything to switch.
	ErrNoMembers = Error("switcher has no members")
	// ErrListenerClosed is returned by a closed BroadcastListener.
	ErrListenerClosed = Error("broadcast listener is closed")
	// ErrClientClosed is returned when switching a closed client.
	ErrClientClosed = Error("client is closed")
	// ErrReservedField is returned when request fields shadow an envelope key.
	ErrReservedField = Error("field name is reserved by the envelope")
)

// Action is the operation that failed.
type Action string

const (
	ActionRouting   = Action("routing")
	ActionUnrouting = Action("unrouting")
	ActionSwitching = Action("switching")
	ActionPersist   = Action("persisting identifier")
	ActionConnect   = Action("connecting")
	ActionEncoding  = Action("encoding field")
)

// OpError wraps a failure with the action and the topic or identifier involved.
type OpError struct {
	Action Action
	Target string
	Err    error
}

func (e OpError) Error() string {
	msg := "error " + string(e.Action)
	if e.Target != "" {
		msg += " '" + e.Target + "'"
	}
	return msg + " reason: " + e.Err.Error()
}

func (e OpError) Unwrap() error {
	return e.Err
}
