package stationlink

import "time"

// Resolution says how a pending request ended.
type Resolution uint8

const (
	ResolvedByResponse Resolution = iota + 1
	ResolvedByTimeout
	ResolvedUnavailable
	ResolvedThrottled
	ResolvedBySupersede
	ResolvedBySwitch
	ResolvedByClose
)

func (r Resolution) String() string {
	switch r {
	case ResolvedByResponse:
		return "response"
	case ResolvedByTimeout:
		return "timeout"
	case ResolvedUnavailable:
		return "unavailable"
	case ResolvedThrottled:
		return "throttled"
	case ResolvedBySupersede:
		return "superseded"
	case ResolvedBySwitch:
		return "switch"
	case ResolvedByClose:
		return "close"
	default:
		return "unknown"
	}
}

// Result is handed to a request's callback exactly once.
type Result struct {
	Key string
	// Success mirrors the backend's success flag, or the fallback's.
	Success bool
	// Value is the answer itself, e.g. whether a username is unique.
	Value      bool
	Resolution Resolution
	// Elapsed is the time between issuing the request and its resolution.
	Elapsed time.Duration
}

// Fallback reports whether the result was produced without a backend answer.
func (r Result) Fallback() bool {
	return r.Resolution != ResolvedByResponse
}

// FallbackPolicy produces the result used when no response is available for key.
type FallbackPolicy func(key string) Result

// AssumeSuccess treats a missing answer as a positive one, the installation's
// availability over correctness default.
func AssumeSuccess(key string) Result {
	return Result{Key: key, Success: true, Value: true}
}

// AssumeFailure treats a missing answer as a negative one.
func AssumeFailure(key string) Result {
	return Result{Key: key, Success: false, Value: false}
}

// Fallback returns a policy that always answers with success and value.
func Fallback(success, value bool) FallbackPolicy {
	return func(key string) Result {
		return Result{Key: key, Success: success, Value: value}
	}
}

// Request is one outbound request.
type Request struct {
	// Action selects the request and response topics, e.g. "check_username".
	Action string
	// Key correlates the response, e.g. the username being checked.
	Key string
	// Fields are the action specific payload fields, sent next to key and
	// station. The names key, station and correlation_id are reserved; a
	// request using one resolves ResolvedUnavailable without being published.
	Fields map[string]any
	// Fallback resolves the request when no response is available.
	// The client's default policy is used when nil.
	Fallback FallbackPolicy
	// Timeout overrides the client's timeout when positive.
	Timeout time.Duration
}
