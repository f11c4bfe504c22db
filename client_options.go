package stationlink

import (
	"time"

	"github.com/ambitiousfew/stationlink/log"
	"golang.org/x/time/rate"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets how long requests wait for a response, DefaultTimeout otherwise.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the clock driving request timeouts.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDefaultFallback sets the policy for requests without their own Fallback.
// AssumeSuccess is used otherwise.
func WithDefaultFallback(fallback FallbackPolicy) ClientOption {
	return func(c *Client) {
		if fallback != nil {
			c.fallback = fallback
		}
	}
}

// WithCorrelationIDs embeds a generated correlation_id in every request and
// matches responses by it. Responses without one still match by key, oldest
// request first.
func WithCorrelationIDs() ClientOption {
	return func(c *Client) {
		c.correlate = true
	}
}

// WithPublishLimit caps the request rate. Requests over the limit are not
// published and resolve with their fallback.
func WithPublishLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithActions routes the response topics of actions up front instead of on
// the first request.
func WithActions(actions ...string) ClientOption {
	return func(c *Client) {
		c.actions = append(c.actions, actions...)
	}
}
