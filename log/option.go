package log

import (
	"io"
)

// HandlerOption is a functional option type for configuring a Handler.
type HandlerOption func(*defaultHandler)

// WithWriters sets the stdout and stderr writers.
// A nil writer keeps the current one.
func WithWriters(stdout, stderr io.Writer) HandlerOption {
	return func(h *defaultHandler) {
		if stdout != nil {
			h.stdout = stdout
		}
		if stderr != nil {
			h.stderr = stderr
		}
	}
}

// WithMessageFormat allows customization of the message format for the log message.
// The placeholders {time}, {level} and {message} are replaced once each.
func WithMessageFormat(format string) HandlerOption {
	return func(h *defaultHandler) {
		h.msgfmt = format
	}
}

// WithTimeFormat allows customization of the time format for the log message.
func WithTimeFormat(format string) HandlerOption {
	return func(h *defaultHandler) {
		h.timefmt = format
	}
}

// WithSeverityPrefix prefixes every line with the numeric syslog severity, e.g. "<6>".
func WithSeverityPrefix(enabled bool) HandlerOption {
	return func(h *defaultHandler) {
		h.severityPrefix = enabled
	}
}

// WithEnabled sets the handler to be enabled or disabled.
func WithEnabled(enabled bool) HandlerOption {
	return func(h *defaultHandler) {
		h.disabled = !enabled
	}
}
