package log

import (
	"sync"
)

type logger struct {
	handler Handler
	fields  []Field
	level   *Level
	mu      *sync.RWMutex
}

// NewLogger returns a Logger writing everything at or above level to handler.
func NewLogger(level Level, handler Handler) Logger {
	var lvl Level = level
	return &logger{
		handler: handler,
		fields:  []Field{},
		// all child loggers share the same level so SetLevel on any of them applies to all.
		level: &lvl,
		mu:    &sync.RWMutex{},
	}
}

func (l *logger) Log(level Level, message string, fields ...Field) {
	l.mu.RLock()
	ignore := *l.level < level
	l.mu.RUnlock()
	if ignore {
		return
	}

	if len(l.fields) == 0 {
		l.handler.Handle(level, message, fields)
		return
	}

	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	l.handler.Handle(level, message, all)
}

func (l *logger) With(fields ...Field) Logger {
	// copy so siblings created from the same parent never share a backing array.
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)

	return &logger{
		level:   l.level,
		fields:  merged,
		handler: l.handler,
		mu:      l.mu,
	}
}

func (l *logger) SetLevel(level Level) {
	l.mu.Lock()
	*l.level = level
	l.mu.Unlock()
}

// Noop returns a Logger that discards everything.
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Log(_ Level, _ string, _ ...Field) {}

func (noopLogger) SetLevel(_ Level) {}

func (l noopLogger) With(_ ...Field) Logger {
	return l
}
