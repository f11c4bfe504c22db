// Package log provides the leveled, structured logging used across stationlink.
// Messages carry a Level (syslog severities) and a set of key/value Fields.
// Components accept a Logger and default to a no-op logger when none is given,
// so the library stays silent unless the host wires one in.
package log

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Handler is an interface that defines the behavior for handling log messages.
type Handler interface {
	Handle(level Level, message string, fields []Field)
}

// Logger is an interface that defines the behavior for logging messages.
type Logger interface {
	Log(level Level, message string, fields ...Field)
	With(fields ...Field) Logger
	SetLevel(level Level)
}

const (
	// LevelEmergency (0) the system is unusable.
	LevelEmergency Level = iota
	// LevelAlert (1) immediate attention is required, e.g. loss of broker connectivity
	// that will not recover on its own.
	LevelAlert
	// LevelCritical (2) a failure severe enough to stop the client.
	LevelCritical
	// LevelError (3) an operation failed, e.g. a publish or subscribe was rejected by the transport.
	LevelError
	// LevelWarning (4) something unexpected happened that the client recovered from,
	// e.g. a malformed response payload or a superseded pending request.
	LevelWarning
	// LevelNotice (5) significant but normal events, e.g. a station switch.
	LevelNotice
	// LevelInfo (6) general operational information, e.g. a request resolved by its fallback.
	LevelInfo
	// LevelDebug (7) internal state useful while debugging, e.g. late or unmatched responses.
	LevelDebug
)

// Level represents the severity of a log message.
type Level uint8

func (l Level) String() string {
	switch l {
	case LevelEmergency:
		return "EMERGENCY"
	case LevelAlert:
		return "ALERT"
	case LevelCritical:
		return "CRITICAL"
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelNotice:
		return "NOTICE"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// LevelFromString converts a string representation of a log level to a Level.
// Matching is case-insensitive, "warn" is accepted as an alias of "warning"
// and LevelInfo is returned for anything unknown.
func LevelFromString(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "EMERGENCY":
		return LevelEmergency
	case "ALERT":
		return LevelAlert
	case "CRITICAL":
		return LevelCritical
	case "ERROR":
		return LevelError
	case "WARNING", "WARN":
		return LevelWarning
	case "NOTICE":
		return LevelNotice
	case "INFO":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value string
}

// Any creates a Field with a key and a value of any type formatted with %v.
func Any(key string, value any) Field {
	return Field{Key: key, Value: fmt.Sprintf("%v", value)}
}

// Error creates a Field holding the message of err.
// A nil error is logged as "<nil>".
func Error(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: "<nil>"}
	}
	return Field{Key: key, Value: err.Error()}
}

// Int creates a Field with a key and an integer value of any width.
func Int(key string, value any) Field {
	switch t := value.(type) {
	case int:
		return Field{Key: key, Value: strconv.Itoa(t)}
	case uint:
		return Field{Key: key, Value: strconv.FormatUint(uint64(t), 10)}
	case int8:
		return Field{Key: key, Value: strconv.Itoa(int(t))}
	case uint8:
		return Field{Key: key, Value: strconv.FormatUint(uint64(t), 10)}
	case int16:
		return Field{Key: key, Value: strconv.Itoa(int(t))}
	case uint16:
		return Field{Key: key, Value: strconv.FormatUint(uint64(t), 10)}
	case int32:
		return Field{Key: key, Value: strconv.Itoa(int(t))}
	case uint32:
		return Field{Key: key, Value: strconv.FormatUint(uint64(t), 10)}
	case int64:
		return Field{Key: key, Value: strconv.FormatInt(t, 10)}
	case uint64:
		return Field{Key: key, Value: strconv.FormatUint(t, 10)}
	default:
		return Field{Key: key, Value: "<unknown value type for int field>"}
	}
}

// String creates a Field with a key and a string value.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Strings creates a Field joining the values with a comma.
func Strings(key string, values []string) Field {
	return Field{Key: key, Value: strings.Join(values, ",")}
}

// Bool creates a Field with a key and a boolean value.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: strconv.FormatBool(value)}
}

// Float creates a Field with a key and a float32 or float64 value.
func Float(key string, value any) Field {
	switch t := value.(type) {
	case float32:
		return Field{Key: key, Value: strconv.FormatFloat(float64(t), 'f', -1, 32)}
	case float64:
		return Field{Key: key, Value: strconv.FormatFloat(t, 'f', -1, 64)}
	default:
		return Field{Key: key, Value: "<unknown value type for float field>"}
	}
}

// Duration creates a Field with a key and a time.Duration value.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}
