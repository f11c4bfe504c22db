package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewHandler creates a new default Handler with the provided options.
// The default handler writes logs to os.Stdout and os.Stderr, with a default
// message format of "{time} [{level}] {message}" and a time format of time.RFC3339.
func NewHandler(opts ...HandlerOption) Handler {
	h := &defaultHandler{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		outMu:    sync.Mutex{},
		errMu:    sync.Mutex{},
		msgfmt:   "{time} [{level}] {message}",
		timefmt:  time.RFC3339,
		disabled: false,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

type defaultHandler struct {
	stdout   io.Writer
	stderr   io.Writer
	outMu    sync.Mutex
	errMu    sync.Mutex
	disabled bool
	msgfmt   string
	timefmt  string
	// severityPrefix prepends "<N>" so journald (or docker's journald driver)
	// can pick up the syslog severity from the line itself.
	severityPrefix bool
}

func (h *defaultHandler) Handle(level Level, message string, fields []Field) {
	if h.disabled {
		return
	}

	fmtMsg := strings.Replace(h.msgfmt, "{time}", time.Now().Format(h.timefmt), 1)
	fmtMsg = strings.Replace(fmtMsg, "{level}", level.String(), 1)
	fmtMsg = strings.Replace(fmtMsg, "{message}", message, 1)

	var b strings.Builder
	if h.severityPrefix {
		b.WriteString("<" + strconv.Itoa(int(level)) + ">")
	}
	b.WriteString(fmtMsg)

	for _, field := range fields {
		b.WriteString(" " + field.Key + "=" + field.Value)
	}
	b.WriteString("\n")

	out := b.String()

	if level < LevelNotice {
		// warning(4) and more severe goes to stderr
		h.writeErr(out)
		return
	}
	h.writeOut(out)
}

func (h *defaultHandler) writeOut(out string) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	io.WriteString(h.stdout, out)
}

func (h *defaultHandler) writeErr(out string) {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	io.WriteString(h.stderr, out)
}
