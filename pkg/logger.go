package sigproc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type Logger interface {
	Info(message string, module string)
	Warn(message string, module string)
	Error(string)
}

var logger Logger = nopLogger{}

func SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	logger = l
}

type nopLogger struct{}

func (nopLogger) Info(string, string) {}
func (nopLogger) Warn(string, string) {}
func (nopLogger) Error(string)        {}

// SlogLogger sends informational messages and errors to separate slog
// loggers, typically stdout text and stderr JSON.
type SlogLogger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func NewSlogLogger(info io.Writer, errs io.Writer) SlogLogger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return SlogLogger{
		InfoLog:  slog.New(NewHandler(info, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(errs, opts)),
	}
}

func (l SlogLogger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l SlogLogger) Warn(message string, module string) {
	l.InfoLog.Warn(message, "module", module)
	l.ErrorLog.Warn(message, "module", module)
}

func (l SlogLogger) Error(message string) {
	l.ErrorLog.Error(message)
}

// Handler writes one line per record: "[time] [LEVEL] [module] message".
// The level tag only appears from Warn up and attribute keys are dropped,
// so a record logged with "module", "arrays" prints as [arrays].
type Handler struct {
	level slog.Leveler
	tags  string
	mu    *sync.Mutex
	out   io.Writer
}

func NewHandler(o io.Writer, opts *slog.HandlerOptions) *Handler {
	h := &Handler{level: slog.LevelInfo, mu: &sync.Mutex{}, out: o}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// WithAttrs fixes tags printed before the record's own attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var sb strings.Builder
	sb.WriteString(h.tags)
	for _, a := range attrs {
		writeTag(&sb, a)
	}
	return &Handler{level: h.level, tags: sb.String(), mu: h.mu, out: h.out}
}

// WithGroup is a no-op: keys are never printed.
func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("[2006/01/02 15:04:05]"))
	if r.Level >= slog.LevelWarn {
		fmt.Fprintf(&sb, " [%s]", r.Level)
	}
	sb.WriteString(h.tags)
	r.Attrs(func(a slog.Attr) bool {
		writeTag(&sb, a)
		return true
	})
	sb.WriteString(" ")
	sb.WriteString(r.Message)
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func writeTag(sb *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(sb, " [%s]", a.Value.Resolve().String())
}
