// Package logging wraps log/slog with a sanitizing handler and a TTY-aware
// pretty formatter, injected into every component via constructor rather
// than a package-level singleton.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger wraps slog.Logger so call sites get With{Task,Session,Component}
// helpers without reaching for bare string keys everywhere.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
}

// Config selects the output format and destination.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // auto, pretty, text, json
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "auto", Output: os.Stdout}
}

// New builds a Logger per cfg. "auto" picks pretty output for a TTY and
// JSON otherwise, so piping agentkitd's stdout to a log collector never
// sees ANSI escapes.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	level := parseLevel(cfg.Level)
	sanitizer := NewSanitizer()

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	case "pretty":
		handler = NewPrettyHandler(cfg.Output, level)
	default:
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, level)
		} else {
			handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
		}
	}

	handler = NewSanitizingHandler(handler, sanitizer)
	return &Logger{Logger: slog.New(handler), sanitizer: sanitizer}
}

// Nop returns a logger that discards everything, for tests and components
// constructed without an explicit logger.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), sanitizer: NewSanitizer()}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (l *Logger) derive(next *slog.Logger) *Logger {
	return &Logger{Logger: next, sanitizer: l.sanitizer}
}

// WithTask scopes subsequent log lines to a task id.
func (l *Logger) WithTask(taskID string) *Logger { return l.derive(l.Logger.With("task_id", taskID)) }

// WithSession scopes subsequent log lines to a session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.derive(l.Logger.With("session_id", sessionID))
}

// WithComponent tags the originating component (router, worktree, process...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.Logger.With("component", name))
}

// With forwards to slog's With for ad-hoc attributes.
func (l *Logger) With(args ...any) *Logger { return l.derive(l.Logger.With(args...)) }

func (l *Logger) Sanitizer() *Sanitizer { return l.sanitizer }

func (l *Logger) Sanitize(s string) string { return l.sanitizer.Sanitize(s) }

// Or returns l if non-nil, otherwise a no-op logger — every component uses
// this at construction time so a nil *Logger is never dereferenced.
func Or(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}
