package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// New builds a logger writing to stdout with a handler suited to env:
// text at debug level locally, JSON at debug level in dev and JSON at info
// level in prod. Unknown environments get the prod setup.
func New(env string) *SlogLogger {
	return NewSlogLogger(slog.New(handlerFor(env, os.Stdout)))
}

// NewDiscard returns a logger that drops everything.
func NewDiscard() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Slog exposes the underlying *slog.Logger for libraries that want one.
func (s *SlogLogger) Slog() *slog.Logger {
	return s.l
}

func handlerFor(env string, w io.Writer) slog.Handler {
	switch env {
	case EnvLocal:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	case EnvDev:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

// TokenPrefix shortens a secret token to something safe to log.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
