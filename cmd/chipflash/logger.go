package main

import "log/slog"

// slogLogger adapts log/slog to flasher.Logger. No third-party logging
// library appears anywhere in this repository's dependency corpus, so the
// CLI's default Logger is the stdlib's structured logger rather than a
// hand-rolled println wrapper.
type slogLogger struct {
	l *slog.Logger
}

func newSlogLogger() *slogLogger {
	return &slogLogger{l: slog.Default()}
}

func (s *slogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
func (s *slogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s *slogLogger) Warn(msg string, kv ...interface{})  { s.l.Warn(msg, kv...) }
func (s *slogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }
