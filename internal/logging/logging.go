// Package logging builds the process logger: the log/slog API on top of a
// charmbracelet/log handler writing human-readable lines to stderr.
package logging

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// TimeFormat is the timestamp layout used for every log line.
const TimeFormat = "15:04:05"

// New returns a slog.Logger that writes to w at the given minimum level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		Level:           log.Level(level),
	})
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
