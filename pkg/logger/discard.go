package logger

import (
	"io"
	"log/slog"
)

// Discard returns a logger that drops every record. Components use it when
// the caller does not supply one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
