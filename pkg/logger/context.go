package logger

import (
	"context"
	"log/slog"
)

type attemptKey struct{}

// WithAttempt stores a sign-in attempt id in ctx. Loggers built with
// WithAttemptExtractor add it to every record logged with that context.
func WithAttempt(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptKey{}, id)
}

// AttemptFromContext returns the attempt id stored by WithAttempt.
func AttemptFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(attemptKey{}).(string)
	return id, ok && id != ""
}

func attemptExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := AttemptFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return AttemptID(id), true
}

// WithAttemptExtractor injects the attempt id from context into log records.
func WithAttemptExtractor() Option {
	return WithContextExtractors(attemptExtractor)
}
