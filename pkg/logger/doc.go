// Package logger builds *slog.Logger values through functional options and
// keeps attribute keys consistent across the module.
//
// New picks a text or JSON handler, applies static attributes, and wraps the
// result in a ContextHandler, which runs ContextExtractor callbacks on each
// record. The sign-in flow stores its attempt id with WithAttempt so that
// every line logged during an attempt can be correlated:
//
//	log := logger.New(
//	    logger.WithVerbosity(1),
//	    logger.WithAttemptExtractor(),
//	)
//	ctx = logger.WithAttempt(ctx, attemptID)
//	log.InfoContext(ctx, "awaiting redirect", logger.Port(port))
//
// Attribute helpers such as Error, SessionID and Scopes return an empty Attr
// for zero inputs where that makes sense, so callers can pass them without a
// nil check:
//
//	log.Warn("write failed", logger.Error(err))
//
// Components that accept an optional logger default to Discard.
package logger
