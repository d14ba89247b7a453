// Package logger builds the structured loggers used across the
// connection subsystem.
//
// It extends log/slog with context extraction: attributes such as the
// server key or the running task id travel in the context, and the
// handler decorator injects them into every log record automatically,
// so pool, transaction, and retry code never threads identifiers by
// hand.
//
//	log := logger.New(logger.ServerKeyExtractor, logger.TaskIDExtractor)
//
//	ctx := logger.WithServerKey(ctx, "madrid")
//	log.InfoContext(ctx, "pool renewed")
//	// {"level":"INFO","msg":"pool renewed","server_key":"madrid"}
//
// NewNope returns a discard logger for components where logging is not
// configured.
package logger
