// Package logger provides the slog setup shared by the billing services
// plus a set of attribute helpers so log fields stay consistently named
// across event handlers, reconciliation jobs and HTTP surfaces.
//
// Create a logger once in the composition root and pass it down:
//
//	log := logger.New(
//		logger.WithFormat(logger.FormatJSON),
//		logger.WithLevel(slog.LevelInfo),
//		logger.WithService("billing"),
//	)
//	log.Info("webhook received", logger.EventType("charge.refunded"), logger.EventID(id))
package logger
