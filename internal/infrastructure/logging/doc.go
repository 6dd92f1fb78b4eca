// Package logging configures the slog-based structured logger shared by
// every BenchLink component.
//
// New builds a logger from the logging section of the configuration file
// (level, format, output) and stamps service and version attributes on
// every record:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//
// Components derive scoped children rather than creating their own
// loggers, so an instrument manager logs as:
//
//	readerLog := logger.With("instrument", "reader")
//
// JSON format is intended for deployments, text for local development.
package logging
