package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// serviceName is attached to every record so aggregated logs from several
// bench services stay separable.
const serviceName = "benchlink"

// levelNames maps configuration strings onto slog levels. Unknown values
// fall back to info.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger wraps slog.Logger with the service's default fields.
//
// Thread Safety: all methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the configuration.
//
// Format selects JSON (production) or text (development) records, output
// selects stdout or stderr, and every record carries service and version
// fields.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for the default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg.Format, destination(cfg.Output), parseLevel(cfg.Level))

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// destination picks the output writer. Anything other than "stderr" writes
// to stdout.
func destination(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// newHandler builds the slog handler for the requested format. Anything
// other than "text" produces JSON.
func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a configuration string to a slog.Level, defaulting
// to info for unrecognised values.
func parseLevel(level string) slog.Level {
	if l, ok := levelNames[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a new Logger carrying additional default attributes.
//
// Example:
//
//	readerLog := logger.With("instrument", "reader")
//	readerLog.Info("connected") // includes instrument=reader
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level for use during early startup,
// before the configuration file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
