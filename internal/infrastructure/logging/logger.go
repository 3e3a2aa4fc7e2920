package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/draymont/passage-core/internal/infrastructure/config"
)

// Logger wraps *slog.Logger so every entry carries the service and
// version attrs. Embedding keeps the whole slog surface available.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the config section: JSON or text format,
// level filter, and an output of stdout, stderr, or a file path. A file
// that cannot be opened falls back to stdout rather than failing
// startup.
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(openOutput(cfg.Output), opts)
	} else {
		handler = slog.NewJSONHandler(openOutput(cfg.Output), opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "passage"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying extra default attributes.
//
//	ingestLog := log.With("component", "ingest")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a stdout JSON logger at info level, for use before
// configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func openOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return os.Stdout
	}
	return f
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
