package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
	"go.uber.org/fx"
)

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the handler used by the server logger; records are also kept in buffer when non-nil.
func NewHandler(w io.Writer, cfg *config.ServerConfig, buffer *RingBuffer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if buffer != nil {
		handler = newBufferingHandler(handler, buffer, opts)
	}
	return handler
}

// NewLogBuffer sizes the in-memory log buffer from configuration.
func NewLogBuffer(cfg *config.ServerConfig) *RingBuffer {
	return NewRingBuffer(cfg.LogBufferSize)
}

// NewSlogLogger logs to stderr; stdout is reserved for the stdio MCP transport.
func NewSlogLogger(cfg *config.ServerConfig, buffer *RingBuffer) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, cfg, buffer))
}

var Module = fx.Module("logger",
	fx.Provide(NewLogBuffer),
	fx.Provide(NewSlogLogger),
)
