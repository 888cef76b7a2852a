// Package logging provides structured logging setup for the tutoring core.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Setup installs the process-wide default slog logger.
// Dev and demo modes use a human-readable text handler at debug level;
// prod uses a JSON handler at info level.
func Setup(mode string) *slog.Logger {
	var handler slog.Handler
	if mode == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithSession returns a logger scoped to one tutoring session.
func WithSession(logger *slog.Logger, sessionID, userID, module string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.String("module", module),
	)
}

type loggerKey struct{}

// ToContext attaches a logger to the context.
func ToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context, falling back to the default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
