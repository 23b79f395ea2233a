package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/plaenen/eventstore/pkg/aggregate"
)

// Logging logs command execution with timing information using slog,
// keyed off the command's own Name() rather than a separately-tracked
// command-type string.
func Logging[C aggregate.Command, E aggregate.DomainEvent](logger *slog.Logger) Middleware[C, E] {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Handler[C, E]) Handler[C, E] {
		return HandlerFunc[C, E](func(ctx context.Context, cmd C) ([]E, error) {
			start := time.Now()
			commandType := cmd.Name()

			logger.InfoContext(ctx, "handling command", slog.String("command_type", commandType))

			events, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "command handling failed",
					slog.String("command_type", commandType),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "command handled",
				slog.String("command_type", commandType),
				slog.Int("events_count", len(events)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
			return events, nil
		})
	}
}
