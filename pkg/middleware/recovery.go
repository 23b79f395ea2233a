package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/plaenen/eventstore/pkg/aggregate"
)

// Recovery recovers from panics in Handle, turning them into an error
// instead of taking down whatever goroutine was driving command handling.
func Recovery[C aggregate.Command, E aggregate.DomainEvent](logger *slog.Logger) Middleware[C, E] {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Handler[C, E]) Handler[C, E] {
		return HandlerFunc[C, E](func(ctx context.Context, cmd C) (events []E, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "command handler panicked",
						slog.String("command_type", cmd.Name()),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)
					err = fmt.Errorf("command handler panicked: %v", r)
					events = nil
				}
			}()

			return next.Handle(ctx, cmd)
		})
	}
}
