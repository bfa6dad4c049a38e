package event

import (
	"context"
	"log/slog"

	"github.com/overlaydao/overlay-users/internal/contract"
)

// Event describes one successful mutating entry point, in invocation order.
type Event struct {
	Name     string
	Actor    contract.AccountAddress
	Target   contract.AccountAddress
	Sequence uint64
}

// Sink receives contract events emitted by the dispatcher.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// LoggerSink writes events to the structured logger, standing in for the
// host runtime's event log.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a logging event sink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Emit writes the event to the structured logger.
func (s *LoggerSink) Emit(_ context.Context, ev Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("event", ev.Name),
		slog.String("actor", ev.Actor.String()),
		slog.Uint64("sequence", ev.Sequence),
	}
	if !ev.Target.IsZero() {
		attrs = append(attrs, slog.String("target", ev.Target.String()))
	}
	s.logger.Info("contract event", attrs...)
	return nil
}
