// Package sink delivers fire-and-forget pipeline notifications to external
// collaborators. Sink failures are logged and discarded; they never propagate
// into a submission's result.
package sink

import (
	"context"
	"log/slog"
)

// Sink is the best-effort notification target. Implementations must not block
// the caller and must swallow their own failures.
type Sink interface {
	Notify(ctx context.Context, event string, payload any)
	NotifyError(ctx context.Context, err error, errContext string)
}

// LogSink records notifications on the structured log and nothing else.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a sink writing to the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify logs the event.
func (s *LogSink) Notify(_ context.Context, event string, payload any) {
	s.logger.Info("pipeline event", slog.String("event", event), slog.Any("payload", payload))
}

// NotifyError logs the captured failure.
func (s *LogSink) NotifyError(_ context.Context, err error, errContext string) {
	s.logger.Error("pipeline error event", slog.String("context", errContext), slog.Any("error", err))
}

// Multi fans a notification out to several sinks.
type Multi []Sink

// Notify forwards to every sink.
func (m Multi) Notify(ctx context.Context, event string, payload any) {
	for _, s := range m {
		s.Notify(ctx, event, payload)
	}
}

// NotifyError forwards to every sink.
func (m Multi) NotifyError(ctx context.Context, err error, errContext string) {
	for _, s := range m {
		s.NotifyError(ctx, err, errContext)
	}
}
