package simplemedia

import (
	"context"
	"log/slog"
)

// NoopEventSink discards events
type NoopEventSink struct{}

func (NoopEventSink) Publish(ctx context.Context, event Event) error { return nil }

// LogEventSink writes events to a logger
type LogEventSink struct {
	Logger *slog.Logger
}

// NewLogEventSink creates an event sink that logs at info level
func NewLogEventSink(logger *slog.Logger) *LogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{Logger: logger}
}

func (s *LogEventSink) Publish(ctx context.Context, event Event) error {
	s.Logger.InfoContext(ctx, "Content event",
		"type", event.Type,
		"content_id", event.ContentID,
		"owner_id", event.OwnerID,
		"content_type", event.ContentType,
	)
	return nil
}

// LogOrphanRecorder only logs orphans. Use a ledger from the reconcile
// package when orphans should be collected automatically.
type LogOrphanRecorder struct {
	Logger *slog.Logger
}

// NewLogOrphanRecorder creates an orphan recorder that logs at warn level
func NewLogOrphanRecorder(logger *slog.Logger) *LogOrphanRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOrphanRecorder{Logger: logger}
}

func (r *LogOrphanRecorder) RecordOrphan(ctx context.Context, orphan Orphan) error {
	r.Logger.WarnContext(ctx, "Orphaned object",
		"key", orphan.Key,
		"content_id", orphan.ContentID,
		"reason", orphan.Reason,
		"error", orphan.Error,
	)
	return nil
}
