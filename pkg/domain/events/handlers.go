package events

import (
	"context"
	"log/slog"
)

// LoggingHandler is a catch-all handler that logs all events.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a new LoggingHandler.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger}
}

// Handle logs the event details.
func (h *LoggingHandler) Handle(ctx context.Context, event DomainEvent) error {
	attrs := []any{
		"event_type", event.EventType(),
		"pull_request", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	}
	if base, ok := AsBaseEvent(event); ok {
		if issue := base.MetaString(MetaIssue); issue != "" {
			attrs = append(attrs, "issue", issue)
		}
		if commit := base.MetaString(MetaCommit); commit != "" {
			attrs = append(attrs, "commit", commit)
		}
	}
	h.logger.InfoContext(ctx, "pull request event", attrs...)
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *LoggingHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:       "LoggingHandler",
		Handler:    h.Handle,
		EventTypes: []string{Wildcard},
	}
}

// RecordingHandler appends every event to an EventStore.
type RecordingHandler struct {
	store EventStore
}

// NewRecordingHandler creates a handler that persists events to store.
func NewRecordingHandler(store EventStore) *RecordingHandler {
	return &RecordingHandler{store: store}
}

// Handle appends the event.
func (h *RecordingHandler) Handle(ctx context.Context, event DomainEvent) error {
	base, ok := AsBaseEvent(event)
	if !ok {
		return nil
	}
	return h.store.Append(base)
}

// Registration returns the HandlerRegistration for this handler.
func (h *RecordingHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:       "RecordingHandler",
		Handler:    h.Handle,
		EventTypes: []string{Wildcard},
	}
}

// AsBaseEvent returns the BaseEvent behind event, if there is one.
func AsBaseEvent(event DomainEvent) (*BaseEvent, bool) {
	switch e := event.(type) {
	case *BaseEvent:
		return e, true
	case BaseEvent:
		return &e, true
	default:
		return nil, false
	}
}
