package application

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
)

// EventListener turns listener callbacks into domain events and dispatches
// them. Handler failures are logged and never reach the reconciler.
type EventListener struct {
	dispatcher *events.EventDispatcher
	logger     *slog.Logger
}

// Compile-time check that EventListener implements notify.Listener.
var _ notify.Listener = (*EventListener)(nil)

// NewEventListener creates a listener that feeds dispatcher.
func NewEventListener(dispatcher *events.EventDispatcher, logger *slog.Logger) *EventListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventListener{dispatcher: dispatcher, logger: logger}
}

func (l *EventListener) OnNewPullRequest(ctx context.Context, pr forge.PullRequest) {
	l.dispatch(ctx, events.NewPullRequestOpened(pr))
}

func (l *EventListener) OnNewIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	l.dispatch(ctx, events.NewIssueLinked(pr, issueID))
}

func (l *EventListener) OnRemovedIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	l.dispatch(ctx, events.NewIssueUnlinked(pr, issueID))
}

func (l *EventListener) OnIntegrated(ctx context.Context, pr forge.PullRequest, commit vcs.Hash) {
	issues := notify.ParseIssues(pr.Body).Sorted()
	l.dispatch(ctx, events.NewPullRequestIntegrated(pr, commit.Hex(), issues))
}

func (l *EventListener) dispatch(ctx context.Context, event *events.BaseEvent) {
	if err := l.dispatcher.Dispatch(ctx, event); err != nil {
		l.logger.WarnContext(ctx, "event handler failed",
			"event_type", event.Type,
			"pull_request", event.AggregateID_,
			"error", err,
		)
	}
}
