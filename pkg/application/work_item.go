package application

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
)

// ErrorHandler receives the error of a pass that failed for good.
type ErrorHandler func(item *WorkItem, err error)

// WorkItem is one reconciliation pass for one pull request, in the shape
// schedulers expect.
type WorkItem struct {
	pr      forge.PullRequest
	service *NotifyService
	onError ErrorHandler
}

// NewWorkItem creates a pass for pr. A nil onError logs the failure.
func NewWorkItem(service *NotifyService, pr forge.PullRequest, onError ErrorHandler) *WorkItem {
	return &WorkItem{pr: pr, service: service, onError: onError}
}

// PullRequest returns the pull request the pass reconciles.
func (w *WorkItem) PullRequest() forge.PullRequest { return w.pr }

// Key identifies the pull request. Items with equal keys must not run
// concurrently.
func (w *WorkItem) Key() string { return w.pr.ID() }

// ConcurrentWith reports whether w may run alongside other. Only passes for
// the same repository and number conflict.
func (w *WorkItem) ConcurrentWith(other *WorkItem) bool {
	if other == nil {
		return true
	}
	return w.pr.Repository != other.pr.Repository || w.pr.Number != other.pr.Number
}

// Run executes the pass.
func (w *WorkItem) Run(ctx context.Context) error {
	return w.service.Reconcile(ctx, w.pr)
}

// HandleError passes a final failure to the configured handler.
func (w *WorkItem) HandleError(err error) {
	if w.onError != nil {
		w.onError(w, err)
		return
	}
	w.service.logger.Error("reconciliation failed",
		"pull_request", w.pr.ID(),
		"error", err,
	)
}

func (w *WorkItem) String() string {
	return "Notify.PR@" + w.pr.ID()
}

// LogErrors returns an ErrorHandler that logs to logger.
func LogErrors(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(item *WorkItem, err error) {
		logger.Error("reconciliation failed", "work_item", item.String(), "error", err)
	}
}
