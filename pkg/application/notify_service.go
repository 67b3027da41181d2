// Package application provides application services.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
)

// SnapshotStore is the persisted notification history.
// *storage.Store[notify.Snapshot] satisfies it.
type SnapshotStore interface {
	Current(ctx context.Context) ([]notify.Snapshot, error)
	Put(ctx context.Context, snapshots ...notify.Snapshot) error
}

// NotifyService reconciles live pull requests against the stored history
// and tells listeners what changed.
//
// Callers must not run two Reconcile calls for the same pull request ID at
// the same time. WorkItem exposes that constraint to schedulers.
type NotifyService struct {
	store     SnapshotStore
	extractor notify.Extractor
	listeners notify.Listeners
	logger    *slog.Logger
}

// NewNotifyService creates a service. A nil logger uses slog.Default().
func NewNotifyService(store SnapshotStore, extractor notify.Extractor, listeners notify.Listeners, logger *slog.Logger) *NotifyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyService{
		store:     store,
		extractor: extractor,
		listeners: listeners,
		logger:    logger,
	}
}

// Reconcile runs one pass for pr: load the history, diff it against the
// live snapshot, notify listeners and store the live snapshot.
//
// An error leaves the stored snapshot for pr unchanged, except for a legacy
// placeholder commit that was already upgraded.
func (s *NotifyService) Reconcile(ctx context.Context, pr forge.PullRequest) error {
	if err := pr.Validate(); err != nil {
		return err
	}

	history, err := s.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", pr.ID(), err)
	}

	fresh, err := s.extractor.Snapshot(pr)
	if err != nil {
		return err
	}

	stored, found := notify.FindSnapshot(history, fresh.ID)

	// A recorded commit is never cleared, even if the announcing comment
	// or label disappears later.
	if found && stored.Commit.IsKnown() && !fresh.Commit.IsKnown() {
		fresh = fresh.WithCommit(stored.Commit)
	}

	if found && stored.Equal(fresh) {
		s.logger.DebugContext(ctx, "pull request unchanged", "pull_request", fresh.ID)
		return nil
	}

	if found && stored.Commit.IsPlaceholder() {
		stored = stored.WithCommit(fresh.Commit)
		if err := s.store.Put(ctx, stored); err != nil {
			return fmt.Errorf("upgrade legacy entry for %s: %w", fresh.ID, err)
		}
		s.logger.InfoContext(ctx, "upgraded legacy history entry",
			"pull_request", fresh.ID,
			"commit", stored.Commit.String(),
		)
	}

	lifecycle, err := notify.NewLifecycle(notify.InitialState(stored, found), fresh.ID)
	if err != nil {
		return err
	}

	if lifecycle.Observe() {
		s.listeners.NewPullRequest(ctx, pr)
		for _, id := range fresh.Issues.Sorted() {
			s.listeners.NewIssue(ctx, pr, id)
		}
	} else {
		for _, id := range stored.Issues.Minus(fresh.Issues) {
			s.listeners.RemovedIssue(ctx, pr, id)
		}
		for _, id := range fresh.Issues.Minus(stored.Issues) {
			s.listeners.NewIssue(ctx, pr, id)
		}
	}

	if hash, ok := fresh.Commit.Hash(); ok && lifecycle.Integrate() {
		s.listeners.Integrated(ctx, pr, hash)
	}

	if err := s.store.Put(ctx, fresh); err != nil {
		return fmt.Errorf("store snapshot for %s: %w", fresh.ID, err)
	}

	s.logger.DebugContext(ctx, "pull request reconciled",
		"pull_request", fresh.ID,
		"state", lifecycle.Current(),
		"issues", fresh.Issues.Len(),
	)
	return nil
}
