package notify

import (
	"context"

	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
)

// Listener is told about pull request transitions. Calls are synchronous and
// must not block for long; implementations that talk to remote systems own
// their own error handling.
type Listener interface {
	OnNewPullRequest(ctx context.Context, pr forge.PullRequest)
	OnNewIssue(ctx context.Context, pr forge.PullRequest, issueID string)
	OnRemovedIssue(ctx context.Context, pr forge.PullRequest, issueID string)
	OnIntegrated(ctx context.Context, pr forge.PullRequest, commit vcs.Hash)
}

// Listeners fans each notification out to every listener in order.
type Listeners []Listener

func (ls Listeners) NewPullRequest(ctx context.Context, pr forge.PullRequest) {
	for _, l := range ls {
		l.OnNewPullRequest(ctx, pr)
	}
}

func (ls Listeners) NewIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	for _, l := range ls {
		l.OnNewIssue(ctx, pr, issueID)
	}
}

func (ls Listeners) RemovedIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	for _, l := range ls {
		l.OnRemovedIssue(ctx, pr, issueID)
	}
}

func (ls Listeners) Integrated(ctx context.Context, pr forge.PullRequest, commit vcs.Hash) {
	for _, l := range ls {
		l.OnIntegrated(ctx, pr, commit)
	}
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	NewPullRequest func(ctx context.Context, pr forge.PullRequest)
	NewIssue       func(ctx context.Context, pr forge.PullRequest, issueID string)
	RemovedIssue   func(ctx context.Context, pr forge.PullRequest, issueID string)
	Integrated     func(ctx context.Context, pr forge.PullRequest, commit vcs.Hash)
}

func (f ListenerFuncs) OnNewPullRequest(ctx context.Context, pr forge.PullRequest) {
	if f.NewPullRequest != nil {
		f.NewPullRequest(ctx, pr)
	}
}

func (f ListenerFuncs) OnNewIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	if f.NewIssue != nil {
		f.NewIssue(ctx, pr, issueID)
	}
}

func (f ListenerFuncs) OnRemovedIssue(ctx context.Context, pr forge.PullRequest, issueID string) {
	if f.RemovedIssue != nil {
		f.RemovedIssue(ctx, pr, issueID)
	}
}

func (f ListenerFuncs) OnIntegrated(ctx context.Context, pr forge.PullRequest, commit vcs.Hash) {
	if f.Integrated != nil {
		f.Integrated(ctx, pr, commit)
	}
}
