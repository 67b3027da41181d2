// Package notify derives the notification-relevant state of a pull request
// and defines the listener contract fired when that state changes.
package notify

import (
	"sort"

	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
)

// CommitState tags the three possible values of a snapshot's resulting commit.
type CommitState int

const (
	// CommitUnknown means the pull request has not been integrated yet.
	CommitUnknown CommitState = iota
	// CommitPlaceholder marks a history record written before commits were
	// tracked. It is upgraded from live data on the next pass.
	CommitPlaceholder
	// CommitKnown carries the real integration hash.
	CommitKnown
)

func (s CommitState) String() string {
	switch s {
	case CommitUnknown:
		return "unknown"
	case CommitPlaceholder:
		return "placeholder"
	case CommitKnown:
		return "known"
	default:
		return "invalid"
	}
}

// Commit is the resulting integration commit of a pull request.
// Values are comparable with ==.
type Commit struct {
	state CommitState
	hash  vcs.Hash
}

// UnknownCommit is the commit of a pull request that is not integrated.
func UnknownCommit() Commit { return Commit{state: CommitUnknown} }

// PlaceholderCommit is the legacy "never recorded" marker.
func PlaceholderCommit() Commit { return Commit{state: CommitPlaceholder, hash: vcs.ZeroHash()} }

// KnownCommit wraps a real hash. The zero hash collapses to the placeholder
// and an unparsed Hash{} to unknown.
func KnownCommit(h vcs.Hash) Commit {
	if !h.IsValid() {
		return UnknownCommit()
	}
	if h.IsZero() {
		return PlaceholderCommit()
	}
	return Commit{state: CommitKnown, hash: h}
}

func (c Commit) State() CommitState  { return c.state }
func (c Commit) IsKnown() bool       { return c.state == CommitKnown }
func (c Commit) IsPlaceholder() bool { return c.state == CommitPlaceholder }

// Hash returns the integration hash if one is known.
func (c Commit) Hash() (vcs.Hash, bool) {
	if c.state != CommitKnown {
		return vcs.Hash{}, false
	}
	return c.hash, true
}

func (c Commit) String() string {
	if c.state == CommitKnown {
		return c.hash.Hex()
	}
	return c.state.String()
}

// IssueSet is the set of issue ids a pull request references.
type IssueSet map[string]struct{}

// NewIssueSet builds a set from ids, ignoring duplicates.
func NewIssueSet(ids ...string) IssueSet {
	s := make(IssueSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IssueSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IssueSet) Len() int { return len(s) }

// Sorted returns the ids in ascending order. The result is never nil.
func (s IssueSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Minus returns the ids in s that are not in other, sorted.
func (s IssueSet) Minus(other IssueSet) []string {
	var ids []string
	for id := range s {
		if !other.Has(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s IssueSet) Equal(other IssueSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Snapshot is the persisted, comparable summary of one pull request.
type Snapshot struct {
	ID     string
	Issues IssueSet
	Commit Commit
}

// Equal compares id, issue set and commit.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.ID == other.ID && s.Commit == other.Commit && s.Issues.Equal(other.Issues)
}

// WithCommit returns a copy of s carrying c.
func (s Snapshot) WithCommit(c Commit) Snapshot {
	s.Commit = c
	return s
}

// FindSnapshot returns the snapshot with the given id.
func FindSnapshot(snapshots []Snapshot, id string) (Snapshot, bool) {
	for _, s := range snapshots {
		if s.ID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}
