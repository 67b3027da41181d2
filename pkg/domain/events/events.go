// Package events defines the domain events emitted when a pull request's
// notification state changes.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	AggregateType() string
	OccurredAt() time.Time
}

// BaseEvent carries the common event fields. Event specific values live in
// Metadata under the Meta* keys.
type BaseEvent struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	AggregateID_   string                 `json:"aggregate_id"`
	AggregateType_ string                 `json:"aggregate_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	PrevHash       string                 `json:"prev_hash,omitempty"`
	Hash           string                 `json:"hash,omitempty"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) AggregateID() string   { return e.AggregateID_ }
func (e BaseEvent) AggregateType() string { return e.AggregateType_ }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// MetaString returns a string metadata value, or "" if absent.
func (e BaseEvent) MetaString(key string) string {
	if v, ok := e.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaStrings returns a string list metadata value. Lists decoded from JSON
// arrive as []interface{} and are converted.
func (e BaseEvent) MetaStrings(key string) []string {
	switch v := e.Metadata[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// CalculateHash generates a deterministic SHA256 hash of the event.
func (e *BaseEvent) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.ID))
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Type))
	h.Write([]byte(e.AggregateID_))
	h.Write([]byte(canonicalJSON(e.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON produces a deterministic JSON representation.
func canonicalJSON(m map[string]interface{}) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(m[k])
		ordered = append(ordered, keyJSON...)
		ordered = append(ordered, ':')
		ordered = append(ordered, valJSON...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}

// =============================================================================
// Event Type Constants
// =============================================================================

const (
	EventTypePullRequestOpened     = "pull_request.opened"
	EventTypeIssueLinked           = "pull_request.issue_linked"
	EventTypeIssueUnlinked         = "pull_request.issue_unlinked"
	EventTypePullRequestIntegrated = "pull_request.integrated"
)

// AggregateTypePullRequest is the aggregate type of every event here.
const AggregateTypePullRequest = "pull_request"

// Metadata keys.
const (
	MetaRepository = "repository"
	MetaNumber     = "number"
	MetaTitle      = "title"
	MetaURL        = "url"
	MetaIssue      = "issue"
	MetaIssues     = "issues"
	MetaCommit     = "commit"
)

// AllEventTypes lists every event type, for filters and validation.
var AllEventTypes = []string{
	EventTypePullRequestOpened,
	EventTypeIssueLinked,
	EventTypeIssueUnlinked,
	EventTypePullRequestIntegrated,
}

func newPullRequestEvent(eventType string, pr forge.PullRequest) *BaseEvent {
	return &BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		AggregateID_:   pr.ID(),
		AggregateType_: AggregateTypePullRequest,
		Timestamp:      time.Now().UTC(),
		Metadata: map[string]interface{}{
			MetaRepository: pr.Repository,
			MetaNumber:     strconv.Itoa(pr.Number),
			MetaTitle:      pr.Title,
			MetaURL:        pr.URL,
		},
	}
}

// NewPullRequestOpened is emitted the first time a pull request is seen.
func NewPullRequestOpened(pr forge.PullRequest) *BaseEvent {
	return newPullRequestEvent(EventTypePullRequestOpened, pr)
}

// NewIssueLinked is emitted when the description starts referencing an issue.
func NewIssueLinked(pr forge.PullRequest, issueID string) *BaseEvent {
	e := newPullRequestEvent(EventTypeIssueLinked, pr)
	e.Metadata[MetaIssue] = issueID
	return e
}

// NewIssueUnlinked is emitted when the description stops referencing an issue.
func NewIssueUnlinked(pr forge.PullRequest, issueID string) *BaseEvent {
	e := newPullRequestEvent(EventTypeIssueUnlinked, pr)
	e.Metadata[MetaIssue] = issueID
	return e
}

// NewPullRequestIntegrated is emitted once, when the resulting commit becomes
// known. issues are the ids referenced at that time.
func NewPullRequestIntegrated(pr forge.PullRequest, commit string, issues []string) *BaseEvent {
	e := newPullRequestEvent(EventTypePullRequestIntegrated, pr)
	e.Metadata[MetaCommit] = commit
	e.Metadata[MetaIssues] = issues
	return e
}
