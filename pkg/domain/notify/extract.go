package notify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
)

// DefaultIntegratedLabel is the label a pull request carries once it has
// been pushed to the target branch.
const DefaultIntegratedLabel = "integrated"

var (
	// A blank line, an "## Issue" or "### Issues" heading, then one or more
	// lines that start with a link, optionally bulleted.
	issuesBlockPattern = regexp.MustCompile(`\n\n###? Issues?((?:\n(?: \* )?\[.*)+)`)
	issueLinePattern   = regexp.MustCompile(`(?m)^(?: \* )?\[(\S+)\]\(.*\): .*$`)
	pushedPattern      = regexp.MustCompile(`Pushed as commit ([a-f0-9]{40})\.`)
)

// ParseIssues returns the ids listed in the first issues section of body.
// A missing or malformed section yields the empty set.
func ParseIssues(body string) IssueSet {
	block, ok := findIssuesBlock(strings.ReplaceAll(body, "\r\n", "\n"))
	if !ok {
		return NewIssueSet()
	}
	return parseIssueLines(block)
}

// findIssuesBlock returns the lines following the first issues heading.
func findIssuesBlock(body string) (string, bool) {
	m := issuesBlockPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// parseIssueLines collects "[ID](link): description" entries. Lines that do
// not match are skipped.
func parseIssueLines(block string) IssueSet {
	issues := NewIssueSet()
	for _, m := range issueLinePattern.FindAllStringSubmatch(block, -1) {
		issues[m[1]] = struct{}{}
	}
	return issues
}

// Extractor derives snapshots from live pull request data.
type Extractor struct {
	// IntegratorID is the comment author trusted to announce integrations.
	IntegratorID string
	// IntegratedLabel gates commit detection; empty means DefaultIntegratedLabel.
	IntegratedLabel string
}

// NewExtractor creates an Extractor for the given integrator account.
func NewExtractor(integratorID, integratedLabel string) Extractor {
	if integratedLabel == "" {
		integratedLabel = DefaultIntegratedLabel
	}
	return Extractor{IntegratorID: integratorID, IntegratedLabel: integratedLabel}
}

func (x Extractor) label() string {
	if x.IntegratedLabel == "" {
		return DefaultIntegratedLabel
	}
	return x.IntegratedLabel
}

// ResultingCommit returns the commit the pull request was integrated as.
// It is unknown unless the integrated label is present and the integrator
// announced a push. When several announcements exist the earliest wins.
func (x Extractor) ResultingCommit(pr forge.PullRequest) (Commit, error) {
	if !pr.HasLabel(x.label()) {
		return UnknownCommit(), nil
	}
	for _, c := range pr.Comments {
		if c.AuthorID != x.IntegratorID {
			continue
		}
		m := pushedPattern.FindStringSubmatch(c.Body)
		if m == nil {
			continue
		}
		h, err := vcs.ParseHash(m[1])
		if err != nil {
			return Commit{}, fmt.Errorf("pull request %s: %w", pr.ID(), err)
		}
		return KnownCommit(h), nil
	}
	return UnknownCommit(), nil
}

// Snapshot computes the current snapshot of pr.
func (x Extractor) Snapshot(pr forge.PullRequest) (Snapshot, error) {
	commit, err := x.ResultingCommit(pr)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:     pr.ID(),
		Issues: ParseIssues(pr.Body),
		Commit: commit,
	}, nil
}
