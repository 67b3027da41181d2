// Package forge models the live pull request data read from a review host.
package forge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Comment is a single comment on a pull request.
type Comment struct {
	AuthorID  string    `yaml:"author" json:"author"`
	Body      string    `yaml:"body" json:"body"`
	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

// PullRequest is a snapshot of a pull request as the review host reports it.
// Comments are ordered oldest first.
type PullRequest struct {
	Repository string    `yaml:"repository" json:"repository"`
	Number     int       `yaml:"number" json:"number"`
	Title      string    `yaml:"title,omitempty" json:"title,omitempty"`
	URL        string    `yaml:"url,omitempty" json:"url,omitempty"`
	Body       string    `yaml:"body" json:"body"`
	Labels     []string  `yaml:"labels,omitempty" json:"labels,omitempty"`
	Comments   []Comment `yaml:"comments,omitempty" json:"comments,omitempty"`
}

// ID returns the identifier used as the history key: "<repository>#<number>".
func (pr PullRequest) ID() string {
	return pr.Repository + "#" + strconv.Itoa(pr.Number)
}

// HasLabel reports whether the pull request currently carries the label.
func (pr PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Validate checks the fields needed to identify the pull request.
func (pr PullRequest) Validate() error {
	if strings.TrimSpace(pr.Repository) == "" {
		return fmt.Errorf("pull request has no repository")
	}
	if pr.Number <= 0 {
		return fmt.Errorf("pull request %s has invalid number %d", pr.Repository, pr.Number)
	}
	return nil
}

func (pr PullRequest) String() string {
	return pr.ID()
}
