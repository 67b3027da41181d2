// Package jira comments on Jira issues that pull requests reference.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
)

// Config holds the Jira connection settings.
type Config struct {
	Domain   string   `yaml:"domain" json:"domain"`
	Email    string   `yaml:"email" json:"email"`
	APIToken string   `yaml:"api_token" json:"api_token"`
	Projects []string `yaml:"projects,omitempty" json:"projects,omitempty"`
	// IssuePrefix is prepended to purely numeric issue ids, e.g. "JDK-".
	IssuePrefix string `yaml:"issue_prefix,omitempty" json:"issue_prefix,omitempty"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// Commenter posts a comment when a pull request starts referencing an issue
// and when the pull request is integrated.
type Commenter struct {
	domain   string
	email    string
	apiToken string
	projects map[string]bool
	prefix   string
	client   *http.Client
}

// NewCommenter validates cfg. client may be nil.
func NewCommenter(cfg Config, client *http.Client) (*Commenter, error) {
	if cfg.Domain == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira configuration missing (domain, email, api_token required)")
	}
	domain := strings.TrimSuffix(cfg.Domain, "/")
	if !strings.HasPrefix(domain, "http") {
		domain = "https://" + domain
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	projects := make(map[string]bool, len(cfg.Projects))
	for _, p := range cfg.Projects {
		projects[strings.ToUpper(p)] = true
	}

	return &Commenter{
		domain:   domain,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		projects: projects,
		prefix:   cfg.IssuePrefix,
		client:   client,
	}, nil
}

// Handle comments on the issues named by event.
func (c *Commenter) Handle(ctx context.Context, event events.DomainEvent) error {
	base, ok := events.AsBaseEvent(event)
	if !ok {
		return nil
	}

	var (
		issues []string
		text   string
	)
	switch base.Type {
	case events.EventTypeIssueLinked:
		issues = []string{base.MetaString(events.MetaIssue)}
		text = fmt.Sprintf("A pull request was submitted for review.\nURL: %s\nDate: %s",
			pullRequestLink(base), base.Timestamp.UTC().Format("2006-01-02 15:04:05+0000"))
	case events.EventTypePullRequestIntegrated:
		issues = base.MetaStrings(events.MetaIssues)
		text = fmt.Sprintf("Changeset: %s\nPull request: %s",
			base.MetaString(events.MetaCommit), pullRequestLink(base))
	default:
		return nil
	}

	var errs []error
	for _, id := range issues {
		key, ok := c.issueKey(id)
		if !ok {
			continue
		}
		if err := c.comment(ctx, key, text); err != nil {
			errs = append(errs, fmt.Errorf("comment on %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Registration returns the HandlerRegistration for this commenter.
func (c *Commenter) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name:    "JiraCommenter",
		Handler: c.Handle,
		EventTypes: []string{
			events.EventTypeIssueLinked,
			events.EventTypePullRequestIntegrated,
		},
	}
}

// issueKey maps a referenced id to a Jira key and reports whether the key
// belongs to a configured project.
func (c *Commenter) issueKey(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	key := id
	if c.prefix != "" && isDigits(id) {
		key = c.prefix + id
	}
	project, _, found := strings.Cut(key, "-")
	if !found {
		return "", false
	}
	if len(c.projects) > 0 && !c.projects[strings.ToUpper(project)] {
		return "", false
	}
	return strings.ToUpper(project) + key[len(project):], true
}

func (c *Commenter) comment(ctx context.Context, key, text string) error {
	_, err := c.request(ctx, http.MethodPost, "issue/"+url.PathEscape(key)+"/comment", map[string]string{"body": text})
	return err
}

func (c *Commenter) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/%s", c.domain, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.email + ":" + c.apiToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("jira api error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func pullRequestLink(e *events.BaseEvent) string {
	if u := e.MetaString(events.MetaURL); u != "" {
		return u
	}
	return e.AggregateID()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
