// Package github reads pull requests and their comments from GitHub.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	gh "github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"
)

// Config configures the GitHub source.
type Config struct {
	// Token authenticates requests. Empty means anonymous access.
	Token string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
	// PageLimit caps the number of pull request pages read per repository.
	PageLimit int
	// PerPage is the page size for list calls.
	PerPage int
	// MaxAttempts bounds retries of a single API call.
	MaxAttempts int
	// RetryDelay is the first backoff delay.
	RetryDelay time.Duration
}

// ErrTruncated reports that PullRequests hit the page limit while more pull
// requests inside the requested window were still listed.
var ErrTruncated = errors.New("pull request listing truncated")

// Source lists recently updated pull requests.
type Source struct {
	client    *gh.Client
	pageLimit int
	perPage   int
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewSource creates a source. httpClient may be nil.
func NewSource(ctx context.Context, cfg Config, httpClient *http.Client, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Token != "" {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}

	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Source{
		client:    client,
		pageLimit: cfg.PageLimit,
		perPage:   cfg.PerPage,
		retryCfg: retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: logger,
	}, nil
}

// SplitRepository splits "owner/name".
func SplitRepository(repository string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", repository)
	}
	return owner, name, nil
}

// PullRequests returns the pull requests of repository, most recently
// updated first, with their comments oldest first. Pull requests last
// updated before since are skipped; a zero since keeps all of them.
//
// When the page limit ends the listing before since was reached, the pull
// requests read so far are returned together with an error wrapping
// ErrTruncated.
func (s *Source) PullRequests(ctx context.Context, repository string, since time.Time) ([]forge.PullRequest, error) {
	owner, name, err := SplitRepository(repository)
	if err != nil {
		return nil, err
	}

	var result []forge.PullRequest
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: s.perPage},
	}

	for page := 0; ; page++ {
		if page == s.pageLimit {
			s.logger.WarnContext(ctx, "pull request listing truncated",
				"repository", repository,
				"pages", s.pageLimit,
				"count", len(result),
			)
			return result, fmt.Errorf("%w: %s has more than %d pages of updated pull requests", ErrTruncated, repository, s.pageLimit)
		}

		var resp *gh.Response
		prs, err := retry.New[[]*gh.PullRequest](s.retryCfg).Do(ctx, func(ctx context.Context) ([]*gh.PullRequest, error) {
			prs, r, err := s.client.PullRequests.List(ctx, owner, name, opts)
			resp = r
			return prs, err
		})
		if err != nil {
			return nil, fmt.Errorf("list pull requests of %s: %w", repository, err)
		}

		for _, p := range prs {
			if !since.IsZero() && p.GetUpdatedAt().Time.Before(since) {
				return result, nil
			}
			comments, err := s.comments(ctx, owner, name, p.GetNumber())
			if err != nil {
				return nil, err
			}
			result = append(result, toPullRequest(repository, p, comments))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	s.logger.DebugContext(ctx, "fetched pull requests", "repository", repository, "count", len(result))
	return result, nil
}

// PullRequest fetches one pull request with its comments.
func (s *Source) PullRequest(ctx context.Context, repository string, number int) (forge.PullRequest, error) {
	owner, name, err := SplitRepository(repository)
	if err != nil {
		return forge.PullRequest{}, err
	}

	p, err := retry.New[*gh.PullRequest](s.retryCfg).Do(ctx, func(ctx context.Context) (*gh.PullRequest, error) {
		p, _, err := s.client.PullRequests.Get(ctx, owner, name, number)
		return p, err
	})
	if err != nil {
		return forge.PullRequest{}, fmt.Errorf("get pull request %s#%d: %w", repository, number, err)
	}

	comments, err := s.comments(ctx, owner, name, number)
	if err != nil {
		return forge.PullRequest{}, err
	}
	return toPullRequest(repository, p, comments), nil
}

func (s *Source) comments(ctx context.Context, owner, name string, number int) ([]forge.Comment, error) {
	var result []forge.Comment
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	for {
		var resp *gh.Response
		comments, err := retry.New[[]*gh.IssueComment](s.retryCfg).Do(ctx, func(ctx context.Context) ([]*gh.IssueComment, error) {
			cs, r, err := s.client.Issues.ListComments(ctx, owner, name, number, opts)
			resp = r
			return cs, err
		})
		if err != nil {
			return nil, fmt.Errorf("list comments of %s/%s#%d: %w", owner, name, number, err)
		}

		for _, c := range comments {
			result = append(result, forge.Comment{
				AuthorID:  c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			return result, nil
		}
		opts.Page = resp.NextPage
	}
}

func toPullRequest(repository string, p *gh.PullRequest, comments []forge.Comment) forge.PullRequest {
	labels := make([]string, 0, len(p.Labels))
	for _, l := range p.Labels {
		labels = append(labels, l.GetName())
	}
	return forge.PullRequest{
		Repository: repository,
		Number:     p.GetNumber(),
		Title:      p.GetTitle(),
		URL:        p.GetHTMLURL(),
		Body:       p.GetBody(),
		Labels:     labels,
		Comments:   comments,
	}
}
