package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v69/github"
)

var (
	errInvalidSignature = errors.New("invalid webhook signature")
	errIgnored          = errors.New("event does not concern a pull request")
)

// parseGitHubEvent validates and decodes a GitHub webhook delivery. Pull
// request events and comments on pull requests produce a trigger; anything
// else is errIgnored.
func parseGitHubEvent(r *http.Request, secret []byte) (Trigger, error) {
	payload, err := gh.ValidatePayload(r, secret)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", errInvalidSignature, err)
	}

	eventType := gh.WebHookType(r)
	switch eventType {
	case "pull_request", "issue_comment":
	case "":
		return Trigger{}, fmt.Errorf("missing X-GitHub-Event header")
	default:
		return Trigger{}, errIgnored
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return Trigger{}, fmt.Errorf("parse %s payload: %w", eventType, err)
	}

	trigger := Trigger{Event: eventType, ReceivedAt: time.Now().UTC()}
	switch e := event.(type) {
	case *gh.PullRequestEvent:
		trigger.Action = e.GetAction()
		trigger.Repository = e.GetRepo().GetFullName()
		trigger.Number = e.GetPullRequest().GetNumber()
		if trigger.Number == 0 {
			trigger.Number = e.GetNumber()
		}
	case *gh.IssueCommentEvent:
		if issue := e.GetIssue(); issue == nil || !issue.IsPullRequest() {
			return Trigger{}, errIgnored
		}
		trigger.Action = e.GetAction()
		trigger.Repository = e.GetRepo().GetFullName()
		trigger.Number = e.GetIssue().GetNumber()
	default:
		return Trigger{}, errIgnored
	}

	if trigger.Repository == "" || trigger.Number <= 0 {
		return Trigger{}, fmt.Errorf("%s payload names no pull request", eventType)
	}
	return trigger, nil
}
