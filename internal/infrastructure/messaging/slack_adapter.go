package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/messaging"
)

// SlackAdapter sends events to a Slack incoming webhook URL.
type SlackAdapter struct {
	config messaging.AdapterConfig
	client *http.Client
}

// NewSlackAdapter creates a Slack adapter from config.
func NewSlackAdapter(config messaging.AdapterConfig) *SlackAdapter {
	return &SlackAdapter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *SlackAdapter) Name() string { return a.config.Name }
func (a *SlackAdapter) Type() string { return "slack" }

func (a *SlackAdapter) Send(ctx context.Context, event *events.BaseEvent) error {
	text := formatSlackMessage(event)

	payload := map[string]interface{}{
		"text": text,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	}
	if channel := a.config.Options["channel"]; channel != "" {
		payload["channel"] = channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

func formatSlackMessage(event *events.BaseEvent) string {
	pr := slackLink(event)
	switch event.Type {
	case events.EventTypePullRequestOpened:
		return fmt.Sprintf(":new: New pull request %s", pr)
	case events.EventTypeIssueLinked:
		return fmt.Sprintf(":link: %s now references %s", pr, event.MetaString(events.MetaIssue))
	case events.EventTypeIssueUnlinked:
		return fmt.Sprintf(":heavy_minus_sign: %s no longer references %s", pr, event.MetaString(events.MetaIssue))
	case events.EventTypePullRequestIntegrated:
		msg := fmt.Sprintf(":white_check_mark: %s integrated as `%s`", pr, event.MetaString(events.MetaCommit))
		if issues := event.MetaStrings(events.MetaIssues); len(issues) > 0 {
			msg += " (" + strings.Join(issues, ", ") + ")"
		}
		return msg
	default:
		return fmt.Sprintf("prnotify event: %s", event.Type)
	}
}

func slackLink(event *events.BaseEvent) string {
	label := event.AggregateID()
	if title := event.MetaString(events.MetaTitle); title != "" {
		label += ": " + title
	}
	if url := event.MetaString(events.MetaURL); url != "" {
		return fmt.Sprintf("<%s|%s>", url, label)
	}
	return label
}
