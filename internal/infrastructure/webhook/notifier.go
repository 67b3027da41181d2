// Package webhook provides outgoing webhook notification delivery.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-PRNotify-Signature"

// Notifier sends outgoing webhook notifications for pull request events.
// Deliveries run in the background; Wait blocks until they finish.
type Notifier struct {
	endpoints  []events.WebhookEndpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with the given endpoints and dead letter store.
func NewNotifier(endpoints []events.WebhookEndpoint, deadLetter *DeadLetterStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	EventType   string      `json:"event_type"`
	PullRequest string      `json:"pull_request"`
	Timestamp   time.Time   `json:"timestamp"`
	Data        interface{} `json:"data"`
}

// Notify sends an event to all matching webhook endpoints.
func (n *Notifier) Notify(ctx context.Context, event *events.BaseEvent) {
	payload := Payload{
		EventType:   event.Type,
		PullRequest: event.AggregateID(),
		Timestamp:   event.Timestamp,
		Data:        event,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.ErrorContext(ctx, "marshal webhook payload", "event_type", event.Type, "error", err)
		return
	}

	// Deliveries outlive the reconciliation pass that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, ep := range n.endpoints {
		if !ep.Enabled || !ep.Matches(event.Type) {
			continue
		}
		n.wg.Add(1)
		go func(ep events.WebhookEndpoint) {
			defer n.wg.Done()
			n.deliver(ctx, ep, event, body)
		}(ep)
	}
}

// Handle adapts Notify to the event dispatcher.
func (n *Notifier) Handle(ctx context.Context, event events.DomainEvent) error {
	if base, ok := events.AsBaseEvent(event); ok {
		n.Notify(ctx, base)
	}
	return nil
}

// Registration returns the HandlerRegistration for this notifier.
func (n *Notifier) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name:       "WebhookNotifier",
		Handler:    n.Handle,
		EventTypes: []string{events.Wildcard},
	}
}

// Wait blocks until all started deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, ep events.WebhookEndpoint, event *events.BaseEvent, body []byte) {
	maxRetries := ep.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := ep.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   maxRetries,
		InitialDelay:  retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		return
	}

	n.logger.WarnContext(ctx, "webhook delivery failed",
		"webhook", ep.Name,
		"event_type", event.Type,
		"pull_request", event.AggregateID(),
		"error", err,
	)
	if n.deadLetter == nil {
		return
	}
	dl := events.DeadLetter{
		Timestamp:   time.Now().UTC(),
		WebhookName: ep.Name,
		URL:         ep.URL,
		EventType:   event.Type,
		PullRequest: event.AggregateID(),
		Payload:     string(body),
		Error:       err.Error(),
		Attempts:    maxRetries,
	}
	if err := n.deadLetter.Append(dl); err != nil {
		n.logger.ErrorContext(ctx, "record dead letter", "webhook", ep.Name, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep events.WebhookEndpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PRNotify-Webhook/1.0")

	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Sign computes the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
