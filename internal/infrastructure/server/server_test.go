package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu       sync.Mutex
	triggers []Trigger
	err      error
}

func (p *recordingProcessor) Process(ctx context.Context, t Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers = append(p.triggers, t)
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, h http.Handler, event string, payload any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", sign(body, secret))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func pullRequestPayload(repo string, number int) map[string]any {
	return map[string]any{
		"action":       "edited",
		"number":       number,
		"pull_request": map[string]any{"number": number},
		"repository":   map[string]any{"full_name": repo},
	}
}

func TestServer_Health(t *testing.T) {
	s := NewServer(Config{}, nil, nil, quietLogger())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestServer_PullRequestEventTriggersProcessing(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewServer(Config{Secret: "s3cret"}, proc, nil, quietLogger())

	w := deliver(t, s.Handler(), "pull_request", pullRequestPayload("openjdk/jdk", 42), "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if len(proc.triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(proc.triggers))
	}
	got := proc.triggers[0]
	if got.Repository != "openjdk/jdk" || got.Number != 42 || got.Event != "pull_request" || got.Action != "edited" {
		t.Errorf("trigger = %+v", got)
	}
	if len(s.RecentTriggers()) != 1 {
		t.Errorf("recent = %v", s.RecentTriggers())
	}
}

func TestServer_IssueCommentOnPullRequest(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewServer(Config{}, proc, nil, quietLogger())

	payload := map[string]any{
		"action": "created",
		"issue": map[string]any{
			"number":       7,
			"pull_request": map[string]any{"url": "https://api.github.com/repos/openjdk/jdk/pulls/7"},
		},
		"comment":    map[string]any{"body": "Pushed as commit 0123456789abcdef0123456789abcdef01234567."},
		"repository": map[string]any{"full_name": "openjdk/jdk"},
	}
	if w := deliver(t, s.Handler(), "issue_comment", payload, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if len(proc.triggers) != 1 || proc.triggers[0].Number != 7 {
		t.Errorf("triggers = %+v", proc.triggers)
	}
}

func TestServer_IgnoredEvents(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewServer(Config{Repositories: []string{"openjdk/jdk"}}, proc, nil, quietLogger())

	plainIssue := map[string]any{
		"action":     "created",
		"issue":      map[string]any{"number": 3},
		"repository": map[string]any{"full_name": "openjdk/jdk"},
	}

	tests := []struct {
		name    string
		event   string
		payload any
	}{
		{"push", "push", map[string]any{"ref": "refs/heads/master"}},
		{"comment on plain issue", "issue_comment", plainIssue},
		{"repository not allowed", "pull_request", pullRequestPayload("other/repo", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := deliver(t, s.Handler(), tt.event, tt.payload, "")
			if w.Code != http.StatusAccepted {
				t.Errorf("status = %d: %s", w.Code, w.Body.String())
			}
		})
	}
	if len(proc.triggers) != 0 {
		t.Errorf("ignored events should not be processed: %+v", proc.triggers)
	}
}

func TestServer_RejectsBadSignature(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewServer(Config{Secret: "s3cret"}, proc, nil, quietLogger())

	w := deliver(t, s.Handler(), "pull_request", pullRequestPayload("openjdk/jdk", 1), "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}

	w = deliver(t, s.Handler(), "pull_request", pullRequestPayload("openjdk/jdk", 1), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unsigned delivery: status = %d", w.Code)
	}
	if len(proc.triggers) != 0 {
		t.Error("rejected deliveries must not be processed")
	}
}

func TestServer_ProcessorFailure(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("store snapshot for openjdk/jdk#1: rename /srv/prnotify/.prnotify/history.json: permission denied")}
	var logs bytes.Buffer
	s := NewServer(Config{}, proc, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	w := deliver(t, s.Handler(), "pull_request", pullRequestPayload("openjdk/jdk", 1), "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if body := w.Body.String(); strings.Contains(body, "history.json") || strings.TrimSpace(body) != "processing failed" {
		t.Errorf("response exposes internal error: %q", body)
	}
	if !strings.Contains(logs.String(), "history.json") {
		t.Errorf("expected the full error in the log, got %q", logs.String())
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := NewServer(Config{}, nil, nil, quietLogger())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks/github", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestServer_MissingEventHeader(t *testing.T) {
	s := NewServer(Config{}, nil, nil, quietLogger())
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestServer_TriggersEndpointAndLimit(t *testing.T) {
	s := NewServer(Config{}, ProcessorFunc(func(context.Context, Trigger) error { return nil }), nil, quietLogger())

	for i := 1; i <= recentLimit+5; i++ {
		deliver(t, s.Handler(), "pull_request", pullRequestPayload("openjdk/jdk", i), "")
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/triggers", nil))
	var got []Trigger
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != recentLimit {
		t.Fatalf("expected %d triggers, got %d", recentLimit, len(got))
	}
	if got[0].Number != 6 || got[len(got)-1].Number != recentLimit+5 {
		t.Errorf("expected oldest entries dropped, got first=%d last=%d", got[0].Number, got[len(got)-1].Number)
	}
}

func TestServer_StreamRoute(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("stream"))
	})
	s := NewServer(Config{}, nil, stream, quietLogger())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	if w.Body.String() != "stream" {
		t.Errorf("body = %q", w.Body.String())
	}

	bare := NewServer(Config{}, nil, nil, quietLogger())
	w = httptest.NewRecorder()
	bare.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a stream, got %d", w.Code)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, nil, nil, quietLogger())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("start after shutdown should return nil, got %v", err)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, nil, nil, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
