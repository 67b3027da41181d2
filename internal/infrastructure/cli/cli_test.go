package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/github"
	"github.com/felixgeelhaar/prnotify/pkg/storage"
)

func TestExecute_Help(t *testing.T) {
	out, err := runCLI(t, nil, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, cmd := range []string{"run", "poll", "watch", "history", "issues"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help does not list %q:\n%s", cmd, out)
		}
	}
}

func TestIssuesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.md")
	body := "Text\r\n\r\n### Issues\r\n * [JDK-2](https://x/JDK-2): Two\r\n * [JDK-1](https://x/JDK-1): One\r\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, nil, "issues", path)
	if err != nil {
		t.Fatalf("issues failed: %v", err)
	}
	if out != "JDK-1\nJDK-2\n" {
		t.Errorf("output = %q", out)
	}
}

func TestIssuesCommand_Stdin(t *testing.T) {
	out, err := runCLI(t, strings.NewReader("No issues here"), "issues", "-")
	if err != nil {
		t.Fatalf("issues failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestIssuesCommand_MissingFile(t *testing.T) {
	if _, err := runCLI(t, nil, "issues", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatchOnceThenHistory(t *testing.T) {
	cfgPath, state := writeTestConfig(t, "")
	fixtures := t.TempDir()
	writeFixture(t, fixtures, "jdk-1.yaml", fixtureOne)
	writeFixture(t, fixtures, "jdk-2.yml", fixtureTwo)
	writeFixture(t, fixtures, "notes.txt", "ignored")

	out, err := runCLI(t, nil, "watch", fixtures, "--once", "--config", cfgPath)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if !strings.Contains(out, "reconciled 2 pull requests (2 ok, 0 failed)") {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(state, storage.HistoryFile)); err != nil {
		t.Fatalf("expected history file: %v", err)
	}

	out, err = runCLI(t, nil, "history", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 history lines, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "openjdk/jdk#1") || !strings.Contains(lines[0], "unknown") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "0123456789abcdef0123456789abcdef01234567") ||
		!strings.Contains(lines[1], "JDK-8300002,JDK-8300003") {
		t.Errorf("line 2 = %q", lines[1])
	}

	out, err = runCLI(t, nil, "history", "--check", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history --check failed: %v", err)
	}
	if !strings.Contains(out, "History: OK") || !strings.Contains(out, "Event log: OK") {
		t.Errorf("unexpected check output: %q", out)
	}

	out, err = runCLI(t, nil, "history", "--events", "openjdk/jdk#2", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history --events failed: %v", err)
	}
	for _, want := range []string{"pull_request.opened", "JDK-8300003", "pull_request.integrated"} {
		if !strings.Contains(out, want) {
			t.Errorf("events output missing %q:\n%s", want, out)
		}
	}
}

func TestWatchOnce_IsIdempotent(t *testing.T) {
	cfgPath, state := writeTestConfig(t, "")
	fixtures := t.TempDir()
	writeFixture(t, fixtures, "jdk-1.yaml", fixtureOne)

	for i := 0; i < 2; i++ {
		if _, err := runCLI(t, nil, "watch", fixtures, "--once", "--config", cfgPath); err != nil {
			t.Fatalf("watch failed: %v", err)
		}
	}

	store, err := storage.NewFileEventStore(state)
	if err != nil {
		t.Fatal(err)
	}
	evts, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Errorf("expected opened and linked events only, got %d", len(evts))
	}
}

func TestHistory_Empty(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	out, err := runCLI(t, nil, "history", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "No pull requests recorded.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestHistoryCheck_RejectsMalformedHistory(t *testing.T) {
	cfgPath, state := writeTestConfig(t, "")
	if err := os.MkdirAll(state, 0700); err != nil {
		t.Fatal(err)
	}
	bad := "[\n{\"pr\":\"openjdk/jdk#1\",\"issues\":[],\"commit\":\"xyz\"}\n]\n"
	if err := os.WriteFile(filepath.Join(state, storage.HistoryFile), []byte(bad), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, nil, "history", "--check", "--config", cfgPath)
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		t.Fatalf("expected CLIError, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("repositories: [jdk]\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, nil, "history", "--config", path)
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || cliErr.Hint == "" {
		t.Fatalf("expected CLIError with hint, got %v", err)
	}
}

func TestUnknownLogLevel(t *testing.T) {
	if _, err := runCLI(t, nil, "issues", "-", "--log-level", "loud"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/openjdk/jdk/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"number":     9,
				"title":      "8300009: Poll",
				"html_url":   "https://github.com/openjdk/jdk/pull/9",
				"body":       "Poll\n\n### Issues\n * [JDK-8300009](https://bugs.openjdk.org/browse/JDK-8300009): Poll",
				"updated_at": time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
	mux.HandleFunc("/repos/openjdk/jdk/issues/9/comments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	pollClient = server.Client()
	t.Cleanup(func() { pollClient = nil })
	return server
}

func TestPollCommand(t *testing.T) {
	server := newGitHubServer(t)
	cfgPath, state := writeTestConfig(t, "repositories: [openjdk/jdk]\ngithub:\n  base_url: "+server.URL+"\n")

	out, err := runCLI(t, nil, "poll", "--config", cfgPath)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if !strings.Contains(out, "openjdk/jdk: 1 pull requests (1 ok, 0 failed)") {
		t.Errorf("unexpected output: %q", out)
	}

	data, err := os.ReadFile(filepath.Join(state, storage.HistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"openjdk/jdk#9"`) || !strings.Contains(string(data), "JDK-8300009") {
		t.Errorf("unexpected history:\n%s", data)
	}
}

func TestPollCommand_RepoFlag(t *testing.T) {
	server := newGitHubServer(t)
	cfgPath, _ := writeTestConfig(t, "github:\n  base_url: "+server.URL+"\n")

	out, err := runCLI(t, nil, "poll", "--repo", "openjdk/jdk", "--config", cfgPath)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if !strings.Contains(out, "openjdk/jdk: 1 pull requests") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestPollCommand_NoRepositories(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	_, err := runCLI(t, nil, "poll", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "no repositories") {
		t.Fatalf("expected no repositories error, got %v", err)
	}
}

func TestPollCommand_PageLimitReached(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/openjdk/jdk/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Link", `<`+server.URL+`/repos/openjdk/jdk/pulls?page=2>; rel="next"`)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"number": 9, "updated_at": time.Now().UTC().Format(time.RFC3339)},
		})
	})
	mux.HandleFunc("/repos/openjdk/jdk/issues/9/comments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()
	pollClient = server.Client()
	defer func() { pollClient = nil }()

	cfgPath, state := writeTestConfig(t, "repositories: [openjdk/jdk]\ngithub:\n  base_url: "+server.URL+"\n  page_limit: 1\n")

	out, err := runCLI(t, nil, "poll", "--config", cfgPath)
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || !errors.Is(err, github.ErrTruncated) || cliErr.Hint == "" {
		t.Fatalf("expected truncation CLIError with hint, got %v", err)
	}
	if !strings.Contains(out, "openjdk/jdk: 1 pull requests (1 ok, 0 failed)") {
		t.Errorf("expected the listed pull request to be reconciled, got %q", out)
	}

	data, err := os.ReadFile(filepath.Join(state, storage.HistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"openjdk/jdk#9"`) {
		t.Errorf("unexpected history:\n%s", data)
	}
}

func TestRunOnce(t *testing.T) {
	server := newGitHubServer(t)
	cfgPath, _ := writeTestConfig(t, "repositories: [openjdk/jdk]\ngithub:\n  base_url: "+server.URL+"\n")

	out, err := runCLI(t, nil, "run", "--once", "--config", cfgPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "openjdk/jdk: 1 pull requests (1 ok, 0 failed)") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"", false},
		{"debug", false},
		{"INFO", false},
		{"warning", false},
		{"error", false},
		{"trace", true},
	}
	for _, tt := range tests {
		_, err := newLogger(tt.level, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("newLogger(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
		}
	}
}

func TestRunOnce_WithListener(t *testing.T) {
	server := newGitHubServer(t)
	cfgPath, _ := writeTestConfig(t, "repositories: [openjdk/jdk]\ngithub:\n  base_url: "+server.URL+"\n")

	out, err := runCLI(t, nil, "run", "--once", "--listen", "127.0.0.1:0", "--config", cfgPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "openjdk/jdk: 1 pull requests") {
		t.Errorf("unexpected output: %q", out)
	}
}
