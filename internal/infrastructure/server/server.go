// Package server receives GitHub webhooks and serves the live event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const recentLimit = 100

// Trigger names a pull request a webhook reported as changed.
type Trigger struct {
	Repository string    `json:"repository"`
	Number     int       `json:"number"`
	Event      string    `json:"event"`
	Action     string    `json:"action,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Processor reconciles the pull request behind a trigger.
type Processor interface {
	Process(ctx context.Context, trigger Trigger) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, trigger Trigger) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, trigger Trigger) error {
	return f(ctx, trigger)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// Secret validates X-Hub-Signature-256. Empty disables validation.
	Secret string
	// Repositories restricts which repositories may trigger passes. Empty
	// allows all.
	Repositories []string
}

// Server is the HTTP front of prnotify.
type Server struct {
	cfg       Config
	allowed   map[string]bool
	processor Processor
	stream    http.Handler
	logger    *slog.Logger
	server    *http.Server

	mu     sync.RWMutex
	recent []Trigger
}

// NewServer creates a server. stream may be nil, in which case /events is
// not served.
func NewServer(cfg Config, processor Processor, stream http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		allowed[r] = true
	}
	s := &Server{
		cfg:       cfg,
		allowed:   allowed,
		processor: processor,
		stream:    stream,
		logger:    logger,
		recent:    make([]Trigger, 0, recentLimit),
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", s.handleGitHub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/triggers", s.handleTriggers)
	if s.stream != nil {
		mux.Handle("/events", s.stream)
	}
	return mux
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown, including one that happened before Start.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trigger, err := parseGitHubEvent(r, []byte(s.cfg.Secret))
	switch {
	case errors.Is(err, errInvalidSignature):
		s.logger.Warn("invalid github webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	case errors.Is(err, errIgnored):
		writeStatus(w, http.StatusAccepted, "ignored")
		return
	case err != nil:
		s.logger.Warn("failed to parse github webhook", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(s.allowed) > 0 && !s.allowed[trigger.Repository] {
		writeStatus(w, http.StatusAccepted, "ignored")
		return
	}

	s.storeTrigger(trigger)

	if s.processor != nil {
		if err := s.processor.Process(r.Context(), trigger); err != nil {
			s.logger.Error("failed to process github webhook",
				"repository", trigger.Repository,
				"number", trigger.Number,
				"error", err,
			)
			http.Error(w, "processing failed", http.StatusInternalServerError)
			return
		}
	}

	s.logger.Info("processed github webhook",
		"event", trigger.Event,
		"action", trigger.Action,
		"repository", trigger.Repository,
		"number", trigger.Number,
	)
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.RecentTriggers())
}

func (s *Server) storeTrigger(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recent) >= recentLimit {
		s.recent = s.recent[1:]
	}
	s.recent = append(s.recent, t)
}

// RecentTriggers returns the last accepted triggers, oldest first.
func (s *Server) RecentTriggers() []Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Trigger, len(s.recent))
	copy(out, s.recent)
	return out
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
