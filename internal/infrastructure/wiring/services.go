package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/config"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/github"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/jira"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/messaging"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/scheduler"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/server"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/sse"
	"github.com/felixgeelhaar/prnotify/pkg/application"
	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
)

// AppServices exposes the application layer wired to a workspace.
type AppServices struct {
	Config     *config.Config
	Workspace  *Workspace
	Dispatcher *events.EventDispatcher
	Stream     *sse.Handler
	Notify     *application.NotifyService
	Scheduler  *scheduler.Scheduler
	Logger     *slog.Logger
}

// Options customizes BuildAppServices. The zero value is production wiring.
type Options struct {
	// HTTPClient is used for Jira calls and the GitHub source.
	HTTPClient *http.Client
	// Listeners are notified in addition to the event dispatcher.
	Listeners []notify.Listener
}

// BuildAppServices constructs the reconciler and its listeners from cfg.
func BuildAppServices(cfg *config.Config, logger *slog.Logger, opts Options) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workspace, err := NewWorkspace(cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := buildDispatcher(cfg, workspace, opts.HTTPClient, logger)
	if err != nil {
		_ = workspace.Close()
		return nil, err
	}
	stream := sse.NewHandler()
	dispatcher.Register(stream.Registration())

	// Create services in dependency order
	listeners := notify.Listeners{application.NewEventListener(dispatcher, logger)}
	listeners = append(listeners, opts.Listeners...)
	notifySvc := application.NewNotifyService(workspace.History, cfg.Extractor(), listeners, logger)

	sched := scheduler.New(scheduler.Config{
		Workers:      cfg.Scheduler.Workers,
		MaxAttempts:  cfg.Scheduler.MaxAttempts,
		InitialDelay: cfg.Scheduler.RetryDelay,
		PassTimeout:  cfg.Scheduler.PassTimeout,
	}, logger)

	return &AppServices{
		Config:     cfg,
		Workspace:  workspace,
		Dispatcher: dispatcher,
		Stream:     stream,
		Notify:     notifySvc,
		Scheduler:  sched,
		Logger:     logger,
	}, nil
}

func buildDispatcher(cfg *config.Config, ws *Workspace, client *http.Client, logger *slog.Logger) (*events.EventDispatcher, error) {
	dispatcher := events.NewEventDispatcher()
	// A failing sink must not hide the event from the others.
	dispatcher.ContinueOnError = true
	dispatcher.Register(events.NewLoggingHandler(logger).Registration())
	dispatcher.Register(events.NewRecordingHandler(ws.Events).Registration())

	registry, err := messaging.NewRegistry(&cfg.Messaging)
	if err != nil {
		return nil, fmt.Errorf("messaging: %w", err)
	}
	if len(registry.Adapters()) > 0 {
		dispatcher.Register(registry.Registration())
	}

	if ws.Notifier != nil {
		dispatcher.Register(ws.Notifier.Registration())
	}

	if cfg.Jira.Enabled {
		commenter, err := jira.NewCommenter(cfg.Jira, client)
		if err != nil {
			return nil, fmt.Errorf("jira: %w", err)
		}
		dispatcher.Register(commenter.Registration())
	}
	return dispatcher, nil
}

// WorkItems wraps each pull request in a reconciliation pass.
func (s *AppServices) WorkItems(prs []forge.PullRequest) []scheduler.Item {
	onError := application.LogErrors(s.Logger)
	items := make([]scheduler.Item, 0, len(prs))
	for _, pr := range prs {
		items = append(items, application.NewWorkItem(s.Notify, pr, onError))
	}
	return items
}

// Reconcile runs one pass per pull request through the scheduler.
func (s *AppServices) Reconcile(ctx context.Context, prs []forge.PullRequest) scheduler.Result {
	return s.Scheduler.RunAll(ctx, s.WorkItems(prs))
}

// GitHubSource creates the live pull request source. client may be nil.
func (s *AppServices) GitHubSource(ctx context.Context, client *http.Client) (*github.Source, error) {
	gc := s.Config.GitHub
	return github.NewSource(ctx, github.Config{
		Token:       gc.Token(),
		BaseURL:     gc.BaseURL,
		PageLimit:   gc.PageLimit,
		PerPage:     gc.PerPage,
		MaxAttempts: s.Config.Scheduler.MaxAttempts,
		RetryDelay:  s.Config.Scheduler.RetryDelay,
	}, client, s.Logger)
}

// TriggerProcessor reconciles the pull request a webhook names, fetching its
// current state from source. The pass runs under the scheduler's key lock,
// so it never overlaps a polling pass for the same pull request.
func (s *AppServices) TriggerProcessor(source *github.Source) server.Processor {
	onError := application.LogErrors(s.Logger)
	return server.ProcessorFunc(func(ctx context.Context, t server.Trigger) error {
		pr, err := source.PullRequest(ctx, t.Repository, t.Number)
		if err != nil {
			return err
		}
		return s.Scheduler.Execute(ctx, application.NewWorkItem(s.Notify, pr, onError))
	})
}

// NewServer creates the HTTP server for cfg.Server, wired to source and the
// event stream. addr overrides the configured listen address when set.
func (s *AppServices) NewServer(source *github.Source, addr string) *server.Server {
	if addr == "" {
		addr = s.Config.Server.Listen
	}
	return server.NewServer(server.Config{
		Addr:         addr,
		Secret:       s.Config.Server.Secret(),
		Repositories: s.Config.Repositories,
	}, s.TriggerProcessor(source), s.Stream, s.Logger)
}

// Close releases the workspace.
func (s *AppServices) Close() error {
	return s.Workspace.Close()
}
