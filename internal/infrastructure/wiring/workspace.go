package wiring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/config"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
	"github.com/felixgeelhaar/prnotify/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// Workspace bundles the persistence side of prnotify: the snapshot history,
// the event log and the webhook dead letters.
type Workspace struct {
	Backend  storage.Backend
	History  *storage.Store[notify.Snapshot]
	Events   *storage.FileEventStore
	Notifier *webhook.Notifier

	closers []io.Closer
}

// NewWorkspace opens the configured backend and the event log.
func NewWorkspace(cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(cfg.Storage.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	backend, closer, err := OpenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	ws := &Workspace{
		Backend: backend,
		History: storage.NewSnapshotStore(backend),
	}
	if closer != nil {
		ws.closers = append(ws.closers, closer)
	}

	ws.Events, err = storage.NewFileEventStore(cfg.Storage.Dir)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	if len(cfg.Webhooks) > 0 {
		dlStore := webhook.NewDeadLetterStore(filepath.Join(cfg.Storage.Dir, webhook.DeadLetterFile))
		ws.Notifier = webhook.NewNotifier(cfg.Webhooks, dlStore, logger)
	}
	return ws, nil
}

// OpenBackend creates the snapshot backend named by cfg. The returned closer
// is nil for backends that hold no connection.
func OpenBackend(cfg config.StorageConfig) (storage.Backend, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		b, err := storage.NewFileBackend(cfg.Dir, cfg.Collection)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	case config.BackendRedis:
		b, err := storage.NewRedisBackend(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace, cfg.Collection)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Ping(context.Background()); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("redis backend unreachable: %w", err)
		}
		return b, b, nil
	case config.BackendSQLite:
		b, err := storage.OpenSQLiteBackend(cfg.SQLitePath, cfg.Collection)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close waits for pending webhook deliveries and releases backend
// connections.
func (w *Workspace) Close() error {
	if w.Notifier != nil {
		w.Notifier.Wait()
	}
	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c.Close())
	}
	w.closers = nil
	return errors.Join(errs...)
}
