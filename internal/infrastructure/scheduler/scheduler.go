// Package scheduler runs reconciliation passes with bounded parallelism.
//
// Items that share a Key never run at the same time. A failing item is
// retried with exponential backoff and handed to its own HandleError once
// the attempts are used up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
)

// Item is a unit of work the scheduler can run.
type Item interface {
	Key() string
	Run(ctx context.Context) error
	HandleError(err error)
	String() string
}

// Config controls parallelism and retries.
type Config struct {
	Workers      int
	MaxAttempts  int
	InitialDelay time.Duration
	// PassTimeout bounds a single attempt. Zero means no bound.
	PassTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
	}
}

// Scheduler executes items.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a scheduler. Non-positive values fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]*keyLock),
	}
}

// Result summarizes a batch.
type Result struct {
	Succeeded int
	Failed    int
}

// RunAll executes items with at most Workers running at once and waits for
// all of them. Failures are reported through each item's HandleError.
func (s *Scheduler) RunAll(ctx context.Context, items []Item) Result {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result Result
	)
	sem := make(chan struct{}, s.cfg.Workers)

loop:
	for _, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.Execute(ctx, item)
			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return result
}

// Execute runs one item under its key lock, retrying failures. The final
// error is passed to item.HandleError and returned.
func (s *Scheduler) Execute(ctx context.Context, item Item) error {
	unlock := s.lock(item.Key())
	defer unlock()

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   s.cfg.MaxAttempts,
		InitialDelay:  s.cfg.InitialDelay,
		BackoffPolicy: retry.BackoffExponential,
	})

	attempt := 0
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		err := s.attempt(ctx, item)
		if err != nil {
			s.logger.WarnContext(ctx, "pass failed",
				"work_item", item.String(),
				"attempt", attempt,
				"error", err,
			)
		}
		return struct{}{}, err
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", item, err)
		item.HandleError(err)
		return err
	}
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, item Item) error {
	if s.cfg.PassTimeout <= 0 {
		return item.Run(ctx)
	}
	t := timeout.New[struct{}](timeout.Config{DefaultTimeout: s.cfg.PassTimeout})
	_, err := t.Execute(ctx, s.cfg.PassTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, item.Run(ctx)
	})
	return err
}

// lock acquires the mutex for key and returns its release function.
func (s *Scheduler) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
