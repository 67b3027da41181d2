package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeItem struct {
	key     string
	run     func(ctx context.Context) error
	handled []error
	mu      sync.Mutex
}

func (f *fakeItem) Key() string                   { return f.key }
func (f *fakeItem) Run(ctx context.Context) error { return f.run(ctx) }
func (f *fakeItem) String() string                { return "fake@" + f.key }
func (f *fakeItem) HandleError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, err)
}

func testConfig() Config {
	return Config{Workers: 4, MaxAttempts: 3, InitialDelay: time.Millisecond}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	s := New(testConfig(), nil)
	calls := 0
	item := &fakeItem{key: "a", run: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}}

	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(item.handled) != 0 {
		t.Errorf("HandleError should not be called, got %v", item.handled)
	}
}

func TestExecute_FinalFailureGoesToHandleError(t *testing.T) {
	s := New(testConfig(), nil)
	boom := errors.New("store unavailable")
	item := &fakeItem{key: "a", run: func(context.Context) error { return boom }}

	err := s.Execute(context.Background(), item)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if len(item.handled) != 1 || !errors.Is(item.handled[0], boom) {
		t.Errorf("HandleError calls = %v", item.handled)
	}
}

func TestExecute_PassTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.PassTimeout = 20 * time.Millisecond
	s := New(cfg, nil)

	item := &fakeItem{key: "slow", run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}}

	if err := s.Execute(context.Background(), item); err == nil {
		t.Error("expected timeout error")
	}
	if len(item.handled) != 1 {
		t.Errorf("expected one handled error, got %d", len(item.handled))
	}
}

func TestRunAll_SameKeyNeverOverlaps(t *testing.T) {
	s := New(testConfig(), nil)

	var running, maxRunning int32
	run := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	items := make([]Item, 0, 8)
	for i := 0; i < 8; i++ {
		items = append(items, &fakeItem{key: "openjdk/jdk#1", run: run})
	}

	result := s.RunAll(context.Background(), items)
	if result.Succeeded != 8 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if maxRunning != 1 {
		t.Errorf("same-key items overlapped: max concurrency %d", maxRunning)
	}
	if len(s.locks) != 0 {
		t.Errorf("key locks leaked: %d", len(s.locks))
	}
}

func TestRunAll_DifferentKeysRunConcurrently(t *testing.T) {
	s := New(testConfig(), nil)

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	run := func(context.Context) error {
		started.Done()
		<-release
		return nil
	}

	go func() {
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		close(release)
	}()

	items := []Item{
		&fakeItem{key: "openjdk/jdk#1", run: run},
		&fakeItem{key: "openjdk/jfx#1", run: run},
	}
	start := time.Now()
	result := s.RunAll(context.Background(), items)
	if result.Succeeded != 2 {
		t.Errorf("result = %+v", result)
	}
	if time.Since(start) >= 2*time.Second {
		t.Error("items with different keys did not run concurrently")
	}
}

func TestRunAll_CountsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	s := New(cfg, nil)

	items := make([]Item, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		items = append(items, &fakeItem{key: fmt.Sprintf("k%d", i), run: func(context.Context) error {
			if i%2 == 0 {
				return errors.New("fail")
			}
			return nil
		}})
	}

	result := s.RunAll(context.Background(), items)
	if result.Succeeded != 2 || result.Failed != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, nil)
	def := DefaultConfig()
	if s.cfg.Workers != def.Workers || s.cfg.MaxAttempts != def.MaxAttempts || s.cfg.InitialDelay != def.InitialDelay {
		t.Errorf("cfg = %+v, want defaults %+v", s.cfg, def)
	}
}
