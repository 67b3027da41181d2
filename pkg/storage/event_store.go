package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/google/uuid"
)

// EventsFile is the audit log of dispatched notifications.
const EventsFile = "events.jsonl"

// Violation is one break in the hash chain of the event log.
type Violation struct {
	Index   int
	EventID string
	// PrevMismatch is set when the event does not point at its predecessor;
	// otherwise its own hash does not match its content.
	PrevMismatch bool
}

func (v Violation) String() string {
	if v.PrevMismatch {
		return fmt.Sprintf("event %d (%s): previous hash mismatch", v.Index, v.EventID)
	}
	return fmt.Sprintf("event %d (%s): hash mismatch", v.Index, v.EventID)
}

// FileEventStore implements events.EventStore on a JSON Lines file in which
// every event carries the hash of its predecessor.
type FileEventStore struct {
	mu       sync.RWMutex
	path     string
	basePath string
	lastHash string
}

// NewFileEventStore opens the log in basePath. The directory is created on
// first write.
func NewFileEventStore(basePath string) (*FileEventStore, error) {
	path, err := ResolvePath(basePath, EventsFile)
	if err != nil {
		return nil, err
	}
	store := &FileEventStore{path: path, basePath: basePath}

	err = store.scan(func(_ int, e *events.BaseEvent) {
		store.lastHash = e.Hash
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Append chains event to the tail of the log and writes it. A missing id or
// timestamp is filled in.
func (s *FileEventStore) Append(event *events.BaseEvent) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.PrevHash = s.lastHash
	event.Hash = event.CalculateHash()

	if err := os.MkdirAll(s.basePath, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close events file: %w", cerr)
		}
	}()

	// Encode writes the trailing newline that terminates the line.
	if err := json.NewEncoder(f).Encode(event); err != nil {
		return fmt.Errorf("write event %s: %w", event.ID, err)
	}
	s.lastHash = event.Hash
	return nil
}

// LoadAll returns all events in append order.
func (s *FileEventStore) LoadAll() ([]*events.BaseEvent, error) {
	return s.collect(func(*events.BaseEvent) bool { return true })
}

// LoadByAggregate returns the events of one pull request in append order.
func (s *FileEventStore) LoadByAggregate(pullRequestID string) ([]*events.BaseEvent, error) {
	return s.collect(func(e *events.BaseEvent) bool { return e.AggregateID() == pullRequestID })
}

// VerifyIntegrity walks the chain and reports every event whose links do not
// hold. An empty result means the log is intact.
func (s *FileEventStore) VerifyIntegrity() ([]Violation, error) {
	var (
		violations []Violation
		prev       string
	)
	err := s.scan(func(i int, e *events.BaseEvent) {
		if e.PrevHash != prev {
			violations = append(violations, Violation{Index: i, EventID: e.ID, PrevMismatch: true})
		}
		if e.Hash != e.CalculateHash() {
			violations = append(violations, Violation{Index: i, EventID: e.ID})
		}
		prev = e.Hash
	})
	return violations, err
}

// Path returns the log file location.
func (s *FileEventStore) Path() string {
	return filepath.Clean(s.path)
}

func (s *FileEventStore) collect(keep func(*events.BaseEvent) bool) ([]*events.BaseEvent, error) {
	var result []*events.BaseEvent
	err := s.scan(func(_ int, e *events.BaseEvent) {
		if keep(e) {
			result = append(result, e)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scan decodes the log one event at a time. A missing file is an empty log.
func (s *FileEventStore) scan(fn func(i int, e *events.BaseEvent)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	dec := json.NewDecoder(f)
	for i := 0; ; i++ {
		var e events.BaseEvent
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode event %d of %s: %w", i, s.path, err)
		}
		fn(i, &e)
	}
}
