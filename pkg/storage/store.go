// Package storage persists notification history.
//
// A Store holds one whole collection: every read decodes the full collection
// from its Backend and every write replaces it. Backends are files, Redis
// keys or SQLite rows.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Backend reads and replaces a single serialized collection.
type Backend interface {
	// Load returns the stored bytes, or nil if nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)
	// Save atomically replaces the stored bytes.
	Save(ctx context.Context, data []byte) error
}

// Serializer renders the collection that results from adding items to
// existing. Items in added replace existing items with the same key.
type Serializer[T any] func(added []T, existing []T) ([]byte, error)

// Deserializer parses a stored collection. It must accept empty input.
type Deserializer[T any] func(data []byte) ([]T, error)

// Store is a materialized collection of T kept in a Backend.
type Store[T any] struct {
	// mu serializes the read-modify-write of Put within a process.
	mu          sync.Mutex
	backend     Backend
	serialize   Serializer[T]
	deserialize Deserializer[T]
}

// Materialize binds a backend to a codec.
func Materialize[T any](backend Backend, serialize Serializer[T], deserialize Deserializer[T]) *Store[T] {
	return &Store[T]{
		backend:     backend,
		serialize:   serialize,
		deserialize: deserialize,
	}
}

// Current reads and decodes the stored collection. Nothing is cached
// between calls.
func (s *Store[T]) Current(ctx context.Context) ([]T, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	items, err := s.deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return items, nil
}

// Put merges items into the stored collection and writes it back whole.
func (s *Store[T]) Put(ctx context.Context, items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Current(ctx)
	if err != nil {
		return err
	}
	data, err := s.serialize(items, existing)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// Raw returns the stored bytes without decoding them.
func (s *Store[T]) Raw(ctx context.Context) ([]byte, error) {
	return s.backend.Load(ctx)
}
