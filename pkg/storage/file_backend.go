package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// StateDir is the default directory for local state, relative to the
// working directory.
const StateDir = ".prnotify"

// HistoryFile is the default name of the notification history.
const HistoryFile = "history.json"

// ErrInvalidPath is returned for file names that would escape the state
// directory.
var ErrInvalidPath = errors.New("invalid file path")

// FileBackend keeps a collection in a single file.
type FileBackend struct {
	dir         string
	path        string
	retryConfig retry.Config
}

// NewFileBackend creates a backend for dir/name. name must be a plain file
// name inside dir.
func NewFileBackend(dir, name string) (*FileBackend, error) {
	path, err := ResolvePath(dir, name)
	if err != nil {
		return nil, err
	}
	return &FileBackend{
		dir:  filepath.Clean(dir),
		path: path,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}, nil
}

// ResolvePath joins dir and name and rejects traversal or nested paths.
func ResolvePath(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: file name cannot be empty", ErrInvalidPath)
	}

	baseDir := filepath.Clean(dir)
	cleanPath := filepath.Clean(filepath.Join(baseDir, name))
	if !strings.HasPrefix(cleanPath, baseDir) || filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, name)
	}
	return cleanPath, nil
}

// Path returns the file the backend reads and writes.
func (b *FileBackend) Path() string { return b.path }

// Load reads the file, retrying transient failures. A missing file is an
// empty collection.
func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	retryer := retry.New[[]byte](b.retryConfig)

	return retryer.Do(ctx, func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		data, err := os.ReadFile(b.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read %s: %w", b.path, err)
		}
		return data, nil
	})
}

// Save writes data to a temporary file and renames it over the target, so
// readers see either the old or the new collection.
func (b *FileBackend) Save(ctx context.Context, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	// G301: Use 0700 for directories
	if err := os.MkdirAll(b.dir, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	// G306: Use 0600 for files
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replace %s: %w", b.path, err)
	}
	return nil
}
