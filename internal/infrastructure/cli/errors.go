package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/config"
	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
	"github.com/felixgeelhaar/prnotify/pkg/storage"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		return NewCLIError("invalid configuration", fmt.Sprintf("Fix %s or pass --config", config.DefaultPath), err)
	}

	var histErr *storage.HistoryValidationError
	if errors.As(err, &histErr) {
		return NewCLIError("history does not match the record format", "Restore the history from a backup", err)
	}

	switch {
	case errors.Is(err, vcs.ErrMalformedHash):
		return NewCLIError("malformed commit hash", "Run 'prnotify history --check' to locate the bad record", err)
	case errors.Is(err, storage.ErrInvalidPath):
		return NewCLIError("invalid storage path", "storage.collection must be a plain file name", err)
	}

	return err
}
