package storage

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed history.schema.json
var historySchema string

// NewSnapshotStore binds a backend to the notification history codec.
func NewSnapshotStore(backend Backend) *Store[notify.Snapshot] {
	return Materialize[notify.Snapshot](backend, notify.EncodeSnapshots, notify.DecodeSnapshots)
}

// HistoryValidationError lists the schema violations of a stored history.
type HistoryValidationError struct {
	Violations []string
}

func (e *HistoryValidationError) Error() string {
	return fmt.Sprintf("history does not match schema: %s", strings.Join(e.Violations, "; "))
}

// ValidateHistory checks serialized history against the persisted record
// format. Blank input is valid.
func ValidateHistory(data []byte) error {
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(historySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate history: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return &HistoryValidationError{Violations: violations}
}
