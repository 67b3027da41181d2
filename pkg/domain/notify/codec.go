package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/prnotify/pkg/domain/vcs"
)

// record is the persisted form of a Snapshot. Commit is kept raw so the
// decoder can tell a missing key from an explicit null.
type record struct {
	PR     string          `json:"pr"`
	Issues []string        `json:"issues"`
	Commit json.RawMessage `json:"commit,omitempty"`
}

var jsonNull = json.RawMessage("null")

var errEmptyID = errors.New("decode pr: empty pull request id")

// EncodeSnapshots merges added into existing, replacing entries with the same
// id, and renders the collection sorted by id with one record per line.
// Unknown commits are written as null; placeholder commits are omitted.
func EncodeSnapshots(added, existing []Snapshot) ([]byte, error) {
	replaced := make(map[string]struct{}, len(added))
	for _, s := range added {
		replaced[s.ID] = struct{}{}
	}

	all := make([]Snapshot, 0, len(existing)+len(added))
	for _, s := range existing {
		if _, ok := replaced[s.ID]; !ok {
			all = append(all, s)
		}
	}
	all = append(all, added...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, s := range all {
		line, err := json.Marshal(toRecord(s))
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot %s: %w", s.ID, err)
		}
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.Write(line)
	}
	buf.WriteString("\n]")
	return buf.Bytes(), nil
}

func toRecord(s Snapshot) record {
	r := record{PR: s.ID, Issues: s.Issues.Sorted()}
	switch s.Commit.State() {
	case CommitKnown:
		h, _ := s.Commit.Hash()
		r.Commit, _ = json.Marshal(h.Hex())
	case CommitUnknown:
		r.Commit = jsonNull
	}
	return r
}

// DecodeSnapshots parses a persisted collection. Blank input is an empty
// collection. A record without a commit key predates commit tracking and
// decodes to the placeholder commit.
func DecodeSnapshots(data []byte) ([]Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal snapshots: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(raw))
	for i, obj := range raw {
		s, err := fromRecord(obj)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

func fromRecord(obj map[string]json.RawMessage) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(obj["pr"], &s.ID); err != nil {
		return Snapshot{}, fmt.Errorf("decode pr: %w", err)
	}
	if s.ID == "" {
		return Snapshot{}, errEmptyID
	}

	var issues []string
	if rawIssues, ok := obj["issues"]; ok {
		if err := json.Unmarshal(rawIssues, &issues); err != nil {
			return Snapshot{}, fmt.Errorf("decode issues of %s: %w", s.ID, err)
		}
	}
	s.Issues = NewIssueSet(issues...)

	rawCommit, ok := obj["commit"]
	switch {
	case !ok:
		s.Commit = PlaceholderCommit()
	case bytes.Equal(bytes.TrimSpace(rawCommit), jsonNull):
		s.Commit = UnknownCommit()
	default:
		var hex string
		if err := json.Unmarshal(rawCommit, &hex); err != nil {
			return Snapshot{}, fmt.Errorf("decode commit of %s: %w", s.ID, err)
		}
		h, err := vcs.ParseHash(hex)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode commit of %s: %w", s.ID, err)
		}
		s.Commit = KnownCommit(h)
	}
	return s, nil
}
