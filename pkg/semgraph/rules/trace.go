package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// TraceEntry records one triggered rule: which rule, which node, what
// was applied. The trace is append-only and never feeds back into
// evaluation.
type TraceEntry struct {
	At      int64             `json:"at"`
	RunID   string            `json:"run_id,omitempty"`
	RuleID  string            `json:"rule_id"`
	Term    string            `json:"term"`
	Effects map[string]string `json:"effects,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Trace collects audit entries, optionally mirroring each one to an
// append-only JSONL sink.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
	w       io.Writer
	runID   string
}

// NewTrace returns an in-memory trace stamped with runID.
func NewTrace(runID string) *Trace {
	return &Trace{runID: runID}
}

// OpenTrace appends entries to the JSONL audit log at path as well.
func OpenTrace(runID, path string) (*Trace, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open audit log %s: %v", semgraph.ErrIO, path, err)
	}
	return &Trace{runID: runID, w: f}, f, nil
}

// Append records one entry, stamping run id and timestamp.
func (t *Trace) Append(e TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.At == 0 {
		e.At = time.Now().Unix()
	}
	if e.RunID == "" {
		e.RunID = t.runID
	}
	t.entries = append(t.entries, e)
	if t.w != nil {
		if data, err := json.Marshal(e); err == nil {
			t.w.Write(append(data, '\n'))
		}
	}
}

// Entries returns a copy of the collected entries.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of collected entries.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
