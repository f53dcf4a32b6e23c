// File: internal/audit/audit.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one audit record. Entries are append-only: the trail never
// mutates or deletes what it has written; retention is not this package's
// concern.
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	EventID          string    `json:"event_id"`
	SessionID        string    `json:"session_id"`
	Event            string    `json:"event"`
	ActionKind       string    `json:"action_kind,omitempty"`
	ParametersSum    string    `json:"parameters_summary,omitempty"`
	ValidatorDecision string   `json:"validator_decision,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	ExecutionSuccess *bool     `json:"execution_success,omitempty"`
	Message          string    `json:"message,omitempty"`
}

// Event names recorded by the pipeline.
const (
	EventSessionStart = "session_start"
	EventInstruction  = "instruction_received"
	EventSafetyCheck  = "safety_check"
	EventActionResult = "action_executed"
	EventPlanFallback = "plan_fallback"
	EventRunComplete  = "run_complete"
)

// Sink receives a copy of every entry, for persistent backends. Sink
// failures never fail the trail; they are logged and dropped.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Trail is the append-only, ordering-preserving audit log for one session.
// It writes one JSON object per line to one file per calendar day, rolling
// to a new file when the date changes. All appends are serialized: entries
// from concurrent writers never interleave.
type Trail struct {
	mu        sync.Mutex
	dir       string
	sessionID string
	seq       int
	file      *os.File
	day       string
	sinks     []Sink
	logger    *zap.Logger
	now       func() time.Time
}

// NewTrail opens (or creates) today's audit file under dir and records the
// session-start event.
func NewTrail(dir, sessionID string, logger *zap.Logger) (*Trail, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	t := &Trail{
		dir:       dir,
		sessionID: sessionID,
		logger:    logger.Named("audit"),
		now:       time.Now,
	}
	if err := t.Record(context.Background(), Entry{
		Event:   EventSessionStart,
		Message: "session started",
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// SessionID returns the session identifier entries are tagged with.
func (t *Trail) SessionID() string { return t.sessionID }

// AddSink registers an additional persistent backend.
func (t *Trail) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Record stamps and appends one entry. The timestamp, sequence-based event
// ID and session ID are assigned here so callers only fill the payload
// fields.
func (t *Trail) Record(ctx context.Context, e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	e.Timestamp = t.now().UTC()
	e.SessionID = t.sessionID
	e.EventID = fmt.Sprintf("%s_%06d", t.sessionID, t.seq)

	if err := t.ensureFileLocked(e.Timestamp); err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	for _, sink := range t.sinks {
		if err := sink.Write(ctx, e); err != nil {
			t.logger.Warn("Audit sink write failed", zap.Error(err), zap.String("event_id", e.EventID))
		}
	}
	return nil
}

// ensureFileLocked opens the day file for ts, rolling over at midnight.
// Caller holds t.mu.
func (t *Trail) ensureFileLocked(ts time.Time) error {
	day := ts.Format("20060102")
	if t.file != nil && day == t.day {
		return nil
	}
	if t.file != nil {
		_ = t.file.Close()
	}

	path := filepath.Join(t.dir, fmt.Sprintf("audit_%s.jsonl", day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", path, err)
	}
	t.file = f
	t.day = day
	return nil
}

// Close flushes and closes the current day file.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
