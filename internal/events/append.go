// Package events provides per-run event logging for archtest.
// Events are stored in an append-only JSONL file in the run's work dir.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the events file schema version.
const SchemaVersion = "1.0"

// FileName is the events file name inside the work dir.
const FileName = "events.jsonl"

// Event names.
const (
	RunStarted  = "run_started"
	JobStarted  = "job_started"
	JobFinished = "job_finished"
	RunFinished = "run_finished"
)

// Event represents a single event in events.jsonl.
// This is the public contract for the events file format.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	RunID         string         `json:"run_id"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data,omitempty"`
}

// AppendEvent appends a single event to the events.jsonl file.
// The file is created lazily if it doesn't exist.
// Each event is written as a single JSON line followed by newline.
//
// Best-effort: errors are returned but callers should typically ignore them
// and continue with the main operation.
func AppendEvent(path string, e Event) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Sink receives run events. The orchestrator emits from many workers at
// once, so implementations must be safe for concurrent use.
type Sink interface {
	Emit(event string, data map[string]any)
}

// Log is the events.jsonl writer for one run. Writes are serialised so
// concurrent jobs never interleave partial lines.
type Log struct {
	path  string
	runID string
	now   func() time.Time

	mu sync.Mutex
}

// NewLog returns a Log appending to path, stamping every event with runID.
func NewLog(path, runID string) *Log {
	return &Log{path: path, runID: runID, now: time.Now}
}

// Path returns the events file path.
func (l *Log) Path() string {
	return l.path
}

// Emit appends one event. Write failures are dropped.
func (l *Log) Emit(event string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = AppendEvent(l.path, Event{
		SchemaVersion: SchemaVersion,
		Timestamp:     l.now().UTC().Format(time.RFC3339),
		RunID:         l.runID,
		Event:         event,
		Data:          data,
	})
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(string, map[string]any) {}

// RunStartedData returns the data map for a run_started event.
func RunStartedData(identity, mode string, jobs, parallelism int) map[string]any {
	return map[string]any{
		"identity":    identity,
		"mode":        mode,
		"jobs":        jobs,
		"parallelism": parallelism,
	}
}

// JobStartedData returns the data map for a job_started event.
func JobStartedData(jobID, test string) map[string]any {
	return map[string]any{
		"job_id": jobID,
		"test":   test,
	}
}

// JobFinishedData returns the data map for a job_finished event.
// errorCode is empty for a successful job; step names the failing step.
func JobFinishedData(jobID, test, state string, durationMS int64, errorCode, step string) map[string]any {
	data := map[string]any{
		"job_id":      jobID,
		"test":        test,
		"state":       state,
		"duration_ms": durationMS,
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	if step != "" {
		data["step"] = step
	}
	return data
}

// RunFinishedData returns the data map for a run_finished event.
func RunFinishedData(outcome string, succeeded, failed int, durationMS int64) map[string]any {
	return map[string]any{
		"outcome":     outcome,
		"succeeded":   succeeded,
		"failed":      failed,
		"duration_ms": durationMS,
	}
}
