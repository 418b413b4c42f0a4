// Package report implements the per-run report accumulator: a
// mutex-guarded aggregator with a narrow recording interface. One
// Accumulator is owned per user run and written as that user's report
// document; no report aggregating the whole orchestrator run is produced.
package report

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/usermigrate/migrator/pkg/errtax"
	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/names"
)

// Discrepancy records a single verification mismatch.
type Discrepancy struct {
	SourcePath string `json:"source_path"`
	TargetPath string `json:"target_path"`
	Reason     string `json:"reason"`
}

// Failure records a single copy failure.
type Failure struct {
	SourcePath string `json:"source_path"`
	Error      string `json:"error"`
}

// Snapshot is an immutable point-in-time view of an Accumulator's counters,
// safe to serialize or compare without holding the accumulator's lock.
type Snapshot struct {
	FilesCopied        int                `json:"files_copied"`
	FilesSkipped       int                `json:"files_skipped"`
	BytesTransferred   int64              `json:"bytes_transferred"`
	Discrepancies      []Discrepancy      `json:"discrepancies,omitempty"`
	Failures           []Failure          `json:"failures,omitempty"`
	Renames            []names.Rename     `json:"renames,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at,omitempty"`
	LastError          *errtax.Record     `json:"last_error,omitempty"`
}

// Accumulator is an owned, mutex-guarded collector of per-run outcomes. It
// exposes only a narrow set of recording methods rather than a raw shared
// map.
type Accumulator struct {
	mu        sync.Mutex
	snapshot  Snapshot
}

// New creates an empty accumulator with its start time set to now.
func New() *Accumulator {
	return &Accumulator{snapshot: Snapshot{StartedAt: time.Now()}}
}

// RecordCopied records a successfully copied and verified file.
func (a *Accumulator) RecordCopied(bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.FilesCopied++
	a.snapshot.BytesTransferred += bytes
}

// RecordSkipped records a file skipped because an up-to-date copy already
// exists at the destination.
func (a *Accumulator) RecordSkipped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.FilesSkipped++
}

// RecordDiscrepancy records a verification mismatch.
func (a *Accumulator) RecordDiscrepancy(d Discrepancy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.Discrepancies = append(a.snapshot.Discrepancies, d)
}

// RecordFailure records a copy failure.
func (a *Accumulator) RecordFailure(f Failure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.Failures = append(a.snapshot.Failures, f)
}

// RecordRename records a phase B (or name-truncation) rename.
func (a *Accumulator) RecordRename(r names.Rename) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.Renames = append(a.snapshot.Renames, r)
}

// RecordError sets the most recent error observed during this run.
func (a *Accumulator) RecordError(record *errtax.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.LastError = record
}

// Finish marks the run as finished at the current time.
func (a *Accumulator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot.FinishedAt = time.Now()
}

// Snapshot returns a copy of the current counters, safe to use without
// holding the accumulator's lock.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := a.snapshot
	result.Discrepancies = append([]Discrepancy(nil), a.snapshot.Discrepancies...)
	result.Failures = append([]Failure(nil), a.snapshot.Failures...)
	result.Renames = append([]names.Rename(nil), a.snapshot.Renames...)
	return result
}

// Outcome classifies a user's run from its accumulated snapshot: failed if
// any copy failed outright, completed_with_error if no copy failed but a
// discrepancy was recorded, success otherwise.
func (s Snapshot) Outcome() string {
	if len(s.Failures) > 0 {
		return "failed"
	}
	if len(s.Discrepancies) > 0 {
		return "completed_with_error"
	}
	return "success"
}

// WriteDocument writes a snapshot as a JSON report document at the given
// path beneath reportDirectory, laid out via filesystem.Subpath.
func WriteDocument(reportDirectory, name string, snapshot Snapshot, logger *logging.Logger) error {
	path, err := filesystem.Subpath(reportDirectory, true, name+".json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(path, data, 0600, logger)
}
