// Package journal implements a crash-consistent, dual-written global state
// document: atomic per-file replace, sidecar-lock-guarded read-modify-write,
// and a narrow supervisor-only projection written last in each transaction.
// Atomic rename (not the lock) is what guarantees a reader never observes a
// torn write; the lock is a politeness optimization against concurrent
// writers, not a correctness requirement.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/usermigrate/migrator/pkg/errtax"
	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/filesystem/locking"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/state"
)

// GlobalStatus is the overall migration run status.
type GlobalStatus string

const (
	StatusIdle                GlobalStatus = "idle"
	StatusInProgress          GlobalStatus = "in_progress"
	StatusSuccess             GlobalStatus = "success"
	StatusFailed              GlobalStatus = "failed"
	StatusCompletedWithErrors GlobalStatus = "completed_with_error"
)

// UserStatus is a single user's per-run migration status.
type UserStatus string

const (
	UserPending             UserStatus = "pending"
	UserInProgress          UserStatus = "in_progress"
	UserSuccess             UserStatus = "success"
	UserFailed              UserStatus = "failed"
	UserCompletedWithErrors UserStatus = "completed_with_error"
)

// IsTerminal reports whether status is a terminal per-user status: one
// that will not change for the remainder of the run.
func (s UserStatus) IsTerminal() bool {
	switch s {
	case UserSuccess, UserFailed, UserCompletedWithErrors:
		return true
	default:
		return false
	}
}

// GlobalState is the top-level status record, serialized verbatim as the
// "global" field of the journal document.
type GlobalState struct {
	Status          GlobalStatus   `json:"status"`
	LastUpdate      time.Time      `json:"last_update"`
	LastHeartbeat   time.Time      `json:"last_heartbeat"`
	CurrentUser     string         `json:"current_user,omitempty"`
	TotalUsers      int            `json:"total_users"`
	UsersCompleted  int            `json:"users_completed"`
	UsersFailed     int            `json:"users_failed"`
	UsersInProgress int            `json:"users_in_progress"`
	LastError       *errtax.Record `json:"last_error,omitempty"`
}

// Document is the full journal document: the global state plus every
// user's current status, keyed by target Linux username.
type Document struct {
	Global GlobalState           `json:"global"`
	Users  map[string]UserStatus `json:"users"`
}

// emptyDocument returns a freshly initialized, zero-progress document.
func emptyDocument() Document {
	return Document{
		Global: GlobalState{Status: StatusIdle},
		Users:  make(map[string]UserStatus),
	}
}

// Projection is the supervisor-only read projection: a strict subset of the
// global document, written last in each transaction so its presence
// implies the main files were written successfully this transaction.
type Projection struct {
	SupervisorTimestamp time.Time      `json:"supervisor_timestamp"`
	Status              GlobalStatus   `json:"status"`
	LastHeartbeat       time.Time      `json:"last_heartbeat"`
	CurrentUser         string         `json:"current_user,omitempty"`
	UsersInProgress     int            `json:"users_in_progress"`
	ProgressPercent     float64        `json:"progress_percent"`
	LastError           *errtax.Record `json:"last_error,omitempty"`
}

// Paths holds the fixed set of files the journal reads and writes.
// LocalState and the three
// service files always exist once a write has occurred; NetworkState is
// best-effort and may be empty if the remote share isn't available.
type Paths struct {
	NetworkState        string
	LocalState           string
	ServiceFull          string
	ServiceMinimal       string
	SupervisorProjection string
	Lock                 string
}

// PathsUnder lays out the journal's fixed file set beneath root using
// filesystem.Subpath, creating parent directories as needed.
func PathsUnder(root string) (Paths, error) {
	var paths Paths
	var err error
	for _, entry := range []struct {
		name string
		dest *string
	}{
		{"network-state.json", &paths.NetworkState},
		{"local-state.json", &paths.LocalState},
		{"service-full.json", &paths.ServiceFull},
		{"service-minimal.json", &paths.ServiceMinimal},
		{"supervisor-projection.json", &paths.SupervisorProjection},
		{"journal.lock", &paths.Lock},
	} {
		*entry.dest, err = filesystem.Subpath(root, true, entry.name)
		if err != nil {
			return Paths{}, fmt.Errorf("unable to compute journal path for %s: %w", entry.name, err)
		}
	}
	return paths, nil
}

// lockTimeout bounds how long Write waits to acquire the sidecar lock
// before proceeding in degraded (unlocked) mode.
const lockTimeout = 5 * time.Second

// lockPollInterval is the polling interval used while waiting for the
// lock.
const lockPollInterval = 50 * time.Millisecond

// readRetryAttempts bounds how many times Load retries a read that sees
// momentarily malformed JSON (a write caught mid-rename on some platforms,
// or a reader racing a concurrent writer that hasn't finished yet).
const readRetryAttempts = 3

// readRetryDelay is the pause between read retries.
const readRetryDelay = 20 * time.Millisecond

// Store provides locked, atomic access to a journal at a fixed set of
// paths. The orchestrator owns the only Store instance that writes; the
// supervisor uses Load/LoadProjection only and never locks. In-process
// callers within the orchestrator (e.g. a CLI watch mode) can block on
// WaitForChange instead of polling Load on a timer.
type Store struct {
	paths  Paths
	logger *logging.Logger

	lock    *state.TrackingLock
	tracker *state.Tracker
}

// NewStore creates a journal store rooted at the given paths.
func NewStore(paths Paths, logger *logging.Logger) *Store {
	tracker := state.NewTracker()
	return &Store{
		paths:   paths,
		logger:  logger,
		lock:    state.NewTrackingLock(tracker),
		tracker: tracker,
	}
}

// WaitForChange blocks until a Write call completes after previousIndex was
// observed, or ctx is cancelled, returning the index at which the change
// was observed. A previousIndex of 0 returns the current index
// immediately, which callers can use to seed the first wait.
func (s *Store) WaitForChange(ctx context.Context, previousIndex uint64) (uint64, error) {
	return s.tracker.WaitForChange(ctx, previousIndex)
}

// Load returns the current document, attempting the remote (network) copy
// first and falling back to the local copy. A missing or partially written
// file yields an empty document rather than an error, so a first-ever run
// starts cleanly.
func (s *Store) Load() (Document, error) {
	for _, path := range []string{s.paths.NetworkState, s.paths.LocalState} {
		if doc, ok := loadWithRetry(path); ok {
			return doc, nil
		}
	}
	return emptyDocument(), nil
}

// loadWithRetry attempts to read and decode the document at path, retrying
// briefly on a JSON decode error to tolerate a reader racing a concurrent
// writer. It reports false if the file is absent or never parses within
// the retry budget.
func loadWithRetry(path string) (Document, bool) {
	var lastErr error
	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Document{}, false
			}
			lastErr = err
			time.Sleep(readRetryDelay)
			continue
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			lastErr = err
			time.Sleep(readRetryDelay)
			continue
		}
		return doc, true
	}
	_ = lastErr
	return Document{}, false
}

// Write performs an atomic replace of every journal file for the given
// document, guarded by a bounded-timeout advisory lock. On lock-acquisition
// timeout, the write proceeds without the lock (a warning is logged) since
// atomic rename alone guarantees no reader ever observes a torn write. The
// supervisor projection is written last so its freshness implies the main
// document was written successfully in this transaction. The write is
// considered successful if at least one of the network/local files
// committed.
func (s *Store) Write(doc Document) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	locker, lockErr := locking.NewLocker(s.paths.Lock, 0600)
	if lockErr == nil {
		if err := locker.LockTimeout(lockTimeout, lockPollInterval); err != nil {
			s.logger.Warnf("Proceeding with unlocked journal write: %s", err.Error())
		}
		defer locker.Close()
	} else {
		s.logger.Warnf("Unable to open journal lock file: %s", lockErr.Error())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal journal document: %w", err)
	}

	var committed bool
	if err := filesystem.WriteFileAtomic(s.paths.LocalState, data, 0600, s.logger); err != nil {
		s.logger.Errorf("Unable to write local journal state: %s", err.Error())
	} else {
		committed = true
	}

	if s.paths.NetworkState != "" {
		if err := filesystem.WriteFileAtomic(s.paths.NetworkState, data, 0600, s.logger); err != nil {
			s.logger.Warnf("Unable to write remote journal state: %s", err.Error())
		} else {
			committed = true
		}
	}

	if err := filesystem.WriteFileAtomic(s.paths.ServiceFull, data, 0600, s.logger); err != nil {
		s.logger.Warnf("Unable to write service-full journal copy: %s", err.Error())
	}

	minimalData, err := json.Marshal(summarize(doc))
	if err == nil {
		if err := filesystem.WriteFileAtomic(s.paths.ServiceMinimal, minimalData, 0600, s.logger); err != nil {
			s.logger.Warnf("Unable to write service-minimal journal copy: %s", err.Error())
		}
	}

	projection := ProjectionFor(doc)
	projectionData, err := json.Marshal(projection)
	if err != nil {
		return fmt.Errorf("unable to marshal supervisor projection: %w", err)
	}
	if err := filesystem.WriteFileAtomic(s.paths.SupervisorProjection, projectionData, 0600, s.logger); err != nil {
		s.logger.Warnf("Unable to write supervisor projection: %s", err.Error())
	}

	if !committed {
		return fmt.Errorf("journal write failed: neither local nor remote state file was updated")
	}
	return nil
}

// summarize produces the service-minimal document: the same shape as the
// supervisor projection, reused here since both are precomputed summaries
// for lower-latency consumers.
func summarize(doc Document) Projection {
	return ProjectionFor(doc)
}

// ProjectionFor computes the supervisor-only projection of a document.
func ProjectionFor(doc Document) Projection {
	return Projection{
		SupervisorTimestamp: time.Now(),
		Status:              doc.Global.Status,
		LastHeartbeat:       doc.Global.LastHeartbeat,
		CurrentUser:         doc.Global.CurrentUser,
		UsersInProgress:     doc.Global.UsersInProgress,
		ProgressPercent:     progressPercent(doc.Global),
		LastError:           doc.Global.LastError,
	}
}

// progressPercent computes the fraction of users that have reached a
// terminal state, as a percentage.
func progressPercent(global GlobalState) float64 {
	if global.TotalUsers == 0 {
		return 0
	}
	done := global.UsersCompleted + global.UsersFailed
	return 100 * float64(done) / float64(global.TotalUsers)
}

// UpdateGlobal performs a read-modify-write of the global state under lock:
// it loads the current document, applies patch to the global state, and
// writes the result back.
func (s *Store) UpdateGlobal(patch func(*GlobalState)) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	if doc.Users == nil {
		doc.Users = make(map[string]UserStatus)
	}
	patch(&doc.Global)
	doc.Global.LastUpdate = time.Now()
	return s.Write(doc)
}

// UpdateUser performs a read-modify-write setting a single user's status.
func (s *Store) UpdateUser(user string, status UserStatus) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	if doc.Users == nil {
		doc.Users = make(map[string]UserStatus)
	}
	doc.Users[user] = status
	doc.Global.LastUpdate = time.Now()
	return s.Write(doc)
}

// LoadProjection reads only the supervisor projection file, with a short
// per-call timeout enforced by the caller (the supervisor never locks and
// never reads the full document). It returns a zero Projection and false if
// the file is missing or fails to parse; the read is attempted once.
func (s *Store) LoadProjection() (Projection, bool) {
	data, err := os.ReadFile(s.paths.SupervisorProjection)
	if err != nil {
		return Projection{}, false
	}
	var projection Projection
	if err := json.Unmarshal(data, &projection); err != nil {
		return Projection{}, false
	}
	return projection, true
}
