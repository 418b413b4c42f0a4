package supervisor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
)

// WriteSnapshot atomically writes the watchdog's own FSM snapshot to path.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("unable to marshal supervisor snapshot: %w", err)
	}
	return filesystem.WriteFileAtomic(path, data, 0600, logging.RootLogger)
}

// ReadSnapshot reads a previously written watchdog snapshot, returning the
// zero value and false if the file is absent or malformed.
func ReadSnapshot(path string) (Snapshot, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false
	}
	return snapshot, true
}

// Status is the combined report surfaced by the "status" CLI subcommand:
// the journal's supervisor projection plus the watchdog's own restart
// bookkeeping.
type Status struct {
	journal.Projection
	RestartCount int   `json:"restart_count"`
	State        State `json:"state"`
}

// LoadStatus combines the journal projection with the watchdog's
// persisted snapshot into a single report for the "status" subcommand.
func LoadStatus(store *journal.Store, statePath string) Status {
	projection, _ := store.LoadProjection()
	snapshot, _ := ReadSnapshot(statePath)
	return Status{
		Projection:   projection,
		RestartCount: snapshot.RestartCount,
		State:        snapshot.State,
	}
}

// CheckMigration reports whether the journal shows a terminal success
// status, for the "check-migration" subcommand's exit code.
func CheckMigration(store *journal.Store) bool {
	projection, ok := store.LoadProjection()
	return ok && projection.Status == journal.StatusSuccess
}
