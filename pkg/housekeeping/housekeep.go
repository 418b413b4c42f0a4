// Package housekeeping implements the orchestrator's startup sweep of stale
// per-user checkpoint files, run once before migration begins rather than on
// a recurring timer.
package housekeeping

import (
	"os"
	"path/filepath"
	"time"

	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/must"
)

// TerminalUsers reports whether a user has already reached the terminal
// "success" state in the journal's global state. Only checkpoints belonging
// to such users are eligible for removal.
type TerminalUsers func(userID string) bool

// Sweep removes checkpoint files under checkpointDirectory that are older
// than maxAge and belong to a user reported as terminal by isTerminal.
// Checkpoint file names are expected to be "<userID>.json". Failures reading
// individual entries are logged and skipped rather than aborting the sweep,
// since housekeeping is janitorial and must never block a migration run.
func Sweep(checkpointDirectory string, maxAge time.Duration, isTerminal TerminalUsers, logger *logging.Logger) {
	entries, err := os.ReadDir(checkpointDirectory)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Unable to list checkpoint directory: %s", err.Error())
		}
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		userID := userIDFromCheckpointName(name)
		if userID == "" || !isTerminal(userID) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warnf("Unable to stat checkpoint '%s': %s", name, err.Error())
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}

		fullPath := filepath.Join(checkpointDirectory, name)
		logger.Infof("Removing stale checkpoint for terminal user '%s'", userID)
		must.OSRemove(fullPath, logger)
	}
}

// userIDFromCheckpointName extracts the user ID from a checkpoint file name
// of the form "<userID>.json", returning "" if the name doesn't match.
func userIDFromCheckpointName(name string) string {
	const suffix = ".json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return ""
	}
	return name[:len(name)-len(suffix)]
}
