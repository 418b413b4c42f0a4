// Package checkpoint implements the per-user resumable progress record
// described by spec component C4/C5: a mapping from absolute source path
// to the outcome of copying and verifying that file, persisted atomically
// so a restarted run can skip already-verified entries.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/logging"
)

// Entry records the outcome of copying a single source file.
type Entry struct {
	TargetPath string    `json:"target_path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mtime"`
	Verified   bool      `json:"verified"`
	Timestamp  time.Time `json:"timestamp"`
}

// Checkpoint is a single user's append-mostly progress record: once an
// entry has Verified=true it is not rewritten unless the source mtime
// changes. Access is synchronized since copy workers update it
// concurrently.
type Checkpoint struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// Load reads the checkpoint file at path, returning an empty checkpoint if
// the file does not yet exist.
func Load(path string) (*Checkpoint, error) {
	checkpoint := &Checkpoint{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint, nil
		}
		return nil, fmt.Errorf("unable to read checkpoint: %w", err)
	}

	if err := json.Unmarshal(data, &checkpoint.entries); err != nil {
		return nil, fmt.Errorf("unable to decode checkpoint: %w", err)
	}
	return checkpoint, nil
}

// Get returns the recorded entry for a source path, if any.
func (c *Checkpoint) Get(sourcePath string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sourcePath]
	return entry, ok
}

// IsVerifiedCurrent reports whether sourcePath has a verified checkpoint
// entry whose recorded mtime still matches sourceModTime; such an entry
// means the file can be skipped on resume.
func (c *Checkpoint) IsVerifiedCurrent(sourcePath string, sourceModTime time.Time) bool {
	entry, ok := c.Get(sourcePath)
	if !ok || !entry.Verified {
		return false
	}
	return entry.ModTime.Equal(sourceModTime)
}

// Record inserts or updates the entry for a source path. An
// already-verified entry is only overwritten
// when the new entry's ModTime differs from the existing one (i.e. the
// source file changed since it was last verified).
func (c *Checkpoint) Record(sourcePath string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[sourcePath]; ok && existing.Verified {
		if existing.ModTime.Equal(entry.ModTime) {
			return
		}
	}
	c.entries[sourcePath] = entry
}

// Len reports the number of recorded entries.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// VerifiedCount reports the number of entries recorded as verified.
func (c *Checkpoint) VerifiedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, entry := range c.entries {
		if entry.Verified {
			count++
		}
	}
	return count
}

// Save writes the checkpoint to its file atomically.
func (c *Checkpoint) Save(logger *logging.Logger) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unable to marshal checkpoint: %w", err)
	}
	return filesystem.WriteFileAtomic(c.path, data, 0600, logger)
}

// PathFor computes the checkpoint file path for a user beneath a
// configured checkpoint directory, using filesystem.Subpath.
func PathFor(checkpointDirectory, userID string) (string, error) {
	return filesystem.Subpath(checkpointDirectory, true, userID+".json")
}
