// Package migration implements the per-user two-phase migration pipeline
// (spec component C5): phase A copies and verifies files while preserving
// source-relative structure (applying the BrowserData redirection inline),
// and phase B performs the deferred special-folder directory renames.
// Progress is persisted to a per-user checkpoint so an interrupted run can
// resume.
package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/usermigrate/migrator/pkg/checkpoint"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/errtax"
	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/hashindex"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/names"
	"github.com/usermigrate/migrator/pkg/pathmap"
	"github.com/usermigrate/migrator/pkg/report"
	"golang.org/x/sys/unix"
)

// Re-exported integrity method constants, so callers configuring an Engine
// don't need to import pkg/config directly for this one concept.
const (
	IntegrityHash     = config.IntegrityHash
	IntegritySize     = config.IntegritySize
	IntegrityMetadata = config.IntegrityMetadata
)

// Engine runs the two-phase migration pipeline for one user at a time. A
// single Engine value is reused across users within one orchestrator run;
// it holds no per-user mutable state itself.
type Engine struct {
	ExcludeDirs      []string
	ExcludeFileGlobs []string
	Integrity        config.IntegrityMethod
	HashAlgorithm    string
	HashIndexPath    string
	VerifyRetries    int
	MaxFileSizeWarning config.ByteSize
	Mapping          pathmap.Mapping
	Logger           *logging.Logger

	// executabilityOnce guards the one-time executability preservation probe
	// run against the target home's filesystem on the first call to RunUser.
	executabilityOnce sync.Once
}

// checkExecutability probes, once per Engine, whether targetHome's
// filesystem preserves the user-executable bit and logs a warning if not,
// since a non-preserving target means copied scripts and binaries will lose
// their executable permission.
func (e *Engine) checkExecutability(targetHome string) {
	e.executabilityOnce.Do(func() {
		if err := os.MkdirAll(targetHome, 0700); err != nil {
			return
		}
		preserves, err := filesystem.PreservesExecutability(targetHome)
		if err != nil {
			e.Logger.Warnf("Unable to determine whether target filesystem preserves executability: %s", err.Error())
			return
		}
		if !preserves {
			e.Logger.Warnf("Target filesystem at %s does not preserve executable permissions; copied scripts and binaries may lose their executable bit", targetHome)
		}
	})
}

// Outcome is the per-user result reported to the journal.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeCompletedWithErrors Outcome = "completed_with_error"
	OutcomeFailed              Outcome = "failed"
)

// RunUser executes the engine for a single user, resuming from ckpt if it
// already holds progress. sourceDir is the absolute source home directory
// (already translated, if network-mounted) and targetHome is the absolute
// Linux home directory to populate. ctx governs preemption of in-flight
// file copies: once cancelled, the current and any not-yet-started copies
// in phase A abort, surfacing as per-file failures rather than a silent
// truncation.
func (e *Engine) RunUser(ctx context.Context, sourceDir, targetHome string, ckpt *checkpoint.Checkpoint, accumulator *report.Accumulator) (Outcome, error) {
	e.checkExecutability(targetHome)

	if e.alreadyComplete(targetHome) {
		return OutcomeSuccess, nil
	}

	phaseANeeded, phaseBNeeded := e.resumePlan(ckpt)

	if phaseANeeded {
		if err := e.runPhaseA(ctx, sourceDir, targetHome, ckpt, accumulator); err != nil {
			return OutcomeFailed, err
		}
		snapshot := accumulator.Snapshot()
		if len(snapshot.Failures) > 0 {
			return OutcomeFailed, nil
		}
		if len(snapshot.Discrepancies) > 0 {
			// Phase B is strictly skipped on a failed phase A.
			return OutcomeCompletedWithErrors, nil
		}
	}

	if phaseBNeeded {
		if err := e.runPhaseB(targetHome, accumulator); err != nil {
			accumulator.RecordError(errtax.Wrap(errtax.TargetRenameFailed, targetHome, err))
			return OutcomeCompletedWithErrors, nil
		}
	}

	if len(accumulator.Snapshot().Discrepancies) > 0 {
		return OutcomeCompletedWithErrors, nil
	}
	return OutcomeSuccess, nil
}

// alreadyComplete reports whether the target home already shows evidence of
// phase-B renames (any localized folder or the Desktop expansion exists).
func (e *Engine) alreadyComplete(targetHome string) bool {
	for _, segments := range e.Mapping.DesktopRename {
		if pathExists(filepath.Join(append([]string{targetHome}, segments...)...)) {
			return true
		}
	}
	for _, localized := range e.Mapping.FolderMapping {
		if pathExists(filepath.Join(targetHome, localized)) {
			return true
		}
	}
	return false
}

// resumePlan decides which phases to run based on checkpoint state: if
// phase A previously produced only verified entries, only phase B remains
// to run.
func (e *Engine) resumePlan(ckpt *checkpoint.Checkpoint) (phaseA, phaseB bool) {
	if ckpt.Len() > 0 && ckpt.VerifiedCount() == ckpt.Len() {
		// Phase A fully verified previously; only renames remain.
		return false, true
	}
	return true, true
}

// pathExists reports whether a path exists on disk.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// runPhaseA walks the source tree, computes destinations (applying the
// BrowserData redirection but deferring folder/Desktop renames), and
// dispatches copies to the bounded worker pool.
func (e *Engine) runPhaseA(ctx context.Context, sourceDir, targetHome string, ckpt *checkpoint.Checkpoint, accumulator *report.Accumulator) error {
	var index *hashindex.Index
	if e.Integrity == config.IntegrityHash && e.HashIndexPath != "" {
		loaded, err := hashindex.Load(e.HashIndexPath, targetHome, "", e.Mapping)
		if err != nil {
			return fmt.Errorf("unable to load hash index: %w", err)
		}
		index = loaded
	}

	items, err := Walk(sourceDir, e.ExcludeDirs, e.ExcludeFileGlobs)
	if err != nil {
		return fmt.Errorf("unable to walk source directory: %w", err)
	}

	registries := make(map[string]*names.Registry)
	destinations := make([]destination, 0, len(items))
	for _, item := range items {
		relativePath, err := filepath.Rel(sourceDir, item.SourcePath)
		if err != nil {
			return fmt.Errorf("unable to compute relative path: %w", err)
		}
		targetPath := structuralTranslate(relativePath, targetHome, e.Mapping)

		directory := filepath.Dir(targetPath)
		registry, ok := registries[directory]
		if !ok {
			registry = names.NewRegistry()
			registries[directory] = registry
		}

		destinations = append(destinations, destination{item: item, targetPath: targetPath, registry: registry})
	}

	e.runCopyPool(ctx, destinations, ckpt, index, accumulator)
	return nil
}

// structuralTranslate applies only the BrowserData redirection during
// phase A: folder/Desktop renames are deferred to phase B, so the mapping
// passed to pathmap.Translate here carries only the browser redirect
// table.
func structuralTranslate(relativePath, targetHome string, mapping pathmap.Mapping) string {
	phaseAMapping := pathmap.Mapping{BrowserRedirect: mapping.BrowserRedirect}
	return pathmap.Translate(relativePath, targetHome, "", phaseAMapping, true)
}

// runPhaseB performs the deferred directory renames: Desktop expansion
// first, then the top-level folder localizations.
func (e *Engine) runPhaseB(targetHome string, accumulator *report.Accumulator) error {
	for oldName, newSegments := range e.Mapping.DesktopRename {
		if err := renameDirectory(targetHome, oldName, filepath.Join(newSegments...), accumulator); err != nil {
			return err
		}
	}
	for oldName, newName := range e.Mapping.FolderMapping {
		if err := renameDirectory(targetHome, oldName, newName, accumulator); err != nil {
			return err
		}
	}
	return nil
}

// renameDirectory moves old to new beneath base, merging contents if both
// already exist. The no-clobber rename attempt uses renameat2(2) with
// RENAME_NOREPLACE so that the existence check and the rename are atomic
// with respect to a concurrent writer under the target home; a filesystem
// or kernel that doesn't support that flag falls back to the plain
// check-then-rename sequence.
func renameDirectory(base, oldRelative, newRelative string, accumulator *report.Accumulator) error {
	oldPath := filepath.Join(base, oldRelative)
	newPath := filepath.Join(base, newRelative)

	if !pathExists(oldPath) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0700); err != nil {
		return fmt.Errorf("unable to create parent of %s: %w", newRelative, err)
	}

	if err := filesystem.RenameNoReplace(oldPath, newPath); err == nil {
		accumulator.RecordRename(names.Rename{Original: oldRelative, Final: newRelative})
		return nil
	} else if err != unix.EEXIST {
		if err != unix.ENOSYS && err != unix.ENOTSUP {
			return fmt.Errorf("unable to rename %s to %s: %w", oldRelative, newRelative, err)
		}
		if !pathExists(newPath) {
			if err := os.Rename(oldPath, newPath); err != nil {
				return fmt.Errorf("unable to rename %s to %s: %w", oldRelative, newRelative, err)
			}
			accumulator.RecordRename(names.Rename{Original: oldRelative, Final: newRelative})
			return nil
		}
	}

	entries, err := filesystem.DirectoryContentsByPath(oldPath)
	if err != nil {
		return fmt.Errorf("unable to list %s: %w", oldRelative, err)
	}
	for _, entry := range entries {
		if err := os.Rename(filepath.Join(oldPath, entry.Name()), filepath.Join(newPath, entry.Name())); err != nil {
			return fmt.Errorf("unable to move %s into %s: %w", entry.Name(), newRelative, err)
		}
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove emptied directory %s: %w", oldRelative, err)
	}
	accumulator.RecordRename(names.Rename{Original: oldRelative, Final: newRelative})
	return nil
}
