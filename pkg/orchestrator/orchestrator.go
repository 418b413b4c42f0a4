// Package orchestrator implements spec component C6: it mounts the
// migration source, enumerates users, dispatches the per-user engine
// (pkg/migration) with resume support, emits heartbeats into the journal
// (pkg/journal), and aggregates the run into a final global status.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/usermigrate/migrator/pkg/checkpoint"
	"github.com/usermigrate/migrator/pkg/collaborators"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/errtax"
	"github.com/usermigrate/migrator/pkg/housekeeping"
	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/migration"
	"github.com/usermigrate/migrator/pkg/report"
)

// Orchestrator runs one migration pass over every user found at the
// mounted source. A single Orchestrator value is used for exactly one
// process lifetime: it mounts, migrates, unmounts, and exits.
type Orchestrator struct {
	Config *config.Config
	Engine *migration.Engine

	Journal          *journal.Store
	Mounter          collaborators.Mounter
	ShortcutCreator  collaborators.ShortcutCreator
	PrinterRegistrar collaborators.PrinterRegistrar

	Logger *logging.Logger
}

// Run executes one full migration pass: mount, enumerate, migrate every
// user, then unmount. It returns the final global status; the caller (the
// CLI entry point) maps this to a process exit code.
func (o *Orchestrator) Run(ctx context.Context) (journal.GlobalStatus, error) {
	mountResult, err := o.mountWithRetry(ctx)
	if err != nil {
		record := errtax.Wrap(errtax.MountFailed, "unable to mount migration source", err)
		o.failGlobal(record)
		return journal.StatusFailed, err
	}
	defer func() {
		if unmountErr := o.Mounter.Unmount(context.Background()); unmountErr != nil {
			o.Logger.Warnf("Unable to unmount migration source: %s", unmountErr.Error())
		}
	}()

	o.runHousekeeping()

	users, err := o.enumerateUsers(mountResult.LocalPath)
	if err != nil {
		record := errtax.Wrap(errtax.SourceEnumerationFailed, mountResult.LocalPath, err)
		o.failGlobal(record)
		return journal.StatusFailed, err
	}

	if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
		g.Status = journal.StatusInProgress
		g.TotalUsers = len(users)
		g.LastHeartbeat = time.Now()
	}); err != nil {
		o.Logger.Errorf("Unable to write initial journal state: %s", err.Error())
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go o.runHeartbeat(heartbeatCtx, heartbeatDone)

	var anyFailed, anyCompletedWithErrors bool
	for _, directoryName := range users {
		if ctx.Err() != nil {
			o.Logger.Warnf("Migration cancelled before user '%s'; stopping between users", directoryName)
			break
		}

		username := FormatUsername(directoryName, o.Config.DomainSuffixMap)

		doc, loadErr := o.Journal.Load()
		if loadErr != nil {
			o.Logger.Warnf("Unable to load journal before user '%s': %s", username, loadErr.Error())
		}
		switch doc.Users[username] {
		case journal.UserSuccess, journal.UserCompletedWithErrors:
			continue
		}

		outcome := o.runUser(ctx, mountResult.LocalPath, directoryName, username)
		switch outcome {
		case migration.OutcomeFailed:
			anyFailed = true
		case migration.OutcomeCompletedWithErrors:
			anyCompletedWithErrors = true
		}
	}

	stopHeartbeat()
	<-heartbeatDone

	o.runPostMigrationCollaborators(ctx, mountResult.LocalPath, users)

	finalStatus := journal.StatusSuccess
	switch {
	case anyFailed:
		finalStatus = journal.StatusFailed
	case anyCompletedWithErrors:
		finalStatus = journal.StatusCompletedWithErrors
	}

	if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
		g.Status = finalStatus
		g.CurrentUser = ""
	}); err != nil {
		o.Logger.Errorf("Unable to write final journal state: %s", err.Error())
	}

	return finalStatus, nil
}

// mountWithRetry attempts to mount the source up to Config.Mount.Attempts
// times, pausing Config.Mount.Delay between attempts and bounding each
// attempt by Config.Mount.Timeout.
func (o *Orchestrator) mountWithRetry(ctx context.Context) (collaborators.MountResult, error) {
	attempts := o.Config.Mount.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.Config.Mount.Timeout.Duration())
		result, err := o.Mounter.Mount(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		o.Logger.Warnf("Mount attempt %d/%d failed: %s", attempt+1, attempts, err.Error())
		if attempt < attempts-1 {
			time.Sleep(o.Config.Mount.Delay.Duration())
		}
	}
	return collaborators.MountResult{}, lastErr
}

// runHousekeeping sweeps stale checkpoints for users already in a
// terminal "success" state, before any migration work begins.
func (o *Orchestrator) runHousekeeping() {
	doc, err := o.Journal.Load()
	if err != nil {
		o.Logger.Warnf("Unable to load journal for housekeeping: %s", err.Error())
		return
	}
	isTerminal := func(userID string) bool {
		return doc.Users[userID] == journal.UserSuccess
	}
	housekeeping.Sweep(o.Config.CheckpointDirectory, o.Config.CheckpointRetention.Duration(), isTerminal, o.Logger)
}

// enumerateUsers lists the top-level directories under the mounted source,
// minus ExcludeDirs, sorted for deterministic iteration order.
func (o *Orchestrator) enumerateUsers(mountedRoot string) ([]string, error) {
	entries, err := os.ReadDir(mountedRoot)
	if err != nil {
		return nil, fmt.Errorf("unable to list mounted source: %w", err)
	}

	excluded := make(map[string]bool, len(o.Config.ExcludeDirs))
	for _, dir := range o.Config.ExcludeDirs {
		excluded[dir] = true
	}

	var users []string
	for _, entry := range entries {
		if !entry.IsDir() || excluded[entry.Name()] {
			continue
		}
		users = append(users, entry.Name())
	}
	sort.Strings(users)
	return users, nil
}

// runHeartbeat updates the journal's last_heartbeat field every
// HeartbeatInterval until ctx is cancelled, then signals done.
func (o *Orchestrator) runHeartbeat(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := o.Config.HeartbeatInterval.Duration()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
				g.LastHeartbeat = time.Now()
			}); err != nil {
				o.Logger.Warnf("Heartbeat write failed: %s", err.Error())
			}
		}
	}
}

// runUser migrates a single user, isolating any unhandled error as
// USER_003 rather than aborting the whole run.
func (o *Orchestrator) runUser(ctx context.Context, mountedRoot, directoryName, username string) (outcome migration.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Errorf("Unhandled panic migrating user '%s': %v", username, r)
			record := errtax.New(errtax.UserUnhandledError, fmt.Sprintf("panic: %v", r)).WithContext("user", username)
			o.recordUserOutcome(username, journal.UserFailed, record)
			outcome = migration.OutcomeFailed
		}
	}()

	if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
		g.CurrentUser = username
		g.UsersInProgress++
	}); err != nil {
		o.Logger.Warnf("Unable to record start of user '%s': %s", username, err.Error())
	}
	if err := o.Journal.UpdateUser(username, journal.UserInProgress); err != nil {
		o.Logger.Warnf("Unable to record in-progress status for user '%s': %s", username, err.Error())
	}

	sourceDir := filepath.Join(mountedRoot, directoryName)
	targetHome := TargetHomeDirectory(o.Config.HomeRoot, username)

	ckptPath, err := checkpoint.PathFor(o.Config.CheckpointDirectory, username)
	if err != nil {
		record := errtax.Wrap(errtax.TargetUnwritable, username, err)
		o.recordUserOutcome(username, journal.UserFailed, record)
		return migration.OutcomeFailed
	}
	ckpt, err := checkpoint.Load(ckptPath)
	if err != nil {
		record := errtax.Wrap(errtax.UserUnhandledError, username, err)
		o.recordUserOutcome(username, journal.UserFailed, record)
		return migration.OutcomeFailed
	}

	accumulator := report.New()
	runOutcome, runErr := o.Engine.RunUser(ctx, sourceDir, targetHome, ckpt, accumulator)
	accumulator.Finish()

	if saveErr := ckpt.Save(o.Logger); saveErr != nil {
		o.Logger.Warnf("Unable to save checkpoint for user '%s': %s", username, saveErr.Error())
	}
	if writeErr := report.WriteDocument(o.Config.ReportDirectory, username, accumulator.Snapshot(), o.Logger); writeErr != nil {
		o.Logger.Warnf("Unable to write report for user '%s': %s", username, writeErr.Error())
	}

	var record *errtax.Record
	if runErr != nil {
		record = errtax.Wrap(errtax.UserUnhandledError, username, runErr)
	} else if snapshot := accumulator.Snapshot(); snapshot.LastError != nil {
		record = snapshot.LastError
	}

	status := outcomeToUserStatus(runOutcome)
	o.recordUserOutcome(username, status, record)
	return runOutcome
}

// recordUserOutcome persists a user's terminal status and updates the
// global completion counters accordingly.
func (o *Orchestrator) recordUserOutcome(username string, status journal.UserStatus, record *errtax.Record) {
	if err := o.Journal.UpdateUser(username, status); err != nil {
		o.Logger.Warnf("Unable to record final status for user '%s': %s", username, err.Error())
	}
	if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
		g.UsersInProgress--
		if status == journal.UserFailed {
			g.UsersFailed++
		} else {
			g.UsersCompleted++
		}
		if record != nil {
			g.LastError = record
		}
	}); err != nil {
		o.Logger.Warnf("Unable to update global counters for user '%s': %s", username, err.Error())
	}
}

// outcomeToUserStatus maps a migration.Outcome to its journal.UserStatus
// counterpart.
func outcomeToUserStatus(outcome migration.Outcome) journal.UserStatus {
	switch outcome {
	case migration.OutcomeSuccess:
		return journal.UserSuccess
	case migration.OutcomeCompletedWithErrors:
		return journal.UserCompletedWithErrors
	default:
		return journal.UserFailed
	}
}

// runPostMigrationCollaborators runs shortcut creation and printer
// registration for every migrated user. Failures here are logged only and
// never change the overall run status.
func (o *Orchestrator) runPostMigrationCollaborators(ctx context.Context, mountedRoot string, users []string) {
	for _, directoryName := range users {
		username := FormatUsername(directoryName, o.Config.DomainSuffixMap)
		targetHome := TargetHomeDirectory(o.Config.HomeRoot, username)
		sourceDir := filepath.Join(mountedRoot, directoryName)

		if o.ShortcutCreator != nil {
			if err := o.ShortcutCreator.CreateShortcut(ctx, targetHome, sourceDir); err != nil {
				o.Logger.Warnf("Shortcut creation failed for user '%s': %s", username, err.Error())
			}
		}
		if o.PrinterRegistrar != nil {
			if err := o.PrinterRegistrar.RegisterPrinters(ctx, targetHome); err != nil {
				o.Logger.Warnf("Printer registration failed for user '%s': %s", username, err.Error())
			}
		}
	}
}

// failGlobal records a fatal initialization error and sets global status
// to failed.
func (o *Orchestrator) failGlobal(record *errtax.Record) {
	if err := o.Journal.UpdateGlobal(func(g *journal.GlobalState) {
		g.Status = journal.StatusFailed
		g.LastError = record
	}); err != nil {
		o.Logger.Errorf("Unable to record fatal error in journal: %s", err.Error())
	}
}
