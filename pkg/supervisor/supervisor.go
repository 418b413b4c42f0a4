// Package supervisor implements an out-of-process watchdog that observes
// the orchestrator's heartbeat through the journal's read-only projection
// and restarts it under a bounded-backoff policy. The supervisor never
// locks the journal and never writes to it; its correctness relies
// entirely on the atomic replace performed by pkg/journal's writer.
package supervisor

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
)

// State is one of the watchdog's finite-state-machine states.
type State string

const (
	StateStarting       State = "STARTING"
	StateWatching       State = "WATCHING"
	StateRestartPending State = "RESTART_PENDING"
	StateCooldown       State = "COOLDOWN"
)

// Config holds the watchdog's timing and backoff policy.
type Config struct {
	CheckInterval        time.Duration
	HeartbeatTimeout     time.Duration
	GraceWindow          time.Duration
	MaxRestarts          int
	RestartMinInterval   time.Duration
	FailureCooldown      time.Duration
	KillTimeout          time.Duration
	StableResetThreshold time.Duration
	QuietPeriod          time.Duration
}

// DefaultConfig returns the watchdog's default timing policy.
func DefaultConfig() Config {
	return Config{
		CheckInterval:        30 * time.Second,
		HeartbeatTimeout:     120 * time.Second,
		GraceWindow:          120 * time.Second,
		MaxRestarts:          5,
		RestartMinInterval:   10 * time.Second,
		FailureCooldown:      30 * time.Minute,
		KillTimeout:          10 * time.Second,
		StableResetThreshold: 10 * time.Minute,
		QuietPeriod:          2 * time.Second,
	}
}

// Snapshot is the watchdog's own FSM state, persisted alongside the
// journal projection so the "status" subcommand can report restart_count
// and state without attaching to a live supervisor process.
type Snapshot struct {
	State        State     `json:"state"`
	RestartCount int       `json:"restart_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Supervisor runs the watchdog loop over a single orchestrator child
// process.
type Supervisor struct {
	Spawner   Spawner
	Journal   *journal.Store
	Config    Config
	Logger    *logging.Logger
	StatePath string
}

// Run starts the orchestrator child and watches it until either the
// journal reports terminal success or ctx is cancelled. It returns nil on
// a clean exit (success observed, or cancellation handled); spawn errors
// are returned directly since the watchdog cannot run without a child.
func (s *Supervisor) Run(ctx context.Context) error {
	state := StateStarting
	restartCount := 0

	child, err := s.Spawner.Spawn(ctx)
	if err != nil {
		return fmt.Errorf("unable to start orchestrator: %w", err)
	}
	lastRestartTime := time.Now()
	graceDeadline := time.Now().Add(s.Config.GraceWindow)
	var cooldownDeadline time.Time

	s.persist(state, restartCount)

	ticker := time.NewTicker(s.Config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.terminate(child)
			return nil
		case <-ticker.C:
		}

		projection, ok := s.Journal.LoadProjection()
		if ok && projection.Status == journal.StatusSuccess {
			s.Logger.Infof("Migration reached terminal success; supervisor exiting")
			s.persist(StateWatching, restartCount)
			return nil
		}

		switch state {
		case StateStarting:
			if time.Now().After(graceDeadline) {
				state = StateWatching
			}

		case StateWatching:
			heartbeatStale := !ok || time.Since(projection.LastHeartbeat) > s.Config.HeartbeatTimeout
			if heartbeatStale || !isAlive(child) {
				s.Logger.Warnf("Orchestrator heartbeat stale or process gone; entering restart-pending")
				state = StateRestartPending
			} else if restartCount > 0 && time.Since(lastRestartTime) >= s.Config.StableResetThreshold {
				s.Logger.Infof("Orchestrator stable for %s; resetting restart count", s.Config.StableResetThreshold)
				restartCount = 0
			}

		case StateRestartPending:
			if restartCount >= s.Config.MaxRestarts {
				s.Logger.Warnf("Maximum restarts (%d) reached; entering cooldown", s.Config.MaxRestarts)
				state = StateCooldown
				cooldownDeadline = time.Now().Add(s.Config.FailureCooldown)
				break
			}
			if time.Since(lastRestartTime) < s.Config.RestartMinInterval {
				break
			}
			s.terminate(child)
			time.Sleep(s.Config.QuietPeriod)
			newChild, spawnErr := s.Spawner.Spawn(ctx)
			if spawnErr != nil {
				s.Logger.Errorf("Unable to restart orchestrator: %s", spawnErr.Error())
				break
			}
			child = newChild
			restartCount++
			lastRestartTime = time.Now()
			graceDeadline = time.Now().Add(s.Config.GraceWindow)
			state = StateStarting

		case StateCooldown:
			if time.Now().After(cooldownDeadline) {
				restartCount = 0
				state = StateWatching
			}
		}

		s.persist(state, restartCount)
	}
}

// persist writes the watchdog's own FSM snapshot, ignoring write errors
// beyond a warning log since this is a best-effort status surface, not a
// correctness-critical write.
func (s *Supervisor) persist(state State, restartCount int) {
	if s.StatePath == "" {
		return
	}
	snapshot := Snapshot{State: state, RestartCount: restartCount, UpdatedAt: time.Now()}
	if err := WriteSnapshot(s.StatePath, snapshot); err != nil {
		s.Logger.Warnf("Unable to persist supervisor state: %s", err.Error())
	}
}

// terminate sends SIGTERM to child and escalates to SIGKILL if it hasn't
// exited within Config.KillTimeout.
func (s *Supervisor) terminate(child Child) {
	if child == nil {
		return
	}
	if err := child.Signal(syscall.SIGTERM); err != nil {
		return
	}

	exited := make(chan struct{})
	go func() {
		child.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(s.Config.KillTimeout):
		s.Logger.Warnf("Orchestrator did not exit within kill timeout; sending SIGKILL")
		child.Signal(syscall.SIGKILL)
		<-exited
	}
}

// isAlive reports whether child's process still exists, using signal 0
// which performs existence/permission checks without delivering a signal.
func isAlive(child Child) bool {
	if child == nil {
		return false
	}
	return child.Signal(syscall.Signal(0)) == nil
}
