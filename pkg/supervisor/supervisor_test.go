package supervisor

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
)

// fakeChild is a controllable Child for FSM tests.
type fakeChild struct {
	mu    sync.Mutex
	alive bool
	exit  chan struct{}
}

func newFakeChild() *fakeChild {
	return &fakeChild{alive: true, exit: make(chan struct{})}
}

func (c *fakeChild) Pid() int { return 1 }

func (c *fakeChild) Signal(sig syscall.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return syscall.ESRCH
	}
	if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
		c.alive = false
		close(c.exit)
	}
	return nil
}

func (c *fakeChild) Wait() (int, error) {
	<-c.exit
	return 0, nil
}

// fakeSpawner counts spawns and hands out fresh fakeChild values.
type fakeSpawner struct {
	mu       sync.Mutex
	children []*fakeChild
}

func (s *fakeSpawner) Spawn(ctx context.Context) (Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	child := newFakeChild()
	s.children = append(s.children, child)
	return child, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

func testStore(t *testing.T) *journal.Store {
	t.Helper()
	paths, err := journal.PathsUnder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return journal.NewStore(paths, logging.NewLogger(logging.LevelError, io.Discard))
}

func fastConfig() Config {
	return Config{
		CheckInterval:        5 * time.Millisecond,
		HeartbeatTimeout:     15 * time.Millisecond,
		GraceWindow:          1 * time.Millisecond,
		MaxRestarts:          5,
		RestartMinInterval:   1 * time.Millisecond,
		FailureCooldown:      50 * time.Millisecond,
		KillTimeout:          50 * time.Millisecond,
		StableResetThreshold: 200 * time.Millisecond,
		QuietPeriod:          1 * time.Millisecond,
	}
}

// TestRunExitsOnTerminalSuccess tests that the watchdog stops watching
// and returns cleanly as soon as the journal projection shows terminal
// success, without ever entering a restart cycle.
func TestRunExitsOnTerminalSuccess(t *testing.T) {
	store := testStore(t)
	if err := store.UpdateGlobal(func(g *journal.GlobalState) {
		g.Status = journal.StatusSuccess
		g.LastHeartbeat = time.Now()
	}); err != nil {
		t.Fatal(err)
	}

	spawner := &fakeSpawner{}
	sup := &Supervisor{
		Spawner: spawner,
		Journal: store,
		Config:  fastConfig(),
		Logger:  logging.NewLogger(logging.LevelError, io.Discard),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if spawner.count() != 1 {
		t.Fatalf("expected exactly 1 spawn, got %d", spawner.count())
	}
}

// TestRunRestartsOnStaleHeartbeat tests that a stale (or never-updated)
// heartbeat drives the FSM through RESTART_PENDING and results in a
// second spawn.
func TestRunRestartsOnStaleHeartbeat(t *testing.T) {
	store := testStore(t)
	// Never write a heartbeat: the projection file won't exist at all,
	// so LoadProjection reports ok=false, which the FSM treats the same
	// as a stale heartbeat.

	spawner := &fakeSpawner{}
	sup := &Supervisor{
		Spawner:   spawner,
		Journal:   store,
		Config:    fastConfig(),
		Logger:    logging.NewLogger(logging.LevelError, io.Discard),
		StatePath: filepath.Join(t.TempDir(), "supervisor-state.json"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(120 * time.Millisecond)
		store.UpdateGlobal(func(g *journal.GlobalState) {
			g.Status = journal.StatusSuccess
			g.LastHeartbeat = time.Now()
		})
	}()

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if spawner.count() < 2 {
		t.Fatalf("expected at least 2 spawns (an initial restart), got %d", spawner.count())
	}

	snapshot, ok := ReadSnapshot(sup.StatePath)
	if !ok {
		t.Fatal("expected a persisted supervisor snapshot")
	}
	if snapshot.RestartCount < 1 {
		t.Fatalf("expected restart_count >= 1, got %d", snapshot.RestartCount)
	}
}

// TestRunEntersCooldownAfterMaxRestarts tests that exceeding MaxRestarts
// drives the FSM into COOLDOWN rather than restarting indefinitely.
func TestRunEntersCooldownAfterMaxRestarts(t *testing.T) {
	store := testStore(t)

	spawner := &fakeSpawner{}
	cfg := fastConfig()
	cfg.MaxRestarts = 1
	cfg.FailureCooldown = 30 * time.Millisecond
	statePath := filepath.Join(t.TempDir(), "supervisor-state.json")
	sup := &Supervisor{
		Spawner:   spawner,
		Journal:   store,
		Config:    cfg,
		Logger:    logging.NewLogger(logging.LevelError, io.Discard),
		StatePath: statePath,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	sup.Run(ctx)

	snapshot, ok := ReadSnapshot(statePath)
	if !ok {
		t.Fatal("expected a persisted supervisor snapshot")
	}
	if snapshot.State != StateCooldown && snapshot.State != StateWatching {
		t.Fatalf("expected COOLDOWN (or a subsequent reset to WATCHING), got %s", snapshot.State)
	}
}

// TestCheckMigration tests the boolean used by the "check-migration"
// subcommand.
func TestCheckMigration(t *testing.T) {
	store := testStore(t)
	if CheckMigration(store) {
		t.Fatal("expected false before any journal write")
	}
	if err := store.UpdateGlobal(func(g *journal.GlobalState) { g.Status = journal.StatusSuccess }); err != nil {
		t.Fatal(err)
	}
	if !CheckMigration(store) {
		t.Fatal("expected true after terminal success")
	}
}
