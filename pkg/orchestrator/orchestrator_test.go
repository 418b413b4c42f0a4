package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/usermigrate/migrator/pkg/collaborators"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/migration"
)

// fakeMounter is a no-op Mounter that reports a fixed local path.
type fakeMounter struct {
	localPath string
}

func (f *fakeMounter) Mount(ctx context.Context) (collaborators.MountResult, error) {
	return collaborators.MountResult{LocalPath: f.localPath}, nil
}

func (f *fakeMounter) Unmount(ctx context.Context) error { return nil }

func testOrchestrator(t *testing.T, sourceRoot string) (*Orchestrator, *journal.Store) {
	t.Helper()
	root := t.TempDir()

	paths, err := journal.PathsUnder(filepath.Join(root, "journal"))
	if err != nil {
		t.Fatal(err)
	}
	logger := logging.NewLogger(logging.LevelError, io.Discard)
	store := journal.NewStore(paths, logger)

	cfg := &config.Config{
		ExcludeDirs:         nil,
		CheckpointDirectory: filepath.Join(root, "checkpoints"),
		ReportDirectory:     filepath.Join(root, "reports"),
		HomeRoot:            filepath.Join(root, "home"),
		Mount: config.Mount{
			Attempts: 1,
			Delay:    config.Duration(0),
			Timeout:  config.Duration(1_000_000_000),
		},
		HeartbeatInterval: config.Duration(1_000_000_000),
		Integrity:         config.IntegrityMetadata,
	}

	engine := &migration.Engine{
		Integrity:     config.IntegrityMetadata,
		VerifyRetries: 1,
		Logger:        logger,
	}

	orchestrator := &Orchestrator{
		Config:  cfg,
		Engine:  engine,
		Journal: store,
		Mounter: &fakeMounter{localPath: sourceRoot},
		Logger:  logger,
	}
	return orchestrator, store
}

// TestRunMigratesAllUsersSuccessfully tests the overall happy path: two
// user directories, each with one file, both migrate successfully and the
// journal reflects a final success status.
func TestRunMigratesAllUsersSuccessfully(t *testing.T) {
	sourceRoot := t.TempDir()
	for _, user := range []string{"alice", "bob.corp"} {
		if err := os.MkdirAll(filepath.Join(sourceRoot, user, "Documents"), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(sourceRoot, user, "Documents", "a.txt"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	orchestrator, store := testOrchestrator(t, sourceRoot)

	status, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if status != journal.StatusSuccess {
		t.Fatalf("expected global success, got %s", status)
	}

	doc, loadErr := store.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if doc.Global.TotalUsers != 2 {
		t.Fatalf("expected 2 total users, got %d", doc.Global.TotalUsers)
	}
	for user, userStatus := range doc.Users {
		if userStatus != journal.UserSuccess {
			t.Fatalf("expected success for user '%s', got '%s'", user, userStatus)
		}
	}

	if _, err := os.Stat(filepath.Join(orchestrator.Config.HomeRoot, "alice@default", "Documents", "a.txt")); err != nil {
		t.Fatalf("expected migrated file for alice: %v", err)
	}
	if _, err := os.Stat(filepath.Join(orchestrator.Config.HomeRoot, "bob@corp", "Documents", "a.txt")); err != nil {
		t.Fatalf("expected migrated file for bob: %v", err)
	}
}

// TestEnumerateUsersExcludesConfiguredDirectories tests that a top-level
// directory named in ExcludeDirs is never treated as a user.
func TestEnumerateUsersExcludesConfiguredDirectories(t *testing.T) {
	sourceRoot := t.TempDir()
	for _, dir := range []string{"alice", "lost+found"} {
		if err := os.MkdirAll(filepath.Join(sourceRoot, dir), 0700); err != nil {
			t.Fatal(err)
		}
	}

	orchestrator, _ := testOrchestrator(t, sourceRoot)
	orchestrator.Config.ExcludeDirs = []string{"lost+found"}

	users, err := orchestrator.enumerateUsers(sourceRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected only 'alice', got %v", users)
	}
}

// TestRunSkipsUsersAlreadyTerminal tests that a user already recorded as
// success in the journal is not reprocessed.
func TestRunSkipsUsersAlreadyTerminal(t *testing.T) {
	sourceRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(sourceRoot, "alice"), 0700); err != nil {
		t.Fatal(err)
	}

	orchestrator, store := testOrchestrator(t, sourceRoot)
	username := FormatUsername("alice", nil)
	if err := store.UpdateUser(username, journal.UserSuccess); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateGlobal(func(g *journal.GlobalState) { g.TotalUsers = 1 }); err != nil {
		t.Fatal(err)
	}

	if _, err := orchestrator.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Users[username] != journal.UserSuccess {
		t.Fatalf("expected user to remain success, got %s", doc.Users[username])
	}
}
