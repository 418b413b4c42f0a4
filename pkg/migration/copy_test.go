package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/usermigrate/migrator/pkg/checkpoint"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/names"
	"github.com/usermigrate/migrator/pkg/report"
)

func testEngine() *Engine {
	return &Engine{
		Integrity:     config.IntegrityHash,
		HashAlgorithm: "sha256",
		VerifyRetries: 2,
		Logger:        logging.NewLogger(logging.LevelError, os.Stderr),
	}
}

// TestCopyOneCopiesAndVerifies tests the straight-line case: a new source
// file with no checkpoint entry and no existing target gets copied,
// verified, and recorded.
func TestCopyOneCopiesAndVerifies(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	sourcePath := filepath.Join(sourceDir, "a.txt")
	if err := os.WriteFile(sourcePath, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	accumulator := report.New()
	d := destination{
		item:       WorkItem{SourcePath: sourcePath},
		targetPath: filepath.Join(targetDir, "a.txt"),
		registry:   names.NewRegistry(),
	}

	engine := testEngine()
	engine.copyOne(context.Background(), d, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if snapshot.FilesCopied != 1 {
		t.Fatalf("expected 1 file copied, got %d (failures=%v discrepancies=%v)", snapshot.FilesCopied, snapshot.Failures, snapshot.Discrepancies)
	}
	contents, err := os.ReadFile(filepath.Join(targetDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "hello world" {
		t.Fatalf("unexpected target contents: %q", contents)
	}
	if entry, ok := ckpt.Get(sourcePath); !ok || !entry.Verified {
		t.Fatal("expected a verified checkpoint entry")
	}
}

// TestCopyOneSkipsAlreadyVerifiedCurrent tests that a checkpoint entry
// marked verified with a matching mtime causes the file to be skipped
// rather than re-copied.
func TestCopyOneSkipsAlreadyVerifiedCurrent(t *testing.T) {
	sourceDir := t.TempDir()
	sourcePath := filepath.Join(sourceDir, "a.txt")
	modTime := time.Unix(1000, 0)
	writeFileWithTime(t, sourcePath, "hello", modTime)

	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	ckpt.Record(sourcePath, checkpoint.Entry{TargetPath: "/nowhere", Verified: true, ModTime: modTime})

	accumulator := report.New()
	d := destination{
		item:       WorkItem{SourcePath: sourcePath},
		targetPath: filepath.Join(t.TempDir(), "a.txt"),
		registry:   names.NewRegistry(),
	}

	engine := testEngine()
	engine.copyOne(context.Background(), d, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if snapshot.FilesSkipped != 1 || snapshot.FilesCopied != 0 {
		t.Fatalf("expected skip, got copied=%d skipped=%d", snapshot.FilesCopied, snapshot.FilesSkipped)
	}
}

// TestCopyOneHandlesNameCollision tests that two destinations resolving to
// the same basename in the same registry end up with distinct final names
// and a recorded rename.
func TestCopyOneHandlesNameCollision(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	first := filepath.Join(sourceDir, "first.txt")
	second := filepath.Join(sourceDir, "second.txt")
	if err := os.WriteFile(first, []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("two"), 0644); err != nil {
		t.Fatal(err)
	}

	registry := names.NewRegistry()
	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	accumulator := report.New()
	engine := testEngine()

	engine.copyOne(context.Background(), destination{item: WorkItem{SourcePath: first}, targetPath: filepath.Join(targetDir, "dup.txt"), registry: registry}, ckpt, nil, accumulator)
	engine.copyOne(context.Background(), destination{item: WorkItem{SourcePath: second}, targetPath: filepath.Join(targetDir, "dup.txt"), registry: registry}, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if snapshot.FilesCopied != 2 {
		t.Fatalf("expected 2 files copied, got %d", snapshot.FilesCopied)
	}
	if len(snapshot.Renames) != 1 {
		t.Fatalf("expected 1 recorded rename, got %d", len(snapshot.Renames))
	}
}

// TestCopyOneRecordsFailureForMissingSource tests that a source file which
// disappears before it can be stat'd is recorded as a failure, not a
// panic or an aborted run.
func TestCopyOneRecordsFailureForMissingSource(t *testing.T) {
	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	accumulator := report.New()
	d := destination{
		item:       WorkItem{SourcePath: filepath.Join(t.TempDir(), "missing.txt")},
		targetPath: filepath.Join(t.TempDir(), "missing.txt"),
		registry:   names.NewRegistry(),
	}

	engine := testEngine()
	engine.copyOne(context.Background(), d, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if len(snapshot.Failures) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", len(snapshot.Failures))
	}
}

// TestCopyOneAbortsOnCancelledContext tests that a cancelled context is
// honored before any copy work begins, rather than being checked only
// inside copyFile's write loop.
func TestCopyOneAbortsOnCancelledContext(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	sourcePath := filepath.Join(sourceDir, "a.txt")
	if err := os.WriteFile(sourcePath, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	accumulator := report.New()
	d := destination{
		item:       WorkItem{SourcePath: sourcePath},
		targetPath: filepath.Join(targetDir, "a.txt"),
		registry:   names.NewRegistry(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := testEngine()
	engine.copyOne(ctx, d, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if snapshot.FilesCopied != 0 {
		t.Fatalf("expected no files copied after cancellation, got %d", snapshot.FilesCopied)
	}
	if _, err := os.Stat(filepath.Join(targetDir, "a.txt")); err == nil {
		t.Fatal("expected target file to not exist after cancellation")
	}
}

// TestRunCopyPoolCopiesAll tests that the worker pool drains all
// destinations regardless of pool size.
func TestRunCopyPoolCopiesAll(t *testing.T) {
	sourceDir := t.TempDir()
	targetDir := t.TempDir()
	ckpt, err := checkpoint.Load(filepath.Join(t.TempDir(), "ckpt.json"))
	if err != nil {
		t.Fatal(err)
	}
	accumulator := report.New()
	registry := names.NewRegistry()

	var destinations []destination
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("f%02d.txt", i)
		sourcePath := filepath.Join(sourceDir, name)
		if err := os.WriteFile(sourcePath, []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
		destinations = append(destinations, destination{
			item:       WorkItem{SourcePath: sourcePath},
			targetPath: filepath.Join(targetDir, name),
			registry:   registry,
		})
	}

	engine := testEngine()
	engine.runCopyPool(context.Background(), destinations, ckpt, nil, accumulator)

	snapshot := accumulator.Snapshot()
	if snapshot.FilesCopied != 20 {
		t.Fatalf("expected 20 files copied, got %d", snapshot.FilesCopied)
	}
}
