package migration

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/usermigrate/migrator/pkg/checkpoint"
	"github.com/usermigrate/migrator/pkg/errtax"
	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/hashindex"
	"github.com/usermigrate/migrator/pkg/hashing"
	"github.com/usermigrate/migrator/pkg/names"
	"github.com/usermigrate/migrator/pkg/report"
	"github.com/usermigrate/migrator/pkg/stream"
)

// preemptionCheckInterval bounds how many Write calls a single file copy
// performs between cancellation checks, so a cancelled context interrupts a
// large file's copy promptly without checking on every small write.
const preemptionCheckInterval = 64

// copyWorkerCount returns the bounded copy pool size: max(2, cpu_count).
func copyWorkerCount() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

// destination pairs a work item with its computed final target path
// (before basename resolution) and the registry governing its parent
// directory.
type destination struct {
	item       WorkItem
	targetPath string
	registry   *names.Registry
}

// runCopyPool dispatches destinations to a bounded worker pool over a
// shared work channel. Each worker calls copyOne for every destination it
// receives; results accumulate into checkpoint and accumulator, both of
// which are already internally synchronized.
func (e *Engine) runCopyPool(ctx context.Context, destinations []destination, ckpt *checkpoint.Checkpoint, index *hashindex.Index, accumulator *report.Accumulator) {
	work := make(chan destination)
	done := make(chan struct{})

	workerCount := copyWorkerCount()
	if workerCount > len(destinations) && len(destinations) > 0 {
		workerCount = len(destinations)
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		go func() {
			for d := range work {
				e.copyOne(ctx, d, ckpt, index, accumulator)
			}
			done <- struct{}{}
		}()
	}

	for _, d := range destinations {
		work <- d
	}
	close(work)

	for i := 0; i < workerCount; i++ {
		<-done
	}
}

// copyOne copies and verifies a single file, recording the outcome into the
// checkpoint and the report accumulator. It never returns an error: per-file
// errors in phase A never abort the run.
func (e *Engine) copyOne(ctx context.Context, d destination, ckpt *checkpoint.Checkpoint, index *hashindex.Index, accumulator *report.Accumulator) {
	if err := ctx.Err(); err != nil {
		accumulator.RecordFailure(report.Failure{SourcePath: d.item.SourcePath, Error: err.Error()})
		return
	}

	sourceInfo, err := os.Stat(d.item.SourcePath)
	if err != nil {
		accumulator.RecordFailure(report.Failure{SourcePath: d.item.SourcePath, Error: err.Error()})
		accumulator.RecordError(errtax.Wrap(errtax.CopyFailed, d.item.SourcePath, err))
		return
	}
	sourceModTime := sourceInfo.ModTime()

	if ckpt.IsVerifiedCurrent(d.item.SourcePath, sourceModTime) {
		accumulator.RecordSkipped()
		return
	}

	finalName, rename := d.registry.Reserve(filepath.Base(d.targetPath))
	targetPath := filepath.Join(filepath.Dir(d.targetPath), finalName)
	if rename != nil {
		accumulator.RecordRename(*rename)
	}

	if targetInfo, err := os.Stat(targetPath); err == nil {
		if !targetInfo.ModTime().Before(sourceModTime) {
			accumulator.RecordSkipped()
			ckpt.Record(d.item.SourcePath, checkpoint.Entry{
				TargetPath: targetPath,
				Size:       targetInfo.Size(),
				ModTime:    sourceModTime,
				Verified:   true,
				Timestamp:  time.Now(),
			})
			return
		}
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0700); err != nil {
		accumulator.RecordFailure(report.Failure{SourcePath: d.item.SourcePath, Error: err.Error()})
		accumulator.RecordError(errtax.Wrap(errtax.TargetUnwritable, targetPath, err))
		return
	}

	if e.MaxFileSizeWarning > 0 && uint64(sourceInfo.Size()) > uint64(e.MaxFileSizeWarning) {
		e.Logger.Warnf("File %s exceeds configured size warning threshold (%d bytes)", d.item.SourcePath, sourceInfo.Size())
	}

	var hashAlgorithm hashing.Algorithm
	var expectedDigest string
	haveExpectedDigest := false
	if e.Integrity == IntegrityHash {
		hashAlgorithm = hashing.Algorithm(e.HashAlgorithm)
		if index != nil {
			expectedDigest, haveExpectedDigest = index.Lookup(d.item.SourcePath)
		}
	}

	computedDigest, err := copyFile(ctx, d.item.SourcePath, targetPath, sourceInfo.Mode(), sourceModTime, hashAlgorithm)
	if err != nil {
		accumulator.RecordFailure(report.Failure{SourcePath: d.item.SourcePath, Error: err.Error()})
		accumulator.RecordError(errtax.Wrap(errtax.CopyFailed, d.item.SourcePath, err))
		return
	}
	if !haveExpectedDigest {
		expectedDigest = computedDigest
	}

	verified, reason := e.verify(d.item.SourcePath, targetPath, sourceInfo, expectedDigest)
	if !verified {
		accumulator.RecordDiscrepancy(report.Discrepancy{
			SourcePath: d.item.SourcePath,
			TargetPath: targetPath,
			Reason:     reason,
		})
		accumulator.RecordError(errtax.New(errtax.VerifyMismatch, reason).WithContext("path", d.item.SourcePath))
		return
	}

	accumulator.RecordCopied(sourceInfo.Size())
	ckpt.Record(d.item.SourcePath, checkpoint.Entry{
		TargetPath: targetPath,
		Size:       sourceInfo.Size(),
		ModTime:    sourceModTime,
		Verified:   true,
		Timestamp:  time.Now(),
	})
}

// copyFile copies sourcePath to targetPath via a temporary sibling file
// then renames it into place, preserving ownership, mode, and modification
// time. If algorithm is non-empty, the copy is hashed in the same pass via
// hashing.HashingWriter and the resulting digest is returned, sparing the
// caller a second full read of the source to establish an expected digest.
// The copy is interruptible: ctx cancellation (operator Ctrl-C or a
// termination signal) aborts mid-file rather than running every queued copy
// to completion.
func copyFile(ctx context.Context, sourcePath, targetPath string, mode os.FileMode, modTime time.Time, algorithm hashing.Algorithm) (string, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("unable to open source file: %w", err)
	}
	defer source.Close()

	temporary, err := os.CreateTemp(filepath.Dir(targetPath), filesystem.TemporaryNamePrefix+"copy-*")
	if err != nil {
		return "", fmt.Errorf("unable to create temporary file: %w", err)
	}
	tempName := temporary.Name()

	var destination io.Writer = temporary
	var hasher hash.Hash
	if algorithm != "" {
		destination, hasher, err = hashing.HashingWriter(temporary, algorithm)
		if err != nil {
			temporary.Close()
			os.Remove(tempName)
			return "", fmt.Errorf("unable to construct hashing writer: %w", err)
		}
	}
	destination = stream.NewPreemptableWriter(destination, ctx.Done(), preemptionCheckInterval)

	written, err := io.Copy(destination, source)
	if err != nil {
		temporary.Close()
		os.Remove(tempName)
		if err == stream.ErrWritePreempted {
			return "", fmt.Errorf("copy interrupted: %w", ctx.Err())
		}
		return "", fmt.Errorf("unable to copy file contents: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(tempName)
		return "", fmt.Errorf("unable to close temporary file: %w", err)
	}

	sourceInfo, statErr := os.Stat(sourcePath)
	if statErr == nil && written != sourceInfo.Size() {
		os.Remove(tempName)
		return "", fmt.Errorf("copy truncated: wrote %d of %d bytes", written, sourceInfo.Size())
	}

	// Ownership preservation is best-effort: a non-privileged migration run
	// cannot chown to arbitrary source owners, and that's not fatal.
	if uid, gid, err := filesystem.GetOwnership(sourceInfo); err == nil {
		_ = filesystem.SetOwnership(tempName, uid, gid)
	}
	if err := filesystem.SetPermissionsByPath(tempName, nil, filesystem.Mode(mode.Perm())); err != nil {
		os.Remove(tempName)
		return "", fmt.Errorf("unable to set file mode: %w", err)
	}
	if err := os.Chtimes(tempName, modTime, modTime); err != nil {
		os.Remove(tempName)
		return "", fmt.Errorf("unable to set modification time: %w", err)
	}
	if err := os.Rename(tempName, targetPath); err != nil {
		os.Remove(tempName)
		return "", fmt.Errorf("unable to rename temporary file into place: %w", err)
	}

	if hasher == nil {
		return "", nil
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// verify runs the integrity check selected by the engine's configured
// method. expectedDigest is the digest established before or during the
// copy (from the hash index or computed in-stream by copyFile) and is only
// consulted when the engine is configured for IntegrityHash.
func (e *Engine) verify(sourcePath, targetPath string, sourceInfo os.FileInfo, expectedDigest string) (bool, string) {
	switch e.Integrity {
	case IntegrityHash:
		algorithm := hashing.Algorithm(e.HashAlgorithm)
		expected := expectedDigest
		if expected == "" {
			digest, err := hashing.HashFile(sourcePath, algorithm)
			if err != nil {
				return false, err.Error()
			}
			expected = digest
		}
		ok, err := hashing.VerifyWithRetry(targetPath, expected, algorithm, e.VerifyRetries)
		if err != nil {
			return false, err.Error()
		}
		if !ok {
			return false, "digest mismatch"
		}
		return true, ""
	case IntegritySize:
		targetInfo, err := os.Stat(targetPath)
		if err != nil {
			return false, err.Error()
		}
		if !hashing.CompareSize(sourceInfo.Size(), targetInfo.Size()) {
			return false, "size mismatch"
		}
		return true, ""
	case IntegrityMetadata:
		targetInfo, err := os.Stat(targetPath)
		if err != nil {
			return false, err.Error()
		}
		if !hashing.CompareMetadata(sourceInfo.Size(), targetInfo.Size(), sourceInfo.ModTime().Unix(), targetInfo.ModTime().Unix()) {
			return false, "metadata mismatch"
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown integrity method: %s", e.Integrity)
	}
}
