// Package hashing implements the streaming hash, size, and metadata
// comparison primitives used by the migration engine's integrity checker
// (spec component C1). Files are always hashed in fixed-size blocks rather
// than loaded whole, using stdlib hash.Hash implementations pushed through
// the same "hash while streaming" idiom as pkg/stream's hashed writer.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/usermigrate/migrator/pkg/stream"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmMD5    Algorithm = "md5"
)

// blockSize is the fixed read block size used when streaming a file through
// a hasher; chosen to amortize syscall overhead without holding large
// buffers for many concurrent copy workers.
const blockSize = 256 * 1024

// newHasher returns a fresh hash.Hash for the given algorithm.
func newHasher(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmMD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %q", algorithm)
	}
}

// HashFile streams the file at path through the given algorithm's hasher in
// fixed-size blocks and returns the resulting digest as a lowercase hex
// string. The full file is never loaded into memory at once.
func HashFile(path string, algorithm Algorithm) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	buffer := make([]byte, blockSize)
	if _, err := io.CopyBuffer(hasher, file, buffer); err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashingWriter wraps a destination writer so that bytes written to it are
// simultaneously accumulated into a digest, letting a copy loop compute the
// target file's hash without a second read pass.
func HashingWriter(destination io.Writer, algorithm Algorithm) (io.Writer, hash.Hash, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return nil, nil, err
	}
	return stream.NewHashedWriter(destination, hasher), hasher, nil
}

// CompareDigests reports whether two hex-encoded digests are equal,
// ignoring case.
func CompareDigests(a, b string) bool {
	return strings.EqualFold(a, b)
}

// CompareSize reports whether two byte lengths are equal.
func CompareSize(a, b int64) bool {
	return a == b
}

// CompareMetadata reports whether two files are equal by size and
// integer-second mtime.
func CompareMetadata(aSize, bSize int64, aModTimeUnix, bModTimeUnix int64) bool {
	return aSize == bSize && aModTimeUnix == bModTimeUnix
}

// VerifyWithRetry recomputes the digest of the file at path up to
// retries+1 times, returning true as soon as the digest matches expected
// (case-insensitively). It returns the last error encountered if every
// attempt fails with an IO error rather than a mismatch.
func VerifyWithRetry(path, expected string, algorithm Algorithm, retries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		digest, err := HashFile(path, algorithm)
		if err != nil {
			lastErr = err
			continue
		}
		if CompareDigests(digest, expected) {
			return true, nil
		}
		lastErr = nil
	}
	return false, lastErr
}
