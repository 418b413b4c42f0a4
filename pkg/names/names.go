// Package names implements per-directory basename reservation with
// byte-length truncation and collision suffixing, per spec component C3.
// A Registry is instantiated once per destination directory and shared by
// all copy workers; its internal map is protected by a mutex since workers
// resolve destination basenames concurrently.
package names

import (
	"fmt"
	"strings"
	"sync"
)

// MaxNameBytes is the maximum basename length, in bytes, accepted by the
// target filesystem.
const MaxNameBytes = 255

// Rename records an original candidate name mapped to the final reserved
// name, for reporting.
type Rename struct {
	Original string
	Final    string
}

// Registry reserves unique, length-valid basenames within a single parent
// directory. One Registry must be created per destination directory.
type Registry struct {
	mu       sync.Mutex
	reserved map[string]bool
}

// NewRegistry creates an empty, unpopulated name registry for one
// directory.
func NewRegistry() *Registry {
	return &Registry{reserved: make(map[string]bool)}
}

// Reserve reserves a final basename for the candidate name, truncating and
// suffixing as needed to satisfy the byte-length limit and uniqueness
// within this registry. It returns the final name and, if it differs from
// candidate, a non-nil Rename record.
func (r *Registry) Reserve(candidate string) (string, *Rename) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(candidate) <= MaxNameBytes && !r.reserved[candidate] {
		r.reserved[candidate] = true
		return candidate, nil
	}

	stem, extension := splitExtension(candidate)
	final := truncate(stem, extension, "")

	for ordinal := 1; len(final) > MaxNameBytes || r.reserved[final]; ordinal++ {
		suffix := fmt.Sprintf("_%d", ordinal)
		final = truncate(stem, extension, suffix)
	}

	r.reserved[final] = true
	return final, &Rename{Original: candidate, Final: final}
}

// splitExtension splits name into a stem and an extension (including the
// leading dot), using the last "." in the name. A name with no "." has an
// empty extension.
func splitExtension(name string) (stem, extension string) {
	index := strings.LastIndex(name, ".")
	if index <= 0 {
		return name, ""
	}
	return name[:index], name[index:]
}

// truncate re-assembles stem+suffix+extension, truncating stem as needed so
// the total byte length fits within MaxNameBytes.
func truncate(stem, extension, suffix string) string {
	budget := MaxNameBytes - len(extension) - len(suffix)
	if budget < 0 {
		budget = 0
	}
	trimmedStem := stem
	if len(trimmedStem) > budget {
		trimmedStem = trimmedStem[:budget]
	}
	return trimmedStem + suffix + extension
}
