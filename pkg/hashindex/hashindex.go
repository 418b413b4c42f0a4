// Package hashindex loads a prebuilt index of expected file digests and
// normalizes it into a lookup table tolerant of several equivalent ways a
// source path might be spelled. The index itself is produced externally as
// a line-oriented TSV dump of a "(path, hash)" table; this package never
// opens a database connection.
package hashindex

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/usermigrate/migrator/pkg/pathmap"
)

// minimumBasenameFallbackLength is the shortest basename for which a
// bare-basename fallback key is added; shorter basenames collide too often
// to be useful as a last-resort lookup key.
const minimumBasenameFallbackLength = 12

// Index is a normalized, read-only lookup table from a path variant to its
// expected digest.
type Index struct {
	entries map[string]string
}

// Lookup returns the expected digest for a path, after the same slash
// normalization applied to stored keys, and reports whether an entry was
// found. The lookup key itself is not expanded into variants; tolerance of
// alternative spellings comes from the variants inserted by Load.
func (i *Index) Lookup(key string) (string, bool) {
	digest, ok := i.entries[normalizeSlashes(key)]
	return digest, ok
}

// Load reads a TSV dump of (path, hash) pairs from path dbPath — one pair
// per line, tab-separated — and builds a normalized Index. Each stored path
// is translated through the path translator using base and
// usernameOrNetPrefix (passed through as the Translate network prefix), and
// several alternative keys are inserted per entry so that later lookups can
// succeed regardless of which path variant the caller has in hand. Entries
// for a key already present are ignored: duplicate keys prefer the first
// written value.
func Load(dbPath, base, usernameOrNetPrefix string, mapping pathmap.Mapping) (*Index, error) {
	file, err := os.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open hash index: %w", err)
	}
	defer file.Close()

	index := &Index{entries: make(map[string]string)}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		rawPath, digest := fields[0], fields[1]
		index.insertVariants(rawPath, digest, base, usernameOrNetPrefix, mapping)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read hash index: %w", err)
	}

	return index, nil
}

// insertVariants inserts the several alternative keys tolerated for one
// (rawPath, digest) entry, skipping any key already present so the first
// written value always wins.
func (i *Index) insertVariants(rawPath, digest, base, usernameOrNetPrefix string, mapping pathmap.Mapping) {
	translated := pathmap.Translate(rawPath, base, usernameOrNetPrefix, mapping, false)

	candidates := []string{
		normalizeSlashes(rawPath),
		normalizeSlashes(translated),
	}

	if usernameOrNetPrefix != "" {
		candidates = append(candidates, normalizeSlashes(path.Join(usernameOrNetPrefix, translated)))
	}

	if stripped := stripLeadingSegment(translated, "Desktop"); stripped != "" {
		candidates = append(candidates, normalizeSlashes(stripped))
	}

	basename := path.Base(normalizeSlashes(translated))
	if len(basename) >= minimumBasenameFallbackLength || strings.ContainsAny(basename, "/\\") {
		candidates = append(candidates, basename)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, exists := i.entries[candidate]; !exists {
			i.entries[candidate] = digest
		}
	}
}

// normalizeSlashes converts backslashes to forward slashes and trims a
// single leading slash, mirroring pathmap.Translate's own normalization so
// lookups and stored keys agree.
func normalizeSlashes(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "/")
}

// stripLeadingSegment removes a single leading "<segment>/" prefix from p,
// if present, returning "" if p does not begin with it.
func stripLeadingSegment(p, segment string) string {
	prefix := segment + "/"
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	return p[len(prefix):]
}
