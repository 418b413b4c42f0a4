package migration

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// WorkItem is a single file enqueued for phase A copying. Once enumerated,
// work items are immutable, so the copy worker pool only ever sees
// read-only values.
type WorkItem struct {
	SourcePath string
	Size       int64
	ModTime    int64 // Unix seconds, for deterministic sort and comparison.
}

// Walk performs a breadth-first enumeration of sourceRoot, pruning
// directories whose relative path matches excludeDirs, excluding dotfiles
// unconditionally, and excluding files whose relative path matches any of
// excludeFileGlobs (matched with doublestar). The
// returned items are sorted by descending modification time, so newer
// content is copied first under a bounded-loss interruption policy.
func Walk(sourceRoot string, excludeDirs, excludeFileGlobs []string) ([]WorkItem, error) {
	excludedDirSet := make(map[string]bool, len(excludeDirs))
	for _, dir := range excludeDirs {
		excludedDirSet[filepath.ToSlash(dir)] = true
	}

	var items []WorkItem
	queue := []string{""}

	for len(queue) > 0 {
		relativeDir := queue[0]
		queue = queue[1:]

		absoluteDir := filepath.Join(sourceRoot, relativeDir)
		entries, err := os.ReadDir(absoluteDir)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}

			relativePath := filepath.ToSlash(filepath.Join(relativeDir, name))

			if entry.IsDir() {
				if excludedDirSet[relativePath] {
					continue
				}
				queue = append(queue, filepath.Join(relativeDir, name))
				continue
			}

			if matchesAnyGlob(excludeFileGlobs, relativePath) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				return nil, err
			}

			items = append(items, WorkItem{
				SourcePath: filepath.Join(sourceRoot, relativePath),
				Size:       info.Size(),
				ModTime:    info.ModTime().Unix(),
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ModTime > items[j].ModTime
	})

	return items, nil
}

// matchesAnyGlob reports whether path matches any of the given doublestar
// glob patterns. A malformed pattern never matches rather than aborting
// the walk.
func matchesAnyGlob(globs []string, path string) bool {
	for _, glob := range globs {
		if matched, err := doublestar.Match(glob, path); err == nil && matched {
			return true
		}
	}
	return false
}
