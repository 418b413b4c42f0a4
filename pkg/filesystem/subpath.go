package filesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Subpath computes (and optionally creates) a subpath inside the specified
// root directory, joining the given path components beneath it. It's used to
// lay out the fixed set of files a journal or checkpoint store keeps beneath
// a single configured state directory (see pkg/journal), playing the role
// that a per-user app-data directory plays in single-machine tools: one
// well-known root, several well-known children.
func Subpath(root string, create bool, pathComponents ...string) (string, error) {
	result := filepath.Join(root, filepath.Join(pathComponents...))

	if create {
		if err := os.MkdirAll(filepath.Dir(result), 0700); err != nil {
			return "", errors.Wrap(err, "unable to create subpath")
		}
	}

	return result, nil
}
