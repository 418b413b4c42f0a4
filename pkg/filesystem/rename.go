// +build !windows

package filesystem

import (
	"golang.org/x/sys/unix"
)

// RenameNoReplace atomically renames oldPath to newPath, failing instead of
// clobbering an existing entry at newPath. It returns unix.ENOSYS or
// unix.ENOTSUP if the platform or target filesystem doesn't support atomic
// no-clobber rename, in which case the caller should fall back to a
// check-then-rename sequence of its own.
func RenameNoReplace(oldPath, newPath string) error {
	return renameatNoReplaceRetryingOnEINTR(unix.AT_FDCWD, oldPath, unix.AT_FDCWD, newPath)
}
