// Package filesystem provides filesystem utility methods either not
// provided by the Go standard library or requiring POSIX-specific handling:
// atomic file replacement, ownership and permission helpers, path
// normalization, device-boundary and no-clobber-rename probes, and
// executability preservation checks.
package filesystem
