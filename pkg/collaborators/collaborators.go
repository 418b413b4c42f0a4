// Package collaborators defines the narrow interfaces the core migration
// engine consumes for functionality that lives outside the core: remote-
// share/removable-volume mounting, disk enumeration, shortcut/printer
// translation, report transport, notification, and configuration loading.
// Hash-index loading is done by pkg/hashindex and is not an interface here.
// The core depends only on these interfaces; concrete implementations are
// wired in by the CLI entry points and are never part of this module.
package collaborators

import "context"

// MountResult describes a completed mount operation.
type MountResult struct {
	// LocalPath is the local path at which the source is now available.
	LocalPath string
}

// Mounter mounts and unmounts the migration source (a CIFS/DFS share or a
// removable volume). Both operations must be idempotent: mounting an
// already-mounted source, or unmounting an already-unmounted one, succeeds
// without error.
type Mounter interface {
	Mount(ctx context.Context) (MountResult, error)
	Unmount(ctx context.Context) error
}

// DiskEnumerator returns the set of non-primary disks visible to the
// source system, keyed by drive letter, for shortcut translation only.
// Implementations that don't support this may return an empty map.
type DiskEnumerator interface {
	EnumerateDisks(ctx context.Context) (map[string]string, error)
}

// ShortcutCreator translates a Windows shortcut into a desktop-entry file
// (or equivalent) for a migrated user. Failures are isolated: the
// orchestrator logs them but never changes run status because of one.
type ShortcutCreator interface {
	CreateShortcut(ctx context.Context, userHome, shortcutSourcePath string) error
}

// PrinterRegistrar registers a migrated user's printers on the target
// host. Failures are isolated, same as ShortcutCreator.
type PrinterRegistrar interface {
	RegisterPrinters(ctx context.Context, userHome string) error
}

// Reporter delivers a finished report document to an external system
// (ticketing, dashboard, etc.), beyond the local JSON file pkg/report
// already writes.
type Reporter interface {
	Deliver(ctx context.Context, reportPath string) error
}

// Notifier sends a completion or failure notification through an external
// transport (email, chat webhook, etc.).
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// ConfigLoader loads raw configuration bytes from an external source (a
// secrets manager, a remote config service) before pkg/config parses them.
// The default path is simply reading the local YAML file, which pkg/config
// does directly; this interface exists for deployments that source
// configuration from elsewhere.
type ConfigLoader interface {
	Load(ctx context.Context) ([]byte, error)
}
