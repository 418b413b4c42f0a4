package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usermigrate/migrator/pkg/collaborators"
	"github.com/usermigrate/migrator/pkg/filesystem"
)

// preMountedSource is the Mounter used when no richer collaborator is
// wired in: it treats Config.MountPoint as already mounted (a CIFS share
// mounted by the host's own fstab, or a USB volume the kernel already
// auto-mounted) and only verifies that it's reachable. Real network-share
// or removable-volume mounting is left to a richer collaborator; this is
// the minimal stand-in that lets the orchestrator run end to end against a
// source the operator has already made available.
type preMountedSource struct {
	root string
}

func (m *preMountedSource) Mount(ctx context.Context) (collaborators.MountResult, error) {
	info, err := os.Stat(m.root)
	if err != nil {
		return collaborators.MountResult{}, fmt.Errorf("migration source %s is not reachable: %w", m.root, err)
	}
	if !info.IsDir() {
		return collaborators.MountResult{}, fmt.Errorf("migration source %s is not a directory", m.root)
	}
	if parent := filepath.Dir(m.root); parent != m.root {
		if rootDevice, err := filesystem.DeviceID(m.root); err == nil {
			if parentDevice, err := filesystem.DeviceID(parent); err == nil && parentDevice == rootDevice {
				return collaborators.MountResult{}, fmt.Errorf("migration source %s is not a separate mount point", m.root)
			}
		}
	}
	return collaborators.MountResult{LocalPath: m.root}, nil
}

func (m *preMountedSource) Unmount(context.Context) error {
	return nil
}
