// Package config loads the orchestrator's YAML configuration file: source
// and mount parameters, exclude lists, integrity policy, retry and timing
// parameters, the domain suffix map, and the set of on-disk paths the
// journal and report subsystems use.
package config

import (
	"fmt"

	"github.com/usermigrate/migrator/pkg/encoding"
	"github.com/usermigrate/migrator/pkg/filesystem"
	"github.com/usermigrate/migrator/pkg/pathmap"
)

// SourceType identifies where user home directories are migrated from.
type SourceType string

const (
	// SourceNetwork indicates a CIFS/DFS share mounted over the network.
	SourceNetwork SourceType = "network"
	// SourceUSB indicates a removable volume.
	SourceUSB SourceType = "usb"
)

// IntegrityMethod identifies how copied files are verified.
type IntegrityMethod string

const (
	// IntegrityHash verifies files by recomputing a cryptographic digest.
	IntegrityHash IntegrityMethod = "hash"
	// IntegritySize verifies files by byte-length comparison only.
	IntegritySize IntegrityMethod = "size"
	// IntegrityMetadata verifies files by size and mtime comparison.
	IntegrityMetadata IntegrityMethod = "metadata"
)

// Mount holds the parameters governing the external mount collaborator's
// retry behavior. The mount operation itself is performed by an external
// Mounter collaborator (see pkg/collaborators); this type only carries the
// timing policy around it.
type Mount struct {
	// Attempts is the number of mount attempts before giving up.
	Attempts int `yaml:"attempts"`
	// Delay is the pause between failed mount attempts, as a duration
	// string (e.g. "5s").
	Delay Duration `yaml:"delay"`
	// Timeout bounds a single mount attempt.
	Timeout Duration `yaml:"timeout"`
}

// Retry holds retry policy for per-file integrity verification.
type Retry struct {
	// Count is the number of additional attempts after the first failure.
	Count int `yaml:"count"`
}

// Config is the orchestrator's top-level, read-only-at-start configuration.
// It is loaded once from a YAML file and never mutated afterward; every
// subsystem that needs a configuration value takes it (or a narrowed view
// of it) at construction time.
type Config struct {
	// Source describes where migrated content originates.
	Source struct {
		Type SourceType `yaml:"type"`
		Root string     `yaml:"root"`
	} `yaml:"source"`

	// MountPoint is the local path at which the source is (or will be)
	// mounted, for SourceNetwork and SourceUSB alike.
	MountPoint string `yaml:"mount_point"`

	// CredentialReference names an external secret (e.g. a credential
	// manager key or environment variable name) holding the mount
	// credentials. The raw credential value is never stored here and
	// never logged; obtaining and decrypting it is the responsibility of
	// a CredentialDecryptor collaborator supplied by the caller.
	CredentialReference string `yaml:"credential_reference"`

	// ExcludeDirs lists directory names (matched by relative path
	// component) pruned unconditionally during the tree walk.
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// ExcludeFileGlobs lists glob patterns (matched with
	// github.com/bmatcuk/doublestar/v4 against the file's relative path)
	// excluding individual files from migration.
	ExcludeFileGlobs []string `yaml:"exclude_file_globs"`

	// Integrity selects how copied files are verified.
	Integrity IntegrityMethod `yaml:"integrity_method"`

	// HashAlgorithm names the digest algorithm used when Integrity is
	// IntegrityHash ("sha256" or "md5").
	HashAlgorithm string `yaml:"hash_algorithm"`

	// HashIndexPath optionally points to a prebuilt hash index: a
	// tab-separated (path, digest) dump read by pkg/hashindex.
	// When empty, hashes are computed fresh.
	HashIndexPath string `yaml:"hash_index_path,omitempty"`

	// VerifyRetry governs retries of a failed per-file verification.
	VerifyRetry Retry `yaml:"verify_retry"`

	// Mount governs the external mount collaborator's retry and timing
	// policy.
	Mount Mount `yaml:"mount"`

	// DomainSuffixMap maps a short domain token (as found in a username)
	// to the fully-qualified suffix appended when constructing a target
	// home directory name, e.g. {"corp": "corp.example.com"}.
	DomainSuffixMap map[string]string `yaml:"domain_suffix_map"`

	// StateFilePath is the local path of the primary journal file.
	StateFilePath string `yaml:"state_file_path"`

	// RemoteStateFilePath is the secondary, dual-written journal path
	// (typically on the mounted source, so a remote observer can see
	// progress without access to the local host).
	RemoteStateFilePath string `yaml:"remote_state_file_path"`

	// ReportDirectory is where per-run and per-user report documents are
	// written.
	ReportDirectory string `yaml:"report_directory"`

	// CheckpointDirectory is where per-user resumable checkpoint files
	// are written.
	CheckpointDirectory string `yaml:"checkpoint_directory"`

	// HeartbeatInterval is the period at which the orchestrator updates
	// the journal's last_heartbeat field.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// MaxFileSizeWarning is a supplemental field: files above this size
	// are copied normally but generate a warning in the log and report,
	// since outsized profile/cache files are a common migration pain
	// point. Zero disables the warning.
	MaxFileSizeWarning ByteSize `yaml:"max_file_size_warning,omitempty"`

	// CheckpointRetention bounds how long a terminal user's checkpoint
	// file is kept before the housekeeping sweep removes it.
	CheckpointRetention Duration `yaml:"checkpoint_retention"`

	// Mapping is the static path-translation table (folder localization,
	// Desktop expansion, browser-profile redirection).
	Mapping pathmap.Mapping `yaml:"path_mapping"`

	// HomeRoot is the parent directory under which each user's target
	// home directory ("<HomeRoot>/<username>") is created. Defaults to
	// "/home" when empty.
	HomeRoot string `yaml:"home_root,omitempty"`
}

// Load reads and decodes the YAML configuration file at path, then
// validates it.
func Load(path string) (*Config, error) {
	configuration := &Config{}
	if err := encoding.LoadAndUnmarshalYAML(path, configuration); err != nil {
		return nil, fmt.Errorf("unable to load configuration: %w", err)
	}
	if err := configuration.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return configuration, nil
}

// validate checks required fields and enumerated values for consistency.
// It does not touch the filesystem or network.
func (c *Config) validate() error {
	switch c.Source.Type {
	case SourceNetwork, SourceUSB:
	default:
		return fmt.Errorf("unknown source type: %q", c.Source.Type)
	}
	if c.Source.Root == "" {
		return fmt.Errorf("source root must not be empty")
	}
	switch c.Integrity {
	case IntegrityHash, IntegritySize, IntegrityMetadata:
	default:
		return fmt.Errorf("unknown integrity method: %q", c.Integrity)
	}
	if c.Integrity == IntegrityHash {
		switch c.HashAlgorithm {
		case "sha256", "md5":
		default:
			return fmt.Errorf("unknown hash algorithm: %q", c.HashAlgorithm)
		}
	}
	if c.StateFilePath == "" {
		return fmt.Errorf("state_file_path must not be empty")
	}
	if c.ReportDirectory == "" {
		return fmt.Errorf("report_directory must not be empty")
	}
	if c.HomeRoot == "" {
		c.HomeRoot = "/home"
	}
	return c.normalizePaths()
}

// normalizePaths expands home-directory tildes and resolves every
// filesystem path in the configuration to a clean absolute path, so that
// later components never have to re-derive what the user meant by a
// relative or tilde-prefixed path in the YAML file.
func (c *Config) normalizePaths() error {
	fields := []*string{&c.HomeRoot, &c.StateFilePath, &c.ReportDirectory}
	if c.CheckpointDirectory != "" {
		fields = append(fields, &c.CheckpointDirectory)
	}
	if c.RemoteStateFilePath != "" {
		fields = append(fields, &c.RemoteStateFilePath)
	}
	if c.HashIndexPath != "" {
		fields = append(fields, &c.HashIndexPath)
	}
	for _, field := range fields {
		normalized, err := filesystem.Normalize(*field)
		if err != nil {
			return fmt.Errorf("unable to normalize path %q: %w", *field, err)
		}
		*field = normalized
	}
	return nil
}

// CredentialDecryptor resolves a credential reference into a usable secret
// value. It is an external collaborator: this package only carries the
// reference string, never the decrypted value, and never logs either.
type CredentialDecryptor interface {
	Decrypt(reference string) (string, error)
}
