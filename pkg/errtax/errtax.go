// Package errtax implements the migration engine's error taxonomy: a fixed
// set of codes grouped into categories, each carrying a description, a
// recommended remediation, and a default severity. Errors are propagated as
// structured Records rather than raw error values so they can flow through
// the journal unchanged (see pkg/journal).
package errtax

import (
	"fmt"
	"time"
)

// Severity classifies how serious an error is for the purpose of deciding
// whether it changes the global migration status.
type Severity string

const (
	// SeverityWarning indicates a condition worth recording but which never
	// changes status on its own.
	SeverityWarning Severity = "WARNING"
	// SeverityError indicates an operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityCritical indicates the run cannot continue.
	SeverityCritical Severity = "CRITICAL"
)

// Category groups related codes.
type Category string

const (
	CategoryInit    Category = "INIT"
	CategoryConfig  Category = "CONFIG"
	CategoryMount   Category = "MOUNT"
	CategorySource  Category = "SOURCE"
	CategoryTarget  Category = "TARGET"
	CategoryCopy    Category = "COPY"
	CategoryVerify  Category = "VERIFY"
	CategoryUser    Category = "USER"
	CategoryNetwork Category = "NETWORK"
	CategorySystem  Category = "SYSTEM"
)

// Code identifies a specific, enumerated error condition.
type Code string

const (
	InitFailedToStart       Code = "INIT_001"
	InitMissingDependency   Code = "INIT_002"
	ConfigInvalid           Code = "CONFIG_001"
	MountFailed             Code = "MOUNT_001"
	MountTimeout            Code = "MOUNT_002"
	MountCredentialsInvalid Code = "MOUNT_003"
	SourceUnreadable        Code = "SOURCE_001"
	SourceUserMissing       Code = "SOURCE_002"
	SourceEnumerationFailed Code = "SOURCE_003"
	TargetUnwritable        Code = "TARGET_001"
	TargetHomeConflict      Code = "TARGET_002"
	TargetRenameFailed      Code = "TARGET_003"
	CopyFailed              Code = "COPY_001"
	CopyTruncated           Code = "COPY_002"
	CopyPermissionDenied    Code = "COPY_003"
	VerifyMismatch          Code = "VERIFY_001"
	VerifyIOFailure         Code = "VERIFY_002"
	VerifyUnknownAlgorithm  Code = "VERIFY_003"
	UserPartialFailure      Code = "USER_001"
	UserAlreadyComplete     Code = "USER_002"
	UserUnhandledError      Code = "USER_003"
	NetworkUnreachable      Code = "NETWORK_001"
	NetworkTimeout          Code = "NETWORK_002"
	NetworkAuthFailed       Code = "NETWORK_003"
	SystemOutOfSpace        Code = "SYSTEM_001"
	SystemUnexpected        Code = "SYSTEM_002"
	SystemResourceExhausted Code = "SYSTEM_003"
)

// definition captures the static facts about a code: its category, default
// severity, human-readable description, and recommended remediation.
type definition struct {
	category    Category
	severity    Severity
	description string
	solution    string
}

var definitions = map[Code]definition{
	InitFailedToStart:       {CategoryInit, SeverityCritical, "the orchestrator failed to initialize", "check the log for the underlying cause and restart"},
	InitMissingDependency:   {CategoryInit, SeverityCritical, "a required external collaborator is unavailable", "verify the collaborator binary or service is installed and reachable"},
	ConfigInvalid:           {CategoryConfig, SeverityCritical, "the configuration file is invalid", "correct the configuration file and restart"},
	MountFailed:             {CategoryMount, SeverityError, "unable to mount the migration source", "verify network connectivity and mount credentials"},
	MountTimeout:            {CategoryMount, SeverityError, "mounting the migration source timed out", "verify the remote share is reachable and retry"},
	MountCredentialsInvalid: {CategoryMount, SeverityError, "the supplied mount credentials were rejected", "verify the credential reference and its decrypted value"},
	SourceUnreadable:        {CategorySource, SeverityError, "the source directory could not be read", "verify the mount point and source root are correct"},
	SourceUserMissing:       {CategorySource, SeverityError, "a configured user directory is missing from the source", "verify the user's directory exists on the source"},
	SourceEnumerationFailed: {CategorySource, SeverityError, "enumerating user directories on the source failed", "verify source permissions and retry"},
	TargetUnwritable:        {CategoryTarget, SeverityError, "the target home directory could not be written", "verify target filesystem permissions and free space"},
	TargetHomeConflict:      {CategoryTarget, SeverityError, "the target home directory already contains conflicting content", "inspect the target home directory manually"},
	TargetRenameFailed:      {CategoryTarget, SeverityError, "a phase B directory rename failed", "inspect the target home directory and retry the run"},
	CopyFailed:              {CategoryCopy, SeverityError, "copying a file failed", "check source and target filesystem health and retry"},
	CopyTruncated:           {CategoryCopy, SeverityError, "a copy produced fewer bytes than the source file", "retry the copy; check for a failing storage device"},
	CopyPermissionDenied:    {CategoryCopy, SeverityError, "permission denied while copying a file", "verify the orchestrator's effective permissions on source and target"},
	VerifyMismatch:          {CategoryVerify, SeverityError, "the copied file's digest did not match the expected value", "inspect the source file and hash index entry, then retry"},
	VerifyIOFailure:         {CategoryVerify, SeverityError, "an IO error occurred while verifying a copy", "check storage health and retry"},
	VerifyUnknownAlgorithm:  {CategoryVerify, SeverityError, "an unknown hash algorithm was configured", "correct the hash_algorithm configuration field"},
	UserPartialFailure:      {CategoryUser, SeverityError, "one or more files failed to copy for this user", "inspect the per-user report for details"},
	UserAlreadyComplete:     {CategoryUser, SeverityError, "the user was already migrated", "no action required"},
	UserUnhandledError:      {CategoryUser, SeverityError, "an unhandled error occurred while migrating this user", "inspect the log for a stack trace and retry the run"},
	NetworkUnreachable:      {CategoryNetwork, SeverityError, "the network source could not be reached", "verify network connectivity"},
	NetworkTimeout:          {CategoryNetwork, SeverityError, "a network operation timed out", "verify network latency and retry"},
	NetworkAuthFailed:       {CategoryNetwork, SeverityError, "network authentication failed", "verify mount credentials"},
	SystemOutOfSpace:        {CategorySystem, SeverityCritical, "the target filesystem is out of space", "free space on the target filesystem and retry"},
	SystemUnexpected:        {CategorySystem, SeverityError, "an unexpected system error occurred", "inspect the log for details"},
	SystemResourceExhausted: {CategorySystem, SeverityCritical, "a system resource limit was exhausted", "inspect open file/process limits and retry"},
}

// Cause captures a minimal, serializable representation of an underlying Go
// error, preserved when a Record wraps one.
type Cause struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// Record is the structured error representation that flows through the
// journal as last_error. It is immutable once constructed.
type Record struct {
	Code        Code              `json:"code"`
	Category    Category          `json:"category"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Solution    string            `json:"solution"`
	Details     string            `json:"details,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Cause       *Cause            `json:"cause,omitempty"`
}

// New constructs a Record for the given code, filling in the category,
// severity, description, and solution from the static taxonomy. It panics if
// code is not a recognized code, since an unrecognized code indicates a
// programming error, not a runtime condition.
func New(code Code, details string) *Record {
	def, ok := definitions[code]
	if !ok {
		panic(fmt.Sprintf("unrecognized error code: %s", code))
	}
	return &Record{
		Code:        code,
		Category:    def.category,
		Severity:    def.severity,
		Description: def.description,
		Solution:    def.solution,
		Details:     details,
		Timestamp:   time.Now(),
	}
}

// Wrap constructs a Record for the given code with an underlying Go error
// recorded as its Cause.
func Wrap(code Code, details string, cause error) *Record {
	record := New(code, details)
	if cause != nil {
		record.Cause = &Cause{
			Type:    fmt.Sprintf("%T", cause),
			Message: cause.Error(),
		}
	}
	return record
}

// WithContext attaches contextual key-value pairs to the record and returns
// it for chaining.
func (r *Record) WithContext(key, value string) *Record {
	if r.Context == nil {
		r.Context = make(map[string]string)
	}
	r.Context[key] = value
	return r
}

// Error implements the error interface.
func (r *Record) Error() string {
	if r.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", r.Code, r.Description, r.Details)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

// FailsGlobalStatus reports whether a record of this severity/category
// transitions the global migration status to failed: any CRITICAL error, or
// any error in the INIT, CONFIG, MOUNT, or SOURCE categories.
func (r *Record) FailsGlobalStatus() bool {
	if r.Severity == SeverityCritical {
		return true
	}
	switch r.Category {
	case CategoryInit, CategoryConfig, CategoryMount, CategorySource:
		return true
	default:
		return false
	}
}
