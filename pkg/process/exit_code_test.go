package process

import (
	"os/exec"
	"runtime"
	"testing"
)

// TestExitCodeForProcessState tests that ExitCodeForProcessState extracts the
// correct exit code from a failed command's process state.
func TestExitCodeForProcessState(t *testing.T) {
	err := exec.Command("go", "migrator-test-invalid").Run()
	if err == nil {
		t.Fatal("expected non-nil error when running invalid Go command")
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatal("expected an exec.ExitError")
	}
	if code, codeErr := ExitCodeForProcessState(exitErr.ProcessState); codeErr != nil {
		t.Fatal("unable to extract error exit code:", codeErr)
	} else if code != 2 {
		t.Error("exit code did not match expected:", code)
	}
}

// TestIsPOSIXShellInvalidCommand tests that IsPOSIXShellInvalidCommand
// correctly identifies an "invalid command" error from a POSIX shell.
func TestIsPOSIXShellInvalidCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip()
	}

	err := exec.Command("/bin/sh", "-c", "/dev/null").Run()
	if err == nil {
		t.Fatal("expected non-nil error when running invalid command")
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatal("expected an exec.ExitError")
	}
	if !IsPOSIXShellInvalidCommand(exitErr.ProcessState) {
		t.Error("expected POSIX invalid command classification")
	}
}

// TestIsPOSIXShellCommandNotFound tests that IsPOSIXShellCommandNotFound
// correctly identifies a "command not found" error from a POSIX shell.
func TestIsPOSIXShellCommandNotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip()
	}

	err := exec.Command("/bin/sh", "migrator-test-not-exist").Run()
	if err == nil {
		t.Fatal("expected non-nil error when running non-existent command")
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatal("expected an exec.ExitError")
	}
	if !IsPOSIXShellCommandNotFound(exitErr.ProcessState) {
		t.Error("expected POSIX command not found classification")
	}
}
