package supervisor

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/process"
	"github.com/usermigrate/migrator/pkg/stream"
)

// Child is a running orchestrator process under watch. It abstracts
// exec.Cmd so the FSM in supervisor.go can be tested against a fake.
type Child interface {
	Pid() int
	Signal(sig syscall.Signal) error
	// Wait blocks until the process exits and returns its exit code (or
	// -1 if the exit code could not be determined).
	Wait() (int, error)
}

// Spawner starts a new orchestrator process.
type Spawner interface {
	Spawn(ctx context.Context) (Child, error)
}

// CommandSpawner spawns the orchestrator binary as a detached child
// process using pkg/process's DetachedProcessAttributes. The child's
// stdout and stderr are line-split and forwarded to Logger so that
// orchestrator output appears in the supervisor's own log stream.
type CommandSpawner struct {
	Path   string
	Args   []string
	Logger *logging.Logger
}

// Spawn starts the configured command detached from the supervisor's
// controlling terminal.
func (s *CommandSpawner) Spawn(ctx context.Context) (Child, error) {
	cmd := exec.Command(s.Path, s.Args...)
	cmd.SysProcAttr = process.DetachedProcessAttributes()
	if s.Logger != nil {
		cmd.Stdout = &stream.LineProcessor{Callback: func(line string) {
			s.Logger.Infof("orchestrator: %s", line)
		}}
		cmd.Stderr = &stream.LineProcessor{Callback: func(line string) {
			s.Logger.Warnf("orchestrator: %s", line)
		}}
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processChild{cmd: cmd}, nil
}

// processChild wraps a running *exec.Cmd as a Child.
type processChild struct {
	cmd *exec.Cmd
}

func (c *processChild) Pid() int {
	return c.cmd.Process.Pid
}

func (c *processChild) Signal(sig syscall.Signal) error {
	return c.cmd.Process.Signal(sig)
}

func (c *processChild) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return process.ExitCodeForProcessState(c.cmd.ProcessState)
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code, codeErr := process.ExitCodeForProcessState(exitErr.ProcessState); codeErr == nil {
			return code, nil
		}
	}
	return -1, err
}
