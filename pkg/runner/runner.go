// Package runner executes external commands as structured argument lists.
//
// Commands are never interpreted by a shell: package names or paths containing
// spaces, quotes or semicolons are passed verbatim as single arguments. The exit
// code is the only success signal.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command describes a process to execute.
type Command struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env holds extra KEY=VALUE pairs appended to the current environment
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir string   `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// String renders the command for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result of a completed command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExitError reports a command that ran to completion with a non-zero exit code.
type ExitError struct {
	Command Command
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%q exited with code %d", e.Command.String(), e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner knows how to run commands to completion, and how to launch them in the background.
type Runner interface {
	// Run executes a command and waits for it. A non-zero exit is reported as an *ExitError,
	// along with the captured output.
	Run(context.Context, Command) (Result, error)

	// Start launches a command without waiting for it, returning its pid.
	Start(context.Context, Command) (int, error)
}

var _ Runner = &Exec{}

// Exec runs commands with os/exec
type Exec struct {
	l *zap.Logger
}

// New command runner backed by os/exec
func New(l *zap.Logger) *Exec {
	if l == nil {
		l = zap.NewNop()
	}
	return &Exec{l: l}
}

func (e *Exec) command(ctx context.Context, c Command) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, c.Name, c.Args...)
	} else {
		cmd = exec.Command(c.Name, c.Args...)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir
	return cmd
}

// Run a command to completion
func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	cmd := e.command(ctx, c)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.l.Debug("running command", zap.Stringer("command", c))
	err := cmd.Run()
	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err == nil {
		return res, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{
			Command: c,
			Code:    res.ExitCode,
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("cannot run %q: %w", c.String(), err)
}

// Start a command in the background. Its output is discarded and it is not
// killed when ctx is done.
func (e *Exec) Start(_ context.Context, c Command) (int, error) {
	cmd := e.command(nil, c)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("cannot start %q: %w", c.String(), err)
	}
	pid := cmd.Process.Pid
	// reap the child when it exits
	go func() { _ = cmd.Wait() }()

	e.l.Debug("started command", zap.Stringer("command", c), zap.Int("pid", pid))
	return pid, nil
}
