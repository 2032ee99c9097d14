// Package mocks provides a testify mock for runner.Runner
package mocks

import (
	"context"

	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/stretchr/testify/mock"
)

var _ runner.Runner = &Runner{}

// Runner is a mock command runner
type Runner struct {
	mock.Mock
}

// Run mocks runner.Runner.Run
func (m *Runner) Run(ctx context.Context, c runner.Command) (runner.Result, error) {
	args := m.Called(ctx, c)
	res, _ := args.Get(0).(runner.Result)
	return res, args.Error(1)
}

// Start mocks runner.Runner.Start
func (m *Runner) Start(ctx context.Context, c runner.Command) (int, error) {
	args := m.Called(ctx, c)
	return args.Int(0), args.Error(1)
}

// Cmd builds a matcher for a command by name and arguments
func Cmd(name string, args ...string) interface{} {
	return mock.MatchedBy(func(c runner.Command) bool {
		if c.Name != name || len(c.Args) != len(args) {
			return false
		}
		for i := range args {
			if c.Args[i] != args[i] {
				return false
			}
		}
		return true
	})
}

// Fail builds an exit error result for a command
func Fail(code int, name string, args ...string) (runner.Result, error) {
	c := runner.Command{Name: name, Args: args}
	return runner.Result{ExitCode: code}, &runner.ExitError{Command: c, Code: code}
}
