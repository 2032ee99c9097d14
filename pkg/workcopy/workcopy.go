// Package workcopy fetches or updates the working copy holding the resources to install.
package workcopy

import (
	"context"
	"fmt"

	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Actions taken to sync a working copy
const (
	Local    = "local"
	Cloned   = "cloned"
	Pulled   = "pulled"
	Recloned = "recloned"
)

// Config locates a working copy. Without a URL, the working copy must already exist at Path.
type Config struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty" mapstructure:"branch"`
}

// Outcome of a sync
type Outcome struct {
	Path   string         `json:"path"`
	Action string         `json:"action"`
	Backup *backup.Record `json:"backup,omitempty"`
}

// Syncer clones or updates working copies with git
type Syncer struct {
	run     runner.Runner
	fs      afero.Fs
	backups *backup.Manager
	git     string
	l       *zap.Logger
}

// New syncer
func New(r runner.Runner, opts ...Option) *Syncer {
	s := &Syncer{
		run: r,
		fs:  afero.NewOsFs(),
		git: "git",
		l:   zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.backups == nil {
		s.backups = backup.New(backup.Fs(s.fs), backup.Logger(s.l))
	}
	return s
}

// Sync makes the working copy available.
//
// An existing checkout is fast-forwarded. When that fails, it is moved aside and cloned afresh.
// Every failure is a prerequisite failure.
func (s *Syncer) Sync(ctx context.Context, cfg Config) (Outcome, error) {
	out := Outcome{Path: cfg.Path}
	if cfg.Path == "" {
		return out, errors.New("a working copy path is required").Of(errors.ErrPrerequisite)
	}

	exists, err := afero.DirExists(s.fs, cfg.Path)
	if err != nil {
		return out, errors.New(fmt.Sprintf("cannot stat working copy %q", cfg.Path)).Of(errors.ErrPrerequisite).Wrap(err)
	}

	if cfg.URL == "" {
		if !exists {
			return out, errors.New(fmt.Sprintf("working copy %q does not exist and no repository url is configured", cfg.Path)).Of(errors.ErrPrerequisite)
		}
		out.Action = Local
		return out, nil
	}

	if !exists {
		if err = s.clone(ctx, cfg); err != nil {
			return out, err
		}
		out.Action = Cloned
		return out, nil
	}

	if _, err = s.run.Run(ctx, runner.Command{Name: s.git, Args: []string{"-C", cfg.Path, "pull", "--ff-only"}}); err == nil {
		s.l.Info("working copy updated", zap.String("path", cfg.Path))
		out.Action = Pulled
		return out, nil
	}
	s.l.Warn("pull failed, moving the working copy aside to clone it afresh", zap.String("path", cfg.Path), zap.Error(err))

	if err = ctx.Err(); err != nil {
		return out, errors.New("working copy sync interrupted").Of(errors.ErrPrerequisite).Wrap(err)
	}
	rec, err := s.backups.Backup(cfg.Path)
	if err != nil {
		return out, errors.New(fmt.Sprintf("cannot move working copy %q aside", cfg.Path)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	out.Backup = rec
	if err = s.clone(ctx, cfg); err != nil {
		return out, err
	}
	out.Action = Recloned
	return out, nil
}

func (s *Syncer) clone(ctx context.Context, cfg Config) error {
	args := []string{"clone"}
	if cfg.Branch != "" {
		args = append(args, "--branch", cfg.Branch)
	}
	args = append(args, cfg.URL, cfg.Path)

	if _, err := s.run.Run(ctx, runner.Command{Name: s.git, Args: args}); err != nil {
		return errors.New(fmt.Sprintf("cannot clone %s", cfg.URL)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	s.l.Info("working copy cloned", zap.String("url", cfg.URL), zap.String("path", cfg.Path))
	return nil
}
