// Package packages provisions third-party applications: download, verify, install, then launch.
//
// A failure to download, verify or install is fatal to the package only and is reported as
// errors.ErrPackage. Launching the application and pinning it to the desktop favorites are
// conveniences: their failures are logged and reported as warnings on the outcome.
package packages

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/oneconcern/provisioner/pkg/archive"
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const tmpSuffix = ".provisioner-tmp"

// Fetcher downloads artifacts
type Fetcher interface {
	Fetch(context.Context, download.Task) (download.Result, error)
}

// Pinner adds applications to the desktop favorites
type Pinner interface {
	Pin(context.Context, desktop.Pin) (string, error)
}

// Outcome of a package provisioning
type Outcome struct {
	Package string `json:"package"`
	// Skipped is set when the package was found already installed
	Skipped  bool             `json:"skipped,omitempty"`
	Download *download.Result `json:"download,omitempty"`
	Backup   *backup.Record   `json:"backup,omitempty"`
	// Fallbacks counts fallback commands that were needed
	Fallbacks int    `json:"fallbacks,omitempty"`
	Pid       int    `json:"pid,omitempty"`
	Pinned    string `json:"pinned,omitempty"`
	// Warnings from post-install conveniences
	Warnings []string `json:"warnings,omitempty"`
}

// Provisioner installs packages
type Provisioner struct {
	run     runner.Runner
	fetcher Fetcher
	pinner  Pinner
	backups *backup.Manager
	fs      afero.Fs
	staging string
	l       *zap.Logger
}

// New package provisioner, running install commands with r and downloading with f
func New(r runner.Runner, f Fetcher, opts ...Option) *Provisioner {
	p := &Provisioner{
		run:     r,
		fetcher: f,
		fs:      afero.NewOsFs(),
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(p)
	}
	if p.backups == nil {
		p.backups = backup.New(backup.Fs(p.fs), backup.Logger(p.l))
	}
	return p
}

// Provision a package: check, download, verify, install, then launch and pin.
func (p *Provisioner) Provision(ctx context.Context, spec Spec) (Outcome, error) {
	out := Outcome{Package: spec.Name}
	l := p.l.With(zap.String("package", spec.Name))

	if err := spec.Validate(); err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, errors.New(fmt.Sprintf("package %q interrupted", spec.Name)).Of(errors.ErrPackage).Wrap(err)
	}

	if spec.Check != nil && p.installed(ctx, *spec.Check) {
		l.Info("package already installed, skipping")
		out.Skipped = true
		return out, nil
	}

	vars := Vars{Name: spec.Name, Staging: p.staging}

	if spec.Download != nil {
		task := *spec.Download
		if spec.Verify == VerifySkip {
			task.Digest = ""
		}
		res, err := p.fetcher.Fetch(ctx, task)
		if err != nil {
			return out, errors.New(fmt.Sprintf("cannot download package %q", spec.Name)).Of(errors.ErrPackage).Wrap(err)
		}
		out.Download = &res
		vars.Artifact = res.Path
	}

	if spec.Archive != nil {
		vars.Destination = spec.Archive.Destination
		rec, err := p.unpack(vars.Artifact, *spec.Archive)
		if err != nil {
			return out, errors.New(fmt.Sprintf("cannot install package %q", spec.Name)).Of(errors.ErrPackage).Wrap(err)
		}
		out.Backup = rec
	}

	for i, step := range spec.Install {
		fallbacks, err := p.runStep(ctx, l, step, vars)
		out.Fallbacks += fallbacks
		if err != nil {
			return out, errors.New(fmt.Sprintf("install step %d of package %q failed", i+1, spec.Name)).Of(errors.ErrPackage).Wrap(err)
		}
	}
	l.Info("package installed")

	if spec.Launch != nil {
		if pid, err := p.launch(ctx, *spec.Launch, vars); err != nil {
			l.Warn("launch failed", zap.Error(err))
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			out.Pid = pid
		}
	}

	if spec.Pin != nil {
		if p.pinner == nil {
			out.Warnings = append(out.Warnings, "no desktop settings driver to pin with")
		} else if entry, err := p.pinner.Pin(ctx, *spec.Pin); err != nil {
			l.Warn("pinning to favorites failed", zap.Error(err))
			out.Warnings = append(out.Warnings, err.Error())
		} else {
			out.Pinned = entry
		}
	}
	return out, nil
}

func (p *Provisioner) installed(ctx context.Context, probe Probe) bool {
	res, err := p.run.Run(ctx, probe.Command)
	if err != nil {
		return false
	}
	return probe.Contains == "" || strings.Contains(string(res.Stdout), probe.Contains)
}

// runStep runs a step, then its fallbacks in turn until one succeeds.
// It returns the number of fallbacks run.
func (p *Provisioner) runStep(ctx context.Context, l *zap.Logger, step Step, vars Vars) (int, error) {
	var errs error
	fallbacks := 0
	for st := &step; st != nil; st = st.Fallback {
		cmd, err := render(st.Command, vars)
		if err != nil {
			return fallbacks, multierr.Append(errs, err)
		}
		if _, err = p.run.Run(ctx, cmd); err == nil {
			return fallbacks, nil
		}
		errs = multierr.Append(errs, err)
		if st.Fallback == nil || ctx.Err() != nil {
			break
		}
		l.Warn("install command failed, trying fallback", zap.Stringer("command", cmd), zap.Error(err))
		fallbacks++
	}
	return fallbacks, errs
}

func (p *Provisioner) launch(ctx context.Context, c runner.Command, vars Vars) (int, error) {
	cmd, err := render(c, vars)
	if err != nil {
		return 0, errors.New("cannot launch").Of(errors.ErrLaunch).Wrap(err)
	}
	pid, err := p.run.Start(ctx, cmd)
	if err != nil {
		return 0, errors.New(fmt.Sprintf("cannot launch %q", cmd.Name)).Of(errors.ErrLaunch).Wrap(err)
	}
	return pid, nil
}

// unpack extracts an archive next to its destination, then swaps it into place.
// An existing destination is backed up first.
func (p *Provisioner) unpack(artifact string, a ArchiveInstall) (*backup.Record, error) {
	tmp := filepath.Clean(a.Destination) + tmpSuffix
	if err := p.fs.RemoveAll(tmp); err != nil {
		return nil, err
	}

	res, err := archive.Extract(p.fs, artifact, tmp, archive.Options{StripComponents: a.StripComponents})
	if err != nil {
		_ = p.fs.RemoveAll(tmp)
		return nil, err
	}
	for _, exe := range a.Executables {
		if err = p.fs.Chmod(filepath.Join(tmp, filepath.FromSlash(exe)), 0755); err != nil {
			_ = p.fs.RemoveAll(tmp)
			return nil, err
		}
	}

	rec, err := p.backups.Backup(a.Destination)
	if err != nil {
		_ = p.fs.RemoveAll(tmp)
		return nil, err
	}
	if err = p.fs.MkdirAll(filepath.Dir(a.Destination), 0755); err != nil {
		return rec, err
	}
	if err = p.fs.Rename(tmp, a.Destination); err != nil {
		return rec, err
	}

	p.l.Info("archive unpacked",
		zap.String("destination", a.Destination),
		zap.String("format", res.Format),
		zap.Int("files", res.Files),
	)
	return rec, nil
}

// render command templates. Each argument is rendered separately and never goes through a shell.
func render(c runner.Command, vars Vars) (runner.Command, error) {
	var err error
	out := runner.Command{}
	if out.Name, err = renderString(c.Name, vars); err != nil {
		return out, err
	}
	if out.Dir, err = renderString(c.Dir, vars); err != nil {
		return out, err
	}
	for _, arg := range c.Args {
		r, err := renderString(arg, vars)
		if err != nil {
			return out, err
		}
		out.Args = append(out.Args, r)
	}
	for _, env := range c.Env {
		r, err := renderString(env, vars)
		if err != nil {
			return out, err
		}
		out.Env = append(out.Env, r)
	}
	return out, nil
}

func renderString(s string, vars Vars) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tpl, err := template.New("arg").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", s, err)
	}
	var buf bytes.Buffer
	if err = tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("cannot render %q: %w", s, err)
	}
	return buf.String(), nil
}
