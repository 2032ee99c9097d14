// Package session drives a provisioning run through its states:
//
//	Init -> CloningWorkingCopy -> InstallingResources -> ApplyingSettings
//	     -> ProvisioningPackages -> CleaningUp -> Done | Aborted
//
// The working copy and the resources are prerequisites: any failure there aborts the session
// before packages are attempted. Settings and packages fail individually: their failures are
// recorded and the session carries on. Once packages were entered, the downloads staging
// directory is always cleaned up.
//
// Steps run one at a time. The session shares global system locations with nobody.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
	"github.com/oneconcern/provisioner/pkg/catalog"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/install"
	"github.com/oneconcern/provisioner/pkg/packages"
	"github.com/oneconcern/provisioner/pkg/workcopy"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// WorkingCopySyncer fetches or updates the working copy
type WorkingCopySyncer interface {
	Sync(context.Context, workcopy.Config) (workcopy.Outcome, error)
}

// ResourceInstaller installs catalog resources from the working copy
type ResourceInstaller interface {
	Install(context.Context, catalog.Resource) (install.Outcome, error)
}

// SettingsApplier applies desktop settings
type SettingsApplier interface {
	Apply(context.Context, desktop.Setting) error
}

// PackageProvisioner provisions packages
type PackageProvisioner interface {
	Provision(context.Context, packages.Spec) (packages.Outcome, error)
}

// Plan is everything a session provisions
type Plan struct {
	WorkingCopy *workcopy.Config
	Catalog     catalog.Catalog
	Settings    []desktop.Setting
	Packages    []packages.Spec
	// StagingDir holds downloaded artifacts for the duration of the session
	StagingDir string
}

// Session runs provisioning plans
type Session struct {
	syncer      WorkingCopySyncer
	installer   ResourceInstaller
	settings    SettingsApplier
	provisioner PackageProvisioner
	fs          afero.Fs
	lockPath    string
	now         func() time.Time
	l           *zap.Logger
}

// New provisioning session
func New(opts ...Option) *Session {
	s := &Session{
		fs:  afero.NewOsFs(),
		now: time.Now,
		l:   zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

type run struct {
	*Session
	ctx    context.Context
	plan   Plan
	result *Result
	l      *zap.Logger
}

// Run a provisioning plan. The returned result is never nil.
func (s *Session) Run(ctx context.Context, plan Plan) *Result {
	r := &run{
		Session: s,
		ctx:     ctx,
		plan:    plan,
		result: &Result{
			ID:      ksuid.New().String(),
			State:   Init,
			Started: s.now(),
		},
	}
	r.l = s.l.With(zap.String("session", r.result.ID))
	r.l.Info("provisioning session started")

	if unlock, err := s.lock(); err != nil {
		r.abort(err)
	} else {
		defer unlock()
		r.execute()
	}

	r.result.Finished = s.now()
	r.l.Info("provisioning session finished",
		zap.String("state", string(r.result.State)),
		zap.Int("steps", len(r.result.Steps)),
		zap.Int("failed", len(r.result.Failed())),
		zap.Duration("elapsed", r.result.Finished.Sub(r.result.Started)),
	)
	return r.result
}

func (r *run) execute() {
	if !r.cloneWorkingCopy() || !r.installResources() || !r.applySettings() {
		return
	}
	interrupted := r.provisionPackages()
	r.cleanUp()
	if interrupted != nil {
		r.abort(interrupted)
		return
	}
	r.enter(Done)
}

func (r *run) enter(state State) {
	r.l.Debug("session state", zap.String("from", string(r.result.State)), zap.String("to", string(state)))
	r.result.State = state
}

func (r *run) abort(err error) {
	r.l.Error("provisioning session aborted", zap.String("state", string(r.result.State)), zap.Error(err))
	r.result.Err = err
	r.result.Error = err.Error()
	r.result.State = Aborted
}

func (r *run) interrupted() error {
	if err := r.ctx.Err(); err != nil {
		return errors.New(fmt.Sprintf("interrupted while %s", r.result.State)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	return nil
}

// step times a unit of work and records its outcome
func (r *run) step(name string, fn func() (Status, interface{}, error)) error {
	start := r.now()
	status, detail, err := fn()
	r.result.record(Step{
		State:    r.result.State,
		Name:     name,
		Status:   status,
		Duration: r.now().Sub(start),
		Detail:   detail,
	}, err)
	return err
}

func (r *run) cloneWorkingCopy() bool {
	r.enter(CloningWorkingCopy)
	if r.plan.WorkingCopy == nil || r.syncer == nil {
		return true
	}
	if err := r.interrupted(); err != nil {
		r.abort(err)
		return false
	}
	err := r.step("working copy "+r.plan.WorkingCopy.Path, func() (Status, interface{}, error) {
		out, err := r.syncer.Sync(r.ctx, *r.plan.WorkingCopy)
		return Success, out, err
	})
	if err != nil {
		r.abort(err)
		return false
	}
	return true
}

func (r *run) installResources() bool {
	r.enter(InstallingResources)
	if len(r.plan.Catalog) == 0 {
		return true
	}
	if err := r.plan.Catalog.Validate(); err != nil {
		err = errors.New("invalid resource catalog").Of(errors.ErrPrerequisite).Wrap(err)
		r.result.record(Step{State: InstallingResources, Name: "catalog"}, err)
		r.abort(err)
		return false
	}
	if r.installer == nil {
		err := errors.New("no resource installer configured").Of(errors.ErrPrerequisite)
		r.abort(err)
		return false
	}

	for _, res := range r.plan.Catalog {
		if err := r.interrupted(); err != nil {
			r.abort(err)
			return false
		}
		res := res
		err := r.step("resource "+res.Name, func() (Status, interface{}, error) {
			out, err := r.installer.Install(r.ctx, res)
			if out.Skipped {
				return Skipped, out, err
			}
			return Success, out, err
		})
		if err != nil {
			r.abort(err)
			return false
		}
	}
	return true
}

func (r *run) applySettings() bool {
	r.enter(ApplyingSettings)
	if len(r.plan.Settings) == 0 || r.settings == nil {
		return true
	}
	for _, setting := range r.plan.Settings {
		if err := r.interrupted(); err != nil {
			r.abort(err)
			return false
		}
		setting := setting
		if err := r.step("setting "+setting.String(), func() (Status, interface{}, error) {
			return Success, nil, r.settings.Apply(r.ctx, setting)
		}); err != nil {
			r.l.Warn("setting not applied", zap.Stringer("setting", setting), zap.Error(err))
		}
	}
	return true
}

// provisionPackages provisions every package in turn. A package failure never stops the others.
// It returns an error only when the session was interrupted.
func (r *run) provisionPackages() error {
	r.enter(ProvisioningPackages)
	if len(r.plan.Packages) == 0 {
		return nil
	}

	if r.plan.StagingDir != "" {
		_ = r.step("staging "+r.plan.StagingDir, func() (Status, interface{}, error) {
			return Success, nil, r.prepareStaging()
		})
	}

	for i, spec := range r.plan.Packages {
		if err := r.interrupted(); err != nil {
			for _, left := range r.plan.Packages[i:] {
				r.result.record(Step{State: ProvisioningPackages, Name: "package " + left.Name, Status: Skipped, Reason: "interrupted"}, nil)
			}
			return err
		}
		if r.provisioner == nil {
			r.result.record(Step{State: ProvisioningPackages, Name: "package " + spec.Name}, errors.New("no package provisioner configured").Of(errors.ErrPackage))
			continue
		}
		spec := spec
		err := r.step("package "+spec.Name, func() (Status, interface{}, error) {
			out, err := r.provisioner.Provision(r.ctx, spec)
			if out.Skipped {
				return Skipped, out, err
			}
			return Success, out, err
		})
		if err != nil {
			r.l.Error("package failed", zap.String("package", spec.Name), zap.Error(err))
		}
	}
	return nil
}

// cleanUp removes every downloaded artifact. Failures are recorded, never fatal.
func (r *run) cleanUp() {
	r.enter(CleaningUp)
	if r.plan.StagingDir == "" {
		return
	}
	if err := r.step("clean "+r.plan.StagingDir, func() (Status, interface{}, error) {
		n, err := r.clearStaging()
		r.l.Info("staging directory cleaned", zap.String("path", r.plan.StagingDir), zap.Int("removed", n))
		return Success, nil, err
	}); err != nil {
		r.l.Warn("staging directory not fully cleaned", zap.Error(err))
	}
}

// prepareStaging creates the staging directory, clearing what an earlier run may have left
func (r *run) prepareStaging() error {
	if err := r.fs.MkdirAll(r.plan.StagingDir, 0755); err != nil {
		return errors.New(fmt.Sprintf("cannot create staging directory %q", r.plan.StagingDir)).Of(errors.ErrPackage).Wrap(err)
	}
	n, err := r.clearStaging()
	if n > 0 {
		r.l.Info("cleared leftovers from a previous run", zap.String("path", r.plan.StagingDir), zap.Int("removed", n))
	}
	return err
}

func (r *run) clearStaging() (int, error) {
	if ok, _ := afero.DirExists(r.fs, r.plan.StagingDir); !ok {
		return 0, nil
	}
	entries, err := afero.ReadDir(r.fs, r.plan.StagingDir)
	if err != nil {
		return 0, errors.New(fmt.Sprintf("cannot list staging directory %q", r.plan.StagingDir)).Of(errors.ErrPackage).Wrap(err)
	}
	var errs error
	removed := 0
	for _, entry := range entries {
		if err := r.fs.RemoveAll(filepath.Join(r.plan.StagingDir, entry.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	if errs != nil {
		return removed, errors.New(fmt.Sprintf("cannot clean staging directory %q", r.plan.StagingDir)).Of(errors.ErrPackage).Wrap(errs)
	}
	return removed, nil
}

// lock guards against concurrent sessions on the same host, when a lock file is configured
func (s *Session) lock() (func(), error) {
	if s.lockPath == "" {
		return func() {}, nil
	}
	path, err := filepath.Abs(s.lockPath)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("invalid lock file %q", s.lockPath)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	lf, err := lockfile.New(path)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("invalid lock file %q", path)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = lf.TryLock(); err != nil {
		return nil, errors.New(fmt.Sprintf("another provisioning session holds %q", path)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	return func() {
		if err := lf.Unlock(); err != nil {
			s.l.Warn("cannot release session lock", zap.String("path", path), zap.Error(err))
		}
	}, nil
}
