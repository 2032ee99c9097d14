package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/provisioner/pkg/catalog"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/install"
	"github.com/oneconcern/provisioner/pkg/packages"
	"github.com/oneconcern/provisioner/pkg/workcopy"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const staging = "/startup/downloads"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSyncer struct {
	err   error
	calls int
}

func (f *fakeSyncer) Sync(_ context.Context, cfg workcopy.Config) (workcopy.Outcome, error) {
	f.calls++
	return workcopy.Outcome{Path: cfg.Path, Action: workcopy.Pulled}, f.err
}

type fakeInstaller struct {
	failOn    string
	installed []string
}

func (f *fakeInstaller) Install(_ context.Context, res catalog.Resource) (install.Outcome, error) {
	if res.Name == f.failOn {
		return install.Outcome{Resource: res}, errors.New("source missing from the working copy").Of(errors.ErrPrerequisite)
	}
	f.installed = append(f.installed, res.Name)
	return install.Outcome{Resource: res, Files: 1, Skipped: res.Optional}, nil
}

type fakeSettings struct {
	failOn  string
	applied []string
}

func (f *fakeSettings) Apply(_ context.Context, s desktop.Setting) error {
	if s.Key == f.failOn {
		return errors.New("setting did not stick").Of(errors.ErrLaunch)
	}
	f.applied = append(f.applied, s.Key)
	return nil
}

// fakeProvisioner stages an artifact for every package, then fails those listed
type fakeProvisioner struct {
	fs          afero.Fs
	fail        map[string]bool
	provisioned []string
	before      func(spec packages.Spec)
}

func (f *fakeProvisioner) Provision(_ context.Context, spec packages.Spec) (packages.Outcome, error) {
	if f.before != nil {
		f.before(spec)
	}
	f.provisioned = append(f.provisioned, spec.Name)
	if err := afero.WriteFile(f.fs, filepath.Join(staging, spec.Name+".deb"), []byte("deb"), 0644); err != nil {
		return packages.Outcome{}, err
	}
	if f.fail[spec.Name] {
		return packages.Outcome{Package: spec.Name}, errors.New("dpkg exited with code 1").Of(errors.ErrPackage)
	}
	return packages.Outcome{Package: spec.Name}, nil
}

func resources() catalog.Catalog {
	return catalog.Catalog{
		{Name: "boot-theme", Source: "kali", Destination: "/boot/grub/themes/kali", Kind: catalog.KindDirectory},
		{Name: "wallpaper", Source: "wallpaper/background.png", Destination: "/usr/share/backgrounds/kali.png", Kind: catalog.KindFile},
	}
}

func twoPackages() []packages.Spec {
	return []packages.Spec{{Name: "A"}, {Name: "B"}}
}

type fixture struct {
	fs          afero.Fs
	syncer      *fakeSyncer
	installer   *fakeInstaller
	settings    *fakeSettings
	provisioner *fakeProvisioner
}

func newFixture() *fixture {
	fs := afero.NewMemMapFs()
	return &fixture{
		fs:          fs,
		syncer:      &fakeSyncer{},
		installer:   &fakeInstaller{},
		settings:    &fakeSettings{},
		provisioner: &fakeProvisioner{fs: fs, fail: map[string]bool{}},
	}
}

func (f *fixture) session(opts ...Option) *Session {
	return New(append([]Option{
		Fs(f.fs),
		WorkingCopy(f.syncer),
		Resources(f.installer),
		Settings(f.settings),
		Packages(f.provisioner),
	}, opts...)...)
}

func (f *fixture) plan() Plan {
	return Plan{
		WorkingCopy: &workcopy.Config{URL: "https://github.com/example/startup.git", Path: "/startup"},
		Catalog:     resources(),
		Settings:    []desktop.Setting{{Schema: "org.gnome.shell.extensions.dash-to-dock", Key: "autohide", Value: "true"}},
		Packages:    twoPackages(),
		StagingDir:  staging,
	}
}

func (f *fixture) stagedEntries(t *testing.T) []os.FileInfo {
	entries, err := afero.ReadDir(f.fs, staging)
	require.NoError(t, err)
	return entries
}

func statuses(r *Result) map[string]Status {
	res := make(map[string]Status, len(r.Steps))
	for _, s := range r.Steps {
		res[s.Name] = s.Status
	}
	return res
}

func TestPackageFailureIsPartial(t *testing.T) {
	f := newFixture()
	f.provisioner.fail["A"] = true

	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Done, res.State)
	assert.True(t, res.Partial())
	assert.Nil(t, res.Err)

	st := statuses(res)
	assert.Equal(t, Failed, st["package A"])
	assert.Equal(t, Success, st["package B"])
	assert.Equal(t, Success, st["resource boot-theme"])
	assert.Equal(t, Success, st["clean "+staging])
	assert.Equal(t, []string{"A", "B"}, f.provisioner.provisioned)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, ProvisioningPackages, failed[0].State)
	assert.Equal(t, errors.ErrPackage.Error(), failed[0].Kind)

	assert.Equal(t, ExitOK, res.ExitCode(false))
	assert.Equal(t, ExitPartial, res.ExitCode(true))

	// downloads never outlive the session
	assert.Empty(t, f.stagedEntries(t))
}

func TestPrerequisiteFailureAborts(t *testing.T) {
	f := newFixture()
	f.installer.failOn = "boot-theme"
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(staging, "leftover.deb"), []byte("deb"), 0644))

	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Aborted, res.State)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.ErrPrerequisite))
	assert.Equal(t, ExitAborted, res.ExitCode(false))
	assert.False(t, res.Partial())

	assert.Empty(t, f.installer.installed, "no resource after the failed one")
	assert.Empty(t, f.settings.applied)
	assert.Empty(t, f.provisioner.provisioned)

	// packages were never entered: no cleanup
	assert.Len(t, f.stagedEntries(t), 1)
	_, cleaned := statuses(res)["clean "+staging]
	assert.False(t, cleaned)
}

func TestWorkingCopyFailureAborts(t *testing.T) {
	f := newFixture()
	f.syncer.err = errors.New("cannot clone").Of(errors.ErrPrerequisite)

	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, 1, f.syncer.calls)
	assert.Empty(t, f.installer.installed)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, CloningWorkingCopy, res.Steps[0].State)
}

func TestInvalidCatalogAborts(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	plan.Catalog = append(plan.Catalog, catalog.Resource{Name: "boot-theme", Source: "kali", Destination: "relative", Kind: "link"})

	res := f.session().Run(context.Background(), plan)
	assert.Equal(t, Aborted, res.State)
	assert.True(t, errors.Is(res.Err, errors.ErrPrerequisite))
	assert.Empty(t, f.installer.installed)
}

func TestCleanupAlwaysRuns(t *testing.T) {
	f := newFixture()
	f.provisioner.fail["A"] = true
	f.provisioner.fail["B"] = true

	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Done, res.State)
	assert.Len(t, res.Failed(), 2)
	assert.Empty(t, f.stagedEntries(t))
}

func TestStagingLeftoversCleared(t *testing.T) {
	f := newFixture()
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(staging, "A.deb"), []byte("stale"), 0644))
	require.NoError(t, f.fs.MkdirAll(filepath.Join(staging, "telegram", "Telegram"), 0755))

	f.provisioner.before = func(spec packages.Spec) {
		if spec.Name == "A" {
			assert.Empty(t, f.stagedEntries(t), "a second run starts from an empty staging directory")
		}
	}
	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Done, res.State)
	assert.False(t, res.Partial())
}

func TestSettingFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.settings.failOn = "autohide"

	res := f.session().Run(context.Background(), f.plan())
	assert.Equal(t, Done, res.State)
	assert.True(t, res.Partial())
	assert.Equal(t, Failed, statuses(res)["setting org.gnome.shell.extensions.dash-to-dock autohide"])
	assert.Equal(t, []string{"A", "B"}, f.provisioner.provisioned)
}

func TestInterruptedDuringPackages(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provisioner.before = func(packages.Spec) { cancel() }

	res := f.session().Run(ctx, f.plan())
	assert.Equal(t, Aborted, res.State)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, []string{"A"}, f.provisioner.provisioned)

	st := statuses(res)
	assert.Equal(t, Skipped, st["package B"])
	assert.Equal(t, Success, st["clean "+staging], "cleanup runs once packages were entered")
	assert.Empty(t, f.stagedEntries(t))
}

func TestOptionalResourceSkipped(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	plan.Catalog[1].Optional = true

	res := f.session().Run(context.Background(), plan)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, Skipped, statuses(res)["resource wallpaper"])
	assert.False(t, res.Partial())
}

func TestLock(t *testing.T) {
	f := newFixture()
	lock := filepath.Join(t.TempDir(), "provisioner.lock")
	f.provisioner.before = func(packages.Spec) {
		_, err := os.Stat(lock)
		assert.NoError(t, err, "the lock is held during the session")
	}

	res := f.session(Lock(lock)).Run(context.Background(), f.plan())
	assert.Equal(t, Done, res.State)

	_, err := os.Stat(lock)
	assert.True(t, os.IsNotExist(err), "the lock is released")
}

func TestReport(t *testing.T) {
	f := newFixture()
	f.provisioner.fail["A"] = true
	res := f.session().Run(context.Background(), f.plan())

	var buf bytes.Buffer
	require.NoError(t, res.WriteReport(&buf))

	var report struct {
		ID    string `json:"id"`
		State State  `json:"state"`
		Steps []struct {
			Name   string `json:"name"`
			Status Status `json:"status"`
			Kind   string `json:"kind"`
		} `json:"steps"`
	}
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, res.ID, report.ID)
	assert.Equal(t, Done, report.State)
	assert.Len(t, report.Steps, len(res.Steps))

	var summary bytes.Buffer
	res.Summary(&summary)
	assert.Contains(t, summary.String(), "FAIL")
	assert.Contains(t, summary.String(), "package A: dpkg exited with code 1")
	assert.Contains(t, summary.String(), "1 failed step(s)")
}
