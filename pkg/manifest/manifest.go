// Package manifest describes what a provisioning session installs, as loaded from a YAML
// configuration file.
package manifest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/oneconcern/provisioner/pkg/catalog"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/packages"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/oneconcern/provisioner/pkg/session"
	"github.com/oneconcern/provisioner/pkg/workcopy"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Backoff policies
const (
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// Manifest is the provisioning configuration document.
//
// Durations are strings such as "30s", as accepted by time.ParseDuration.
type Manifest struct {
	WorkingCopy workcopy.Config `json:"workingCopy" yaml:"workingCopy" mapstructure:"workingCopy"`
	// StagingDir receives downloads. Defaults to "downloads" inside the working copy.
	StagingDir string            `json:"stagingDir,omitempty" yaml:"stagingDir,omitempty" mapstructure:"stagingDir"`
	LockFile   string            `json:"lockFile,omitempty" yaml:"lockFile,omitempty" mapstructure:"lockFile"`
	Download   Download          `json:"download" yaml:"download" mapstructure:"download"`
	Desktop    Desktop           `json:"desktop" yaml:"desktop" mapstructure:"desktop"`
	Resources  catalog.Catalog   `json:"resources" yaml:"resources" mapstructure:"resources"`
	Settings   []desktop.Setting `json:"settings,omitempty" yaml:"settings,omitempty" mapstructure:"settings"`
	Packages   []Package         `json:"packages,omitempty" yaml:"packages,omitempty" mapstructure:"packages"`
}

// Download defaults, applying to every package
type Download struct {
	Retries   int     `json:"retries" yaml:"retries" mapstructure:"retries"`
	Timeout   string  `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UserAgent string  `json:"userAgent,omitempty" yaml:"userAgent,omitempty" mapstructure:"userAgent"`
	Backoff   Backoff `json:"backoff" yaml:"backoff" mapstructure:"backoff"`
}

// Backoff policy between download attempts
type Backoff struct {
	Policy  string  `json:"policy" yaml:"policy" mapstructure:"policy"`
	Initial string  `json:"initial" yaml:"initial" mapstructure:"initial"`
	Step    string  `json:"step,omitempty" yaml:"step,omitempty" mapstructure:"step"`
	Factor  float64 `json:"factor,omitempty" yaml:"factor,omitempty" mapstructure:"factor"`
	Max     string  `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
}

// Desktop settings command
type Desktop struct {
	Binary string   `json:"binary" yaml:"binary" mapstructure:"binary"`
	Env    []string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
}

// Command line, as an argument vector. It never goes through a shell.
type Command struct {
	Argv []string `json:"command" yaml:"command" mapstructure:"command"`
	Env  []string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	Dir  string   `json:"dir,omitempty" yaml:"dir,omitempty" mapstructure:"dir"`
}

// Step is an install command, with an optional fallback
type Step struct {
	Command  `yaml:",inline" mapstructure:",squash"`
	Fallback *Step `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`
}

// Probe detects an installed package
type Probe struct {
	Command  `yaml:",inline" mapstructure:",squash"`
	Contains string `json:"contains,omitempty" yaml:"contains,omitempty" mapstructure:"contains"`
}

// Archive install of a tarball
type Archive struct {
	Destination     string   `json:"destination" yaml:"destination" mapstructure:"destination"`
	StripComponents int      `json:"stripComponents,omitempty" yaml:"stripComponents,omitempty" mapstructure:"stripComponents"`
	Executables     []string `json:"executables,omitempty" yaml:"executables,omitempty" mapstructure:"executables"`
}

// Package to provision
type Package struct {
	Name     string              `json:"name" yaml:"name" mapstructure:"name"`
	URL      string              `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Discover *download.Discovery `json:"discover,omitempty" yaml:"discover,omitempty" mapstructure:"discover"`
	// Target file name in the staging directory. Defaults to the last element of the URL path.
	Target  string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
	Digest  string `json:"digest,omitempty" yaml:"digest,omitempty" mapstructure:"digest"`
	Verify  string `json:"verify,omitempty" yaml:"verify,omitempty" mapstructure:"verify"`
	Retries *int   `json:"retries,omitempty" yaml:"retries,omitempty" mapstructure:"retries"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`

	Check   *Probe       `json:"check,omitempty" yaml:"check,omitempty" mapstructure:"check"`
	Archive *Archive     `json:"archive,omitempty" yaml:"archive,omitempty" mapstructure:"archive"`
	Install []Step       `json:"install,omitempty" yaml:"install,omitempty" mapstructure:"install"`
	Launch  *Command     `json:"launch,omitempty" yaml:"launch,omitempty" mapstructure:"launch"`
	Pin     *desktop.Pin `json:"pin,omitempty" yaml:"pin,omitempty" mapstructure:"pin"`
}

// SetDefaults registers default values with viper
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workingCopy.path", "startup")
	v.SetDefault("download.retries", download.DefaultRetries)
	v.SetDefault("download.timeout", download.DefaultTimeout.String())
	v.SetDefault("download.userAgent", download.DefaultUserAgent)
	v.SetDefault("download.backoff.policy", BackoffLinear)
	v.SetDefault("download.backoff.initial", "2s")
	v.SetDefault("download.backoff.step", "1s")
	v.SetDefault("download.backoff.factor", 2.0)
	v.SetDefault("download.backoff.max", "30s")
	v.SetDefault("desktop.binary", desktop.DefaultBinary)
}

// Load decodes and validates the manifest held by viper
func Load(v *viper.Viper) (*Manifest, error) {
	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, errors.New("cannot decode manifest").Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate the manifest. All problems are reported at once.
func (m *Manifest) Validate() error {
	var errs error
	if m.WorkingCopy.Path == "" {
		errs = multierr.Append(errs, fmt.Errorf("workingCopy.path is required"))
	}
	if _, err := m.DownloadTimeout(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := m.Backoff(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := m.Resources.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	for i, s := range m.Settings {
		if s.Schema == "" || s.Key == "" {
			errs = multierr.Append(errs, fmt.Errorf("setting #%d: schema and key are required", i))
		}
	}
	seen := make(map[string]bool, len(m.Packages))
	specs, err := m.PackageSpecs()
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, spec := range specs {
		if seen[spec.Name] {
			errs = multierr.Append(errs, fmt.Errorf("package %q: duplicate name", spec.Name))
		}
		seen[spec.Name] = true
		if err := spec.Validate(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errors.New("invalid manifest").Of(errors.ErrPrerequisite).Wrap(errs)
	}
	return nil
}

// WorkingCopyPath is the absolute path of the working copy
func (m *Manifest) WorkingCopyPath() string {
	p, err := filepath.Abs(m.WorkingCopy.Path)
	if err != nil {
		return m.WorkingCopy.Path
	}
	return p
}

// Staging is the absolute path of the downloads staging directory
func (m *Manifest) Staging() string {
	if m.StagingDir == "" {
		return filepath.Join(m.WorkingCopyPath(), "downloads")
	}
	if filepath.IsAbs(m.StagingDir) {
		return m.StagingDir
	}
	return filepath.Join(m.WorkingCopyPath(), m.StagingDir)
}

// DownloadTimeout per attempt
func (m *Manifest) DownloadTimeout() (time.Duration, error) {
	return parseDuration("download.timeout", m.Download.Timeout, download.DefaultTimeout)
}

// Backoff policy between download attempts
func (m *Manifest) Backoff() (download.Policy, error) {
	b := m.Download.Backoff
	var errs error
	initial, err := parseDuration("download.backoff.initial", b.Initial, 0)
	errs = multierr.Append(errs, err)
	step, err := parseDuration("download.backoff.step", b.Step, 0)
	errs = multierr.Append(errs, err)
	ceiling, err := parseDuration("download.backoff.max", b.Max, 0)
	errs = multierr.Append(errs, err)
	if errs != nil {
		return nil, errs
	}

	switch b.Policy {
	case BackoffLinear, "":
		return download.Linear{Initial: initial, Step: step, Max: ceiling}, nil
	case BackoffExponential:
		return download.Exponential{Initial: initial, Factor: b.Factor, Max: ceiling}, nil
	case BackoffConstant:
		return download.Constant(initial), nil
	default:
		return nil, fmt.Errorf("download.backoff.policy: unknown policy %q", b.Policy)
	}
}

// PackageSpecs converts packages into provisioning specs
func (m *Manifest) PackageSpecs() ([]packages.Spec, error) {
	var errs error
	policy, _ := m.Backoff()
	timeout, _ := m.DownloadTimeout()

	specs := make([]packages.Spec, 0, len(m.Packages))
	for _, p := range m.Packages {
		spec := packages.Spec{
			Name:   p.Name,
			Verify: packages.Verify(p.Verify),
			Pin:    p.Pin,
		}
		if spec.Verify == "" && p.Digest != "" {
			spec.Verify = packages.VerifyMandatory
		}

		if p.URL != "" || p.Discover != nil {
			task := &download.Task{
				URL:      p.URL,
				Target:   p.Target,
				Digest:   p.Digest,
				Retries:  m.Download.Retries,
				Timeout:  timeout,
				Backoff:  policy,
				Discover: p.Discover,
			}
			if p.Retries != nil {
				task.Retries = *p.Retries
			}
			if p.Timeout != "" {
				d, err := parseDuration(fmt.Sprintf("package %q: timeout", p.Name), p.Timeout, timeout)
				if err != nil {
					errs = multierr.Append(errs, err)
				}
				task.Timeout = d
			}
			spec.Download = task
		}

		if p.Check != nil {
			spec.Check = &packages.Probe{Command: p.Check.Command.runner(), Contains: p.Check.Contains}
		}
		if p.Archive != nil {
			spec.Archive = &packages.ArchiveInstall{
				Destination:     p.Archive.Destination,
				StripComponents: p.Archive.StripComponents,
				Executables:     p.Archive.Executables,
			}
		}
		for _, st := range p.Install {
			spec.Install = append(spec.Install, st.step())
		}
		if p.Launch != nil {
			launch := p.Launch.runner()
			spec.Launch = &launch
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// Plan converts the manifest into a session plan
func (m *Manifest) Plan() (session.Plan, error) {
	specs, err := m.PackageSpecs()
	if err != nil {
		return session.Plan{}, errors.New("invalid manifest").Of(errors.ErrPrerequisite).Wrap(err)
	}
	wc := m.WorkingCopy
	wc.Path = m.WorkingCopyPath()
	return session.Plan{
		WorkingCopy: &wc,
		Catalog:     m.Resources,
		Settings:    m.Settings,
		Packages:    specs,
		StagingDir:  m.Staging(),
	}, nil
}

func (c Command) runner() runner.Command {
	cmd := runner.Command{Env: c.Env, Dir: c.Dir}
	if len(c.Argv) > 0 {
		cmd.Name = c.Argv[0]
		cmd.Args = append([]string(nil), c.Argv[1:]...)
	}
	return cmd
}

func (s Step) step() packages.Step {
	st := packages.Step{Command: s.Command.runner()}
	if s.Fallback != nil {
		fallback := s.Fallback.step()
		st.Fallback = &fallback
	}
	return st
}

func parseDuration(key, value string, dflt time.Duration) (time.Duration, error) {
	if value == "" {
		return dflt, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}
