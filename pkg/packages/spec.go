package packages

import (
	"fmt"
	"path/filepath"

	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"go.uber.org/multierr"
)

// Verify tells if a downloaded artifact must be checked against its digest
type Verify string

// Verification requirements
const (
	VerifyMandatory Verify = "mandatory"
	VerifySkip      Verify = "skip"
)

// Probe detects an already installed package: it is present when the command succeeds
// and, if Contains is set, its output contains that string.
type Probe struct {
	Command  runner.Command `json:"command" yaml:"command"`
	Contains string         `json:"contains,omitempty" yaml:"contains,omitempty"`
}

// Step is an install command, with an optional fallback run when it fails.
//
// Arguments are text/template strings, rendered with the fields of Vars.
type Step struct {
	Command  runner.Command `json:"command" yaml:"command"`
	Fallback *Step          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// ArchiveInstall unpacks a downloaded tarball into a destination directory
type ArchiveInstall struct {
	Destination     string   `json:"destination" yaml:"destination"`
	StripComponents int      `json:"stripComponents,omitempty" yaml:"stripComponents,omitempty"`
	Executables     []string `json:"executables,omitempty" yaml:"executables,omitempty"`
}

// Spec defines how to provision a package
type Spec struct {
	Name     string          `json:"name" yaml:"name"`
	Download *download.Task  `json:"download,omitempty" yaml:"download,omitempty"`
	Verify   Verify          `json:"verify,omitempty" yaml:"verify,omitempty"`
	Check    *Probe          `json:"check,omitempty" yaml:"check,omitempty"`
	Archive  *ArchiveInstall `json:"archive,omitempty" yaml:"archive,omitempty"`
	Install  []Step          `json:"install,omitempty" yaml:"install,omitempty"`
	Launch   *runner.Command `json:"launch,omitempty" yaml:"launch,omitempty"`
	Pin      *desktop.Pin    `json:"pin,omitempty" yaml:"pin,omitempty"`
}

// Vars are available to command templates
type Vars struct {
	// Artifact is the downloaded file
	Artifact string
	// Staging is the downloads staging directory
	Staging string
	// Name of the package
	Name string
	// Destination of an archive install
	Destination string
}

// Validate a package spec
func (s Spec) Validate() error {
	var errs error
	if s.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("a package name is required"))
	}
	switch s.Verify {
	case "", VerifySkip:
	case VerifyMandatory:
		if s.Download == nil || s.Download.Digest == "" {
			errs = multierr.Append(errs, fmt.Errorf("mandatory verification requires a download digest"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown verification requirement %q", s.Verify))
	}
	if s.Download != nil && s.Download.URL == "" && s.Download.Discover == nil {
		errs = multierr.Append(errs, fmt.Errorf("a download requires a url or a discovery page"))
	}
	if s.Archive != nil {
		if s.Download == nil {
			errs = multierr.Append(errs, fmt.Errorf("an archive install requires a download"))
		}
		if !filepath.IsAbs(s.Archive.Destination) {
			errs = multierr.Append(errs, fmt.Errorf("archive destination %q must be absolute", s.Archive.Destination))
		}
	}
	if s.Archive == nil && len(s.Install) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("nothing to install: no archive and no install step"))
	}
	for i, step := range s.Install {
		for st := &step; st != nil; st = st.Fallback {
			if st.Command.Name == "" {
				errs = multierr.Append(errs, fmt.Errorf("install step %d: a command is required", i+1))
			}
		}
	}
	if errs != nil {
		return errors.New(fmt.Sprintf("invalid package %q", s.Name)).Of(errors.ErrPackage).Wrap(errs)
	}
	return nil
}
