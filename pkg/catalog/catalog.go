// Package catalog declares the resources installed from a working copy onto the system.
//
// A catalog is an ordered table: entries are installed in order, so an entry may use as
// its source an absolute system path installed by an earlier entry.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// Kind of resource
type Kind string

// Known resource kinds
const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Valid kind?
func (k Kind) Valid() bool {
	return k == KindFile || k == KindDirectory
}

// Resource is a file or directory tree with a declared system destination.
type Resource struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	// Source is relative to the working copy, or absolute for a system path
	Source      string `json:"source" yaml:"source" mapstructure:"source"`
	Destination string `json:"destination" yaml:"destination" mapstructure:"destination"`
	Kind        Kind   `json:"kind" yaml:"kind" mapstructure:"kind"`
	// BackupDir overrides the default backup directory (<parent of destination>/backup)
	BackupDir string `json:"backupDir,omitempty" yaml:"backupDir,omitempty" mapstructure:"backupDir"`
	// Optional resources whose source is missing are skipped
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty" mapstructure:"optional"`
}

func (r Resource) String() string {
	return fmt.Sprintf("%s (%s -> %s)", r.Name, r.Source, r.Destination)
}

// Catalog is the ordered list of resources to install
type Catalog []Resource

// Validate the catalog. All problems are reported at once.
func (c Catalog) Validate() error {
	var err error
	seen := make(map[string]struct{}, len(c))
	for i, r := range c {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			err = multierr.Append(err, fmt.Errorf("resource %s: a name is required", label))
		}
		if _, dup := seen[r.Name]; dup && r.Name != "" {
			err = multierr.Append(err, fmt.Errorf("resource %s: duplicate name", label))
		}
		seen[r.Name] = struct{}{}

		if r.Source == "" {
			err = multierr.Append(err, fmt.Errorf("resource %s: a source is required", label))
		} else if !filepath.IsAbs(r.Source) && escapes(r.Source) {
			err = multierr.Append(err, fmt.Errorf("resource %s: source %q escapes the working copy", label, r.Source))
		}
		if !filepath.IsAbs(r.Destination) {
			err = multierr.Append(err, fmt.Errorf("resource %s: destination %q must be an absolute path", label, r.Destination))
		}
		if !r.Kind.Valid() {
			err = multierr.Append(err, fmt.Errorf("resource %s: unknown kind %q", label, r.Kind))
		}
		if r.BackupDir != "" && !filepath.IsAbs(r.BackupDir) {
			err = multierr.Append(err, fmt.Errorf("resource %s: backup directory %q must be an absolute path", label, r.BackupDir))
		}
	}
	return err
}

// Resolve the absolute source path of a resource within a working copy
func Resolve(workingCopy string, r Resource) string {
	if filepath.IsAbs(r.Source) {
		return filepath.Clean(r.Source)
	}
	return filepath.Join(workingCopy, r.Source)
}

func escapes(rel string) bool {
	clean := filepath.Clean(rel)
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
