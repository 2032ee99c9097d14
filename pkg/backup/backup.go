// Copyright © 2018 One Concern

// Package backup moves paths that are about to be overwritten to a unique backup location.
//
// A backup is a single rename: at any point in time, the content lives either at its
// original location or at its backup location. Backup names are never reused, so a
// backup is never silently overwritten:
//
//	<base>.b
//	<base>.b.<unix seconds>
//	<base>.b.<unix seconds>.1, .2, ...
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// Suffix appended to backed up names
	Suffix = ".b"

	// DefaultDirName is the name of the backup directory created next to the backed up path
	DefaultDirName = "backup"

	dirPerm = 0755
)

// Record describes where an overwritten path has been relocated.
type Record struct {
	Original  string    `json:"original"`
	Backup    string    `json:"backup"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager performs backups. It keeps track of the backup paths handed out during its
// lifetime, so that no two records collide.
//
// A Manager is meant to be owned by a single provisioning session and is not safe for
// concurrent use.
type Manager struct {
	fs       afero.Fs
	now      func() time.Time
	l        *zap.Logger
	reserved map[string]struct{}
	records  []Record
}

// New backup manager
func New(opts ...Option) *Manager {
	m := &Manager{
		fs:       afero.NewOsFs(),
		now:      time.Now,
		l:        zap.NewNop(),
		reserved: make(map[string]struct{}),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Backup moves path to a fresh location in the default backup directory,
// i.e. <parent of path>/backup.
//
// When path does not exist, there is nothing to back up: Backup returns a nil record.
func (m *Manager) Backup(path string) (*Record, error) {
	return m.BackupInto(path, "")
}

// BackupInto moves path to a fresh location inside dir. An empty dir means the default backup directory.
func (m *Manager) BackupInto(path, dir string) (*Record, error) {
	path = filepath.Clean(path)
	if _, err := lstat(m.fs, path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(fmt.Sprintf("cannot stat %q", path)).Of(errors.ErrPrerequisite).Wrap(err)
	}

	if dir == "" {
		dir = filepath.Join(filepath.Dir(path), DefaultDirName)
	}
	dir = filepath.Clean(dir)
	if dir == path || isWithin(dir, path) {
		return nil, errors.New(fmt.Sprintf("backup directory %q cannot live inside %q", dir, path)).Of(errors.ErrPrerequisite)
	}
	if err := m.fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.New(fmt.Sprintf("cannot create backup directory %q", dir)).Of(errors.ErrPrerequisite).Wrap(err)
	}

	ts := m.now()
	target, err := m.freeName(filepath.Join(dir, filepath.Base(path)+Suffix), ts)
	if err != nil {
		return nil, err
	}

	if err := m.fs.Rename(path, target); err != nil {
		return nil, errors.New(fmt.Sprintf("cannot move %q to %q", path, target)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	m.reserved[target] = struct{}{}

	rec := Record{
		Original:  path,
		Backup:    target,
		Timestamp: ts,
	}
	m.records = append(m.records, rec)
	m.l.Info("backed up", zap.String("path", path), zap.String("backup", target))
	return &rec, nil
}

// Records returns the backups performed by this manager, in order.
func (m *Manager) Records() []Record {
	res := make([]Record, len(m.records))
	copy(res, m.records)
	return res
}

// freeName finds the first candidate that neither exists nor has been handed out before
func (m *Manager) freeName(base string, ts time.Time) (string, error) {
	candidate := base
	free, err := m.isFree(candidate)
	if err != nil || free {
		return candidate, err
	}

	stamped := base + "." + strconv.FormatInt(ts.Unix(), 10)
	candidate = stamped
	for n := 1; ; n++ {
		free, err = m.isFree(candidate)
		if err != nil || free {
			return candidate, err
		}
		candidate = stamped + "." + strconv.Itoa(n)
	}
}

func (m *Manager) isFree(candidate string) (bool, error) {
	if _, taken := m.reserved[candidate]; taken {
		return false, nil
	}
	_, err := lstat(m.fs, candidate)
	switch {
	case err == nil:
		return false, nil
	case os.IsNotExist(err):
		return true, nil
	default:
		return false, errors.New(fmt.Sprintf("cannot stat backup candidate %q", candidate)).Of(errors.ErrPrerequisite).Wrap(err)
	}
}

func isWithin(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// lstat does not follow a symlink at path, so a dangling link is still backed up
func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if lfs, ok := fs.(afero.Lstater); ok {
		fi, _, err := lfs.LstatIfPossible(path)
		return fi, err
	}
	return fs.Stat(path)
}
