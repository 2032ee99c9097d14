// Package install copies resources from a working copy onto the system.
//
// An existing destination is first moved aside by the backup manager, once, at the
// destination root. Then the source is copied: files are written to a temporary sibling
// and renamed into place, directories are merge-copied recursively.
//
// After a successful install, the destination is byte-identical to the source.
package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/oneconcern/provisioner/pkg/catalog"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	tmpSuffix = ".provisioner-tmp"
	dirPerm   = 0755
)

// Outcome of a resource install
type Outcome struct {
	Resource catalog.Resource
	Source   string
	Backup   *backup.Record
	Files    int
	Bytes    int64
	// Skipped is set when an optional resource has no source
	Skipped bool
}

// Installer copies catalog resources onto a file system
type Installer struct {
	fs          afero.Fs
	backups     *backup.Manager
	workingCopy string
	l           *zap.Logger
}

// New installer for resources found in a working copy
func New(workingCopy string, opts ...Option) *Installer {
	in := &Installer{
		fs:          afero.NewOsFs(),
		workingCopy: workingCopy,
		l:           zap.NewNop(),
	}
	for _, apply := range opts {
		apply(in)
	}
	if in.backups == nil {
		in.backups = backup.New(backup.Fs(in.fs), backup.Logger(in.l))
	}
	return in
}

// Backups performed by this installer
func (in *Installer) Backups() *backup.Manager {
	return in.backups
}

// Install a resource.
//
// A missing source is a prerequisite failure, unless the resource is optional.
// Any file system error is a prerequisite failure: nothing is installed over a
// location that could not be backed up.
func (in *Installer) Install(ctx context.Context, res catalog.Resource) (Outcome, error) {
	src := catalog.Resolve(in.workingCopy, res)
	out := Outcome{Resource: res, Source: src}

	if err := ctx.Err(); err != nil {
		return out, errors.New("install interrupted").Of(errors.ErrPrerequisite).Wrap(err)
	}

	fi, err := in.fs.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			if res.Optional {
				in.l.Warn("optional resource source not found, skipping",
					zap.String("resource", res.Name), zap.String("source", src))
				out.Skipped = true
				return out, nil
			}
			return out, errors.New(fmt.Sprintf("source %q not found in working copy", src)).Of(errors.ErrPrerequisite).Wrap(err)
		}
		return out, errors.New(fmt.Sprintf("cannot stat source %q", src)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	switch {
	case res.Kind == catalog.KindFile && fi.IsDir():
		return out, errors.New(fmt.Sprintf("source %q is a directory, expected a file", src)).Of(errors.ErrPrerequisite)
	case res.Kind == catalog.KindDirectory && !fi.IsDir():
		return out, errors.New(fmt.Sprintf("source %q is not a directory", src)).Of(errors.ErrPrerequisite)
	}

	rec, err := in.backups.BackupInto(res.Destination, res.BackupDir)
	if err != nil {
		return out, err
	}
	out.Backup = rec

	if err = in.fs.MkdirAll(filepath.Dir(res.Destination), dirPerm); err != nil {
		return out, errors.New(fmt.Sprintf("cannot create parent of %q", res.Destination)).Of(errors.ErrPrerequisite).Wrap(err)
	}

	if fi.IsDir() {
		err = in.copyTree(src, res.Destination, &out)
	} else {
		err = in.copyFile(src, res.Destination, fi.Mode(), &out)
	}
	if err != nil {
		return out, err
	}

	in.l.Info("installed resource",
		zap.String("resource", res.Name),
		zap.String("destination", res.Destination),
		zap.Int("files", out.Files),
		zap.String("size", units.HumanSize(float64(out.Bytes))),
	)
	return out, nil
}

// copyTree merges src into dest: files already present at dest are overwritten
func (in *Installer) copyTree(src, dest string, out *Outcome) error {
	return afero.Walk(in.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.New(fmt.Sprintf("cannot walk %q", path)).Of(errors.ErrPrerequisite).Wrap(err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.New(fmt.Sprintf("cannot relate %q to %q", path, src)).Of(errors.ErrPrerequisite).Wrap(err)
		}
		target := filepath.Join(dest, rel)

		switch {
		case info.IsDir():
			if err := in.fs.MkdirAll(target, info.Mode().Perm()); err != nil {
				return errors.New(fmt.Sprintf("cannot create directory %q", target)).Of(errors.ErrPrerequisite).Wrap(err)
			}
			// MkdirAll is subject to umask, and leaves existing directories alone
			if err := in.fs.Chmod(target, info.Mode().Perm()); err != nil {
				return errors.New(fmt.Sprintf("cannot set mode on %q", target)).Of(errors.ErrPrerequisite).Wrap(err)
			}
			return nil
		case info.Mode()&os.ModeSymlink != 0:
			return in.copyLink(path, target, out)
		case info.Mode().IsRegular():
			return in.copyFile(path, target, info.Mode(), out)
		default:
			in.l.Warn("skipping special file", zap.String("path", path))
			return nil
		}
	})
}

// copyFile writes to a temporary sibling, then renames it over dest
func (in *Installer) copyFile(src, dest string, mode os.FileMode, out *Outcome) (err error) {
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+tmpSuffix)

	source, err := in.fs.Open(src)
	if err != nil {
		return errors.New(fmt.Sprintf("cannot open %q", src)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	defer func() { _ = source.Close() }()

	target, err := in.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return errors.New(fmt.Sprintf("cannot create %q", tmp)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = in.fs.Remove(tmp)
		}
	}()

	n, err := io.Copy(target, source)
	if err != nil {
		_ = target.Close()
		return errors.New(fmt.Sprintf("cannot copy %q", src)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = target.Close(); err != nil {
		return errors.New(fmt.Sprintf("cannot write %q", tmp)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = in.fs.Chmod(tmp, mode.Perm()); err != nil {
		return errors.New(fmt.Sprintf("cannot set mode on %q", tmp)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = in.fs.Rename(tmp, dest); err != nil {
		return errors.New(fmt.Sprintf("cannot move %q into place", dest)).Of(errors.ErrPrerequisite).Wrap(err)
	}

	out.Files++
	out.Bytes += n
	return nil
}

func (in *Installer) copyLink(src, dest string, out *Outcome) error {
	linker, ok := in.fs.(afero.Symlinker)
	if !ok {
		return errors.New(fmt.Sprintf("cannot copy symlink %q: file system does not support links", src)).Of(errors.ErrPrerequisite)
	}
	link, err := linker.ReadlinkIfPossible(src)
	if err != nil {
		return errors.New(fmt.Sprintf("cannot read link %q", src)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = in.fs.Remove(dest); err != nil && !os.IsNotExist(err) {
		return errors.New(fmt.Sprintf("cannot replace %q", dest)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	if err = linker.SymlinkIfPossible(link, dest); err != nil {
		return errors.New(fmt.Sprintf("cannot create link %q", dest)).Of(errors.ErrPrerequisite).Wrap(err)
	}
	out.Files++
	return nil
}
