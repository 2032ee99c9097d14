package install

import (
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures an Installer
type Option func(*Installer)

// Fs sets the file system resources are installed on. It defaults to the OS file system.
func Fs(fs afero.Fs) Option {
	return func(in *Installer) {
		if fs != nil {
			in.fs = fs
		}
	}
}

// Backups shares a backup manager, e.g. with other steps of the same session
func Backups(m *backup.Manager) Option {
	return func(in *Installer) {
		in.backups = m
	}
}

// Logger injects a logging facility into the installer
func Logger(l *zap.Logger) Option {
	return func(in *Installer) {
		if l != nil {
			in.l = l
		}
	}
}
