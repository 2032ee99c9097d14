package workcopy

import (
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures a Syncer
type Option func(*Syncer)

// Fs sets the file system the working copy lives on
func Fs(fs afero.Fs) Option {
	return func(s *Syncer) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// Backups shares a backup manager with the rest of the session
func Backups(m *backup.Manager) Option {
	return func(s *Syncer) {
		s.backups = m
	}
}

// Git overrides the git binary
func Git(bin string) Option {
	return func(s *Syncer) {
		if bin != "" {
			s.git = bin
		}
	}
}

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.l = l
		}
	}
}
