package packages

import (
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures a Provisioner
type Option func(*Provisioner)

// Fs sets the file system archives are unpacked on
func Fs(fs afero.Fs) Option {
	return func(p *Provisioner) {
		if fs != nil {
			p.fs = fs
		}
	}
}

// Backups shares a backup manager with the rest of the session
func Backups(m *backup.Manager) Option {
	return func(p *Provisioner) {
		p.backups = m
	}
}

// Desktop sets the driver used to pin applications to the favorites
func Desktop(pinner Pinner) Option {
	return func(p *Provisioner) {
		p.pinner = pinner
	}
}

// StagingDir is exposed to command templates as {{.Staging}}
func StagingDir(dir string) Option {
	return func(p *Provisioner) {
		p.staging = dir
	}
}

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.l = l
		}
	}
}
