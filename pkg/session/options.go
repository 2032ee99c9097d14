package session

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures a Session
type Option func(*Session)

// WorkingCopy sets the working copy syncer
func WorkingCopy(s WorkingCopySyncer) Option {
	return func(sess *Session) {
		sess.syncer = s
	}
}

// Resources sets the resource installer
func Resources(i ResourceInstaller) Option {
	return func(sess *Session) {
		sess.installer = i
	}
}

// Settings sets the desktop settings driver
func Settings(a SettingsApplier) Option {
	return func(sess *Session) {
		sess.settings = a
	}
}

// Packages sets the package provisioner
func Packages(p PackageProvisioner) Option {
	return func(sess *Session) {
		sess.provisioner = p
	}
}

// Fs sets the file system holding the staging directory
func Fs(fs afero.Fs) Option {
	return func(sess *Session) {
		if fs != nil {
			sess.fs = fs
		}
	}
}

// Lock guards the session with a lock file
func Lock(path string) Option {
	return func(sess *Session) {
		sess.lockPath = path
	}
}

// Clock sets the time source
func Clock(now func() time.Time) Option {
	return func(sess *Session) {
		if now != nil {
			sess.now = now
		}
	}
}

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(sess *Session) {
		if l != nil {
			sess.l = l
		}
	}
}
