package backup

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures a backup Manager
type Option func(*Manager)

// Fs sets the file system the manager operates on. It defaults to the OS file system.
func Fs(fs afero.Fs) Option {
	return func(m *Manager) {
		if fs != nil {
			m.fs = fs
		}
	}
}

// Clock sets the time source used to stamp backups
func Clock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Logger injects a logging facility into the backup manager
func Logger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.l = l
		}
	}
}
