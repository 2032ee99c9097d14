package desktop

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures the settings driver
type Option func(*Settings)

// Binary overrides the settings command
func Binary(name string) Option {
	return func(s *Settings) {
		if name != "" {
			s.binary = name
		}
	}
}

// Env adds KEY=VALUE pairs to the settings command environment,
// e.g. the DBUS_SESSION_BUS_ADDRESS of the desktop user
func Env(env ...string) Option {
	return func(s *Settings) {
		s.env = append(s.env, env...)
	}
}

// Fs sets the file system searched for desktop entries
func Fs(fs afero.Fs) Option {
	return func(s *Settings) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// Logger injects a logging facility
func Logger(l *zap.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.l = l
		}
	}
}
