package download

import (
	"net/http"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option configures a Downloader
type Option func(*Downloader)

// Fs sets the file system downloads are written to. It defaults to the OS file system.
func Fs(fs afero.Fs) Option {
	return func(d *Downloader) {
		if fs != nil {
			d.fs = fs
		}
	}
}

// HTTPClient sets the client used to issue requests. Per-attempt timeouts are enforced by context.
func HTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// SleepWith replaces the real time sleeper between attempts, e.g. to record backoff in tests
func SleepWith(s Sleeper) Option {
	return func(d *Downloader) {
		if s != nil {
			d.sleep = s
		}
	}
}

// UserAgent sets the User-Agent header sent with requests
func UserAgent(ua string) Option {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// StagingDir is where artifacts with a relative or empty target are downloaded
func StagingDir(dir string) Option {
	return func(d *Downloader) {
		d.stagingDir = dir
	}
}

// Logger injects a logging facility into the downloader
func Logger(l *zap.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.l = l
		}
	}
}
