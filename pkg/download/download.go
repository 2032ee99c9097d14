// Package download fetches remote artifacts over HTTP with bounded retries and
// integrity verification.
//
// Transport failures (connection errors, per-attempt timeouts, non-2xx responses) are
// retried following a backoff Policy. Once the retry budget is exhausted, the last
// transport error is escalated to a package failure.
//
// A digest mismatch is an integrity failure: it is reported immediately and never retried,
// since downloading again does not fix a wrong expected digest. The hash is computed while
// the body is streamed to disk.
//
// Bytes are written to a "<target>.part" file, which is renamed to its target only once
// verified. A failed fetch leaves nothing at the target path.
package download

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds each attempt
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the number of retries after a first failed attempt
	DefaultRetries = 2

	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) provisioner/1.0"

	partSuffix = ".part"
	filePerm   = 0644
	dirPerm    = 0755
)

// Task describes a single artifact to download.
type Task struct {
	URL string
	// Target is the local path of the artifact. When empty, or when it designates a directory,
	// the file is named after the last element of the URL path.
	Target string
	// Digest is the expected "algo:hex" digest. When empty, no verification takes place.
	Digest string
	// Retries is the number of retries after a first failed attempt
	Retries int
	// Timeout bounds each attempt. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Backoff policy between attempts. Defaults to DefaultPolicy().
	Backoff Policy
	// Discover resolves URL from a landing page before downloading, when set
	Discover *Discovery
}

// Result of a successful fetch
type Result struct {
	Path     string
	URL      string
	Attempts int
	Bytes    int64
	// Digest actually computed, in "algo:hex" notation
	Digest   string
	Verified bool
}

// Downloader fetches artifacts onto a file system
type Downloader struct {
	client     *http.Client
	fs         afero.Fs
	sleep      Sleeper
	userAgent  string
	stagingDir string
	l          *zap.Logger
}

// New downloader
func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:    &http.Client{},
		fs:        afero.NewOsFs(),
		sleep:     Sleep,
		userAgent: DefaultUserAgent,
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(d)
	}
	return d
}

// Fetch downloads a task's artifact, then verifies its digest when one is expected.
//
// Calling Fetch again with the same task downloads and verifies again: nothing is cached.
func (d *Downloader) Fetch(ctx context.Context, task Task) (Result, error) {
	task = withDefaults(task)

	var expected Digest
	if task.Digest != "" {
		var err error
		if expected, err = ParseDigest(task.Digest); err != nil {
			return Result{}, err
		}
	}

	res := Result{URL: task.URL}
	if task.Discover != nil {
		resolved, err := d.Discover(ctx, *task.Discover, task)
		if err != nil {
			return res, err
		}
		res.URL = resolved
	}

	target, err := d.targetPath(task.Target, res.URL)
	if err != nil {
		return res, err
	}
	res.Path = target
	part := target + partSuffix

	if err = d.fs.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return res, errors.New(fmt.Sprintf("cannot create directory for %q", target)).Of(errors.ErrPackage).Wrap(err)
	}

	var sum []byte
	res.Attempts, err = d.retry(ctx, res.URL, task, func(actx context.Context) error {
		h := expected.hashOrDefault()
		n, err := d.attempt(actx, res.URL, part, h)
		if err != nil {
			return err
		}
		res.Bytes, sum = n, h.Sum(nil)
		return nil
	})
	if err != nil {
		_ = d.fs.Remove(part)
		return res, err
	}

	if expected.IsZero() {
		res.Digest = SHA256 + ":" + hex.EncodeToString(sum)
	} else {
		res.Digest = expected.Algorithm + ":" + hex.EncodeToString(sum)
		if !expected.Matches(sum) {
			_ = d.fs.Remove(part)
			d.l.Error("digest mismatch, artifact discarded",
				zap.String("url", res.URL),
				zap.String("expected", expected.String()),
				zap.String("actual", res.Digest),
			)
			return res, errors.New(fmt.Sprintf("digest mismatch for %s: expected %s, got %s", res.URL, expected, res.Digest)).Of(errors.ErrIntegrity)
		}
		res.Verified = true
	}

	if err = d.fs.Rename(part, target); err != nil {
		_ = d.fs.Remove(part)
		return res, errors.New(fmt.Sprintf("cannot move download to %q", target)).Of(errors.ErrPackage).Wrap(err)
	}

	d.l.Info("downloaded",
		zap.String("url", res.URL),
		zap.String("path", target),
		zap.String("size", units.HumanSize(float64(res.Bytes))),
		zap.Int("attempts", res.Attempts),
		zap.Bool("verified", res.Verified),
	)
	return res, nil
}

// retry runs fn until it succeeds, fails with a non-transport error, or the retry budget is exhausted.
// It returns the number of attempts made.
func (d *Downloader) retry(ctx context.Context, what string, task Task, fn func(context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := func() error {
			actx, cancel := context.WithTimeout(ctx, task.Timeout)
			defer cancel()
			return fn(actx)
		}()
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, errors.ErrTransport) {
			return attempt, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt, errors.New(fmt.Sprintf("download of %s interrupted", what)).Of(errors.ErrPackage).Wrap(lastErr)
		}
		if attempt > task.Retries {
			return attempt, errors.New(fmt.Sprintf("download of %s failed after %d attempts", what, attempt)).Of(errors.ErrPackage).Wrap(lastErr)
		}

		delay := task.Backoff.Delay(attempt)
		d.l.Warn("download attempt failed, retrying",
			zap.String("url", what),
			zap.Int("attempt", attempt),
			zap.Int("attempts", task.Retries+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return attempt, errors.New(fmt.Sprintf("download of %s interrupted", what)).Of(errors.ErrPackage).Wrap(err)
		}
	}
}

// attempt performs a single GET, streaming the body to part and to the hash h
func (d *Downloader) attempt(ctx context.Context, rawURL, part string, h hash.Hash) (int64, error) {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := d.fs.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, errors.New(fmt.Sprintf("cannot create %q", part)).Of(errors.ErrPackage).Wrap(err)
	}

	n, err := io.Copy(io.MultiWriter(localWriter{f}, h), resp.Body)
	closeErr := f.Close()
	if err != nil {
		if local, ok := err.(localWriteError); ok {
			return n, errors.New(fmt.Sprintf("cannot write %q", part)).Of(errors.ErrPackage).Wrap(local.error)
		}
		return n, errors.New(fmt.Sprintf("reading %s", rawURL)).Of(errors.ErrTransport).Wrap(err)
	}
	if closeErr != nil {
		return n, errors.New(fmt.Sprintf("cannot write %q", part)).Of(errors.ErrPackage).Wrap(closeErr)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, errors.New(fmt.Sprintf("short read from %s: got %d bytes out of %d", rawURL, n, resp.ContentLength)).Of(errors.ErrTransport)
	}
	return n, nil
}

// get issues a GET request. Failures and non-2xx responses are transport errors.
func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("invalid url %q", rawURL)).Of(errors.ErrPackage).Wrap(err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("requesting %s", rawURL)).Of(errors.ErrTransport).Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, errors.New(fmt.Sprintf("requesting %s: unexpected status %s", rawURL, resp.Status)).Of(errors.ErrTransport)
	}
	return resp, nil
}

func (d *Downloader) targetPath(target, rawURL string) (string, error) {
	dir := d.stagingDir
	if target != "" {
		if fi, err := d.fs.Stat(target); err == nil && fi.IsDir() {
			dir = target
		} else if os.IsPathSeparator(target[len(target)-1]) {
			dir = target
		} else {
			if !filepath.IsAbs(target) && d.stagingDir != "" {
				return filepath.Join(d.stagingDir, target), nil
			}
			return filepath.Clean(target), nil
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.New(fmt.Sprintf("invalid url %q", rawURL)).Of(errors.ErrPackage).Wrap(err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", errors.New(fmt.Sprintf("cannot infer a file name from %q: a target is required", rawURL)).Of(errors.ErrPackage)
	}
	return filepath.Join(dir, name), nil
}

func withDefaults(task Task) Task {
	if task.Retries < 0 {
		task.Retries = 0
	}
	if task.Timeout <= 0 {
		task.Timeout = DefaultTimeout
	}
	if task.Backoff == nil {
		task.Backoff = DefaultPolicy()
	}
	return task
}

func (d Digest) hashOrDefault() hash.Hash {
	if d.IsZero() {
		h, _ := newHash(SHA256)
		return h
	}
	return d.Hash()
}

type localWriteError struct {
	error
}

// localWriter tags write errors, to tell them apart from errors reading the response body
type localWriter struct {
	w io.Writer
}

func (l localWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if err != nil {
		return n, localWriteError{err}
	}
	return n, nil
}
