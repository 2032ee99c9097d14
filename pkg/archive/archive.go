// Package archive extracts tarballs, optionally compressed with gzip, zstd, lz4 or xz.
//
// The compression is detected from the leading bytes of the file, not from its name.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// Compression formats
const (
	None  = "none"
	Gzip  = "gzip"
	Zstd  = "zstd"
	LZ4   = "lz4"
	XZ    = "xz"
	Other = "unknown"
)

var magics = []struct {
	format string
	magic  []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{XZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// Options for extraction
type Options struct {
	// StripComponents removes that many leading path elements from entries, like tar --strip-components
	StripComponents int
}

// Result of an extraction
type Result struct {
	Format string
	Files  int
	Dirs   int
	Links  int
	Bytes  int64
}

// Formats supported by Extract
func Formats() []string {
	formats := []string{None}
	for _, m := range magics {
		formats = append(formats, m.format)
	}
	return formats
}

// Detect the compression format from the first bytes of a stream
func Detect(header []byte) string {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.magic) {
			return m.format
		}
	}
	if len(header) >= 262 && string(header[257:262]) == "ustar" {
		return None
	}
	return Other
}

// Extract the tarball at archivePath into dest. Entries escaping dest are rejected.
func Extract(fs afero.Fs, archivePath, dest string, opts Options) (Result, error) {
	var res Result
	f, err := fs.Open(archivePath)
	if err != nil {
		return res, errors.New(fmt.Sprintf("cannot open archive %q", archivePath)).Of(errors.ErrPackage).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReaderSize(f, 64*1024)
	header, _ := br.Peek(512)
	res.Format = Detect(header)

	rdr, closer, err := decompressor(res.Format, br)
	if err != nil {
		return res, errors.New(fmt.Sprintf("cannot read %s archive %q", res.Format, archivePath)).Of(errors.ErrPackage).Wrap(err)
	}
	defer closer()

	if err = fs.MkdirAll(dest, 0755); err != nil {
		return res, errors.New(fmt.Sprintf("cannot create %q", dest)).Of(errors.ErrPackage).Wrap(err)
	}

	tr := tar.NewReader(rdr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, errors.New(fmt.Sprintf("corrupted archive %q", archivePath)).Of(errors.ErrPackage).Wrap(err)
		}

		rel, ok, err := entryPath(hdr.Name, opts.StripComponents)
		if err != nil {
			return res, errors.New(fmt.Sprintf("archive %q", archivePath)).Of(errors.ErrPackage).Wrap(err)
		}
		if !ok {
			continue
		}
		if err = extractEntry(fs, tr, hdr, dest, rel, opts, &res); err != nil {
			return res, errors.New(fmt.Sprintf("cannot extract %q from %q", hdr.Name, archivePath)).Of(errors.ErrPackage).Wrap(err)
		}
	}
	return res, nil
}

func decompressor(format string, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch format {
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	case LZ4:
		return lz4.NewReader(r), noop, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case None:
		return r, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported archive format")
	}
}

// entryPath strips leading components and rejects names escaping the destination
func entryPath(name string, strip int) (string, bool, error) {
	clean := path.Clean("/" + strings.TrimPrefix(name, "./"))
	if strings.Contains(name, `\`) || hasDotDot(name) {
		return "", false, fmt.Errorf("illegal entry name %q", name)
	}
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if clean == "/" || len(parts) <= strip {
		return "", false, nil
	}
	return path.Join(parts[strip:]...), true, nil
}

func hasDotDot(name string) bool {
	for _, p := range strings.Split(name, "/") {
		if p == ".." {
			return true
		}
	}
	return false
}

func extractEntry(fs afero.Fs, tr *tar.Reader, hdr *tar.Header, dest, rel string, opts Options, res *Result) error {
	mode := os.FileMode(hdr.Mode).Perm()
	target := filepath.Join(dest, filepath.FromSlash(rel))
	parts := strings.Split(rel, "/")

	// entries are never written through a symlink, whether extracted earlier or already in place
	check := parts[:len(parts)-1]
	if hdr.Typeflag == tar.TypeDir {
		check = parts
	}
	if crossesSymlink(fs, dest, check) {
		return fmt.Errorf("entry %q goes through a symlink", hdr.Name)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := fs.MkdirAll(target, 0755); err != nil {
			return err
		}
		res.Dirs++
		return fs.Chmod(target, mode|0700)

	case tar.TypeReg:
		if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		n, err := writeFile(fs, target, tr, mode)
		if err != nil {
			return err
		}
		res.Files++
		res.Bytes += n
		return nil

	case tar.TypeSymlink:
		linker, ok := fs.(afero.Symlinker)
		if !ok {
			return fmt.Errorf("file system does not support symlinks")
		}
		if !linkWithin(parts[:len(parts)-1], hdr.Linkname) {
			return fmt.Errorf("symlink %q -> %q escapes the destination", hdr.Name, hdr.Linkname)
		}
		if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		_ = fs.Remove(target)
		if err := linker.SymlinkIfPossible(hdr.Linkname, target); err != nil {
			return err
		}
		res.Links++
		return nil

	case tar.TypeLink:
		srcRel, ok, err := entryPath(hdr.Linkname, opts.StripComponents)
		if err != nil || !ok || crossesSymlink(fs, dest, strings.Split(srcRel, "/")) {
			return fmt.Errorf("hard link %q -> %q points outside the destination", hdr.Name, hdr.Linkname)
		}
		src, err := fs.Open(filepath.Join(dest, filepath.FromSlash(srcRel)))
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		n, err := writeFile(fs, target, src, mode)
		if err != nil {
			return err
		}
		res.Files++
		res.Bytes += n
		return nil

	default:
		// devices, fifos and pax extensions have no place in a desktop install
		return nil
	}
}

func writeFile(fs afero.Fs, target string, r io.Reader, mode os.FileMode) (int64, error) {
	_ = fs.Remove(target)
	f, err := fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, fs.Chmod(target, mode)
}

// linkWithin tells if a relative symlink target, set in directory dir of the destination, stays
// inside it. A target may only climb with leading ".." elements.
func linkWithin(dir []string, linkname string) bool {
	if linkname == "" || path.IsAbs(linkname) || filepath.IsAbs(linkname) || strings.Contains(linkname, `\`) {
		return false
	}
	depth, climbing := len(dir), true
	for _, elem := range strings.Split(linkname, "/") {
		switch elem {
		case "", ".":
		case "..":
			if !climbing || depth == 0 {
				return false
			}
			depth--
		default:
			climbing = false
		}
	}
	return true
}

// crossesSymlink tells if any of the leading elements of a path under dest is a symlink
func crossesSymlink(fs afero.Fs, dest string, elems []string) bool {
	lst, ok := fs.(afero.Lstater)
	if !ok {
		return false
	}
	cur := dest
	for _, elem := range elems {
		cur = filepath.Join(cur, elem)
		fi, _, err := lst.LstatIfPossible(cur)
		if err != nil {
			return false
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}
