package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrCorrupt marks archives and compressed streams that cannot be read.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrNoMatches means no archive member passed file_mask.
	ErrNoMatches = errors.New("no archive members match")
	// ErrTooLarge means a file exceeds max_file_size.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsafePath marks members that would land outside the workspace.
	ErrUnsafePath = errors.New("unsafe member path")
)

// Error is an ingestion failure scoped to one input item.
type Error struct {
	Input string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest %s (%s): %v", e.Input, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options select and bound what Prepare extracts.
type Options struct {
	// Mask filters archive members by base name.
	Mask *regexp.Regexp
	// MaxFiles keeps the first N matching members; 0 keeps all.
	MaxFiles int
	// MaxFileSize caps every concrete file in bytes; 0 is unlimited.
	MaxFileSize int64
	// TempDir is where workspaces are created; empty uses os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// Entry is one concrete, readable file.
type Entry struct {
	// Path is the file on disk.
	Path string
	// Name is the display name: the member name inside an archive, or the
	// input name with any compression suffix removed.
	Name string
}

// Item is a prepared input. Close removes its workspace.
type Item struct {
	Input   string
	Kind    Kind
	Entries []Entry

	dir string
	ws  billy.Filesystem
}

// Close removes the workspace. It is safe to call more than once.
func (it *Item) Close() error {
	if it.dir == "" {
		return nil
	}
	dir := it.dir
	it.dir, it.ws = "", nil
	return os.RemoveAll(dir)
}

// Prepare classifies input and, for compressed or archived content,
// unpacks it into a fresh workspace. On error nothing is left behind.
func Prepare(ctx context.Context, input string, opts Options) (*Item, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	kind, err := Detect(input)
	if err != nil {
		return nil, &Error{Input: input, Kind: kind, Err: err}
	}
	item := &Item{Input: input, Kind: kind}
	if kind == Plain {
		if err := checkSize(input, opts.MaxFileSize); err != nil {
			return nil, &Error{Input: input, Kind: kind, Err: err}
		}
		item.Entries = []Entry{{Path: input, Name: filepath.Base(input)}}
		return item, nil
	}

	dir, err := os.MkdirTemp(opts.TempDir, "rowcast-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	item.dir = dir
	item.ws = osfs.New(dir, osfs.WithBoundOS())

	if err := item.extract(ctx, opts); err != nil {
		_ = item.Close()
		return nil, &Error{Input: input, Kind: kind, Err: err}
	}
	opts.Logger.Debug("prepared input", "input", input, "kind", kind.String(), "files", len(item.Entries))
	return item, nil
}

func (it *Item) extract(ctx context.Context, opts Options) error {
	f, err := os.Open(it.Input)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	switch it.Kind {
	case Gzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer func() { _ = zr.Close() }()
		return it.single(zr, opts)
	case Bzip2:
		return it.single(bzip2.NewReader(f), opts)
	case Tar:
		return it.tar(ctx, f, opts)
	case TarGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer func() { _ = zr.Close() }()
		return it.tar(ctx, zr, opts)
	case TarBzip2:
		return it.tar(ctx, bzip2.NewReader(f), opts)
	case Zip:
		return it.zip(ctx, f, opts)
	}
	return fmt.Errorf("unexpected kind %s", it.Kind)
}

// single decompresses a one-stream file under the input's stripped name.
func (it *Item) single(r io.Reader, opts Options) error {
	name := StripSuffix(filepath.Base(it.Input))
	p, err := it.write(name, r, opts.MaxFileSize)
	if err != nil {
		return err
	}
	it.Entries = append(it.Entries, Entry{Path: p, Name: name})
	return nil
}

// memberFilter applies the mask and the member limit in archive order.
type memberFilter struct {
	opts    Options
	matched int
	seen    int
}

func (s *memberFilter) want(name string) bool {
	s.seen++
	if s.opts.Mask != nil && !s.opts.Mask.MatchString(path.Base(name)) {
		return false
	}
	s.matched++
	return true
}

func (s *memberFilter) full() bool {
	return s.opts.MaxFiles > 0 && s.matched >= s.opts.MaxFiles
}

func (s *memberFilter) done(opts Options) error {
	if s.matched == 0 {
		if opts.Mask != nil {
			return fmt.Errorf("%w %q (%d members)", ErrNoMatches, opts.Mask.String(), s.seen)
		}
		return fmt.Errorf("%w: archive is empty", ErrNoMatches)
	}
	return nil
}

func (it *Item) tar(ctx context.Context, r io.Reader, opts Options) error {
	sel := &memberFilter{opts: opts}
	tr := tar.NewReader(r)
	for !sel.full() {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !sel.want(hdr.Name) {
			continue
		}
		p, err := it.write(hdr.Name, tr, opts.MaxFileSize)
		if err != nil {
			return err
		}
		it.Entries = append(it.Entries, Entry{Path: p, Name: hdr.Name})
	}
	return sel.done(opts)
}

func (it *Item) zip(ctx context.Context, f *os.File, opts Options) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sel := &memberFilter{opts: opts}
	for _, zf := range zr.File {
		if sel.full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if zf.FileInfo().IsDir() || !zf.Mode().IsRegular() {
			continue
		}
		if !sel.want(zf.Name) {
			continue
		}
		if opts.MaxFileSize > 0 && zf.UncompressedSize64 > uint64(opts.MaxFileSize) {
			return tooLarge(zf.Name, int64(zf.UncompressedSize64), opts.MaxFileSize)
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, zf.Name, err)
		}
		p, err := it.write(zf.Name, rc, opts.MaxFileSize)
		_ = rc.Close()
		if err != nil {
			return err
		}
		it.Entries = append(it.Entries, Entry{Path: p, Name: zf.Name})
	}
	return sel.done(opts)
}

// write copies r into the workspace under name and returns the disk path.
// The copy stops one byte past limit so oversized content is detected
// without being fully inflated.
func (it *Item) write(name string, r io.Reader, limit int64) (string, error) {
	clean, err := memberPath(name)
	if err != nil {
		return "", err
	}
	if dir := path.Dir(clean); dir != "." {
		if err := it.ws.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnsafePath, name, err)
		}
	}
	out, err := it.ws.Create(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsafePath, name, err)
	}
	defer func() { _ = out.Close() }()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	if limit > 0 && n > limit {
		return "", tooLarge(name, n, limit)
	}
	return filepath.Join(it.dir, filepath.FromSlash(clean)), nil
}

func memberPath(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return clean, nil
}

func checkSize(p string, limit int64) error {
	if limit <= 0 {
		return nil
	}
	st, err := os.Stat(p)
	if err != nil {
		return err
	}
	if st.Mode().IsRegular() && st.Size() > limit {
		return tooLarge(filepath.Base(p), st.Size(), limit)
	}
	return nil
}

func tooLarge(name string, size, limit int64) error {
	return fmt.Errorf("%w: %s is over %s (limit %s)", ErrTooLarge, name,
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

var compressionSuffixes = []string{".gzip", ".gz", ".bzip2", ".bz2"}

// StripSuffix removes one compression suffix, case-insensitively. A name
// that is only a suffix is returned unchanged.
func StripSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, s := range compressionSuffixes {
		if strings.HasSuffix(lower, s) && len(name) > len(s) {
			return name[:len(name)-len(s)]
		}
	}
	return name
}
