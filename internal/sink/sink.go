// Package sink writes accepted and rejected rows as delimited text.
//
// One Writer exists per record name for the whole run. The accepted file
// <name>.csv is created on the first accepted row and the rejected file
// <name>_rejected.csv on the first rejected row, each starting with its
// header. Rows from successive input files append to the same writers.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentic-research/rowcast/internal/config"
)

// ReasonColumn is the trailing column of rejected-row files.
const ReasonColumn = "_error_reason"

// Options control flushing and dry runs.
type Options struct {
	// FlushEvery: nil flushes after every row, 0 only on close, N every N rows.
	FlushEvery *int
	// DryRun counts rows without creating any file.
	DryRun bool
	Logger *slog.Logger
}

// Stats counts what one writer has seen.
type Stats struct {
	Accepted int64
	Rejected int64
	Flushes  int64
}

// Set owns the writers of one run.
type Set struct {
	dir     string
	opts    Options
	writers map[string]*Writer
	order   []string
}

// NewSet prepares dir for output. The directory is created unless the
// run is a dry run.
func NewSet(dir string, opts Options) (*Set, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.DryRun {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	return &Set{dir: dir, opts: opts, writers: make(map[string]*Writer)}, nil
}

// Writer returns the writer of rec, creating it on first use.
func (s *Set) Writer(rec *config.Record) *Writer {
	w, ok := s.writers[rec.Name]
	if !ok {
		w = &Writer{
			set:      s,
			columns:  rec.Columns,
			accepted: &dest{path: filepath.Join(s.dir, rec.Name+".csv")},
			rejected: &dest{path: filepath.Join(s.dir, rec.Name+"_rejected.csv")},
		}
		s.writers[rec.Name] = w
		s.order = append(s.order, rec.Name)
	}
	return w
}

// Accept writes an accepted row.
func (s *Set) Accept(rec *config.Record, values []string) error {
	return s.Writer(rec).Accept(values)
}

// Reject writes a rejected row with its reason.
func (s *Set) Reject(rec *config.Record, raw []string, reason string) error {
	return s.Writer(rec).Reject(raw, reason)
}

// Stats returns the counters of every writer by record name.
func (s *Set) Stats() map[string]Stats {
	out := make(map[string]Stats, len(s.writers))
	for name, w := range s.writers {
		out[name] = w.Stats()
	}
	return out
}

// Close flushes and closes every destination. All errors are returned.
func (s *Set) Close() error {
	var errs []error
	for _, name := range s.order {
		if err := s.writers[name].close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Writer is the pair of destinations of one record.
type Writer struct {
	set      *Set
	columns  []string
	accepted *dest
	rejected *dest
	stats    Stats
}

type dest struct {
	path    string
	file    *os.File
	csv     *csv.Writer
	pending int
	closed  bool
}

func (w *Writer) Accept(values []string) error {
	w.stats.Accepted++
	return w.write(w.accepted, w.columns, values)
}

func (w *Writer) Reject(raw []string, reason string) error {
	w.stats.Rejected++
	row := make([]string, len(w.columns)+1)
	copy(row, raw)
	row[len(w.columns)] = reason
	return w.write(w.rejected, w.rejectedHeader(), row)
}

func (w *Writer) Stats() Stats { return w.stats }

func (w *Writer) rejectedHeader() []string {
	h := make([]string, 0, len(w.columns)+1)
	h = append(h, w.columns...)
	return append(h, ReasonColumn)
}

func (w *Writer) write(d *dest, header, row []string) error {
	if w.set.opts.DryRun {
		return nil
	}
	if d.closed {
		return fmt.Errorf("write %s: writer closed", d.path)
	}
	if d.csv == nil {
		if err := w.open(d, header); err != nil {
			return err
		}
	}
	if err := d.csv.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	d.pending++
	if w.dueFlush(d) {
		return w.flush(d)
	}
	return nil
}

func (w *Writer) open(d *dest, header []string) error {
	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", d.path, err)
	}
	d.file = f
	d.csv = csv.NewWriter(f)
	if err := d.csv.Write(header); err != nil {
		return fmt.Errorf("write header %s: %w", d.path, err)
	}
	w.set.opts.Logger.Debug("opened output", "path", d.path, "columns", len(header))
	return nil
}

func (w *Writer) dueFlush(d *dest) bool {
	every := w.set.opts.FlushEvery
	switch {
	case every == nil:
		return true
	case *every == 0:
		return false
	default:
		return d.pending >= *every
	}
}

func (w *Writer) flush(d *dest) error {
	d.csv.Flush()
	d.pending = 0
	w.stats.Flushes++
	if err := d.csv.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", d.path, err)
	}
	return nil
}

func (w *Writer) close() error {
	var errs []error
	for _, d := range []*dest{w.accepted, w.rejected} {
		if d.closed || d.csv == nil {
			d.closed = true
			continue
		}
		d.closed = true
		if d.pending > 0 {
			if err := w.flush(d); err != nil {
				errs = append(errs, err)
			}
		}
		if err := d.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
