package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
)

// CSVReader reads delimited text one row at a time. Each row is offered
// to every record whose discriminator matches.
type CSVReader struct {
	plan *config.Plan
}

func (r *CSVReader) Open(_ context.Context, path string) (Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dec, err := Decode(f, r.plan.Encoding)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	cr := csv.NewReader(dec)
	cr.Comma = r.plan.CSV.Delimiter
	cr.Comment = r.plan.CSV.Comment
	cr.LazyQuotes = r.plan.CSV.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	return &csvIterator{
		plan:     r.plan,
		path:     path,
		file:     f,
		cr:       cr,
		ordinals: make(counter),
	}, nil
}

type csvIterator struct {
	plan *config.Plan
	path string
	file *os.File
	cr   *csv.Reader

	started bool
	// columns[i][j] is the column of Records[i].Fields[j]; ctxColumns likewise.
	columns    [][]int
	ctxColumns [][]int

	row      []string
	pending  int // index into plan.Records of the next spec to try for row
	ordinals counter
	cur      RawRecord
	err      error
}

func (it *csvIterator) start() error {
	it.started = true
	for i := 0; i < it.plan.CSV.SkipRows; i++ {
		if _, err := it.cr.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return it.wrap(err)
		}
	}
	var header map[string]int
	var folded map[string]int
	if it.plan.CSV.HasHeader {
		row, err := it.cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return it.wrap(err)
		}
		header = make(map[string]int, len(row))
		folded = make(map[string]int, len(row))
		for i, name := range row {
			name = strings.TrimSpace(name)
			if _, dup := header[name]; !dup {
				header[name] = i
			}
			if _, dup := folded[strings.ToLower(name)]; !dup {
				folded[strings.ToLower(name)] = i
			}
		}
	}
	resolve := func(path string, index int) int {
		if header != nil {
			if i, ok := header[strings.TrimSpace(path)]; ok {
				return i
			}
			if i, ok := folded[strings.ToLower(strings.TrimSpace(path))]; ok {
				return i
			}
		}
		return index
	}
	for _, spec := range it.plan.Records {
		cols := make([]int, len(spec.Fields))
		for j, f := range spec.Fields {
			cols[j] = resolve(f.Path, f.Column)
		}
		ctx := make([]int, len(spec.Context))
		for j, c := range spec.Context {
			ctx[j] = -1
			if !c.Static() {
				ctx[j] = resolve(c.From, c.Column)
			}
		}
		it.columns = append(it.columns, cols)
		it.ctxColumns = append(it.ctxColumns, ctx)
	}
	return nil
}

func (it *csvIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		if err := it.start(); err != nil {
			it.err = err
			return false
		}
	}
	for {
		for it.row != nil && it.pending < len(it.plan.Records) {
			i := it.pending
			it.pending++
			spec := it.plan.Records[i]
			if !it.matches(i, spec) {
				continue
			}
			it.cur = newRecord(spec, it.ordinals.next(spec))
			for j, col := range it.columns[i] {
				it.cur.Fields[j] = cell(it.row, col)
			}
			for j, col := range it.ctxColumns[i] {
				it.cur.Context[j] = cell(it.row, col)
			}
			return true
		}

		row, err := it.cr.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				it.err = it.wrap(err)
			}
			it.row = nil
			return false
		}
		if blank(row) {
			continue
		}
		it.row, it.pending = row, 0
	}
}

func (it *csvIterator) matches(i int, spec *config.Record) bool {
	d := spec.Discriminator
	if d == nil {
		return true
	}
	v := cell(it.row, it.columns[i][d.Index])
	return strings.TrimSpace(v.Text) == d.Value
}

func (it *csvIterator) wrap(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return parseError(it.path, int64(pe.Line), ErrMalformed, err)
	}
	return parseError(it.path, 0, ErrMalformed, err)
}

func (it *csvIterator) Record() RawRecord { return it.cur }
func (it *csvIterator) Err() error        { return it.err }
func (it *csvIterator) Close() error      { return it.file.Close() }

func cell(row []string, col int) RawValue {
	if col < 0 || col >= len(row) {
		return RawValue{}
	}
	return RawValue{Text: row[col], Present: true}
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
