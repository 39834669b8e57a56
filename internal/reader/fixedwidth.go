package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
)

// FixedWidthReader slices lines by character offsets.
type FixedWidthReader struct {
	plan *config.Plan
}

func (r *FixedWidthReader) Open(_ context.Context, path string) (Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dec, err := Decode(f, r.plan.Encoding)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fixedWidthIterator{
		plan:     r.plan,
		path:     path,
		file:     f,
		br:       bufio.NewReaderSize(dec, 64*1024),
		ordinals: make(counter),
	}, nil
}

type fixedWidthIterator struct {
	plan *config.Plan
	path string
	file *os.File
	br   *bufio.Reader

	lineNo   int64
	line     []rune
	pending  int
	eof      bool
	ordinals counter
	cur      RawRecord
	err      error
}

func (it *fixedWidthIterator) readLine() (string, error) {
	s, err := it.br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	it.lineNo++
	s = strings.TrimRight(s, "\r\n")
	return s, nil
}

func (it *fixedWidthIterator) Next() bool {
	if it.err != nil || it.eof {
		return false
	}
	for {
		for it.line != nil && it.pending < len(it.plan.Records) {
			spec := it.plan.Records[it.pending]
			it.pending++
			if !it.matches(spec) {
				continue
			}
			it.cur = newRecord(spec, it.ordinals.next(spec))
			for j, f := range spec.Fields {
				it.cur.Fields[j] = slice(it.line, f.Start, f.End)
			}
			return true
		}

		s, err := it.readLine()
		if err != nil {
			it.line = nil
			if errors.Is(err, io.EOF) {
				it.eof = true
			} else {
				it.err = parseError(it.path, it.lineNo+1, ErrMalformed, err)
			}
			return false
		}
		if it.lineNo <= int64(it.plan.FixedSkipRows) || strings.TrimSpace(s) == "" {
			continue
		}
		it.line, it.pending = []rune(s), 0
	}
}

func (it *fixedWidthIterator) matches(spec *config.Record) bool {
	d := spec.Discriminator
	if d == nil {
		return true
	}
	f := spec.Fields[d.Index]
	return strings.TrimSpace(slice(it.line, f.Start, f.End).Text) == d.Value
}

func (it *fixedWidthIterator) Record() RawRecord { return it.cur }
func (it *fixedWidthIterator) Err() error        { return it.err }
func (it *fixedWidthIterator) Close() error      { return it.file.Close() }

// slice returns line[start:end] clipped to the line; a field starting past
// the end of the line is absent.
func slice(line []rune, start, end int) RawValue {
	if start >= len(line) {
		return RawValue{}
	}
	if end > len(line) {
		end = len(line)
	}
	return RawValue{Text: string(line[start:end]), Present: true}
}
