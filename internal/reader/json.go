package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/selector"
	"github.com/agentic-research/rowcast/internal/variant"
)

// JSONReader decodes the whole document once, then walks the records each
// spec selects.
type JSONReader struct {
	plan   *config.Plan
	caches *selector.Set
	conv   *variant.Converter
}

func (r *JSONReader) Open(_ context.Context, path string) (Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec, err := Decode(f, r.plan.Encoding)
	if err != nil {
		return nil, err
	}
	jd := json.NewDecoder(dec)
	jd.UseNumber()
	var doc any
	if err := jd.Decode(&doc); err != nil {
		return &jsonIterator{err: parseError(path, 0, ErrMalformed, err)}, nil
	}
	if _, err := jd.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return &jsonIterator{err: parseError(path, 0, ErrMalformed, err)}, nil
	}
	return &jsonIterator{r: r, path: path, doc: doc, spec: -1}, nil
}

type jsonIterator struct {
	r    *JSONReader
	path string
	doc  any

	spec    int
	items   []any
	pos     int
	ordinal int64
	cur     RawRecord
	err     error
}

func (it *jsonIterator) Next() bool {
	if it.err != nil || it.r == nil {
		return false
	}
	for it.pos >= len(it.items) {
		it.spec++
		if it.spec >= len(it.r.plan.Records) {
			it.doc, it.items = nil, nil
			return false
		}
		items, err := it.selectRecords(it.r.plan.Records[it.spec])
		if err != nil {
			it.err = err
			return false
		}
		it.items, it.pos, it.ordinal = items, 0, 0
	}

	spec := it.r.plan.Records[it.spec]
	item := it.items[it.pos]
	it.pos++
	it.ordinal++

	it.cur = newRecord(spec, it.ordinal)
	for j, f := range spec.Fields {
		v, err := it.value(item, f.Name, f.Path, f.Type == config.TypeJSON)
		if err != nil {
			it.err = err
			return false
		}
		it.cur.Fields[j] = v
	}
	for j, c := range spec.Context {
		if c.Static() {
			continue
		}
		v, err := it.value(item, c.Name, c.From, false)
		if err != nil {
			it.err = err
			return false
		}
		it.cur.Context[j] = v
	}
	return true
}

func (it *jsonIterator) selectRecords(spec *config.Record) ([]any, error) {
	x, err := it.r.caches.JSON.Get(spec.Select)
	if err != nil {
		return nil, err
	}
	results := x.Get(it.doc)
	if len(results) == 1 {
		if list, ok := results[0].([]any); ok {
			return list, nil
		}
	}
	return results, nil
}

// value resolves path against the record, or against the document root
// when the path starts with "$".
func (it *jsonIterator) value(item any, name, path string, variantField bool) (RawValue, error) {
	root := item
	if strings.HasPrefix(strings.TrimSpace(path), "$") {
		root = it.doc
	}
	x, err := it.r.caches.JSON.Get(path)
	if err != nil {
		return RawValue{}, err
	}
	matches := x.Get(root)
	switch {
	case len(matches) == 0:
		return RawValue{}, nil
	case variantField && len(matches) > 1:
		return RawValue{Text: it.r.conv.Value(name, matches), Present: true}, nil
	}

	switch v := matches[0].(type) {
	case nil:
		return RawValue{}, nil
	case string:
		if variantField {
			return RawValue{Text: it.r.conv.Value(name, v), Present: true}, nil
		}
		return RawValue{Text: v, Present: true}, nil
	case json.Number:
		return RawValue{Text: v.String(), Present: true}, nil
	case bool:
		if v {
			return RawValue{Text: "true", Present: true}, nil
		}
		return RawValue{Text: "false", Present: true}, nil
	default:
		return RawValue{Text: it.r.conv.Value(name, v), Present: true}, nil
	}
}

func (it *jsonIterator) Record() RawRecord { return it.cur }
func (it *jsonIterator) Err() error        { return it.err }
func (it *jsonIterator) Close() error {
	it.doc, it.items = nil, nil
	return nil
}
