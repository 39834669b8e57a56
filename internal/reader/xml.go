package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/selector"
	"github.com/agentic-research/rowcast/internal/variant"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// XMLReader streams record anchors with one pass over the file per spec.
// Only the current anchor and its ancestors are held in memory.
//
// The document's own XML declaration selects its character encoding.
type XMLReader struct {
	plan   *config.Plan
	caches *selector.Set
	conv   *variant.Converter
}

func (r *XMLReader) Open(_ context.Context, path string) (Iterator, error) {
	// Fail on unreadable files now rather than on the first Next.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &xmlIterator{r: r, path: path, file: f, spec: -1}, nil
}

type xmlIterator struct {
	r    *XMLReader
	path string
	file *os.File
	sp   *xmlquery.StreamParser

	spec    int
	ordinal int64
	cur     RawRecord
	err     error
}

// nextSpec rewinds the file and starts a stream for the next spec.
func (it *xmlIterator) nextSpec() bool {
	it.spec++
	if it.spec >= len(it.r.plan.Records) {
		return false
	}
	if it.spec > 0 {
		if _, err := it.file.Seek(0, io.SeekStart); err != nil {
			it.err = fmt.Errorf("rewind %s: %w", it.path, err)
			return false
		}
	}
	spec := it.r.plan.Records[it.spec]
	sp, err := xmlquery.CreateStreamParser(it.file, selector.StreamSelector(spec.Select, it.r.plan.Namespaces))
	if err != nil {
		it.err = fmt.Errorf("record %s: %w", spec.Name, err)
		return false
	}
	it.sp, it.ordinal = sp, 0
	return true
}

func (it *xmlIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.sp == nil && !it.nextSpec() {
			return false
		}
		node, err := it.sp.Read()
		if errors.Is(err, io.EOF) {
			it.sp = nil
			continue
		}
		if err != nil {
			kind := ErrMalformed
			if strings.Contains(err.Error(), "invalid UTF-8") {
				kind = ErrEncoding
			}
			it.err = parseError(it.path, 0, kind, err)
			return false
		}
		return it.build(node)
	}
}

func (it *xmlIterator) build(anchor *xmlquery.Node) bool {
	spec := it.r.plan.Records[it.spec]
	it.ordinal++
	it.cur = newRecord(spec, it.ordinal)

	for j, f := range spec.Fields {
		v, err := it.resolve(anchor, f.Name, f.Path, f.Type == config.TypeJSON)
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
		v, err := it.resolve(anchor, c.Name, c.From, false)
		if err != nil {
			it.err = err
			return false
		}
		it.cur.Context[j] = v
	}
	return true
}

func (it *xmlIterator) resolve(anchor *xmlquery.Node, name, path string, variantField bool) (RawValue, error) {
	expr, err := it.r.caches.XPath.Get(path)
	if err != nil {
		return RawValue{}, err
	}
	switch res := expr.Evaluate(xmlquery.CreateXPathNavigator(anchor)).(type) {
	case *xpath.NodeIterator:
		if variantField {
			var nodes []*xmlquery.Node
			for res.MoveNext() {
				if nav, ok := res.Current().(*xmlquery.NodeNavigator); ok {
					nodes = append(nodes, nav.Current())
				}
			}
			if len(nodes) == 0 {
				return RawValue{}, nil
			}
			return RawValue{Text: it.r.conv.XML(name, nodes), Present: true}, nil
		}
		if !res.MoveNext() {
			return RawValue{}, nil
		}
		return RawValue{Text: res.Current().Value(), Present: true}, nil
	case string:
		return RawValue{Text: res, Present: true}, nil
	case float64:
		return RawValue{Text: strconv.FormatFloat(res, 'f', -1, 64), Present: true}, nil
	case bool:
		return RawValue{Text: strconv.FormatBool(res), Present: true}, nil
	default:
		return RawValue{}, nil
	}
}

func (it *xmlIterator) Record() RawRecord { return it.cur }
func (it *xmlIterator) Err() error        { return it.err }
func (it *xmlIterator) Close() error      { return it.file.Close() }
