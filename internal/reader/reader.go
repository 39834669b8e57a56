// Package reader produces raw records from input documents.
//
// One Reader exists per format. Open returns a forward-only Iterator that
// yields the records of every RecordSpec in the plan, one at a time:
//
//	it, err := r.Open(ctx, path)
//	if err != nil { ... }
//	defer func() { _ = it.Close() }()
//	for it.Next() {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
package reader

import (
	"context"
	"fmt"

	"github.com/agentic-research/rowcast/api"
	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/selector"
	"github.com/agentic-research/rowcast/internal/variant"
)

// RawValue is one captured value. Present is false when the locator
// matched nothing.
type RawValue struct {
	Text    string
	Present bool
}

// RawRecord holds the untyped values of one record instance.
// Fields and Context are aligned with Spec.Fields and Spec.Context.
type RawRecord struct {
	Spec    *config.Record
	Ordinal int64
	Fields  []RawValue
	Context []RawValue
}

// Iterator is a lazy sequence of raw records from one file.
type Iterator interface {
	Next() bool
	Record() RawRecord
	Err() error
	Close() error
}

// Reader opens files of one format.
type Reader interface {
	Open(ctx context.Context, path string) (Iterator, error)
}

// New returns the reader for the plan's format.
func New(plan *config.Plan, caches *selector.Set, conv *variant.Converter) (Reader, error) {
	switch plan.Format {
	case api.FormatXML:
		return &XMLReader{plan: plan, caches: caches, conv: conv}, nil
	case api.FormatCSV:
		return &CSVReader{plan: plan}, nil
	case api.FormatFixedWidth:
		return &FixedWidthReader{plan: plan}, nil
	case api.FormatJSON:
		return &JSONReader{plan: plan, caches: caches, conv: conv}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", plan.Format)
	}
}

func newRecord(spec *config.Record, ordinal int64) RawRecord {
	return RawRecord{
		Spec:    spec,
		Ordinal: ordinal,
		Fields:  make([]RawValue, len(spec.Fields)),
		Context: make([]RawValue, len(spec.Context)),
	}
}

// counter hands out per-spec ordinals starting at 1.
type counter map[string]int64

func (c counter) next(spec *config.Record) int64 {
	c[spec.Name]++
	return c[spec.Name]
}
