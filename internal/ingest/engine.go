package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentic-research/rowcast/internal/archive"
	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/materialize"
	"github.com/agentic-research/rowcast/internal/reader"
	"github.com/agentic-research/rowcast/internal/selector"
	"github.com/agentic-research/rowcast/internal/sink"
	"github.com/agentic-research/rowcast/internal/variant"
)

// Options configure an Engine.
type Options struct {
	OutputDir string
	DryRun    bool
	// FailFast stops the run at the first file-level failure.
	FailFast bool
	// TempDir hosts archive workspaces; empty uses the system default.
	TempDir  string
	Logger   *slog.Logger
	Observer Observer
	// CacheCapacity bounds each selector cache; 0 uses the default.
	CacheCapacity int
}

// Engine drives one run: every input is prepared, read, materialized and
// written in order, one file at a time.
type Engine struct {
	Plan *config.Plan

	opts     Options
	caches   *selector.Set
	reader   reader.Reader
	mat      *materialize.Materializer
	progress Progress
	rows     int64
}

// NewEngine builds an engine for plan. The engine owns its selector caches.
func NewEngine(plan *config.Plan, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	caches, err := selector.NewSet(opts.CacheCapacity, plan.Namespaces)
	if err != nil {
		return nil, err
	}
	r, err := reader.New(plan, caches, variant.New(opts.Logger))
	if err != nil {
		return nil, err
	}
	return &Engine{
		Plan:   plan,
		opts:   opts,
		caches: caches,
		reader: r,
		mat:    materialize.New(plan),
	}, nil
}

// Caches exposes the run's selector caches.
func (e *Engine) Caches() *selector.Set { return e.caches }

// Progress returns the current counters.
func (e *Engine) Progress() Progress {
	p := e.progress
	p.Cache = e.caches.Stats()
	return p
}

// Run processes inputs in order. The returned error covers failures of the
// run itself, such as an unusable output directory; file failures are
// reported in the result.
func (e *Engine) Run(ctx context.Context, inputs []string) (result *BatchResult, err error) {
	sinks, err := sink.NewSet(e.opts.OutputDir, sink.Options{
		FlushEvery: e.Plan.FlushEvery,
		DryRun:     e.opts.DryRun,
		Logger:     e.opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	result = &BatchResult{}
	defer func() {
		if cerr := sinks.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrOutput, cerr)
		}
		result.Classification = classify(result.Outcomes)
		result.Cache = e.caches.Stats()
		e.opts.Observer.Progress(e.Progress())
	}()

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			break
		}
		outcomes, stop := e.processInput(ctx, input, sinks)
		result.Outcomes = append(result.Outcomes, outcomes...)
		if stop {
			result.Aborted = true
			break
		}
	}
	return result, nil
}

// processInput prepares one input item and processes its files. The
// workspace is removed before returning.
func (e *Engine) processInput(ctx context.Context, input string, sinks *sink.Set) ([]FileOutcome, bool) {
	item, err := archive.Prepare(ctx, input, archive.Options{
		Mask:        e.Plan.FileMask,
		MaxFiles:    e.Plan.MaxFiles,
		MaxFileSize: e.Plan.MaxFileSize,
		TempDir:     e.opts.TempDir,
		Logger:      e.opts.Logger,
	})
	if err != nil {
		o := FileOutcome{Input: input, Records: map[string]*Counts{}}
		o.fail(err)
		e.finish(&o)
		return []FileOutcome{o}, e.stopAfter(&o)
	}
	defer func() {
		if err := item.Close(); err != nil {
			e.opts.Logger.Warn("remove workspace", "input", input, "err", err)
		}
	}()

	var outcomes []FileOutcome
	for _, entry := range item.Entries {
		if ctx.Err() != nil {
			return outcomes, true
		}
		o := e.processFile(ctx, item, entry, sinks)
		outcomes = append(outcomes, o)
		if o.Status == StatusFailure && e.stopAfter(&o) {
			return outcomes, true
		}
	}
	return outcomes, false
}

func (e *Engine) processFile(ctx context.Context, item *archive.Item, entry archive.Entry, sinks *sink.Set) FileOutcome {
	o := FileOutcome{Input: item.Input, Name: entry.Name, Kind: item.Kind, Records: map[string]*Counts{}}
	start := time.Now()
	e.opts.Observer.FileStarted(item.Input, entry.Name)
	defer func() {
		o.Duration = time.Since(start)
		e.finish(&o)
	}()

	it, err := e.reader.Open(ctx, entry.Path)
	if err != nil {
		o.fail(err)
		return o
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
		raw := it.Record()
		c := o.counts(raw.Spec.Name)
		c.Raw++

		out := e.mat.Materialize(raw)
		if out.Accepted != nil {
			err = sinks.Accept(raw.Spec, out.Accepted.Texts())
			c.Accepted++
			o.Accepted++
			e.progress.RowsAccepted++
		} else {
			err = sinks.Reject(raw.Spec, out.Rejected.Raw, out.Rejected.Reason)
			if !c.reject(raw.Ordinal) {
				e.opts.Logger.Warn("ordinal out of bitmap range, not indexed",
					"file", entry.Name, "record", raw.Spec.Name, "ordinal", raw.Ordinal)
			}
			o.Rejected++
			e.progress.RowsRejected++
		}
		if err != nil {
			o.fail(fmt.Errorf("%w: %w", ErrOutput, err))
			return o
		}
		e.rows++
		if iv := e.Plan.ProgressInterval; iv > 0 && e.rows%int64(iv) == 0 {
			e.opts.Observer.Progress(e.Progress())
		}
	}
	if err := it.Err(); err != nil {
		o.fail(err)
	}
	return o
}

func (e *Engine) finish(o *FileOutcome) {
	e.progress.FilesDone++
	if o.Status == StatusFailure {
		e.progress.FilesFailed++
	}
	e.opts.Observer.FileFinished(o)
}

// stopAfter reports whether a failed outcome ends the run. Output errors
// always do. Under fail-fast every failure does, except malformed files
// when broken files are to be ignored.
func (e *Engine) stopAfter(o *FileOutcome) bool {
	switch {
	case o.Status != StatusFailure:
		return false
	case o.ErrKind == KindOutput:
		return true
	case !e.opts.FailFast:
		return false
	case o.ErrKind == KindParse && e.Plan.IgnoreBrokenFiles:
		return false
	default:
		return true
	}
}
