package ingest

import (
	"log/slog"

	"github.com/agentic-research/rowcast/internal/selector"
)

// Progress is a snapshot of run counters.
type Progress struct {
	FilesDone    int
	FilesFailed  int
	RowsAccepted int64
	RowsRejected int64
	Cache        selector.Stats
}

// Observer receives run events. Implementations must not block for long;
// they run on the engine's goroutine.
type Observer interface {
	FileStarted(input, name string)
	FileFinished(o *FileOutcome)
	Progress(p Progress)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) FileStarted(input, name string) {
	for _, o := range obs {
		o.FileStarted(input, name)
	}
}

func (obs Observers) FileFinished(out *FileOutcome) {
	for _, o := range obs {
		o.FileFinished(out)
	}
}

func (obs Observers) Progress(p Progress) {
	for _, o := range obs {
		o.Progress(p)
	}
}

// LogObserver reports events through slog.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) FileStarted(input, name string) {
	l.Logger.Info("processing", "input", input, "file", name)
}

func (l LogObserver) FileFinished(o *FileOutcome) {
	if o.Status == StatusFailure {
		l.Logger.Error("file failed", "input", o.Input, "file", o.Name, "kind", string(o.ErrKind), "err", o.Reason)
		return
	}
	l.Logger.Info("file done", "input", o.Input, "file", o.Name,
		"accepted", o.Accepted, "rejected", o.Rejected, "duration", o.Duration)
}

func (l LogObserver) Progress(p Progress) {
	l.Logger.Info("progress",
		"files", p.FilesDone, "failed", p.FilesFailed,
		"accepted", p.RowsAccepted, "rejected", p.RowsRejected,
		"cache_hits", p.Cache.Hits, "cache_misses", p.Cache.Misses)
}

type nopObserver struct{}

func (nopObserver) FileStarted(string, string) {}
func (nopObserver) FileFinished(*FileOutcome)  {}
func (nopObserver) Progress(Progress)          {}
