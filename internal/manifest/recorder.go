package manifest

import (
	"log/slog"

	"github.com/agentic-research/rowcast/internal/ingest"
)

// Recorder is an ingest.Observer that writes every finished file to a run.
// Write failures are logged and counted; they never stop the run.
type Recorder struct {
	Store  *Store
	RunID  string
	Logger *slog.Logger

	seq    int
	Errors int
}

// NewRecorder returns a recorder for runID.
func NewRecorder(store *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{Store: store, RunID: runID, Logger: logger}
}

func (r *Recorder) FileStarted(string, string) {}

func (r *Recorder) FileFinished(o *ingest.FileOutcome) {
	r.seq++
	if err := r.Store.RecordOutcome(r.RunID, r.seq, o); err != nil {
		r.Errors++
		r.Logger.Warn("manifest write failed", "run", r.RunID, "seq", r.seq, "err", err)
	}
}

func (r *Recorder) Progress(ingest.Progress) {}
