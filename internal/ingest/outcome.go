package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/rowcast/internal/archive"
	"github.com/agentic-research/rowcast/internal/selector"
)

// Status is the result of one concrete file.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Counts tallies the records of one RecordSpec within a file.
type Counts struct {
	Raw      int64
	Accepted int64
	Rejected int64
	// RejectedOrdinals holds the 1-based ordinals of rejected records.
	RejectedOrdinals *roaring.Bitmap
	// Unindexed counts rejected records whose ordinal does not fit the
	// 32-bit bitmap. They are still counted in Rejected.
	Unindexed int64
}

// reject counts one rejected record. It reports false the first time an
// ordinal is too large to index.
func (c *Counts) reject(ordinal int64) bool {
	c.Rejected++
	if ordinal < 0 || ordinal > math.MaxUint32 {
		c.Unindexed++
		return c.Unindexed > 1
	}
	c.RejectedOrdinals.Add(uint32(ordinal))
	return true
}

// FileOutcome describes one concrete file, or one input item that failed
// before any file could be extracted from it.
type FileOutcome struct {
	Input    string
	Name     string
	Kind     archive.Kind
	Status   Status
	Reason   string
	ErrKind  ErrorKind
	Err      error
	Accepted int64
	Rejected int64
	Records  map[string]*Counts
	Duration time.Duration
}

func (o *FileOutcome) counts(spec string) *Counts {
	c, ok := o.Records[spec]
	if !ok {
		c = &Counts{RejectedOrdinals: roaring.New()}
		o.Records[spec] = c
	}
	return c
}

func (o *FileOutcome) fail(err error) {
	o.Status = StatusFailure
	o.Err = err
	o.ErrKind = Classify(err)
	o.Reason = err.Error()
}

// Line is the one-line human summary of the outcome.
func (o *FileOutcome) Line() string {
	name := o.Name
	if name == "" {
		name = o.Input
	} else if name != o.Input && o.Kind != archive.Plain {
		name = o.Input + "!" + name
	}
	if o.Status == StatusFailure {
		return fmt.Sprintf("FAILED  %s: %s", name, o.Reason)
	}
	return fmt.Sprintf("OK      %s: %d accepted, %d rejected", name, o.Accepted, o.Rejected)
}

// Classification is the overall result of a batch.
type Classification int

const (
	Success Classification = iota
	Failure
	PartialFailure
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case PartialFailure:
		return "partial_failure"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// ExitCode maps the classification to the process exit status.
func (c Classification) ExitCode() int {
	switch c {
	case Success:
		return 0
	case Failure:
		return 1
	default:
		return 2
	}
}

// BatchResult aggregates a run.
type BatchResult struct {
	Outcomes       []FileOutcome
	Classification Classification
	// Aborted is set when fail-fast, an output error or cancellation
	// stopped the run before every input was processed.
	Aborted bool
	Cache   selector.Stats
}

// Succeeded and Failed count outcomes by status.
func (r *BatchResult) Succeeded() int { return r.count(StatusSuccess) }
func (r *BatchResult) Failed() int    { return r.count(StatusFailure) }

func (r *BatchResult) count(s Status) int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Status == s {
			n++
		}
	}
	return n
}

// ExitCode is shorthand for Classification.ExitCode.
func (r *BatchResult) ExitCode() int { return r.Classification.ExitCode() }

// classify derives the batch classification from its outcomes.
func classify(outcomes []FileOutcome) Classification {
	ok, failed := 0, 0
	for i := range outcomes {
		if outcomes[i].Status == StatusSuccess {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Success
	case ok == 0:
		return Failure
	default:
		return PartialFailure
	}
}
