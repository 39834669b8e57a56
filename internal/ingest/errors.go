package ingest

import (
	"context"
	"errors"

	"github.com/agentic-research/rowcast/internal/archive"
	"github.com/agentic-research/rowcast/internal/reader"
)

// ErrOutput wraps failures writing result files. They stop the run
// because the output set is shared by every file.
var ErrOutput = errors.New("output error")

// ErrorKind groups file-level failures by how the batch policy treats them.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindIngestion ErrorKind = "ingestion"
	KindParse     ErrorKind = "parse"
	KindOutput    ErrorKind = "output"
	KindCanceled  ErrorKind = "canceled"
	KindIO        ErrorKind = "io"
)

// Classify maps an error to its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		ae *archive.Error
		pe *reader.ParseError
	)
	switch {
	case errors.Is(err, ErrOutput):
		return KindOutput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &ae):
		return KindIngestion
	default:
		return KindIO
	}
}
