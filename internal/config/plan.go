package config

import (
	"regexp"

	"github.com/agentic-research/rowcast/api"
	"github.com/agentic-research/rowcast/internal/formula"
)

// Plan is the compiled, immutable form of a Config. Readers, the
// materializer and the sink only ever see a Plan.
type Plan struct {
	Format            api.Format
	Namespaces        map[string]string
	IgnoreBrokenFiles bool
	Trim              bool
	EmptyAsNull       bool
	Strict            bool
	FileMask          *regexp.Regexp
	MaxFiles          int
	MaxFileSize       int64
	FlushEvery        *int
	ProgressInterval  int
	Encoding          string
	CSV               CSVPlan
	FixedSkipRows     int
	Records           []*Record
}

// CSVPlan holds resolved CSV reader settings.
type CSVPlan struct {
	Delimiter  rune
	Comment    rune
	HasHeader  bool
	SkipRows   int
	LazyQuotes bool
}

// Record is one compiled RecordSpec.
type Record struct {
	Name   string
	Select string
	// Fields are extracted by readers; computed field entries are not here.
	Fields   []*Field
	Context  []*Context
	Computed []*Computed
	// Columns is the output header: fields, context, computed.
	Columns []string
	// Discriminator routes CSV and fixed-width lines, nil when unset.
	Discriminator *Discriminator
}

// Width is the number of output columns.
func (r *Record) Width() int { return len(r.Columns) }

// Discriminator selects lines whose field at Index equals Value.
type Discriminator struct {
	Index int
	Value string
}

// Field is one extracted column.
type Field struct {
	Name string
	Path string
	Type Type
	// Column is the CSV column index when Path is numeric, else -1.
	Column int
	// Start and End are rune offsets for fixed-width input, End exclusive.
	Start, End int
	Constraints
	Default *string
}

// Constraints are the validation rules of a column.
type Constraints struct {
	Nullable bool
	Pattern  string
	Regex    *regexp.Regexp
	Min, Max *float64
}

// Context is a static or located column appended after the fields.
type Context struct {
	Name  string
	Value string
	From  string
	// Column is the CSV column index when From is numeric, else -1.
	Column int
}

// Static reports whether the value is fixed for every row.
func (c *Context) Static() bool { return c.From == "" }

// Computed is a formula column.
type Computed struct {
	Name string
	Expr *formula.Expr
	Type Type
	// Constraints are set when the column was declared as a field entry.
	Constraints *Constraints
}
