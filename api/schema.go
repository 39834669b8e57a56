package api

// Format names the input document family a run reads.
type Format string

const (
	FormatXML        Format = "xml"
	FormatCSV        Format = "csv"
	FormatFixedWidth Format = "fixed_width"
	FormatJSON       Format = "json"
)

// CastMode controls what a failed field cast does to a row.
type CastMode string

const (
	// CastSafe turns a failed cast into null.
	CastSafe CastMode = "safe"
	// CastStrict rejects the row on the first failed cast.
	CastStrict CastMode = "strict"
)

// Config is the root configuration document of an extraction run.
// It is decoded from JSON or YAML and compiled into an immutable plan
// before any input is touched.
type Config struct {
	// FormatType selects the reader used for every input file.
	FormatType Format `json:"format_type" yaml:"format_type"`
	// Namespaces maps XML prefixes used in selectors to namespace URIs.
	Namespaces map[string]string `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	// IgnoreBrokenFiles records malformed files as failed without stopping a fail-fast run.
	IgnoreBrokenFiles bool `json:"ignoreBrokenFiles,omitempty" yaml:"ignoreBrokenFiles,omitempty"`
	// TrimStrings trims surrounding whitespace before casting. Defaults to true.
	TrimStrings *bool `json:"trim_strings,omitempty" yaml:"trim_strings,omitempty"`
	// EmptyStringAsNull treats empty values as null. Defaults to true.
	EmptyStringAsNull *bool `json:"empty_string_as_null,omitempty" yaml:"empty_string_as_null,omitempty"`
	// CastMode is "safe" (default) or "strict".
	CastMode CastMode `json:"cast_mode,omitempty" yaml:"cast_mode,omitempty"`
	// FileMask is a regex matched against archive member base names.
	FileMask string `json:"file_mask,omitempty" yaml:"file_mask,omitempty"`
	// MaxFiles keeps only the first N matching archive members.
	MaxFiles int `json:"max_files,omitempty" yaml:"max_files,omitempty"`
	// MaxFileSize is the byte limit for every concrete file, extracted or not.
	MaxFileSize int64 `json:"max_file_size,omitempty" yaml:"max_file_size,omitempty"`
	// FlushEvery sets output flush cadence: absent flushes every row,
	// 0 flushes only on close, N flushes every N rows.
	FlushEvery *int `json:"flush_every,omitempty" yaml:"flush_every,omitempty"`
	// ProgressInterval is the number of rows between progress callbacks.
	ProgressInterval int `json:"progress_interval,omitempty" yaml:"progress_interval,omitempty"`
	// Encoding is the text encoding label of CSV, fixed-width and JSON inputs.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`

	CSV        CSVOptions        `json:"csv,omitempty" yaml:"csv,omitempty"`
	FixedWidth FixedWidthOptions `json:"fixed_width,omitempty" yaml:"fixed_width,omitempty"`

	// ComputedFields are formulas that fields of type "computed" refer to by name.
	ComputedFields []ComputedFieldSpec `json:"computed_fields,omitempty" yaml:"computed_fields,omitempty"`
	// Records lists the record types extracted from every input.
	Records []RecordSpec `json:"records" yaml:"records"`
}

// CSVOptions tunes the delimited reader.
type CSVOptions struct {
	Delimiter  string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	HasHeader  *bool  `json:"has_header,omitempty" yaml:"has_header,omitempty"`
	SkipRows   int    `json:"skip_rows,omitempty" yaml:"skip_rows,omitempty"`
	LazyQuotes bool   `json:"lazy_quotes,omitempty" yaml:"lazy_quotes,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// FixedWidthOptions tunes the fixed-width reader.
type FixedWidthOptions struct {
	SkipRows int `json:"skip_rows,omitempty" yaml:"skip_rows,omitempty"`
}

// RecordSpec describes how to locate and decode one logical record type.
type RecordSpec struct {
	// Name is unique across the document and names the output files.
	Name string `json:"name" yaml:"name"`
	// Select locates record instances (XPath for XML, JSON path for JSON).
	Select string `json:"select,omitempty" yaml:"select,omitempty"`
	// Fields are extracted per record instance, in output order.
	Fields []FieldSpec `json:"fields" yaml:"fields"`
	// Context columns follow the fields.
	Context []ContextField `json:"context,omitempty" yaml:"context,omitempty"`
	// Computed columns come last.
	Computed []ComputedFieldSpec `json:"computed,omitempty" yaml:"computed,omitempty"`
	// RecordTypeField and RecordTypeValue route CSV and fixed-width lines
	// to this record when the named field equals the value.
	RecordTypeField string `json:"record_type_field,omitempty" yaml:"record_type_field,omitempty"`
	RecordTypeValue string `json:"record_type_value,omitempty" yaml:"record_type_value,omitempty"`
}

// FieldSpec is one typed, validated value extracted per record.
type FieldSpec struct {
	Name string `json:"name" yaml:"name"`
	// Path is an XPath, JSON path, CSV header name or CSV column index.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Type is one of string, int, decimal, boolean, date, datetime, computed, json.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Nullable defaults to true.
	Nullable *bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	// ComputedField names the computed_fields entry of a "computed" field.
	ComputedField string `json:"computed_field,omitempty" yaml:"computed_field,omitempty"`

	// Fixed-width locator: Start plus Width or End (exclusive), in characters.
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	Width *int `json:"width,omitempty" yaml:"width,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`

	Regex    string   `json:"regex,omitempty" yaml:"regex,omitempty"`
	MinValue *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	// Default replaces missing or empty raw values.
	Default *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// ContextField adds a column that is either a static value or a locator
// resolved against the record like a field.
type ContextField struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
}

// ComputedFieldSpec derives a column from other columns of the same record.
type ComputedFieldSpec struct {
	Name    string `json:"name" yaml:"name"`
	Formula string `json:"formula" yaml:"formula"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
}
