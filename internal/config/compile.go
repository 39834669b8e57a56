package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agentic-research/rowcast/api"
	"github.com/agentic-research/rowcast/internal/formula"
	"github.com/agentic-research/rowcast/internal/selector"
	"github.com/antchfx/xpath"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultProgressInterval is the row count between progress callbacks.
const DefaultProgressInterval = 10_000

type compiler struct {
	cfg      *api.Config
	plan     *Plan
	problems []string
	globals  map[string]globalFormula
	xpathOf  func(string) (*xpath.Expr, error)
}

type globalFormula struct {
	expr *formula.Expr
	typ  Type
}

func (c *compiler) problem(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

// Compile validates cfg and resolves it into a Plan. All problems are
// reported together in a single *Error.
func Compile(cfg *api.Config) (*Plan, error) {
	c := &compiler{
		cfg:     cfg,
		plan:    &Plan{},
		globals: make(map[string]globalFormula),
		xpathOf: selector.XPathCompiler(cfg.Namespaces),
	}
	c.compileOptions()
	c.compileGlobals()
	c.compileRecords()
	if len(c.problems) > 0 {
		return nil, &Error{Problems: c.problems}
	}
	return c.plan, nil
}

func (c *compiler) compileOptions() {
	cfg, p := c.cfg, c.plan

	p.Format = api.Format(strings.ToLower(strings.TrimSpace(string(cfg.FormatType))))
	switch p.Format {
	case api.FormatXML, api.FormatCSV, api.FormatFixedWidth, api.FormatJSON:
	case "":
		c.problem("format_type is required")
	default:
		c.problem("unsupported format_type %q", cfg.FormatType)
	}

	p.Namespaces = make(map[string]string, len(cfg.Namespaces))
	for prefix, uri := range cfg.Namespaces {
		if prefix == "" || uri == "" {
			c.problem("namespace prefix and uri must be non-empty (%q=%q)", prefix, uri)
			continue
		}
		p.Namespaces[prefix] = uri
	}

	p.IgnoreBrokenFiles = cfg.IgnoreBrokenFiles
	p.Trim = boolOr(cfg.TrimStrings, true)
	p.EmptyAsNull = boolOr(cfg.EmptyStringAsNull, true)

	switch strings.ToLower(string(cfg.CastMode)) {
	case "", string(api.CastSafe):
	case string(api.CastStrict):
		p.Strict = true
	default:
		c.problem("cast_mode must be safe or strict, got %q", cfg.CastMode)
	}

	if cfg.FileMask != "" {
		re, err := regexp.Compile(cfg.FileMask)
		if err != nil {
			c.problem("invalid file_mask %q: %v", cfg.FileMask, err)
		}
		p.FileMask = re
	}
	if cfg.MaxFiles < 0 {
		c.problem("max_files must be positive, got %d", cfg.MaxFiles)
	}
	p.MaxFiles = cfg.MaxFiles
	if cfg.MaxFileSize < 0 {
		c.problem("max_file_size must be positive, got %d", cfg.MaxFileSize)
	}
	p.MaxFileSize = cfg.MaxFileSize
	if cfg.FlushEvery != nil && *cfg.FlushEvery < 0 {
		c.problem("flush_every must be zero or positive, got %d", *cfg.FlushEvery)
	}
	p.FlushEvery = cfg.FlushEvery
	p.ProgressInterval = cfg.ProgressInterval
	if p.ProgressInterval <= 0 {
		p.ProgressInterval = DefaultProgressInterval
	}

	if cfg.Encoding != "" && !isUTF8Label(cfg.Encoding) {
		if _, err := htmlindex.Get(cfg.Encoding); err != nil {
			c.problem("unsupported encoding %q", cfg.Encoding)
		}
	}
	p.Encoding = cfg.Encoding

	p.CSV = CSVPlan{
		Delimiter:  ',',
		HasHeader:  boolOr(cfg.CSV.HasHeader, true),
		SkipRows:   cfg.CSV.SkipRows,
		LazyQuotes: cfg.CSV.LazyQuotes,
	}
	if cfg.CSV.Delimiter != "" {
		r, ok := singleRune(cfg.CSV.Delimiter)
		if !ok {
			c.problem("csv delimiter must be a single character, got %q", cfg.CSV.Delimiter)
		}
		p.CSV.Delimiter = r
	}
	if cfg.CSV.Comment != "" {
		r, ok := singleRune(cfg.CSV.Comment)
		if !ok {
			c.problem("csv comment must be a single character, got %q", cfg.CSV.Comment)
		}
		p.CSV.Comment = r
	}
	if cfg.CSV.SkipRows < 0 || cfg.FixedWidth.SkipRows < 0 {
		c.problem("skip_rows must not be negative")
	}
	p.FixedSkipRows = cfg.FixedWidth.SkipRows
}

func (c *compiler) compileGlobals() {
	for i, g := range c.cfg.ComputedFields {
		if g.Name == "" {
			c.problem("computed_fields[%d]: name is required", i)
			continue
		}
		if _, dup := c.globals[g.Name]; dup {
			c.problem("computed_fields: duplicate name %q", g.Name)
			continue
		}
		expr, typ, ok := c.compileFormula("computed_fields "+g.Name, g.Formula, g.Type)
		if !ok {
			continue
		}
		c.globals[g.Name] = globalFormula{expr: expr, typ: typ}
	}
}

func (c *compiler) compileFormula(where, src, typeName string) (*formula.Expr, Type, bool) {
	typ, err := ParseType(typeName)
	if err != nil {
		c.problem("%s: %v", where, err)
		return nil, 0, false
	}
	if typ == TypeComputed {
		c.problem("%s: formula type cannot be computed", where)
		return nil, 0, false
	}
	if strings.TrimSpace(src) == "" {
		c.problem("%s: formula is required", where)
		return nil, 0, false
	}
	expr, err := formula.Parse(src)
	if err != nil {
		c.problem("%s: %v", where, err)
		return nil, 0, false
	}
	return expr, typ, true
}

func (c *compiler) compileRecords() {
	if len(c.cfg.Records) == 0 {
		c.problem("at least one record is required")
		return
	}
	seen := make(map[string]bool)
	for i := range c.cfg.Records {
		spec := &c.cfg.Records[i]
		switch {
		case spec.Name == "":
			c.problem("records[%d]: name is required", i)
			continue
		case seen[spec.Name]:
			c.problem("duplicate record name %q", spec.Name)
			continue
		case strings.ContainsAny(spec.Name, `/\`) || spec.Name == "." || spec.Name == "..":
			c.problem("record name %q cannot be used as a file name", spec.Name)
			continue
		}
		seen[spec.Name] = true
		if rec := c.compileRecord(spec); rec != nil {
			c.plan.Records = append(c.plan.Records, rec)
		}
	}
}

func (c *compiler) compileRecord(spec *api.RecordSpec) *Record {
	rec := &Record{Name: spec.Name, Select: spec.Select}
	where := "record " + spec.Name
	before := len(c.problems)

	c.compileRecordSelector(rec, where)

	columns := make(map[string]bool)
	addColumn := func(name string) bool {
		if name == "" {
			c.problem("%s: column name is required", where)
			return false
		}
		if columns[name] {
			c.problem("%s: duplicate column %q", where, name)
			return false
		}
		columns[name] = true
		return true
	}

	var fieldComputed []*Computed
	for _, fs := range spec.Fields {
		if !addColumn(fs.Name) {
			continue
		}
		typ, err := ParseType(fs.Type)
		if err != nil {
			c.problem("%s field %s: %v", where, fs.Name, err)
			continue
		}
		if typ == TypeComputed {
			if comp := c.compileFieldComputed(where, fs); comp != nil {
				fieldComputed = append(fieldComputed, comp)
			}
			continue
		}
		if f := c.compileField(where, fs, typ); f != nil {
			rec.Fields = append(rec.Fields, f)
		}
	}

	for _, cf := range spec.Context {
		if !addColumn(cf.Name) {
			continue
		}
		if ctx := c.compileContext(where, cf); ctx != nil {
			rec.Context = append(rec.Context, ctx)
		}
	}

	rec.Computed = fieldComputed
	for _, cs := range spec.Computed {
		if !addColumn(cs.Name) {
			continue
		}
		expr, typ, ok := c.compileFormula(where+" computed "+cs.Name, cs.Formula, cs.Type)
		if !ok {
			continue
		}
		rec.Computed = append(rec.Computed, &Computed{Name: cs.Name, Expr: expr, Type: typ})
	}

	for _, f := range rec.Fields {
		rec.Columns = append(rec.Columns, f.Name)
	}
	for _, ctx := range rec.Context {
		rec.Columns = append(rec.Columns, ctx.Name)
	}
	for _, comp := range rec.Computed {
		rec.Columns = append(rec.Columns, comp.Name)
	}

	c.checkRefs(rec, where)
	c.compileDiscriminator(rec, spec, where)

	if len(c.problems) > before {
		return nil
	}
	return rec
}

func (c *compiler) compileRecordSelector(rec *Record, where string) {
	switch c.plan.Format {
	case api.FormatXML:
		if rec.Select == "" {
			c.problem("%s: select is required for xml", where)
			return
		}
		if _, err := xpath.Compile(selector.StreamSelector(rec.Select, c.plan.Namespaces)); err != nil {
			c.problem("%s: invalid select %q: %v", where, rec.Select, err)
		}
	case api.FormatJSON:
		if _, err := selector.CompileJSONPath(rec.Select); err != nil {
			c.problem("%s: %v", where, err)
		}
	}
}

func (c *compiler) compileField(where string, fs api.FieldSpec, typ Type) *Field {
	f := &Field{Name: fs.Name, Path: fs.Path, Type: typ, Column: -1, Default: fs.Default}
	where = where + " field " + fs.Name

	switch c.plan.Format {
	case api.FormatFixedWidth:
		c.compileSpan(where, fs, f)
	default:
		if strings.TrimSpace(fs.Path) == "" {
			c.problem("%s: path is required", where)
			return nil
		}
		f.Column = c.compileLocator(where, fs.Path)
	}

	cons, ok := c.compileConstraints(where, fs, typ)
	if !ok {
		return nil
	}
	f.Constraints = cons
	return f
}

// compileLocator validates a path for the plan's format and returns the
// CSV column index it names, or -1.
func (c *compiler) compileLocator(where, path string) int {
	switch c.plan.Format {
	case api.FormatXML:
		if _, err := c.xpathOf(path); err != nil {
			c.problem("%s: %v", where, err)
		}
	case api.FormatJSON:
		if _, err := selector.CompileJSONPath(path); err != nil {
			c.problem("%s: %v", where, err)
		}
	case api.FormatCSV:
		idx, err := strconv.Atoi(strings.TrimSpace(path))
		if err == nil && idx >= 0 {
			return idx
		}
		if !c.plan.CSV.HasHeader {
			c.problem("%s: path %q must be a column index when the csv has no header", where, path)
		}
	}
	return -1
}

func (c *compiler) compileSpan(where string, fs api.FieldSpec, f *Field) {
	if fs.Start == nil {
		c.problem("%s: start is required for fixed_width", where)
		return
	}
	f.Start = *fs.Start
	if f.Start < 0 {
		c.problem("%s: start must not be negative", where)
	}
	switch {
	case fs.Width != nil && fs.End != nil:
		c.problem("%s: set width or end, not both", where)
	case fs.Width != nil:
		if *fs.Width <= 0 {
			c.problem("%s: width must be positive", where)
		}
		f.End = f.Start + *fs.Width
	case fs.End != nil:
		if *fs.End <= f.Start {
			c.problem("%s: end must be greater than start", where)
		}
		f.End = *fs.End
	default:
		c.problem("%s: width or end is required for fixed_width", where)
	}
}

func (c *compiler) compileConstraints(where string, fs api.FieldSpec, typ Type) (Constraints, bool) {
	cons := Constraints{Nullable: boolOr(fs.Nullable, true), Min: fs.MinValue, Max: fs.MaxValue}
	ok := true
	if fs.Regex != "" {
		if !typ.Textual() {
			c.problem("%s: regex applies to string fields only", where)
			ok = false
		}
		re, err := regexp.Compile(`^(?:` + fs.Regex + `)$`)
		if err != nil {
			c.problem("%s: invalid regex %q: %v", where, fs.Regex, err)
			ok = false
		}
		cons.Pattern, cons.Regex = fs.Regex, re
	}
	if (fs.MinValue != nil || fs.MaxValue != nil) && !typ.Numeric() {
		c.problem("%s: min_value and max_value apply to int and decimal fields only", where)
		ok = false
	}
	if fs.MinValue != nil && fs.MaxValue != nil && *fs.MinValue > *fs.MaxValue {
		c.problem("%s: min_value is greater than max_value", where)
		ok = false
	}
	return cons, ok
}

func (c *compiler) compileFieldComputed(where string, fs api.FieldSpec) *Computed {
	where = where + " field " + fs.Name
	if fs.ComputedField == "" {
		c.problem("%s: computed_field is required for computed fields", where)
		return nil
	}
	g, ok := c.globals[fs.ComputedField]
	if !ok {
		c.problem("%s: unknown computed field %q", where, fs.ComputedField)
		return nil
	}
	cons, ok := c.compileConstraints(where, fs, g.typ)
	if !ok {
		return nil
	}
	return &Computed{Name: fs.Name, Expr: g.expr, Type: g.typ, Constraints: &cons}
}

func (c *compiler) compileContext(where string, cf api.ContextField) *Context {
	where = where + " context " + cf.Name
	ctx := &Context{Name: cf.Name, Value: cf.Value, From: cf.From, Column: -1}
	if cf.From == "" {
		return ctx
	}
	if cf.Value != "" {
		c.problem("%s: set value or from, not both", where)
		return nil
	}
	if c.plan.Format == api.FormatFixedWidth {
		c.problem("%s: from is not supported for fixed_width", where)
		return nil
	}
	ctx.Column = c.compileLocator(where, cf.From)
	return ctx
}

// checkRefs makes sure every placeholder names a field, a context column
// or a computed column declared earlier.
func (c *compiler) checkRefs(rec *Record, where string) {
	known := make(map[string]bool)
	for _, f := range rec.Fields {
		known[f.Name] = true
	}
	for _, ctx := range rec.Context {
		known[ctx.Name] = true
	}
	for _, comp := range rec.Computed {
		for _, ref := range comp.Expr.Refs() {
			if !known[ref] {
				c.problem("%s computed %s: unresolved reference {%s}", where, comp.Name, ref)
			}
		}
		known[comp.Name] = true
	}
}

func (c *compiler) compileDiscriminator(rec *Record, spec *api.RecordSpec, where string) {
	if spec.RecordTypeField == "" {
		return
	}
	if c.plan.Format != api.FormatCSV && c.plan.Format != api.FormatFixedWidth {
		c.problem("%s: record_type_field applies to csv and fixed_width only", where)
		return
	}
	for i, f := range rec.Fields {
		if f.Name == spec.RecordTypeField {
			rec.Discriminator = &Discriminator{Index: i, Value: spec.RecordTypeValue}
			return
		}
	}
	c.problem("%s: record_type_field %q is not a field of the record", where, spec.RecordTypeField)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func singleRune(s string) (rune, bool) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return '\t', true
	}
	r, size := utf8.DecodeRuneInString(s)
	return r, size == len(s) && r != utf8.RuneError
}

func isUTF8Label(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}

// IsUTF8 reports whether label names UTF-8 or is empty.
func IsUTF8(label string) bool { return label == "" || isUTF8Label(label) }
