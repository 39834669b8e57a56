// Package materialize turns raw records into typed rows or rejected rows.
//
// Every raw record yields exactly one Outcome. Row problems never surface
// as errors: they become a RejectedRow carrying the first failing rule.
package materialize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/reader"
)

// TypedRow is an accepted row. Values follow Record.Columns; nil is null.
type TypedRow struct {
	Record *config.Record
	Values []any
}

// Texts renders the row for output.
func (r *TypedRow) Texts() []string {
	out := make([]string, len(r.Values))
	for i, v := range r.Values {
		out[i] = Format(v)
	}
	return out
}

// RejectedRow keeps the raw texts of a rejected record plus the reason.
type RejectedRow struct {
	Record *config.Record
	Raw    []string
	Reason string
}

// Outcome holds exactly one of Accepted or Rejected.
type Outcome struct {
	Accepted *TypedRow
	Rejected *RejectedRow
}

// Materializer casts and validates raw records under one plan's policy.
type Materializer struct {
	Trim        bool
	EmptyAsNull bool
	Strict      bool
}

// New returns a materializer configured from plan.
func New(plan *config.Plan) *Materializer {
	return &Materializer{Trim: plan.Trim, EmptyAsNull: plan.EmptyAsNull, Strict: plan.Strict}
}

type row struct {
	rec    *config.Record
	values []any
	raw    []string
	index  map[string]int
}

func (r *row) lookup(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok || r.values[i] == nil {
		return "", false
	}
	return Format(r.values[i]), true
}

func (r *row) reject(reason string) Outcome {
	return Outcome{Rejected: &RejectedRow{Record: r.rec, Raw: r.raw, Reason: reason}}
}

// Materialize produces the outcome of one raw record.
func (m *Materializer) Materialize(raw reader.RawRecord) Outcome {
	rec := raw.Spec
	r := &row{
		rec:    rec,
		values: make([]any, rec.Width()),
		raw:    make([]string, rec.Width()),
		index:  make(map[string]int, rec.Width()),
	}
	for i, name := range rec.Columns {
		r.index[name] = i
	}

	// Raw texts of base and context columns are captured up front so a
	// rejection at any point keeps them all.
	for i := range rec.Fields {
		if i < len(raw.Fields) {
			r.raw[i] = raw.Fields[i].Text
		}
	}
	off := len(rec.Fields)
	ctxPresent := make([]bool, len(rec.Context))
	for j, ctx := range rec.Context {
		text, present := ctx.Value, true
		if !ctx.Static() {
			text, present = "", false
			if j < len(raw.Context) {
				text, present = raw.Context[j].Text, raw.Context[j].Present
			}
		}
		r.raw[off+j] = text
		ctxPresent[j] = present
	}

	// Base fields: cast, then validate.
	for i, f := range rec.Fields {
		var rv reader.RawValue
		if i < len(raw.Fields) {
			rv = raw.Fields[i]
		}
		text, null := m.prepare(rv.Text, rv.Present, f.Default)
		if null {
			continue
		}
		v, err := Cast(f.Type, text)
		if err != nil {
			if m.Strict {
				return r.reject(fmt.Sprintf("Field '%s' cast failed: %v", f.Name, err))
			}
			continue
		}
		r.values[i] = v
	}
	for i, f := range rec.Fields {
		if reason := validate(f.Name, f.Type, &f.Constraints, r.values[i]); reason != "" {
			return r.reject(reason)
		}
	}

	for j := range rec.Context {
		if v, null := m.prepare(r.raw[off+j], ctxPresent[j], nil); !null {
			r.values[off+j] = v
		}
	}

	off += len(rec.Context)
	for k, comp := range rec.Computed {
		text := comp.Expr.Eval(r.lookup)
		r.raw[off+k] = text
		v, null := m.prepare(text, true, nil)
		if null {
			r.values[off+k] = nil
		} else {
			typed, err := Cast(comp.Type, v)
			if err != nil {
				if m.Strict {
					return r.reject(fmt.Sprintf("Field '%s' cast failed: %v", comp.Name, err))
				}
				typed = nil
			}
			r.values[off+k] = typed
		}
		if comp.Constraints != nil {
			if reason := validate(comp.Name, comp.Type, comp.Constraints, r.values[off+k]); reason != "" {
				return r.reject(reason)
			}
		}
	}

	return Outcome{Accepted: &TypedRow{Record: rec, Values: r.values}}
}

// prepare applies default substitution, trimming and empty-as-null.
func (m *Materializer) prepare(text string, present bool, def *string) (string, bool) {
	if m.Trim {
		text = strings.TrimSpace(text)
	}
	if def != nil && (!present || text == "") {
		text, present = *def, true
	}
	if !present {
		return "", true
	}
	if text == "" && m.EmptyAsNull {
		return "", true
	}
	return text, false
}

// validate applies nullable, regex, range in that order and returns the
// first failure, or "".
func validate(name string, t config.Type, c *config.Constraints, v any) string {
	if v == nil {
		if !c.Nullable {
			return fmt.Sprintf("Field '%s' cannot be null", name)
		}
		return ""
	}
	if c.Regex != nil && t.Textual() {
		if s, ok := v.(string); ok && !c.Regex.MatchString(s) {
			return fmt.Sprintf("Field '%s' failed regex validation: %s", name, c.Pattern)
		}
	}
	if t.Numeric() && (c.Min != nil || c.Max != nil) {
		f, ok := Float(v)
		if !ok {
			return ""
		}
		if c.Min != nil && f < *c.Min {
			return fmt.Sprintf("Field '%s' value %s below minimum %s", name, Format(v), formatBound(*c.Min))
		}
		if c.Max != nil && f > *c.Max {
			return fmt.Sprintf("Field '%s' value %s above maximum %s", name, Format(v), formatBound(*c.Max))
		}
	}
	return ""
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
