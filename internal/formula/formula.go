// Package formula parses computed-field formulas once and evaluates them per row.
//
// A formula is literal text with {name} placeholders and calls to a fixed set
// of functions, e.g. "hash_md5({OrderID}|{Customer})". Arguments are formulas
// themselves, so calls nest.
package formula

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrSyntax      = errors.New("formula syntax error")
	ErrUnknownFunc = errors.New("unknown formula function")
)

// Func is a built-in formula function.
type Func func(string) string

var builtins = map[string]Func{
	"hash_md5": func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	},
	"hash_sha1": func(s string) string {
		sum := sha1.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	},
	"hash_sha256": func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// Functions returns the names of the built-in functions, sorted.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type partKind int

const (
	partLiteral partKind = iota
	partRef
	partCall
)

type part struct {
	kind partKind
	text string // literal text, placeholder name or function name
	fn   Func
	arg  *Expr
}

// Expr is an immutable parsed formula.
type Expr struct {
	src   string
	parts []part
}

// Parse compiles src. Unknown functions and malformed placeholders are errors.
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	e, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	e.src = src
	return e, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse(depth int) (*Expr, error) {
	e := &Expr{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			e.parts = append(e.parts, part{kind: partLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '{':
			end := strings.IndexByte(p.src[p.pos+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d in %q", ErrSyntax, p.pos, p.src)
			}
			name := strings.TrimSpace(p.src[p.pos+1 : p.pos+1+end])
			if name == "" {
				return nil, fmt.Errorf("%w: empty placeholder at offset %d in %q", ErrSyntax, p.pos, p.src)
			}
			flush()
			e.parts = append(e.parts, part{kind: partRef, text: name})
			p.pos += end + 2
		case c == ')' && depth > 0:
			flush()
			return e, nil
		case isIdentStart(c):
			start := p.pos
			for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
				p.pos++
			}
			ident := p.src[start:p.pos]
			if p.pos >= len(p.src) || p.src[p.pos] != '(' {
				lit.WriteString(ident)
				continue
			}
			fn, ok := builtins[ident]
			if !ok {
				return nil, fmt.Errorf("%w %q in %q", ErrUnknownFunc, ident, p.src)
			}
			p.pos++ // (
			arg, err := p.parse(depth + 1)
			if err != nil {
				return nil, err
			}
			if p.pos >= len(p.src) || p.src[p.pos] != ')' {
				return nil, fmt.Errorf("%w: unclosed call to %s in %q", ErrSyntax, ident, p.src)
			}
			p.pos++ // )
			flush()
			e.parts = append(e.parts, part{kind: partCall, text: ident, fn: fn, arg: arg})
		default:
			lit.WriteByte(c)
			p.pos++
		}
	}
	flush()
	return e, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Refs returns every placeholder name in order of first appearance.
func (e *Expr) Refs() []string {
	seen := make(map[string]bool)
	var out []string
	e.walkRefs(func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	})
	return out
}

func (e *Expr) walkRefs(fn func(string)) {
	for _, p := range e.parts {
		switch p.kind {
		case partRef:
			fn(p.text)
		case partCall:
			p.arg.walkRefs(fn)
		}
	}
}

// Eval renders the formula. A placeholder whose lookup fails renders empty.
func (e *Expr) Eval(lookup func(name string) (string, bool)) string {
	var b strings.Builder
	for _, p := range e.parts {
		switch p.kind {
		case partLiteral:
			b.WriteString(p.text)
		case partRef:
			if v, ok := lookup(p.text); ok {
				b.WriteString(v)
			}
		case partCall:
			b.WriteString(p.fn(p.arg.Eval(lookup)))
		}
	}
	return b.String()
}
