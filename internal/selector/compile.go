package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/ohler55/ojg/jp"
)

// XPathCompiler returns a compile function resolving prefixes through ns.
func XPathCompiler(ns map[string]string) func(string) (*xpath.Expr, error) {
	return func(expr string) (*xpath.Expr, error) {
		var (
			x   *xpath.Expr
			err error
		)
		if len(ns) > 0 {
			x, err = xpath.CompileWithNS(expr, ns)
		} else {
			x, err = xpath.Compile(expr)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid xpath '%s': %w", expr, err)
		}
		return x, nil
	}
}

// CompileJSONPath parses a JSON path, accepting plain dot notation.
func CompileJSONPath(expr string) (jp.Expr, error) {
	x, err := jp.ParseString(NormalizeJSONPath(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", expr, err)
	}
	return x, nil
}

// NormalizeJSONPath turns dot notation such as "orders.items" into
// "$.orders.items". Paths already rooted at $ or @ are returned as is.
func NormalizeJSONPath(expr string) string {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return "$"
	case strings.HasPrefix(expr, "$"), strings.HasPrefix(expr, "@"):
		return expr
	case strings.HasPrefix(expr, "["):
		return "$" + expr
	default:
		return "$." + expr
	}
}

// StreamSelector strips configured namespace prefixes from an XPath used
// to anchor a streaming parse, which matches elements by local name.
func StreamSelector(expr string, ns map[string]string) string {
	for prefix := range ns {
		if prefix == "" {
			continue
		}
		re := regexp.MustCompile(`(^|[/\[(@\s|,=:])` + regexp.QuoteMeta(prefix) + `:`)
		expr = re.ReplaceAllString(expr, "${1}")
	}
	return expr
}

// Set bundles the caches a run needs.
type Set struct {
	XPath *Cache[*xpath.Expr]
	JSON  *Cache[jp.Expr]
}

// NewSet creates both caches with the given capacity.
func NewSet(capacity int, ns map[string]string) (*Set, error) {
	xc, err := New(capacity, XPathCompiler(ns))
	if err != nil {
		return nil, err
	}
	jc, err := New(capacity, CompileJSONPath)
	if err != nil {
		return nil, err
	}
	return &Set{XPath: xc, JSON: jc}, nil
}

// Reset clears both caches. Call it before reading documents with a
// different schema vocabulary.
func (s *Set) Reset() {
	s.XPath.Reset()
	s.JSON.Reset()
}

// Stats sums the counters of both caches.
func (s *Set) Stats() Stats {
	return s.XPath.Stats().Add(s.JSON.Stats())
}
