// Package variant serializes captured sub-structures into canonical JSON text.
//
// XML elements follow the usual dict mapping: attributes become "@name"
// keys, text beside attributes or children becomes "#text", repeated child
// elements become arrays. Namespace declarations are dropped.
package variant

import (
	"log/slog"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/dustin/go-humanize"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// WarnSize is the serialized size above which a warning is logged.
const WarnSize = 50_000

var writeOptions = func() ojg.Options {
	o := ojg.DefaultOptions
	o.Sort = true
	o.HTMLUnsafe = true
	return o
}()

// Converter turns XML nodes or decoded JSON values into JSON text.
type Converter struct {
	Logger   *slog.Logger
	WarnSize int
}

// New returns a converter logging size warnings to logger.
func New(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{Logger: logger, WarnSize: WarnSize}
}

// XML serializes matched nodes. One node yields an object, several an
// array of objects, none an empty string (null).
func (c *Converter) XML(field string, nodes []*xmlquery.Node) string {
	switch len(nodes) {
	case 0:
		return ""
	case 1:
		return c.write(field, elementObject(nodes[0]))
	}
	list := make([]any, len(nodes))
	for i, n := range nodes {
		list[i] = elementObject(n)
	}
	return c.write(field, list)
}

// Value serializes a decoded JSON value. Nil yields an empty string (null).
// json.Number values are written with their original digits.
func (c *Converter) Value(field string, v any) string {
	if v == nil {
		return ""
	}
	return c.write(field, v)
}

func (c *Converter) write(field string, v any) string {
	out := oj.JSON(v, &writeOptions)
	if c.WarnSize > 0 && len(out) > c.WarnSize {
		c.Logger.Warn("large variant value",
			"field", field,
			"size", humanize.Bytes(uint64(len(out))),
			"threshold", humanize.Bytes(uint64(c.WarnSize)))
	}
	return out
}

func elementObject(n *xmlquery.Node) map[string]any {
	if n.Type == xmlquery.AttributeNode {
		return map[string]any{"@" + n.Data: n.InnerText()}
	}
	if n.Type != xmlquery.ElementNode {
		return map[string]any{"#text": n.InnerText()}
	}
	return map[string]any{qualifiedName(n): elementContent(n)}
}

func elementContent(n *xmlquery.Node) any {
	content := make(map[string]any)
	for _, a := range n.Attr {
		if isNamespaceDecl(a) {
			continue
		}
		content["@"+attrName(a)] = a.Value
	}

	var text strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode:
			name := qualifiedName(child)
			value := elementContent(child)
			switch prev := content[name].(type) {
			case nil:
				if _, exists := content[name]; exists {
					content[name] = []any{nil, value}
				} else {
					content[name] = value
				}
			case []any:
				content[name] = append(prev, value)
			default:
				content[name] = []any{prev, value}
			}
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(child.Data)
		}
	}

	s := strings.TrimSpace(text.String())
	if len(content) == 0 {
		if s == "" {
			return nil
		}
		return s
	}
	if s != "" {
		content["#text"] = s
	}
	return content
}

func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func isNamespaceDecl(a xmlquery.Attr) bool {
	return a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || strings.HasPrefix(a.Name.Local, "xmlns:")
}

func attrName(a xmlquery.Attr) string {
	if a.Name.Space != "" && !strings.ContainsAny(a.Name.Space, ":/") {
		return a.Name.Space + ":" + a.Name.Local
	}
	return a.Name.Local
}
