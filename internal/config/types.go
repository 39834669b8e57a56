package config

import (
	"fmt"
	"strings"
)

// Type is a declared column type after alias resolution.
type Type int

const (
	TypeString Type = iota
	TypeInt
	TypeDecimal
	TypeBool
	TypeDate
	TypeDatetime
	TypeJSON
	// TypeComputed marks a field entry whose value comes from a formula.
	TypeComputed
)

var typeNames = map[string]Type{
	"":             TypeString,
	"string":       TypeString,
	"str":          TypeString,
	"text":         TypeString,
	"int":          TypeInt,
	"integer":      TypeInt,
	"decimal":      TypeDecimal,
	"number":       TypeDecimal,
	"float":        TypeDecimal,
	"numeric":      TypeDecimal,
	"boolean":      TypeBool,
	"bool":         TypeBool,
	"date":         TypeDate,
	"datetime":     TypeDatetime,
	"timestamp":    TypeDatetime,
	"json":         TypeJSON,
	"json-variant": TypeJSON,
	"variant":      TypeJSON,
	"computed":     TypeComputed,
}

// ParseType resolves a type name and its aliases.
func ParseType(s string) (Type, error) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeDatetime:
		return "datetime"
	case TypeJSON:
		return "json"
	case TypeComputed:
		return "computed"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Numeric reports whether range constraints apply to t.
func (t Type) Numeric() bool { return t == TypeInt || t == TypeDecimal }

// Textual reports whether regex constraints apply to t.
func (t Type) Textual() bool { return t == TypeString }
