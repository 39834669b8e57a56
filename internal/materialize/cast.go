package materialize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrCast is wrapped by every cast failure.
var ErrCast = errors.New("cast failed")

var (
	numericPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	currencyStrip  = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "", " ", "")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

type datetimeLayout struct {
	layout string
	zoned  bool
}

var datetimeLayouts = []datetimeLayout{
	{time.RFC3339Nano, true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"01/02/2006 15:04:05", false},
	{"01/02/2006 15:04", false},
	{"20060102150405", false},
}

// Cast converts trimmed, non-empty raw text to the Go value of t.
//
// Values: string and json are string, int is int64, decimal is
// pgtype.Numeric, boolean is bool, date is pgtype.Date, datetime is
// pgtype.Timestamptz when the text carries a zone and pgtype.Timestamp
// otherwise.
func Cast(t config.Type, s string) (any, error) {
	switch t {
	case config.TypeString, config.TypeJSON:
		return s, nil
	case config.TypeInt:
		return castInt(s)
	case config.TypeDecimal:
		return castDecimal(s)
	case config.TypeBool:
		return castBool(s)
	case config.TypeDate:
		return castDate(s)
	case config.TypeDatetime:
		return castDatetime(s)
	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrCast, t)
	}
}

// cleanNumeric strips currency symbols and thousands separators and turns
// accounting parentheses into a minus sign.
func cleanNumeric(s string) (string, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = currencyStrip.Replace(s)
	if neg {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return "", false
		}
		s = "-" + s
	}
	if !numericPattern.MatchString(s) {
		return "", false
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}
	return s, true
}

func castInt(s string) (int64, error) {
	clean, ok := cleanNumeric(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrCast, s)
	}
	whole, frac, hasFrac := strings.Cut(clean, ".")
	if hasFrac && strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("%w: %q has a fractional part", ErrCast, s)
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is out of range", ErrCast, s)
	}
	return n, nil
}

func castDecimal(s string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	clean, ok := cleanNumeric(s)
	if !ok {
		return n, fmt.Errorf("%w: %q is not a decimal", ErrCast, s)
	}
	if err := n.Scan(clean); err != nil {
		return n, fmt.Errorf("%w: %q: %v", ErrCast, s, err)
	}
	return n, nil
}

func castBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrCast, s)
}

func castDate(s string) (pgtype.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}, nil
		}
	}
	// Date part of a timestamp.
	for _, dl := range datetimeLayouts {
		if t, err := time.Parse(dl.layout, s); err == nil {
			y, m, d := t.Date()
			return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}, nil
		}
	}
	return pgtype.Date{}, fmt.Errorf("%w: %q is not a date", ErrCast, s)
}

func castDatetime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, dl := range datetimeLayouts {
		t, err := time.Parse(dl.layout, s)
		if err != nil {
			continue
		}
		if dl.zoned {
			return pgtype.Timestamptz{Time: t, Valid: true}, nil
		}
		return pgtype.Timestamp{Time: t, Valid: true}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamp{Time: t, Valid: true}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a datetime", ErrCast, s)
}

// Float returns the numeric value of an int or decimal cast result.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	}
	return 0, false
}

// Format renders a cast value as output text. Nil renders empty.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case pgtype.Numeric:
		if !t.Valid {
			return ""
		}
		// MarshalJSON renders plain positional notation with the scale kept.
		text, err := t.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(text)
	case pgtype.Date:
		if !t.Valid {
			return ""
		}
		return t.Time.Format("2006-01-02")
	case pgtype.Timestamp:
		if !t.Valid {
			return ""
		}
		return t.Time.Format("2006-01-02T15:04:05.999999999")
	case pgtype.Timestamptz:
		if !t.Valid {
			return ""
		}
		return t.Time.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
