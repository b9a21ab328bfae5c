package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a tagged variant over the logical type set. Exactly one of the
// typed fields is meaningful, selected by Type; Null values carry the type
// of the column they belong to.
type Value struct {
	Type Type
	Null bool

	Str   string
	Int   int64
	Float float64
	Bool  bool
	Days  int32 // date: days since the Unix epoch
	Nanos int64 // datetime, timestamp: UTC nanoseconds since the Unix epoch
}

// NullValue returns a typed null.
func NullValue(t Type) Value {
	return Value{Type: t, Null: true}
}

// CoerceOptions controls edge-case behaviour of Coerce.
type CoerceOptions struct {
	// EmptyStringAsNull maps an empty string field to null for string
	// columns. Other types always map empty fields to null.
	EmptyStringAsNull bool
}

// Dates outside this window are rejected rather than silently accepted;
// values that far out are nearly always parse artefacts.
const (
	minDateYear = 1900
	maxDateYear = 2100
)

// Coerce converts one raw CSV field into a typed value. The field is
// trimmed first; an empty field is a typed null for every type except
// string, which keeps the empty string unless EmptyStringAsNull is set. A non-empty
// field that does not parse returns an error, and the caller's bad-row
// policy decides whether that nulls the cell or fails the row.
func Coerce(t Type, field string, opts CoerceOptions) (Value, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		if t == TypeString && !opts.EmptyStringAsNull {
			return Value{Type: t, Str: ""}, nil
		}
		return NullValue(t), nil
	}

	switch t {
	case TypeString:
		return Value{Type: t, Str: field}, nil

	case TypeInteger:
		// ParseInt accepts an optional sign and decimal digits only, which
		// rejects decimal points and exponents as required.
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("not an integer: %q", field)
		}
		return Value{Type: t, Int: n}, nil

	case TypeFloat:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Value{}, fmt.Errorf("not a float: %q", field)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NullValue(t), nil
		}
		return Value{Type: t, Float: f}, nil

	case TypeBoolean:
		b, ok := parseBoolean(field)
		if !ok {
			return Value{}, fmt.Errorf("not a boolean: %q", field)
		}
		return Value{Type: t, Bool: b}, nil

	case TypeDate:
		days, err := parseDateDays(field)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Days: days}, nil

	case TypeDateTime:
		nanos, err := parseDateTimeNanos(field)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Nanos: nanos}, nil

	case TypeTimestamp:
		nanos, err := parseTimestampNanos(field)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Nanos: nanos}, nil

	default:
		return Value{}, fmt.Errorf("unknown logical type %q", t)
	}
}

func parseBoolean(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y", "t":
		return true, true
	case "false", "0", "no", "n", "f":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02", // ISO
	"01/02/2006", // US
	"01-02-2006", // US with dashes
}

func parseDateDays(s string) (int32, error) {
	for _, layout := range dateLayouts {
		ts, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if y := ts.Year(); y < minDateYear || y > maxDateYear {
			return 0, fmt.Errorf("date out of range: %q", s)
		}
		return int32(ts.Unix() / 86400), nil
	}
	return 0, fmt.Errorf("not a date: %q", s)
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

func parseDateTimeNanos(s string) (int64, error) {
	for _, layout := range dateTimeLayouts {
		ts, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		return ts.UTC().UnixNano(), nil
	}
	return 0, fmt.Errorf("not a datetime: %q", s)
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
}

func parseTimestampNanos(s string) (int64, error) {
	// Integer fields are epoch milliseconds.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms * int64(time.Millisecond), nil
	}
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		return ts.UTC().UnixNano(), nil
	}
	return 0, fmt.Errorf("not a timestamp: %q", s)
}

// EstimatedSize returns the approximate payload bytes a value contributes to
// a record batch, used for the batch byte budget.
func (v Value) EstimatedSize() int {
	if v.Null {
		return 1
	}
	switch v.Type {
	case TypeString:
		return len(v.Str) + 16
	case TypeBoolean:
		return 1
	case TypeDate:
		return 4
	default:
		return 8
	}
}
