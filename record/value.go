package record

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeFormat is the canonical timestamp layout used in table cells and the
// timestamp column. Minute precision is enough for an hourly table.
const TimeFormat = "2006-01-02 15:04"

// Kind identifies the column type a value is coerced to before persisting.
type Kind uint8

const (
	KindFloat Kind = iota // rounded to 2 decimals on output
	KindInt
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar cell. The zero Value is null. A null cell is a
// first-class state: "unknown" and zero are never conflated.
type Value struct {
	kind  Kind
	valid bool
	f     float64
	i     int64
	s     string
	t     time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// Float builds a float value. NaN and Inf collapse to null.
func Float(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{kind: KindFloat, valid: true, f: v}
}

// Int builds an integer value.
func Int(v int64) Value { return Value{kind: KindInt, valid: true, i: v} }

// String builds a string value. The empty string is null.
func String(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: KindString, valid: true, s: s}
}

// Time builds a timestamp value.
func Time(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{kind: KindTime, valid: true, t: t}
}

// IsNull reports whether the value is the null cell.
func (v Value) IsNull() bool { return !v.valid }

// Float returns the numeric payload, converting from int when needed.
func (v Value) Float() (float64, bool) {
	if !v.valid {
		return 0, false
	}
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Int returns the integer payload, rounding from float when needed.
func (v Value) Int() (int64, bool) {
	if !v.valid {
		return 0, false
	}
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(math.Round(v.f)), true
	default:
		return 0, false
	}
}

// Str returns the string payload.
func (v Value) Str() (string, bool) {
	if !v.valid || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Time returns the timestamp payload.
func (v Value) Time() (time.Time, bool) {
	if !v.valid || v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Round2 rounds to 2 decimal places, the fixed precision of every float
// column in the table.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Coerce converts the value to the given column kind. Null stays null.
// A value that cannot represent the target kind is an error; the caller
// decides whether to drop it or fail.
func (v Value) Coerce(k Kind) (Value, error) {
	if !v.valid {
		return Value{}, nil
	}
	switch k {
	case KindFloat:
		f, ok := v.Float()
		if !ok {
			return Value{}, fmt.Errorf("cannot coerce %s value to float", v.kind)
		}
		return Float(Round2(f)), nil
	case KindInt:
		i, ok := v.Int()
		if !ok {
			return Value{}, fmt.Errorf("cannot coerce %s value to int", v.kind)
		}
		return Int(i), nil
	case KindString:
		s, ok := v.Str()
		if !ok {
			return Value{}, fmt.Errorf("cannot coerce %s value to string", v.kind)
		}
		return String(s), nil
	case KindTime:
		t, ok := v.Time()
		if !ok {
			return Value{}, fmt.Errorf("cannot coerce %s value to time", v.kind)
		}
		return Time(t), nil
	default:
		return Value{}, fmt.Errorf("unknown column kind %d", k)
	}
}

// Encode renders the value as a table cell. Null encodes as the empty cell.
func (v Value) Encode() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(TimeFormat)
	default:
		return ""
	}
}

// Decode parses a table cell into a value of the given kind. The empty cell
// is null for every kind.
func Decode(k Kind, cell string) (Value, error) {
	if cell == "" {
		return Value{}, nil
	}
	switch k {
	case KindFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad float cell %q: %w", cell, err)
		}
		return Float(f), nil
	case KindInt:
		i, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad int cell %q: %w", cell, err)
		}
		return Int(i), nil
	case KindString:
		return String(cell), nil
	case KindTime:
		t, err := time.ParseInLocation(TimeFormat, cell, time.Local)
		if err != nil {
			return Value{}, fmt.Errorf("bad time cell %q: %w", cell, err)
		}
		return Time(t), nil
	default:
		return Value{}, fmt.Errorf("unknown column kind %d", k)
	}
}
