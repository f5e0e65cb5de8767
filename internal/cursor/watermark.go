package cursor

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrIncomparable is returned when two watermarks hold values of
// unrelated kinds (for example a number and a timestamp).
var ErrIncomparable = errors.New("watermarks are not comparable")

// Watermark is an opaque, totally ordered last-updated value.
//
// Values are normalized on construction: integers become int64, floats
// float64, []byte string, and times UTC. The zero Watermark holds nil.
type Watermark struct {
	v any
}

// timeLayouts are tried in order when a string must be read as a time.
// The second layout matches what go-sqlite3 writes for time.Time parameters.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// New wraps a driver value as a watermark.
func New(v any) Watermark {
	switch x := v.(type) {
	case nil:
		return Watermark{}
	case Watermark:
		return x
	case time.Time:
		return Watermark{v: x.UTC()}
	case *time.Time:
		if x == nil {
			return Watermark{}
		}
		return Watermark{v: x.UTC()}
	case []byte:
		return Watermark{v: string(x)}
	case int:
		return Watermark{v: int64(x)}
	case int8:
		return Watermark{v: int64(x)}
	case int16:
		return Watermark{v: int64(x)}
	case int32:
		return Watermark{v: int64(x)}
	case uint8:
		return Watermark{v: int64(x)}
	case uint16:
		return Watermark{v: int64(x)}
	case uint32:
		return Watermark{v: int64(x)}
	case uint64:
		if x <= math.MaxInt64 {
			return Watermark{v: int64(x)}
		}
		return Watermark{v: float64(x)}
	case float32:
		return Watermark{v: float64(x)}
	default:
		return Watermark{v: v}
	}
}

// ParseLiteral reads a configuration literal.
// Timestamps in any accepted layout become times, integers become int64,
// anything else stays a string.
func ParseLiteral(s string) Watermark {
	s = strings.TrimSpace(s)
	if t, ok := parseTime(s); ok {
		return Watermark{v: t}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Watermark{v: i}
	}
	return Watermark{v: s}
}

// Value returns the normalized value, suitable as a statement parameter.
func (w Watermark) Value() any { return w.v }

// IsZero reports whether the watermark holds no value.
func (w Watermark) IsZero() bool { return w.v == nil }

// String renders the watermark for logs and CLI output.
func (w Watermark) String() string {
	switch x := w.v.(type) {
	case nil:
		return "<none>"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Compare orders w against o: -1 if w < o, 0 if equal, +1 if w > o.
//
// Times compare chronologically, numbers numerically and strings
// lexically. A string compared with a time is parsed as a time first.
// The zero watermark sorts before every value.
func (w Watermark) Compare(o Watermark) (int, error) {
	switch {
	case w.v == nil && o.v == nil:
		return 0, nil
	case w.v == nil:
		return -1, nil
	case o.v == nil:
		return 1, nil
	}

	switch a := w.v.(type) {
	case time.Time:
		b, ok := asTime(o.v)
		if !ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, w.v, o.v)
		}
		return a.Compare(b), nil
	case int64, float64:
		if bt, ok := o.v.(time.Time); ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, w.v, bt)
		}
		af, _ := asFloat(a)
		bf, ok := asFloat(o.v)
		if !ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, w.v, o.v)
		}
		if ai, aok := a.(int64); aok {
			if bi, bok := o.v.(int64); bok {
				return cmp.Compare(ai, bi), nil
			}
		}
		return cmp.Compare(af, bf), nil
	case string:
		switch b := o.v.(type) {
		case string:
			return strings.Compare(a, b), nil
		case time.Time:
			at, ok := parseTime(a)
			if !ok {
				return 0, fmt.Errorf("%w: %q is not a timestamp", ErrIncomparable, a)
			}
			return at.Compare(b), nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, w.v, o.v)
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTime(x)
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

