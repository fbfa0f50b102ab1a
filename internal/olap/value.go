package olap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindCategory
	KindDate
)

const dateLayout = "2006-01-02"

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindCategory:
		return "category"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	t    time.Time
}

func Null() Value { return Value{} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Category(s string) Value { return Value{kind: KindCategory, str: s} }

// Date truncates t to a UTC calendar day.
func Date(t time.Time) Value {
	if t.IsZero() {
		return Null()
	}
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// String is the group key of the value.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindCategory:
		return v.str
	case KindDate:
		return v.t.Format(dateLayout)
	default:
		return ""
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindCategory:
		return v.str == o.str
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// less orders values of the same kind; nulls sort first.
func (v Value) less(o Value) bool {
	if v.kind != o.kind {
		return v.kind < o.kind
	}
	switch v.kind {
	case KindNumber:
		return v.num < o.num
	case KindCategory:
		return v.str < o.str
	case KindDate:
		return v.t.Before(o.t)
	default:
		return false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindCategory:
		return json.Marshal(v.str)
	case KindDate:
		return json.Marshal(v.t.Format(dateLayout))
	default:
		return []byte("null"), nil
	}
}

// ParseValue converts a textual filter value to the kind of the column it targets.
func ParseValue(kind Kind, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", s, err)
		}
		return Number(f), nil
	case KindCategory:
		return Category(s), nil
	case KindDate:
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return Null(), fmt.Errorf("invalid date %q: %w", s, err)
		}
		return Date(t), nil
	default:
		if s == "" {
			return Null(), nil
		}
		return Null(), fmt.Errorf("cannot parse %q as null", s)
	}
}
