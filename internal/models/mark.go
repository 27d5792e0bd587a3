package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MarkState distinguishes an unentered mark from an absence and a real score.
type MarkState int

const (
	MarkUnset MarkState = iota
	MarkAbsent
	MarkValue
)

// Sentinels written to the store for absent candidates.
const (
	AbsentMark  = "Ab"
	AbsentTotal = "Absent"
)

// Mark is a tri-state score: Unset, Absent, or Value(n).
type Mark struct {
	State  MarkState
	Points float64
}

// Unset returns an empty mark.
func Unset() Mark { return Mark{} }

// Absent returns the absence sentinel.
func Absent() Mark { return Mark{State: MarkAbsent} }

// Score returns a numeric mark. Zero is treated as not entered.
func Score(v float64) Mark {
	if v == 0 {
		return Mark{}
	}
	return Mark{State: MarkValue, Points: v}
}

// IsUnset reports whether no mark has been entered.
func (m Mark) IsUnset() bool { return m.State == MarkUnset }

// IsAbsent reports whether the candidate was marked absent.
func (m Mark) IsAbsent() bool { return m.State == MarkAbsent }

// IsValue reports whether the mark carries a numeric score.
func (m Mark) IsValue() bool { return m.State == MarkValue }

// ParseMark reads raw cell or form input. "ab", "AB", "Ab" and "absent" are the absence
// sentinel; blank and 0 are unset.
func ParseMark(raw string) (Mark, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "-" {
		return Unset(), nil
	}
	lower := strings.ToLower(trimmed)
	if lower == "ab" || lower == "absent" {
		return Absent(), nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Unset(), fmt.Errorf("invalid mark %q", raw)
	}
	return Score(v), nil
}

// String renders the mark the way the store keeps it.
func (m Mark) String() string {
	switch m.State {
	case MarkAbsent:
		return AbsentMark
	case MarkValue:
		return strconv.FormatFloat(m.Points, 'f', -1, 64)
	default:
		return ""
	}
}

// TotalString renders a total mark, which uses the long absence sentinel.
func (m Mark) TotalString() string {
	if m.State == MarkAbsent {
		return AbsentTotal
	}
	return m.String()
}

// Value implements driver.Valuer.
func (m Mark) Value() (driver.Value, error) {
	if m.State == MarkUnset {
		return nil, nil
	}
	return m.String(), nil
}

// Scan implements sql.Scanner accepting text, numeric and NULL columns.
func (m *Mark) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Unset()
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case int64:
		*m = Score(float64(v))
		return nil
	case float64:
		*m = Score(v)
		return nil
	default:
		return fmt.Errorf("unsupported type %T for Mark", src)
	}
}

func (m *Mark) scanString(raw string) error {
	parsed, err := ParseMark(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON renders unset as null, absent as "Ab" and values as numbers.
func (m Mark) MarshalJSON() ([]byte, error) {
	switch m.State {
	case MarkAbsent:
		return json.Marshal(AbsentMark)
	case MarkValue:
		return json.Marshal(m.Points)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, numbers and strings.
func (m *Mark) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Unset()
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*m = Score(num)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("mark must be a number or string: %w", err)
	}
	return m.scanString(raw)
}

// TotalMark is a derived total; it stores and renders absence as "Absent".
type TotalMark struct {
	Mark
}

// Total wraps a mark as a total.
func Total(m Mark) TotalMark { return TotalMark{Mark: m} }

// Value implements driver.Valuer.
func (t TotalMark) Value() (driver.Value, error) {
	if t.State == MarkUnset {
		return nil, nil
	}
	return t.TotalString(), nil
}

// MarshalJSON renders unset as null, absent as "Absent" and values as numbers.
func (t TotalMark) MarshalJSON() ([]byte, error) {
	if t.State == MarkAbsent {
		return json.Marshal(AbsentTotal)
	}
	return t.Mark.MarshalJSON()
}
