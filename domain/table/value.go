package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value represents a typed cell value with deterministic coercion
type Value struct {
	Type         ValueType  `json:"type"`
	StringVal    *string    `json:"string_val,omitempty"`
	NumericVal   *float64   `json:"numeric_val,omitempty"`
	BooleanVal   *bool      `json:"boolean_val,omitempty"`
	TimestampVal *time.Time `json:"timestamp_val,omitempty"`
	IsMissing    bool       `json:"is_missing"`
}

// ValueType defines the storage type for cell values and column schemas
type ValueType string

const (
	TypeString    ValueType = "string"
	TypeNumber    ValueType = "number"
	TypeBoolean   ValueType = "boolean"
	TypeTimestamp ValueType = "timestamp"
	TypeMissing   ValueType = "missing"
)

// IsValidType reports whether s names a retype-able column type
func IsValidType(s ValueType) bool {
	switch s {
	case TypeString, TypeNumber, TypeBoolean, TypeTimestamp:
		return true
	}
	return false
}

// NewStringValue creates a string value
func NewStringValue(s string) Value {
	if s == "" {
		return NewMissingValue()
	}
	return Value{Type: TypeString, StringVal: &s}
}

// NewNumberValue creates a numeric value
func NewNumberValue(n float64) Value {
	return Value{Type: TypeNumber, NumericVal: &n}
}

// NewBooleanValue creates a boolean value
func NewBooleanValue(b bool) Value {
	return Value{Type: TypeBoolean, BooleanVal: &b}
}

// NewTimestampValue creates a timestamp value
func NewTimestampValue(t time.Time) Value {
	return Value{Type: TypeTimestamp, TimestampVal: &t}
}

// NewMissingValue creates the missing sentinel
func NewMissingValue() Value {
	return Value{Type: TypeMissing, IsMissing: true}
}

// IsNumber returns true if the value holds a valid number
func (v Value) IsNumber() bool {
	return v.Type == TypeNumber && v.NumericVal != nil
}

// IsString returns true if the value holds a valid string
func (v Value) IsString() bool {
	return v.Type == TypeString && v.StringVal != nil
}

// IsBoolean returns true if the value holds a valid boolean
func (v Value) IsBoolean() bool {
	return v.Type == TypeBoolean && v.BooleanVal != nil
}

// IsTimestamp returns true if the value holds a valid timestamp
func (v Value) IsTimestamp() bool {
	return v.Type == TypeTimestamp && v.TimestampVal != nil
}

// AsFloat64 returns the numeric value, or 0 if not numeric
func (v Value) AsFloat64() float64 {
	if v.NumericVal != nil {
		return *v.NumericVal
	}
	return 0.0
}

// AsString returns the string value, or empty string if not a string
func (v Value) AsString() string {
	if v.StringVal != nil {
		return *v.StringVal
	}
	return ""
}

// AsBoolean returns the boolean value, or false if not a boolean
func (v Value) AsBoolean() bool {
	if v.BooleanVal != nil {
		return *v.BooleanVal
	}
	return false
}

// AsTime returns the timestamp value, or the zero time if not a timestamp
func (v Value) AsTime() time.Time {
	if v.TimestampVal != nil {
		return *v.TimestampVal
	}
	return time.Time{}
}

// Render returns the canonical string form used for export, join keys
// and dedupe keys. Missing renders empty.
func (v Value) Render() string {
	switch v.Type {
	case TypeString:
		return v.AsString()
	case TypeNumber:
		if v.NumericVal != nil {
			return strconv.FormatFloat(*v.NumericVal, 'f', -1, 64)
		}
	case TypeBoolean:
		if v.BooleanVal != nil {
			return strconv.FormatBool(*v.BooleanVal)
		}
	case TypeTimestamp:
		if v.TimestampVal != nil {
			return v.TimestampVal.Format(time.RFC3339)
		}
	}
	return ""
}

// String returns a diagnostic representation
func (v Value) String() string {
	if v.IsMissing {
		return "<missing>"
	}
	return v.Render()
}

// Equal reports value equality. Missing never equals anything,
// including another missing value.
func (v Value) Equal(other Value) bool {
	if v.IsMissing || other.IsMissing {
		return false
	}
	if v.Type != other.Type {
		return v.Render() == other.Render()
	}
	switch v.Type {
	case TypeNumber:
		return v.AsFloat64() == other.AsFloat64()
	case TypeBoolean:
		return v.AsBoolean() == other.AsBoolean()
	case TypeTimestamp:
		return v.AsTime().Equal(other.AsTime())
	default:
		return v.AsString() == other.AsString()
	}
}

// Compare orders two non-missing values. Numbers and timestamps compare
// naturally, everything else compares on the rendered string.
// The caller is responsible for missing-value placement.
func Compare(a, b Value) int {
	if a.IsNumber() && b.IsNumber() {
		switch {
		case a.AsFloat64() < b.AsFloat64():
			return -1
		case a.AsFloat64() > b.AsFloat64():
			return 1
		default:
			return 0
		}
	}
	if a.IsTimestamp() && b.IsTimestamp() {
		at, bt := a.AsTime(), b.AsTime()
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.Render(), b.Render())
}

// ParseLiteral converts a user-supplied literal to a Value matching the
// given column type, used by filter and fillMissing parameters.
func ParseLiteral(literal string, columnType ValueType) (Value, error) {
	switch columnType {
	case TypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not a number", literal)
		}
		return NewNumberValue(n), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(literal)))
		if err != nil {
			return Value{}, fmt.Errorf("literal %q is not a boolean", literal)
		}
		return NewBooleanValue(b), nil
	case TypeTimestamp:
		for _, format := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(format, strings.TrimSpace(literal)); err == nil {
				return NewTimestampValue(t), nil
			}
		}
		return Value{}, fmt.Errorf("literal %q is not a timestamp", literal)
	default:
		return NewStringValue(literal), nil
	}
}
