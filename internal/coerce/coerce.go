package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"

	"tabflow/domain/table"
)

// Coercer handles deterministic string-to-typed-value conversion.
// Values that cannot be coerced become the missing sentinel, never an
// error: retype and schema inference both rely on that policy.
type Coercer struct {
	config Config
}

// Config defines the inference thresholds
type Config struct {
	NumberThreshold    float64 `json:"number_threshold"`    // % of values that must parse as numbers
	BooleanThreshold   float64 `json:"boolean_threshold"`   // % of values that must parse as booleans
	TimestampThreshold float64 `json:"timestamp_threshold"` // % of values that must parse as timestamps
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		NumberThreshold:    0.8,
		BooleanThreshold:   0.9,
		TimestampThreshold: 0.8,
	}
}

// New creates a coercer with the given config
func New(config Config) *Coercer {
	return &Coercer{config: config}
}

// timestampFormats are tried in order when parsing timestamp cells
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
}

// ToType coerces a raw cell to the target column type. The second
// return reports whether the cell degraded to missing because the raw
// value could not be represented in the target type.
func (c *Coercer) ToType(raw string, target table.ValueType) (table.Value, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return table.NewMissingValue(), false
	}

	switch target {
	case table.TypeNumber:
		if v, ok := c.tryNumber(trimmed); ok {
			return v, false
		}
	case table.TypeBoolean:
		if v, ok := c.tryBoolean(trimmed); ok {
			return v, false
		}
	case table.TypeTimestamp:
		if v, ok := c.tryTimestamp(trimmed); ok {
			return v, false
		}
	default:
		return table.NewStringValue(trimmed), false
	}

	return table.NewMissingValue(), true
}

// Retype re-coerces an already-typed cell to a new column type.
func (c *Coercer) Retype(v table.Value, target table.ValueType) (table.Value, bool) {
	if v.IsMissing {
		return v, false
	}
	if v.Type == target {
		return v, false
	}
	return c.ToType(v.Render(), target)
}

// tryNumber parses numeric cells, tolerating the formats spreadsheets
// produce: thousands separators, currency symbols, percent signs and
// parenthesized negatives.
func (c *Coercer) tryNumber(raw string) (table.Value, bool) {
	cleaned := raw

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
		negative = true
	}

	for _, symbol := range []string{"$", "€", "£", "¥", "%", ","} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if negative {
		cleaned = "-" + cleaned
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return table.Value{}, false
	}
	return table.NewNumberValue(val), true
}

func (c *Coercer) tryBoolean(raw string) (table.Value, bool) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "y", "on":
		return table.NewBooleanValue(true), true
	case "false", "0", "no", "n", "off":
		return table.NewBooleanValue(false), true
	}
	return table.Value{}, false
}

func (c *Coercer) tryTimestamp(raw string) (table.Value, bool) {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return table.NewTimestampValue(t), true
		}
	}
	return table.Value{}, false
}

// Analysis contains the results of type distribution analysis over a
// column sample
type Analysis struct {
	TotalCount      int             `json:"total_count"`
	ValidCount      int             `json:"valid_count"`
	NumberCount     int             `json:"number_count"`
	BooleanCount    int             `json:"boolean_count"`
	TimestampCount  int             `json:"timestamp_count"`
	NumberRatio     float64         `json:"number_ratio"`
	BooleanRatio    float64         `json:"boolean_ratio"`
	TimestampRatio  float64         `json:"timestamp_ratio"`
	RecommendedType table.ValueType `json:"recommended_type"`
}

// AnalyzeDistribution inspects a sample of raw cells and recommends a
// column type using the configured thresholds.
func (c *Coercer) AnalyzeDistribution(values []string) Analysis {
	analysis := Analysis{TotalCount: len(values)}

	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		analysis.ValidCount++
		if _, ok := c.tryNumber(trimmed); ok {
			analysis.NumberCount++
		}
		if _, ok := c.tryBoolean(trimmed); ok {
			analysis.BooleanCount++
		}
		if _, ok := c.tryTimestamp(trimmed); ok {
			analysis.TimestampCount++
		}
	}

	if analysis.ValidCount > 0 {
		analysis.NumberRatio = float64(analysis.NumberCount) / float64(analysis.ValidCount)
		analysis.BooleanRatio = float64(analysis.BooleanCount) / float64(analysis.ValidCount)
		analysis.TimestampRatio = float64(analysis.TimestampCount) / float64(analysis.ValidCount)
	}

	analysis.RecommendedType = c.recommend(analysis)
	return analysis
}

// recommend checks thresholds in order of restrictiveness. Boolean is
// checked before number so 0/1 columns do not collapse to numeric.
func (c *Coercer) recommend(analysis Analysis) table.ValueType {
	if analysis.ValidCount == 0 {
		return table.TypeString
	}
	if analysis.BooleanRatio >= c.config.BooleanThreshold {
		return table.TypeBoolean
	}
	if analysis.NumberRatio >= c.config.NumberThreshold {
		return table.TypeNumber
	}
	if analysis.TimestampRatio >= c.config.TimestampThreshold {
		return table.TypeTimestamp
	}
	return table.TypeString
}
