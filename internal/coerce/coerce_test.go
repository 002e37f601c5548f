package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tabflow/domain/table"
)

func TestToTypeNumberFormats(t *testing.T) {
	c := New(DefaultConfig())

	cases := []struct {
		raw  string
		want float64
	}{
		{"42", 42},
		{"1,234.5", 1234.5},
		{"$99.99", 99.99},
		{"(500)", -500},
		{"  7  ", 7},
		{"15%", 15},
		{"-3.25", -3.25},
	}
	for _, tc := range cases {
		v, degraded := c.ToType(tc.raw, table.TypeNumber)
		assert.False(t, degraded, "input %q", tc.raw)
		assert.Equal(t, tc.want, v.AsFloat64(), "input %q", tc.raw)
	}
}

func TestToTypeDegradesToMissing(t *testing.T) {
	c := New(DefaultConfig())

	v, degraded := c.ToType("abc", table.TypeNumber)
	assert.True(t, v.IsMissing)
	assert.True(t, degraded)
}

func TestToTypeEmptyIsMissingNotDegraded(t *testing.T) {
	c := New(DefaultConfig())

	v, degraded := c.ToType("   ", table.TypeNumber)
	assert.True(t, v.IsMissing)
	assert.False(t, degraded)
}

func TestToTypeBoolean(t *testing.T) {
	c := New(DefaultConfig())

	for _, raw := range []string{"true", "YES", "1", "on"} {
		v, _ := c.ToType(raw, table.TypeBoolean)
		assert.True(t, v.AsBoolean(), "input %q", raw)
	}
	for _, raw := range []string{"false", "No", "0", "off"} {
		v, _ := c.ToType(raw, table.TypeBoolean)
		assert.False(t, v.AsBoolean(), "input %q", raw)
		assert.False(t, v.IsMissing, "input %q", raw)
	}
}

func TestToTypeTimestamp(t *testing.T) {
	c := New(DefaultConfig())

	for _, raw := range []string{"2024-03-15", "2024-03-15T10:30:00Z", "03/15/2024"} {
		v, degraded := c.ToType(raw, table.TypeTimestamp)
		assert.False(t, degraded, "input %q", raw)
		assert.Equal(t, 2024, v.AsTime().Year(), "input %q", raw)
	}
}

func TestRetypeMissingStaysMissing(t *testing.T) {
	c := New(DefaultConfig())

	v, degraded := c.Retype(table.NewMissingValue(), table.TypeNumber)
	assert.True(t, v.IsMissing)
	assert.False(t, degraded)
}

func TestRetypeNumberToString(t *testing.T) {
	c := New(DefaultConfig())

	v, degraded := c.Retype(table.NewNumberValue(42), table.TypeString)
	assert.False(t, degraded)
	assert.Equal(t, "42", v.AsString())
}

func TestAnalyzeDistributionRecommendsNumber(t *testing.T) {
	c := New(DefaultConfig())

	analysis := c.AnalyzeDistribution([]string{"1.5", "2", "$3.00", "4", "oops"})
	assert.Equal(t, table.TypeNumber, analysis.RecommendedType)
	assert.Equal(t, 4, analysis.NumberCount)
}

func TestAnalyzeDistributionBinaryColumnIsBoolean(t *testing.T) {
	c := New(DefaultConfig())

	// Every value parses as a number too; boolean wins by check order
	analysis := c.AnalyzeDistribution([]string{"0", "1", "1", "0", "1"})
	assert.Equal(t, table.TypeBoolean, analysis.RecommendedType)
}

func TestAnalyzeDistributionMixedFallsBackToString(t *testing.T) {
	c := New(DefaultConfig())

	analysis := c.AnalyzeDistribution([]string{"1", "two", "3", "four", "five"})
	assert.Equal(t, table.TypeString, analysis.RecommendedType)
}

func TestAnalyzeDistributionEmptySampleIsString(t *testing.T) {
	c := New(DefaultConfig())

	analysis := c.AnalyzeDistribution([]string{"", "  ", ""})
	assert.Equal(t, table.TypeString, analysis.RecommendedType)
	assert.Equal(t, 0, analysis.ValidCount)
}
