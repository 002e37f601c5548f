// Package profile computes per-column summaries of an executed table,
// shown alongside run reports so users can sanity-check a cleaning
// pipeline without exporting.
package profile

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"tabflow/domain/table"
)

// normalAlpha is the significance threshold for the normality check
const normalAlpha = 0.05

// NumericSummary holds distribution statistics over the present
// numeric cells of one column
type NumericSummary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	IsNormal bool    `json:"is_normal"`
}

// ColumnProfile summarizes one column of a table
type ColumnProfile struct {
	Name          string          `json:"name"`
	Type          table.ValueType `json:"type"`
	RowCount      int             `json:"row_count"`
	MissingCount  int             `json:"missing_count"`
	DistinctCount int             `json:"distinct_count"`
	Numeric       *NumericSummary `json:"numeric,omitempty"`
}

// TableProfile is the full per-column breakdown of a table
type TableProfile struct {
	RowCount int             `json:"row_count"`
	Columns  []ColumnProfile `json:"columns"`
}

// Analyze profiles every column of the table
func Analyze(tbl *table.Table) TableProfile {
	out := TableProfile{RowCount: tbl.RowCount()}
	for _, name := range tbl.Columns {
		out.Columns = append(out.Columns, analyzeColumn(tbl, name))
	}
	return out
}

func analyzeColumn(tbl *table.Table, name string) ColumnProfile {
	profile := ColumnProfile{
		Name:     name,
		Type:     tbl.TypeOf(name),
		RowCount: tbl.RowCount(),
	}

	distinct := make(map[string]bool)
	var numbers []float64
	for _, row := range tbl.Rows {
		v := row.Cell(name)
		if v.IsMissing {
			profile.MissingCount++
			continue
		}
		distinct[v.Render()] = true
		if v.IsNumber() {
			numbers = append(numbers, v.AsFloat64())
		}
	}
	profile.DistinctCount = len(distinct)

	if profile.Type == table.TypeNumber && len(numbers) > 0 {
		profile.Numeric = summarize(numbers)
	}
	return profile
}

// summarize computes the numeric distribution markers. Errors from the
// stats library only occur on empty input, which the caller excludes.
func summarize(data []float64) *NumericSummary {
	mean, _ := stats.Mean(data)
	stdDev, _ := stats.StandardDeviation(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	median, _ := stats.Median(data)
	q25, _ := stats.Percentile(data, 25)
	q75, _ := stats.Percentile(data, 75)

	skew := stat.Skew(data, nil)
	kurt := stat.ExKurtosis(data, nil)

	return &NumericSummary{
		Mean:     mean,
		StdDev:   stdDev,
		Min:      min,
		Max:      max,
		Median:   median,
		Q25:      q25,
		Q75:      q75,
		Skewness: skew,
		Kurtosis: kurt,
		IsNormal: jarqueBeraNormal(len(data), skew, kurt),
	}
}

// jarqueBeraNormal runs the Jarque-Bera test on the sample's shape.
// The statistic is chi-squared with two degrees of freedom under the
// null of normality.
func jarqueBeraNormal(n int, skew, exKurtosis float64) bool {
	if n < 8 {
		// Too few samples for the asymptotic to mean anything
		return false
	}
	jb := float64(n) / 6.0 * (skew*skew + exKurtosis*exKurtosis/4.0)
	chi := distuv.ChiSquared{K: 2}
	pValue := 1 - chi.CDF(jb)
	return pValue > normalAlpha
}
