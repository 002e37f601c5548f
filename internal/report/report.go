// Package report renders run results as markdown. The HTTP layer
// converts this to HTML; the CLI prints it as-is.
package report

import (
	"fmt"
	"strings"

	"tabflow/app"
	"tabflow/domain/table"
	"tabflow/internal/profile"
)

// previewRows caps how many data rows the report embeds
const previewRows = 20

// RunReport is the markdown summary of one group execution
type RunReport struct {
	WorkflowName string
	GroupName    string
	Result       *app.ExecutionResult
}

// Render produces the full markdown document: the action log, a
// preview of the output table, and a per-column profile.
func (r RunReport) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run report: %s / %s\n\n", r.WorkflowName, r.GroupName)
	fmt.Fprintf(&b, "Run `%s` produced **%d rows** across **%d columns**.\n\n",
		r.Result.RunID, r.Result.Table.RowCount(), len(r.Result.Table.Columns))

	if failures := r.Result.Failures(); len(failures) > 0 {
		fmt.Fprintf(&b, "**%d action(s) failed and were skipped.**\n\n", len(failures))
	}

	b.WriteString("## Action log\n\n")
	b.WriteString("| # | Action | Rows before | Rows after | Coerced | Outcome |\n")
	b.WriteString("|---|--------|-------------|------------|---------|--------|\n")
	for _, entry := range r.Result.Log {
		outcome := "ok"
		if entry.Failed() {
			outcome = "skipped: " + escapePipes(entry.Error)
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %s |\n",
			entry.ActionIndex, entry.Kind, entry.RowsBefore, entry.RowsAfter, entry.CellsCoerced, outcome)
	}
	b.WriteString("\n")

	b.WriteString("## Output preview\n\n")
	writeTablePreview(&b, r.Result.Table)

	b.WriteString("## Column profile\n\n")
	writeProfile(&b, profile.Analyze(r.Result.Table))

	return b.String()
}

func writeTablePreview(b *strings.Builder, tbl *table.Table) {
	if len(tbl.Columns) == 0 {
		b.WriteString("_empty table_\n\n")
		return
	}

	b.WriteString("| " + strings.Join(tbl.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(tbl.Columns)) + "\n")
	limit := len(tbl.Rows)
	if limit > previewRows {
		limit = previewRows
	}
	for _, row := range tbl.Rows[:limit] {
		cells := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			v := row.Cell(c)
			if v.IsMissing {
				cells[i] = "_missing_"
			} else {
				cells[i] = escapePipes(v.Render())
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(tbl.Rows) > limit {
		fmt.Fprintf(b, "\n_%d more row(s) not shown_\n", len(tbl.Rows)-limit)
	}
	b.WriteString("\n")
}

func writeProfile(b *strings.Builder, p profile.TableProfile) {
	b.WriteString("| Column | Type | Missing | Distinct | Mean | Std dev | Min | Max |\n")
	b.WriteString("|--------|------|---------|----------|------|---------|-----|-----|\n")
	for _, col := range p.Columns {
		mean, stdDev, min, max := "", "", "", ""
		if col.Numeric != nil {
			mean = formatStat(col.Numeric.Mean)
			stdDev = formatStat(col.Numeric.StdDev)
			min = formatStat(col.Numeric.Min)
			max = formatStat(col.Numeric.Max)
		}
		fmt.Fprintf(b, "| %s | %s | %d | %d | %s | %s | %s | %s |\n",
			escapePipes(col.Name), col.Type, col.MissingCount, col.DistinctCount, mean, stdDev, min, max)
	}
	b.WriteString("\n")
}

func formatStat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
