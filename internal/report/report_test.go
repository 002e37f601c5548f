package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tabflow/app"
	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
)

func TestRenderIncludesLogAndPreview(t *testing.T) {
	tbl := table.New([]string{"name", "amt"}, map[string]table.ValueType{
		"name": table.TypeString,
		"amt":  table.TypeNumber,
	})
	tbl.AppendRow(table.Row{"name": table.NewStringValue("a"), "amt": table.NewNumberValue(10)})
	tbl.AppendRow(table.Row{"name": table.NewStringValue("b"), "amt": table.NewMissingValue()})

	md := RunReport{
		WorkflowName: "clean",
		GroupName:    "Sales",
		Result: &app.ExecutionResult{
			RunID: core.RunID(core.NewID()),
			Table: tbl,
			Log: []app.LogEntry{
				{ActionIndex: 0, Kind: workflow.KindRetype, RowsBefore: 2, RowsAfter: 2, CellsCoerced: 1},
				{ActionIndex: 1, Kind: workflow.KindFilter, RowsBefore: 2, RowsAfter: 2, Error: "boom"},
			},
		},
	}.Render()

	assert.True(t, strings.HasPrefix(md, "# Run report: clean / Sales"))
	assert.Contains(t, md, "**1 action(s) failed and were skipped.**")
	assert.Contains(t, md, "skipped: boom")
	assert.Contains(t, md, "| a | 10 |")
	assert.Contains(t, md, "_missing_")
	assert.Contains(t, md, "## Column profile")
}

func TestRenderTruncatesLongTables(t *testing.T) {
	tbl := table.New([]string{"v"}, map[string]table.ValueType{"v": table.TypeNumber})
	for i := 0; i < 50; i++ {
		tbl.AppendRow(table.Row{"v": table.NewNumberValue(float64(i))})
	}

	md := RunReport{
		WorkflowName: "w",
		GroupName:    "G",
		Result:       &app.ExecutionResult{RunID: core.RunID(core.NewID()), Table: tbl},
	}.Render()

	assert.Contains(t, md, "_30 more row(s) not shown_")
}
