package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
)

// fakeReader serves canned rows per path, standing in for the
// spreadsheet adapter
type fakeReader struct {
	headers map[string][]string
	rows    map[string][][]string
	err     map[string]error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		headers: make(map[string][]string),
		rows:    make(map[string][][]string),
		err:     make(map[string]error),
	}
}

func (f *fakeReader) add(path string, headers []string, rows [][]string) {
	f.headers[path] = headers
	f.rows[path] = rows
}

func (f *fakeReader) ReadTable(ctx context.Context, path, sheet string, headerRow, headerCol int) ([]string, [][]string, error) {
	if err := f.err[path]; err != nil {
		return nil, nil, err
	}
	headers, ok := f.headers[path]
	if !ok {
		return nil, nil, fmt.Errorf("no such file %q", path)
	}
	return headers, f.rows[path], nil
}

func numberGroup(t *testing.T, w *workflow.Workflow, name string, columns []string, types map[string]table.ValueType, file string) workflow.Group {
	t.Helper()
	g := workflow.Group{
		ID:          core.GroupID(core.NewID()),
		Name:        name,
		SourceFiles: []string{file},
		Schema:      table.NewSchema(columns, types),
	}
	require.NoError(t, w.AddGroup(g))
	return g
}

func runGroup(t *testing.T, reader *fakeReader, w *workflow.Workflow, id core.GroupID) *ExecutionResult {
	t.Helper()
	engine := NewEngine(reader, nil)
	result, err := engine.Run(context.Background(), w, id)
	require.NoError(t, err)
	return result
}

func TestRunRetypeThenFilter(t *testing.T) {
	reader := newFakeReader()
	reader.add("sales.csv", []string{"name", "amt"}, [][]string{
		{"a", "10"},
		{"b", "x"},
	})

	w := workflow.New("scenario")
	g := numberGroup(t, w, "G", []string{"name", "amt"}, map[string]table.ValueType{
		"name": table.TypeString,
		"amt":  table.TypeString,
	}, "sales.csv")

	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindRetype,
		GroupID: g.ID,
		Retype:  &workflow.RetypeParams{Column: "amt", TargetType: table.TypeNumber},
	}))
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindFilter,
		GroupID: g.ID,
		Filter:  &workflow.FilterParams{Column: "amt", Operator: workflow.OpGreater, Value: "5"},
	}))

	result := runGroup(t, reader, w, g.ID)
	require.Len(t, result.Log, 2)

	// retype: "x" degrades to missing, counted once, no rows lost
	assert.Equal(t, 2, result.Log[0].RowsBefore)
	assert.Equal(t, 2, result.Log[0].RowsAfter)
	assert.Equal(t, 1, result.Log[0].CellsCoerced)
	assert.False(t, result.Log[0].Failed())

	// filter > 5: the missing row never matches, the 10 row does
	assert.Equal(t, 2, result.Log[1].RowsBefore)
	assert.Equal(t, 1, result.Log[1].RowsAfter)

	require.Equal(t, 1, result.Table.RowCount())
	assert.Equal(t, "a", result.Table.Rows[0].Cell("name").AsString())
	assert.Equal(t, 10.0, result.Table.Rows[0].Cell("amt").AsFloat64())
}

func TestFilterAgainstMissingIsAlwaysFalse(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"v"}, [][]string{{"1"}, {""}, {"3"}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"v"}, map[string]table.ValueType{"v": table.TypeNumber}, "f.csv")

	for _, op := range []workflow.FilterOperator{workflow.OpEqual, workflow.OpNotEqual, workflow.OpLess, workflow.OpGreater} {
		wf := workflow.New("w")
		gg := numberGroup(t, wf, "G", []string{"v"}, map[string]table.ValueType{"v": table.TypeNumber}, "f.csv")
		require.NoError(t, wf.AddAction(workflow.Action{
			Kind:    workflow.KindFilter,
			GroupID: gg.ID,
			Filter:  &workflow.FilterParams{Column: "v", Operator: op, Value: "2"},
		}))
		result := runGroup(t, reader, wf, gg.ID)
		for _, row := range result.Table.Rows {
			assert.False(t, row.Cell("v").IsMissing, "operator %s kept a missing row", op)
		}
	}

	// isNull selects exactly the missing rows
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindFilter,
		GroupID: g.ID,
		Filter:  &workflow.FilterParams{Column: "v", Operator: workflow.OpIsNull},
	}))
	result := runGroup(t, reader, w, g.ID)
	require.Equal(t, 1, result.Table.RowCount())
	assert.True(t, result.Table.Rows[0].Cell("v").IsMissing)
}

func TestSkipAndContinue(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"a", "b"}, [][]string{{"1", "2"}, {"3", "4"}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"a", "b"}, map[string]table.ValueType{
		"a": table.TypeNumber, "b": table.TypeNumber,
	}, "f.csv")

	// Bypass compose-time validation to engineer a runtime failure:
	// the derive references a column dropped one step earlier.
	w.Actions = append(w.Actions,
		workflow.Action{
			Kind:        workflow.KindDropColumns,
			GroupID:     g.ID,
			DropColumns: &workflow.DropColumnsParams{Columns: []string{"b"}},
		},
		workflow.Action{
			Kind:    workflow.KindDerive,
			GroupID: g.ID,
			Derive:  &workflow.DeriveParams{NewColumn: "c", Formula: "[b] * 2"},
		},
		workflow.Action{
			Kind:    workflow.KindDerive,
			GroupID: g.ID,
			Derive:  &workflow.DeriveParams{NewColumn: "d", Formula: "[a] + 1"},
		},
	)

	result := runGroup(t, reader, w, g.ID)
	require.Len(t, result.Log, 3)

	assert.False(t, result.Log[0].Failed())
	assert.True(t, result.Log[1].Failed())
	assert.Equal(t, result.Log[1].RowsBefore, result.Log[1].RowsAfter)

	// the failed action left the table untouched and the next one ran
	assert.False(t, result.Log[2].Failed())
	assert.False(t, result.Table.HasColumn("c"))
	assert.True(t, result.Table.HasColumn("d"))
	assert.Equal(t, 2.0, result.Table.Rows[0].Cell("d").AsFloat64())
}

func TestUnknownKindLoggedAndSkipped(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"a"}, [][]string{{"1"}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"a"}, map[string]table.ValueType{"a": table.TypeNumber}, "f.csv")
	w.Actions = append(w.Actions, workflow.Action{Kind: "pivotWide", GroupID: g.ID})

	result := runGroup(t, reader, w, g.ID)
	require.Len(t, result.Log, 1)
	assert.True(t, result.Log[0].Failed())
	assert.Equal(t, 1, result.Table.RowCount())
}

func mergeFixture(t *testing.T, joinType workflow.JoinType) (*fakeReader, *workflow.Workflow, workflow.Group) {
	t.Helper()
	reader := newFakeReader()
	reader.add("left.csv", []string{"key", "l"}, [][]string{
		{"a", "1"},
		{"a", "2"},
		{"b", "3"},
		{"", "4"},
	})
	reader.add("right.csv", []string{"key", "r"}, [][]string{
		{"a", "10"},
		{"a", "20"},
		{"c", "30"},
	})

	w := workflow.New("w")
	left := numberGroup(t, w, "L", []string{"key", "l"}, map[string]table.ValueType{
		"key": table.TypeString, "l": table.TypeNumber,
	}, "left.csv")
	right := numberGroup(t, w, "R", []string{"key", "r"}, map[string]table.ValueType{
		"key": table.TypeString, "r": table.TypeNumber,
	}, "right.csv")

	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindMerge,
		GroupID: left.ID,
		Merge:   &workflow.MergeParams{OtherGroupID: right.ID, JoinKeys: []string{"key"}, JoinType: joinType},
	}))
	return reader, w, left
}

func TestMergeInnerCardinality(t *testing.T) {
	reader, w, left := mergeFixture(t, workflow.JoinInner)
	result := runGroup(t, reader, w, left.ID)

	// 2 left "a" rows x 2 right "a" rows = 4; "b", "c" and the
	// missing-key row do not match
	assert.Equal(t, 4, result.Table.RowCount())
}

func TestMergeLeftKeepsUnmatchedWithMissingRightColumns(t *testing.T) {
	reader, w, left := mergeFixture(t, workflow.JoinLeft)
	result := runGroup(t, reader, w, left.ID)

	// 4 matches plus the unmatched "b" and missing-key rows
	require.Equal(t, 6, result.Table.RowCount())

	unmatched := 0
	for _, row := range result.Table.Rows {
		if row.Cell("r").IsMissing {
			unmatched++
		}
	}
	assert.Equal(t, 2, unmatched)
}

func TestMergeOuterAppendsUnmatchedRightRows(t *testing.T) {
	reader, w, left := mergeFixture(t, workflow.JoinOuter)
	result := runGroup(t, reader, w, left.ID)

	// left join shape plus the unmatched right "c" row
	require.Equal(t, 7, result.Table.RowCount())

	last := result.Table.Rows[len(result.Table.Rows)-1]
	assert.Equal(t, "c", last.Cell("key").AsString())
	assert.True(t, last.Cell("l").IsMissing)
	assert.Equal(t, 30.0, last.Cell("r").AsFloat64())
}

func TestMergeRightGroupActionsRunFirst(t *testing.T) {
	reader, w, left := mergeFixture(t, workflow.JoinInner)

	// Filter the right group down to one row before the merge consumes it
	right, ok := w.GroupByName("R")
	require.True(t, ok)
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindFilter,
		GroupID: right.ID,
		Filter:  &workflow.FilterParams{Column: "r", Operator: workflow.OpEqual, Value: "10"},
	}))

	result := runGroup(t, reader, w, left.ID)
	assert.Equal(t, 2, result.Table.RowCount())
}

func TestSortStableWithMissingLast(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"k", "tag"}, [][]string{
		{"2", "first-2"},
		{"", "missing-1"},
		{"1", "first-1"},
		{"2", "second-2"},
		{"", "missing-2"},
	})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"k", "tag"}, map[string]table.ValueType{
		"k": table.TypeNumber, "tag": table.TypeString,
	}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindSort,
		GroupID: g.ID,
		Sort:    &workflow.SortParams{Keys: []workflow.SortKey{{Column: "k"}}},
	}))

	result := runGroup(t, reader, w, g.ID)
	tags := make([]string, 0, 5)
	for _, row := range result.Table.Rows {
		tags = append(tags, row.Cell("tag").AsString())
	}
	assert.Equal(t, []string{"first-1", "first-2", "second-2", "missing-1", "missing-2"}, tags)
}

func TestSortDescendingKeepsMissingLast(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"k"}, [][]string{{"1"}, {""}, {"3"}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"k"}, map[string]table.ValueType{"k": table.TypeNumber}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindSort,
		GroupID: g.ID,
		Sort:    &workflow.SortParams{Keys: []workflow.SortKey{{Column: "k", Descending: true}}},
	}))

	result := runGroup(t, reader, w, g.ID)
	assert.Equal(t, 3.0, result.Table.Rows[0].Cell("k").AsFloat64())
	assert.Equal(t, 1.0, result.Table.Rows[1].Cell("k").AsFloat64())
	assert.True(t, result.Table.Rows[2].Cell("k").IsMissing)
}

func TestGroupAggregateExcludesMissingExceptCount(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"region", "amt"}, [][]string{
		{"west", "10"},
		{"west", ""},
		{"west", "20"},
		{"east", ""},
	})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"region", "amt"}, map[string]table.ValueType{
		"region": table.TypeString, "amt": table.TypeNumber,
	}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindGroupAggregate,
		GroupID: g.ID,
		GroupAggregate: &workflow.GroupAggregateParams{
			Keys: []string{"region"},
			Aggregates: []workflow.Aggregate{
				{Column: "amt", Func: workflow.AggSum},
				{Column: "amt", Func: workflow.AggMean},
				{Column: "amt", Func: workflow.AggCount, As: "n"},
				{Column: "amt", Func: workflow.AggMin},
			},
		},
	}))

	result := runGroup(t, reader, w, g.ID)
	require.Equal(t, 2, result.Table.RowCount())

	// output ordered by rendered key: east before west
	east, west := result.Table.Rows[0], result.Table.Rows[1]
	assert.Equal(t, "east", east.Cell("region").AsString())

	assert.True(t, east.Cell("sum_amt").IsMissing)
	assert.Equal(t, 1.0, east.Cell("n").AsFloat64())

	assert.Equal(t, 30.0, west.Cell("sum_amt").AsFloat64())
	assert.Equal(t, 15.0, west.Cell("mean_amt").AsFloat64())
	assert.Equal(t, 3.0, west.Cell("n").AsFloat64())
	assert.Equal(t, 10.0, west.Cell("min_amt").AsFloat64())
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"k", "v"}, [][]string{
		{"a", "1"},
		{"a", "2"},
		{"b", "3"},
		{"a", "4"},
	})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"k", "v"}, map[string]table.ValueType{
		"k": table.TypeString, "v": table.TypeNumber,
	}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindDedupe,
		GroupID: g.ID,
		Dedupe:  &workflow.DedupeParams{Columns: []string{"k"}},
	}))

	result := runGroup(t, reader, w, g.ID)
	require.Equal(t, 2, result.Table.RowCount())
	assert.Equal(t, 1.0, result.Table.Rows[0].Cell("v").AsFloat64())
	assert.Equal(t, 3.0, result.Table.Rows[1].Cell("v").AsFloat64())
}

func TestFillMissingForwardAndValue(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"v"}, [][]string{{""}, {"5"}, {""}, {"7"}, {""}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"v"}, map[string]table.ValueType{"v": table.TypeNumber}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:        workflow.KindFillMissing,
		GroupID:     g.ID,
		FillMissing: &workflow.FillMissingParams{Column: "v", Method: workflow.FillForward},
	}))
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:        workflow.KindFillMissing,
		GroupID:     g.ID,
		FillMissing: &workflow.FillMissingParams{Column: "v", Method: workflow.FillValue, Value: "0"},
	}))

	result := runGroup(t, reader, w, g.ID)
	got := make([]float64, 0, 5)
	for _, row := range result.Table.Rows {
		got = append(got, row.Cell("v").AsFloat64())
	}
	// forward fill leaves the leading cell missing; value fill closes it
	assert.Equal(t, []float64{0, 5, 5, 7, 7}, got)
}

func TestAdjustColumnRewritesInPlace(t *testing.T) {
	reader := newFakeReader()
	reader.add("f.csv", []string{"name"}, [][]string{{" bob "}, {"ANN"}})

	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"name"}, map[string]table.ValueType{"name": table.TypeString}, "f.csv")
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:         workflow.KindAdjustColumn,
		GroupID:      g.ID,
		AdjustColumn: &workflow.AdjustColumnParams{Column: "name", Formula: "lower(trim([name]))"},
	}))

	result := runGroup(t, reader, w, g.ID)
	assert.Equal(t, "bob", result.Table.Rows[0].Cell("name").AsString())
	assert.Equal(t, "ann", result.Table.Rows[1].Cell("name").AsString())
}

func TestRunFailsWhenSourceUnreadable(t *testing.T) {
	reader := newFakeReader()
	w := workflow.New("w")
	g := numberGroup(t, w, "G", []string{"a"}, map[string]table.ValueType{"a": table.TypeString}, "gone.csv")

	engine := NewEngine(reader, nil)
	_, err := engine.Run(context.Background(), w, g.ID)
	assert.Error(t, err)
}

func TestRunAllExecutesEveryGroup(t *testing.T) {
	reader, w, left := mergeFixture(t, workflow.JoinInner)

	engine := NewEngine(reader, nil).WithConcurrency(2)
	results, err := engine.RunAll(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 4, results[left.ID].Table.RowCount())
}

func TestMultiFileGroupLoadsInFileOrder(t *testing.T) {
	reader := newFakeReader()
	reader.add("jan.csv", []string{"v"}, [][]string{{"1"}})
	reader.add("feb.csv", []string{"v"}, [][]string{{"2"}})

	w := workflow.New("w")
	g := workflow.Group{
		ID:          core.GroupID(core.NewID()),
		Name:        "G",
		SourceFiles: []string{"jan.csv", "feb.csv"},
		Schema:      table.NewSchema([]string{"v"}, map[string]table.ValueType{"v": table.TypeNumber}),
	}
	require.NoError(t, w.AddGroup(g))

	result := runGroup(t, reader, w, g.ID)
	require.Equal(t, 2, result.Table.RowCount())
	assert.Equal(t, 1.0, result.Table.Rows[0].Cell("v").AsFloat64())
	assert.Equal(t, 2.0, result.Table.Rows[1].Cell("v").AsFloat64())
}

func TestLoadRejectsHeaderMismatch(t *testing.T) {
	reader := newFakeReader()
	reader.add("jan.csv", []string{"v"}, [][]string{{"1"}})
	reader.add("feb.csv", []string{"other"}, [][]string{{"2"}})

	w := workflow.New("w")
	g := workflow.Group{
		ID:          core.GroupID(core.NewID()),
		Name:        "G",
		SourceFiles: []string{"jan.csv", "feb.csv"},
		Schema:      table.NewSchema([]string{"v"}, map[string]table.ValueType{"v": table.TypeNumber}),
	}
	require.NoError(t, w.AddGroup(g))

	engine := NewEngine(reader, nil)
	_, err := engine.Run(context.Background(), w, g.ID)
	assert.True(t, core.IsSchemaMismatch(err))
}
