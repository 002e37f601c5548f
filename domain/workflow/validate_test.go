package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/domain/core"
	"tabflow/domain/table"
)

func TestAddActionRejectsUnknownColumn(t *testing.T) {
	w, g := testWorkflow(t)

	err := w.AddAction(Action{
		Kind:    KindFilter,
		GroupID: g.ID,
		Filter:  &FilterParams{Column: "nope", Operator: OpEqual, Value: "x"},
	})
	assert.True(t, core.IsInvalidReference(err))
	assert.Empty(t, w.Actions)
}

func TestAddActionValidatesAgainstProjectedSchema(t *testing.T) {
	w, g := testWorkflow(t)

	// Rename region -> market, then the old name must be gone and the
	// new one usable
	require.NoError(t, w.AddAction(Action{
		Kind:    KindRename,
		GroupID: g.ID,
		Rename:  &RenameParams{OldName: "region", NewName: "market"},
	}))

	err := w.AddAction(Action{
		Kind:    KindFilter,
		GroupID: g.ID,
		Filter:  &FilterParams{Column: "region", Operator: OpEqual, Value: "west"},
	})
	assert.True(t, core.IsInvalidReference(err))

	assert.NoError(t, w.AddAction(Action{
		Kind:    KindFilter,
		GroupID: g.ID,
		Filter:  &FilterParams{Column: "market", Operator: OpEqual, Value: "west"},
	}))
}

func TestProjectedSchemaAfterDerive(t *testing.T) {
	w, g := testWorkflow(t)
	require.NoError(t, w.AddAction(Action{
		Kind:    KindDerive,
		GroupID: g.ID,
		Derive:  &DeriveParams{NewColumn: "double", Formula: "[amount] * 2"},
	}))

	schema, err := w.ProjectedSchema(g.ID)
	require.NoError(t, err)
	assert.True(t, schema.Has("double"))
	assert.Equal(t, table.TypeNumber, schema.TypeOf("double"))
}

func TestDeriveRejectsUnknownFormulaColumn(t *testing.T) {
	w, g := testWorkflow(t)
	err := w.AddAction(Action{
		Kind:    KindDerive,
		GroupID: g.ID,
		Derive:  &DeriveParams{NewColumn: "x", Formula: "[ghost] + 1"},
	})
	assert.True(t, core.IsInvalidReference(err))
}

func TestGroupAggregateReplacesSchema(t *testing.T) {
	w, g := testWorkflow(t)
	require.NoError(t, w.AddAction(Action{
		Kind:    KindGroupAggregate,
		GroupID: g.ID,
		GroupAggregate: &GroupAggregateParams{
			Keys: []string{"region"},
			Aggregates: []Aggregate{
				{Column: "amount", Func: AggSum},
				{Column: "amount", Func: AggCount, As: "n"},
			},
		},
	}))

	schema, err := w.ProjectedSchema(g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "sum_amount", "n"}, schema.Names())
	assert.False(t, schema.Has("amount"))
}

func TestMergeExtendsSchemaWithSuffixOnCollision(t *testing.T) {
	w, left := testWorkflow(t)
	right := Group{
		ID:   core.GroupID(core.NewID()),
		Name: "Targets",
		Schema: table.NewSchema(
			[]string{"region", "amount", "target"},
			map[string]table.ValueType{
				"region": table.TypeString,
				"amount": table.TypeNumber,
				"target": table.TypeNumber,
			},
		),
	}
	require.NoError(t, w.AddGroup(right))

	require.NoError(t, w.AddAction(Action{
		Kind:    KindMerge,
		GroupID: left.ID,
		Merge:   &MergeParams{OtherGroupID: right.ID, JoinKeys: []string{"region"}, JoinType: JoinLeft},
	}))

	schema, err := w.ProjectedSchema(left.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount", "amount_right", "target"}, schema.Names())
}

func TestMergeRejectsSelfReference(t *testing.T) {
	w, g := testWorkflow(t)
	err := w.AddAction(Action{
		Kind:    KindMerge,
		GroupID: g.ID,
		Merge:   &MergeParams{OtherGroupID: g.ID, JoinKeys: []string{"region"}, JoinType: JoinInner},
	})
	assert.Error(t, err)
}

func TestMergeCycleRejected(t *testing.T) {
	w, a := testWorkflow(t)
	b := Group{ID: core.GroupID(core.NewID()), Name: "B", Schema: testSchema()}
	require.NoError(t, w.AddGroup(b))

	require.NoError(t, w.AddAction(Action{
		Kind:    KindMerge,
		GroupID: a.ID,
		Merge:   &MergeParams{OtherGroupID: b.ID, JoinKeys: []string{"region"}, JoinType: JoinInner},
	}))

	err := w.AddAction(Action{
		Kind:    KindMerge,
		GroupID: b.ID,
		Merge:   &MergeParams{OtherGroupID: a.ID, JoinKeys: []string{"region"}, JoinType: JoinInner},
	})
	assert.ErrorIs(t, err, core.ErrCycle)
	require.Len(t, w.Actions, 1)
}

func TestRenameToSameNameIsNoOp(t *testing.T) {
	w, g := testWorkflow(t)
	require.NoError(t, w.AddAction(Action{
		Kind:    KindRename,
		GroupID: g.ID,
		Rename:  &RenameParams{OldName: "region", NewName: "region"},
	}))

	schema, err := w.ProjectedSchema(g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount"}, schema.Names())
}

func TestDropColumnsCannotEmptyTheSchema(t *testing.T) {
	w, g := testWorkflow(t)
	err := w.AddAction(Action{
		Kind:        KindDropColumns,
		GroupID:     g.ID,
		DropColumns: &DropColumnsParams{Columns: []string{"region", "amount"}},
	})
	assert.Error(t, err)
}

func TestFillMeanRequiresNumberColumn(t *testing.T) {
	w, g := testWorkflow(t)
	err := w.AddAction(Action{
		Kind:        KindFillMissing,
		GroupID:     g.ID,
		FillMissing: &FillMissingParams{Column: "region", Method: FillMean},
	})
	assert.Error(t, err)

	assert.NoError(t, w.AddAction(Action{
		Kind:        KindFillMissing,
		GroupID:     g.ID,
		FillMissing: &FillMissingParams{Column: "amount", Method: FillMean},
	}))
}

func TestValidateAgainstSchemaForRebind(t *testing.T) {
	w, g := testWorkflow(t)
	require.NoError(t, w.AddAction(Action{
		Kind:    KindFilter,
		GroupID: g.ID,
		Filter:  &FilterParams{Column: "amount", Operator: OpGreater, Value: "0"},
	}))

	ok := table.NewSchema(
		[]string{"amount", "region", "extra"},
		map[string]table.ValueType{
			"amount": table.TypeNumber,
			"region": table.TypeString,
			"extra":  table.TypeString,
		},
	)
	assert.NoError(t, w.ValidateAgainstSchema(g.ID, ok))

	bad := table.NewSchema(
		[]string{"region"},
		map[string]table.ValueType{"region": table.TypeString},
	)
	err := w.ValidateAgainstSchema(g.ID, bad)
	assert.True(t, core.IsSchemaMismatch(err))
}

func TestUnknownKindsSkippedDuringProjection(t *testing.T) {
	w, g := testWorkflow(t)
	w.Actions = append(w.Actions, Action{Kind: "pivotWide", GroupID: g.ID})

	schema, err := w.ProjectedSchema(g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount"}, schema.Names())
}
