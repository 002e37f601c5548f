package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
)

func TestDefineGroupInfersSchema(t *testing.T) {
	reader := newFakeReader()
	reader.add("jan.csv", []string{"name", "amount", "active"}, [][]string{
		{"a", "10.5", "true"},
		{"b", "$20", "false"},
		{"c", "30", "yes"},
	})

	service := NewWorkflowService(reader)
	group, err := service.DefineGroup(context.Background(), "Sales", []string{"jan.csv"}, "", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "Sales", group.Name)
	assert.False(t, group.ID.IsEmpty())
	assert.Equal(t, []string{"name", "amount", "active"}, group.Schema.Names())
	assert.Equal(t, table.TypeString, group.Schema.TypeOf("name"))
	assert.Equal(t, table.TypeNumber, group.Schema.TypeOf("amount"))
	assert.Equal(t, table.TypeBoolean, group.Schema.TypeOf("active"))
}

func TestDefineGroupAcceptsSameSchemaFiles(t *testing.T) {
	reader := newFakeReader()
	reader.add("jan.csv", []string{"name", "amount"}, [][]string{{"a", "1"}})
	// column order may differ between files; only the name set matters
	reader.add("feb.csv", []string{"amount", "name"}, [][]string{{"2", "b"}})

	service := NewWorkflowService(reader)
	group, err := service.DefineGroup(context.Background(), "Sales", []string{"jan.csv", "feb.csv"}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, group.SourceFiles, 2)
}

func TestDefineGroupRejectsDifferingSchemas(t *testing.T) {
	reader := newFakeReader()
	reader.add("jan.csv", []string{"name", "amount"}, [][]string{{"a", "1"}})
	reader.add("feb.csv", []string{"name", "total"}, [][]string{{"b", "2"}})

	service := NewWorkflowService(reader)
	_, err := service.DefineGroup(context.Background(), "Sales", []string{"jan.csv", "feb.csv"}, "", 0, 0)
	assert.True(t, core.IsSchemaMismatch(err))
}

func TestDefineGroupRequiresNameAndFiles(t *testing.T) {
	service := NewWorkflowService(newFakeReader())

	_, err := service.DefineGroup(context.Background(), "", []string{"f.csv"}, "", 0, 0)
	assert.Error(t, err)

	_, err = service.DefineGroup(context.Background(), "G", nil, "", 0, 0)
	assert.Error(t, err)
}

func TestRebindSwapsFilesWhenSchemaStillFits(t *testing.T) {
	reader := newFakeReader()
	reader.add("old.csv", []string{"name", "amount"}, [][]string{{"a", "1"}})
	reader.add("new.csv", []string{"name", "amount"}, [][]string{{"z", "9"}})

	service := NewWorkflowService(reader)
	w := workflow.New("w")
	group, err := service.DefineGroup(context.Background(), "G", []string{"old.csv"}, "", 0, 0)
	require.NoError(t, err)
	require.NoError(t, w.AddGroup(group))
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindFilter,
		GroupID: group.ID,
		Filter:  &workflow.FilterParams{Column: "amount", Operator: workflow.OpGreater, Value: "0"},
	}))

	require.NoError(t, service.Rebind(context.Background(), w, group.ID, []string{"new.csv"}))
	rebound, _ := w.GroupByID(group.ID)
	assert.Equal(t, []string{"new.csv"}, rebound.SourceFiles)
}

func TestRebindRejectsSchemaBreakingFiles(t *testing.T) {
	reader := newFakeReader()
	reader.add("old.csv", []string{"name", "amount"}, [][]string{{"a", "1"}})
	reader.add("new.csv", []string{"name", "total"}, [][]string{{"z", "9"}})

	service := NewWorkflowService(reader)
	w := workflow.New("w")
	group, err := service.DefineGroup(context.Background(), "G", []string{"old.csv"}, "", 0, 0)
	require.NoError(t, err)
	require.NoError(t, w.AddGroup(group))
	require.NoError(t, w.AddAction(workflow.Action{
		Kind:    workflow.KindFilter,
		GroupID: group.ID,
		Filter:  &workflow.FilterParams{Column: "amount", Operator: workflow.OpGreater, Value: "0"},
	}))

	err = service.Rebind(context.Background(), w, group.ID, []string{"new.csv"})
	assert.True(t, core.IsSchemaMismatch(err))

	// the group keeps its old binding on failure
	kept, _ := w.GroupByID(group.ID)
	assert.Equal(t, []string{"old.csv"}, kept.SourceFiles)
}
