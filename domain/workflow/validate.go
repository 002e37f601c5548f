package workflow

import (
	"fmt"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/internal/expr"
)

// AddAction appends an action after validating its parameters against
// the projected schema: the group's resolved schema as transformed by
// every preceding action, replayed symbolically without touching data.
func (w *Workflow) AddAction(a Action) error {
	if !IsKnownKind(a.Kind) {
		return core.NewValidationError("action", "unknown kind "+string(a.Kind))
	}
	if _, ok := w.GroupByID(a.GroupID); !ok {
		return core.NewInvalidReferenceError("group", a.GroupID.String())
	}

	schema, err := w.ProjectedSchema(a.GroupID)
	if err != nil {
		return err
	}
	if err := w.validateAction(a, schema); err != nil {
		return err
	}

	if a.Kind == KindMerge {
		candidate := append(append([]Action(nil), w.Actions...), a)
		if err := validateAcyclic(w.Groups, candidate); err != nil {
			return err
		}
	}

	w.Actions = append(w.Actions, a)
	return nil
}

// ProjectedSchema replays all actions bound to the group over its
// resolved schema, returning the column set a new action would see.
func (w *Workflow) ProjectedSchema(id core.GroupID) (table.Schema, error) {
	group, ok := w.GroupByID(id)
	if !ok {
		return table.Schema{}, core.NewInvalidReferenceError("group", id.String())
	}
	schema := group.Schema.Clone()
	for i, a := range w.Actions {
		if a.GroupID != id {
			continue
		}
		if !IsKnownKind(a.Kind) {
			continue // preserved unknown kinds pass the table through
		}
		next, err := projectAction(w, a, schema)
		if err != nil {
			return table.Schema{}, fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
		schema = next
	}
	return schema, nil
}

// validateAction checks one action's column and group references
// against the schema in force at its position.
func (w *Workflow) validateAction(a Action, schema table.Schema) error {
	_, err := projectAction(w, a, schema)
	return err
}

// projectAction applies one action's schema effect symbolically.
// It is the single source of truth for both compose-time validation
// and rebind checks.
func projectAction(w *Workflow, a Action, schema table.Schema) (table.Schema, error) {
	requireColumn := func(name string) error {
		if name == "" {
			return core.NewValidationError(string(a.Kind), "column name cannot be empty")
		}
		if !schema.Has(name) {
			return core.NewUnknownColumnError(name, string(a.Kind)+" action")
		}
		return nil
	}

	switch a.Kind {
	case KindRename:
		p := a.Rename
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if err := requireColumn(p.OldName); err != nil {
			return schema, err
		}
		if p.NewName == "" {
			return schema, core.NewValidationError("rename", "new name cannot be empty")
		}
		if p.NewName == p.OldName {
			return schema, nil // no-op by contract
		}
		if schema.Has(p.NewName) {
			return schema, core.NewValidationError("rename", "column "+p.NewName+" already exists")
		}
		out := schema.Clone()
		for i := range out.Columns {
			if out.Columns[i].Name == p.OldName {
				out.Columns[i].Name = p.NewName
			}
		}
		return out, nil

	case KindRetype:
		p := a.Retype
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if err := requireColumn(p.Column); err != nil {
			return schema, err
		}
		if !table.IsValidType(p.TargetType) {
			return schema, core.NewValidationError("retype", "invalid target type "+string(p.TargetType))
		}
		out := schema.Clone()
		for i := range out.Columns {
			if out.Columns[i].Name == p.Column {
				out.Columns[i].Type = p.TargetType
			}
		}
		return out, nil

	case KindFilter:
		p := a.Filter
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if err := requireColumn(p.Column); err != nil {
			return schema, err
		}
		switch p.Operator {
		case OpEqual, OpNotEqual, OpGreater, OpLess, OpContains, OpIsNull, OpIn:
		default:
			return schema, core.NewValidationError("filter", "unknown operator "+string(p.Operator))
		}
		if p.Operator != OpIsNull && p.Value == "" {
			return schema, core.NewValidationError("filter", "comparison value cannot be empty")
		}
		return schema, nil

	case KindDerive:
		p := a.Derive
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if p.NewColumn == "" {
			return schema, core.NewValidationError("derive", "new column name cannot be empty")
		}
		if schema.Has(p.NewColumn) {
			return schema, core.NewValidationError("derive", "column "+p.NewColumn+" already exists")
		}
		parsed, err := expr.Parse(p.Formula)
		if err != nil {
			return schema, core.NewValidationError("derive", "invalid formula: "+err.Error())
		}
		for _, col := range parsed.Columns() {
			if err := requireColumn(col); err != nil {
				return schema, err
			}
		}
		out := schema.Clone()
		out.Columns = append(out.Columns, table.SchemaColumn{
			Name: p.NewColumn,
			Type: parsed.StaticType(schema.Types()),
		})
		return out, nil

	case KindMerge:
		p := a.Merge
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if p.OtherGroupID == a.GroupID {
			return schema, core.NewValidationError("merge", "group cannot merge with itself")
		}
		if _, ok := w.GroupByID(p.OtherGroupID); !ok {
			return schema, core.NewInvalidReferenceError("group", p.OtherGroupID.String())
		}
		switch p.JoinType {
		case JoinInner, JoinLeft, JoinOuter:
		default:
			return schema, core.NewValidationError("merge", "unknown join type "+string(p.JoinType))
		}
		if len(p.JoinKeys) == 0 {
			return schema, core.NewValidationError("merge", "at least one join key is required")
		}
		// The right side arrives fully executed, so its column set is
		// the other group's own projected schema.
		other, err := w.ProjectedSchema(p.OtherGroupID)
		if err != nil {
			return schema, err
		}
		for _, key := range p.JoinKeys {
			if err := requireColumn(key); err != nil {
				return schema, err
			}
			if !other.Has(key) {
				return schema, core.NewUnknownColumnError(key, "merge right group "+p.OtherGroupID.String())
			}
		}
		out := schema.Clone()
		for _, col := range other.Columns {
			if contains(p.JoinKeys, col.Name) {
				continue
			}
			name := col.Name
			if out.Has(name) {
				name = name + "_right"
			}
			out.Columns = append(out.Columns, table.SchemaColumn{Name: name, Type: col.Type})
		}
		return out, nil

	case KindSort:
		p := a.Sort
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if len(p.Keys) == 0 {
			return schema, core.NewValidationError("sort", "at least one sort key is required")
		}
		for _, key := range p.Keys {
			if err := requireColumn(key.Column); err != nil {
				return schema, err
			}
		}
		return schema, nil

	case KindGroupAggregate:
		p := a.GroupAggregate
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if len(p.Keys) == 0 {
			return schema, core.NewValidationError("groupAggregate", "at least one key column is required")
		}
		if len(p.Aggregates) == 0 {
			return schema, core.NewValidationError("groupAggregate", "at least one aggregate is required")
		}
		out := table.Schema{}
		for _, key := range p.Keys {
			if err := requireColumn(key); err != nil {
				return schema, err
			}
			out.Columns = append(out.Columns, table.SchemaColumn{Name: key, Type: schema.TypeOf(key)})
		}
		for _, agg := range p.Aggregates {
			if err := requireColumn(agg.Column); err != nil {
				return schema, err
			}
			switch agg.Func {
			case AggSum, AggMean, AggCount, AggMin, AggMax:
			default:
				return schema, core.NewValidationError("groupAggregate", "unknown aggregate "+string(agg.Func))
			}
			name := agg.OutputName()
			if out.Has(name) {
				return schema, core.NewValidationError("groupAggregate", "duplicate output column "+name)
			}
			outType := table.TypeNumber
			if agg.Func == AggMin || agg.Func == AggMax {
				outType = schema.TypeOf(agg.Column)
			}
			out.Columns = append(out.Columns, table.SchemaColumn{Name: name, Type: outType})
		}
		return out, nil

	case KindDedupe:
		p := a.Dedupe
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		for _, col := range p.Columns {
			if err := requireColumn(col); err != nil {
				return schema, err
			}
		}
		return schema, nil

	case KindDropColumns:
		p := a.DropColumns
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if len(p.Columns) == 0 {
			return schema, core.NewValidationError("dropColumns", "at least one column is required")
		}
		for _, col := range p.Columns {
			if err := requireColumn(col); err != nil {
				return schema, err
			}
		}
		if len(p.Columns) >= len(schema.Columns) {
			return schema, core.NewValidationError("dropColumns", "cannot drop every column")
		}
		out := table.Schema{}
		for _, col := range schema.Columns {
			if !contains(p.Columns, col.Name) {
				out.Columns = append(out.Columns, col)
			}
		}
		return out, nil

	case KindFillMissing:
		p := a.FillMissing
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if err := requireColumn(p.Column); err != nil {
			return schema, err
		}
		switch p.Method {
		case FillValue:
			if p.Value == "" {
				return schema, core.NewValidationError("fillMissing", "fill value cannot be empty")
			}
		case FillForward, FillBackward:
		case FillMean:
			if schema.TypeOf(p.Column) != table.TypeNumber {
				return schema, core.NewValidationError("fillMissing", "mean fill requires a number column")
			}
		default:
			return schema, core.NewValidationError("fillMissing", "unknown method "+string(p.Method))
		}
		return schema, nil

	case KindAdjustColumn:
		p := a.AdjustColumn
		if p == nil {
			return schema, missingParams(a.Kind)
		}
		if err := requireColumn(p.Column); err != nil {
			return schema, err
		}
		parsed, err := expr.Parse(p.Formula)
		if err != nil {
			return schema, core.NewValidationError("adjustColumn", "invalid formula: "+err.Error())
		}
		for _, col := range parsed.Columns() {
			if err := requireColumn(col); err != nil {
				return schema, err
			}
		}
		out := schema.Clone()
		for i := range out.Columns {
			if out.Columns[i].Name == p.Column {
				out.Columns[i].Type = parsed.StaticType(schema.Types())
			}
		}
		return out, nil
	}

	return schema, core.NewValidationError("action", "unknown kind "+string(a.Kind))
}

// OutputName returns the aggregate's output column, defaulting to
// func_column like the aggregation tables users are used to
func (agg Aggregate) OutputName() string {
	if agg.As != "" {
		return agg.As
	}
	return string(agg.Func) + "_" + agg.Column
}

func missingParams(kind ActionKind) error {
	return core.NewValidationError(string(kind), "parameters are required")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateAcyclic rejects cyclic cross-group merge references. The
// merge edges form a DAG over groups; execution relies on that.
func ValidateAcyclic(w *Workflow) error {
	return validateAcyclic(w.Groups, w.Actions)
}

func validateAcyclic(groups []Group, actions []Action) error {
	edges := make(map[core.GroupID][]core.GroupID)
	for _, a := range actions {
		if a.Kind == KindMerge && a.Merge != nil {
			edges[a.GroupID] = append(edges[a.GroupID], a.Merge.OtherGroupID)
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[core.GroupID]int)

	var visit func(id core.GroupID) error
	visit = func(id core.GroupID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w involving group %s", core.ErrCycle, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, g := range groups {
		if err := visit(g.ID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAgainstSchema re-checks every action bound to a group against
// a fresh base schema. Used by rebind: a loaded template's actions must
// still resolve over the newly supplied files.
func (w *Workflow) ValidateAgainstSchema(id core.GroupID, base table.Schema) error {
	schema := base.Clone()
	for i, a := range w.Actions {
		if a.GroupID != id {
			continue
		}
		if !IsKnownKind(a.Kind) {
			continue // preserved unknown kinds are skipped at execution
		}
		next, err := projectAction(w, a, schema)
		if err != nil {
			return fmt.Errorf("%w: action %d (%s): %v", core.ErrSchemaMismatch, i, a.Kind, err)
		}
		schema = next
	}
	return nil
}
