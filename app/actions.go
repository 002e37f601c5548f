package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
	"tabflow/internal/expr"
)

// apply executes one action against the current table and returns the
// replacement table. The input table is never mutated; a failing action
// leaves the caller holding the untouched input.
func (r *run) apply(ctx context.Context, tbl *table.Table, a workflow.Action) (*table.Table, int, error) {
	switch a.Kind {
	case workflow.KindRename:
		out, err := applyRename(tbl, a.Rename)
		return out, 0, err
	case workflow.KindRetype:
		return r.applyRetype(tbl, a.Retype)
	case workflow.KindFilter:
		out, err := applyFilter(tbl, a.Filter)
		return out, 0, err
	case workflow.KindDerive:
		out, err := applyDerive(tbl, a.Derive)
		return out, 0, err
	case workflow.KindMerge:
		out, err := r.applyMerge(ctx, tbl, a.Merge)
		return out, 0, err
	case workflow.KindSort:
		out, err := applySort(tbl, a.Sort)
		return out, 0, err
	case workflow.KindGroupAggregate:
		out, err := applyGroupAggregate(tbl, a.GroupAggregate)
		return out, 0, err
	case workflow.KindDedupe:
		out, err := applyDedupe(tbl, a.Dedupe)
		return out, 0, err
	case workflow.KindDropColumns:
		out, err := applyDropColumns(tbl, a.DropColumns)
		return out, 0, err
	case workflow.KindFillMissing:
		out, err := applyFillMissing(tbl, a.FillMissing)
		return out, 0, err
	case workflow.KindAdjustColumn:
		out, err := applyAdjustColumn(tbl, a.AdjustColumn)
		return out, 0, err
	}
	return nil, 0, runtimeErr("unknown kind %q", a.Kind)
}

func runtimeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrActionRuntime, fmt.Sprintf(format, args...))
}

func requireColumn(tbl *table.Table, name string) error {
	if !tbl.HasColumn(name) {
		return runtimeErr("column %q not found", name)
	}
	return nil
}

func applyRename(tbl *table.Table, p *workflow.RenameParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("rename parameters missing")
	}
	if err := requireColumn(tbl, p.OldName); err != nil {
		return nil, err
	}
	if p.NewName == p.OldName {
		return tbl, nil
	}
	if tbl.HasColumn(p.NewName) {
		return nil, runtimeErr("column %q already exists", p.NewName)
	}

	columns := make([]string, len(tbl.Columns))
	types := make(map[string]table.ValueType, len(tbl.Types))
	for i, c := range tbl.Columns {
		name := c
		if c == p.OldName {
			name = p.NewName
		}
		columns[i] = name
		types[name] = tbl.TypeOf(c)
	}
	out := table.New(columns, types)
	for _, row := range tbl.Rows {
		next := row.Clone()
		next[p.NewName] = next.Cell(p.OldName)
		delete(next, p.OldName)
		out.AppendRow(next)
	}
	return out, nil
}

// applyRetype re-coerces every cell of one column. Cells that held a
// value but refuse the target type degrade to missing; the count of
// those degradations is reported for the run log.
func (r *run) applyRetype(tbl *table.Table, p *workflow.RetypeParams) (*table.Table, int, error) {
	if p == nil {
		return nil, 0, runtimeErr("retype parameters missing")
	}
	if err := requireColumn(tbl, p.Column); err != nil {
		return nil, 0, err
	}
	if !table.IsValidType(p.TargetType) {
		return nil, 0, runtimeErr("invalid target type %q", p.TargetType)
	}

	out := table.New(tbl.Columns, tbl.Types)
	out.Types[p.Column] = p.TargetType
	degraded := 0
	for _, row := range tbl.Rows {
		next := row.Clone()
		v, lost := r.engine.coercer.Retype(next.Cell(p.Column), p.TargetType)
		if lost {
			degraded++
		}
		next[p.Column] = v
		out.AppendRow(next)
	}
	return out, degraded, nil
}

// applyFilter keeps matching rows. Any comparison against a missing
// cell is false, so filtered columns shed their missing rows except
// under isNull, which selects exactly those.
func applyFilter(tbl *table.Table, p *workflow.FilterParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("filter parameters missing")
	}
	if err := requireColumn(tbl, p.Column); err != nil {
		return nil, err
	}

	match, err := filterPredicate(tbl.TypeOf(p.Column), p)
	if err != nil {
		return nil, err
	}

	out := table.New(tbl.Columns, tbl.Types)
	for _, row := range tbl.Rows {
		if match(row.Cell(p.Column)) {
			out.AppendRow(row.Clone())
		}
	}
	return out, nil
}

func filterPredicate(columnType table.ValueType, p *workflow.FilterParams) (func(table.Value) bool, error) {
	switch p.Operator {
	case workflow.OpIsNull:
		return func(v table.Value) bool { return v.IsMissing }, nil

	case workflow.OpContains:
		needle := p.Value
		return func(v table.Value) bool {
			return !v.IsMissing && strings.Contains(v.Render(), needle)
		}, nil

	case workflow.OpIn:
		members := make([]table.Value, 0)
		for _, part := range strings.Split(p.Value, ",") {
			lit, err := table.ParseLiteral(strings.TrimSpace(part), columnType)
			if err != nil {
				return nil, runtimeErr("filter: %v", err)
			}
			members = append(members, lit)
		}
		return func(v table.Value) bool {
			for _, m := range members {
				if v.Equal(m) {
					return true
				}
			}
			return false
		}, nil

	case workflow.OpEqual, workflow.OpNotEqual, workflow.OpGreater, workflow.OpLess:
		lit, err := table.ParseLiteral(p.Value, columnType)
		if err != nil {
			return nil, runtimeErr("filter: %v", err)
		}
		switch p.Operator {
		case workflow.OpEqual:
			return func(v table.Value) bool { return v.Equal(lit) }, nil
		case workflow.OpNotEqual:
			return func(v table.Value) bool { return !v.IsMissing && !v.Equal(lit) }, nil
		case workflow.OpGreater:
			return func(v table.Value) bool { return !v.IsMissing && table.Compare(v, lit) > 0 }, nil
		default:
			return func(v table.Value) bool { return !v.IsMissing && table.Compare(v, lit) < 0 }, nil
		}
	}
	return nil, runtimeErr("unknown filter operator %q", p.Operator)
}

func applyDerive(tbl *table.Table, p *workflow.DeriveParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("derive parameters missing")
	}
	if tbl.HasColumn(p.NewColumn) {
		return nil, runtimeErr("column %q already exists", p.NewColumn)
	}
	parsed, err := expr.Parse(p.Formula)
	if err != nil {
		return nil, runtimeErr("invalid formula: %v", err)
	}
	for _, col := range parsed.Columns() {
		if err := requireColumn(tbl, col); err != nil {
			return nil, err
		}
	}

	columns := append(append([]string(nil), tbl.Columns...), p.NewColumn)
	types := make(map[string]table.ValueType, len(columns))
	for k, v := range tbl.Types {
		types[k] = v
	}
	types[p.NewColumn] = parsed.StaticType(tbl.Types)

	out := table.New(columns, types)
	for _, row := range tbl.Rows {
		next := row.Clone()
		next[p.NewColumn] = parsed.Eval(row)
		out.AppendRow(next)
	}
	return out, nil
}

func applyAdjustColumn(tbl *table.Table, p *workflow.AdjustColumnParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("adjustColumn parameters missing")
	}
	if err := requireColumn(tbl, p.Column); err != nil {
		return nil, err
	}
	parsed, err := expr.Parse(p.Formula)
	if err != nil {
		return nil, runtimeErr("invalid formula: %v", err)
	}
	for _, col := range parsed.Columns() {
		if err := requireColumn(tbl, col); err != nil {
			return nil, err
		}
	}

	out := table.New(tbl.Columns, tbl.Types)
	out.Types[p.Column] = parsed.StaticType(tbl.Types)
	for _, row := range tbl.Rows {
		next := row.Clone()
		next[p.Column] = parsed.Eval(row)
		out.AppendRow(next)
	}
	return out, nil
}

// applyMerge joins the evolving left table with the fully executed
// right group. Matches multiply: m left rows sharing a key with n
// right rows yield m*n output rows. Rows with a missing join key never
// match anything.
func (r *run) applyMerge(ctx context.Context, tbl *table.Table, p *workflow.MergeParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("merge parameters missing")
	}
	switch p.JoinType {
	case workflow.JoinInner, workflow.JoinLeft, workflow.JoinOuter:
	default:
		return nil, runtimeErr("unknown join type %q", p.JoinType)
	}
	if len(p.JoinKeys) == 0 {
		return nil, runtimeErr("merge requires at least one join key")
	}

	other, err := r.execute(ctx, p.OtherGroupID)
	if err != nil {
		return nil, runtimeErr("executing merge source: %v", err)
	}
	right := other.Table

	for _, key := range p.JoinKeys {
		if err := requireColumn(tbl, key); err != nil {
			return nil, err
		}
		if err := requireColumn(right, key); err != nil {
			return nil, err
		}
	}

	// Right columns that collide with a left name take a suffix.
	rightName := make(map[string]string, len(right.Columns))
	columns := append([]string(nil), tbl.Columns...)
	types := make(map[string]table.ValueType, len(tbl.Types)+len(right.Types))
	for k, v := range tbl.Types {
		types[k] = v
	}
	for _, c := range right.Columns {
		if containsString(p.JoinKeys, c) {
			continue
		}
		name := c
		if tbl.HasColumn(name) {
			name = name + "_right"
		}
		rightName[c] = name
		columns = append(columns, name)
		types[name] = right.TypeOf(c)
	}

	index := make(map[string][]int)
	for i, row := range right.Rows {
		key, ok := joinKey(row, p.JoinKeys)
		if !ok {
			continue
		}
		index[key] = append(index[key], i)
	}

	out := table.New(columns, types)
	rightMatched := make(map[int]bool)

	for _, row := range tbl.Rows {
		key, ok := joinKey(row, p.JoinKeys)
		matches := index[key]
		if ok && len(matches) > 0 {
			for _, ri := range matches {
				rightMatched[ri] = true
				merged := row.Clone()
				for c, name := range rightName {
					merged[name] = right.Rows[ri].Cell(c)
				}
				out.AppendRow(merged)
			}
			continue
		}
		if p.JoinType == workflow.JoinLeft || p.JoinType == workflow.JoinOuter {
			merged := row.Clone()
			for _, name := range rightName {
				merged[name] = table.NewMissingValue()
			}
			out.AppendRow(merged)
		}
	}

	if p.JoinType == workflow.JoinOuter {
		for ri, row := range right.Rows {
			if rightMatched[ri] {
				continue
			}
			merged := make(table.Row, len(columns))
			for _, key := range p.JoinKeys {
				merged[key] = row.Cell(key)
			}
			for c, name := range rightName {
				merged[name] = row.Cell(c)
			}
			out.AppendRow(merged)
		}
	}
	return out, nil
}

// joinKey builds a composite lookup key from the join columns. A
// missing cell poisons the key because missing never equals missing.
func joinKey(row table.Row, keys []string) (string, bool) {
	var b strings.Builder
	for _, k := range keys {
		v := row.Cell(k)
		if v.IsMissing {
			return "", false
		}
		b.WriteString(v.Render())
		b.WriteByte(0x1f)
	}
	return b.String(), true
}

// applySort is stable; equal keys keep their input order. Missing
// values sort after every present value regardless of direction.
func applySort(tbl *table.Table, p *workflow.SortParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("sort parameters missing")
	}
	if len(p.Keys) == 0 {
		return nil, runtimeErr("sort requires at least one key")
	}
	for _, key := range p.Keys {
		if err := requireColumn(tbl, key.Column); err != nil {
			return nil, err
		}
	}

	out := tbl.Clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		for _, key := range p.Keys {
			a, b := out.Rows[i].Cell(key.Column), out.Rows[j].Cell(key.Column)
			switch {
			case a.IsMissing && b.IsMissing:
				continue
			case a.IsMissing:
				return false
			case b.IsMissing:
				return true
			}
			cmp := table.Compare(a, b)
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out, nil
}

// applyGroupAggregate collapses the table to one row per distinct key
// tuple. Missing cells are excluded from sum, mean, min and max; count
// counts rows, missing included. Output rows are ordered by the
// rendered key tuple so runs are reproducible.
func applyGroupAggregate(tbl *table.Table, p *workflow.GroupAggregateParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("groupAggregate parameters missing")
	}
	if len(p.Keys) == 0 || len(p.Aggregates) == 0 {
		return nil, runtimeErr("groupAggregate requires keys and aggregates")
	}
	for _, key := range p.Keys {
		if err := requireColumn(tbl, key); err != nil {
			return nil, err
		}
	}
	for _, agg := range p.Aggregates {
		if err := requireColumn(tbl, agg.Column); err != nil {
			return nil, err
		}
	}

	type bucket struct {
		key    string
		sample table.Row
		rows   []table.Row
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)
	for _, row := range tbl.Rows {
		var b strings.Builder
		for _, k := range p.Keys {
			b.WriteString(row.Cell(k).String())
			b.WriteByte(0x1f)
		}
		key := b.String()
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{key: key, sample: row}
			buckets[key] = bk
			order = append(order, key)
		}
		bk.rows = append(bk.rows, row)
	}
	sort.Strings(order)

	columns := append([]string(nil), p.Keys...)
	types := make(map[string]table.ValueType, len(columns)+len(p.Aggregates))
	for _, k := range p.Keys {
		types[k] = tbl.TypeOf(k)
	}
	for _, agg := range p.Aggregates {
		name := agg.OutputName()
		columns = append(columns, name)
		if agg.Func == workflow.AggMin || agg.Func == workflow.AggMax {
			types[name] = tbl.TypeOf(agg.Column)
		} else {
			types[name] = table.TypeNumber
		}
	}

	out := table.New(columns, types)
	for _, key := range order {
		bk := buckets[key]
		row := make(table.Row, len(columns))
		for _, k := range p.Keys {
			row[k] = bk.sample.Cell(k)
		}
		for _, agg := range p.Aggregates {
			v, err := aggregate(bk.rows, agg)
			if err != nil {
				return nil, err
			}
			row[agg.OutputName()] = v
		}
		out.AppendRow(row)
	}
	return out, nil
}

// aggregate computes one summary over a bucket's rows
func aggregate(rows []table.Row, agg workflow.Aggregate) (table.Value, error) {
	if agg.Func == workflow.AggCount {
		return table.NewNumberValue(float64(len(rows))), nil
	}

	if agg.Func == workflow.AggMin || agg.Func == workflow.AggMax {
		var best table.Value
		found := false
		for _, row := range rows {
			v := row.Cell(agg.Column)
			if v.IsMissing {
				continue
			}
			if !found {
				best, found = v, true
				continue
			}
			cmp := table.Compare(v, best)
			if (agg.Func == workflow.AggMin && cmp < 0) || (agg.Func == workflow.AggMax && cmp > 0) {
				best = v
			}
		}
		if !found {
			return table.NewMissingValue(), nil
		}
		return best, nil
	}

	data := make(stats.Float64Data, 0, len(rows))
	for _, row := range rows {
		v := row.Cell(agg.Column)
		if v.IsMissing || !v.IsNumber() {
			continue
		}
		data = append(data, v.AsFloat64())
	}
	if len(data) == 0 {
		return table.NewMissingValue(), nil
	}

	var result float64
	var err error
	switch agg.Func {
	case workflow.AggSum:
		result, err = data.Sum()
	case workflow.AggMean:
		result, err = data.Mean()
	default:
		return table.Value{}, runtimeErr("unknown aggregate %q", agg.Func)
	}
	if err != nil {
		return table.Value{}, runtimeErr("aggregate %s over %s: %v", agg.Func, agg.Column, err)
	}
	return table.NewNumberValue(result), nil
}

// applyDedupe keeps the first row of each identity-column tuple.
// Missing cells are part of the identity, so two rows both missing a
// cell still collapse.
func applyDedupe(tbl *table.Table, p *workflow.DedupeParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("dedupe parameters missing")
	}
	identity := p.Columns
	if len(identity) == 0 {
		identity = tbl.Columns
	}
	for _, col := range identity {
		if err := requireColumn(tbl, col); err != nil {
			return nil, err
		}
	}

	out := table.New(tbl.Columns, tbl.Types)
	seen := make(map[string]bool, len(tbl.Rows))
	for _, row := range tbl.Rows {
		var b strings.Builder
		for _, col := range identity {
			b.WriteString(row.Cell(col).String())
			b.WriteByte(0x1f)
		}
		key := b.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out.AppendRow(row.Clone())
	}
	return out, nil
}

func applyDropColumns(tbl *table.Table, p *workflow.DropColumnsParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("dropColumns parameters missing")
	}
	if len(p.Columns) == 0 {
		return nil, runtimeErr("dropColumns requires at least one column")
	}
	for _, col := range p.Columns {
		if err := requireColumn(tbl, col); err != nil {
			return nil, err
		}
	}

	kept := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		if !containsString(p.Columns, c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, runtimeErr("cannot drop every column")
	}
	return tbl.Project(kept)
}

// applyFillMissing replaces missing cells in one column. Forward and
// backward fill propagate the nearest present value in row order; mean
// fill uses the column's present numbers; value fill parses the
// literal against the column type.
func applyFillMissing(tbl *table.Table, p *workflow.FillMissingParams) (*table.Table, error) {
	if p == nil {
		return nil, runtimeErr("fillMissing parameters missing")
	}
	if err := requireColumn(tbl, p.Column); err != nil {
		return nil, err
	}

	out := tbl.Clone()
	switch p.Method {
	case workflow.FillValue:
		fill, err := table.ParseLiteral(p.Value, tbl.TypeOf(p.Column))
		if err != nil {
			return nil, runtimeErr("fillMissing: %v", err)
		}
		for _, row := range out.Rows {
			if row.Cell(p.Column).IsMissing {
				row[p.Column] = fill
			}
		}

	case workflow.FillForward:
		last := table.NewMissingValue()
		for _, row := range out.Rows {
			if v := row.Cell(p.Column); v.IsMissing {
				row[p.Column] = last
			} else {
				last = v
			}
		}

	case workflow.FillBackward:
		next := table.NewMissingValue()
		for i := len(out.Rows) - 1; i >= 0; i-- {
			if v := out.Rows[i].Cell(p.Column); v.IsMissing {
				out.Rows[i][p.Column] = next
			} else {
				next = v
			}
		}

	case workflow.FillMean:
		if tbl.TypeOf(p.Column) != table.TypeNumber {
			return nil, runtimeErr("mean fill requires a number column")
		}
		data := make(stats.Float64Data, 0, len(out.Rows))
		for _, row := range out.Rows {
			if v := row.Cell(p.Column); !v.IsMissing && v.IsNumber() {
				data = append(data, v.AsFloat64())
			}
		}
		if len(data) > 0 {
			mean, err := data.Mean()
			if err != nil {
				return nil, runtimeErr("fillMissing mean: %v", err)
			}
			fill := table.NewNumberValue(mean)
			for _, row := range out.Rows {
				if row.Cell(p.Column).IsMissing {
					row[p.Column] = fill
				}
			}
		}

	default:
		return nil, runtimeErr("unknown fill method %q", p.Method)
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
