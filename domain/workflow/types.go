package workflow

import (
	"tabflow/domain/core"
	"tabflow/domain/table"
)

// Group represents a named batch of same-schema tabular files processed
// together. Source files are live handles: they are re-supplied when a
// saved workflow is loaded, never persisted in the document.
type Group struct {
	ID          core.GroupID `json:"id"`
	Name        string       `json:"name"`
	SheetName   string       `json:"sheet_name"`
	HeaderRow   int          `json:"header_row"`
	HeaderCol   int          `json:"header_col"`
	SourceFiles []string     `json:"-"`
	Schema      table.Schema `json:"schema"`
}

// ActionKind identifies one transformation step type. The set is
// closed but extensible: documents carrying kinds this build does not
// know are preserved and flagged, not dropped.
type ActionKind string

const (
	KindRename         ActionKind = "rename"
	KindRetype         ActionKind = "retype"
	KindFilter         ActionKind = "filter"
	KindDerive         ActionKind = "derive"
	KindMerge          ActionKind = "merge"
	KindSort           ActionKind = "sort"
	KindGroupAggregate ActionKind = "groupAggregate"
	KindDedupe         ActionKind = "dedupe"
	KindDropColumns    ActionKind = "dropColumns"
	KindFillMissing    ActionKind = "fillMissing"
	KindAdjustColumn   ActionKind = "adjustColumn"
)

// KnownKinds lists every action kind this build executes
var KnownKinds = []ActionKind{
	KindRename, KindRetype, KindFilter, KindDerive, KindMerge,
	KindSort, KindGroupAggregate, KindDedupe, KindDropColumns,
	KindFillMissing, KindAdjustColumn,
}

// IsKnownKind reports whether k is executable by this build
func IsKnownKind(k ActionKind) bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// FilterOperator enumerates filter comparisons
type FilterOperator string

const (
	OpEqual    FilterOperator = "="
	OpNotEqual FilterOperator = "!="
	OpGreater  FilterOperator = ">"
	OpLess     FilterOperator = "<"
	OpContains FilterOperator = "contains"
	OpIsNull   FilterOperator = "isNull"
	OpIn       FilterOperator = "in"
)

// JoinType enumerates merge join semantics
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinOuter JoinType = "outer"
)

// AggregateFunc enumerates groupAggregate computations
type AggregateFunc string

const (
	AggSum   AggregateFunc = "sum"
	AggMean  AggregateFunc = "mean"
	AggCount AggregateFunc = "count"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// FillMethod enumerates fillMissing strategies
type FillMethod string

const (
	FillValue    FillMethod = "value"
	FillForward  FillMethod = "forward"
	FillBackward FillMethod = "backward"
	FillMean     FillMethod = "mean"
)

// Per-kind parameter structs. JSON fields sit flat inside the action
// object next to "kind" and "group_id".

type RenameParams struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type RetypeParams struct {
	Column     string          `json:"column"`
	TargetType table.ValueType `json:"target_type"`
}

type FilterParams struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

type DeriveParams struct {
	NewColumn string `json:"new_column"`
	Formula   string `json:"formula"`
}

type MergeParams struct {
	OtherGroupID core.GroupID `json:"other_group_id"`
	JoinKeys     []string     `json:"join_keys"`
	JoinType     JoinType     `json:"join_type"`
}

type SortKey struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

type SortParams struct {
	Keys []SortKey `json:"keys"`
}

type Aggregate struct {
	Column string        `json:"column"`
	Func   AggregateFunc `json:"func"`
	As     string        `json:"as,omitempty"`
}

type GroupAggregateParams struct {
	Keys       []string    `json:"keys"`
	Aggregates []Aggregate `json:"aggregates"`
}

type DedupeParams struct {
	// Columns selects the identity columns; empty means all columns
	Columns []string `json:"columns,omitempty"`
}

type DropColumnsParams struct {
	Columns []string `json:"columns"`
}

type FillMissingParams struct {
	Column string     `json:"column"`
	Method FillMethod `json:"method"`
	Value  string     `json:"value,omitempty"`
}

type AdjustColumnParams struct {
	Column  string `json:"column"`
	Formula string `json:"formula"`
}

// Action is one transformation step: a kind, the group whose evolving
// table it consumes, and kind-specific parameters (a tagged union --
// exactly one params pointer is set for known kinds).
type Action struct {
	Kind    ActionKind   `json:"kind"`
	GroupID core.GroupID `json:"group_id"`

	Rename         *RenameParams         `json:"-"`
	Retype         *RetypeParams         `json:"-"`
	Filter         *FilterParams         `json:"-"`
	Derive         *DeriveParams         `json:"-"`
	Merge          *MergeParams          `json:"-"`
	Sort           *SortParams           `json:"-"`
	GroupAggregate *GroupAggregateParams `json:"-"`
	Dedupe         *DedupeParams         `json:"-"`
	DropColumns    *DropColumnsParams    `json:"-"`
	FillMissing    *FillMissingParams    `json:"-"`
	AdjustColumn   *AdjustColumnParams   `json:"-"`

	// Extra preserves document fields this build does not understand,
	// including the whole parameter set of unknown kinds.
	Extra map[string]RawField `json:"-"`
}

// Workflow is an ordered, named, replayable sequence of actions bound
// to groups. Immutable once validated; the engine only reads it.
type Workflow struct {
	ID        core.WorkflowID `json:"id"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	CreatedAt core.Timestamp  `json:"created_at"`
	Groups    []Group         `json:"groups"`
	Actions   []Action        `json:"actions"`

	// Extra preserves unknown top-level document fields across a
	// load/store round trip.
	Extra map[string]RawField `json:"-"`
}

// DocumentVersion is written into new workflow documents
const DocumentVersion = "1.0"

// New creates an empty named workflow
func New(name string) *Workflow {
	return &Workflow{
		ID:        core.WorkflowID(core.NewID()),
		Name:      name,
		Version:   DocumentVersion,
		CreatedAt: core.Now(),
	}
}

// GroupByID resolves a group reference
func (w *Workflow) GroupByID(id core.GroupID) (*Group, bool) {
	for i := range w.Groups {
		if w.Groups[i].ID == id {
			return &w.Groups[i], true
		}
	}
	return nil, false
}

// GroupByName resolves a group by its label
func (w *Workflow) GroupByName(name string) (*Group, bool) {
	for i := range w.Groups {
		if w.Groups[i].Name == name {
			return &w.Groups[i], true
		}
	}
	return nil, false
}

// AddGroup registers a group definition
func (w *Workflow) AddGroup(g Group) error {
	if g.ID.IsEmpty() {
		return core.NewValidationError("group", "id cannot be empty")
	}
	if _, exists := w.GroupByID(g.ID); exists {
		return core.NewValidationError("group", "duplicate group id "+g.ID.String())
	}
	w.Groups = append(w.Groups, g)
	return nil
}

// ActionsFor returns the actions bound to one group, preserving the
// overall array order
func (w *Workflow) ActionsFor(id core.GroupID) []Action {
	var out []Action
	for _, a := range w.Actions {
		if a.GroupID == id {
			out = append(out, a)
		}
	}
	return out
}

// UnsupportedKinds lists the action kinds present in the workflow that
// this build cannot execute (loaded from a newer document)
func (w *Workflow) UnsupportedKinds() []ActionKind {
	seen := make(map[ActionKind]bool)
	var out []ActionKind
	for _, a := range w.Actions {
		if !IsKnownKind(a.Kind) && !seen[a.Kind] {
			seen[a.Kind] = true
			out = append(out, a.Kind)
		}
	}
	return out
}

// MergeEdges returns the group dependency edges induced by merge
// actions, from consumer group to the group it pulls in
func (w *Workflow) MergeEdges() map[core.GroupID][]core.GroupID {
	edges := make(map[core.GroupID][]core.GroupID)
	for _, a := range w.Actions {
		if a.Kind == KindMerge && a.Merge != nil {
			edges[a.GroupID] = append(edges[a.GroupID], a.Merge.OtherGroupID)
		}
	}
	return edges
}
