package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
	"tabflow/internal"
	"tabflow/internal/coerce"
	"tabflow/ports"
)

// runAllConcurrency bounds how many groups execute in parallel
const runAllConcurrency = 4

// LogEntry records the outcome of a single action during a run. Failed
// actions carry an Error string; their RowsAfter equals RowsBefore
// because the table passes through unchanged.
type LogEntry struct {
	ActionIndex  int                 `json:"action_index"`
	Kind         workflow.ActionKind `json:"action_kind"`
	RowsBefore   int                 `json:"rows_before"`
	RowsAfter    int                 `json:"rows_after"`
	CellsCoerced int                 `json:"cells_coerced,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Failed reports whether the action was skipped
func (e LogEntry) Failed() bool { return e.Error != "" }

// ExecutionResult is the full outcome of running one group's pipeline
type ExecutionResult struct {
	RunID   core.RunID   `json:"run_id"`
	GroupID core.GroupID `json:"group_id"`
	Table   *table.Table `json:"-"`
	Log     []LogEntry   `json:"log"`
}

// Failures returns the log entries for actions that errored
func (r *ExecutionResult) Failures() []LogEntry {
	var out []LogEntry
	for _, e := range r.Log {
		if e.Failed() {
			out = append(out, e)
		}
	}
	return out
}

// Engine executes workflows. It is stateless between runs; each Run
// call builds its own memo so merge prerequisites execute once per run.
type Engine struct {
	reader      ports.TabularReader
	coercer     *coerce.Coercer
	logger      *internal.Logger
	concurrency int
}

// NewEngine creates an engine over the given ingest adapter
func NewEngine(reader ports.TabularReader, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.NewLogger(internal.LevelInfo)
	}
	return &Engine{
		reader:      reader,
		coercer:     coerce.New(coerce.DefaultConfig()),
		logger:      logger,
		concurrency: runAllConcurrency,
	}
}

// WithConcurrency overrides the RunAll parallelism bound
func (e *Engine) WithConcurrency(n int) *Engine {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// Run executes every action targeting the given group, in workflow
// order, and returns the final table plus a per-action log. Actions
// that fail at runtime are logged and skipped; the run itself only
// errors when the group's own source data cannot be loaded.
func (e *Engine) Run(ctx context.Context, w *workflow.Workflow, groupID core.GroupID) (*ExecutionResult, error) {
	r := &run{engine: e, wf: w, memo: make(map[core.GroupID]*ExecutionResult)}
	return r.execute(ctx, groupID)
}

// RunAll executes every group in the workflow concurrently. Each group
// gets an isolated memo; execution is pure, so a merge source shared by
// two consumers costs a repeat run rather than a lock.
func (e *Engine) RunAll(ctx context.Context, w *workflow.Workflow) (map[core.GroupID]*ExecutionResult, error) {
	results := make([]*ExecutionResult, len(w.Groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range w.Groups {
		i := i
		g.Go(func() error {
			res, err := e.Run(ctx, w, w.Groups[i].ID)
			if err != nil {
				return fmt.Errorf("group %q: %w", w.Groups[i].Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[core.GroupID]*ExecutionResult, len(results))
	for _, res := range results {
		out[res.GroupID] = res
	}
	return out, nil
}

// run carries the per-invocation state of one engine execution
type run struct {
	engine *Engine
	wf     *workflow.Workflow
	memo   map[core.GroupID]*ExecutionResult
}

func (r *run) execute(ctx context.Context, groupID core.GroupID) (*ExecutionResult, error) {
	if cached, ok := r.memo[groupID]; ok {
		return cached, nil
	}

	group, ok := r.wf.GroupByID(groupID)
	if !ok {
		return nil, core.NewInvalidReferenceError("group", groupID.String())
	}

	tbl, err := r.loadGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{
		RunID:   core.RunID(core.NewID()),
		GroupID: groupID,
	}

	for i, action := range r.wf.Actions {
		if action.GroupID != groupID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := LogEntry{
			ActionIndex: i,
			Kind:        action.Kind,
			RowsBefore:  tbl.RowCount(),
		}

		if !workflow.IsKnownKind(action.Kind) {
			entry.RowsAfter = tbl.RowCount()
			entry.Error = fmt.Sprintf("unsupported action kind %q", action.Kind)
			result.Log = append(result.Log, entry)
			continue
		}

		next, coerced, err := r.apply(ctx, tbl, action)
		if err != nil {
			entry.RowsAfter = tbl.RowCount()
			entry.Error = err.Error()
			r.engine.logger.Warn("action %d (%s) on group %q failed: %v", i, action.Kind, group.Name, err)
		} else {
			tbl = next
			entry.RowsAfter = tbl.RowCount()
			entry.CellsCoerced = coerced
		}
		result.Log = append(result.Log, entry)
	}

	result.Table = tbl
	r.memo[groupID] = result
	r.engine.logger.Info("group %q executed: %d actions, %d rows out", group.Name, len(result.Log), tbl.RowCount())
	return result, nil
}

// loadGroup reads every source file of the group, checks its header
// against the recorded schema, and coerces cells to the schema types.
// Cells that refuse their column type load as the missing sentinel.
func (r *run) loadGroup(ctx context.Context, group *workflow.Group) (*table.Table, error) {
	tbl := table.New(group.Schema.Names(), group.Schema.Types())

	for _, file := range group.SourceFiles {
		headers, rows, err := r.engine.reader.ReadTable(ctx, file, group.SheetName, group.HeaderRow, group.HeaderCol)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		if err := group.Schema.SameNames(headers); err != nil {
			return nil, core.NewSchemaMismatchError(file, err.Error())
		}

		for _, raw := range rows {
			row := make(table.Row, len(headers))
			for colIdx, name := range headers {
				var cell string
				if colIdx < len(raw) {
					cell = raw[colIdx]
				}
				v, _ := r.engine.coercer.ToType(cell, group.Schema.TypeOf(name))
				row[name] = v
			}
			tbl.AppendRow(row)
		}
	}
	return tbl, nil
}
