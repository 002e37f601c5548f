package app

import (
	"context"
	"fmt"

	"tabflow/domain/core"
	"tabflow/domain/table"
	"tabflow/domain/workflow"
	"tabflow/internal/coerce"
	"tabflow/ports"
)

// schemaSampleSize caps how many rows feed type inference per column
const schemaSampleSize = 500

// WorkflowService owns group definition and template rebinding. Both
// need the ingest port; everything purely structural lives on the
// workflow domain types themselves.
type WorkflowService struct {
	reader     ports.TabularReader
	coercer    *coerce.Coercer
	sampleRows int
}

// NewWorkflowService creates a service over the given ingest adapter
func NewWorkflowService(reader ports.TabularReader) *WorkflowService {
	return &WorkflowService{
		reader:     reader,
		coercer:    coerce.New(coerce.DefaultConfig()),
		sampleRows: schemaSampleSize,
	}
}

// WithSampleRows overrides how many rows feed schema inference
func (s *WorkflowService) WithSampleRows(n int) *WorkflowService {
	if n > 0 {
		s.sampleRows = n
	}
	return s
}

// DefineGroup reads header metadata from the first file, infers column
// types from it, and validates every other file's header against the
// resulting schema. Files that disagree on column names are rejected,
// never silently merged.
func (s *WorkflowService) DefineGroup(ctx context.Context, name string, files []string, sheet string, headerRow, headerCol int) (workflow.Group, error) {
	if name == "" {
		return workflow.Group{}, core.NewValidationError("group", "name cannot be empty")
	}
	if len(files) == 0 {
		return workflow.Group{}, core.NewValidationError("group", "at least one source file is required")
	}

	schema, err := s.resolveSchema(ctx, files, sheet, headerRow, headerCol)
	if err != nil {
		return workflow.Group{}, err
	}

	return workflow.Group{
		ID:          core.GroupID(core.NewID()),
		Name:        name,
		SheetName:   sheet,
		HeaderRow:   headerRow,
		HeaderCol:   headerCol,
		SourceFiles: append([]string(nil), files...),
		Schema:      schema,
	}, nil
}

// Rebind swaps the underlying files of a group referenced by a loaded
// template while keeping all action definitions, as long as the new
// files' schema still satisfies every column reference the workflow
// records for that group.
func (s *WorkflowService) Rebind(ctx context.Context, w *workflow.Workflow, groupID core.GroupID, files []string) error {
	group, ok := w.GroupByID(groupID)
	if !ok {
		return core.NewInvalidReferenceError("group", groupID.String())
	}
	if len(files) == 0 {
		return core.NewValidationError("rebind", "at least one source file is required")
	}

	schema, err := s.resolveSchema(ctx, files, group.SheetName, group.HeaderRow, group.HeaderCol)
	if err != nil {
		return err
	}
	if err := w.ValidateAgainstSchema(groupID, schema); err != nil {
		return err
	}

	group.SourceFiles = append([]string(nil), files...)
	group.Schema = schema
	return nil
}

// resolveSchema infers the column contract from the first file and
// checks the remaining files against it
func (s *WorkflowService) resolveSchema(ctx context.Context, files []string, sheet string, headerRow, headerCol int) (table.Schema, error) {
	headers, rows, err := s.reader.ReadTable(ctx, files[0], sheet, headerRow, headerCol)
	if err != nil {
		return table.Schema{}, fmt.Errorf("reading %s: %w", files[0], err)
	}

	types := make(map[string]table.ValueType, len(headers))
	for colIdx, name := range headers {
		sample := sampleColumn(rows, colIdx, s.sampleRows)
		analysis := s.coercer.AnalyzeDistribution(sample)
		types[name] = analysis.RecommendedType
	}
	schema := table.NewSchema(headers, types)

	for _, file := range files[1:] {
		otherHeaders, _, err := s.reader.ReadTable(ctx, file, sheet, headerRow, headerCol)
		if err != nil {
			return table.Schema{}, fmt.Errorf("reading %s: %w", file, err)
		}
		if err := schema.SameNames(otherHeaders); err != nil {
			return table.Schema{}, core.NewSchemaMismatchError(file, err.Error())
		}
	}
	return schema, nil
}

// sampleColumn takes evenly distributed cells across the data rows
func sampleColumn(rows [][]string, colIdx, limit int) []string {
	if len(rows) <= limit {
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			if colIdx < len(row) {
				out = append(out, row[colIdx])
			}
		}
		return out
	}
	out := make([]string, 0, limit)
	step := float64(len(rows)) / float64(limit)
	for i := 0; i < limit; i++ {
		idx := int(float64(i) * step)
		if idx < len(rows) && colIdx < len(rows[idx]) {
			out = append(out, rows[idx][colIdx])
		}
	}
	return out
}
