package ports

import (
	"context"

	"tabflow/domain/table"
	"tabflow/domain/workflow"
)

// TabularReader supplies already-parsed rows for one sheet of one
// file. The core never decodes spreadsheet binary formats itself;
// adapters own that.
type TabularReader interface {
	// ReadTable returns the header row and the data rows below it,
	// honoring the group's sheet name and zero-based header offsets.
	ReadTable(ctx context.Context, path, sheet string, headerRow, headerCol int) ([]string, [][]string, error)
}

// TableWriter renders a final table to a spreadsheet or delimited
// file. Column order and types are final by the time it is called.
type TableWriter interface {
	WriteTable(ctx context.Context, tbl *table.Table, path string) error
}

// TemplateStore persists workflow documents as flat JSON files
type TemplateStore interface {
	Save(ctx context.Context, w *workflow.Workflow) error
	Load(ctx context.Context, name string) (*workflow.Workflow, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}
