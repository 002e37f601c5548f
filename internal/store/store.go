// Package store persists workflow templates as flat JSON documents on
// local disk, one file per workflow, named after the workflow.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tabflow/domain/core"
	"tabflow/domain/workflow"
)

const templateExt = ".workflow.json"

// FileStore keeps each template as <dir>/<name>.workflow.json
type FileStore struct {
	dir string
}

// NewFileStore creates the backing directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create template directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the workflow document atomically: a temp file in the
// same directory followed by a rename, so a concurrent Load never
// observes a half-written template.
func (s *FileStore) Save(ctx context.Context, w *workflow.Workflow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.Name == "" {
		return core.NewValidationError("template", "workflow name cannot be empty")
	}

	data, err := workflow.Serialize(w)
	if err != nil {
		return fmt.Errorf("serializing workflow %q: %w", w.Name, err)
	}

	target := s.pathFor(w.Name)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing template: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storing template: %w", err)
	}
	return nil
}

// Load reads and validates one template by workflow name
func (s *FileStore) Load(ctx context.Context, name string) (*workflow.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, name)
		}
		return nil, fmt.Errorf("reading template %q: %w", name, err)
	}
	return workflow.Deserialize(data)
}

// List returns the names of all stored templates, sorted by filename
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), templateExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), templateExt))
	}
	return names, nil
}

// Delete removes one template by name
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, name)
		}
		return fmt.Errorf("deleting template %q: %w", name, err)
	}
	return nil
}

// pathFor sanitizes the workflow name into a flat filename; path
// separators cannot escape the store directory
func (s *FileStore) pathFor(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	return filepath.Join(s.dir, safe+templateExt)
}
