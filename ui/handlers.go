package ui

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"tabflow/domain/core"
	"tabflow/domain/workflow"
	"tabflow/internal/report"
)

func (a *App) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, core.NewMalformedDocumentError(err.Error()))
		return
	}
	if req.Name == "" {
		a.writeError(w, core.NewValidationError("workflow", "name cannot be empty"))
		return
	}

	wf := workflow.New(req.Name)
	a.mu.Lock()
	a.workflows[wf.ID] = wf
	a.mu.Unlock()

	a.writeJSON(w, http.StatusCreated, wf)
}

func (a *App) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	type summary struct {
		ID      core.WorkflowID `json:"id"`
		Name    string          `json:"name"`
		Groups  int             `json:"groups"`
		Actions int             `json:"actions"`
	}
	a.mu.RLock()
	out := make([]summary, 0, len(a.workflows))
	for _, wf := range a.workflows {
		out = append(out, summary{ID: wf.ID, Name: wf.Name, Groups: len(wf.Groups), Actions: len(wf.Actions)})
	}
	a.mu.RUnlock()
	a.writeJSON(w, http.StatusOK, out)
}

func (a *App) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, wf)
}

func (a *App) handleDefineGroup(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	var req struct {
		Name      string   `json:"name"`
		Files     []string `json:"files"`
		SheetName string   `json:"sheet_name"`
		HeaderRow int      `json:"header_row"`
		HeaderCol int      `json:"header_col"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, core.NewMalformedDocumentError(err.Error()))
		return
	}

	group, err := a.service.DefineGroup(r.Context(), req.Name, a.resolvePaths(req.Files), req.SheetName, req.HeaderRow, req.HeaderCol)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.mu.Lock()
	err = wf.AddGroup(group)
	a.mu.Unlock()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, group)
}

func (a *App) handleRebind(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	var req struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, core.NewMalformedDocumentError(err.Error()))
		return
	}

	groupID := core.GroupID(chi.URLParam(r, "groupID"))
	a.mu.Lock()
	err := a.service.Rebind(r.Context(), wf, groupID, a.resolvePaths(req.Files))
	a.mu.Unlock()
	if err != nil {
		a.writeError(w, err)
		return
	}

	group, _ := wf.GroupByID(groupID)
	a.writeJSON(w, http.StatusOK, group)
}

func (a *App) handleProjectedSchema(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	a.mu.RLock()
	schema, err := wf.ProjectedSchema(core.GroupID(chi.URLParam(r, "groupID")))
	a.mu.RUnlock()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, schema)
}

// handleAddAction accepts the same flat action object the document
// format uses, validates it against the projected schema, and appends.
func (a *App) handleAddAction(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	var action workflow.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		a.writeError(w, core.NewMalformedDocumentError(err.Error()))
		return
	}

	a.mu.Lock()
	err := wf.AddAction(action)
	a.mu.Unlock()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, action)
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	var req struct {
		// ExportPath, when set, writes the result table after the run
		ExportPath string `json:"export_path"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, core.NewMalformedDocumentError(err.Error()))
			return
		}
	}

	a.mu.RLock()
	result, err := a.engine.Run(r.Context(), wf, core.GroupID(chi.URLParam(r, "groupID")))
	a.mu.RUnlock()
	if err != nil {
		a.writeError(w, err)
		return
	}

	exported := ""
	if req.ExportPath != "" {
		path := filepath.Join(a.cfg.Paths.ExportDir, filepath.Base(req.ExportPath))
		if err := a.writer.WriteTable(r.Context(), result.Table, path); err != nil {
			a.writeError(w, err)
			return
		}
		exported = path
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   result.RunID,
		"group_id": result.GroupID,
		"rows":     result.Table.RowCount(),
		"columns":  result.Table.Columns,
		"log":      result.Log,
		"exported": exported,
	})
}

// handleReport runs the group and returns the rendered HTML report
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}
	groupID := core.GroupID(chi.URLParam(r, "groupID"))

	a.mu.RLock()
	group, found := wf.GroupByID(groupID)
	var groupName string
	if found {
		groupName = group.Name
	}
	result, err := a.engine.Run(r.Context(), wf, groupID)
	a.mu.RUnlock()
	if err != nil {
		a.writeError(w, err)
		return
	}

	md := report.RunReport{
		WorkflowName: wf.Name,
		GroupName:    groupName,
		Result:       result,
	}.Render()

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	page := markdown.ToHTML([]byte(md), p, renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (a *App) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	wf, ok := a.openWorkflow(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	a.mu.RLock()
	err := a.store.Save(r.Context(), wf)
	a.mu.RUnlock()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"saved": wf.Name})
}

func (a *App) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := a.store.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	a.writeJSON(w, http.StatusOK, names)
}

// handleOpenTemplate loads a stored template into the workspace. The
// caller must rebind each group to fresh files before running; the
// response flags any action kinds this build cannot execute.
func (a *App) handleOpenTemplate(w http.ResponseWriter, r *http.Request) {
	wf, err := a.store.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.mu.Lock()
	a.workflows[wf.ID] = wf
	a.mu.Unlock()

	a.writeJSON(w, http.StatusOK, map[string]any{
		"workflow":          wf,
		"unsupported_kinds": wf.UnsupportedKinds(),
	})
}

func (a *App) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolvePaths anchors relative source paths under the data directory
func (a *App) resolvePaths(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		if filepath.IsAbs(f) {
			out[i] = f
			continue
		}
		out[i] = filepath.Join(a.cfg.Paths.DataDir, f)
	}
	return out
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encoding response: %v", err)
	}
}

// writeError maps domain errors onto HTTP status codes
func (a *App) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case core.IsNotFoundError(err):
		status = http.StatusNotFound
	case core.IsSchemaMismatch(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrCycle):
		status = http.StatusConflict
	case core.IsMalformedDocument(err):
		status = http.StatusBadRequest
	}
	a.logger.Warn("request failed: %v", err)
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
