package ui

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tabflow/adapters/excel"
	"tabflow/app"
	"tabflow/domain/core"
	"tabflow/domain/workflow"
	"tabflow/internal"
	"tabflow/internal/config"
	"tabflow/internal/store"
	"tabflow/ports"
)

// App is the HTTP application: an in-memory workspace of open
// workflows in front of the engine and the template store. Saved
// templates survive restarts; open workflows do not.
type App struct {
	router  *chi.Mux
	logger  *internal.Logger
	cfg     *config.Config
	service *app.WorkflowService
	engine  *app.Engine
	writer  ports.TableWriter
	store   ports.TemplateStore

	mu        sync.RWMutex
	workflows map[core.WorkflowID]*workflow.Workflow
}

// NewApp wires the application from configuration
func NewApp(cfg *config.Config) (*App, error) {
	logger := internal.NewLogger(internal.ParseLevel(cfg.Server.LogLevel))

	templates, err := store.NewFileStore(cfg.Paths.StoreDir)
	if err != nil {
		return nil, err
	}

	reader := excel.NewDataReader()
	a := &App{
		router:    chi.NewRouter(),
		logger:    logger,
		cfg:       cfg,
		service:   app.NewWorkflowService(reader).WithSampleRows(cfg.Engine.SchemaSampleRows),
		engine:    app.NewEngine(reader, logger).WithConcurrency(cfg.Engine.MaxConcurrentGroups),
		writer:    excel.NewTableWriter(),
		store:     templates,
		workflows: make(map[core.WorkflowID]*workflow.Workflow),
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *App) setupRoutes() {
	a.router.Route("/api", func(r chi.Router) {
		r.Post("/workflows", a.handleCreateWorkflow)
		r.Get("/workflows", a.handleListWorkflows)
		r.Get("/workflows/{id}", a.handleGetWorkflow)

		r.Post("/workflows/{id}/groups", a.handleDefineGroup)
		r.Post("/workflows/{id}/groups/{groupID}/rebind", a.handleRebind)
		r.Get("/workflows/{id}/groups/{groupID}/schema", a.handleProjectedSchema)

		r.Post("/workflows/{id}/actions", a.handleAddAction)

		r.Post("/workflows/{id}/groups/{groupID}/run", a.handleRun)
		r.Get("/workflows/{id}/groups/{groupID}/report", a.handleReport)

		r.Post("/workflows/{id}/save", a.handleSaveTemplate)
		r.Get("/templates", a.handleListTemplates)
		r.Post("/templates/{name}/open", a.handleOpenTemplate)
		r.Delete("/templates/{name}", a.handleDeleteTemplate)
	})
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := ":" + a.cfg.Server.Port
	a.logger.Info("starting tabflow server on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

// Handler exposes the router, used by tests
func (a *App) Handler() http.Handler {
	return a.router
}

// openWorkflow resolves one in-memory workflow by ID
func (a *App) openWorkflow(id string) (*workflow.Workflow, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.workflows[core.WorkflowID(id)]
	return w, ok
}
