// Package api exposes the HTTP surface: project and template management,
// target search, batch generation with SSE progress, tracker and credit
// queries.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/config"
	"github.com/applydraft/internal/credits"
	"github.com/applydraft/internal/discovery"
	"github.com/applydraft/internal/jobqueue"
	"github.com/applydraft/internal/orchestrator"
	"github.com/applydraft/internal/project"
	"github.com/applydraft/internal/render"
	"github.com/applydraft/internal/template"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int

	cfg      *config.Config
	projects *project.Store
	credits  *credits.Store
	settings *SettingsStore
	gen      ai.Generator
	searcher *discovery.Searcher
	synth    *template.Synthesizer
	renderer orchestrator.PDFRenderer
	queue    *jobqueue.JobQueue
}

// Deps carries the wired components the server serves.
type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	Gen      ai.Generator
	Renderer *render.Renderer // nil when no browser is installed
	Queue    *jobqueue.JobQueue
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if deps.Config.Server.CORSFrom != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{deps.Config.Server.CORSFrom},
		}))
	} else {
		e.Use(middleware.CORS())
	}

	server := &Server{
		echo:     e,
		port:     deps.Config.Server.Port,
		cfg:      deps.Config,
		projects: project.NewStore(deps.Config.Server.DataDir),
		credits:  credits.NewStore(deps.DB),
		settings: NewSettingsStore(deps.DB),
		gen:      deps.Gen,
		searcher: discovery.NewSearcher(deps.Gen),
		synth:    template.NewSynthesizer(deps.Gen),
		queue:    deps.Queue,
	}
	if deps.Renderer != nil {
		server.renderer = deps.Renderer
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group, everything behind bearer auth
	v1 := s.echo.Group("/api/v1", RequireAuth())

	// Projects
	v1.GET("/projects", s.listProjects)
	v1.POST("/projects", s.createProject)
	v1.GET("/projects/:project", s.getProject)
	v1.PUT("/projects/:project", s.updateProject)
	v1.DELETE("/projects/:project", s.deleteProject)
	v1.GET("/projects/:project/instructions", s.getInstructions)
	v1.PUT("/projects/:project/instructions", s.putInstructions)
	v1.POST("/projects/:project/instructions/generate", s.generateInstructions)
	v1.POST("/projects/:project/doctypes", s.addDocumentType)
	v1.DELETE("/projects/:project/doctypes/:type", s.removeDocumentType)

	// Templates
	v1.GET("/projects/:project/templates/:type", s.getTemplate)
	v1.PUT("/projects/:project/templates/:type", s.putTemplate)
	v1.POST("/projects/:project/templates/:type/examples", s.addExample)
	v1.GET("/projects/:project/templates/:type/examples", s.listExamples)
	v1.DELETE("/projects/:project/templates/:type/examples/:filename", s.removeExample)
	v1.POST("/projects/:project/templates/:type/synthesize", s.synthesizeTemplate)
	v1.POST("/projects/:project/templates/:type/preview", s.previewTemplate)

	// Materials
	v1.POST("/projects/:project/materials", s.uploadMaterial)
	v1.GET("/projects/:project/materials", s.listMaterials)
	v1.DELETE("/projects/:project/materials/:filename", s.removeMaterial)

	// Search and generation
	v1.POST("/projects/:project/search", s.searchTargets)
	v1.GET("/projects/:project/targets", s.getTargets)
	v1.POST("/projects/:project/generate", s.generateBatch)
	v1.POST("/projects/:project/generate/stream", s.generateBatchStream)
	v1.POST("/projects/:project/generate/queue", s.queueBatch)

	// Tracker and usage
	v1.GET("/projects/:project/tracker", s.getTracker)
	v1.GET("/projects/:project/usage", s.getUsage)

	// Credits and settings
	v1.GET("/credits", s.getCredits)
	v1.GET("/credits/history", s.getCreditHistory)
	v1.POST("/credits/add", s.addCredits)
	v1.GET("/settings", s.getSettings)
	v1.PUT("/settings", s.putSettings)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// orchestratorFor builds the batch pipeline bound to the user's mail
// provider. Settings are loaded per request, never cached.
func (s *Server) orchestratorFor(c echo.Context) (*orchestrator.Orchestrator, error) {
	user := CurrentUser(c)
	provider, _, err := s.settings.ProviderFor(c.Request().Context(), user.ID, s.cfg)
	if err != nil {
		return nil, err
	}
	return &orchestrator.Orchestrator{
		Gen:      s.gen,
		Store:    s.projects,
		Renderer: s.renderer,
		Provider: provider,
		Subjects: s.searcher,
		Charger:  s.credits,
	}, nil
}
