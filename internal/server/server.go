// Package server is the HTTP surface: public tracking endpoints plus
// the authenticated admin API.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/config"
	"github.com/awarenow/phishsim/internal/metrics"
	"github.com/awarenow/phishsim/internal/repository"
	"github.com/awarenow/phishsim/internal/spool"
	"github.com/awarenow/phishsim/internal/template"
	"github.com/awarenow/phishsim/internal/tracking"
)

// Deps are the wired collaborators of the HTTP server.
type Deps struct {
	Service  *campaign.Service
	Tracking *tracking.Handlers
	Engine   *template.Engine
	Failures *spool.Spool
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Version  string
}

// Server is the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger
	startTime  time.Time

	service  *campaign.Service
	tracking *tracking.Handlers
	engine   *template.Engine
	failures *spool.Spool
	metrics  *metrics.Metrics
	version  string

	campaigns  *repository.CampaignRepository
	recipients *repository.RecipientRepository
	events     *repository.EventRepository
	templates  *repository.TemplateRepository
	groups     *repository.GroupRepository
}

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, database *sql.DB, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		logger:     deps.Logger.With("component", "server"),
		startTime:  time.Now(),
		service:    deps.Service,
		tracking:   deps.Tracking,
		engine:     deps.Engine,
		failures:   deps.Failures,
		metrics:    deps.Metrics,
		version:    deps.Version,
		campaigns:  repository.NewCampaignRepository(database),
		recipients: repository.NewRecipientRepository(database),
		events:     repository.NewEventRepository(database),
		templates:  repository.NewTemplateRepository(database),
		groups:     repository.NewGroupRepository(database),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(chimiddleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	// Public tracking endpoints; no auth, tokens are the credential.
	s.tracking.Routes(s.router)

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", s.handleCreateCampaign)
			r.Get("/", s.handleListCampaigns)
			r.Get("/{id}", s.handleGetCampaign)
			r.Delete("/{id}", s.handleDeleteCampaign)
			r.Post("/{id}/publish-send", s.handleSendCampaign)
			r.Get("/{id}/report", s.handleCampaignReport)
			r.Get("/{id}/recipients", s.handleCampaignRecipients)
			r.Get("/{id}/events", s.handleCampaignEvents)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Post("/{id}/preview", s.handlePreviewTemplate)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", s.handleCreateGroup)
			r.Get("/", s.handleListGroups)
			r.Get("/{id}/members", s.handleGroupMembers)
			r.Post("/{id}/members", s.handleAddGroupMember)
		})

		r.Route("/failures", func(r chi.Router) {
			r.Get("/", s.handleListFailures)
			r.Delete("/{id}", s.handleDeleteFailure)
		})
	})
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
