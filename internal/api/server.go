// Package api exposes the notebook services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ainotebook/internal/auth"
	"ainotebook/internal/chat"
	"ainotebook/internal/config"
	"ainotebook/internal/ingest"
	"ainotebook/internal/logging"
	"ainotebook/internal/notebook"
)

// Deps are the services behind the routes. Clipper may be nil, which
// disables POST /notes/clip.
type Deps struct {
	Auth     *auth.Service
	Notebook *notebook.Service
	Chat     *chat.Service
	Clipper  *ingest.Clipper
	Hub      *Hub
	Registry *prometheus.Registry
	Logger   *logging.Logger
}

// Server holds the echo instance and its dependencies
type Server struct {
	echo     *echo.Echo
	auth     *auth.Service
	notes    *notebook.Service
	chat     *chat.Service
	clipper  *ingest.Clipper
	hub      *Hub
	registry *prometheus.Registry
	config   config.ServerConfig
	logger   *logging.Logger
}

// NewServer builds the router. The hub and registry are created when nil.
func NewServer(deps Deps, cfg config.ServerConfig) (*Server, error) {
	if deps.Auth == nil || deps.Notebook == nil || deps.Chat == nil {
		return nil, errors.New("auth, notebook and chat services are required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger.Named("ws"))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	s := &Server{
		echo:     e,
		auth:     deps.Auth,
		notes:    deps.Notebook,
		chat:     deps.Chat,
		clipper:  deps.Clipper,
		hub:      deps.Hub,
		registry: deps.Registry,
		config:   cfg,
		logger:   deps.Logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(deps.Logger))
	e.Use(newHTTPMetrics(deps.Registry).middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)

	requireAuth := auth.RequireAuth(s.auth.Tokens())

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/refresh", s.handleRefresh)
	authGroup.GET("/me", s.handleMe, requireAuth)
	authGroup.POST("/logout", s.handleLogout, requireAuth)

	notes := api.Group("/notes", requireAuth)
	notes.GET("", s.handleListNotes)
	notes.POST("", s.handleCreateNote)
	notes.POST("/clip", s.handleClipNote)
	notes.GET("/:id", s.handleGetNote)
	notes.PUT("/:id", s.handleUpdateNote)
	notes.DELETE("/:id", s.handleDeleteNote)
	notes.POST("/:id/favorite", s.handleToggleFavorite)
	notes.POST("/:id/archive", s.handleToggleArchive)

	notebooks := api.Group("/notebooks", requireAuth)
	notebooks.GET("", s.handleListNotebooks)
	notebooks.POST("", s.handleCreateNotebook)
	notebooks.GET("/:id", s.handleGetNotebook)
	notebooks.PUT("/:id", s.handleUpdateNotebook)
	notebooks.DELETE("/:id", s.handleDeleteNotebook)

	tags := api.Group("/tags", requireAuth)
	tags.GET("", s.handleListTags)
	tags.POST("", s.handleCreateTag)
	tags.PUT("/:id", s.handleRenameTag)
	tags.DELETE("/:id", s.handleDeleteTag)

	users := api.Group("/users", requireAuth)
	users.GET("/stats", s.handleStats)
	users.PUT("/profile", s.handleUpdateProfile)
	users.PUT("/password", s.handleChangePassword)
	users.DELETE("/me", s.handleDeleteAccount)
	users.GET("/export", s.handleExport)

	api.GET("/search", s.handleSearch, requireAuth)

	chatGroup := api.Group("/chat", requireAuth)
	chatGroup.POST("/message", s.handleSendMessage)
	chatGroup.GET("/models", s.handleModels)
	chatGroup.GET("/configs", s.handleListConfigs)
	chatGroup.POST("/configs", s.handleCreateConfig)
	chatGroup.GET("/configs/stats", s.handleConfigStats)
	chatGroup.POST("/configs/test", s.handleTestConfig)
	chatGroup.PUT("/configs/:id", s.handleUpdateConfig)
	chatGroup.DELETE("/configs/:id", s.handleDeleteConfig)

	api.GET("/ws", s.handleWebSocket, auth.RequireAuthQuery(s.auth.Tokens()))
}

// HealthResponse is the response body for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "OK", Message: "AI Notebook Backend is running"})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the hub and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:         s.config.Addr(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.logger.WithContext("addr", srv.Addr).Info("starting http server")
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
