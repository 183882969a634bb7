// Package api provides the HTTP API of the timer server.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mstimer/mstimer-server/internal/page"
	"github.com/mstimer/mstimer-server/internal/service"
	"github.com/mstimer/mstimer-server/internal/sse"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/validation"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Services groups the services used by handlers.
type Services struct {
	WatchTime *service.WatchTimeService
	Settings  *service.SettingsService
	Stats     *service.StatsService
	Install   *service.InstallService
	Pages     *page.Registry
}

// Options holds the non-service dependencies of the server.
type Options struct {
	SSEHandler     http.Handler
	SSEManager     *sse.Manager
	MetricsHandler http.Handler
	AllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.KeyValue
	services   *Services
	sseManager *sse.Manager
	validator  *validation.Validator
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(kv store.KeyValue, services *Services, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("mstimer API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"pageToken": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:      kv,
		services:   services,
		sseManager: opts.SSEManager,
		validator:  validation.New(),
		router:     router,
		api:        api,
		logger:     logger,
	}

	s.registerHealthRoutes()
	s.registerStatsRoutes()
	s.registerSettingsRoutes()
	s.registerMessageRoutes()
	s.registerPageRoutes()

	if opts.SSEHandler != nil {
		router.Get("/api/v1/events", opts.SSEHandler.ServeHTTP)
	}
	if opts.MetricsHandler != nil {
		router.Handle("/metrics", opts.MetricsHandler)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used to export the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}
