package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/analytics"
	"github.com/Denis-Chistyakov/Medguide/internal/version"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Server represents the HTTP API server
type Server struct {
	app      *fiber.App
	config   *types.ServerConfig
	handlers *Handler
}

// NewServer creates a new HTTP server. monitor may be nil.
func NewServer(orch Orchestrator, monitor StatusMonitor, collector *analytics.Collector, config *types.ServerConfig) *Server {
	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}

	app := fiber.New(fiber.Config{
		ServerHeader: "Medguide",
		AppName:      "Medguide v" + version.Version,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	s := &Server{
		app:      app,
		config:   config,
		handlers: NewHandler(orch, monitor, collector),
	}

	s.setupRoutes()

	return s
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.app.Use(RecoveryMiddleware())
	s.app.Use(RequestIDMiddleware())
	s.app.Use(LoggingMiddleware())
	s.app.Use(CORSMiddleware())

	// Root
	s.app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":    "Medguide",
			"version": version.Version,
			"status":  "running",
		})
	})

	// Metrics endpoint (Prometheus)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Analytics/Stats endpoint
	s.app.Get("/stats", s.handlers.Stats)

	// API v1 routes
	api := s.app.Group("/api/v1")

	// Guidance
	api.Get("/devices", s.handlers.ListDevices)
	api.Get("/guidance/:device/:step", s.handlers.GetGuidance)
	api.Post("/chat", s.handlers.Chat)

	// Provider status
	api.Get("/status", s.handlers.GetStatus)
	api.Post("/status/check", s.handlers.CheckStatus)

	// Health & Liveness
	api.Get("/health", s.handlers.HealthCheck)
	api.Get("/alive", s.handlers.LivenessProbe)

	log.Info().Msg("HTTP routes configured")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	log.Info().
		Str("addr", addr).
		Msg("Starting HTTP API server")

	// Start in goroutine to not block
	go func() {
		if err := s.app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP server")

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}
