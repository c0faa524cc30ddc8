package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"github.com/congo-pay/feeledger/internal/config"
	"github.com/congo-pay/feeledger/internal/routes"
)

// Server wraps the Fiber application, the optional job client and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	jobs   *river.Client[pgx.Tx]
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	jobs, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, jobs: jobs, logger: logger}, nil
}

// App exposes the underlying Fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the job workers, if any, then the HTTP server.
func (s *Server) Listen(ctx context.Context) error {
	if s.jobs != nil {
		if err := s.jobs.Start(ctx); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "status change workers started")
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then drains the job workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	if s.jobs != nil {
		return s.jobs.Stop(ctx)
	}
	return nil
}
