// rolesim - sales dialogue practice server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/rolesim/internal/api"
	"github.com/ashureev/rolesim/internal/app"
	"github.com/ashureev/rolesim/internal/config"
	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/identity"
	"github.com/ashureev/rolesim/internal/learning"
	"github.com/ashureev/rolesim/internal/live"
	"github.com/ashureev/rolesim/internal/logging"
	"github.com/ashureev/rolesim/internal/metrics"
	"github.com/ashureev/rolesim/internal/middleware"
	"github.com/ashureev/rolesim/internal/session"
	"github.com/ashureev/rolesim/internal/store"
	"github.com/ashureev/rolesim/internal/transcript"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stdout)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "learning_backend", cfg.Learning.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	backend, err := app.OpenLearning(ctx, cfg.Learning, repo)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Error("Failed to close learning backend", "error", closeErr)
		}
	}()
	learner := learning.NewStore(backend.Backend, learning.WithLogger(logging.New("learning")))

	catalog, err := app.LoadCatalog(cfg.Dialogue.CatalogPath)
	if err != nil {
		return err
	}
	engine, err := app.NewEngine(cfg.Dialogue, catalog, learner, nil, logging.New("dialogue"))
	if err != nil {
		return err
	}
	slog.Info("Dialogue engine ready", "catalog", cfg.Dialogue.CatalogPath, "phase_turns", cfg.Dialogue.PhaseTurns)

	transcripts, err := transcript.New(transcript.Config{
		Enabled:       cfg.Transcript.Enabled,
		Dir:           cfg.Transcript.Dir,
		GlobalEnabled: cfg.Transcript.GlobalEnabled,
		GlobalPath:    cfg.Transcript.GlobalPath,
		QueueSize:     cfg.Transcript.QueueSize,
	}, logging.New("transcript"))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	m := metrics.New()
	registry := live.NewRegistry()
	sessions, err := session.NewService(session.Config{
		Repo:       repo,
		Engine:     engine,
		Controller: dialogue.NewController(cfg.Dialogue.PhaseTurns),
		Recorder:   transcripts,
		Observer:   m,
		Logger:     logging.New("session"),
		OnClose:    registry.CloseSession,
	})
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	checks := map[string]api.Pinger{"database": repo}
	for name, check := range backend.Checks {
		checks[name] = check
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	api.NewHealthHandler(checks).RegisterHealth(r)
	api.NewHandler(sessions, learner, engine, catalog).RegisterRoutes(r, limiter.Limit(api.TraineeKey))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/ws/sessions/{id}", live.NewHandler(sessions, registry, m, limiter, cfg.FrontendURL, cfg.IsDevelopment()).ServeHTTP)

	// WebSocket channels are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sessions.StartSweeper(ctx, session.SweepConfig{
		Interval:  cfg.Sessions.SweepInterval,
		IdleTTL:   cfg.Sessions.TTL,
		Retention: cfg.Sessions.Retention,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.RunEviction(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
