// offerforge - guided "build your offer" chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/api"
	"github.com/ashureev/offerforge/internal/chat"
	"github.com/ashureev/offerforge/internal/config"
	"github.com/ashureev/offerforge/internal/identity"
	"github.com/ashureev/offerforge/internal/llm"
	"github.com/ashureev/offerforge/internal/middleware"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/pipeline"
	"github.com/ashureev/offerforge/internal/pregen"
	"github.com/ashureev/offerforge/internal/store"
	"github.com/ashureev/offerforge/internal/transcript"
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

	logger := observability.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm_provider", cfg.LLM.Provider)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := llm.FromConfig(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM backend", "error", err)
		os.Exit(1)
	}
	if model == nil {
		slog.Info("Using local deterministic agents")
	} else {
		slog.Info("LLM backend ready", "backend", model.Name())
	}
	gen := pipeline.New(agents.NewSet(model))

	transcripts, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := transcripts.Close(); err != nil {
			slog.Warn("failed to close transcript logger", "error", err)
		}
	}()

	// A nil interface, not a typed nil, when pre-generation is off.
	var scheduler *pregen.Scheduler
	var pregenSvc chat.Scheduler
	if cfg.Pregen.Enabled {
		scheduler = pregen.New(repo, gen, pregen.WithTimeout(cfg.Pregen.Timeout.Std()))
		pregenSvc = scheduler
		pregen.StartSweeper(ctx, repo, scheduler, cfg.Pregen.SweepInterval.Std(), cfg.Pregen.SweepMinAge.Std())
	} else {
		slog.Info("Pre-generation disabled")
	}

	chatSvc := chat.NewService(repo, gen, pregenSvc, transcripts, chat.Config{
		DemoBaseURL: cfg.DemoBaseURL,
		ChunkWords:  cfg.Stream.ChunkWords,
	})
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window.Std())
	limiter.StartEviction(ctx)

	// Initialize handlers.
	handler := api.NewHandler(repo, chatSvc, gen, pregenSvc, api.Options{
		MaxBodyBytes: cfg.Stream.MaxBodyBytes,
		TurnTimeout:  cfg.Stream.TurnTimeout.Std(),
		Limiter:      limiter,
	})
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else is owner scoped by the anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, identity.Options{
			AllowAnonymous: cfg.AllowAnonymous,
			Secure:         !cfg.IsDevelopment(),
			Unauthorized:   api.Unauthorized,
			Failed:         api.IdentityFailed,
		}))
		handler.RegisterRoutes(r)
	})

	// Create server.
	// Streaming turns need a long write window, so WriteTimeout stays 0.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Pre-generation still running at shutdown", "error", err)
		}
	}

	slog.Info("Server stopped successfully")
}

// allowedOrigins is the frontend origin in production and any origin in development.
func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(cfg.FrontendURL, "/")}
}
