// Sagredo - LLM-driven Lean proof search server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/sagredo/internal/api"
	"github.com/ashureev/sagredo/internal/app"
	"github.com/ashureev/sagredo/internal/attemptlog"
	"github.com/ashureev/sagredo/internal/config"
	"github.com/ashureev/sagredo/internal/events"
	"github.com/ashureev/sagredo/internal/middleware"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/runner"
	"github.com/ashureev/sagredo/internal/store"
	"github.com/ashureev/sagredo/internal/stream"
)

const (
	proverService       = "sagredo.Prover"
	healthPollInterval  = 15 * time.Second
	shutdownGracePeriod = 30 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	var repo store.Repository
	if cfg.Archive.Enabled {
		sqlite, err := store.NewSQLite(cfg.Archive.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := sqlite.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()
		if err := sqlite.Ping(ctx); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		repo = sqlite
		slog.Info("Attempt archive connected", "path", cfg.Archive.DBPath)

		store.StartRetentionWorker(ctx, repo, cfg.Archive.Retention)
		slog.Info("Retention worker started", "retention", cfg.Archive.Retention)
	}

	starter, err := app.NewStarter(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize checker", "error", err)
		os.Exit(1)
	}
	slog.Info("Checker configured", "runtime", cfg.Checker.Runtime)

	oracleClient, err := app.NewOracle(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize oracle", "error", err)
		os.Exit(1)
	}
	slog.Info("Oracle configured", "model", cfg.Oracle.Model, "base_url", cfg.Oracle.BaseURL)

	hub := events.NewHub(0, logger)
	observers := prover.Observers{hub}

	var alog *attemptlog.Logger
	if cfg.AttemptLog.Enabled {
		alog, err = attemptlog.New(attemptlog.Config{
			Enabled:   true,
			Dir:       cfg.AttemptLog.Dir,
			QueueSize: cfg.AttemptLog.QueueSize,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize attempt logger", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := alog.Close(); closeErr != nil {
				slog.Error("Failed to close attempt logger", "error", closeErr)
			}
		}()
		observers = append(observers, alog)
	}

	proverCfg := app.ProverConfig(cfg)
	proverCfg.Observer = observers
	runCfg := runner.Config{
		Starter:     starter,
		Oracle:      oracleClient,
		Prover:      proverCfg,
		Concurrency: cfg.Prover.Concurrency,
		Repo:        repo,
		OnEvict:     hub,
		Logger:      logger,
	}
	if alog != nil {
		runCfg.Transcripts = alog
	}
	run := runner.New(runCfg)

	// Initialize handlers.
	apiHandler := api.NewHandler(ctx, run, repo, starter, cfg.Checker.Timeout, logger)
	healthHandler := api.NewHealthHandler(repo, 0, map[string]string{
		"checker": cfg.Checker.Runtime,
		"oracle":  "configured",
	})
	wsHandler := stream.NewHandler(hub, run, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	allowedOrigins := []string{"*"}
	if !cfg.IsDevelopment() {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else requires the API token when one is configured.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.APIToken))
		apiHandler.RegisterRoutes(r)
		wsHandler.RegisterRoutes(r)
	})

	// Create server.
	// WebSocket streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// gRPC health for orchestrators.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	go watchHealth(ctx, healthHandler, healthServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

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
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	if err := run.Shutdown(shutdownCtx); err != nil {
		slog.Error("Attempts did not stop in time", "error", err)
	}
	if err := app.CloseStarter(shutdownCtx, starter); err != nil {
		slog.Error("Failed to stop checker", "error", err)
	}

	slog.Info("Server stopped successfully")
}

// watchHealth mirrors the HTTP health checks into the gRPC health service.
func watchHealth(ctx context.Context, h *api.HealthHandler, hs *health.Server) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if _, healthy := h.Check(ctx); !healthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(proverService, status)
	}

	update()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
