// Debate Coach - institutional debate preparation bot
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehu-labs/debate-coach/internal/api"
	"github.com/ehu-labs/debate-coach/internal/assistant"
	"github.com/ehu-labs/debate-coach/internal/catalog"
	"github.com/ehu-labs/debate-coach/internal/config"
	"github.com/ehu-labs/debate-coach/internal/engine"
	"github.com/ehu-labs/debate-coach/internal/mail"
	"github.com/ehu-labs/debate-coach/internal/store"
	"github.com/ehu-labs/debate-coach/internal/telegram"
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

	slog.Info("Starting bot", "ops_port", cfg.OpsPort, "redis", cfg.UseRedis())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	var repo store.Repository
	if cfg.UseRedis() {
		repo = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	} else {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	mailer := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	backend, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Error("Failed to initialize assistant backend", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.New(cfg.DefaultLanguage)
	if err != nil {
		slog.Error("Failed to load message catalog", "error", err)
		os.Exit(1)
	}

	// The poller doubles as the engine's messenger, so it is built first
	// and the engine attached afterwards.
	client := telegram.NewClient(&http.Client{Timeout: cfg.RequestTimeout + cfg.PollTimeout}, cfg.TelegramBaseURL, cfg.BotToken)
	poller := telegram.NewPoller(client, telegram.PollerOptions{
		PollTimeout:   cfg.PollTimeout,
		HandleTimeout: cfg.RequestTimeout,
	})

	eng := engine.New(repo, mailer, backend, poller, cat, engine.Config{
		AllowedEmailDomains: cfg.AllowedEmailDomains,
		CodeLength:          cfg.CodeLength,
		DefaultLanguage:     cfg.DefaultLanguage,
	})
	poller.SetHandler(eng)

	// Setup ops router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	api.NewHealthHandler(repo, 5*time.Second).Register(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server failed", "error", err)
			os.Exit(1)
		}
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- poller.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-pollErr:
		if err != nil {
			slog.Error("Poller failed", "error", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Ops server forced to shutdown", "error", err)
	}

	slog.Info("Bot stopped successfully")
}
