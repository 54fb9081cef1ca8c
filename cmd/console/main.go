// Package main is the entry point for the console gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/agentstream"
	"github.com/aegis-ops/console/internal/config"
	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/handler"
	"github.com/aegis-ops/console/internal/middleware"
	"github.com/aegis-ops/console/internal/model"
	natsclient "github.com/aegis-ops/console/internal/nats"
	"github.com/aegis-ops/console/internal/service"
	"github.com/aegis-ops/console/pkg/logger"
	"github.com/aegis-ops/console/pkg/tracing"
)

const (
	anonymousTenant = "local"
	anonymousUser   = "operator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting console gateway")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "aegis-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	var (
		natsClient *natsclient.Client
		journal    conversation.Journal
	)
	if cfg.JournalEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "aegis-console",
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		j := natsclient.NewJournal(natsClient, natsclient.JournalConfig{
			MaxAge:   cfg.JournalMaxAge,
			Replicas: cfg.JournalReplicas,
		})
		if err := j.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure event stream", zap.Error(err))
		}
		journal = j
	}

	streamer := func(kind model.Kind) conversation.Streamer {
		return conversation.FromClient(agentstream.NewClient(agentstream.Config{
			BaseURL: cfg.AgentURL(string(kind)),
		}, log))
	}
	console := service.NewConsole(ctx, service.Streamers{
		ChatOps: streamer(model.KindChatOps),
		RCA:     streamer(model.KindRCA),
		Predict: streamer(model.KindPredict),
	}, journal, log)
	defer console.Close()

	healthHandler := handler.NewHealthHandler(natsClient, console)
	chatopsHandler := handler.NewViewHandler(console.ChatOps, cfg.HeartbeatInterval, log)
	rcaHandler := handler.NewViewHandler(console.RCA, cfg.HeartbeatInterval, log)
	predictHandler := handler.NewViewHandler(console.Predict, cfg.HeartbeatInterval, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(middleware.Auth(cfg.JWTSecret))
		} else {
			log.Warn("authentication disabled, requests run as the local tenant")
			r.Use(middleware.Anonymous(anonymousTenant, anonymousUser))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chatops", chatopsHandler.Routes)
		r.Route("/rca", rcaHandler.Routes)
		r.Route("/predict", predictHandler.Routes)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Open SSE responses only end once their views close.
	console.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
