// Package main runs the agent simulator, a stand-in for the ChatOps, RCA and
// Predict agents that the console and opsctl can talk to locally.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/agentsim"
	"github.com/aegis-ops/console/internal/config"
	"github.com/aegis-ops/console/internal/llm"
	"github.com/aegis-ops/console/pkg/logger"
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

	provider, err := llm.ParseProvider(cfg.Narrator)
	if err != nil {
		log.Fatal("invalid narrator", zap.Error(err))
	}
	apiKey := ""
	switch provider {
	case llm.ProviderAnthropic:
		apiKey = cfg.AnthropicAPIKey
	case llm.ProviderOpenAI:
		apiKey = cfg.OpenAIAPIKey
	}
	narrator, err := llm.NewNarrator(provider, apiKey)
	if err != nil {
		log.Warn("narrator unavailable, using scripted narration",
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		narrator = llm.NewScriptedNarrator(20 * time.Millisecond)
	}

	sim := agentsim.New(agentsim.Options{
		Narrator:  narrator,
		StepDelay: cfg.SimStepDelay,
		Logger:    log,
	})

	server := &http.Server{
		Addr:        ":" + cfg.SimPort,
		Handler:     sim.Routes(),
		ReadTimeout: cfg.ServerReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("agent simulator listening",
			zap.String("port", cfg.SimPort),
			zap.String("narrator", narrator.Name()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("agent simulator stopped")
}
