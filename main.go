package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"runcoach/internal/api"
	"runcoach/internal/auth"
	"runcoach/internal/config"
	"runcoach/internal/enrich"
	"runcoach/internal/llm"
	"runcoach/internal/plan"
	"runcoach/internal/provider"
	"runcoach/internal/service"
	"runcoach/internal/store"
	httptransport "runcoach/internal/transport/http"
)

const (
	stravaMinFetch  = 15 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.json (default ~/.runcoach/config.json)")
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if errors.Is(err, config.ErrNoConfig) {
		if err := config.CreateExample(); err != nil {
			return fmt.Errorf("creating example config: %w", err)
		}
		configDir, _ := config.GetConfigDir()
		fmt.Printf("No config file found; wrote an example to %s/config.json and continuing with defaults.\n", configDir)
	} else if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	config.SetupLogger(cfg.Log.Level)
	logger := slog.Default()

	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var linker *auth.Linker
	var activities provider.Provider
	switch cfg.Provider.Source {
	case config.SourceStrava:
		oauthCfg := auth.NewOAuthConfig(cfg.Strava)
		linker = auth.NewLinker(oauthCfg, db)
		activities = provider.NewStrava(oauthCfg, db, stravaMinFetch, logger)
	case config.SourceFit:
		activities = provider.NewFit(cfg.Provider.FitDir, logger)
	default:
		activities = provider.NewStore(db)
	}
	logger.Info("activity provider selected", "source", cfg.Provider.Source)

	completer := llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Temperature: cfg.LLM.Temperature,
	})
	if !completer.IsConfigured() {
		logger.Warn("llm api key not set; plans stay unenriched and chat returns fallback replies")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enricher := enrich.NewEnricher(db, completer, cfg.Enrichment.WeekTimeout, logger)
	queue := enrich.NewQueue(enricher, enrich.QueueConfig{
		Workers: cfg.Enrichment.Workers,
		Size:    cfg.Enrichment.QueueSize,
	}, logger)
	queue.Start(ctx)
	defer queue.Stop()
	if err := queue.ScheduleSweep(ctx, cfg.Enrichment.SweepSchedule); err != nil {
		return err
	}
	// Pick up plans left unfinished by a previous run
	if n, err := queue.Sweep(ctx); err != nil {
		logger.Warn("initial enrichment sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("resuming enrichment", "plans", n)
	}

	analytics := service.NewAnalyticsService(activities, db, cfg, logger)
	plans := service.NewPlanService(db, analytics, queue, plan.GuardrailsFromConfig(cfg.Plan), logger)
	chat := service.NewChatService(db, analytics, plans, completer, cfg, logger)

	mux := http.NewServeMux()
	api.NewHandler(analytics, plans, chat, linker, logger).RegisterRoutes(mux)
	srv := httptransport.NewServer(cfg.Server, httptransport.LogRequests(logger, mux), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
