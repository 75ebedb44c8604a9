// Package main is the entry point for the market-watch automated equities
// trading service. It wires one AppState -- broker, analytics store, and
// Coordinator, all bound to a single universe -- an HTTP/WebSocket front
// door, and a small scheduler for wall-clock housekeeping, then blocks
// until told to shut down.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/broker/simbroker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/coordinator"
	"github.com/aarel/market-watch/internal/httpapi"
	"github.com/aarel/market-watch/internal/scheduler"
	"github.com/aarel/market-watch/internal/strategy"
	"github.com/aarel/market-watch/internal/universe"
	"github.com/aarel/market-watch/pkg/logger"
)

// getEnv retrieves an environment variable, returning fallback when unset
// or empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Pretty:   cfg.DevMode,
		FilePath: getEnv("LOG_FILE", ""),
	})
	log.Info().Msg("starting market-watch")

	startUniverse, err := universe.ParseUniverse(getEnv("UNIVERSE", "simulation"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid UNIVERSE")
	}
	if startUniverse.RequiresExplicitConfirmation() && getEnv("CONFIRM_LIVE", "") != "yes" {
		log.Fatal().Str("universe", string(startUniverse)).Msg("starting in a real-capital universe requires CONFIRM_LIVE=yes")
	}

	runtimeCfg, err := config.LoadRuntimeConfig(startUniverse)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load runtime config")
	}

	appState, err := coordinator.NewAppState(
		startUniverse,
		brokerFactory(cfg, log),
		analyticsFactory(log),
		strategyFactory(runtimeCfg),
		runtimeCfg,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build initial application state")
	}

	appState.SetTeardownHook(func(brk broker.Broker, coord *coordinator.Coordinator, store *analytics.Store) {
		log.Info().Str("outgoing_universe", string(brk.Universe())).Msg("tearing down outgoing universe generation")
	})

	startCtx, startCancel := context.WithCancel(context.Background())
	defer startCancel()
	if err := appState.Coordinator().Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start coordinator")
	}
	log.Info().Str("universe", string(startUniverse)).Msg("coordinator started")

	srv := httpapi.New(httpapi.Config{
		Log:            log,
		AppState:       appState,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.AllowedOrigins,
		APIToken:       cfg.APIToken,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("HTTP server started")

	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 21 * * *", scheduler.NewDailySummaryJob(appState, log)); err != nil {
		log.Error().Err(err).Msg("failed to register daily summary job")
	}
	if cfg.AnalyticsArchiveBucket != "" {
		rotation, err := analytics.NewRotationService(context.Background(), startUniverse, cfg.AnalyticsArchiveBucket, cfg.AnalyticsArchiveEndpoint, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to build analytics rotation service; archival disabled")
		} else {
			job := scheduler.NewAnalyticsRotationJob(appState, rotation, cfg.AnalyticsArchiveRetentionDays, cfg.AnalyticsArchiveMinKeep, log)
			if err := sched.AddJob("0 0 3 * * *", job); err != nil {
				log.Error().Err(err).Msg("failed to register analytics rotation job")
			}
		}
	}
	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	startCancel()
	sched.Stop()

	if err := appState.Coordinator().Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping coordinator")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	log.Info().Msg("market-watch stopped")
}

// brokerFactory builds the BrokerFactory wired into AppState. Only
// SIMULATION has a concrete in-process broker in this repository; LIVE and
// PAPER broker clients are external collaborators this service calls out
// to but does not implement, so requesting either without one configured
// fails loudly rather than silently falling back to simulation.
func brokerFactory(cfg *config.Config, log zerolog.Logger) coordinator.BrokerFactory {
	return func(u universe.Universe) (broker.Broker, error) {
		switch u {
		case universe.Simulation:
			watchlist := config.DefaultRuntimeConfig().Watchlist
			return simbroker.New(simbroker.Config{
				JiggleFactor:  0.001,
				ReplayEnabled: getEnv("SIM_REPLAY", "") == "true",
				Watchlist:     watchlist,
			}, log), nil
		default:
			return nil, unimplementedLiveBrokerError(u)
		}
	}
}

func unimplementedLiveBrokerError(u universe.Universe) error {
	return &liveBrokerError{universe: u}
}

// liveBrokerError reports that universe u has no concrete broker wired in
// this build. A real deployment supplies a Live/Paper broker client as an
// external collaborator at this exact seam.
type liveBrokerError struct {
	universe universe.Universe
}

func (e *liveBrokerError) Error() string {
	return "no broker client is wired for universe " + string(e.universe) + "; this build only wires the SIMULATION broker"
}

// analyticsFactory builds the AnalyticsFactory wired into AppState,
// attaching a derived sqlite index when ANALYTICS_INDEX_PATH is set.
func analyticsFactory(log zerolog.Logger) coordinator.AnalyticsFactory {
	return func(u universe.Universe) (*analytics.Store, error) {
		store, err := analytics.New(u, log)
		if err != nil {
			return nil, err
		}

		indexPath := getEnv("ANALYTICS_INDEX_PATH", "")
		if indexPath == "" {
			return store, nil
		}
		idx, err := analytics.OpenIndex(context.Background(), indexPath)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open derived analytics index; continuing without it")
			return store, nil
		}
		return store.WithIndex(idx), nil
	}
}

// strategyFactory builds the StrategyFactory wired into AppState, seeded
// from the persisted runtime config's momentum parameters.
func strategyFactory(cfg config.RuntimeConfig) coordinator.StrategyFactory {
	return func() (strategy.Strategy, error) {
		return strategy.NewMomentumStrategy(strategy.MomentumConfig{
			LookbackDays:      cfg.LookbackDays,
			MomentumThreshold: cfg.MomentumThreshold,
			SellThreshold:     cfg.SellThreshold,
		}), nil
	}
}
