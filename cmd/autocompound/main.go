package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/autocompound/internal/compounder"
	"github.com/elys-network/autocompound/internal/config"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/keeper"
	"github.com/elys-network/autocompound/internal/logger"
	"github.com/elys-network/autocompound/internal/metrics"
	"github.com/elys-network/autocompound/internal/netcost"
	"github.com/elys-network/autocompound/internal/state"
	"github.com/elys-network/autocompound/internal/types"
	"github.com/elys-network/autocompound/internal/vault"
	"github.com/elys-network/autocompound/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	// AMOUNT_DECIMALS is the precision of the pool's base unit, used for metrics only.
	AMOUNT_DECIMALS = 18
	// SNAPSHOTS_RETAINED bounds the engine_snapshots table.
	SNAPSHOTS_RETAINED = 500
	SHUTDOWN_TIMEOUT   = 15 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	log.Info().Str("version", version).Str("profile", config.Profile).Msg("Auto-compounding engine starting...")
	metrics.BuildInfo.WithLabelValues(version, config.Profile).Set(1)

	dbCfg := state.DBConfig{
		Host: getEnvOrDefault("DB_HOST", "localhost"), Port: config.DBPort,
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	params, err := loadParameters()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load engine parameters")
	}

	// --- 2. Dependencies ---
	var oracle netcost.Oracle = netcost.Static(config.StaticNetworkCost)
	if config.CostOracleURL != "" {
		httpOracle, err := netcost.NewHTTPOracle(netcost.HTTPOracleConfig{URL: config.CostOracleURL, TTL: config.CostOracleTTL})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create cost oracle")
		}
		oracle = httpOracle
		log.Info().Str("url", config.CostOracleURL).Msg("Using HTTP cost oracle")
	} else {
		log.Info().Uint64("cost", config.StaticNetworkCost).Msg("Using static network cost")
	}

	sink := events.MultiSink{
		events.LogSink{Logger: logger.GetForComponent("events")},
		metrics.Sink{Precision: AMOUNT_DECIMALS},
		state.EventStore{},
	}

	engine, err := compounder.New(compounder.Config{
		Params:     params,
		Reinvestor: vault.NewPositionLedger(),
		Oracle:     oracle,
		Sink:       sink,

		CostTimeout: config.CostOracleTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := state.LoadLatestEngineSnapshot(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load engine snapshot")
	}
	if snap != nil {
		if err := engine.Restore(ctx, *snap); err != nil {
			log.Fatal().Err(err).Msg("Failed to restore engine snapshot")
		}
		metrics.SyncFromState(snap.State)
	} else {
		log.Info().Msg("No engine snapshot found, starting with empty state")
	}

	// --- 3. Keeper ---
	k, err := keeper.New(keeper.Config{
		Engine:   engine,
		Store:    keeper.PostgresStore{Keep: SNAPSHOTS_RETAINED},
		Schedule: config.KeeperSchedule,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}
	if err := k.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start keeper")
	}

	// --- 4. Web Server ---
	var creds *web.Credentials
	if config.APICredentialsFile != "" {
		creds, err = web.LoadCredentials(config.APICredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load API credentials")
		}
		log.Info().
			Int("operators", len(creds.Operators)).
			Int("participants", len(creds.Participants)).
			Msg("API credentials loaded")
	}
	webServer, err := web.NewWebServer(web.Config{
		Port:        config.WebPort,
		Engine:      engine,
		Audit:       state.AuditLog{},
		Health:      state.TestDBConnection,
		Credentials: creds,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting HTTP API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	k.Stop(shutdownCtx)

	// Final snapshot so a restart resumes from the latest state.
	if _, err := k.RunCycle(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Final keeper cycle failed")
	}
	log.Info().Msg("Auto-compounding engine stopped")
}

// loadParameters resolves the active parameters. A YAML file always wins and is stored as a new
// version; otherwise the stored active set is used, falling back to the built-in profile.
func loadParameters() (types.Parameters, error) {
	name := config.ParamsConfigName

	if config.ParamsFile != "" {
		params, err := config.LoadParametersFile(config.ParamsFile)
		if err != nil {
			return types.Parameters{}, err
		}
		latest, err := state.LatestParametersVersion(name)
		if err != nil {
			return types.Parameters{}, err
		}
		if _, err := state.SaveParameters(params, name, latest+1, true); err != nil {
			return types.Parameters{}, err
		}
		log.Info().Str("file", config.ParamsFile).Int("version", latest+1).Msg("Engine parameters loaded from file")
		return params, nil
	}

	stored, err := state.LoadActiveParameters(name)
	if err == nil {
		return *stored, nil
	}
	if !errors.Is(err, state.ErrNoActiveParameters) {
		return types.Parameters{}, err
	}

	log.Warn().Str("config", name).Msg("No active engine parameters, using profile defaults and saving.")
	params, err := config.ParametersForProfile(config.Profile)
	if err != nil {
		return types.Parameters{}, err
	}
	latest, err := state.LatestParametersVersion(name)
	if err != nil {
		return types.Parameters{}, err
	}
	if _, err := state.SaveParameters(params, name, latest+1, true); err != nil {
		return types.Parameters{}, err
	}
	return params, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
