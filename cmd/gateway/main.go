package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gatewaycore/server/internal/config"
	"github.com/gatewaycore/server/pkg/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// .env is a development convenience; production relies on real
	// environment variables.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("main.dotenv_load_failed")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("main.config_load_failed")
	}

	app, err := gateway.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("main.app_init_failed")
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info().
			Str("address", cfg.Server.Address).
			Str("backend", cfg.Storage.Backend).
			Msg("main.server_starting")
		errCh <- app.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.Logger.Info().Str("signal", sig.String()).Msg("main.shutdown_requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error().Err(err).Msg("main.server_failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("main.server_shutdown_failed")
	}
	if err := app.Close(); err != nil {
		app.Logger.Error().Err(err).Msg("main.resource_cleanup_failed")
	}

	app.Logger.Info().Msg("main.server_stopped")
}
