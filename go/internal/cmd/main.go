package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/relay"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer pool.Close()

	relayConfig := relay.DefaultConfig()
	relayConfig.URL = config.Relay.URL
	relayClient, err := relay.Connect(relayConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to relay")
	}
	defer relayClient.Close()

	services := setupServices(pool, relayClient, config)
	defer services.Rooms.Close()
	defer services.Bridge.Close()

	go services.ConnectionManager.Start(ctx)

	server := setupServer(services, config)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
