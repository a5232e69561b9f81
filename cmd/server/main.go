package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/config"
	"github.com/roomrelay/roomrelay/internal/relay"
	"github.com/roomrelay/roomrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	registry := relay.NewRegistry()
	store := relay.NewStore(cfg.ChatHistoryCapacity)
	for _, spec := range cfg.Rooms {
		kind, ok := relay.ParseRoomKind(spec.Kind)
		if !ok {
			logger.Fatal().Str("room", spec.ID).Str("kind", spec.Kind).Msg("invalid room kind in configuration")
		}
		if _, err := store.Declare(spec.ID, kind); err != nil {
			logger.Fatal().Err(err).Str("room", spec.ID).Msg("failed to declare room")
		}
		logger.Info().Str("room", spec.ID).Str("kind", spec.Kind).Msg("room declared")
	}

	hub := server.NewHub(logger)
	router := relay.NewRouter(registry, store, hub, relay.Options{AutoCreateRooms: cfg.AutoCreateRooms}, logger)
	hub.SetRouter(router)
	go hub.Run()

	srv := server.New(cfg, hub, logger)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown did not complete cleanly")
	}
	logger.Info().Msg("server stopped")
}
