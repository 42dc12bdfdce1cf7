package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/CodeRoom/internal/adapters/http"
	wsignal "github.com/dkeye/CodeRoom/internal/adapters/signal"
	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/auth"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.InsecureSecret() {
		log.Warn().Str("module", "main").Msg("release mode is running with the default secret; set secret or CODEROOM_SECRET")
	}

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	reg := app.NewRegistry()
	o := orch.New(reg, app.SimplePolicy{}, orch.Options{
		MailboxSize: cfg.RoomMailboxSize,
		RoomGrace:   cfg.RoomGracePeriod,
	})
	if cfg.RequireKnownRooms {
		o.Directory = store
	}
	if cfg.PersistChat {
		o.Chat = store
	}

	tokens := auth.NewTokenIssuer(cfg.Secret, cfg.TokenTTL)
	gate := auth.NewSessionGate(store, tokens)
	ws := wsignal.NewSignalWSController(o, gate, wsignal.NewRateLimiter(cfg.RateLimit, cfg.RateInterval), wsignal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		IdleTimeout:    cfg.IdleTimeout,
		SendQueueSize:  cfg.SendQueueSize,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:   o,
		Store:  store,
		Gate:   gate,
		Tokens: tokens,
		Signal: ws,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("CodeRoom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Int("connections", reg.Count()).Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
