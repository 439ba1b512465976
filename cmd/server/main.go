package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Notify/internal/adapters/http"
	wssignal "github.com/dkeye/Notify/internal/adapters/signal"
	"github.com/dkeye/Notify/internal/app"
	"github.com/dkeye/Notify/internal/app/orch"
	"github.com/dkeye/Notify/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	policy, err := app.NewPolicy(cfg.Policy, !cfg.CloseReplaced)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build eviction policy")
	}
	reg := app.NewRegistry(
		app.WithShards(cfg.Shards),
		app.WithPolicy(policy),
	)
	o := orch.New(reg, app.NewBroadcaster(reg, cfg.FanoutWorkers))

	limiter := wssignal.NewRateLimiter(cfg.SignalRateLimit, cfg.SignalRateInterval)
	go limiter.Run(ctx)

	r := router.SetupRouter(ctx, cfg, o, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Notify server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Hijacked websockets are not covered by Shutdown.
	o.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
