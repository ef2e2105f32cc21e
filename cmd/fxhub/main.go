package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"fxhub/internal/infrastructure/config"
	"fxhub/internal/infrastructure/container"
	"fxhub/internal/infrastructure/logger"
	"fxhub/internal/interfaces/admin"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container init failed")
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := admin.Deps{
		Status:     c.Coordinator(),
		Cache:      c.Cache(),
		Repository: c.Repository(),
		Metrics:    c.Metrics().Handler(),
	}
	if hub := c.Hub(); hub != nil {
		deps.WebSocket = hub
	}
	adminSrv := admin.New(cfg.App.AdminAddr, deps)
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("admin server exited")
			stop()
		}
	}()

	coord := c.Coordinator()
	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("coordinator start failed")
	}

	log.Info().
		Str("config", *configPath).
		Strs("platforms", cfg.PlatformNames()).
		Strs("symbols", cfg.Symbols.List).
		Int("derived", len(cfg.Derived)).
		Float64("tolerance_pct", cfg.Tolerance.Percent).
		Str("cache", cfg.Cache.Backend).
		Msg("fxhub started")

	<-ctx.Done()
	log.Warn().Msg("shutting down")

	coord.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin shutdown failed")
	}
}
