// Command fxplatform simulates the upstream platforms: a TCP feed and a REST
// endpoint serving random-walk quotes.
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
	"fxhub/internal/infrastructure/logger"
	"fxhub/internal/interfaces/feedserver"
	"fxhub/internal/interfaces/restserver"
	"fxhub/internal/simulator"
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

	sim := cfg.Simulator
	if !sim.TCP.Enabled && !sim.REST.Enabled {
		log.Fatal().Msg("no simulated platform enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(sim.IntervalMs) * time.Millisecond
	seeds := make([]simulator.Seed, 0, len(sim.Rates))
	for _, r := range sim.Rates {
		seeds = append(seeds, simulator.Seed{Symbol: r.Name, Bid: r.Bid, Ask: r.Ask, Volatility: r.Volatility})
	}

	var (
		feed  *feedserver.Server
		sched *feedserver.Scheduler
	)
	if sim.TCP.Enabled {
		book := simulator.NewBook(sim.TCP.Platform, seeds)
		sched = feedserver.NewScheduler()
		feed = feedserver.New(sim.TCP.Addr, book, sched, feedserver.Options{Interval: interval})
		if err := feed.Start(); err != nil {
			log.Fatal().Err(err).Str("addr", sim.TCP.Addr).Msg("feed server start failed")
		}
		log.Info().Str("platform", sim.TCP.Platform).Strs("rates", book.Names()).Msg("tcp platform ready")
	}

	var rest *restserver.Server
	if sim.REST.Enabled {
		book := simulator.NewBook(sim.REST.Platform, seeds, simulator.WithPercent(sim.REST.FluctuationPct))
		go book.Run(ctx, interval)

		rest = restserver.New(sim.REST.Addr, book)
		go func() {
			if err := rest.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("rest server exited")
				stop()
			}
		}()
		log.Info().Str("platform", sim.REST.Platform).Strs("rates", book.Names()).Msg("rest platform ready")
	}

	<-ctx.Done()
	log.Warn().Msg("shutting down")

	if feed != nil {
		_ = feed.Close()
		sched.Stop()
	}
	if rest != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rest.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("rest shutdown failed")
		}
	}
}
