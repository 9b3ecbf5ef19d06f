package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peerreserve/internal/config"
	"peerreserve/internal/registry"
	"peerreserve/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.LoadRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read registry config")
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(config.LoggerLevel(cfg.LoggerLevel))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(promReg)

	reg, err := registry.New(log.Logger, registry.Config{ListenAddr: cfg.ListenAddr, Metrics: metrics})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start registry")
	}
	defer reg.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.ListenAndServe(ctx, log.Logger, cfg.MetricsAddr, promReg); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	log.Warn().Str("addr", reg.Addr().String()).Msg("running discovery registry")
	if err := reg.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("registry stopped")
	}
}
