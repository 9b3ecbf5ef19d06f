package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"peerreserve/internal/config"
	"peerreserve/internal/control"
	"peerreserve/internal/node"
	"peerreserve/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.LoadNode()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read node config")
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(config.LoggerLevel(cfg.LoggerLevel))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid node config")
	}
	nodeCfg.Metrics = telemetry.NewMetrics(promReg)

	n, err := node.New(log.Logger, nodeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create node")
	}
	ctrl := control.NewServer(log.Logger, n)
	n.SetObserver(ctrl)

	lis, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ControlAddr).Msg("failed to listen for control clients")
	}
	grpcServer := grpc.NewServer()
	control.RegisterControlServer(grpcServer, ctrl)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("control server stopped")
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.ListenAndServe(ctx, log.Logger, cfg.MetricsAddr, promReg); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if err := n.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start node")
	}
	log.Warn().
		Str("addr", n.Addr().String()).
		Str("control", cfg.ControlAddr).
		Strs("resources", nodeCfg.Resources).
		Msg("running node")

	<-ctx.Done()
	grpcServer.Stop()
	n.Stop()
	n.Wait()
}
