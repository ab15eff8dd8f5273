// Command netstated runs the connectivity monitor standalone.
//
// # Usage
//
//	netstated --config /etc/netstate/config.yaml
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (NETSTATE_*)
// - Config file (--config)
//
// # Examples
//
// Run with flags:
//
//	netstated --listen :8791 --latency-host 1.1.1.1 --latency-port 443
//
// Run with a shared health cache and transition journal:
//
//	NETSTATE_REDIS_URL=redis://localhost:6379/0 \
//	NETSTATE_POSTGRES_URL=postgres://localhost/netstate \
//	netstated --config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyon-app/netstate"
	"github.com/halcyon-app/netstate/internal/config"
	"github.com/halcyon-app/netstate/internal/healthcache"
	"github.com/halcyon-app/netstate/internal/journal"
	"github.com/halcyon-app/netstate/internal/server"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to config file")
		listen      = flag.String("listen", "", "Status server listen address")
		latencyHost = flag.String("latency-host", "", "Latency probe host")
		latencyPort = flag.Int("latency-port", 0, "Latency probe port")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		version     = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("netstated %s\n", netstate.Version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	cfg.ApplyEnvOverrides()

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *latencyHost != "" {
		cfg.Monitor.LatencyTestHost = *latencyHost
	}
	if *latencyPort != 0 {
		cfg.Monitor.LatencyTestPort = *latencyPort
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	opts := netstate.Options{Logger: logger}

	// Shared health cache keeps multiple instances from probing the same
	// backend inside one TTL window.
	if cfg.Storage.RedisURL != "" {
		cache, err := healthcache.NewRedis(cfg.Storage.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect health cache", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		opts.Cache = cache
	}

	svc, err := netstate.New(cfg, opts)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Storage.PostgresURL != "" {
		jnl, err := journal.Open(ctx, cfg.Storage.PostgresURL, logger)
		if err != nil {
			logger.Error("failed to open transition journal", "error", err)
			os.Exit(1)
		}
		defer jnl.Close()

		_, events := svc.Bus().Subscribe()
		go jnl.Consume(ctx, events)
	}

	if cfg.Server.Listen != "" {
		srv := server.New(cfg.Server.Listen, svc, logger)
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error("status server failed", "error", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting netstated",
		"listen", cfg.Server.Listen,
		"latency_target", fmt.Sprintf("%s:%d", cfg.Monitor.LatencyTestHost, cfg.Monitor.LatencyTestPort))

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
