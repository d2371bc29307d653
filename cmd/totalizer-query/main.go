package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/totalizer-lab/totalizer/internal/config"
	"github.com/totalizer-lab/totalizer/internal/fanout"
	"github.com/totalizer-lab/totalizer/internal/query"
	"github.com/totalizer-lab/totalizer/internal/rkvdns"
	"github.com/totalizer-lab/totalizer/internal/server"
	"github.com/totalizer-lab/totalizer/internal/totals"
)

func main() {
	configPath := flag.String("config", "totalizer.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	if cfg.Query.Domain == "" {
		slog.Error("query.domain is required")
		os.Exit(1)
	}

	// 2. Initialize the Resolver and Reconstruction Source
	client := rkvdns.New(cfg.Query.DNSServer)
	direct := totals.New(client.Bind(cfg.Query.Domain), cfg.Query.Delimiter, logger)

	var source query.Reconstructor = direct
	if cfg.Query.Federated {
		source = fanout.New(client, cfg.Query.Domain,
			func(domain string) fanout.Reconstructor {
				return totals.New(client.Bind(domain), cfg.Query.Delimiter, logger)
			},
			direct, logger)
		slog.Info("Federation enabled", "rendezvous", cfg.Query.Domain)
	}

	// 3. Initialize the Query Service
	querySvc := query.NewService(source, cfg.Query.Parts, cfg.Query.Delimiter, cfg.Query.TrendFraction)

	// 4. Initialize Server
	srv := server.New(cfg.Query.Addr, nil, cfg.Query.Mode)
	querySvc.RegisterRoutes(srv.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}
