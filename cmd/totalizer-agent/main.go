package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/totalizer-lab/totalizer/internal/config"
	"github.com/totalizer-lab/totalizer/internal/ingest"
	"github.com/totalizer-lab/totalizer/internal/rules"
	"github.com/totalizer-lab/totalizer/internal/server"
	"github.com/totalizer-lab/totalizer/internal/storage"
)

func main() {
	configPath := flag.String("config", "totalizer.yaml", "Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Log commits instead of writing to the store")
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

	statsInterval, err := time.ParseDuration(cfg.Agent.StatsInterval)
	if err != nil {
		slog.Error("Invalid stats interval", "value", cfg.Agent.StatsInterval, "error", err)
		os.Exit(1)
	}
	connectTimeout, err := time.ParseDuration(cfg.Redis.ConnectTimeout)
	if err != nil {
		slog.Error("Invalid connect timeout", "value", cfg.Redis.ConnectTimeout, "error", err)
		os.Exit(1)
	}

	// 2. Load Watch Rules
	watch, err := rules.LoadDir(cfg.Rules.Path, logger)
	if err != nil {
		slog.Error("Failed to load watch rules", "path", cfg.Rules.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded watch rules", "rules", len(watch.Rules()), "bindings", watch.Bindings())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Storage
	var store storage.Store
	if *dryRun {
		store = storage.NewDryRun(logger)
		slog.Info("Dry run: commits will be logged, not written")
	} else {
		store, err = storage.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, connectTimeout)
		if err != nil {
			slog.Error("Failed to connect to store", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	// 4. Initialize Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := ingest.NewMetrics(reg)

	// 5. Initialize Commit Pipeline
	committer := ingest.NewCommitter(store, cfg.Agent.QueueMax, cfg.Agent.Connections, metrics, logger)
	committer.Start(ctx)

	// 6. Bind Listeners, one per configured address:port
	var listeners []*ingest.Listener
	for _, binding := range watch.Bindings() {
		address, port, err := splitBinding(binding)
		if err != nil {
			slog.Error("Invalid binding", "binding", binding, "error", err)
			os.Exit(1)
		}
		l := ingest.NewListener(address, port, watch, committer, metrics, logger)
		if err := l.Start(ctx); err != nil {
			slog.Error("Failed to bind listener", "binding", binding, "error", err)
			os.Exit(1)
		}
		listeners = append(listeners, l)
		slog.Info("Listening", "binding", binding)
	}

	// 7. Periodic stats reporting
	go ingest.ReportStats(ctx, committer, statsInterval, logger)

	// 8. Admin Server
	srv := server.New(cfg.Agent.AdminAddr, store, cfg.Agent.Mode)
	srv.ExposeMetrics(reg)

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// Admin server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	for _, l := range listeners {
		_ = l.Close()
	}
	committer.Wait()
	slog.Info("Shutdown complete")
}

func splitBinding(binding string) (string, int, error) {
	host, portText, err := net.SplitHostPort(binding)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
