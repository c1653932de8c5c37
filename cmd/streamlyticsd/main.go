// Package main implements the entry point for the streamlytics daemon:
// a composable streaming-analytics service exchanging tagged
// measurement records over NATS channels.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/average"
	"github.com/c360/streamlytics/analytic/compute"
	"github.com/c360/streamlytics/analytic/drift"
	"github.com/c360/streamlytics/analytic/missingdata"
	"github.com/c360/streamlytics/analytic/peer"
	"github.com/c360/streamlytics/analytic/spike"
	"github.com/c360/streamlytics/analytic/sum"
	"github.com/c360/streamlytics/analytic/suppressor"
	"github.com/c360/streamlytics/analytic/threshold"
	"github.com/c360/streamlytics/config"
	"github.com/c360/streamlytics/metric"
	"github.com/c360/streamlytics/natsclient"
	"github.com/c360/streamlytics/pipeline"
	"github.com/c360/streamlytics/pkg/retry"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "streamlyticsd"
)

type cliConfig struct {
	configPath      string
	showVersion     bool
	validateOnly    bool
	shutdownTimeout time.Duration
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cli.validateOnly {
		slog.Info("Configuration is valid", "path", cli.configPath)
		return nil
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	slog.Info("Starting streamlytics", "version", Version, "config_path", cli.configPath)

	ctx := context.Background()
	client, metrics, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	metricsServer := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, metrics)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = metricsServer.Stop(stopCtx)
	}()

	registry := analytic.NewRegistry()
	if err := registerAnalytics(registry); err != nil {
		return fmt.Errorf("register analytics: %w", err)
	}
	slog.Info("analytics registered", "count", len(registry.List()))

	deps := analytic.Dependencies{
		Bus:     &analytic.NATSBus{Client: client},
		Metrics: metrics,
		Logger:  logger,
	}
	engine := pipeline.NewEngine(registry, deps)

	if err := startConfiguredPipelines(ctx, cfg, client, engine); err != nil {
		return err
	}

	return runUntilSignal(ctx, engine, cli.shutdownTimeout)
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}
	flag.StringVar(&cli.configPath, "config", "", "path to YAML config file (optional)")
	flag.BoolVar(&cli.showVersion, "version", false, "print version and exit")
	flag.BoolVar(&cli.validateOnly, "validate", false, "validate config and exit")
	flag.DurationVar(&cli.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	flag.Parse()
	return cli
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// setupInfrastructure wires the metrics registry and connects NATS
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*natsclient.Client, *metric.Registry, error) {
	metrics := metric.NewRegistry()

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithLogger(logger),
		natsclient.WithClientName(cfg.NATS.Name),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	if err := retry.Do(ctx, retry.Quick(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, metrics, nil
}

// registerAnalytics adds every built-in analytic to the registry
func registerAnalytics(r *analytic.Registry) error {
	for _, register := range []func(*analytic.Registry) error{
		average.Register,
		compute.Register,
		drift.Register,
		missingdata.Register,
		peer.Register,
		spike.Register,
		sum.Register,
		suppressor.Register,
		threshold.Register,
	} {
		if err := register(r); err != nil {
			return err
		}
	}
	return nil
}

// startConfiguredPipelines starts definitions from config files and
// from the durable definition store
func startConfiguredPipelines(
	ctx context.Context,
	cfg *config.Config,
	client *natsclient.Client,
	engine *pipeline.Engine,
) error {
	for _, path := range cfg.Pipelines.Files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read pipeline file %s: %w", path, err)
		}
		def, err := pipeline.UnmarshalDefinition(raw)
		if err != nil {
			return fmt.Errorf("parse pipeline file %s: %w", path, err)
		}
		if err := engine.Start(ctx, def); err != nil {
			return fmt.Errorf("start pipeline %s: %w", def.Name, err)
		}
	}

	kv, err := client.KeyValue(ctx, cfg.Pipelines.Bucket)
	if err != nil {
		return fmt.Errorf("open pipeline bucket: %w", err)
	}
	store := pipeline.NewStore(kv)
	names, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored pipelines: %w", err)
	}
	for _, name := range names {
		if engine.IsRunning(name) {
			continue
		}
		def, err := store.Get(ctx, name)
		if err != nil {
			slog.Warn("skipping undecodable stored pipeline", "pipeline", name, "error", err)
			continue
		}
		if err := engine.Start(ctx, def); err != nil {
			slog.Warn("stored pipeline failed to start", "pipeline", name, "error", err)
		}
	}
	return nil
}

func runUntilSignal(ctx context.Context, engine *pipeline.Engine, shutdownTimeout time.Duration) error {
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("streamlytics started", "pipelines", engine.Running())
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	engine.StopAll(shutdownTimeout)
	slog.Info("streamlytics shutdown complete")
	return nil
}
