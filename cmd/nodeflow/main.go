// Package main implements the nodeflow command, which runs a configured
// source -> transform -> sinks pipeline with metrics, health and graceful
// shutdown.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/nodeflow/config"
	"github.com/c360/nodeflow/health"
	"github.com/c360/nodeflow/metric"
	"github.com/c360/nodeflow/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "nodeflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run executes the command until ctx is cancelled or, with --exit-when-done,
// the source is exhausted.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args, getenv, stdout, stderr)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath, getenv)
	if err != nil {
		return err
	}

	if cliCfg.PrintConfig {
		_, _ = fmt.Fprintln(stdout, cfg.String())
		return nil
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewMetricsRegistry()

	var client *natsclient.Client
	d := deps{Logger: logger, Registry: registry}
	if cfg.NATS.Enabled() {
		client, err = connectBroker(ctx, cfg.NATS, registry, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("Closing NATS client failed", "error", err)
			}
		}()
		d.Broker = client
	}

	a, err := buildPipeline(cfg, d)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if cfg.Metrics.Port > 0 {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, healthFunc(a, client))
		if err := server.Start(); err != nil {
			_ = a.Pipeline.Dispose(context.Background())
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			if err := server.Stop(5 * time.Second); err != nil {
				logger.Warn("Stopping metrics server failed", "error", err)
			}
		}()
		logger.Info("Metrics server listening", "address", server.Address())
	}

	return runWithSignalHandling(ctx, a, cliCfg, logger)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string, getenv func(string) string, stdout, stderr io.Writer) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(args, getenv, stderr)
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		return nil, nil, true, nil
	}

	logger := setupLogger(stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting nodeflow",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig loads the file at path over the defaults, or the defaults alone
// when path is empty. Environment overrides apply either way.
func loadConfig(path string, getenv func(string) string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.SetEnv(getenv)
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// healthFunc folds the broker connection into the pipeline health.
func healthFunc(a *assembly, client *natsclient.Client) metric.HealthFunc {
	return func() (any, bool) {
		if client != nil {
			mon := a.Pipeline.Monitor()
			if client.IsHealthy() {
				mon.Update("nats", health.NewHealthy("nats", "connected"))
			} else {
				mon.Update("nats", health.NewUnhealthy("nats", client.Status().String()))
			}
		}
		status := a.Pipeline.Health()
		return status, !status.IsUnhealthy()
	}
}

// runWithSignalHandling starts the pipeline and disposes it on shutdown
func runWithSignalHandling(ctx context.Context, a *assembly, cliCfg *CLIConfig, logger *slog.Logger) error {
	if err := a.Pipeline.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	if a.WebSocket != nil {
		if err := a.WebSocket.Listen(); err != nil {
			_ = a.Pipeline.Dispose(context.Background())
			return fmt.Errorf("start websocket sink: %w", err)
		}
		logger.Info("WebSocket sink listening", "address", a.WebSocket.Addr())
	}
	logger.Info("nodeflow started", "pipeline", a.Pipeline.Name(), "nodes", a.Pipeline.Names())

	var done <-chan struct{}
	if cliCfg.ExitWhenDone && a.Generator != nil {
		done = a.Generator.Done()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-done:
		logger.Info("Source exhausted", "emitted", a.Generator.Emitted())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()

	if err := a.Pipeline.Dispose(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("nodeflow shutdown complete")
	return nil
}
