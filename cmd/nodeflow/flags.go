package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ExitWhenDone    bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	PrintConfig     bool
}

// parseFlags parses args with environment variable fallbacks. getenv is
// os.Getenv outside tests.
func parseFlags(args []string, getenv func(string) string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	env := envReader{getenv: getenv}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.ConfigPath, "config",
		env.str("NODEFLOW_CONFIG", ""),
		"Path to a .json or .yaml configuration file; built-in defaults when empty (env: NODEFLOW_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		env.str("NODEFLOW_CONFIG", ""),
		"Path to configuration file (env: NODEFLOW_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		env.str("NODEFLOW_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: NODEFLOW_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		env.str("NODEFLOW_LOG_FORMAT", "json"),
		"Log format: json, text (env: NODEFLOW_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		env.boolean("NODEFLOW_DEBUG", false),
		"Enable debug logging (env: NODEFLOW_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		env.duration("NODEFLOW_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: NODEFLOW_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ExitWhenDone, "exit-when-done",
		env.boolean("NODEFLOW_EXIT_WHEN_DONE", false),
		"Exit once a bounded source has emitted everything (env: NODEFLOW_EXIT_WHEN_DONE)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&cfg.PrintConfig, "print-config", false, "Print the effective configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(output, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ShowHelp {
		fs.Usage()
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - in-process dataflow engine

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run the built-in demo pipeline, printing "aX", "bX", "cX" to stdout
  %s --exit-when-done --log-format=text

  # Run with a config file
  %s --config=/etc/nodeflow/pipeline.yaml

  # Run with environment variables
  export NODEFLOW_CONFIG=/etc/nodeflow/pipeline.yaml
  export NODEFLOW_NATS_URL=nats://localhost:4222
  %s

  # Validate configuration only
  %s --config=pipeline.yaml --validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

// envReader reads typed environment fallbacks, ignoring unparsable values.
type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e.getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
