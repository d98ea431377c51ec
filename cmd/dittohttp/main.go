package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/pkg/config"
	"github.com/marmos91/dittohttp/pkg/server"
)

const usage = `dittohttp - static file server

Usage:
  dittohttp [command] [flags]

Commands:
  start    Start the server (default)
  init     Write a sample configuration file

Flags for start:
  -config string   Path to config file (default: $XDG_CONFIG_HOME/dittohttp/config.yaml)

Flags for init:
  -config string   Where to write the file (default: $XDG_CONFIG_HOME/dittohttp/config.yaml)
  -force           Overwrite an existing config file

Environment variables (DITTOHTTP_*) override file values, e.g.
  DITTOHTTP_ADAPTERS_HTTP_PORT=9000 DITTOHTTP_CONTENT_FILESYSTEM_PATH=/srv/www dittohttp
`

func main() {
	command := "start"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "start":
		runStart(args)
	case "init":
		runInit(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", command, usage)
		os.Exit(2)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Where to write the config file")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	var (
		path string
		err  error
	)
	if *configPath != "" {
		path = *configPath
		err = config.InitConfigToPath(path, *force)
	} else {
		path, err = config.InitConfig(*force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit content.filesystem.path to point at your web root, then run: dittohttp start")
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// ============================================================================
	// Step 1: Logging
	// ============================================================================

	logger.SetLevel(cfg.Logging.Level)
	if err := logger.Configure(cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("dittohttp - static file server")
	logger.Info("Log level: %s, format: %s, output: %s", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	// Cancelled on SIGINT/SIGTERM; everything below shuts down from it
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ============================================================================
	// Step 2: Metrics
	// ============================================================================

	metricsResult := config.InitializeMetrics(cfg)
	metricsDone := make(chan error, 1)
	if metricsResult.Server != nil {
		go func() {
			metricsDone <- metricsResult.Server.Start(ctx)
		}()
		logger.Info("Metrics enabled on port %d", cfg.Metrics.Port)
	} else {
		close(metricsDone)
		logger.Info("Metrics collection disabled")
	}

	// ============================================================================
	// Step 3: Web root and adapters
	// ============================================================================

	root, err := config.CreateWebRoot(&cfg.Content)
	if err != nil {
		logger.Error("Failed to open web root: %v", err)
		os.Exit(1)
	}
	logger.Info("Serving files from %s", root.Dir())

	adapters, err := config.CreateAdapters(cfg, root, metricsResult.HTTPMetrics)
	if err != nil {
		logger.Error("Failed to create adapters: %v", err)
		os.Exit(1)
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			logger.Error("Failed to add %s adapter: %v", a.Protocol(), err)
			os.Exit(1)
		}
		logger.Info("%s adapter listening on %s:%d", a.Protocol(), cfg.Adapters.HTTP.Address, a.Port())
	}

	// ============================================================================
	// Step 4: Serve until signalled
	// ============================================================================

	logger.Info("Server is running. Press Ctrl+C to stop.")

	serveErr := srv.Serve(ctx)
	stop()

	if metricsErr := <-metricsDone; metricsErr != nil {
		logger.Error("Metrics server error: %v", metricsErr)
	}

	if serveErr != nil {
		logger.Error("Server error: %v", serveErr)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
