// Workspace-proxy forwards workspace API calls from clients that cannot
// reach the API directly.
//
// Configuration is read from the voicetask config file and VOICETASK_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	workspace-proxy
//
//	# Use another config file
//	workspace-proxy -config /etc/voicetask/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicetask/internal/config"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/fyrsmithlabs/voicetask/internal/proxy"
	"github.com/fyrsmithlabs/voicetask/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  workspace-proxy           Start the proxy\n")
			fmt.Fprintf(os.Stderr, "  workspace-proxy version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("workspace-proxy by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the proxy and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.NewLogger(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := l.Underlying()
	defer func() {
		_ = logger.Sync()
	}()

	tel := telemetry.New(ctx, cfg.Telemetry, version, logger)
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting workspace-proxy",
		zap.String("version", version),
		zap.Int("port", cfg.Proxy.Port),
		zap.String("upstream", cfg.Proxy.UpstreamURL))

	srv := proxy.NewServer(proxy.Config{
		Host:            cfg.Proxy.Host,
		Port:            cfg.Proxy.Port,
		Path:            cfg.Proxy.Path,
		UpstreamURL:     cfg.Proxy.UpstreamURL,
		UpstreamTimeout: cfg.Proxy.UpstreamTimeout.Duration(),
		ShutdownTimeout: cfg.Proxy.ShutdownTimeout.Duration(),
		CacheMaxAge:     cfg.Proxy.CacheMaxAge.Duration(),
		Version:         cfg.Workspace.Version,
		UserAgent:       cfg.Proxy.UserAgent,
	}, logger)

	return srv.Start(ctx)
}
