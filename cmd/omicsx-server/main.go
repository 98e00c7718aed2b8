package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/config"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/metrics"
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/internal/server"
	"github.com/me/omicsx/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (default ~/.omicsx/config.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	region := flag.String("region", "", "AWS region (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	path, optional := *configFile, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *region != "" {
		cfg.Region = *region
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	metrics.Init()

	awsCfg, err := awsclient.Load(context.Background(), awsclient.Options{
		Region:          cfg.Region,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		HTTPTimeout:     cfg.HTTPTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	omicsClient := omics.NewFromConfig(awsCfg)

	backend := server.Backend{
		Fetcher: telemetry.NewFetcher(omicsClient, cfg.MaxTasks, logger),
		Runs:    runs.New(omicsClient, sts.NewFromConfig(awsCfg), logger),
		// A fresh source per request keeps prices from one report out of the next.
		Pricing: func() pricing.Source {
			return pricing.NewCachingSource(pricing.NewLoader(cfg.Pricing.Endpoint, cfg.Pricing.Version, cfg.HTTPTimeout, logger))
		},
	}
	srv := server.New(cfg, backend, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "region", cfg.Region)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
