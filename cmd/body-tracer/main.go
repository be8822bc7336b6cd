package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/guided-traffic/http-body-tracer/internal/config"
	"github.com/guided-traffic/http-body-tracer/internal/monitoring"
	"github.com/guided-traffic/http-body-tracer/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "body-tracer",
		Short: "HTTP server that traces request bodies without consuming them",
		Long: `body-tracer serves HTTP requests and writes a readable rendition of every
PUT and POST body to the log, while the handler still receives the untouched body.

Bodies are obtained in one of these ways:
- form-encoded requests are rendered from their parsed parameters
- buffered bodies are replayed and decoded with the configured encoding
- unbuffered bodies are left alone and a warning is logged

All configuration is done through YAML configuration files or HBT_* environment
variables. Use --config to specify a configuration file.`,
		Run: runServer,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("body-tracer %s (commit %s, built %s)\n", version, commit, buildTime)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.InitConfig(cfgFile)
}

func setupLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if err := setupLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	logrus.WithFields(logrus.Fields{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
	}).Info("HTTP body tracer build information")

	if cfg.Trace.Enabled && !cfg.Trace.BufferBodies {
		logrus.Warn("Body buffering is disabled: only form parameters can be traced")
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create server")
	}
	srv.SetBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	if cfg.Monitoring.Enabled {
		monitoring.SetServerInfo(version, commit, buildTime)
		monitoringServer := monitoring.NewServer(&monitoring.Config{
			BindAddress: cfg.Monitoring.BindAddress,
			MetricsPath: cfg.Monitoring.MetricsPath,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := monitoringServer.Start(ctx); err != nil {
				logrus.WithError(err).Error("Monitoring server failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	<-sigChan
	logrus.Info("Received shutdown signal, gracefully shutting down...")

	cancel()
	wg.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
