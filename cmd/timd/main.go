package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timhq/tim-agent-core/internal/app"
	"github.com/timhq/tim-agent-core/internal/config"
	"github.com/timhq/tim-agent-core/internal/logger"
)

func main() {
	var (
		port       int
		dbPath     string
		logLevel   string
		configPath string
	)

	root := &cobra.Command{
		Use:   "timd",
		Short: "tim agent-core loopback daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, port, dbPath, logLevel, configPath)
		},
	}

	root.Flags().IntVar(&port, "port", 0, "loopback port (0 uses config, default 8123)")
	root.Flags().StringVar(&dbPath, "db", "", "tracking database path (overrides config and auto-discovery)")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&configPath, "config", "", "path to timd.yaml (defaults to the per-OS user config directory)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, port int, dbPath, logLevel, configPath string) error {
	if configPath == "" {
		dir, err := config.GetUserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
		configPath = filepath.Join(dir, config.ConfigFileName)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a, err := app.New(cfg, logger.Log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, configPath); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	logger.Info("timd listening", "port", a.Server.BoundPort())

	<-ctx.Done()
	logger.Info("timd shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}
