package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rorelay/rorelay-server/internal/app"
	"github.com/rorelay/rorelay-server/internal/config"
	"github.com/rorelay/rorelay-server/internal/log"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "rorelay-server",
		Short: "Authoritative relay server for a multiplayer vehicle simulation.",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	config.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	level := "info"
	if v, err := cmd.Flags().GetBool("server.debug"); err == nil && v {
		level = "debug"
	}
	logger := log.New(level)

	cfg, path, err := config.Load(logger, configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info().Str("config_path", path).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().
		Str("ip", cfg.Server.IP).
		Int("port", cfg.Server.Port).
		Str("name", cfg.Server.Name).
		Msg("starting rorelay server")

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
