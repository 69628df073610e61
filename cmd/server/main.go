package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vchaly/roomcast/internal/app"
	"github.com/vchaly/roomcast/internal/config"
	"github.com/vchaly/roomcast/internal/log"
)

var (
	cfgFile  string
	addr     string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "roomcast",
	Short: "Room-scoped realtime message relay server",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func run(cmd *cobra.Command, _ []string) error {
	bootLog := log.New("info")

	cfg, cfgPath, err := config.Load(bootLog, cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	logger := log.New(cfg.LogLevel)

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", cfg.Addr).Str("config", cfgPath).Msg("starting roomcast server")
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
