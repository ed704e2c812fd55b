package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/openfinance/internal/config"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "openfinance",
		Short: "Transaction ingestion API for phone shortcuts",
		Long: `openfinance receives transactions sent by a phone shortcut, normalizes them,
stores them in the primary store and mirrors them into a Notion database.

Without a subcommand the HTTP server is started.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console, json)")
	root.PersistentFlags().String("store", "", "primary store backend (memory, sqlite, postgres, bigquery)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	})
	root.AddCommand(checkStoreCmd())
	root.AddCommand(checkMirrorCmd())

	return root
}

// loadConfig reads configuration, letting explicitly set flags win over the
// environment and config file.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	v := viper.New()
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"log_level":     "log-level",
		"log_format":    "log-format",
		"store_backend": "store",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	log := logger.NewWithOptions(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	return cfg, log, nil
}
