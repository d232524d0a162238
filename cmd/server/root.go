package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/lead-engine/api"
	"github.com/warp/lead-engine/config"
	"github.com/warp/lead-engine/logger"
	"github.com/warp/lead-engine/store/sqlite"
)

var (
	// Global flags, applied over the loaded config when set.
	dbPath   string
	logLevel string
	pretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Lead distribution engine for broker teams",
	Long: `Distributes purchased leads (PME and PF) to brokers by sales production,
tracks deliveries against balances and raises follow-up alerts.

Usage:
  server [command]

Examples:
  server serve
  server distribute --stock-a 40 --stock-b 25
  server close-cycle --reference 2025-03`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (\":memory:\" for RAM)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-friendly console logs")
}

// loadConfig loads the layered config and applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("pretty") {
		cfg.LogPretty = pretty
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})
	logger.SetGlobalLogger(log)
	return log
}

// openHandler opens the store and builds the API handler the commands share.
// The caller closes the store.
func openHandler(cfg *config.Config, log zerolog.Logger) (*api.Handler, *sqlite.Store, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, nil, fmt.Errorf("load policy: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return api.NewHandler(store, policy, log), store, nil
}
