package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/engine"
)

var (
	cfgFile string
	verbose bool

	startSources []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newshound",
		Short: "NewsHound: multi-source news acquisition engine",
		Long: `NewsHound polls news sources (web pages, WordPress, GraphQL APIs, YouTube
playlists and IMAP mailboxes), optionally rewrites new items through a
generative model, polishes them and stores them as articles.

Sources live in the source database; import them from YAML with
'newshound sources import', toggle them with 'sources enable/disable', and a
running engine picks up the change within one watchdog tick.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(cleanLocksCmd())
	rootCmd.AddCommand(reprocessEmailsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd
}

// startCmd creates the "start" subcommand.
func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start monitoring all active sources",
		Long: `Take the master lock, sweep stale lock files, start one monitor per active
source and the watchdog, then run until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runStart,
	}
	cmd.Flags().StringSliceVarP(&startSources, "source", "s", nil, "only start the named source(s)")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	logger.Info("starting NewsHound",
		"version", config.Version,
		"storage", cfg.Storage.Type,
		"locks", cfg.Engine.LocksDir,
		"ai", cfg.AI.Enabled,
	)
	if err := eng.Run(ctx, startSources...); err != nil {
		return fmt.Errorf("run engine: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("NewsHound %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Locks Dir:          %s\n", cfg.Engine.LocksDir)
			fmt.Printf("  Default Interval:   %s\n", cfg.Engine.DefaultInterval)
			fmt.Printf("  Error Backoff:      %s\n", cfg.Engine.ErrorBackoff)
			fmt.Printf("  Watchdog Interval:  %s\n", cfg.Engine.WatchdogInterval)
			fmt.Printf("  Master Lock Age:    %s\n", cfg.Engine.MasterLockMaxAge)
			fmt.Printf("  Stale Lock Age:     %s\n", cfg.Engine.StaleLockAge)
			fmt.Printf("  Startup Delay:      %s\n", cfg.Engine.StartupDelay)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Request Timeout:    %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Follow Redirects:   %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("  Max Body Size:      %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("  User Agents:        %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:               %s\n", cfg.Storage.Type)
			if cfg.Storage.Type == "mongodb" {
				fmt.Printf("  Mongo:              %s/%s\n", cfg.Storage.MongoDatabase, cfg.Storage.MongoCollection)
			} else {
				fmt.Printf("  DSN:                %s\n", cfg.Storage.DSN)
			}
			fmt.Printf("  Sources DSN:        %s\n", cfg.Storage.SourcesDSN)
			fmt.Printf("\nAI:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.AI.Enabled)
			fmt.Printf("  Provider:           %s\n", cfg.AI.Provider)
			fmt.Printf("  Model:              %s\n", cfg.AI.Model)
			fmt.Printf("  API Key:            %s\n", maskKey(cfg.AI.APIKey))
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:               %d\n", cfg.Metrics.Port)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.API.Enabled)
			fmt.Printf("  Port:               %d\n", cfg.API.Port)
			return nil
		},
	}
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "****" + key[len(key)-4:]
	}
}
