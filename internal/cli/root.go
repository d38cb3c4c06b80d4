package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/chainsync/internal/control"
	"github.com/vietddude/chainsync/internal/core/config"
	"github.com/vietddude/chainsync/internal/indexing/chainsync"
)

// LevelTrace is the level of the per-checkpoint sync logs.
const LevelTrace = chainsync.LevelTrace

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "chainsync",
	Short: "Multi-network event sync service",
	Long:  `chainsync backfills and follows contract logs across EVM networks and publishes a single ordered checkpoint stream.`,
	Run:   runSync,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file, exiting on failure.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func parseLevel(level string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	slogLevel := parseLevel(cfg.Logging.Level, isDebug)
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Info("Logger initialized", "level", slogLevel.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize chainsync", "error", err)
		os.Exit(1)
	}

	slog.Info("chainsync started", "config", cfgPath, "networks", len(cfg.Networks), "sources", len(cfg.Sources))

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("chainsync stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("chainsync stopped")
}
