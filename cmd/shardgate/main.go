package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shardgate/internal/config"
	"shardgate/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	envFile    string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// errRejected signals a negative verdict. main exits 1 without printing it.
var errRejected = errors.New("rejected")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shardgate",
	Short: "Pre-storage gatekeeper for shared agent memory",
	Long: `shardgate validates knowledge shards before they are stored in the
shared memory collections used by cooperating agents.

Every shard is checked for well-formed metadata, content budget and quality,
and duplicates across all collections (content hash, unique_id and semantic
similarity) before a verdict is produced.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(".shardgate", "config.yaml"), "Config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before config")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		}
		os.Exit(1)
	}
}

// setup initializes the logger, environment and configuration.
func setup(cmd *cobra.Command, args []string) error {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if verbose {
		cfg.Logging.DebugMode = true
	}

	if err := logging.Initialize(logging.Settings{
		Dir:        cfg.Logging.Dir,
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
		Categories: cfg.Logging.Categories,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		logger.Warn("Category logging disabled", zap.Error(err))
	}
	if cfg.Logging.Audit {
		if err := logging.InitAudit(); err != nil {
			logger.Warn("Audit log disabled", zap.Error(err))
			logging.BootWarn("audit log disabled: %v", err)
		}
	}
	logging.Get(logging.CategoryConfig).Info("loaded %s (similarity_threshold=%.2f policy=%s)",
		configPath, cfg.Validation.SimilarityThreshold, cfg.Validation.SimilarityPolicy)
	logging.Boot("%s: store=%s embedding=%s project=%s", cmd.CommandPath(), cfg.Store.Backend, cfg.Embedding.Provider, cfg.ProjectID)

	logger.Debug("Configuration loaded",
		zap.String("path", configPath),
		zap.String("store", cfg.Store.Backend),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("project", cfg.ProjectID))
	return nil
}

// commandContext bounds a command by --timeout and SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
