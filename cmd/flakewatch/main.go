package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flakewatch/internal/archive"
	"flakewatch/internal/config"
	"flakewatch/internal/history"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	storageDir  string
	archivePath string

	// Shared state built in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flakewatch",
	Short: "flakewatch - test history, flakiness detection, and skeptical verification",
	Long: `flakewatch tracks test-run history per project, detects flaky tests over a
trailing run window, computes per-test duration trends with regression
detection, and scores observed executions for authenticity (is the harness
exercising real logic, or mocked/faked results?).

History is persisted as pretty-printed JSON per project; records evicted
from the bounded live window can be archived to SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}
		if storageDir != "" {
			cfg.StorageDir = storageDir
		}
		if archivePath != "" {
			cfg.ArchivePath = archivePath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// openStore builds the history store per current config, attaching the cold
// archive when one is configured. The caller owns closing the archive.
func openStore() (*history.Store, *archive.Archive, error) {
	var arch *archive.Archive
	opts := []history.Option{}
	if cfg.ArchivePath != "" {
		var err error
		arch, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, history.WithArchive(arch))
	}

	store, err := history.NewStore(cfg.StorageDir, cfg, logger, opts...)
	if err != nil {
		if arch != nil {
			_ = arch.Close()
		}
		return nil, nil, err
	}
	return store, arch, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to flakewatch config YAML")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage-dir", "", "override history storage directory")
	rootCmd.PersistentFlags().StringVar(&archivePath, "archive", "", "override SQLite cold archive path")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(flakyCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
