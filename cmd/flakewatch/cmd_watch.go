package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flakewatch/internal/watch"
)

var watchProject string

// watchCmd runs the drop-directory ingester until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and ingest result JSON files as they appear",
	Long: `Watches a drop directory for result JSON files. Files named
"<project>--<anything>.json" are recorded under that project; other files
fall back to --project, or to the file stem when no default is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, arch, err := openStore()
		if err != nil {
			return err
		}
		if arch != nil {
			defer arch.Close()
		}

		watcher, err := watch.New(args[0], watchProject, store, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := watcher.Start(ctx); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		fmt.Printf("watching %s (ctrl-c to stop)\n", args[0])
		<-sigCh

		watcher.Stop()
		stats := watcher.Stats()
		fmt.Printf("stopped: %d files seen, %d ingested, %d errors\n",
			stats.FilesSeen, stats.Ingested, stats.Errors)
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchProject, "project", "", "default project for unprefixed files")
}
