package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flakewatch/internal/history"
)

var recordRunID string

// recordCmd ingests one test run from a results JSON file.
var recordCmd = &cobra.Command{
	Use:   "record <project> <results.json>",
	Short: "Record one test run for a project",
	Long: `Reads a results JSON file produced by a test harness and appends it to the
project's history. The file carries aggregate counts plus an optional tests
list; per-test entries may use either nodeid/outcome or name/status keys.

Appending triggers flaky-test recomputation for the project.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, path := args[0], args[1]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read results file: %w", err)
		}
		var results history.RawRunResults
		if err := json.Unmarshal(data, &results); err != nil {
			return fmt.Errorf("failed to parse results file: %w", err)
		}

		store, arch, err := openStore()
		if err != nil {
			return err
		}
		if arch != nil {
			defer arch.Close()
		}

		if err := store.Append(project, results, recordRunID); err != nil {
			return err
		}
		fmt.Printf("recorded run for %s (%d tests)\n", project, len(results.Tests))
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordRunID, "run-id", "", "caller-supplied run ID (default: generated)")
}
