package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flakewatch/internal/history"
)

var reportDays int

// historyCmd prints a project's run history within the day window.
var historyCmd = &cobra.Command{
	Use:   "history <project>",
	Short: "Print a project's recent run history as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, arch, err := openStore()
		if err != nil {
			return err
		}
		if arch != nil {
			defer arch.Close()
		}

		records := store.History(args[0], reportDays)
		if records == nil {
			records = []history.RunRecord{}
		}
		return printJSON(records)
	},
}

// flakyCmd prints the last computed flaky-test report for a project.
var flakyCmd = &cobra.Command{
	Use:   "flaky <project>",
	Short: "Print a project's flaky-test report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, arch, err := openStore()
		if err != nil {
			return err
		}
		if arch != nil {
			defer arch.Close()
		}

		report, ok := store.FlakyReport(args[0])
		if !ok {
			return printJSON(map[string]any{})
		}
		return printJSON(report)
	},
}

// trendsCmd prints a single test's trend statistics. Expected no-data
// conditions render as the documented {"error": ...} shape rather than a
// process failure, so scripted callers can branch on the payload.
var trendsCmd = &cobra.Command{
	Use:   "trends <project> <test>",
	Short: "Print trend statistics for one test as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, arch, err := openStore()
		if err != nil {
			return err
		}
		if arch != nil {
			defer arch.Close()
		}

		trend, err := store.Trends(args[0], args[1], reportDays)
		switch {
		case errors.Is(err, history.ErrProjectNotFound):
			return printJSON(map[string]string{"error": "Project not found"})
		case errors.Is(err, history.ErrNoData):
			return printJSON(map[string]string{"error": "No data for this test in the specified period"})
		case err != nil:
			return err
		}
		return printJSON(trend)
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func init() {
	historyCmd.Flags().IntVar(&reportDays, "days", 7, "trailing day window")
	trendsCmd.Flags().IntVar(&reportDays, "days", 7, "trailing day window")
}
