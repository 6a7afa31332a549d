package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flakewatch/internal/archive"
	"flakewatch/internal/verify"
)

// verifyCmd runs a bounded verification pass over observed executions.
var verifyCmd = &cobra.Command{
	Use:   "verify <executions.json>",
	Short: "Run a skeptical verification pass over observed executions",
	Long: `Reads a JSON array of observed executions (name, category, outcome,
duration, output, error) and runs the bounded verification pass: each loop
scores every execution for authenticity, and the pass stops early once
aggregate confidence reaches the gate. A pass that exhausts its loops below
the gate is escalated for manual review.

Exit status is non-zero on escalation so CI pipelines fail visibly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read executions file: %w", err)
		}
		var execs []verify.Execution
		if err := json.Unmarshal(data, &execs); err != nil {
			return fmt.Errorf("failed to parse executions file: %w", err)
		}

		scorer := verify.NewScorer(cfg, logger)
		opts := []verify.LoopOption{}
		if cfg.ArchivePath != "" {
			arch, err := archive.Open(cfg.ArchivePath)
			if err != nil {
				return err
			}
			defer arch.Close()
			opts = append(opts, verify.WithRecorder(arch))
		}
		loop := verify.NewLoop(scorer, cfg, logger, opts...)

		report, err := loop.Run(context.Background(), func(context.Context) ([]verify.Execution, error) {
			return execs, nil
		})
		if report != nil {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		}
		if errors.Is(err, verify.ErrEscalated) {
			fmt.Fprintln(os.Stderr, "ESCALATED: manual review required")
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "PASS")
		return nil
	},
}
