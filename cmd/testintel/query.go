package testintel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testintel/internal/store"
)

var (
	flakyHistory bool
	flakyLimit   int
)

var testCmd = &cobra.Command{
	Use:   "test <test-id>",
	Short: "Show a recorded test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		test, err := sess.recorder.GetTest(ctx, args[0])
		if err != nil {
			return lookupError(args[0], err)
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), test)
		}
		printTest(cmd.OutOrStdout(), test)
		return nil
	},
}

var perfCmd = &cobra.Command{
	Use:   "perf <test-id>",
	Short: "Show a test's performance metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		perf, err := sess.recorder.GetPerformanceMetrics(ctx, args[0])
		if err != nil {
			return lookupError(args[0], err)
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), perf)
		}
		printPerformance(cmd.OutOrStdout(), perf)
		return nil
	},
}

var flakyCmd = &cobra.Command{
	Use:   "flaky <test-id>",
	Short: "Score a test's flakiness from its recorded history",
	Long: `Score a test's flakiness from its recorded execution history.

With --history, list the flakiness reports stored by earlier ingestions
instead, newest first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		out := cmd.OutOrStdout()
		if flakyHistory {
			analyses, err := sess.stores.History.ListFlakyTestAnalyses(ctx, args[0], flakyLimit)
			if err != nil {
				return fmt.Errorf("failed to list analyses: %w", err)
			}
			if jsonOutput {
				return writeJSON(out, analyses)
			}
			if len(analyses) == 0 {
				fmt.Fprintf(out, "No stored flakiness reports for %s.\n", args[0])
			}
			for _, a := range analyses {
				printFlaky(out, a)
			}
			return nil
		}

		analysis, err := sess.recorder.AnalyzeTestFlakiness(ctx, args[0])
		if err != nil {
			return lookupError(args[0], err)
		}
		if jsonOutput {
			return writeJSON(out, analysis)
		}
		printFlaky(out, *analysis)
		return nil
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage <symbol-id>",
	Short: "Aggregate the coverage tests provide to a code symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		analysis, err := sess.recorder.GetCoverageAnalysis(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), analysis)
		}
		printCoverage(cmd.OutOrStdout(), analysis)
		return nil
	},
}

func init() {
	flakyCmd.Flags().BoolVar(&flakyHistory, "history", false, "List stored flakiness reports")
	flakyCmd.Flags().IntVar(&flakyLimit, "limit", store.DefaultAnalysisLimit, "Maximum number of stored reports to list")
}

func lookupError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no test recorded with id %q", id)
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
