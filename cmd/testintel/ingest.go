package testintel

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/testintel/internal/ingest"
	"github.com/kamilpajak/testintel/internal/parser"
	"github.com/kamilpajak/testintel/pkg/models"
)

var (
	ingestFormat       string
	ingestMetricsFile  string
	ingestFailOnFailed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <report>...",
	Short: "Parse test reports and record their results",
	Long: `Parse one or more test reports and record every result.

Reports are parsed concurrently and recorded in argument order. A file that
fails to parse or record does not stop the others; the command exits
non-zero if any file failed. With --fail-on-test-failures it also exits
non-zero when a recorded report contains failed tests.

Examples:
  testintel ingest junit.xml
  testintel ingest --format jest coverage/jest-results.json
  testintel ingest playwright-report/results.json cypress/results.json --json
  testintel ingest --fail-on-test-failures build/test-results/*.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFormat, "format", "f", string(parser.FormatAuto),
		"Report format (auto, junit, jest, mocha, vitest, cypress, playwright, canonical)")
	ingestCmd.Flags().StringVar(&ingestMetricsFile, "metrics-file", "", "Write ingestion metrics in Prometheus text format to this file")
	ingestCmd.Flags().BoolVar(&ingestFailOnFailed, "fail-on-test-failures", false, "Exit non-zero if any recorded report has failed tests")
}

type parsedReport struct {
	path  string
	suite *models.TestSuiteResult
	err   error
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	stop := startSpinner(fmt.Sprintf(" Parsing %d report(s)...", len(args)))
	reports := parseReports(sess.ingest, args, parser.Format(ingestFormat))
	stop()

	var result *multierror.Error
	var failing []string
	summaries := make([]ingest.Summary, 0, len(reports))
	for _, r := range reports {
		if r.err != nil {
			result = multierror.Append(result, r.err)
			continue
		}
		summary, err := sess.ingest.Record(ctx, r.path, r.suite)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to record %s: %w", r.path, err))
			continue
		}
		summaries = append(summaries, summary)
		if r.suite.HasFailures() {
			failing = append(failing, r.path)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := json.NewEncoder(out).Encode(summaries); err != nil {
			return err
		}
	} else {
		for _, s := range summaries {
			printSummary(out, s)
		}
	}

	metricsFile := ingestMetricsFile
	if metricsFile == "" {
		metricsFile = cfg.MetricsFile
	}
	if metricsFile != "" {
		if err := sess.metrics.Write(metricsFile); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if ingestFailOnFailed && len(failing) > 0 {
		result = multierror.Append(result, fmt.Errorf("%d report(s) contain failed tests: %s", len(failing), strings.Join(failing, ", ")))
	}

	return result.ErrorOrNil()
}

// parseReports reads and parses every path concurrently. Failures are kept
// per report; the result preserves the order of paths.
func parseReports(svc *ingest.Service, paths []string, format parser.Format) []parsedReport {
	reports := make([]parsedReport, len(paths))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			reports[i].path = path
			content, err := os.ReadFile(path)
			if err != nil {
				reports[i].err = fmt.Errorf("failed to read %s: %w", path, err)
				return nil
			}
			suite, err := svc.Parse(path, content, format)
			if err != nil {
				reports[i].err = fmt.Errorf("failed to parse %s: %w", path, err)
				return nil
			}
			reports[i].suite = suite
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// startSpinner shows a spinner on interactive terminals and returns the
// function that stops it.
func startSpinner(suffix string) func() {
	if jsonOutput || !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}
