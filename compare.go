// ABOUTME: One-shot clock comparison command
// ABOUTME: Compares a target server with this host or through a time authority's compare API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/checktime/checktime-go/internal/compare"
	"github.com/checktime/checktime-go/internal/config"
	"github.com/checktime/checktime-go/internal/logging"
	"github.com/checktime/checktime-go/internal/protocol"
	"github.com/checktime/checktime-go/internal/timesource"
)

var (
	compareVia     string
	compareJSON    bool
	compareTimeout time.Duration
)

var compareCmd = &cobra.Command{
	Use:   "compare URL",
	Short: "Compare a server's clock with this machine or a time authority",
	Long: `Measure the target's clock once through its Date header and report the
difference, network round trip, and an accuracy assessment. With --via the
measurement is made by a remote Check Time server against its own clock.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareVia, "via", "", "Time authority address (host:port or URL) to compare through")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Print the raw comparison as JSON")
	compareCmd.Flags().DurationVar(&compareTimeout, "timeout", 10*time.Second, "Overall timeout")
	compareCmd.Flags().String("http-method", "HEAD", "HTTP method used against the target")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(logging.Config{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(cmd.Context(), compareTimeout)
	defer cancel()

	var result *protocol.Comparison
	if compareVia != "" {
		result, err = timesource.NewCompareClient(compareVia).Compare(ctx, args[0])
	} else {
		svc := compare.NewService(compare.Config{
			CacheTTL:     -1,
			MaxRoundTrip: cfg.Sync.MaxRoundTrip,
			Method:       cfg.Source.Method,
		}, log.Named("compare"))
		result, err = svc.Compare(ctx, args[0])
	}
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	if compareJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printComparison(os.Stdout, result)
	return nil
}

// printComparison renders a comparison for the terminal
func printComparison(w io.Writer, c *protocol.Comparison) {
	label := color.New(color.Bold)
	tc := c.TimeComparison
	ni := c.NetworkInfo

	diffColor := color.New(color.FgGreen)
	switch abs := math.Abs(tc.TimeDifference); {
	case abs >= 1000:
		diffColor = color.New(color.FgRed)
	case abs >= 100:
		diffColor = color.New(color.FgYellow)
	}

	line := func(name, value string) {
		label.Fprintf(w, "%-16s", name)
		fmt.Fprintln(w, value)
	}

	line("Target", c.Metadata.Source)
	line("Our time", tc.OurServerTime)
	line("Target time", tc.TargetServerTime)
	line("Corrected", tc.CorrectedTargetTime)

	label.Fprintf(w, "%-16s", "Difference")
	diffColor.Fprintf(w, "%+.2fms", tc.TimeDifference)
	fmt.Fprintf(w, " (%s, target is %s)\n", tc.TimeDifferenceFormatted, tc.Direction)
	line("", compare.Describe(tc.TimeDifference))

	line("Network", fmt.Sprintf("rtt %.2fms, delay %.2fms, %s", ni.RTT, ni.NetworkDelay, ni.Reliability))
	line("Accuracy", fmt.Sprintf("%s (trust %d%%)", c.Analysis.Accuracy, c.Analysis.TrustLevel))
	line("Recommendation", c.Analysis.Recommendation)

	if c.Metadata.Cached {
		color.New(color.Faint).Fprintf(w, "(cached measurement from %s)\n", c.Metadata.MeasuredAt)
	}
}
