// ABOUTME: Probe tool to verify clock sync against a time source
// ABOUTME: Takes a fixed number of samples and prints each offset plus network statistics
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
)

var (
	kind     string
	count    int
	interval time.Duration
	maxRTT   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "checktime-probe SOURCE",
	Short:        "Sample a time source and report offsets and network quality",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runProbe,
}

func init() {
	rootCmd.Flags().StringVar(&kind, "kind", "date", "Time source kind: date, json, websocket")
	rootCmd.Flags().IntVarP(&count, "count", "n", 10, "Number of samples")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between samples")
	rootCmd.Flags().DurationVar(&maxRTT, "max-rtt", internalsync.DefaultMaxRoundTrip, "Discard samples with a longer round trip")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	source := args[0]

	var fetcher internalsync.Fetcher
	switch timesource.Kind(kind) {
	case timesource.KindDate:
		fetcher = timesource.NewDateFetcher(source)
	case timesource.KindJSON:
		fetcher = timesource.NewJSONFetcher(source)
	case timesource.KindWebSocket:
		ws := timesource.NewWSFetcher(timesource.WSConfig{
			ServerAddr: source,
			ClientID:   uuid.New().String(),
			Name:       "checktime-probe",
		}, nil, zap.NewNop())
		defer ws.Close()
		fetcher = ws
	default:
		return fmt.Errorf("unknown source kind: %q", kind)
	}

	projector := internalsync.NewProjector(nil)
	syncer := internalsync.NewSyncer(internalsync.SyncerConfig{
		Interval:     interval,
		MaxRoundTrip: maxRTT,
	}, fetcher, projector, zap.NewNop())

	fmt.Printf("=== Probing %s (%s), %d samples ===\n", source, kind, count)

	bad := color.New(color.FgRed)
	for i := 0; i < count; i++ {
		if i > 0 {
			time.Sleep(interval)
		}

		offset, err := syncer.SyncOnce(context.Background())
		switch {
		case errors.Is(err, internalsync.ErrNoTimeInfo):
			bad.Printf("#%-3d no time information\n", i+1)
		case err != nil:
			bad.Printf("#%-3d %v\n", i+1, err)
		default:
			fmt.Printf("#%-3d offset %+6dms  rtt %4dms  %s\n",
				i+1, offset.Millis(), offset.RoundTripMillis(), offset.Quality)
		}
	}

	stats := syncer.Stats()
	fmt.Println()
	fmt.Printf("samples %d, failures %d, loss %.1f%%\n", stats.Samples, stats.Failures, stats.PacketLossRate)
	if stats.Samples > 0 {
		fmt.Printf("rtt avg %dms  min %dms  max %dms  p90 %dms  condition %s\n",
			stats.Average.Milliseconds(), stats.Min.Milliseconds(), stats.Max.Milliseconds(),
			stats.P90.Milliseconds(), stats.Condition)
	}
	if o, ok := projector.Offset(); ok {
		fmt.Printf("final offset %+dms from %s\n", o.Millis(), o.Source)
	}
	return nil
}
