// ABOUTME: Entry point for the Check Time clock
// ABOUTME: Cobra root command running the synchronized clock, alarm, and TUI
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/alarm"
	"github.com/checktime/checktime-go/internal/app"
	"github.com/checktime/checktime-go/internal/config"
	"github.com/checktime/checktime-go/internal/logging"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
	"github.com/checktime/checktime-go/internal/version"
)

var (
	configPath string

	alarmAt   string
	preAlerts string
	sound     bool
	highlight bool
	noTUI     bool
	discover  bool
)

// rootCmd runs the clock when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "checktime",
	Short: "Check Time - server clock with millisecond precision and alarms",
	Long: `Check Time projects a remote server's clock onto the local clock using a
round-trip corrected offset, refreshes it every second, and renders it with
millisecond precision. An optional alarm counts down against the server
clock with pre-alerts before the target.`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runClock,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: ./checktime.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "checktime.log", "Log file path")

	flags := rootCmd.Flags()
	flags.StringP("url", "u", "", "Server to read time from (URL, or host:port for websocket)")
	flags.String("kind", "date", "Time source kind: date, json, websocket")
	flags.String("http-method", "HEAD", "HTTP method for date sources")
	flags.Duration("interval", time.Second, "Resync interval")
	flags.Duration("max-rtt", internalsync.DefaultMaxRoundTrip, "Discard samples with a longer round trip")
	flags.Duration("stale-after", 5*time.Second, "Mark the offset stale after this long without a resync")
	flags.String("zone", "Asia/Seoul", "Display time zone")
	flags.Bool("millis", true, "Show milliseconds")
	flags.Duration("refresh", 33*time.Millisecond, "Display refresh interval")
	flags.Duration("tick", 250*time.Millisecond, "Alarm tick interval")
	flags.String("sound-file", "", "MP3 played when the alarm completes")
	flags.String("name", "", "Client name (default: hostname-checktime)")

	flags.StringVar(&alarmAt, "at", "", "Alarm time of day, HH:MM:SS")
	flags.StringVar(&preAlerts, "pre", "60,30,10", "Pre-alert lead times in seconds")
	flags.BoolVar(&sound, "sound", true, "Play a sound on alarm events")
	flags.BoolVar(&highlight, "highlight", true, "Show the clock in red once the alarm is near")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable TUI, use streaming logs instead")
	flags.BoolVar(&discover, "discover", false, "Find a time authority with mDNS when --url is empty")

	rootCmd.AddCommand(compareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runClock(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	if cfg.Source.URL == "" && !discover {
		return fmt.Errorf("a server is required: pass --url or --discover")
	}

	useTUI := !noTUI

	// TUI mode: log only to file. Streaming mode: file and stderr.
	log, closeLog, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Stderr: !useTUI,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		name = fmt.Sprintf("%s-checktime", hostname)
	}

	var spec *alarm.Spec
	if alarmAt != "" {
		s, err := buildAlarm(alarmAt, preAlerts, alarm.Options{Sound: sound, Highlight: highlight})
		if err != nil {
			return err
		}
		spec = &s
	}

	log.Info("starting", zap.String("version", version.String()), zap.String("name", name))

	clock := app.New(app.Config{
		Source:   cfg.Source.URL,
		Kind:     timesource.Kind(cfg.Source.Kind),
		Method:   cfg.Source.Method,
		Discover: discover,
		Name:     name,
		Sync: internalsync.SyncerConfig{
			Interval:     cfg.Sync.Interval,
			Timeout:      cfg.Sync.Timeout,
			MaxRoundTrip: cfg.Sync.MaxRoundTrip,
		},
		StaleAfter:   cfg.Sync.StaleAfter,
		Zone:         cfg.Location(),
		Refresh:      cfg.Display.Refresh,
		ShowMillis:   cfg.Display.ShowMillis,
		TickInterval: cfg.Alarm.TickInterval,
		SoundFile:    cfg.Alarm.SoundFile,
		Alarm:        spec,
		UseTUI:       useTUI,
	}, log)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("shutdown signal received", zap.Stringer("signal", sig))
		clock.Stop()
	}()

	err = clock.Start()
	clock.Stop()
	if err != nil {
		return err
	}

	log.Info("clock stopped")
	return nil
}

// buildAlarm turns --at and --pre into a validated alarm spec
func buildAlarm(at, pre string, opts alarm.Options) (alarm.Spec, error) {
	tod, err := alarm.ParseClock(at)
	if err != nil {
		return alarm.Spec{}, err
	}
	leads, err := alarm.ParseLeads(pre)
	if err != nil {
		return alarm.Spec{}, err
	}
	return alarm.NewSpec(tod, leads, opts)
}
