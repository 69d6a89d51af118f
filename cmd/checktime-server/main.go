// ABOUTME: Entry point for the Check Time authority server
// ABOUTME: Serves time over HTTP and websocket, with comparison API and mDNS advertisement
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/compare"
	"github.com/checktime/checktime-go/internal/config"
	"github.com/checktime/checktime-go/internal/logging"
	"github.com/checktime/checktime-go/internal/server"
	"github.com/checktime/checktime-go/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "checktime-server",
	Short: "Check Time authority - serves a reference clock to Check Time clients",
	Long: `checktime-server answers GET /api/time, compares target servers on
POST /api/time/compare, exchanges time over the /checktime websocket, exposes
Prometheus metrics on /metrics, and advertises itself with mDNS.`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: ./checktime.yaml if present)")
	flags.Int("port", 3001, "HTTP and websocket port")
	flags.String("name", "", "Server friendly name (default: hostname-checktime-server)")
	flags.Bool("mdns", true, "Advertise with mDNS")
	flags.String("reference", "", "JSON time endpoint to discipline the served clock against")
	flags.String("zone", "Asia/Seoul", "Reference time zone reported to clients")
	flags.Duration("cache-ttl", 0, "How long a comparison measurement is reused (default 5s, negative disables)")
	flags.Int("cache-size", 128, "Number of targets remembered by the comparison cache")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "checktime-server.log", "Log file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	// Log to both file and stderr
	log, closeLog, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Stderr: true,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	// Determine server name
	serverName := cfg.Server.Name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-checktime-server", hostname)
	}

	log.Info("starting server",
		zap.String("version", version.String()),
		zap.String("name", serverName),
		zap.Int("port", cfg.Server.Port),
		zap.String("log_file", cfg.Logging.File))

	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		Name:         serverName,
		EnableMDNS:   cfg.Server.EnableMDNS,
		Zone:         cfg.Display.Zone,
		ReferenceURL: cfg.Server.ReferenceURL,
		SyncInterval: cfg.Sync.Interval,
		Compare: compare.Config{
			CacheSize:    cfg.Compare.CacheSize,
			CacheTTL:     cfg.Compare.CacheTTL,
			MaxRoundTrip: cfg.Sync.MaxRoundTrip,
			Method:       cfg.Source.Method,
		},
	}, log)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down gracefully", zap.Stringer("signal", sig))
		srv.Stop()
	}()

	// Start server
	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped")
	return nil
}
