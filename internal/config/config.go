// ABOUTME: Configuration loading for the clock client and time authority
// ABOUTME: Merges defaults, an optional checktime.yaml, CHECKTIME_* env vars, and command line flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Display DisplayConfig `mapstructure:"display"`
	Alarm   AlarmConfig   `mapstructure:"alarm"`
	Server  ServerConfig  `mapstructure:"server"`
	Compare CompareConfig `mapstructure:"compare"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig selects the remote clock
type SourceConfig struct {
	URL    string `mapstructure:"url"`
	Kind   string `mapstructure:"kind"`   // date, json, or websocket
	Method string `mapstructure:"method"` // HTTP method for date sources
}

// SyncConfig defines the resync cadence
type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRoundTrip time.Duration `mapstructure:"max_round_trip"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// DisplayConfig defines the TUI
type DisplayConfig struct {
	Refresh    time.Duration `mapstructure:"refresh"`
	ShowMillis bool          `mapstructure:"show_millis"`
	Zone       string        `mapstructure:"zone"`
}

// AlarmConfig defines alarm behavior
type AlarmConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	SoundFile    string        `mapstructure:"sound_file"`
}

// ServerConfig defines the time authority
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	EnableMDNS   bool   `mapstructure:"enable_mdns"`
	ReferenceURL string `mapstructure:"reference_url"`
}

// CompareConfig defines the comparison cache
type CompareConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Flag names bound onto configuration keys when present on the command line
var flagKeys = map[string]string{
	"url":          "source.url",
	"kind":         "source.kind",
	"interval":     "sync.interval",
	"millis":       "display.show_millis",
	"zone":         "display.zone",
	"sound-file":   "alarm.sound_file",
	"port":         "server.port",
	"name":         "server.name",
	"mdns":         "server.enable_mdns",
	"reference":    "server.reference_url",
	"log-level":    "logging.level",
	"log-file":     "logging.file",
	"cache-ttl":    "compare.cache_ttl",
	"max-rtt":      "sync.max_round_trip",
	"stale-after":  "sync.stale_after",
	"http-method":  "source.method",
	"refresh":      "display.refresh",
	"tick":         "alarm.tick_interval",
	"cache-size":   "compare.cache_size",
	"sync-timeout": "sync.timeout",
}

// Load loads configuration from file, environment variables, and flags.
// An empty configPath looks for an optional checktime.yaml in the working
// directory. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("checktime")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CHECKTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, use defaults, environment, and flags
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.url", "")
	v.SetDefault("source.kind", "date")
	v.SetDefault("source.method", "HEAD")

	// Sync defaults
	v.SetDefault("sync.interval", "1s")
	v.SetDefault("sync.timeout", "2s")
	v.SetDefault("sync.max_round_trip", "3s")
	v.SetDefault("sync.stale_after", "5s")

	// Display defaults
	v.SetDefault("display.refresh", "33ms")
	v.SetDefault("display.show_millis", true)
	v.SetDefault("display.zone", "Asia/Seoul")

	// Alarm defaults
	v.SetDefault("alarm.tick_interval", "250ms")
	v.SetDefault("alarm.sound_file", "")

	// Server defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.name", "")
	v.SetDefault("server.enable_mdns", true)
	v.SetDefault("server.reference_url", "")

	// Compare defaults
	v.SetDefault("compare.cache_size", 128)
	v.SetDefault("compare.cache_ttl", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "checktime.log")
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Source.Kind {
	case "date", "json", "websocket":
	default:
		return fmt.Errorf("unknown source kind: %q", cfg.Source.Kind)
	}

	cfg.Source.Method = strings.ToUpper(cfg.Source.Method)
	if cfg.Source.Method != "HEAD" && cfg.Source.Method != "GET" {
		return fmt.Errorf("source method must be HEAD or GET, got %q", cfg.Source.Method)
	}

	if cfg.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive: %v", cfg.Sync.Interval)
	}
	if cfg.Sync.Timeout <= 0 {
		return fmt.Errorf("sync timeout must be positive: %v", cfg.Sync.Timeout)
	}
	if cfg.Display.Refresh <= 0 {
		return fmt.Errorf("display refresh must be positive: %v", cfg.Display.Refresh)
	}
	if cfg.Alarm.TickInterval <= 0 {
		return fmt.Errorf("alarm tick interval must be positive: %v", cfg.Alarm.TickInterval)
	}

	if _, err := time.LoadLocation(cfg.Display.Zone); err != nil {
		return fmt.Errorf("invalid display zone %q: %w", cfg.Display.Zone, err)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", cfg.Logging.Level)
	}

	return nil
}

// Location returns the display time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Display.Zone)
	if err != nil {
		// validate rejects unknown zones; fall back for hand-built configs
		return time.FixedZone("KST", 9*3600)
	}
	return loc
}
