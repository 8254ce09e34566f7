// Package config loads InetMonitor's tunables: the peak-detection window
// and threshold, the aggregator flush interval, the geolocation throttle,
// and the debug-event ring size (spec.md §6). It binds them through viper so
// a config file, environment variables, and defaults compose the same way
// regardless of how the monitor is launched (interactively or from a
// service manager).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every §6 tunable plus store/session identity.
type Config struct {
	// PeakWindow is how far back find_peaks looks. Default 3600s.
	PeakWindow time.Duration
	// PeakThresholdBytes is the minimum per-(bucket,app) total to count as
	// a peak. Default 1 MiB.
	PeakThresholdBytes uint64
	// FlushInterval is how often the Persister drains the deltaboard.
	// Default 1s.
	FlushInterval time.Duration
	// GeoThrottle is the minimum spacing between outbound geolocation
	// requests. Default 1500ms, must stay >= 1500ms per §4.5.
	GeoThrottle time.Duration
	// DebugRingSize bounds the last-events diagnostic ring. Default 10.
	DebugRingSize int
	// SessionName is the kernel trace session name. Empty means the
	// trace.Session generates one.
	SessionName string
	// StorePath is the embedded database file path.
	StorePath string
	// GeoEndpoint is the plaintext geolocation HTTP endpoint template; "%s"
	// is replaced with the IP.
	GeoEndpoint string
	// LogWindowBefore/LogWindowAfter hold a system-log join window around a
	// peak: 60s before, 120s after by default. analysis.Correlator does not
	// read them; it always queries [bucket-60s, bucket+120s].
	LogWindowBefore time.Duration
	LogWindowAfter  time.Duration
}

// Default returns spec.md §6's defaults verbatim.
func Default() Config {
	return Config{
		PeakWindow:         3600 * time.Second,
		PeakThresholdBytes: 1 << 20, // 1 MiB
		FlushInterval:      1 * time.Second,
		GeoThrottle:        1500 * time.Millisecond,
		DebugRingSize:      10,
		StorePath:          defaultStorePath(),
		GeoEndpoint:        "http://ip-api.com/line/%s?fields=countryCode",
		LogWindowBefore:    60 * time.Second,
		LogWindowAfter:     120 * time.Second,
	}
}

func defaultStorePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "inetmonitor.db"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "inetmonitor", "traffic.db")
}

// Load reads ~/.config/inetmonitor/config.yaml (or $XDG_CONFIG_HOME),
// overlays INETMON_* environment variables, and falls back to Default()
// for anything unset. A missing config file is not an error; one that
// exists but cannot be read or parsed is.
func Load() (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir())
	v.SetEnvPrefix("INETMON")
	v.AutomaticEnv()

	v.SetDefault("peak_window_seconds", int(cfg.PeakWindow.Seconds()))
	v.SetDefault("peak_threshold_bytes", cfg.PeakThresholdBytes)
	v.SetDefault("flush_interval_seconds", cfg.FlushInterval.Seconds())
	v.SetDefault("geo_throttle_ms", cfg.GeoThrottle.Milliseconds())
	v.SetDefault("debug_ring_size", cfg.DebugRingSize)
	v.SetDefault("session_name", cfg.SessionName)
	v.SetDefault("store_path", cfg.StorePath)
	v.SetDefault("geo_endpoint", cfg.GeoEndpoint)
	v.SetDefault("log_window_before_seconds", int(cfg.LogWindowBefore.Seconds()))
	v.SetDefault("log_window_after_seconds", int(cfg.LogWindowAfter.Seconds()))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.PeakWindow = time.Duration(v.GetInt("peak_window_seconds")) * time.Second
	cfg.PeakThresholdBytes = v.GetUint64("peak_threshold_bytes")
	cfg.FlushInterval = time.Duration(v.GetFloat64("flush_interval_seconds") * float64(time.Second))
	cfg.GeoThrottle = time.Duration(v.GetInt64("geo_throttle_ms")) * time.Millisecond
	if cfg.GeoThrottle < 1500*time.Millisecond {
		cfg.GeoThrottle = 1500 * time.Millisecond
	}
	cfg.DebugRingSize = v.GetInt("debug_ring_size")
	cfg.SessionName = v.GetString("session_name")
	cfg.StorePath = v.GetString("store_path")
	cfg.GeoEndpoint = v.GetString("geo_endpoint")
	cfg.LogWindowBefore = time.Duration(v.GetInt("log_window_before_seconds")) * time.Second
	cfg.LogWindowAfter = time.Duration(v.GetInt("log_window_after_seconds")) * time.Second

	return cfg, nil
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "inetmonitor")
}
