package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	DownloadsPath          string `json:"downloads_path"`
	Cookie                 string `json:"cookie"`
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	RequestTimeoutSeconds  int    `json:"request_timeout_seconds"`

	// Per-task retry
	DownloadMaxAttempts int `json:"download_max_attempts"`
	RetryBaseDelayMs    int `json:"retry_base_delay_ms"`
	RetryMaxDelayMs     int `json:"retry_max_delay_ms"`
	RetryJitterMs       int `json:"retry_jitter_ms"`
	RetryExponentCap    int `json:"retry_exponent_cap"`

	// Whole-batch retry
	OuterRetry       bool    `json:"outer_retry"`
	MaxPasses        int     `json:"max_passes"` // 0 = until every task succeeds
	PassDelaySeconds float64 `json:"pass_delay_seconds"`

	// Proxy settings
	ProxyProbeTimeoutSeconds float64 `json:"proxy_probe_timeout_seconds"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // console, json
	LogPath   string `json:"log_path"`

	// Metrics
	MetricsFile string `json:"metrics_file"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		DownloadsPath:          "downloads",
		MaxConcurrentDownloads: 16,
		RequestTimeoutSeconds:  60,

		DownloadMaxAttempts: 5,
		RetryBaseDelayMs:    500,
		RetryMaxDelayMs:     10_000,
		RetryJitterMs:       300,
		RetryExponentCap:    5,

		OuterRetry:       false,
		MaxPasses:        0,
		PassDelaySeconds: 5,

		ProxyProbeTimeoutSeconds: 2,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads settings from a JSON file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Workers returns the worker pool size, never less than one.
func (s *Settings) Workers() int {
	if s.MaxConcurrentDownloads < 1 {
		return 1
	}
	return s.MaxConcurrentDownloads
}

// PassDelay returns the pause between two passes.
func (s *Settings) PassDelay() time.Duration {
	return time.Duration(s.PassDelaySeconds * float64(time.Second))
}

// RequestTimeout returns the timeout applied to each request.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ProxyProbeTimeout returns the timeout of the proxy liveness check.
func (s *Settings) ProxyProbeTimeout() time.Duration {
	return time.Duration(s.ProxyProbeTimeoutSeconds * float64(time.Second))
}
