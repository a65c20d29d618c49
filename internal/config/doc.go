// Package config provides configuration management for gallery-fetch.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - Conversion of raw values to durations for other packages
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// 16 concurrent downloads
//	// 5 attempts per image, backoff from 0.5s up to 10s
//	// no whole-batch retry
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Saving Settings
//
//	settings.OuterRetry = true
//	err := settings.Save("/path/to/config.json")
//
// # Configuration Options
//
// Settings includes options for:
//   - Destination directory and cookie
//   - Concurrent download limits
//   - Per-task retry backoff
//   - Whole-batch retry passes
//   - Proxy probing
//   - Logging and metrics output
//
// Proxy addresses themselves are not settings: they come from the
// HTTP_PROXY, HTTPS_PROXY and ALL_PROXY environment variables.
package config
