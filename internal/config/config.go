// Package config loads and validates Smith's YAML configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Updates: UpdatesConfig{
			Transport: "sse",
		},
		Timeouts: TimeoutsConfig{
			CallSeconds:   30,
			StreamMinutes: 10,
		},
		Archive: ArchiveConfig{
			Store: "none",
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}
