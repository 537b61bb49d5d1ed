package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a loaded config for values that cannot work at
// runtime. It returns all problems at once so the user can fix the
// file in one pass.
func Validate(cfg Config) []error {
	var errs []error

	if strings.TrimSpace(cfg.Endpoint) != "" {
		u, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("endpoint %q is not a valid URL", cfg.Endpoint))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("endpoint scheme %q is not supported (use http or https)", u.Scheme))
		}
	}

	switch cfg.Updates.Transport {
	case "", "sse", "websocket":
	default:
		errs = append(errs, fmt.Errorf("updates.transport %q is not supported (use sse or websocket)", cfg.Updates.Transport))
	}

	switch cfg.Archive.Store {
	case "", "none", "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("archive.store %q is not supported (use none, memory, or sqlite)", cfg.Archive.Store))
	}

	if cfg.Timeouts.CallSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeouts.callSeconds must not be negative"))
	}
	if cfg.Timeouts.StreamMinutes < 0 {
		errs = append(errs, fmt.Errorf("timeouts.streamMinutes must not be negative"))
	}
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.maxTokens must not be negative"))
	}

	return errs
}
