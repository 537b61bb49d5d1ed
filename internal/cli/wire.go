package cli

import (
	"fmt"
	"time"

	"github.com/brunoamancio/Smith/internal/acp"
	"github.com/brunoamancio/Smith/internal/chat"
	"github.com/brunoamancio/Smith/internal/config"
	"github.com/brunoamancio/Smith/internal/store"
	"github.com/brunoamancio/Smith/internal/version"
)

// gatewayFactory builds ACP clients for the orchestrator from config
// timeouts and the configured push-channel transport.
func gatewayFactory(cfg config.Config) chat.GatewayFactory {
	return func(settings chat.Settings, token string) chat.Gateway {
		transport := acp.NewHTTPTransport(acp.TransportOptions{
			Endpoint:      settings.Endpoint,
			Token:         token,
			CallTimeout:   time.Duration(cfg.Timeouts.CallSeconds) * time.Second,
			StreamTimeout: time.Duration(cfg.Timeouts.StreamMinutes) * time.Minute,
			UseWebSocket:  cfg.Updates.Transport == "websocket",
			Logger:        log,
		})
		return acp.NewClient(transport, acp.ClientDescriptor{
			Name:    "smith",
			Version: version.Version,
			Vendor:  "brunoamancio",
		}, settings.Capabilities)
	}
}

// settingsFromConfig converts file config into conversation settings.
func settingsFromConfig(cfg config.Config) chat.Settings {
	return chat.Settings{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Agent.Model,
		Streaming: cfg.Agent.StreamingEnabled(),
		MaxTokens: cfg.Agent.MaxTokens,
		Capabilities: acp.Capabilities{
			FileSystem: cfg.Caps.FileSystem,
			Terminal:   cfg.Caps.Terminal,
			ApplyPatch: cfg.Caps.ApplyPatch,
		},
	}
}

// openArchive opens the configured transcript archive, or returns nil
// when archiving is disabled. The cleanup func is safe to call on a
// nil archive path.
func openArchive(cfg config.Config) (store.Archive, func(), error) {
	switch cfg.Archive.Store {
	case "", "none":
		return nil, func() {}, nil
	case "memory":
		return store.NewMemoryArchive(), func() {}, nil
	case "sqlite":
		path := cfg.Archive.Path
		if path == "" {
			path = paths.Database
		}
		db, err := store.Open(path, log)
		if err != nil {
			return nil, func() {}, fmt.Errorf("opening archive: %w", err)
		}
		return store.NewSQLiteArchive(db), func() { db.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown archive store %q", cfg.Archive.Store)
	}
}
