package config

// Config is the root configuration for Smith.
type Config struct {
	Endpoint string             `yaml:"endpoint,omitempty"` // ACP endpoint URL
	Token    string             `yaml:"token,omitempty"`    // bearer token; supports ${ENV_VAR}
	Agent    AgentConfig        `yaml:"agent,omitempty"`
	Caps     CapabilitiesConfig `yaml:"capabilities,omitempty"`
	Updates  UpdatesConfig      `yaml:"updates,omitempty"`
	Timeouts TimeoutsConfig     `yaml:"timeouts,omitempty"`
	Archive  ArchiveConfig      `yaml:"archive,omitempty"`
	Logging  LoggingConfig      `yaml:"logging,omitempty"`
}

// AgentConfig holds prompt defaults.
type AgentConfig struct {
	Model     string `yaml:"model,omitempty"`
	MaxTokens int    `yaml:"maxTokens,omitempty"`
	Streaming *bool  `yaml:"streaming,omitempty"` // defaults to true
}

// CapabilitiesConfig are the client capability flags advertised in the
// initialize handshake.
type CapabilitiesConfig struct {
	FileSystem bool `yaml:"fs,omitempty"`
	Terminal   bool `yaml:"terminal,omitempty"`
	ApplyPatch bool `yaml:"applyPatch,omitempty"`
}

// UpdatesConfig selects the push-channel transport.
type UpdatesConfig struct {
	Transport string `yaml:"transport,omitempty"` // "sse" | "websocket"
}

// TimeoutsConfig separates the short RPC timeout from the minutes-scale
// stream read timeout.
type TimeoutsConfig struct {
	CallSeconds   int `yaml:"callSeconds,omitempty"`
	StreamMinutes int `yaml:"streamMinutes,omitempty"`
}

// ArchiveConfig controls the optional transcript archive.
type ArchiveConfig struct {
	Store string `yaml:"store,omitempty"` // "none" | "memory" | "sqlite"
	Path  string `yaml:"path,omitempty"`  // sqlite file; defaults under the data dir
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
	File  string `yaml:"file,omitempty"`
}

// Streaming returns the streaming preference with its default applied.
func (a AgentConfig) StreamingEnabled() bool {
	if a.Streaming == nil {
		return true
	}
	return *a.Streaming
}
