// Package chat owns the conversation view-model: the observable
// transcript state and the orchestrator that reconciles streamed
// session events with synchronous run results.
package chat

import (
	"time"

	"github.com/brunoamancio/Smith/internal/acp"
)

// Role classifies a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable transcript entry. The orchestrator replaces
// an entry wholesale rather than mutating it, so a snapshot handed to
// an observer never changes under it.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Settings are the user-facing knobs the conversation runs under.
type Settings struct {
	Endpoint     string
	Model        string
	Streaming    bool
	MaxTokens    int
	Capabilities acp.Capabilities
}

// Snapshot is a fully-formed, read-only view of the conversation
// state. Observers always receive a complete snapshot, never a partial
// update.
type Snapshot struct {
	SessionID string
	AgentName string
	Connected bool
	Streaming bool
	History   []Message
	Consent   map[string]bool
}

// LastMessage returns the most recent transcript entry, if any.
func (s Snapshot) LastMessage() (Message, bool) {
	if len(s.History) == 0 {
		return Message{}, false
	}
	return s.History[len(s.History)-1], true
}

// ConnectionTestResult is the outcome of a read-only endpoint probe.
type ConnectionTestResult struct {
	OK     bool
	Detail string
}
