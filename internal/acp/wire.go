// Package acp implements the client side of the Agent Client Protocol:
// typed wire shapes, a JSON-RPC/SSE transport, and a thin session client.
//
// Decoding is deliberately lenient. Optional fields default to empty
// values and unrecognized session events fall through to UnknownEvent,
// so a newer server can never abort an in-flight operation with a
// decode failure.
package acp

import "encoding/json"

// ProtocolVersion is the ACP protocol version this client speaks.
const ProtocolVersion = 1

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ClientDescriptor identifies this client in the initialize handshake.
type ClientDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Vendor  string `json:"vendor,omitempty"`
}

// Capabilities are the client capability flags advertised to the agent.
type Capabilities struct {
	FileSystem bool `json:"fs"`
	Terminal   bool `json:"terminal"`
	ApplyPatch bool `json:"applyPatch"`
}

// InitializeParams is the payload for the "initialize" method.
type InitializeParams struct {
	ProtocolVersion int              `json:"protocolVersion"`
	Client          ClientDescriptor `json:"client"`
	Capabilities    Capabilities     `json:"capabilities"`
}

// AgentDescriptor identifies the remote agent.
type AgentDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// InitializeResult is the response to "initialize".
type InitializeResult struct {
	Agent           AgentDescriptor `json:"agent"`
	ProtocolVersion int             `json:"protocolVersion"`
	Capabilities    map[string]bool `json:"capabilities,omitempty"`
}

// AuthenticateParams is the payload for the "authenticate" method.
type AuthenticateParams struct {
	Token string `json:"token"`
}

// AuthenticateResult is the response to "authenticate".
type AuthenticateResult struct {
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

// NewSessionParams is the payload for "session/new".
type NewSessionParams struct {
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Mode      string            `json:"mode,omitempty"`
}

// NewSessionResult is the response to "session/new". The server may
// replace the client-proposed session id with its own.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode,omitempty"`
}

// PromptMessage is one message in a "session/prompt" payload.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptParams is the payload for "session/prompt".
type PromptParams struct {
	SessionID string            `json:"sessionId"`
	PromptID  string            `json:"promptId"`
	Messages  []PromptMessage   `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PromptResult is the response to "session/prompt".
type PromptResult struct {
	SessionID string `json:"sessionId"`
	PromptID  string `json:"promptId"`
	Accepted  bool   `json:"accepted"`
}

// CancelParams is the payload for "session/cancel".
type CancelParams struct {
	SessionID string `json:"sessionId"`
	PromptID  string `json:"promptId,omitempty"`
}

// --- Simplified run surface ---
//
// The run endpoints (POST /runs, GET /agents, GET /ping) are a plain
// REST surface the agent bridge exposes alongside JSON-RPC. The sync
// prompt path goes through POST /runs.

// RunPart is one content part of a run input or output message.
type RunPart struct {
	ContentType     string `json:"content_type"`
	Content         string `json:"content"`
	ContentEncoding string `json:"content_encoding,omitempty"`
}

// RunMessage is one message in a run's input or output.
type RunMessage struct {
	Role  string    `json:"role"`
	Parts []RunPart `json:"parts"`
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	AgentName string       `json:"agent_name"`
	Mode      string       `json:"mode"`
	SessionID string       `json:"session_id,omitempty"`
	Input     []RunMessage `json:"input"`
}

// Run is the completed run record inside a RunResponse.
type Run struct {
	RunID      string       `json:"run_id,omitempty"`
	AgentName  string       `json:"agent_name,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	Status     string       `json:"status,omitempty"`
	StopReason string       `json:"stop_reason,omitempty"`
	Output     []RunMessage `json:"output,omitempty"`
}

// RunResponse is the body of a successful POST /runs response.
type RunResponse struct {
	Run Run `json:"run"`
}

// OutputText concatenates all text parts of the run's output messages.
func (r Run) OutputText() string {
	var out string
	for _, msg := range r.Output {
		for _, part := range msg.Parts {
			if len(part.ContentType) >= 4 && part.ContentType[:4] == "text" {
				out += part.Content
			}
		}
	}
	return out
}

// AgentInfo describes one agent returned by GET /agents.
type AgentInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// agentsResponse is the body of GET /agents.
type agentsResponse struct {
	Agents []AgentInfo `json:"agents"`
}

// pingResponse is the body of GET /ping.
type pingResponse struct {
	Status string `json:"status"`
}
