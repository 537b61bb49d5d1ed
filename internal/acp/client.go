package acp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Client maps protocol verbs onto transport calls. It holds no state
// beyond the transport; every call is independently retryable by the
// caller.
type Client struct {
	transport  *HTTPTransport
	descriptor ClientDescriptor
	caps       Capabilities
}

// NewClient creates a session client over the given transport.
func NewClient(transport *HTTPTransport, descriptor ClientDescriptor, caps Capabilities) *Client {
	return &Client{transport: transport, descriptor: descriptor, caps: caps}
}

// Endpoint returns the endpoint the underlying transport talks to.
func (c *Client) Endpoint() string { return c.transport.Endpoint() }

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	var result InitializeResult
	err := c.transport.Call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Client:          c.descriptor,
		Capabilities:    c.caps,
	}, &result)
	return result, err
}

// Authenticate presents the bearer token to the agent.
func (c *Client) Authenticate(ctx context.Context, token string) (AuthenticateResult, error) {
	var result AuthenticateResult
	err := c.transport.Call(ctx, "authenticate", AuthenticateParams{Token: token}, &result)
	return result, err
}

// NewSession opens a session. The client proposes an id; the server
// may replace it with its own.
func (c *Client) NewSession(ctx context.Context, metadata map[string]string, mode string) (NewSessionResult, error) {
	var result NewSessionResult
	err := c.transport.Call(ctx, "session/new", NewSessionParams{
		SessionID: uuid.New().String(),
		Metadata:  metadata,
		Mode:      mode,
	}, &result)
	if err != nil {
		return result, err
	}
	if result.SessionID == "" {
		return result, fmt.Errorf("session/new returned no session id")
	}
	return result, nil
}

// Prompt submits one user turn within a session.
func (c *Client) Prompt(ctx context.Context, sessionID, promptID, text string) (PromptResult, error) {
	var result PromptResult
	err := c.transport.Call(ctx, "session/prompt", PromptParams{
		SessionID: sessionID,
		PromptID:  promptID,
		Messages:  []PromptMessage{{Role: "user", Content: text}},
	}, &result)
	return result, err
}

// Cancel aborts an in-flight prompt.
func (c *Client) Cancel(ctx context.Context, sessionID, promptID string) error {
	return c.transport.Call(ctx, "session/cancel", CancelParams{
		SessionID: sessionID,
		PromptID:  promptID,
	}, nil)
}

// Subscribe opens the per-session update stream.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (<-chan SessionUpdate, error) {
	return c.transport.Subscribe(ctx, sessionID)
}

// Run performs one synchronous run through the simplified surface.
func (c *Client) Run(ctx context.Context, agentName, sessionID, text string) (Run, error) {
	req := RunRequest{
		AgentName: agentName,
		Mode:      "sync",
		SessionID: sessionID,
		Input: []RunMessage{{
			Role:  "user",
			Parts: []RunPart{{ContentType: "text/plain", Content: text, ContentEncoding: "plain"}},
		}},
	}
	var resp RunResponse
	if err := c.transport.PostJSON(ctx, "/runs", req, &resp); err != nil {
		return Run{}, err
	}
	return resp.Run, nil
}

// Agents lists the agents the endpoint hosts.
func (c *Client) Agents(ctx context.Context) ([]AgentInfo, error) {
	var resp agentsResponse
	if err := c.transport.GetJSON(ctx, "/agents", &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// Ping probes endpoint liveness.
func (c *Client) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.transport.GetJSON(ctx, "/ping", &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ping returned status %q", resp.Status)
	}
	return nil
}
