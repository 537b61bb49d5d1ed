package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunoamancio/Smith/internal/logging"
)

const (
	defaultCallTimeout   = 30 * time.Second
	defaultStreamTimeout = 10 * time.Minute
)

// TransportOptions configure an HTTPTransport.
type TransportOptions struct {
	Endpoint      string
	Token         string
	CallTimeout   time.Duration // discrete RPC/REST calls
	StreamTimeout time.Duration // update stream lifetime cap
	UseWebSocket  bool          // dial the push channel over WebSocket instead of SSE
	Logger        *logging.Logger
}

// HTTPTransport performs single-shot JSON-RPC calls and opens
// per-session update streams against one ACP endpoint.
//
// Call never retries and Subscribe never reconnects; both decisions
// belong to the caller.
type HTTPTransport struct {
	endpoint     string
	token        string
	useWebSocket bool
	rpc          *http.Client
	stream       *http.Client
	log          *logging.Logger
}

// NewHTTPTransport creates a transport for the given endpoint. The
// endpoint is normalized (whitespace and trailing slashes trimmed).
func NewHTTPTransport(opts TransportOptions) *HTTPTransport {
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	streamTimeout := opts.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = defaultStreamTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewAt("silent")
	}
	return &HTTPTransport{
		endpoint:     NormalizeEndpoint(opts.Endpoint),
		token:        strings.TrimSpace(opts.Token),
		useWebSocket: opts.UseWebSocket,
		rpc:          &http.Client{Timeout: callTimeout},
		stream:       &http.Client{Timeout: streamTimeout},
		log:          log.Sub("transport"),
	}
}

// NormalizeEndpoint trims whitespace and trailing slashes from an
// endpoint URL so equal endpoints compare equal as strings.
func NormalizeEndpoint(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// Endpoint returns the normalized endpoint this transport talks to.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Call performs one JSON-RPC round trip. A fresh request id is
// assigned per call. A structured error body surfaces as *RPCError;
// anything network-shaped surfaces as *TransportError.
func (t *HTTPTransport) Call(ctx context.Context, method string, params, result any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return transportErr("encode", err)
	}

	body, err := t.roundTrip(ctx, http.MethodPost, "/rpc", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return transportErr("decode", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return transportErr("decode", err)
		}
	}

	t.log.Debug().Str("method", method).Str("id", req.ID).Msg("rpc call completed")
	return nil
}

// GetJSON performs a GET against a REST path of the endpoint.
func (t *HTTPTransport) GetJSON(ctx context.Context, path string, out any) error {
	body, err := t.roundTrip(ctx, http.MethodGet, path, "application/json", nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return transportErr("decode", err)
	}
	return nil
}

// PostJSON performs a POST with a JSON body against a REST path.
func (t *HTTPTransport) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return transportErr("encode", err)
	}
	body, err := t.roundTrip(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return transportErr("decode", err)
	}
	return nil
}

// Subscribe opens the per-session update stream and returns a channel
// of decoded frames. The channel closes when the server completes the
// stream, the stream breaks, or ctx is cancelled. There is no
// auto-reconnect; a broken stream simply ends.
func (t *HTTPTransport) Subscribe(ctx context.Context, sessionID string) (<-chan SessionUpdate, error) {
	if t.useWebSocket {
		return t.subscribeWebSocket(ctx, sessionID)
	}

	updates := make(chan SessionUpdate)
	go t.drainSSE(ctx, sessionID, updates)
	return updates, nil
}

func (t *HTTPTransport) drainSSE(ctx context.Context, sessionID string, updates chan<- SessionUpdate) {
	defer close(updates)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"/session/"+sessionID+"/updates", nil)
	if err != nil {
		t.log.Error().Err(err).Msg("subscribe request creation failed")
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	t.authorize(req)

	resp, err := t.stream.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Str("sessionId", sessionID).Msg("update stream ended")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("update stream rejected")
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// SSE framing: data lines accumulate until a blank line terminates
	// the event. "[DONE]" is the server's completion signal.
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if payload == "[DONE]" {
				return
			}
			t.emit(ctx, payload, sessionID, updates)
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Comment lines and other SSE fields are ignored.
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		t.log.Warn().Err(err).Str("sessionId", sessionID).Msg("update stream read failed")
	}
}

// emit decodes one frame and delivers it unless the subscription was
// cancelled in the meantime.
func (t *HTTPTransport) emit(ctx context.Context, payload, sessionID string, updates chan<- SessionUpdate) {
	var update SessionUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		t.log.Warn().Err(err).Str("sessionId", sessionID).Msg("dropping unparseable update frame")
		return
	}
	select {
	case updates <- update:
	case <-ctx.Done():
	}
}

// roundTrip issues one HTTP request and returns the response body.
// Non-2xx responses become *RPCError when the body carries a
// structured error, *TransportError otherwise.
func (t *HTTPTransport) roundTrip(ctx context.Context, method, path, accept string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.endpoint+path, body)
	if err != nil {
		return nil, transportErr("request", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	t.authorize(req)

	resp, err := t.rpc.Do(req)
	if err != nil {
		return nil, transportErr("round trip", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr("read body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if rpcErr := parseErrorBody(respBody); rpcErr != nil {
			return nil, rpcErr
		}
		return nil, transportErr("status", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	return respBody, nil
}

// authorize attaches the bearer credential. A blank token attaches no
// Authorization header at all.
func (t *HTTPTransport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// parseErrorBody extracts a structured error from a failed response
// body if one is present. Bridges wrap errors either as a bare
// {code,message} object or under "error"/"detail" keys.
func parseErrorBody(body []byte) *RPCError {
	var wrapped struct {
		Error  *RPCError       `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil
	}
	if wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error
	}
	if len(wrapped.Detail) > 0 {
		var detail RPCError
		if err := json.Unmarshal(wrapped.Detail, &detail); err == nil && detail.Message != "" {
			return &detail
		}
	}
	return nil
}
