package acp

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// subscribeWebSocket dials the per-session update path over WebSocket.
// Each text message carries one JSON update frame, so no extra framing
// is needed; the provider's message boundaries are the event
// boundaries.
func (t *HTTPTransport) subscribeWebSocket(ctx context.Context, sessionID string) (<-chan SessionUpdate, error) {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL(t.endpoint)+"/session/"+sessionID+"/updates", header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, transportErr("websocket dial", err)
	}

	updates := make(chan SessionUpdate)
	go t.drainWebSocket(ctx, conn, sessionID, updates)
	return updates, nil
}

func (t *HTTPTransport) drainWebSocket(ctx context.Context, conn *websocket.Conn, sessionID string, updates chan<- SessionUpdate) {
	defer close(updates)
	defer conn.Close()

	// Cancellation must interrupt the blocking read and release the
	// underlying connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.log.Warn().Err(err).Str("sessionId", sessionID).Msg("update stream ended")
			}
			return
		}
		t.emit(ctx, string(msg), sessionID, updates)
	}
}

// wsURL rewrites an http(s) endpoint into its ws(s) equivalent.
func wsURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
