package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunoamancio/Smith/internal/acp"
	"github.com/brunoamancio/Smith/internal/logging"
)

// connectTimeout bounds the background connect attempt triggered by a
// settings change.
const connectTimeout = 30 * time.Second

// Gateway is the protocol surface the orchestrator drives. acp.Client
// implements it; tests substitute fakes.
type Gateway interface {
	Endpoint() string
	Initialize(ctx context.Context) (acp.InitializeResult, error)
	Authenticate(ctx context.Context, token string) (acp.AuthenticateResult, error)
	NewSession(ctx context.Context, metadata map[string]string, mode string) (acp.NewSessionResult, error)
	Subscribe(ctx context.Context, sessionID string) (<-chan acp.SessionUpdate, error)
	Run(ctx context.Context, agentName, sessionID, text string) (acp.Run, error)
	Cancel(ctx context.Context, sessionID, promptID string) error
	Agents(ctx context.Context) ([]acp.AgentInfo, error)
	Ping(ctx context.Context) error
}

// GatewayFactory builds a Gateway for a settings/credential pair. A
// fresh gateway is built whenever the endpoint or credential changes.
type GatewayFactory func(settings Settings, token string) Gateway

// Orchestrator owns the conversation state and reconciles streamed
// session updates with synchronous run results. All state mutations
// funnel through one entry point, so observers always see a complete
// snapshot.
type Orchestrator struct {
	log     *logging.Logger
	factory GatewayFactory
	tasks   *taskSet

	// mu guards the observable state and the live-message bookkeeping.
	mu        sync.Mutex
	history   []Message
	sessionID string
	agentName string
	connected bool
	streaming bool
	consent   map[string]bool
	closed    bool
	observers map[int]func(Snapshot)
	obsNext   int

	// Live streaming message. liveIndex is -1 when no assistant
	// message is being assembled. Exactly one live message can exist.
	liveIndex int
	liveBuf   string
	promptID  string // in-flight prompt id, "" when idle
	chunkSeen bool
	finalized string // most recently finalized prompt id

	// connMu guards connection identity: the ensure-session critical
	// section, agent discovery, and the stream subscription. It is
	// never held across a prompt round trip.
	connMu        sync.Mutex
	settings      Settings
	token         string
	gw            Gateway
	agentEndpoint string // endpoint the cached agent name belongs to
	agentCached   string
	streamStop    context.CancelFunc
}

// welcomeText seeds the transcript when a conversation opens.
const welcomeText = "Welcome to Smith. Connect to an agent and send a message to get started."

// NewOrchestrator creates a conversation seeded with a system welcome
// message. The factory builds gateways on demand; settings and token
// can be replaced later via UpdateSettings.
func NewOrchestrator(factory GatewayFactory, settings Settings, token string, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewAt("silent")
	}
	settings.Endpoint = acp.NormalizeEndpoint(settings.Endpoint)
	return &Orchestrator{
		log:       log.Sub("chat"),
		factory:   factory,
		tasks:     newTaskSet(),
		settings:  settings,
		token:     strings.TrimSpace(token),
		history:   []Message{{Role: RoleSystem, Content: welcomeText, Timestamp: time.Now()}},
		consent:   make(map[string]bool),
		observers: make(map[int]func(Snapshot)),
		liveIndex: -1,
	}
}

// Snapshot returns the current conversation state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Observe registers a callback invoked with a fresh snapshot after
// every state change. It fires once immediately and returns an
// unsubscribe func.
func (o *Orchestrator) Observe(fn func(Snapshot)) func() {
	o.mu.Lock()
	id := o.obsNext
	o.obsNext++
	o.observers[id] = fn
	snap := o.snapshotLocked()
	o.mu.Unlock()

	fn(snap)
	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// UpdateConsent records a consent decision for a context-sharing scope.
func (o *Orchestrator) UpdateConsent(key string, allowed bool) {
	o.mutate(func() { o.consent[key] = allowed })
}

// ConsentAllowed reports whether a consent scope has been granted.
func (o *Orchestrator) ConsentAllowed(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consent[key]
}

// UpdateSettings replaces the conversation settings. When the
// effective endpoint or credential changed, the active stream is
// cancelled, cached agent and session identifiers are cleared, and a
// fresh connect attempt starts in the background. Never blocks on
// network I/O.
func (o *Orchestrator) UpdateSettings(settings Settings, token string) {
	settings.Endpoint = acp.NormalizeEndpoint(settings.Endpoint)
	token = strings.TrimSpace(token)

	o.connMu.Lock()
	identityChanged := settings.Endpoint != o.settings.Endpoint || token != o.token
	o.settings = settings
	o.token = token

	var staleGW Gateway
	var staleSession, stalePrompt string
	if identityChanged {
		if o.streamStop != nil {
			o.streamStop()
			o.streamStop = nil
		}
		staleGW = o.gw
		o.gw = nil
		o.agentEndpoint = ""
		o.agentCached = ""
	}
	o.connMu.Unlock()

	if !identityChanged {
		return
	}

	o.mu.Lock()
	staleSession = o.sessionID
	stalePrompt = o.promptID
	o.mu.Unlock()

	o.mutate(func() {
		o.sessionID = ""
		o.agentName = ""
		o.connected = false
	})

	// Best-effort server-side cancel of a prompt the superseded
	// session may still be running.
	if staleGW != nil && staleSession != "" && stalePrompt != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := staleGW.Cancel(ctx, staleSession, stalePrompt); err != nil {
				o.log.Debug().Err(err).Msg("stale prompt cancel failed")
			}
		}()
	}

	go o.connect(settings, token)
}

// Send appends the user's message and runs one prompt round trip.
// Blank input is ignored. The user message appears in the transcript
// before any network activity. Streaming is reset on every exit path.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	o.mutate(func() {
		o.history = append(o.history, Message{Role: RoleUser, Content: text, Timestamp: time.Now()})
	})

	gw, sessionID, agentName, err := o.ensureSession(ctx)
	if err != nil {
		err = fmt.Errorf("connecting to agent: %w", err)
		o.failPrompt(err)
		return err
	}

	promptID := uuid.New().String()
	o.mutate(func() {
		// A previous prompt may still own a live entry that never
		// received content; its own settle skips it once the prompt id
		// moves on, so it has to go here.
		if o.liveIndex >= 0 && o.liveBuf == "" {
			o.history = append(o.history[:o.liveIndex], o.history[o.liveIndex+1:]...)
		}
		o.streaming = true
		o.promptID = promptID
		o.liveIndex = -1
		o.liveBuf = ""
		o.chunkSeen = false
	})
	defer o.settlePrompt(promptID)

	run, err := gw.Run(ctx, agentName, sessionID, text)
	if err != nil {
		o.failPrompt(err)
		return err
	}

	o.adoptSession(gw, run.SessionID)
	o.mutate(func() {
		o.completeSyncLocked(promptID, strings.TrimSpace(run.OutputText()))
	})
	return nil
}

// TestConnection probes an endpoint without touching conversation
// state: a liveness ping plus an agent listing.
func (o *Orchestrator) TestConnection(ctx context.Context, settings Settings, token string) ConnectionTestResult {
	settings.Endpoint = acp.NormalizeEndpoint(settings.Endpoint)
	gw := o.factory(settings, strings.TrimSpace(token))

	if err := gw.Ping(ctx); err != nil {
		return ConnectionTestResult{OK: false, Detail: fmt.Sprintf("ping failed: %v", err)}
	}

	agents, err := gw.Agents(ctx)
	if err != nil {
		return ConnectionTestResult{OK: false, Detail: fmt.Sprintf("agent listing failed: %v", err)}
	}
	if len(agents) == 0 {
		return ConnectionTestResult{OK: false, Detail: "endpoint is reachable but hosts no agents"}
	}

	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return ConnectionTestResult{
		OK:     true,
		Detail: fmt.Sprintf("endpoint healthy, %d agent(s): %s", len(agents), strings.Join(names, ", ")),
	}
}

// Close cancels all background tasks and bars further state mutations.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.observers = make(map[int]func(Snapshot))
	o.mu.Unlock()

	o.tasks.CancelAll()

	o.connMu.Lock()
	if o.streamStop != nil {
		o.streamStop()
		o.streamStop = nil
	}
	o.gw = nil
	o.connMu.Unlock()
}

// --- connection management ---

// ensureSession makes sure a live session exists, creating the
// gateway, discovering the agent, and opening the session under the
// connection lock so concurrent sends cannot open duplicates. The lock
// covers only this critical section, never the prompt round trip.
func (o *Orchestrator) ensureSession(ctx context.Context) (Gateway, string, string, error) {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	o.mu.Lock()
	existingSession := o.sessionID
	existingAgent := o.agentName
	o.mu.Unlock()

	if o.gw != nil && existingSession != "" {
		return o.gw, existingSession, existingAgent, nil
	}

	settings, token := o.settings, o.token
	gw := o.gw
	if gw == nil {
		gw = o.factory(settings, token)
	}

	if _, err := gw.Initialize(ctx); err != nil {
		return nil, "", "", fmt.Errorf("initialize: %w", err)
	}
	if token != "" {
		if _, err := gw.Authenticate(ctx, token); err != nil {
			return nil, "", "", fmt.Errorf("authenticate: %w", err)
		}
	}

	agentName := o.agentCached
	if agentName == "" || o.agentEndpoint != settings.Endpoint {
		agents, err := gw.Agents(ctx)
		if err != nil {
			return nil, "", "", fmt.Errorf("discovering agents: %w", err)
		}
		if len(agents) == 0 {
			return nil, "", "", fmt.Errorf("endpoint %s hosts no agents", settings.Endpoint)
		}
		agentName = agents[0].Name
		o.agentCached = agentName
		o.agentEndpoint = settings.Endpoint
	}

	metadata := map[string]string{}
	if settings.Model != "" {
		metadata["model"] = settings.Model
	}
	if settings.MaxTokens > 0 {
		metadata["maxTokens"] = fmt.Sprintf("%d", settings.MaxTokens)
	}
	sess, err := gw.NewSession(ctx, metadata, "")
	if err != nil {
		return nil, "", "", fmt.Errorf("opening session: %w", err)
	}

	o.gw = gw
	o.mutate(func() {
		o.sessionID = sess.SessionID
		o.agentName = agentName
		o.connected = true
	})

	if settings.Streaming {
		o.startStreamLocked(gw, sess.SessionID)
	}

	o.log.Info().
		Str("endpoint", settings.Endpoint).
		Str("agent", agentName).
		Str("sessionId", sess.SessionID).
		Msg("session established")

	return gw, sess.SessionID, agentName, nil
}

// adoptSession switches to a server-assigned session id. The update
// stream follows the session identity, so a replacement id cancels the
// old subscription and opens a new one.
func (o *Orchestrator) adoptSession(gw Gateway, newID string) {
	if newID == "" {
		return
	}

	o.mu.Lock()
	current := o.sessionID
	o.mu.Unlock()
	if newID == current {
		return
	}

	o.connMu.Lock()
	defer o.connMu.Unlock()

	// A settings change may have superseded the gateway this run went
	// through; its session id must not come back from the dead.
	if o.gw != gw {
		return
	}

	o.mutate(func() { o.sessionID = newID })
	if o.settings.Streaming {
		o.startStreamLocked(gw, newID)
	}

	o.log.Debug().Str("sessionId", newID).Msg("adopted server session id")
}

// startStreamLocked replaces the update-stream drain task. Caller
// holds connMu.
func (o *Orchestrator) startStreamLocked(gw Gateway, sessionID string) {
	if o.streamStop != nil {
		o.streamStop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.streamStop = cancel
	remove := o.tasks.Add(cancel)

	updates, err := gw.Subscribe(ctx, sessionID)
	if err != nil {
		o.log.Warn().Err(err).Str("sessionId", sessionID).Msg("subscribe failed")
		remove()
		return
	}

	go func() {
		defer remove()

		for update := range updates {
			o.applyUpdate(update)
		}
		o.log.Debug().Str("sessionId", sessionID).Msg("update stream drained")
	}()
}

// connect is the background reconnect attempt after a settings change.
// Failure leaves the conversation disconnected; the next send retries.
func (o *Orchestrator) connect(settings Settings, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	remove := o.tasks.Add(cancel)
	defer remove()

	gw := o.factory(settings, token)
	if err := gw.Ping(ctx); err != nil {
		o.log.Warn().Err(err).Str("endpoint", settings.Endpoint).Msg("connect attempt failed")
		return
	}
	if _, err := gw.Initialize(ctx); err != nil {
		o.log.Warn().Err(err).Str("endpoint", settings.Endpoint).Msg("handshake failed")
		return
	}

	o.connMu.Lock()
	// A later settings change supersedes this attempt.
	if o.settings.Endpoint != settings.Endpoint || o.token != token {
		o.connMu.Unlock()
		return
	}
	o.gw = gw
	o.connMu.Unlock()

	o.mutate(func() { o.connected = true })
	o.log.Info().Str("endpoint", settings.Endpoint).Msg("connected")
}

// --- event folding ---

// applyUpdate folds one push frame into conversation state. Frames for
// a session other than the current one are discarded.
func (o *Orchestrator) applyUpdate(update acp.SessionUpdate) {
	o.mu.Lock()
	current := o.sessionID
	o.mu.Unlock()

	if update.SessionID != "" && update.SessionID != current {
		o.log.Debug().
			Str("sessionId", update.SessionID).
			Str("current", current).
			Msg("dropping update for stale session")
		return
	}

	for _, ev := range update.Events {
		switch ev := ev.(type) {
		case acp.MessageChunk:
			if ev.Role == "" || ev.Role == string(RoleAssistant) {
				o.applyChunk(update.PromptID, ev)
			} else {
				o.appendSystem(fmt.Sprintf("Agent sent a %s message: %s", ev.Role, ev.Text))
			}
		case acp.ToolCallStarted:
			o.appendSystem(fmt.Sprintf("Agent started tool %q", ev.Name))
		case acp.ToolCallCompleted:
			o.appendSystem(fmt.Sprintf("Tool call %s completed", ev.CallID))
		case acp.PlanUpdated:
			o.appendSystem(fmt.Sprintf("Plan updated: %s (%d steps)", ev.Summary, len(ev.Steps)))
		case acp.ModeChanged:
			o.appendSystem(fmt.Sprintf("Agent mode changed from %q to %q", ev.Previous, ev.Next))
		case acp.UnknownEvent:
			o.log.Debug().Str("type", ev.Type).Msg("unrecognized session event")
			o.appendSystem(fmt.Sprintf("Agent sent an unrecognized %q event", ev.Type))
		}
	}
}

// applyChunk folds one assistant text chunk into the live message.
// Chunks for a prompt other than the in-flight one, or for an already
// finalized prompt, are ignored; content is never applied twice.
func (o *Orchestrator) applyChunk(promptID string, chunk acp.MessageChunk) {
	o.mutate(func() {
		if o.promptID == "" {
			return
		}
		if promptID != "" && promptID != o.promptID {
			return
		}
		if o.finalized == o.promptID {
			return
		}

		o.chunkSeen = true
		if o.liveIndex < 0 {
			o.history = append(o.history, Message{Role: RoleAssistant, Timestamp: time.Now()})
			o.liveIndex = len(o.history) - 1
		}

		o.liveBuf += chunk.Text
		// Rewrite the whole entry: content is always the full
		// accumulated text, never a delta applied twice.
		o.history[o.liveIndex] = Message{
			Role:      RoleAssistant,
			Content:   o.liveBuf,
			Timestamp: o.history[o.liveIndex].Timestamp,
		}

		if chunk.Done {
			o.finalized = o.promptID
			o.liveIndex = -1
			o.liveBuf = ""
			o.streaming = false
		}
	})
}

// completeSyncLocked applies the synchronous run result. If any
// streamed chunk already arrived for this prompt, the stream owns the
// assistant message and the sync text is discarded (first content
// wins). A blank result leaves no empty bubble. Caller holds mu via
// mutate.
func (o *Orchestrator) completeSyncLocked(promptID, text string) {
	if o.promptID != promptID || o.finalized == promptID {
		return
	}
	if o.chunkSeen {
		return
	}
	if text == "" {
		return
	}
	o.history = append(o.history, Message{Role: RoleAssistant, Content: text, Timestamp: time.Now()})
	o.finalized = promptID
}

// settlePrompt is the scope-exit cleanup for Send: streaming goes
// false on every path and a live message that never received content
// is removed.
func (o *Orchestrator) settlePrompt(promptID string) {
	o.mutate(func() {
		if o.promptID != promptID {
			return
		}
		if o.liveIndex >= 0 && o.liveBuf == "" {
			o.history = append(o.history[:o.liveIndex], o.history[o.liveIndex+1:]...)
		}
		o.liveIndex = -1
		o.liveBuf = ""
		o.streaming = false
		o.promptID = ""
	})
}

// failPrompt converts a send failure into a visible system entry. Any
// partial live message is discarded first so the failure notice is the
// last transcript entry.
func (o *Orchestrator) failPrompt(err error) {
	o.mutate(func() {
		if o.liveIndex >= 0 {
			o.history = append(o.history[:o.liveIndex], o.history[o.liveIndex+1:]...)
			o.liveIndex = -1
			o.liveBuf = ""
		}
		o.history = append(o.history, Message{
			Role:      RoleSystem,
			Content:   "Request failed: " + err.Error(),
			Timestamp: time.Now(),
		})
		o.connected = false
		o.streaming = false
		o.promptID = ""
	})
}

func (o *Orchestrator) appendSystem(text string) {
	o.mutate(func() {
		o.history = append(o.history, Message{Role: RoleSystem, Content: text, Timestamp: time.Now()})
	})
}

// --- state plumbing ---

// mutate runs fn under the state lock, then notifies observers with
// the resulting snapshot outside the lock. After Close it is a no-op.
func (o *Orchestrator) mutate(fn func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	fn()
	snap := o.snapshotLocked()
	obs := make([]func(Snapshot), 0, len(o.observers))
	for _, f := range o.observers {
		obs = append(obs, f)
	}
	o.mu.Unlock()

	for _, f := range obs {
		f(snap)
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	history := make([]Message, len(o.history))
	copy(history, o.history)
	consent := make(map[string]bool, len(o.consent))
	for k, v := range o.consent {
		consent[k] = v
	}
	return Snapshot{
		SessionID: o.sessionID,
		AgentName: o.agentName,
		Connected: o.connected,
		Streaming: o.streaming,
		History:   history,
		Consent:   consent,
	}
}
