package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunoamancio/Smith/internal/acp"
)

// fakeGateway is an in-memory Gateway. Tests push session updates into
// the active subscription and can make Run block until released.
type fakeGateway struct {
	mu sync.Mutex

	endpoint     string
	sessionID    string
	sessionDelay time.Duration
	runText      string
	runSessionID string
	agents       []acp.AgentInfo

	initErr    error
	authErr    error
	sessionErr error
	runErr     error
	agentsErr  error
	pingErr    error

	// When non-nil, Run blocks until this channel is closed.
	runRelease chan struct{}

	initCalls    int
	authCalls    int
	sessionCalls int
	agentCalls   int
	pingCalls    int
	cancels      []string

	streams []chan acp.SessionUpdate
	subCtxs []context.Context
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		endpoint:  "http://agent.local",
		sessionID: "sess-1",
		runText:   "Sure, I can help.",
		agents:    []acp.AgentInfo{{Name: "codex"}},
	}
}

func (g *fakeGateway) Endpoint() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endpoint
}

func (g *fakeGateway) Initialize(ctx context.Context) (acp.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	return acp.InitializeResult{Agent: acp.AgentDescriptor{Name: "bridge"}, ProtocolVersion: 1}, g.initErr
}

func (g *fakeGateway) Authenticate(ctx context.Context, token string) (acp.AuthenticateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authCalls++
	return acp.AuthenticateResult{Authenticated: g.authErr == nil}, g.authErr
}

func (g *fakeGateway) NewSession(ctx context.Context, metadata map[string]string, mode string) (acp.NewSessionResult, error) {
	g.mu.Lock()
	g.sessionCalls++
	delay := g.sessionDelay
	id := g.sessionID
	err := g.sessionErr
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return acp.NewSessionResult{}, err
	}
	return acp.NewSessionResult{SessionID: id}, nil
}

func (g *fakeGateway) Subscribe(ctx context.Context, sessionID string) (<-chan acp.SessionUpdate, error) {
	out := make(chan acp.SessionUpdate, 16)
	g.mu.Lock()
	g.streams = append(g.streams, out)
	g.subCtxs = append(g.subCtxs, ctx)
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (g *fakeGateway) Run(ctx context.Context, agentName, sessionID, text string) (acp.Run, error) {
	g.mu.Lock()
	release := g.runRelease
	runErr := g.runErr
	out := g.runText
	outSession := g.runSessionID
	g.mu.Unlock()

	if release != nil {
		<-release
	}
	if runErr != nil {
		return acp.Run{}, runErr
	}
	if outSession == "" {
		outSession = sessionID
	}
	return acp.Run{
		SessionID: outSession,
		Status:    "completed",
		Output: []acp.RunMessage{{
			Role:  "assistant",
			Parts: []acp.RunPart{{ContentType: "text/plain", Content: out}},
		}},
	}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, sessionID, promptID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, sessionID+"/"+promptID)
	return nil
}

func (g *fakeGateway) Agents(ctx context.Context) ([]acp.AgentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.agentCalls++
	return g.agents, g.agentsErr
}

func (g *fakeGateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pingCalls++
	return g.pingErr
}

// push delivers one update frame to the most recent subscription.
func (g *fakeGateway) push(t *testing.T, u acp.SessionUpdate) {
	t.Helper()
	g.mu.Lock()
	require.NotEmpty(t, g.streams, "no active subscription to push into")
	ch := g.streams[len(g.streams)-1]
	g.mu.Unlock()
	ch <- u
}

func (g *fakeGateway) subscribeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.streams)
}

func (g *fakeGateway) subCtx(i int) context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subCtxs[i]
}

func (g *fakeGateway) sessionCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionCalls
}

func singleGatewayFactory(gw *fakeGateway) GatewayFactory {
	return func(settings Settings, token string) Gateway { return gw }
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway, streaming bool) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(singleGatewayFactory(gw), Settings{
		Endpoint:  "http://agent.local",
		Model:     "gpt-5",
		Streaming: streaming,
	}, "", nil)
	t.Cleanup(o.Close)
	return o
}

func update(sessionID, promptID string, events ...acp.SessionEvent) acp.SessionUpdate {
	return acp.SessionUpdate{SessionID: sessionID, PromptID: promptID, Events: events}
}

func awaitState(t *testing.T, o *Orchestrator, cond func(Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(o.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
}

func countRole(s Snapshot, role Role) int {
	n := 0
	for _, m := range s.History {
		if m.Role == role {
			n++
		}
	}
	return n
}

func containsContent(s Snapshot, substr string) bool {
	for _, m := range s.History {
		if strings.Contains(m.Content, substr) {
			return true
		}
	}
	return false
}

func TestNewConversationStartsWithWelcome(t *testing.T) {
	o := newTestOrchestrator(t, newFakeGateway(), false)

	snap := o.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, RoleSystem, snap.History[0].Role)
	assert.NotEmpty(t, snap.History[0].Content)
	assert.False(t, snap.Streaming)
	assert.False(t, snap.Connected)
}

func TestSendSyncRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, false)

	require.NoError(t, o.Send(context.Background(), "Refactor this method"))

	snap := o.Snapshot()
	require.Len(t, snap.History, 3)
	assert.Equal(t, RoleSystem, snap.History[0].Role)
	assert.Equal(t, RoleUser, snap.History[1].Role)
	assert.Equal(t, "Refactor this method", snap.History[1].Content)
	assert.Equal(t, RoleAssistant, snap.History[2].Role)
	assert.Equal(t, "Sure, I can help.", snap.History[2].Content)
	assert.False(t, snap.Streaming)
	assert.True(t, snap.Connected)
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, "codex", snap.AgentName)
}

func TestSendBlankInputIsIgnored(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, false)

	require.NoError(t, o.Send(context.Background(), "   \n\t"))

	snap := o.Snapshot()
	assert.Len(t, snap.History, 1)
	assert.Equal(t, 0, gw.sessionCallCount())
}

func TestSendBlankSyncResultLeavesNoEmptyBubble(t *testing.T) {
	gw := newFakeGateway()
	gw.runText = "   "
	o := newTestOrchestrator(t, gw, false)

	require.NoError(t, o.Send(context.Background(), "hello"))

	snap := o.Snapshot()
	assert.Equal(t, 0, countRole(snap, RoleAssistant))
	last, ok := snap.LastMessage()
	require.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)
	assert.False(t, snap.Streaming)
}

func TestStreamedChunksAssembleOneAssistantMessage(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	gw.runText = "sync text that loses to the stream"
	o := newTestOrchestrator(t, gw, true)

	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), "Refactor this method") }()

	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: "Sure"}))
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: ", I can help.", Done: true}))

	awaitState(t, o, func(s Snapshot) bool {
		m, ok := s.LastMessage()
		return ok && m.Role == RoleAssistant && m.Content == "Sure, I can help." && !s.Streaming
	})

	close(gw.runRelease)
	require.NoError(t, <-done)

	snap := o.Snapshot()
	assert.Equal(t, 1, countRole(snap, RoleAssistant), "stream and sync must not both append")
	last, _ := snap.LastMessage()
	assert.Equal(t, "Sure, I can help.", last.Content)
	assert.False(t, snap.Streaming)
}

func TestIntermediateChunksRewriteTheSameEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	o := newTestOrchestrator(t, gw, true)

	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), "hi") }()
	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: "a"}))
	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "a") })
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: "b"}))
	awaitState(t, o, func(s Snapshot) bool {
		m, ok := s.LastMessage()
		return ok && m.Content == "ab"
	})

	snap := o.Snapshot()
	assert.Equal(t, 1, countRole(snap, RoleAssistant))

	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Done: true}))
	close(gw.runRelease)
	require.NoError(t, <-done)

	snap = o.Snapshot()
	assert.Equal(t, 1, countRole(snap, RoleAssistant))
	last, _ := snap.LastMessage()
	assert.Equal(t, "ab", last.Content)
}

func TestChunksForForeignPromptAreDropped(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	o := newTestOrchestrator(t, gw, true)

	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), "hi") }()
	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	gw.push(t, update("sess-1", "someone-elses-prompt", acp.MessageChunk{Role: "assistant", Text: "WRONG"}))
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: "right", Done: true}))

	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "right") })
	assert.False(t, containsContent(o.Snapshot(), "WRONG"))

	close(gw.runRelease)
	require.NoError(t, <-done)
}

func TestChunksWhileIdleAreDropped(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, true)

	require.NoError(t, o.Send(context.Background(), "hi"))
	before := countRole(o.Snapshot(), RoleAssistant)

	// No prompt is in flight; the chunk must not open a new message.
	// The tool event behind it proves the chunk was processed.
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: "late"}))
	gw.push(t, update("sess-1", "", acp.ToolCallStarted{CallID: "c1", Name: "marker"}))

	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "marker") })
	snap := o.Snapshot()
	assert.Equal(t, before, countRole(snap, RoleAssistant))
	assert.False(t, containsContent(snap, "late"))
}

func TestUpdatesForStaleSessionAreDropped(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, true)

	require.NoError(t, o.Send(context.Background(), "hi"))

	gw.push(t, update("some-old-session", "", acp.ToolCallStarted{CallID: "c1", Name: "grep"}))
	gw.push(t, update("sess-1", "", acp.ToolCallStarted{CallID: "c2", Name: "fmt"}))

	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "fmt") })
	assert.False(t, containsContent(o.Snapshot(), "grep"))
}

func TestEmptyLiveMessageIsRemovedOnSettle(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	gw.runText = ""
	o := newTestOrchestrator(t, gw, true)

	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), "hi") }()
	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	// A chunk with no text allocates the live entry but never fills it.
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: ""}))
	awaitState(t, o, func(s Snapshot) bool { return countRole(s, RoleAssistant) == 1 })

	close(gw.runRelease)
	require.NoError(t, <-done)

	snap := o.Snapshot()
	assert.Equal(t, 0, countRole(snap, RoleAssistant))
	last, _ := snap.LastMessage()
	assert.Equal(t, RoleUser, last.Role)
	assert.False(t, snap.Streaming)
}

func TestNewPromptDiscardsPreviousEmptyLiveEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	o := newTestOrchestrator(t, gw, true)

	first := make(chan error, 1)
	go func() { first <- o.Send(context.Background(), "one") }()
	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	// An empty chunk allocates the first prompt's live entry without
	// ever filling it.
	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "assistant", Text: ""}))
	awaitState(t, o, func(s Snapshot) bool { return countRole(s, RoleAssistant) == 1 })

	second := make(chan error, 1)
	go func() { second <- o.Send(context.Background(), "two") }()

	// The overlapping prompt takes over and sweeps the orphaned empty
	// entry; the first prompt's own settle skips it on id mismatch.
	awaitState(t, o, func(s Snapshot) bool {
		return countRole(s, RoleUser) == 2 && countRole(s, RoleAssistant) == 0
	})

	close(gw.runRelease)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	snap := o.Snapshot()
	assert.Equal(t, 1, countRole(snap, RoleAssistant))
	last, _ := snap.LastMessage()
	assert.Equal(t, "Sure, I can help.", last.Content)
	for _, m := range snap.History {
		if m.Role == RoleAssistant {
			assert.NotEmpty(t, m.Content)
		}
	}
}

func TestNonAssistantChunkBecomesSystemEntry(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, true)
	require.NoError(t, o.Send(context.Background(), "hi"))

	gw.push(t, update("sess-1", "", acp.MessageChunk{Role: "tool", Text: "raw tool output"}))

	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "raw tool output") })
	last, _ := o.Snapshot().LastMessage()
	assert.Equal(t, RoleSystem, last.Role)
}

func TestNonMessageEventsBecomeSystemEntries(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, true)
	require.NoError(t, o.Send(context.Background(), "hi"))

	gw.push(t, update("sess-1", "",
		acp.ToolCallStarted{CallID: "c1", Name: "ripgrep"},
		acp.ToolCallCompleted{CallID: "c1"},
		acp.PlanUpdated{Summary: "refactor plan", Steps: []acp.PlanStep{{Title: "read"}, {Title: "edit"}}},
		acp.ModeChanged{Previous: "code", Next: "plan"},
		acp.UnknownEvent{Type: "surprise"},
	))

	awaitState(t, o, func(s Snapshot) bool { return containsContent(s, "surprise") })

	snap := o.Snapshot()
	assert.True(t, containsContent(snap, `Agent started tool "ripgrep"`))
	assert.True(t, containsContent(snap, "Tool call c1 completed"))
	assert.True(t, containsContent(snap, "Plan updated: refactor plan (2 steps)"))
	assert.True(t, containsContent(snap, `Agent mode changed from "code" to "plan"`))
	assert.True(t, containsContent(snap, `Agent sent an unrecognized "surprise" event`))
	assert.Equal(t, 0, countRole(snap, RoleAssistant))
}

func TestRunFailureAppendsSystemEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.runErr = errors.New("bridge exploded")
	o := newTestOrchestrator(t, gw, false)

	err := o.Send(context.Background(), "hi")
	require.Error(t, err)

	snap := o.Snapshot()
	last, _ := snap.LastMessage()
	assert.Equal(t, RoleSystem, last.Role)
	assert.Contains(t, last.Content, "Request failed:")
	assert.Contains(t, last.Content, "bridge exploded")
	assert.False(t, snap.Streaming)
	assert.False(t, snap.Connected)
}

func TestSessionSetupFailureAppendsSystemEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.initErr = errors.New("handshake refused")
	o := newTestOrchestrator(t, gw, false)

	err := o.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to agent")

	snap := o.Snapshot()
	last, _ := snap.LastMessage()
	assert.Equal(t, RoleSystem, last.Role)
	assert.Contains(t, last.Content, "handshake refused")
	assert.False(t, snap.Streaming)
}

func TestEndpointWithoutAgentsFailsSend(t *testing.T) {
	gw := newFakeGateway()
	gw.agents = nil
	o := newTestOrchestrator(t, gw, false)

	err := o.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hosts no agents")
}

func TestConcurrentSendsOpenOneSession(t *testing.T) {
	gw := newFakeGateway()
	gw.sessionDelay = 30 * time.Millisecond
	o := newTestOrchestrator(t, gw, false)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, o.Send(context.Background(), fmt.Sprintf("message %d", n)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gw.sessionCallCount())
	snap := o.Snapshot()
	assert.Equal(t, 5, countRole(snap, RoleUser))
	assert.False(t, snap.Streaming)
}

func TestSecondSendReusesSession(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, false)

	require.NoError(t, o.Send(context.Background(), "one"))
	require.NoError(t, o.Send(context.Background(), "two"))

	assert.Equal(t, 1, gw.sessionCallCount())
	gw.mu.Lock()
	agentCalls := gw.agentCalls
	gw.mu.Unlock()
	assert.Equal(t, 1, agentCalls, "agent discovery result is cached per endpoint")
}

func TestAuthenticateOnlyWithToken(t *testing.T) {
	gw := newFakeGateway()
	o := NewOrchestrator(singleGatewayFactory(gw), Settings{Endpoint: "http://agent.local"}, "  ", nil)
	t.Cleanup(o.Close)
	require.NoError(t, o.Send(context.Background(), "hi"))
	gw.mu.Lock()
	assert.Equal(t, 0, gw.authCalls)
	gw.mu.Unlock()

	gw2 := newFakeGateway()
	o2 := NewOrchestrator(singleGatewayFactory(gw2), Settings{Endpoint: "http://agent.local"}, "tok-1", nil)
	t.Cleanup(o2.Close)
	require.NoError(t, o2.Send(context.Background(), "hi"))
	gw2.mu.Lock()
	assert.Equal(t, 1, gw2.authCalls)
	gw2.mu.Unlock()
}

func TestServerAssignedSessionIDIsAdopted(t *testing.T) {
	gw := newFakeGateway()
	gw.runSessionID = "srv-9"
	o := newTestOrchestrator(t, gw, true)

	require.NoError(t, o.Send(context.Background(), "hi"))

	snap := o.Snapshot()
	assert.Equal(t, "srv-9", snap.SessionID)
	assert.Equal(t, 2, gw.subscribeCount(), "stream follows the session identity")
	assert.Error(t, gw.subCtx(0).Err(), "subscription for the replaced id is cancelled")
}

func TestSettingsChangeTearsDownConnection(t *testing.T) {
	var mu sync.Mutex
	var gws []*fakeGateway
	factory := func(settings Settings, token string) Gateway {
		mu.Lock()
		defer mu.Unlock()
		gw := newFakeGateway()
		gw.endpoint = settings.Endpoint
		gws = append(gws, gw)
		return gw
	}

	o := NewOrchestrator(factory, Settings{Endpoint: "http://one", Streaming: true}, "", nil)
	t.Cleanup(o.Close)
	require.NoError(t, o.Send(context.Background(), "hi"))

	mu.Lock()
	first := gws[0]
	mu.Unlock()
	require.Equal(t, 1, first.subscribeCount())

	o.UpdateSettings(Settings{Endpoint: "http://two", Streaming: true}, "")

	require.Eventually(t, func() bool { return first.subCtx(0).Err() != nil },
		2*time.Second, 5*time.Millisecond, "old update stream must be cancelled")

	snap := o.Snapshot()
	assert.Empty(t, snap.SessionID)
	assert.Empty(t, snap.AgentName)

	// The background connect probes the new endpoint and restores the
	// connected flag without opening a session.
	awaitState(t, o, func(s Snapshot) bool { return s.Connected })
	mu.Lock()
	second := gws[len(gws)-1]
	mu.Unlock()
	assert.Equal(t, "http://two", second.Endpoint())
	assert.Equal(t, 0, second.sessionCallCount())
}

func TestSettingsChangeCancelsInFlightPrompt(t *testing.T) {
	gw := newFakeGateway()
	gw.runRelease = make(chan struct{})
	o := newTestOrchestrator(t, gw, true)

	done := make(chan error, 1)
	go func() { done <- o.Send(context.Background(), "hi") }()
	awaitState(t, o, func(s Snapshot) bool { return s.Streaming })

	o.UpdateSettings(Settings{Endpoint: "http://elsewhere", Streaming: true}, "")

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.cancels) == 1
	}, 2*time.Second, 5*time.Millisecond, "superseded prompt gets a server-side cancel")

	close(gw.runRelease)
	<-done
}

func TestSettingsChangeSameIdentityKeepsSession(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, false)
	require.NoError(t, o.Send(context.Background(), "hi"))

	o.UpdateSettings(Settings{Endpoint: "http://agent.local/", Model: "gpt-5-mini"}, "")

	snap := o.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, "codex", snap.AgentName)
}

func TestConnectionProbeDoesNotTouchState(t *testing.T) {
	gw := newFakeGateway()
	gw.agents = []acp.AgentInfo{{Name: "codex"}, {Name: "planner"}}
	o := newTestOrchestrator(t, gw, false)
	before := o.Snapshot()

	result := o.TestConnection(context.Background(), Settings{Endpoint: "http://agent.local"}, "")
	assert.True(t, result.OK)
	assert.Contains(t, result.Detail, "2 agent(s)")
	assert.Contains(t, result.Detail, "codex, planner")

	after := o.Snapshot()
	assert.Equal(t, len(before.History), len(after.History))
	assert.False(t, after.Connected)
	assert.Equal(t, 0, gw.sessionCallCount())
}

func TestConnectionProbeFailures(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, false)

	gw.mu.Lock()
	gw.pingErr = errors.New("connection refused")
	gw.mu.Unlock()
	result := o.TestConnection(context.Background(), Settings{Endpoint: "http://agent.local"}, "")
	assert.False(t, result.OK)
	assert.Contains(t, result.Detail, "ping failed")

	gw.mu.Lock()
	gw.pingErr = nil
	gw.agents = nil
	gw.mu.Unlock()
	result = o.TestConnection(context.Background(), Settings{Endpoint: "http://agent.local"}, "")
	assert.False(t, result.OK)
	assert.Contains(t, result.Detail, "no agents")
}

func TestObserverLifecycle(t *testing.T) {
	o := newTestOrchestrator(t, newFakeGateway(), false)

	var mu sync.Mutex
	var snaps []Snapshot
	unsubscribe := o.Observe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	mu.Lock()
	require.Len(t, snaps, 1, "observer fires immediately on registration")
	mu.Unlock()

	o.UpdateConsent("workspace", true)
	mu.Lock()
	require.Len(t, snaps, 2)
	assert.True(t, snaps[1].Consent["workspace"])
	mu.Unlock()

	unsubscribe()
	o.UpdateConsent("terminal", true)
	mu.Lock()
	assert.Len(t, snaps, 2, "unsubscribed observer stays silent")
	mu.Unlock()
}

func TestConsentTracking(t *testing.T) {
	o := newTestOrchestrator(t, newFakeGateway(), false)

	assert.False(t, o.ConsentAllowed("workspace"))
	o.UpdateConsent("workspace", true)
	assert.True(t, o.ConsentAllowed("workspace"))
	o.UpdateConsent("workspace", false)
	assert.False(t, o.ConsentAllowed("workspace"))

	// Snapshots carry copies; mutating one must not leak back.
	snap := o.Snapshot()
	snap.Consent["workspace"] = true
	assert.False(t, o.ConsentAllowed("workspace"))
}

func TestSnapshotHistoryIsACopy(t *testing.T) {
	o := newTestOrchestrator(t, newFakeGateway(), false)

	snap := o.Snapshot()
	snap.History[0] = Message{Role: RoleUser, Content: "tampered"}

	fresh := o.Snapshot()
	assert.Equal(t, RoleSystem, fresh.History[0].Role)
}

func TestCloseStopsMutations(t *testing.T) {
	gw := newFakeGateway()
	o := newTestOrchestrator(t, gw, true)
	require.NoError(t, o.Send(context.Background(), "hi"))

	o.Close()

	assert.Error(t, gw.subCtx(0).Err(), "close cancels the update stream")

	before := len(o.Snapshot().History)
	o.UpdateConsent("workspace", true)
	assert.False(t, o.ConsentAllowed("workspace"))
	assert.Len(t, o.Snapshot().History, before)
}
