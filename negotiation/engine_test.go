package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/config"
	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/profile"
	"github.com/parley-dev/parley/resonance"
	"github.com/parley-dev/parley/session"
	"github.com/parley-dev/parley/skill"
)

// scriptedClient is a fake skill.Client that recognizes which skill invoked
// it from the system message and returns a scripted response. centerScript
// is consumed one entry per Center round invocation (and the last entry
// repeats if the script runs out), so tests can drive multi-round loops.
type scriptedClient struct {
	mu            sync.Mutex
	centerScript  []skill.ToolCall
	centerCalls   int
	offerText     string
}

func (c *scriptedClient) Complete(ctx context.Context, req *skill.Request) (*skill.Response, error) {
	sys := req.Messages[0].Text
	switch {
	case strings.Contains(sys, "Formulation step"):
		return &skill.Response{Text: "Host a 50-person conference: need catering and AV support."}, nil
	case strings.Contains(sys, "answering a clarification question"):
		return &skill.Response{Text: "Yes, I can accommodate that."}, nil
	case strings.Contains(sys, "responding with a proposal"):
		text := c.offerText
		if text == "" {
			text = "I can cover this requirement end to end."
		}
		return &skill.Response{Text: text}, nil
	case strings.Contains(sys, "You are the Center"):
		c.mu.Lock()
		idx := c.centerCalls
		c.centerCalls++
		c.mu.Unlock()
		call := c.centerScript[len(c.centerScript)-1]
		if idx < len(c.centerScript) {
			call = c.centerScript[idx]
		}
		return &skill.Response{ToolCalls: []skill.ToolCall{call}}, nil
	default:
		return nil, fmt.Errorf("scriptedClient: unrecognized request: %s", sys)
	}
}

func toolCall(name string, args map[string]any) skill.ToolCall {
	raw, _ := json.Marshal(args)
	return skill.ToolCall{Name: name, Arguments: raw}
}

func newTestEngine(t *testing.T, client skill.Client, cfg config.Config) (*Engine, *profile.MemoryStore, *eventRecorder) {
	t.Helper()
	profiles := profile.NewMemoryStore()
	profiles.Put(profile.Profile{AgentID: "agent-catering", Text: "We cater large conferences with full AV support.", Capabilities: []string{"catering", "av"}})
	profiles.Put(profile.Profile{AgentID: "agent-logistics", Text: "We handle event logistics and venue booking.", Capabilities: []string{"logistics"}})

	runner, err := skill.NewRunner(skill.RunnerOptions{Client: client, MaxValidationRetries: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)

	bus := events.NewBus()
	rec := &eventRecorder{}
	_, err = bus.Subscribe(events.SinkFunc(func(ctx context.Context, ev events.Event) error {
		rec.record(ev)
		return nil
	}))
	require.NoError(t, err)

	e := NewEngine(Deps{
		Store:    session.NewStore(),
		Bus:      bus,
		Profiles: profiles,
		Encoder:  resonance.NewHashingEncoder(64),
		Detector: resonance.NewCosineDetector(),
		Runner:   runner,
		Config:   cfg,
	})
	return e, profiles, rec
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func waitForState(t *testing.T, e *Engine, sessionID string, want session.State) session.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := e.GetStatus(context.Background(), sessionID)
		require.NoError(t, err)
		if sess.State == want || sess.State.IsTerminal() {
			return sess
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session %s never reached state %q", sessionID, want)
	return session.Session{}
}

func TestEngineHappyPathReachesCompletedWithPlan(t *testing.T) {
	client := &scriptedClient{centerScript: []skill.ToolCall{
		toolCall("output_plan", map[string]any{"plan_text": "Catering and AV booked for the conference."}),
	}}
	e, _, rec := newTestEngine(t, client, config.Config{KStar: 5, MinScore: 0, MaxCenterRounds: 2, MaxRecursionDepth: 1})

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)

	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Confirm(ctx, id, ""))

	final := waitForState(t, e, id, session.StateCompleted)
	require.Equal(t, session.StateCompleted, final.State)
	require.NotNil(t, final.Plan)
	require.Contains(t, final.Plan.PlanText, "Catering and AV")
	require.Len(t, final.Offers, 2)

	kinds := rec.kinds()
	require.Contains(t, kinds, events.KindFormulationReady)
	require.Contains(t, kinds, events.KindFormulationConfirmed)
	require.Contains(t, kinds, events.KindResonanceActivated)
	require.Contains(t, kinds, events.KindBarrierComplete)
	require.Contains(t, kinds, events.KindPlanReady)
}

func TestEngineRejectEndsCompletedWithNegativePlan(t *testing.T) {
	client := &scriptedClient{centerScript: []skill.ToolCall{
		toolCall("reject", map[string]any{"reason": "no agent can meet the AV requirement"}),
	}}
	e, _, _ := newTestEngine(t, client, config.Config{KStar: 5, MinScore: 0, MaxCenterRounds: 2, MaxRecursionDepth: 1})

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)
	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Confirm(ctx, id, ""))

	final := waitForState(t, e, id, session.StateCompleted)
	require.Equal(t, session.StateCompleted, final.State)
	require.NotNil(t, final.Plan)
	require.Contains(t, final.Plan.PlanText, "no viable plan")
}

func TestEngineRoundCapExceededFailsSession(t *testing.T) {
	askAgent := toolCall("ask_agent", map[string]any{"agent_id": "agent-catering", "question": "can you scale up?"})
	client := &scriptedClient{centerScript: []skill.ToolCall{askAgent, askAgent, askAgent, askAgent}}
	e, _, _ := newTestEngine(t, client, config.Config{KStar: 5, MinScore: 0, MaxCenterRounds: 2, MaxRecursionDepth: 1})

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)
	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Confirm(ctx, id, ""))

	final := waitForState(t, e, id, session.StateFailed)
	require.Equal(t, session.StateFailed, final.State)
	require.Contains(t, final.FailureReason, "center")
}

func TestEngineCancelDuringConfirmationGate(t *testing.T) {
	client := &scriptedClient{centerScript: []skill.ToolCall{toolCall("output_plan", map[string]any{"plan_text": "unused"})}}
	e, _, _ := newTestEngine(t, client, config.Default())

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)
	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Cancel(ctx, id))

	final := waitForState(t, e, id, session.StateCancelled)
	require.Equal(t, session.StateCancelled, final.State)
}

// blockingClient never returns from Complete until released, so a test can
// reliably observe the engine mid-formulation before it ever reaches
// awaiting_confirmation.
type blockingClient struct{ release chan struct{} }

func (c *blockingClient) Complete(ctx context.Context, req *skill.Request) (*skill.Response, error) {
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &skill.Response{Text: "irrelevant: never reached in this test"}, nil
}

func TestEngineConfirmBeforeAwaitingConfirmationIsInvalidTransition(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	defer close(client.release)
	e, _, _ := newTestEngine(t, client, config.Default())

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sess, statusErr := e.GetStatus(ctx, id)
		require.NoError(t, statusErr)
		if sess.State == session.StateFormulating {
			break
		}
		time.Sleep(time.Millisecond)
	}

	err = e.Confirm(ctx, id, "edited demand")
	require.Error(t, err)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
}

// blockingOfferClient answers formulation quickly but blocks forever on the
// offer skill, so a test can reliably observe the engine mid-offer-barrier
// before cancelling it (scenario 6).
type blockingOfferClient struct{ release chan struct{} }

func (c *blockingOfferClient) Complete(ctx context.Context, req *skill.Request) (*skill.Response, error) {
	sys := req.Messages[0].Text
	if strings.Contains(sys, "Formulation step") {
		return &skill.Response{Text: "Host a 50-person conference: need catering and AV support."}, nil
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &skill.Response{Text: "too late to matter"}, nil
}

func TestEngineCancelDuringOfferBarrier(t *testing.T) {
	client := &blockingOfferClient{release: make(chan struct{})}
	defer close(client.release)
	e, _, _ := newTestEngine(t, client, config.Config{KStar: 5, MinScore: 0, MaxCenterRounds: 2, MaxRecursionDepth: 1})

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)

	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Confirm(ctx, id, ""))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sess, statusErr := e.GetStatus(ctx, id)
		require.NoError(t, statusErr)
		if sess.State == session.StateBarrierWaiting {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.NoError(t, e.Cancel(ctx, id))

	final := waitForState(t, e, id, session.StateCancelled)
	require.Equal(t, session.StateCancelled, final.State)
}

func TestEngineConfirmationTimeoutCancelsWithReasonCode(t *testing.T) {
	client := &scriptedClient{centerScript: []skill.ToolCall{
		toolCall("output_plan", map[string]any{"plan_text": "unused"}),
	}}
	cfg := config.Config{KStar: 5, MinScore: 0, MaxCenterRounds: 2, MaxRecursionDepth: 1, ConfirmationTimeout: 30 * time.Millisecond}
	e, _, _ := newTestEngine(t, client, cfg)

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)

	waitForState(t, e, id, session.StateAwaitingConfirmation)
	// Deliberately never confirm: the timeout must fire on its own.

	final := waitForState(t, e, id, session.StateCancelled)
	require.Equal(t, session.StateCancelled, final.State)
	require.Equal(t, "confirmation_timeout", final.FailureReason)
}

func TestEngineNoEligibleAgentsFailsSession(t *testing.T) {
	client := &scriptedClient{centerScript: []skill.ToolCall{toolCall("output_plan", map[string]any{"plan_text": "unused"})}}
	e, _, _ := newTestEngine(t, client, config.Config{KStar: 5, MinScore: 1.01, MaxCenterRounds: 2, MaxRecursionDepth: 1})

	ctx := context.Background()
	id, err := e.Submit(ctx, SubmitRequest{RawIntent: "organize a conference"})
	require.NoError(t, err)
	waitForState(t, e, id, session.StateAwaitingConfirmation)
	require.NoError(t, e.Confirm(ctx, id, ""))

	final := waitForState(t, e, id, session.StateFailed)
	require.Equal(t, session.StateFailed, final.State)
}
