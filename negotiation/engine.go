// Package negotiation implements the core negotiation engine: the eight
// state machine (spec.md §4.1), the bounded Center tool-use loop (§4.4), the
// offer barrier (§4.2/§5), and bounded-depth sub-negotiation (§4.5). The
// engine is the sole writer of a Session's state; every other caller only
// ever observes a Store snapshot.
package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-dev/parley/config"
	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/profile"
	"github.com/parley-dev/parley/resonance"
	"github.com/parley-dev/parley/session"
	"github.com/parley-dev/parley/skill"
	"github.com/parley-dev/parley/telemetry"
	"github.com/parley-dev/parley/tooling"
)

// inboxKind distinguishes the two external signals a waiting session accepts
// while it owns its own logical execution context.
type inboxKind int

const (
	msgConfirm inboxKind = iota
	msgCancel
)

type inboxMsg struct {
	kind inboxKind
	text string // confirm's possibly-edited demand text; empty keeps the formulated text as-is
}

// Engine drives every live negotiation session. One Engine instance is
// shared process-wide; each Submit call gets its own goroutine acting as
// that session's single logical execution context, matching the
// specification's concurrency model (spec.md §5): "one logical execution
// context per session; concurrency exists only across sessions, and within
// the bounded fan-out of the offer barrier."
type Engine struct {
	store    *session.Store
	bus      events.Bus
	seq      *events.Sequencer
	profiles profile.Source
	encoder  resonance.Encoder
	detector resonance.Detector
	runner   *skill.Runner
	tools    *tooling.Registry
	cfg      config.Config
	logger   telemetry.Logger

	mu      sync.Mutex
	inboxes map[string]chan inboxMsg
	cancels map[string]context.CancelFunc
}

// Deps collects Engine's required collaborators.
type Deps struct {
	Store    *session.Store
	Bus      events.Bus
	Profiles profile.Source
	Encoder  resonance.Encoder
	Detector resonance.Detector
	Runner   *skill.Runner
	Config   config.Config
	Logger   telemetry.Logger
}

// NewEngine constructs an Engine and wires its own tool handler registry.
func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	e := &Engine{
		store:    d.Store,
		bus:      d.Bus,
		seq:      events.NewSequencer(d.Bus),
		profiles: d.Profiles,
		encoder:  d.Encoder,
		detector: d.Detector,
		runner:   d.Runner,
		cfg:      d.Config,
		logger:   logger,
		inboxes:  make(map[string]chan inboxMsg),
		cancels:  make(map[string]context.CancelFunc),
	}
	e.tools = e.buildRegistry()
	return e
}

// SubmitRequest is the external submit() operation's input (spec.md §6.1).
type SubmitRequest struct {
	RawIntent    string
	ProfileHints map[string]any
	// KStar and MinScore override the engine's configured defaults for this
	// session only; zero values keep the configured default.
	KStar    int
	MinScore float64
}

// Submit creates a new top-level session and starts its execution context.
// It returns the new session id immediately; Submit does not wait for
// formulation.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.RawIntent == "" {
		return "", fmt.Errorf("negotiation: raw_intent is required")
	}
	id := uuid.NewString()
	sess := &session.Session{
		ID:        id,
		State:     session.StateCreated,
		Demand:    session.DemandSnapshot{RawIntent: req.RawIntent},
		Offers:    make(map[string]session.Offer),
		CreatedAt: time.Now(),
	}
	if err := e.store.Put(ctx, sess); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inbox := make(chan inboxMsg, 4)
	e.mu.Lock()
	e.inboxes[id] = inbox
	e.cancels[id] = cancel
	e.mu.Unlock()

	params := runParams{
		SessionID:    id,
		RawIntent:    req.RawIntent,
		ProfileHints: req.ProfileHints,
		KStar:        req.KStar,
		MinScore:     req.MinScore,
		Inbox:        inbox,
	}
	go func() {
		e.run(runCtx, params)
		e.cleanup(id)
	}()
	return id, nil
}

// Confirm implements the external confirm(text) operation. text, if
// non-empty, replaces the Center-visible demand text before the session
// proceeds to encoding; an empty text confirms the formulated text as-is.
func (e *Engine) Confirm(ctx context.Context, sessionID, text string) error {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != session.StateAwaitingConfirmation {
		return &InvalidTransitionError{SessionID: sessionID, From: string(sess.State), Trigger: "confirm"}
	}
	return e.enqueue(sessionID, inboxMsg{kind: msgConfirm, text: text})
}

// Cancel implements the external cancel() operation. Any non-terminal state
// accepts cancellation.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State.IsTerminal() {
		return &InvalidTransitionError{SessionID: sessionID, From: string(sess.State), Trigger: "cancel"}
	}
	e.mu.Lock()
	cancel, ok := e.cancels[sessionID]
	e.mu.Unlock()
	if ok {
		// Cancel the execution context directly, in addition to enqueuing a
		// msgCancel: a session blocked in the confirmation gate is reading
		// the inbox, but a session mid-offer-barrier or mid-skill-call is
		// not, so ctx cancellation is the only signal it can observe.
		cancel()
	}
	_ = e.enqueue(sessionID, inboxMsg{kind: msgCancel})
	return nil
}

// GetStatus implements the external get_status() operation.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (session.Session, error) {
	return e.store.Get(ctx, sessionID)
}

// Subscribe implements the external subscribe() operation: sink receives
// every event for sessionID, plus every event emitted by a direct child
// sub-negotiation (ParentSessionID == sessionID), per spec.md §4.5.
func (e *Engine) Subscribe(sessionID string, sink events.Sink) (events.Subscription, error) {
	return e.bus.Subscribe(events.SinkFunc(func(ctx context.Context, ev events.Event) error {
		if ev.SessionID != sessionID && ev.ParentSessionID != sessionID {
			return nil
		}
		return sink.HandleEvent(ctx, ev)
	}))
}

func (e *Engine) enqueue(sessionID string, msg inboxMsg) error {
	e.mu.Lock()
	inbox, ok := e.inboxes[sessionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("negotiation: session %s has no active execution context", sessionID)
	}
	select {
	case inbox <- msg:
		return nil
	default:
		return fmt.Errorf("negotiation: session %s's inbox is full", sessionID)
	}
}

func (e *Engine) cleanup(sessionID string) {
	e.mu.Lock()
	delete(e.inboxes, sessionID)
	delete(e.cancels, sessionID)
	e.mu.Unlock()
}

// runParams is everything one execution context needs; Submit and
// start_discovery's recursive sub-negotiation both construct one.
type runParams struct {
	SessionID       string
	RawIntent       string
	ProfileHints    map[string]any
	KStar           int
	MinScore        float64
	ParentSessionID string
	RecursionDepth  int
	// AutoConfirm skips the confirmation gate entirely: used for
	// system-initiated sub-negotiations, which have no human submitter to
	// confirm with (an Open Question decision recorded in DESIGN.md).
	AutoConfirm bool
	// RestrictToAgentIDs, if non-nil, bypasses resonance selection entirely
	// and uses exactly these agent ids (start_discovery's participant_ids).
	RestrictToAgentIDs []string
	Inbox              chan inboxMsg
}

func (e *Engine) kStar(req int) int {
	if req > 0 {
		return req
	}
	return e.cfg.KStar
}

func (e *Engine) minScore(req float64) float64 {
	if req > 0 {
		return req
	}
	return e.cfg.MinScore
}

// run is one session's entire logical execution context, start to terminal
// state. It never returns an error to a caller; all failures are recorded
// onto the session itself and published as session.failed/session.cancelled.
func (e *Engine) run(ctx context.Context, p runParams) {
	sessID := p.SessionID

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.State = session.StateFormulating
		s.ParentSessionID = p.ParentSessionID
		s.RecursionDepth = p.RecursionDepth
		return nil
	})

	formulated, _, err := skill.Run(ctx, e.runner, FormulationSkill{}, FormulationContext{
		RawIntent:    p.RawIntent,
		ProfileHints: p.ProfileHints,
	})
	if err != nil {
		e.fail(ctx, sessID, p.ParentSessionID, &SkillFailureError{SessionID: sessID, Skill: "formulation", Cause: err})
		return
	}

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.Demand.FormulatedText = formulated
		s.State = session.StateAwaitingConfirmation
		return nil
	})
	e.publish(ctx, sessID, p.ParentSessionID, events.KindFormulationReady, events.FormulationReadyPayload{
		RawIntent:      p.RawIntent,
		FormulatedText: formulated,
		Enrichments:    p.ProfileHints,
	})

	confirmedText := formulated
	if !p.AutoConfirm {
		var reason string
		confirmedText, reason = e.waitForConfirmation(ctx, p.Inbox, formulated)
		if reason != "" {
			e.cancelSession(ctx, sessID, p.ParentSessionID, reason)
			return
		}
	}

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.Demand.FormulatedText = confirmedText
		s.Demand.Confirmed = true
		s.State = session.StateEncoding
		return nil
	})
	e.publish(ctx, sessID, p.ParentSessionID, events.KindFormulationConfirmed, events.FormulationConfirmedPayload{
		FormulatedText: confirmedText,
	})

	if ctx.Err() != nil {
		e.cancelSession(ctx, sessID, p.ParentSessionID, "cancelled during encoding")
		return
	}

	selection, filtered, err := e.runResonance(ctx, confirmedText, p)
	if err != nil {
		e.fail(ctx, sessID, p.ParentSessionID, err)
		return
	}
	if len(selection) == 0 {
		e.fail(ctx, sessID, p.ParentSessionID, fmt.Errorf("negotiation: no agent cleared resonance selection"))
		return
	}

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		entries := make([]session.AgentSelectionEntry, len(selection))
		for i, sc := range selection {
			entries[i] = session.AgentSelectionEntry{AgentID: sc.AgentID, ResonanceScore: sc.Score}
		}
		s.Selection = session.AgentSelection{Entries: entries}
		s.State = session.StateOffering
		return nil
	})
	e.publish(ctx, sessID, p.ParentSessionID, events.KindResonanceActivated, events.ResonanceActivatedPayload{
		Agents:         toAgentScores(selection),
		FilteredAgents: toAgentScores(filtered),
	})

	agentIDs := make([]string, len(selection))
	for i, sc := range selection {
		agentIDs[i] = sc.AgentID
	}
	agentIDs = canonicalOrder(agentIDs)

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.State = session.StateBarrierWaiting
		return nil
	})

	barrierResult := runOfferBarrier(ctx, agentIDs, func(taskCtx context.Context, agentID string) (string, []string, error) {
		if e.cfg.PerOfferTimeout > 0 {
			var cancelOffer context.CancelFunc
			taskCtx, cancelOffer = context.WithTimeout(taskCtx, e.cfg.PerOfferTimeout)
			defer cancelOffer()
		}
		return e.runOffer(taskCtx, confirmedText, agentID, agentIDs)
	}, func(agentID string, outcome offerOutcome) {
		e.recordOffer(ctx, sessID, p.ParentSessionID, agentID, outcome)
	})

	if ctx.Err() != nil {
		e.cancelSession(ctx, sessID, p.ParentSessionID, "cancelled during offer barrier")
		return
	}
	if barrierResult.allFailed() {
		e.fail(ctx, sessID, p.ParentSessionID, fmt.Errorf("negotiation: every agent failed to produce an offer"))
		return
	}
	e.publish(ctx, sessID, p.ParentSessionID, events.KindBarrierComplete, events.BarrierCompletePayload{
		AgentCount:     len(agentIDs),
		SucceededCount: barrierResult.succeededCount(),
	})

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.State = session.StateSynthesizing
		return nil
	})

	plan, err := e.runCenterLoop(ctx, sessID, p.ParentSessionID, confirmedText, agentIDs)
	if err != nil {
		e.fail(ctx, sessID, p.ParentSessionID, err)
		return
	}

	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.State = session.StateCompleted
		s.Plan = plan
		return nil
	})
	e.publish(ctx, sessID, p.ParentSessionID, events.KindPlanReady, events.PlanReadyPayload{
		PlanText:            plan.PlanText,
		PlanJSON:            toEventPlanJSON(plan.PlanJSON),
		CenterRounds:        plan.CenterRounds,
		ParticipatingAgents: plan.ParticipatingAgents,
	})
}

// waitForConfirmation blocks until a confirm or cancel message arrives, ctx
// is cancelled, or (if configured) the confirmation timeout elapses. On
// success it returns the demand text to proceed with and an empty reason;
// on any non-confirming outcome it returns an empty text and the cancel
// reason to record, distinguishing the confirmation_timeout reason code
// spec.md §4.3 requires from an explicit cancel or context cancellation.
func (e *Engine) waitForConfirmation(ctx context.Context, inbox chan inboxMsg, formulated string) (string, string) {
	var timeout <-chan time.Time
	if e.cfg.ConfirmationTimeout > 0 {
		timer := time.NewTimer(e.cfg.ConfirmationTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case msg := <-inbox:
		switch msg.kind {
		case msgConfirm:
			if msg.text != "" {
				return msg.text, ""
			}
			return formulated, ""
		default:
			return "", "cancelled during confirmation"
		}
	case <-timeout:
		return "", "confirmation_timeout"
	case <-ctx.Done():
		return "", "cancelled during confirmation"
	}
}

func (e *Engine) runResonance(ctx context.Context, confirmedText string, p runParams) ([]resonance.Scored, []resonance.Scored, error) {
	demandVec, err := e.encoder.Encode(ctx, confirmedText)
	if err != nil {
		return nil, nil, &SkillFailureError{SessionID: p.SessionID, Skill: "resonance_encode", Cause: err}
	}

	var agentIDs []string
	if p.RestrictToAgentIDs != nil {
		agentIDs = p.RestrictToAgentIDs
	} else {
		agentIDs, err = e.profiles.ListActive(ctx)
		if err != nil {
			return nil, nil, &SkillFailureError{SessionID: p.SessionID, Skill: "resonance_list_active", Cause: err}
		}
	}
	sort.Strings(agentIDs)

	candidates := make([]resonance.Candidate, 0, len(agentIDs))
	for _, id := range agentIDs {
		prof, err := e.profiles.Get(ctx, id)
		if err != nil {
			continue // a withdrawn or unknown agent id is simply not a candidate
		}
		vec, err := e.encoder.Encode(ctx, prof.Text)
		if err != nil {
			continue
		}
		candidates = append(candidates, resonance.Candidate{AgentID: id, Vector: vec})
	}

	if p.RestrictToAgentIDs != nil {
		// A sub-negotiation's participant subset is fixed by the Center's
		// start_discovery call, not re-filtered by score: every named
		// participant that still resolves to a profile is selected.
		selected := make([]resonance.Scored, len(candidates))
		for i, c := range candidates {
			selected[i] = resonance.Scored{AgentID: c.AgentID, Score: 1}
		}
		return selected, nil, nil
	}

	result, err := e.detector.Detect(ctx, demandVec, candidates, e.kStar(p.KStar), e.minScore(p.MinScore))
	if err != nil {
		return nil, nil, &SkillFailureError{SessionID: p.SessionID, Skill: "resonance_detect", Cause: err}
	}
	return result.Selected, result.Filtered, nil
}

func (e *Engine) runOffer(ctx context.Context, confirmedText, agentID string, allAgentIDs []string) (string, []string, error) {
	prof, err := e.profiles.Get(ctx, agentID)
	if err != nil {
		return "", nil, err
	}
	out, _, err := skill.Run(ctx, e.runner, OfferSkill{}, OfferContext{
		ConfirmedDemand: confirmedText,
		MyProfile:       prof,
		OtherAgentIDs:   otherAgentIDs(allAgentIDs, agentID),
	})
	if err != nil {
		return "", nil, err
	}
	return out.Content, out.Capabilities, nil
}

func (e *Engine) recordOffer(ctx context.Context, sessID, parentID, agentID string, outcome offerOutcome) {
	status := session.OfferSucceeded
	failureCause := ""
	if outcome.err != nil {
		status = session.OfferFailed
		failureCause = outcome.err.Error()
	}
	_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
		s.Offers[agentID] = session.Offer{
			AgentID:      agentID,
			Status:       status,
			Content:      outcome.content,
			Capabilities: outcome.capabilities,
			FailureCause: failureCause,
			ReceivedAt:   time.Now(),
		}
		return nil
	})
	if outcome.err == nil {
		e.publish(ctx, sessID, parentID, events.KindOfferReceived, events.OfferReceivedPayload{
			AgentID:      agentID,
			Content:      outcome.content,
			Capabilities: outcome.capabilities,
		})
	}
}

func otherAgentIDs(all []string, self string) []string {
	out := make([]string, 0, len(all)-1)
	for _, id := range all {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) publish(ctx context.Context, sessID, parentID string, kind events.Kind, payload any) {
	if err := e.seq.Publish(ctx, events.Event{
		SessionID:       sessID,
		ParentSessionID: parentID,
		Kind:            kind,
		Payload:         payload,
	}); err != nil {
		e.logger.Warn(ctx, "event publish failed", "session_id", sessID, "kind", string(kind), "err", err)
	}
}

// fail and cancelSession both record a terminal state. They must do so on a
// context detached from cancellation: ctx is frequently already Done() by
// the time either is called (Cancel cancels the run context before this
// engine ever observes it, and a skill/resonance/offer error can itself stem
// from ctx expiring), and Store.Mutate's own ctx.Done() check would
// otherwise silently drop the very transition that is supposed to make the
// session terminal. context.WithoutCancel keeps any request-scoped values
// while detaching the Done channel and deadline.
func (e *Engine) fail(ctx context.Context, sessID, parentID string, cause error) {
	e.logger.Error(ctx, "negotiation session failed", "session_id", sessID, "err", cause)
	detached := context.WithoutCancel(ctx)
	_ = e.store.Mutate(detached, sessID, func(s *session.Session) error {
		s.State = session.StateFailed
		s.FailureReason = cause.Error()
		return nil
	})
	e.publish(detached, sessID, parentID, events.KindSessionFailed, events.SessionEndedPayload{Reason: cause.Error()})
}

func (e *Engine) cancelSession(ctx context.Context, sessID, parentID, reason string) {
	detached := context.WithoutCancel(ctx)
	_ = e.store.Mutate(detached, sessID, func(s *session.Session) error {
		s.State = session.StateCancelled
		s.FailureReason = reason
		return nil
	})
	e.publish(detached, sessID, parentID, events.KindSessionCancelled, events.SessionEndedPayload{Reason: reason})
}

func toAgentScores(in []resonance.Scored) []events.AgentScore {
	out := make([]events.AgentScore, len(in))
	for i, s := range in {
		out[i] = events.AgentScore{AgentID: s.AgentID, ResonanceScore: s.Score}
	}
	return out
}

func toEventPlanJSON(p *session.PlanJSON) *events.PlanJSON {
	if p == nil {
		return nil
	}
	out := &events.PlanJSON{Summary: p.Summary}
	for _, pp := range p.Participants {
		out.Participants = append(out.Participants, events.PlanParticipant{
			AgentID: pp.AgentID, DisplayName: pp.DisplayName, RoleInPlan: pp.RoleInPlan,
		})
	}
	for _, t := range p.Tasks {
		out.Tasks = append(out.Tasks, events.PlanTask{
			ID: t.ID, Title: t.Title, Description: t.Description,
			AssigneeID: t.AssigneeID, Prerequisites: t.Prerequisites, Status: t.Status,
		})
	}
	for _, e := range p.Edges {
		out.Edges = append(out.Edges, events.PlanEdge{From: e.From, To: e.To})
	}
	return out
}

// marshalArgs is a small helper the Center loop uses to turn a tool call's
// raw JSON arguments into a map for the round transcript (session.
// ToolCallRecord.Args), tolerating malformed JSON since that case is already
// reported to the caller as a tooling.MalformedArgsError by
// tooling.Registry.Dispatch.
func marshalArgs(raw json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}
