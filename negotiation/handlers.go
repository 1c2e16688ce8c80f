package negotiation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/session"
	"github.com/parley-dev/parley/skill"
	"github.com/parley-dev/parley/tooling"
)

// PlanOutputResult is the Dispatch result of both terminating tools,
// output_plan and reject. reject's normative V1 behavior (spec.md §4.1/§4.4,
// see DESIGN.md's Open Question decision) is terminating with a negative
// plan artifact, ending the session in completed rather than failed — so it
// shares this same result shape rather than a distinct error path.
type PlanOutputResult struct {
	PlanText string
	PlanJSON *session.PlanJSON
}

type outputPlanArgs struct {
	PlanText string           `json:"plan_text"`
	PlanJSON *session.PlanJSON `json:"plan_json,omitempty"`
}

type rejectArgs struct {
	Reason string `json:"reason"`
}

type askAgentArgs struct {
	AgentID  string `json:"agent_id"`
	Question string `json:"question"`
}

type startDiscoveryArgs struct {
	Topic          string   `json:"topic"`
	ParticipantIDs []string `json:"participant_ids"`
}

type outputGapArgs struct {
	Description string `json:"description"`
}

// buildRegistry constructs the tool handler registry every Center round
// dispatches through. One Registry is shared by every session: handlers act
// on whichever sessionID Dispatch passes them.
func (e *Engine) buildRegistry() *tooling.Registry {
	r := tooling.NewRegistry()

	for _, spec := range tooling.DefaultSpecs() {
		spec := spec
		switch spec.Name {
		case tooling.OutputPlan:
			r.Register(spec, tooling.HandlerFunc(e.handleOutputPlan))
		case tooling.Reject:
			r.Register(spec, tooling.HandlerFunc(e.handleReject))
		case tooling.AskAgent:
			r.Register(spec, tooling.HandlerFunc(e.handleAskAgent))
		case tooling.StartDiscovery:
			r.Register(spec, tooling.HandlerFunc(e.handleStartDiscovery))
		case tooling.OutputGap:
			r.Register(spec, tooling.HandlerFunc(e.handleOutputGap))
		}
	}
	return r
}

func (e *Engine) handleOutputPlan(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	var a outputPlanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("output_plan: %w", err)
	}
	if a.PlanJSON != nil {
		if err := ValidatePlanJSON(a.PlanJSON); err != nil {
			// Non-fatal per spec.md §7/§8: the structured form is dropped,
			// plan_text alone still stands.
			e.logger.Warn(ctx, "plan_json rejected", "session_id", sessionID, "err", err)
			a.PlanJSON = nil
		}
	}
	return PlanOutputResult{PlanText: a.PlanText, PlanJSON: a.PlanJSON}, nil
}

func (e *Engine) handleReject(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	var a rejectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("reject: %w", err)
	}
	return PlanOutputResult{PlanText: fmt.Sprintf("no viable plan: %s", a.Reason)}, nil
}

func (e *Engine) handleAskAgent(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	var a askAgentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("ask_agent: %w", err)
	}
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prof, err := e.profiles.Get(ctx, a.AgentID)
	if err != nil {
		return nil, fmt.Errorf("ask_agent: %w", err)
	}
	answer, _, err := skill.Run(ctx, e.runner, AskAgentSkill{}, AskAgentContext{
		ConfirmedDemand: sess.Demand.FormulatedText,
		Question:        a.Question,
		MyProfile:       prof,
	})
	if err != nil {
		return nil, fmt.Errorf("ask_agent: %w", err)
	}
	return map[string]any{"agent_id": a.AgentID, "question": a.Question, "answer": answer}, nil
}

func (e *Engine) handleStartDiscovery(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	var a startDiscoveryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("start_discovery: %w", err)
	}
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RecursionDepth >= e.cfg.MaxRecursionDepth {
		return nil, fmt.Errorf("start_discovery: recursion depth %d at or beyond the configured limit (%d)", sess.RecursionDepth, e.cfg.MaxRecursionDepth)
	}

	childID := uuid.NewString()
	child := &session.Session{
		ID:              childID,
		ParentSessionID: sessionID,
		RecursionDepth:  sess.RecursionDepth + 1,
		State:           session.StateCreated,
		Demand:          session.DemandSnapshot{RawIntent: a.Topic},
		Offers:          make(map[string]session.Offer),
	}
	if err := e.store.Put(ctx, child); err != nil {
		return nil, err
	}
	e.publish(ctx, sessionID, sess.ParentSessionID, events.KindSubNegotiationStarted, events.SubNegotiationStartedPayload{
		ChildSessionID: childID,
		Topic:          a.Topic,
		ParticipantIDs: a.ParticipantIDs,
	})

	// Sub-negotiations run synchronously within the parent's own Center
	// round: the parent Center is explicitly waiting on this tool call's
	// result before it can proceed, so there is no benefit to a second
	// goroutine here (spec.md §4.5's "child completion delivers its plan
	// summary to the parent Center as a tool result").
	e.run(ctx, runParams{
		SessionID:          childID,
		RawIntent:          a.Topic,
		ParentSessionID:    sessionID,
		RecursionDepth:     sess.RecursionDepth + 1,
		AutoConfirm:        true,
		RestrictToAgentIDs: a.ParticipantIDs,
		Inbox:              make(chan inboxMsg, 1),
	})

	childFinal, err := e.store.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"child_session_id": childID, "child_state": string(childFinal.State)}
	if childFinal.Plan != nil {
		result["plan_text"] = childFinal.Plan.PlanText
	} else {
		result["failure_reason"] = childFinal.FailureReason
	}
	return result, nil
}

func (e *Engine) handleOutputGap(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	var a outputGapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("output_gap: %w", err)
	}
	return map[string]any{"description": a.Description}, nil
}
