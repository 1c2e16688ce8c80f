package negotiation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/session"
	"github.com/parley-dev/parley/skill"
	"github.com/parley-dev/parley/tooling"
)

// runCenterLoop drives the bounded Center tool-use loop (spec.md §4.4): on
// each round, render the current offer set (raw on round 1, masked per §4.7
// thereafter) plus prior reasoning summaries, invoke the Center skill, and
// dispatch the tool calls it returns in order. The first terminating tool
// call (output_plan or reject) that succeeds ends the loop, and later calls
// of that round are not dispatched; the loop fails once a
// forced-terminal round (round number > the configured cap) still produces
// none.
func (e *Engine) runCenterLoop(ctx context.Context, sessID, parentID, confirmedText string, agentIDs []string) (*session.Plan, error) {
	sess, err := e.store.Get(ctx, sessID)
	if err != nil {
		return nil, err
	}

	var priorSummaries []string
	maxRounds := e.cfg.MaxCenterRounds
	if maxRounds <= 0 {
		maxRounds = 2
	}

	for round := 1; ; round++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		forced := round > maxRounds
		offersView := buildOffersView(sess.Offers, agentIDs, round == 1)

		centerCtx := CenterContext{
			ConfirmedDemand: confirmedText,
			Offers:          offersView,
			PriorSummaries:  priorSummaries,
			RoundNumber:     round,
			ForcedTerminal:  forced,
		}
		calls, _, err := skill.Run(ctx, e.runner, CenterSkill{Tools: e.toolDefinitions()}, centerCtx)
		if err != nil {
			return nil, &SkillFailureError{SessionID: sessID, Skill: "center", Cause: err}
		}

		roundRecord := session.CenterRound{RoundNumber: round}
		var plan *session.Plan
		terminated := false

		for _, call := range calls {
			result, dispatchErr := e.tools.Dispatch(ctx, sessID, tooling.Name(call.ToolName), call.Arguments)
			roundRecord.ToolCalls = append(roundRecord.ToolCalls, session.ToolCallRecord{
				ToolName: call.ToolName,
				Args:     marshalArgs(call.Arguments),
				Result:   result,
			})
			e.publish(ctx, sessID, parentID, events.KindCenterToolCall, events.CenterToolCallPayload{
				RoundNumber: round,
				ToolName:    call.ToolName,
				ToolArgs:    marshalArgs(call.Arguments),
				Result:      result,
			})
			if dispatchErr != nil {
				// An unknown tool name or malformed arguments is a protocol
				// error the round absorbs: it counts toward the round cap but
				// never crashes the session (spec.md §7).
				e.logger.Warn(ctx, "center tool protocol error", "session_id", sessID, "round", round, "tool", call.ToolName, "err", dispatchErr)
				continue
			}
			spec, ok := e.tools.Lookup(tooling.Name(call.ToolName))
			if !ok || !spec.Terminating {
				continue
			}
			out, ok := result.(PlanOutputResult)
			if !ok {
				continue
			}
			plan = &session.Plan{
				PlanText:            out.PlanText,
				PlanJSON:            out.PlanJSON,
				CenterRounds:        round,
				ParticipatingAgents: agentIDs,
			}
			terminated = true
			break
		}

		roundRecord.ReasoningSummary = summarizeRound(roundRecord)
		_ = e.store.Mutate(ctx, sessID, func(s *session.Session) error {
			s.Rounds = append(s.Rounds, roundRecord)
			return nil
		})
		priorSummaries = append(priorSummaries, roundRecord.ReasoningSummary)

		if terminated {
			return plan, nil
		}
		if forced {
			return nil, fmt.Errorf("negotiation: center loop exhausted %d round(s) without a terminating tool call", round)
		}

		sess, err = e.store.Get(ctx, sessID)
		if err != nil {
			return nil, err
		}
	}
}

// buildOffersView returns the Center-visible offer set in canonical agent
// order. Round 1 shows each offer's raw content; round 2 onward replaces it
// with SummarizeOffer's deterministic summary, bounding how much raw agent
// text accumulates in the Center's context across rounds (spec.md §4.7).
func buildOffersView(offers map[string]session.Offer, agentIDs []string, raw bool) []CenterOfferView {
	views := make([]CenterOfferView, 0, len(agentIDs))
	for _, id := range agentIDs {
		o, ok := offers[id]
		if !ok || o.Status != session.OfferSucceeded {
			continue
		}
		view := CenterOfferView{AgentID: id, Capabilities: o.Capabilities, Text: o.Content}
		if !raw {
			view.Text = SummarizeOffer(view)
		}
		views = append(views, view)
	}
	return views
}

// summarizeRound produces the verbatim-carried reasoning summary for one
// round's transcript: which tools were called, in order.
func summarizeRound(r session.CenterRound) string {
	if len(r.ToolCalls) == 0 {
		return fmt.Sprintf("round %d: no tool calls", r.RoundNumber)
	}
	summary := fmt.Sprintf("round %d:", r.RoundNumber)
	for _, tc := range r.ToolCalls {
		summary += " " + tc.ToolName
	}
	return summary
}

func (e *Engine) toolDefinitions() []skill.ToolDefinition {
	specs := e.tools.Specs()
	defs := make([]skill.ToolDefinition, len(specs))
	for i, s := range specs {
		var schema any
		_ = json.Unmarshal(s.ArgsSchema, &schema)
		defs[i] = skill.ToolDefinition{Name: string(s.Name), Description: s.Description, InputSchema: schema}
	}
	return defs
}
