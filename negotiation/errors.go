package negotiation

import "fmt"

// InvalidTransitionError is returned when a caller attempts an operation not
// valid in the session's current state (e.g. confirm before formulation
// ready). It is a client error; the session continues unaffected.
type InvalidTransitionError struct {
	SessionID string
	From      string
	Trigger   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("negotiation: session %s: trigger %q invalid from state %q", e.SessionID, e.Trigger, e.From)
}

// SkillFailureError wraps a skill's failure to produce a valid output
// within its retry budget. It fails the enclosing phase and, depending on
// the phase, escalates to session failure.
type SkillFailureError struct {
	SessionID string
	Skill     string
	Cause     error
}

func (e *SkillFailureError) Error() string {
	return fmt.Sprintf("negotiation: session %s: skill %q failed: %v", e.SessionID, e.Skill, e.Cause)
}
func (e *SkillFailureError) Unwrap() error { return e.Cause }

// ToolProtocolError wraps an unknown tool name or malformed arguments
// encountered during a Center round. It is non-fatal in isolation; repeated
// occurrences exhaust the round cap.
type ToolProtocolError struct {
	SessionID string
	Round     int
	ToolName  string
	Cause     error
}

func (e *ToolProtocolError) Error() string {
	return fmt.Sprintf("negotiation: session %s: round %d: tool %q protocol error: %v", e.SessionID, e.Round, e.ToolName, e.Cause)
}
func (e *ToolProtocolError) Unwrap() error { return e.Cause }

// ResourceExhaustionError wraps a provider/LLM outage. It always surfaces
// to the engine as a SkillFailureError; this type exists so callers that
// need to distinguish "the model was unreachable" from "the model answered
// badly" can do so with errors.As before it is wrapped.
type ResourceExhaustionError struct {
	SessionID string
	Skill     string
	Cause     error
}

func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("negotiation: session %s: skill %q: resource exhausted: %v", e.SessionID, e.Skill, e.Cause)
}
func (e *ResourceExhaustionError) Unwrap() error { return e.Cause }

// PlanValidationError records that a plan_json violated the DAG invariant
// (cycle, or a prerequisite id that does not resolve to a task in the same
// plan). It is non-fatal: the engine still emits plan.ready with plan_text
// alone and logs a warning; it never fails the session.
type PlanValidationError struct {
	SessionID string
	Cause     error
}

func (e *PlanValidationError) Error() string {
	return fmt.Sprintf("negotiation: session %s: plan_json invalid: %v", e.SessionID, e.Cause)
}
func (e *PlanValidationError) Unwrap() error { return e.Cause }
