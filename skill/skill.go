package skill

import "context"

// Outcome is the result of validating a skill's raw model output.
type Outcome int

const (
	// OutcomeOK means the output validated and can be used as-is.
	OutcomeOK Outcome = iota
	// OutcomeRetry means the output failed validation but another attempt
	// is worthwhile (e.g., the model referenced another agent and should be
	// asked again).
	OutcomeRetry
	// OutcomeReject means the output failed validation in a way no retry
	// would fix within the skill's retry budget.
	OutcomeReject
)

// Skill is a named, typed invocation of a language model that returns
// validated structured output. Name identifies the skill ("formulation",
// "offer", "center", "sub_negotiation"); Render builds the model Request
// from a skill-specific context; Parse turns the model Response into Out;
// Validate inspects the parsed output and decides whether to accept, retry,
// or reject it.
type Skill[Ctx any, Out any] interface {
	Name() string
	Render(ctx context.Context, skillCtx Ctx) (*Request, error)
	Parse(ctx context.Context, resp *Response) (Out, error)
	Validate(ctx context.Context, skillCtx Ctx, out Out) Outcome
}
