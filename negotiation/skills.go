package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parley-dev/parley/profile"
	"github.com/parley-dev/parley/skill"
)

// FormulationContext is the typed context for the Formulation skill: a raw
// intent plus optional user-profile hints. Formulation must not invent
// participants — it only produces a structured demand text, never agent
// references.
type FormulationContext struct {
	RawIntent    string
	ProfileHints map[string]any
}

// FormulationSkill turns a raw intent into a confirmed, structured demand.
type FormulationSkill struct{}

var _ skill.Skill[FormulationContext, string] = FormulationSkill{}

func (FormulationSkill) Name() string { return "formulation" }

func (FormulationSkill) Render(ctx context.Context, c FormulationContext) (*skill.Request, error) {
	var sb strings.Builder
	sb.WriteString("Rewrite the following raw user intent into a clear, structured demand statement. ")
	sb.WriteString("Do not invent participants or reference any specific agent.\n\n")
	sb.WriteString("Raw intent: ")
	sb.WriteString(c.RawIntent)
	if len(c.ProfileHints) > 0 {
		hints, _ := json.Marshal(c.ProfileHints)
		sb.WriteString("\nUser profile hints: ")
		sb.Write(hints)
	}
	return &skill.Request{
		Messages: []skill.Message{
			{Role: skill.RoleSystem, Text: "You are the Formulation step of a negotiation system."},
			{Role: skill.RoleUser, Text: sb.String()},
		},
		MaxTokens: 1024,
	}, nil
}

func (FormulationSkill) Parse(ctx context.Context, resp *skill.Response) (string, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("formulation: empty response")
	}
	return text, nil
}

func (FormulationSkill) Validate(ctx context.Context, c FormulationContext, out string) skill.Outcome {
	if strings.TrimSpace(out) == "" {
		return skill.OutcomeRetry
	}
	return skill.OutcomeOK
}

// OfferContext is the typed context for one agent's Offer skill invocation.
// It carries only the confirmed demand and that agent's own profile —
// never other agents' profiles or offers — enforcing the anti-fabrication
// invariant (spec.md §4.6) at the type level: there is no field here an
// implementation could accidentally populate with another agent's data.
// OtherAgentIDs is present only so Validate can reject a response that
// names another participant; it carries no profile content.
type OfferContext struct {
	ConfirmedDemand string
	MyProfile       profile.Profile
	OtherAgentIDs   []string
}

// OfferOutput is the result of an Offer skill invocation.
type OfferOutput struct {
	Content      string
	Capabilities []string
}

// OfferSkill produces one agent's proposal against the confirmed demand.
type OfferSkill struct{}

var _ skill.Skill[OfferContext, OfferOutput] = OfferSkill{}

func (OfferSkill) Name() string { return "offer" }

func (OfferSkill) Render(ctx context.Context, c OfferContext) (*skill.Request, error) {
	caps, _ := json.Marshal(c.MyProfile.Capabilities)
	var sb strings.Builder
	sb.WriteString("Confirmed demand: ")
	sb.WriteString(c.ConfirmedDemand)
	sb.WriteString("\nYour profile: ")
	sb.WriteString(c.MyProfile.Text)
	sb.WriteString("\nYour declared capabilities: ")
	sb.Write(caps)
	sb.WriteString("\n\nRespond with a proposal for how you, specifically, can help with the demand above. ")
	sb.WriteString("Do not reference or assume the existence of any other participant.")
	return &skill.Request{
		Messages: []skill.Message{
			{Role: skill.RoleSystem, Text: "You are one agent responding with a proposal (\"offer\") in a negotiation."},
			{Role: skill.RoleUser, Text: sb.String()},
		},
		MaxTokens: 1024,
	}, nil
}

func (OfferSkill) Parse(ctx context.Context, resp *skill.Response) (OfferOutput, error) {
	content := strings.TrimSpace(resp.Text)
	if content == "" {
		return OfferOutput{}, fmt.Errorf("offer: empty response")
	}
	return OfferOutput{Content: content}, nil
}

func (OfferSkill) Validate(ctx context.Context, c OfferContext, out OfferOutput) skill.Outcome {
	if strings.TrimSpace(out.Content) == "" {
		return skill.OutcomeRetry
	}
	lower := strings.ToLower(out.Content)
	for _, other := range c.OtherAgentIDs {
		if other == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(other)) {
			return skill.OutcomeRetry
		}
	}
	return skill.OutcomeOK
}

// CenterOfferView is one offer as presented to the Center model: either the
// raw content (round 1) or a deterministic summary (round 2+, per §4.7).
type CenterOfferView struct {
	AgentID      string
	Capabilities []string
	Text         string // raw content or summary, depending on masking
}

// CenterContext is the typed context for one Center round invocation.
type CenterContext struct {
	ConfirmedDemand string
	Offers          []CenterOfferView // canonical (sorted by AgentID) order
	PriorSummaries  []string          // prior rounds' reasoning summaries, verbatim
	RoundNumber     int
	ForcedTerminal  bool // true once the round cap is exceeded: only output_plan/reject permitted
}

// CenterToolCall is one tool invocation the Center skill produced.
type CenterToolCall struct {
	ToolName  string
	Arguments json.RawMessage
}

// CenterSkill consumes the full offer set and drives the tool-use loop.
type CenterSkill struct {
	Tools []skill.ToolDefinition
}

var _ skill.Skill[CenterContext, []CenterToolCall] = CenterSkill{}

func (CenterSkill) Name() string { return "center" }

func (s CenterSkill) Render(ctx context.Context, c CenterContext) (*skill.Request, error) {
	var sb strings.Builder
	sb.WriteString("Confirmed demand: ")
	sb.WriteString(c.ConfirmedDemand)
	sb.WriteString("\n\nOffers (canonical order):\n")
	for _, o := range c.Offers {
		caps, _ := json.Marshal(o.Capabilities)
		fmt.Fprintf(&sb, "- %s %s: %s\n", o.AgentID, string(caps), o.Text)
	}
	if len(c.PriorSummaries) > 0 {
		sb.WriteString("\nPrior round reasoning (verbatim):\n")
		for i, sum := range c.PriorSummaries {
			fmt.Fprintf(&sb, "round %d: %s\n", i+1, sum)
		}
	}
	if c.ForcedTerminal {
		sb.WriteString("\nThe round cap has been reached. You MUST call output_plan or reject; no other tool is permitted this round.")
	}
	tools := s.Tools
	if c.ForcedTerminal {
		tools = filterTerminatingOnly(s.Tools)
	}
	return &skill.Request{
		Messages: []skill.Message{
			{Role: skill.RoleSystem, Text: "You are the Center: synthesize the offers into a plan via tool calls."},
			{Role: skill.RoleUser, Text: sb.String()},
		},
		Tools:     tools,
		MaxTokens: 2048,
	}, nil
}

func filterTerminatingOnly(defs []skill.ToolDefinition) []skill.ToolDefinition {
	var out []skill.ToolDefinition
	for _, d := range defs {
		if d.Name == "output_plan" || d.Name == "reject" {
			out = append(out, d)
		}
	}
	return out
}

func (CenterSkill) Parse(ctx context.Context, resp *skill.Response) ([]CenterToolCall, error) {
	calls := make([]CenterToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, CenterToolCall{ToolName: tc.Name, Arguments: tc.Arguments})
	}
	return calls, nil
}

func (CenterSkill) Validate(ctx context.Context, c CenterContext, out []CenterToolCall) skill.Outcome {
	// Unknown tool names and malformed arguments are protocol errors handled
	// by the tool handler registry at dispatch time, not validation-retry
	// candidates here: a retry would just re-ask the same model the same
	// way. An empty tool-call list in a forced-terminal round is the one
	// case worth one retry, since the model was explicitly told to call a
	// terminating tool.
	if c.ForcedTerminal && len(out) == 0 {
		return skill.OutcomeRetry
	}
	return skill.OutcomeOK
}

// AskAgentContext is the typed context for a single ask_agent clarification
// round: one participant, one question, against the same confirmed demand.
type AskAgentContext struct {
	ConfirmedDemand string
	Question        string
	MyProfile       profile.Profile
}

// AskAgentSkill produces one agent's answer to a Center-posed question.
type AskAgentSkill struct{}

var _ skill.Skill[AskAgentContext, string] = AskAgentSkill{}

func (AskAgentSkill) Name() string { return "ask_agent" }

func (AskAgentSkill) Render(ctx context.Context, c AskAgentContext) (*skill.Request, error) {
	var sb strings.Builder
	sb.WriteString("Confirmed demand: ")
	sb.WriteString(c.ConfirmedDemand)
	sb.WriteString("\nYour profile: ")
	sb.WriteString(c.MyProfile.Text)
	sb.WriteString("\n\nThe negotiation's Center is asking you directly: ")
	sb.WriteString(c.Question)
	sb.WriteString("\nAnswer only for yourself; do not speak for any other participant.")
	return &skill.Request{
		Messages: []skill.Message{
			{Role: skill.RoleSystem, Text: "You are one agent answering a clarification question during a negotiation."},
			{Role: skill.RoleUser, Text: sb.String()},
		},
		MaxTokens: 512,
	}, nil
}

func (AskAgentSkill) Parse(ctx context.Context, resp *skill.Response) (string, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("ask_agent: empty response")
	}
	return text, nil
}

func (AskAgentSkill) Validate(ctx context.Context, c AskAgentContext, out string) skill.Outcome {
	if strings.TrimSpace(out) == "" {
		return skill.OutcomeRetry
	}
	return skill.OutcomeOK
}

// SummarizeOffer deterministically summarizes o for observation masking:
// agent id + capability list + the first sentence of its content, per
// spec.md §4.7.
func SummarizeOffer(o CenterOfferView) string {
	firstSentence := o.Text
	if idx := strings.IndexAny(o.Text, ".!?"); idx >= 0 {
		firstSentence = o.Text[:idx+1]
	}
	caps := strings.Join(o.Capabilities, ", ")
	if caps == "" {
		return fmt.Sprintf("%s: %s", o.AgentID, strings.TrimSpace(firstSentence))
	}
	return fmt.Sprintf("%s [%s]: %s", o.AgentID, caps, strings.TrimSpace(firstSentence))
}
