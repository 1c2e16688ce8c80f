// Package session defines the negotiation data model: Session,
// DemandSnapshot, AgentSelection, Offer, CenterRound, and Plan, plus the
// in-memory Session Store the negotiation engine reads and writes through.
package session

import "time"

// State is one of the eight states in the negotiation state machine (see
// spec.md §4.1). Terminal states are Completed, Failed, and Cancelled.
type State string

const (
	StateCreated              State = "created"
	StateFormulating          State = "formulating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateEncoding             State = "encoding"
	StateOffering             State = "offering"
	StateBarrierWaiting       State = "barrier_waiting"
	StateSynthesizing         State = "synthesizing"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DemandSnapshot is the demand being negotiated. RawIntent is immutable.
// FormulatedText is mutable only until confirmation, then frozen.
type DemandSnapshot struct {
	RawIntent      string
	FormulatedText string
	Confirmed      bool
}

// AgentSelectionEntry is one (agent_id, resonance_score) pair in a frozen
// AgentSelection.
type AgentSelectionEntry struct {
	AgentID        string
	ResonanceScore float64
}

// AgentSelection is the output of resonance: an ordered list of selected
// agents, frozen at the moment it is produced (snapshot isolation — later
// profile changes do not affect an in-flight session).
type AgentSelection struct {
	Entries []AgentSelectionEntry
}

// OfferStatus distinguishes a successfully produced offer from one whose
// Offer skill invocation failed.
type OfferStatus string

const (
	OfferSucceeded OfferStatus = "succeeded"
	OfferFailed    OfferStatus = "failed"
)

// Offer is one agent's proposal, or the record of its failure to produce
// one. Once written, an Offer table entry is never removed or replaced
// (the offer table is monotonic, per spec.md §3's Session invariant).
type Offer struct {
	AgentID      string
	Status       OfferStatus
	Content      string
	Capabilities []string
	FailureCause string
	ReceivedAt   time.Time
}

// ToolCallRecord is one (tool_name, arguments, result) triple produced and
// dispatched during a CenterRound.
type ToolCallRecord struct {
	ToolName string
	Args     map[string]any
	Result   any
}

// CenterRound is one iteration of the Center tool-use loop.
type CenterRound struct {
	RoundNumber int
	ToolCalls   []ToolCallRecord
	// ReasoningSummary is retained verbatim across rounds per §4.7;
	// raw offer text is not part of a CenterRound, only of the Session's
	// offer table, so masking is applied when rendering a Center context,
	// not when recording history.
	ReasoningSummary string
}

// PlanParticipant describes one participant's role in the final plan.
type PlanParticipant struct {
	AgentID     string
	DisplayName string
	RoleInPlan  string
}

// PlanTask is one node of the optional structured plan graph.
type PlanTask struct {
	ID            string
	Title         string
	Description   string
	AssigneeID    string
	Prerequisites []string
	Status        string
}

// PlanEdge connects two tasks in the plan topology.
type PlanEdge struct {
	From string
	To   string
}

// PlanJSON is the optional structured form of a Plan. Must not be required
// — a Plan with only PlanText is valid.
type PlanJSON struct {
	Summary      string
	Participants []PlanParticipant
	Tasks        []PlanTask
	Edges        []PlanEdge
}

// Plan is the terminal artifact of a negotiation.
type Plan struct {
	PlanText            string
	PlanJSON            *PlanJSON
	CenterRounds        int
	ParticipatingAgents []string
}

// Session is one negotiation run, exclusively owned by the engine from
// creation to a terminal state; read-only to every other caller via Store
// snapshot reads.
type Session struct {
	ID              string
	ParentSessionID string
	RecursionDepth  int

	State State

	Demand    DemandSnapshot
	Selection AgentSelection
	Offers    map[string]Offer // keyed by AgentID
	Rounds    []CenterRound
	Plan      *Plan

	CreatedAt    time.Time
	LastEventSeq int

	FailureReason string
}

// Snapshot returns a shallow copy of s suitable for status queries: callers
// see a consistent view even while the engine continues mutating the live
// Session concurrently, since map and slice contents are copied one level
// deep.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.Offers = make(map[string]Offer, len(s.Offers))
	for k, v := range s.Offers {
		cp.Offers[k] = v
	}
	cp.Rounds = append([]CenterRound(nil), s.Rounds...)
	cp.Selection.Entries = append([]AgentSelectionEntry(nil), s.Selection.Entries...)
	return cp
}
