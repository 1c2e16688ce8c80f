// Package events implements the in-order, per-session event stream that the
// negotiation engine publishes to any number of subscribers (UI layers,
// operators, the Center loop's own audit trail). Event kinds form the wire
// contract described by the specification: payload fields are additive and
// consumers must tolerate unknown fields.
package events

// Kind enumerates the nine externally observable event kinds a session can
// emit. Listeners should treat unrecognized kinds as forward-compatible
// no-ops rather than errors.
type Kind string

const (
	KindFormulationReady    Kind = "formulation.ready"
	KindFormulationConfirmed Kind = "formulation.confirmed"
	KindResonanceActivated  Kind = "resonance.activated"
	KindOfferReceived       Kind = "offer.received"
	KindBarrierComplete     Kind = "barrier.complete"
	KindCenterToolCall      Kind = "center.tool_call"
	KindSubNegotiationStarted Kind = "sub_negotiation.started"
	KindPlanReady           Kind = "plan.ready"
	KindSessionCancelled    Kind = "session.cancelled"
	KindSessionFailed       Kind = "session.failed"
)

// Event is a single externally observable occurrence within a session. Seq
// is strictly increasing per session with no gaps; across sessions no global
// order is promised. ParentSessionID is set for events emitted under a child
// (sub-negotiation) session so listeners can reconstruct the recursion tree.
type Event struct {
	SessionID       string
	ParentSessionID string
	Seq             int
	Kind            Kind
	Payload         any
	Timestamp       int64 // wall-clock unix nanoseconds at publish time; not guaranteed to increase between events
}

// Payload types for each event kind. Fields are additive by design: readers
// must tolerate future fields and should decode defensively (e.g., via a
// type switch on Kind rather than assuming every field is present).
type (
	// FormulationReadyPayload accompanies KindFormulationReady.
	FormulationReadyPayload struct {
		RawIntent      string
		FormulatedText string
		Enrichments    map[string]any
	}

	// FormulationConfirmedPayload accompanies KindFormulationConfirmed.
	FormulationConfirmedPayload struct {
		FormulatedText string
	}

	// AgentScore pairs an agent id with the resonance score that selected it.
	AgentScore struct {
		AgentID        string
		ResonanceScore float64
	}

	// ResonanceActivatedPayload accompanies KindResonanceActivated.
	ResonanceActivatedPayload struct {
		Agents          []AgentScore
		FilteredAgents  []AgentScore // agents considered but below threshold / beyond k*
	}

	// OfferReceivedPayload accompanies KindOfferReceived.
	OfferReceivedPayload struct {
		AgentID      string
		Content      string
		Capabilities []string
	}

	// BarrierCompletePayload accompanies KindBarrierComplete.
	BarrierCompletePayload struct {
		AgentCount     int
		SucceededCount int
	}

	// CenterToolCallPayload accompanies KindCenterToolCall.
	CenterToolCallPayload struct {
		RoundNumber int
		ToolName    string
		ToolArgs    map[string]any
		Result      any
	}

	// SubNegotiationStartedPayload accompanies KindSubNegotiationStarted.
	SubNegotiationStartedPayload struct {
		ChildSessionID string
		Topic          string
		ParticipantIDs []string
	}

	// PlanParticipant describes one participant's role in the final plan.
	PlanParticipant struct {
		AgentID     string
		DisplayName string
		RoleInPlan  string
	}

	// PlanTask is one node of the optional structured plan graph.
	PlanTask struct {
		ID            string
		Title         string
		Description   string
		AssigneeID    string
		Prerequisites []string
		Status        string // "pending" | "in_progress" | "done"
	}

	// PlanEdge connects two tasks in the plan topology.
	PlanEdge struct {
		From string
		To   string
	}

	// PlanJSON is the optional structured form of a Plan. It MUST NOT be
	// required: callers that produce only PlanText are valid.
	PlanJSON struct {
		Summary      string
		Participants []PlanParticipant
		Tasks        []PlanTask
		Edges        []PlanEdge
	}

	// PlanReadyPayload accompanies KindPlanReady.
	PlanReadyPayload struct {
		PlanText            string
		PlanJSON            *PlanJSON
		CenterRounds        int
		ParticipatingAgents []string
	}

	// SessionEndedPayload accompanies KindSessionCancelled and
	// KindSessionFailed.
	SessionEndedPayload struct {
		Reason string
	}
)
