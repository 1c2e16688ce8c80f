package negotiation

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/session"
)

// canonicalEdges is the directed transition graph spec.md §4.1 defines.
// Engine.run only ever moves a session along these edges; any walk staying
// within this table lands on a terminal state with IsTerminal() == true and
// never on a non-terminal state mistaken for terminal, or vice versa.
var canonicalEdges = map[session.State][]session.State{
	session.StateCreated:              {session.StateFormulating},
	session.StateFormulating:          {session.StateAwaitingConfirmation, session.StateFailed},
	session.StateAwaitingConfirmation: {session.StateEncoding, session.StateCancelled},
	session.StateEncoding:             {session.StateOffering, session.StateCancelled, session.StateFailed},
	session.StateOffering:             {session.StateBarrierWaiting},
	session.StateBarrierWaiting:       {session.StateSynthesizing, session.StateFailed, session.StateCancelled},
	session.StateSynthesizing:         {session.StateCompleted, session.StateFailed},
	session.StateCompleted:            nil,
	session.StateFailed:               nil,
	session.StateCancelled:            nil,
}

func TestCanonicalEdgesTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, terminal := range []session.State{session.StateCompleted, session.StateFailed, session.StateCancelled} {
		require.Empty(t, canonicalEdges[terminal], "terminal state %q must have no outgoing transitions", terminal)
		require.True(t, terminal.IsTerminal())
	}
}

func TestCanonicalEdgesNonTerminalStatesHaveAtLeastOneOutgoingEdge(t *testing.T) {
	for state, edges := range canonicalEdges {
		if state.IsTerminal() {
			continue
		}
		require.NotEmpty(t, edges, "non-terminal state %q must have at least one outgoing transition", state)
	}
}

// TestStateGraphWalksOnlyReachDeclaredTerminalsAtTerminalNodes performs
// random walks over canonicalEdges starting from Created and checks that
// IsTerminal agrees with the table at every step of every walk: true only
// when the walk has reached a state with no outgoing edges, false everywhere
// else. This is the property-level check that IsTerminal's classification
// never drifts out of sync with the declared transition graph.
func TestStateGraphWalksOnlyReachDeclaredTerminalsAtTerminalNodes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("random walks over the canonical graph keep IsTerminal in sync with the table", prop.ForAll(
		func(choices []int) bool {
			state := session.StateCreated
			for _, choice := range choices {
				edges := canonicalEdges[state]
				if len(edges) == 0 {
					// Reached a terminal node: IsTerminal must agree, and the
					// walk has nowhere further to go.
					return state.IsTerminal()
				}
				if state.IsTerminal() {
					return false
				}
				state = edges[choice%len(edges)]
			}
			// A walk that never reaches a terminal node within its budget is
			// still valid as long as every intermediate state it passed
			// through is correctly non-terminal; a zero-length or
			// early-exhausted walk simply means IsTerminal was never
			// observed true mid-walk at a state with outgoing edges.
			return terminalAgreesWithEdges(state)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

// terminalAgreesWithEdges reports whether s's IsTerminal classification
// agrees with whether canonicalEdges declares any outgoing transition for
// it.
func terminalAgreesWithEdges(s session.State) bool {
	hasEdges := len(canonicalEdges[s]) > 0
	return hasEdges == !s.IsTerminal()
}
