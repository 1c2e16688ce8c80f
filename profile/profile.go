// Package profile defines the agent profile lookup the negotiation engine
// consumes. The storage backend itself is a non-goal of the negotiation
// system — this package only fixes the shape of a keyed lookup and ships an
// in-memory implementation suitable for development, testing, and
// single-node deployments.
package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Source.Get when agentID has no profile.
var ErrNotFound = errors.New("profile: not found")

// Profile is the data an agent contributes to resonance scoring and to its
// own Offer skill invocation. Text is the free-form description encoded by
// the Resonance detector; Capabilities are declared tags the agent
// advertises independent of any specific session.
type Profile struct {
	AgentID      string
	DisplayName  string
	Text         string
	Capabilities []string
}

// Source is the read-only profile lookup the engine depends on. Writers
// (registration, profile edits) go through a separate admin path not
// covered by this interface; the engine only ever reads.
type Source interface {
	// Get returns the profile for agentID, or ErrNotFound if it is not
	// registered. A registered but inactive agent still resolves.
	Get(ctx context.Context, agentID string) (Profile, error)

	// ListActive returns the ids of all agents eligible for resonance
	// selection. Order is unspecified; callers needing determinism must
	// sort.
	ListActive(ctx context.Context) ([]string, error)
}
