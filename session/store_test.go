package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreGetNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorePutGetSnapshotIsolation(t *testing.T) {
	s := NewStore()
	sess := &Session{ID: "s1", State: StateCreated, Offers: map[string]Offer{}}
	require.NoError(t, s.Put(context.Background(), sess))

	snap, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, StateCreated, snap.State)

	require.NoError(t, s.Mutate(context.Background(), "s1", func(live *Session) error {
		live.State = StateFormulating
		live.Offers["agent-1"] = Offer{AgentID: "agent-1", Status: OfferSucceeded}
		return nil
	}))

	require.Equal(t, StateCreated, snap.State, "earlier snapshot must not observe later mutation")
	require.Empty(t, snap.Offers)

	snap2, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, StateFormulating, snap2.State)
	require.Len(t, snap2.Offers, 1)
}

func TestStoreMutateNotFound(t *testing.T) {
	s := NewStore()
	err := s.Mutate(context.Background(), "missing", func(*Session) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}
