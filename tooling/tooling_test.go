package tooling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range DefaultSpecs() {
		spec := spec
		r.Register(spec, HandlerFunc(func(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
			return map[string]any{"handled": string(spec.Name)}, nil
		}))
	}
	return r
}

func TestDispatchUnknownTool(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Dispatch(context.Background(), "s1", "not_a_tool", json.RawMessage(`{}`))
	require.Error(t, err)
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
}

func TestDispatchMalformedArgs(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Dispatch(context.Background(), "s1", OutputPlan, json.RawMessage(`{}`))
	require.Error(t, err)
	var malformed *MalformedArgsError
	require.ErrorAs(t, err, &malformed)
}

func TestDispatchValidArgsSucceeds(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Dispatch(context.Background(), "s1", OutputPlan, json.RawMessage(`{"plan_text": "do the thing"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"handled": "output_plan"}, result)
}

func TestTerminatingToolClassification(t *testing.T) {
	r := newTestRegistry()
	spec, ok := r.Lookup(OutputPlan)
	require.True(t, ok)
	require.True(t, spec.Terminating)

	spec, ok = r.Lookup(AskAgent)
	require.True(t, ok)
	require.False(t, spec.Terminating)
}

func TestRejectIsTerminating(t *testing.T) {
	r := newTestRegistry()
	spec, ok := r.Lookup(Reject)
	require.True(t, ok)
	require.True(t, spec.Terminating)
}
