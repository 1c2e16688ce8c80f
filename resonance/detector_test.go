package resonance

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCosineDetectorSelectsTopKAboveThreshold(t *testing.T) {
	d := NewCosineDetector()
	demand := Vector{1, 0}
	candidates := []Candidate{
		{AgentID: "a", Vector: Vector{1, 0}},    // score 1.0
		{AgentID: "b", Vector: Vector{0.9, 0.1}}, // high
		{AgentID: "c", Vector: Vector{0, 1}},    // orthogonal, score 0
	}

	result, err := d.Detect(context.Background(), demand, candidates, 2, 0.3)
	require.NoError(t, err)
	require.Len(t, result.Selected, 2)
	require.Equal(t, "a", result.Selected[0].AgentID)
	require.Equal(t, "b", result.Selected[1].AgentID)
	require.Len(t, result.Filtered, 1)
	require.Equal(t, "c", result.Filtered[0].AgentID)
}

func TestCosineDetectorEmptyCandidates(t *testing.T) {
	d := NewCosineDetector()
	result, err := d.Detect(context.Background(), Vector{1, 0}, nil, 5, 0.3)
	require.NoError(t, err)
	require.Empty(t, result.Selected)
	require.Empty(t, result.Filtered)
}

func TestCosineDetectorDeterministicOrdering(t *testing.T) {
	d := NewCosineDetector()
	demand := Vector{1, 1}
	candidates := []Candidate{
		{AgentID: "z", Vector: Vector{1, 1}},
		{AgentID: "a", Vector: Vector{1, 1}}, // tie on score, breaks by id
	}
	result, err := d.Detect(context.Background(), demand, candidates, 2, 0.0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "z"}, []string{result.Selected[0].AgentID, result.Selected[1].AgentID})
}

func TestCosineSimilarityPropertyBoundedAndZeroSafe(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("cosine similarity is within [-1, 1]", prop.ForAll(
		func(a, b float64) bool {
			s := cosineSimilarity(Vector{a, 1 - a}, Vector{b, 1 - b})
			return s >= -1.0001 && s <= 1.0001
		},
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
	))

	properties.Property("zero vector similarity is zero, never NaN", prop.ForAll(
		func(a float64) bool {
			s := cosineSimilarity(Vector{a, a}, Vector{0, 0})
			return s == 0
		},
		gen.Float64Range(-10, 10),
	))

	properties.TestingRun(t)
}

func TestVectorCacheReusesEncodedResult(t *testing.T) {
	calls := 0
	underlying := encoderFunc(func(ctx context.Context, text string) (Vector, error) {
		calls++
		return Vector{1, 2, 3}, nil
	})
	cache := NewVectorCache(underlying)

	v1, err := cache.Encode(context.Background(), "a profile")
	require.NoError(t, err)
	v2, err := cache.Encode(context.Background(), "a profile")
	require.NoError(t, err)

	require.Equal(t, v1, v2)
	require.Equal(t, 1, calls)
}

type encoderFunc func(ctx context.Context, text string) (Vector, error)

func (f encoderFunc) Encode(ctx context.Context, text string) (Vector, error) { return f(ctx, text) }
