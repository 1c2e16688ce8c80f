// Package resonance implements the pluggable vector-encoding and top-k
// ranking step that selects which registered agents participate in a
// negotiation. An Encoder turns text into a dense vector; a Detector scores
// and ranks agents against a demand vector.
package resonance

import "context"

// Vector is a dense embedding. Callers must not assume a fixed dimension
// across Encoder implementations, but a single Encoder instance must be
// internally consistent.
type Vector []float64

// Encoder turns text into a dense vector. Implementations are expected to be
// deterministic for the same input text (the engine relies on this for the
// profile vector cache, keyed by a hash of the profile text).
type Encoder interface {
	Encode(ctx context.Context, text string) (Vector, error)
}

// Candidate is one agent considered for resonance selection.
type Candidate struct {
	AgentID string
	Vector  Vector
}

// Scored pairs an agent id with the resonance score it was selected (or
// rejected) with.
type Scored struct {
	AgentID string
	Score   float64
}

// Result is the full outcome of a Detect call: the agents selected (top k*,
// at or above MinScore, score-descending) and the ones considered but
// filtered out, in the same order they were evaluated.
type Result struct {
	Selected []Scored
	Filtered []Scored
}

// Detector scores and ranks agent candidates against a demand vector.
type Detector interface {
	Detect(ctx context.Context, demand Vector, candidates []Candidate, kStar int, minScore float64) (Result, error)
}
