package resonance

import (
	"context"
	"math"
	"sort"
)

// DefaultKStar and DefaultMinScore match the specification's stated V1
// defaults (k* 5-10, threshold 0.3); callers pick a specific k within the
// range per call since Detect takes kStar explicitly.
const (
	DefaultKStar    = 5
	DefaultMinScore = 0.3
)

// CosineDetector is the default V1 Detector: scores every candidate by
// cosine similarity to the demand vector, keeps those at or above minScore,
// and returns the top kStar by descending score. Ties break by AgentID for
// determinism, since the resonance selection must be a deterministic
// function of its inputs (the engine relies on this for reproducible
// canonical ordering downstream).
type CosineDetector struct{}

var _ Detector = CosineDetector{}

// NewCosineDetector constructs the default cosine-similarity Detector.
func NewCosineDetector() Detector { return CosineDetector{} }

// Detect implements Detector.
func (CosineDetector) Detect(ctx context.Context, demand Vector, candidates []Candidate, kStar int, minScore float64) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{AgentID: c.AgentID, Score: cosineSimilarity(demand, c.Vector)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].AgentID < scored[j].AgentID
	})

	var selected, filtered []Scored
	for _, s := range scored {
		if s.Score >= minScore && len(selected) < kStar {
			selected = append(selected, s)
		} else {
			filtered = append(filtered, s)
		}
	}

	return Result{Selected: selected, Filtered: filtered}, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, treating
// vectors of mismatched length as padded with zeros, and returning 0 (not
// NaN) when either vector has zero magnitude.
func cosineSimilarity(a, b Vector) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
