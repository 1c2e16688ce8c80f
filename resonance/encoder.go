package resonance

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashingEncoder is a dependency-free deterministic Encoder suitable for
// development and tests. It hashes each whitespace-separated token into one
// of dims buckets (the feature-hashing trick), so semantically unrelated
// text never collides in exactly the way a trained embedding model would,
// but the result is deterministic, cheap, and good enough to exercise the
// Detector's ranking logic without depending on an external embedding
// provider. Production deployments should inject a real model-backed
// Encoder instead.
type HashingEncoder struct {
	dims int
}

var _ Encoder = HashingEncoder{}

// NewHashingEncoder constructs a HashingEncoder with the given vector
// dimensionality. dims <= 0 defaults to 256.
func NewHashingEncoder(dims int) Encoder {
	if dims <= 0 {
		dims = 256
	}
	return HashingEncoder{dims: dims}
}

// Encode implements Encoder.
func (e HashingEncoder) Encode(ctx context.Context, text string) (Vector, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	v := make(Vector, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[int(h.Sum32())%e.dims] += 1
	}
	return v, nil
}
