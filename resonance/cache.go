package resonance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// VectorCache memoizes Encoder.Encode results keyed by a hash of the input
// text, per the specification's "cached; cache key is a hash of the profile
// text". It is safe for concurrent use.
type VectorCache struct {
	encoder Encoder

	mu    sync.RWMutex
	cache map[string]Vector
}

// NewVectorCache wraps encoder with a hash-keyed memoization layer.
func NewVectorCache(encoder Encoder) *VectorCache {
	return &VectorCache{encoder: encoder, cache: make(map[string]Vector)}
}

// Encode returns the cached vector for text if present, otherwise encodes it
// via the wrapped Encoder and stores the result.
func (c *VectorCache) Encode(ctx context.Context, text string) (Vector, error) {
	key := hashText(text)

	c.mu.RLock()
	if v, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.encoder.Encode(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = v
	c.mu.Unlock()
	return v, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
