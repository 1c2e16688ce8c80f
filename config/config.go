// Package config holds the plain, defaulted configuration record the
// negotiation runtime is built from. Per spec.md §9, this is "a plain
// configuration record with defaulted fields; not part of the core
// specification" — callers may also override k* and the minimum resonance
// score per submit (spec.md §6.1).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process-wide defaults for the negotiation runtime.
type Config struct {
	// KStar is the default maximum number of agents resonance selects.
	KStar int
	// MinScore is the default minimum cosine similarity an agent must clear
	// to be selected.
	MinScore float64
	// MaxCenterRounds is the round cap N from spec.md §4.4 (V1: 2).
	MaxCenterRounds int
	// MaxRecursionDepth bounds sub-negotiation nesting (V1: 1).
	MaxRecursionDepth int
	// SkillTimeout bounds a single skill invocation including its retries.
	SkillTimeout time.Duration
	// ConfirmationTimeout, if non-zero, cancels a session that has not been
	// confirmed within this duration. Zero disables the timeout (spec.md
	// leaves this optional and unspecified by default).
	ConfirmationTimeout time.Duration
	// PerOfferTimeout, if non-zero, bounds how long the barrier waits on a
	// single agent's Offer task before recording it as failed. Zero means
	// offers wait indefinitely on the barrier (V1 default, spec.md §5).
	PerOfferTimeout time.Duration
}

// Default returns the specification's stated V1 defaults.
func Default() Config {
	return Config{
		KStar:             5,
		MinScore:          0.3,
		MaxCenterRounds:   2,
		MaxRecursionDepth: 1,
		SkillTimeout:      60 * time.Second,
		ConfirmationTimeout: 0,
		PerOfferTimeout:     0,
	}
}

// Load returns Default() with any PARLEY_* environment variable overrides
// applied. Malformed overrides are ignored, keeping the corresponding
// default.
func Load() Config {
	c := Default()
	if v, ok := getenvInt("PARLEY_K_STAR"); ok {
		c.KStar = v
	}
	if v, ok := getenvFloat("PARLEY_MIN_SCORE"); ok {
		c.MinScore = v
	}
	if v, ok := getenvInt("PARLEY_MAX_CENTER_ROUNDS"); ok {
		c.MaxCenterRounds = v
	}
	if v, ok := getenvInt("PARLEY_MAX_RECURSION_DEPTH"); ok {
		c.MaxRecursionDepth = v
	}
	if v, ok := getenvDuration("PARLEY_SKILL_TIMEOUT"); ok {
		c.SkillTimeout = v
	}
	if v, ok := getenvDuration("PARLEY_CONFIRMATION_TIMEOUT"); ok {
		c.ConfirmationTimeout = v
	}
	if v, ok := getenvDuration("PARLEY_PER_OFFER_TIMEOUT"); ok {
		c.PerOfferTimeout = v
	}
	return c
}

func getenvInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getenvFloat(key string) (float64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getenvDuration(key string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
