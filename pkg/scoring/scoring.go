// Package scoring provides the hybrid ranking functions used to order
// memories: semantic similarity blended with recency decay, then scaled
// by an importance multiplier.
//
// All functions are pure and deterministic given their inputs and the
// wall clock; they hold no state and are safe for concurrent use.
package scoring

import (
	"math"
	"time"
)

// Default scoring parameters. Weights are configuration, not validated
// to sum to 1 — callers own sane weighting.
const (
	// DefaultSemanticWeight is the weight of raw cosine similarity.
	DefaultSemanticWeight = 0.8

	// DefaultRecencyWeight is the weight of the recency decay term.
	DefaultRecencyWeight = 0.2

	// DefaultDecayDays is the exponential decay constant in days.
	// A memory untouched for DecayDays days retains e^-1 (~0.37) of
	// its recency contribution.
	DefaultDecayDays = 30.0
)

// Weights contains the tunables of the hybrid scoring formula.
//
// Model these as explicit values threaded into calls rather than
// package-level state, so two callers can rank with different tunings
// concurrently.
type Weights struct {
	// Semantic is the weight applied to raw similarity.
	Semantic float64 `json:"semantic_weight"`

	// Recency is the weight applied to the recency decay term.
	Recency float64 `json:"recency_weight"`

	// DecayDays is the decay constant for RecencyScore, in days.
	DecayDays float64 `json:"decay_days"`
}

// DefaultWeights returns the standard 0.8 / 0.2 / 30-day tuning.
func DefaultWeights() Weights {
	return Weights{
		Semantic:  DefaultSemanticWeight,
		Recency:   DefaultRecencyWeight,
		DecayDays: DefaultDecayDays,
	}
}

// RecencyScore returns the exponential recency decay for a memory last
// accessed at lastAccessed.
//
// The formula is:
//
//	recency = e^(-daysSince / decayDays)
//
// The result is 1.0 at the instant of access and approaches 0 as the
// elapsed time grows. The range is (0, 1] for any past timestamp; a
// timestamp in the future clamps to 1.0.
func RecencyScore(lastAccessed time.Time, decayDays float64) float64 {
	if decayDays <= 0 {
		decayDays = DefaultDecayDays
	}

	daysSince := time.Since(lastAccessed).Hours() / 24.0
	if daysSince < 0 {
		daysSince = 0
	}

	return math.Exp(-daysSince / decayDays)
}

// HybridScore computes the combined rank signal for one candidate.
//
// The formula is:
//
//	base   = w.Semantic*similarity + w.Recency*recency
//	result = base * (0.5 + importance)
//
// Importance acts as a multiplier in [0.5, 1.5]: it never zeroes a
// result and never more than triples it relative to minimum importance.
//
// similarity is passed through as-is; values outside [0, 1] (negative
// cosine included) are valid inputs and propagate through the formula.
func HybridScore(similarity float64, lastAccessed time.Time, importance float64, w Weights) float64 {
	recency := RecencyScore(lastAccessed, w.DecayDays)
	base := w.Semantic*similarity + w.Recency*recency
	return base * (0.5 + importance)
}

// ReinforcedImportance returns the importance after a reinforcement of
// the given boost, clamped to 1.0.
func ReinforcedImportance(importance, boost float64) float64 {
	reinforced := importance + boost
	if reinforced > 1.0 {
		return 1.0
	}
	return reinforced
}

// DecayedImportance returns the importance after multiplicative decay,
// floored at floor so a memory never decays to exactly zero.
func DecayedImportance(importance, factor, floor float64) float64 {
	decayed := importance * factor
	if decayed < floor {
		return floor
	}
	return decayed
}
