// Package router applies the gate's scores to pick an expert for one
// request, with an administrative override escape hatch.
package router

import (
	"fmt"

	"github.com/moegate-ai/moegate/internal/expert"
)

// Scorer produces a probability distribution over registry indices from
// a feature vector. Satisfied by *gate.Gate.
type Scorer interface {
	Score(vec []float32) []float32
}

// Decision is the outcome of routing one request.
type Decision struct {
	Expert     string
	Index      int
	Confidence float32
	// Distribution holds the raw per-expert probabilities, in registry
	// order. Nil when an override bypassed scoring.
	Distribution []float32
	// Forced reports that the decision came from an override.
	Forced bool
}

// UnknownExpertError reports a force override naming an unregistered
// expert. It fails the request rather than silently falling back to
// the scorer.
type UnknownExpertError struct {
	Name string
}

func (e *UnknownExpertError) Error() string {
	return fmt.Sprintf("unknown expert %q", e.Name)
}

// Router selects an expert per request.
type Router struct {
	registry *expert.Registry
	scorer   Scorer
}

// New creates a router over a registry and scorer.
func New(registry *expert.Registry, scorer Scorer) *Router {
	return &Router{registry: registry, scorer: scorer}
}

// Select picks an expert for the given feature vector. A non-empty
// override bypasses scoring entirely and returns confidence 1.0 with no
// distribution. Otherwise the expert with the maximal probability wins;
// exact ties go to the lowest registry index, deterministically.
func (r *Router) Select(vec []float32, override string) (Decision, error) {
	if override != "" {
		d, ok := r.registry.ByName(override)
		if !ok {
			return Decision{}, &UnknownExpertError{Name: override}
		}
		return Decision{
			Expert:     d.Name,
			Index:      d.Index,
			Confidence: 1.0,
			Forced:     true,
		}, nil
	}

	dist := r.scorer.Score(vec)
	if len(dist) != r.registry.Len() {
		return Decision{}, fmt.Errorf("router: scorer produced %d entries for %d experts", len(dist), r.registry.Len())
	}

	best := 0
	for i := 1; i < len(dist); i++ {
		// Strictly greater keeps the lowest index on exact ties.
		if dist[i] > dist[best] {
			best = i
		}
	}

	d, ok := r.registry.ByIndex(best)
	if !ok {
		return Decision{}, fmt.Errorf("router: selected index %d out of range", best)
	}

	return Decision{
		Expert:       d.Name,
		Index:        best,
		Confidence:   dist[best],
		Distribution: dist,
	}, nil
}
