package sparsify

import (
	"math/rand"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// Random keeps floor(E * ratio) edges chosen uniformly without replacement
type Random struct {
	base
}

// NewRandom creates a uniform random sparsifier
func NewRandom(keepRatio float64) (*Random, error) {
	b, err := newBase(keepRatio)
	if err != nil {
		return nil, err
	}
	return &Random{base: b}, nil
}

func (s *Random) Kind() Kind { return KindRandom }

// Sparsify samples edges with rng
func (s *Random) Sparsify(g *graph.Graph, rng *rand.Rand) (*graph.Graph, error) {
	numEdges := g.NumEdges()
	if numEdges == 0 {
		return g.WithEdges(nil), nil
	}
	if err := requireRNG(rng, s.Kind()); err != nil {
		return nil, err
	}

	k := floorCount(numEdges, s.keepRatio)
	return g.SelectEdges(samplePositions(numEdges, k, rng)), nil
}
