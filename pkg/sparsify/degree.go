package sparsify

import (
	"math/rand"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// Degree keeps the floor(E * ratio) edges whose endpoints have the largest
// combined out-degree. Hub-connecting edges form the connectivity backbone.
type Degree struct {
	base
}

// NewDegree creates a degree-weighted sparsifier
func NewDegree(keepRatio float64) (*Degree, error) {
	b, err := newBase(keepRatio)
	if err != nil {
		return nil, err
	}
	return &Degree{base: b}, nil
}

func (s *Degree) Kind() Kind { return KindDegree }

// Sparsify ignores rng; ties are resolved by original edge index
func (s *Degree) Sparsify(g *graph.Graph, _ *rand.Rand) (*graph.Graph, error) {
	numEdges := g.NumEdges()
	if numEdges == 0 {
		return g.WithEdges(nil), nil
	}

	scores := DegreeScores(g)
	k := floorCount(numEdges, s.keepRatio)
	return g.SelectEdges(topK(scores, k)), nil
}

// DegreeScores returns deg(src) + deg(dst) for every edge of g
func DegreeScores(g *graph.Graph) []float64 {
	return degreeScores(g.NumNodes, g.Edges)
}
