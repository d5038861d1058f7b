package sparsify

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// similarityEpsilon keeps the cosine denominator away from zero for all-zero feature rows
const similarityEpsilon = 1e-8

// Similarity keeps the edges whose endpoints have the most similar feature
// vectors (cosine similarity).
type Similarity struct {
	base
}

// NewSimilarity creates a feature-similarity sparsifier
func NewSimilarity(keepRatio float64) (*Similarity, error) {
	b, err := newBase(keepRatio)
	if err != nil {
		return nil, err
	}
	return &Similarity{base: b}, nil
}

func (s *Similarity) Kind() Kind { return KindSimilarity }

// Sparsify keeps min(E, max(1, floor(E * ratio))) edges
func (s *Similarity) Sparsify(g *graph.Graph, _ *rand.Rand) (*graph.Graph, error) {
	numEdges := g.NumEdges()
	if numEdges == 0 {
		return g.WithEdges(nil), nil
	}

	scores, err := SimilarityScores(g)
	if err != nil {
		return nil, err
	}

	k := atLeastOne(numEdges, s.keepRatio)
	return g.SelectEdges(topK(scores, k)), nil
}

// SimilarityScores returns the cosine similarity of the endpoint features of every edge
func SimilarityScores(g *graph.Graph) ([]float64, error) {
	if g.Features == nil {
		return nil, ErrFeaturesRequired
	}

	norms := make([]float64, g.NumNodes)
	for i := 0; i < g.NumNodes; i++ {
		norms[i] = floats.Norm(g.Features.RawRowView(i), 2)
	}

	scores := make([]float64, len(g.Edges))
	for i, e := range g.Edges {
		num := floats.Dot(g.Features.RawRowView(e.Src), g.Features.RawRowView(e.Dst))
		scores[i] = num / (norms[e.Src]*norms[e.Dst] + similarityEpsilon)
	}
	return scores, nil
}
