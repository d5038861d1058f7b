package sparsify

import (
	"math/rand"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

const (
	// ParamIntermediateFactor names the two-stage pre-sampling multiplier
	ParamIntermediateFactor = "intermediate_factor"

	// DefaultIntermediateFactor is used when no factor is supplied
	DefaultIntermediateFactor = 2.0
)

// TwoStage first pre-samples a random pool of target*factor edges, then
// keeps the highest degree-scored edges inside that pool. Degrees are
// counted within the pool. Factor 1 behaves like random sampling; larger
// factors approach full degree scoring.
type TwoStage struct {
	base
	factor float64
}

// TwoStagePlan describes the edge counts of one two-stage pass
type TwoStagePlan struct {
	Target       int
	Intermediate int
	Keep         int
}

// NewTwoStage creates a two-stage sparsifier. Factors below 1 are raised to 1.
func NewTwoStage(keepRatio, factor float64) (*TwoStage, error) {
	b, err := newBase(keepRatio)
	if err != nil {
		return nil, err
	}
	if factor < 1.0 {
		factor = 1.0
	}
	return &TwoStage{base: b, factor: factor}, nil
}

func (s *TwoStage) Kind() Kind { return KindTwoStage }

// IntermediateFactor returns the effective pre-sampling factor
func (s *TwoStage) IntermediateFactor() float64 { return s.factor }

// Plan computes target, pool and final sizes for a graph with numEdges edges
func (s *TwoStage) Plan(numEdges int) TwoStagePlan {
	if numEdges == 0 {
		return TwoStagePlan{}
	}
	target := floorCount(numEdges, s.keepRatio)
	if target < 1 {
		target = 1
	}
	intermediate := int(float64(target) * s.factor)
	if intermediate > numEdges {
		intermediate = numEdges
	}
	keep := target
	if keep > intermediate {
		keep = intermediate
	}
	if keep < 1 {
		keep = 1
	}
	return TwoStagePlan{Target: target, Intermediate: intermediate, Keep: keep}
}

// Sparsify runs the random pre-sample then degree selection within the pool
func (s *TwoStage) Sparsify(g *graph.Graph, rng *rand.Rand) (*graph.Graph, error) {
	numEdges := g.NumEdges()
	if numEdges == 0 {
		return g.WithEdges(nil), nil
	}
	if err := requireRNG(rng, s.Kind()); err != nil {
		return nil, err
	}

	plan := s.Plan(numEdges)
	pool := g.SelectEdges(samplePositions(numEdges, plan.Intermediate, rng))

	scores := degreeScores(pool.NumNodes, pool.Edges)
	return pool.SelectEdges(topK(scores, plan.Keep)), nil
}
