// Package sparsify implements edge sparsification strategies that shrink the
// edge list of a graph before GNN training.
//
// Every strategy is constructed with a keep ratio in (0, 1] and maps a graph
// to a new graph whose edges are a subsequence of the input edges. The input
// graph is never modified and the output never shares its edge slice.
// Strategies that sample take an explicit *rand.Rand so that concurrent runs
// stay reproducible.
package sparsify

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

var (
	// ErrInvalidKeepRatio is returned when a keep ratio is outside (0, 1]
	ErrInvalidKeepRatio = errors.New("keep ratio must be in (0, 1]")

	// ErrUnknownSparsifier is returned by the registry for unregistered names
	ErrUnknownSparsifier = errors.New("unknown sparsifier")

	// ErrFeaturesRequired is returned by feature-based strategies on graphs without features
	ErrFeaturesRequired = errors.New("sparsifier requires node features")
)

// Kind tags a sparsification strategy
type Kind string

const (
	KindRandom     Kind = "random"
	KindDegree     Kind = "degree"
	KindSimilarity Kind = "similarity"
	KindTwoStage   Kind = "two_stage"
)

// Sparsifier reduces the edge set of a graph
type Sparsifier interface {
	// Kind returns the strategy tag
	Kind() Kind

	// KeepRatio returns the configured fraction of edges to keep
	KeepRatio() float64

	// Sparsify returns a new graph with a subset of g's edges. rng may be nil
	// for deterministic strategies.
	Sparsify(g *graph.Graph, rng *rand.Rand) (*graph.Graph, error)
}

// Params carries strategy-specific numeric parameters, keyed by name
type Params map[string]float64

// base holds the validated keep ratio shared by all strategies
type base struct {
	keepRatio float64
}

func newBase(keepRatio float64) (base, error) {
	if !(keepRatio > 0 && keepRatio <= 1.0) {
		return base{}, fmt.Errorf("%w: got %v", ErrInvalidKeepRatio, keepRatio)
	}
	return base{keepRatio: keepRatio}, nil
}

func (b base) KeepRatio() float64 { return b.keepRatio }

// floorCount returns floor(numEdges * ratio)
func floorCount(numEdges int, ratio float64) int {
	return int(float64(numEdges) * ratio)
}

// atLeastOne returns min(numEdges, max(1, floor(numEdges * ratio)))
func atLeastOne(numEdges int, ratio float64) int {
	k := floorCount(numEdges, ratio)
	if k < 1 {
		k = 1
	}
	if k > numEdges {
		k = numEdges
	}
	return k
}

// topK returns the positions of the k highest scores. Equal scores keep
// the lower position first. The result is sorted ascending so that the
// selection preserves the original edge order.
func topK(scores []float64, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	kept := order[:k]
	sort.Ints(kept)
	return kept
}

// samplePositions draws k distinct positions out of n uniformly at random,
// returned in ascending order.
func samplePositions(n, k int, rng *rand.Rand) []int {
	perm := rng.Perm(n)
	kept := perm[:k]
	sort.Ints(kept)
	return kept
}

// degreeScores scores each edge by the out-degrees of its endpoints, where
// degrees are counted over the given edge list only.
func degreeScores(numNodes int, edges []graph.Edge) []float64 {
	deg := graph.OutDegrees(numNodes, edges)
	scores := make([]float64, len(edges))
	for i, e := range edges {
		scores[i] = float64(deg[e.Src] + deg[e.Dst])
	}
	return scores
}

func requireRNG(rng *rand.Rand, kind Kind) error {
	if rng == nil {
		return fmt.Errorf("%s sparsifier requires a random source", kind)
	}
	return nil
}
