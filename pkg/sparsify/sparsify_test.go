package sparsify

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// randomGraph builds a graph with distinct directed edges and random features
func randomGraph(t *testing.T, numNodes, numEdges int, seed int64) *graph.Graph {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	g := graph.NewGraph(numNodes)

	seen := make(map[graph.Edge]bool)
	for len(g.Edges) < numEdges {
		e := graph.Edge{Src: rng.Intn(numNodes), Dst: rng.Intn(numNodes)}
		if seen[e] {
			continue
		}
		seen[e] = true
		require.NoError(t, g.AddEdge(e.Src, e.Dst))
	}

	data := make([]float64, numNodes*4)
	for i := range data {
		data[i] = rng.Float64()
	}
	g.Features = mat.NewDense(numNodes, 4, data)
	return g
}

func edgeIndex(g *graph.Graph) map[graph.Edge]int {
	idx := make(map[graph.Edge]int, len(g.Edges))
	for i, e := range g.Edges {
		idx[e] = i
	}
	return idx
}

// assertSubsequence checks that every output edge exists in the input, each
// at most once, and in the input's relative order
func assertSubsequence(t *testing.T, in, out *graph.Graph) {
	t.Helper()
	idx := edgeIndex(in)
	last := -1
	for _, e := range out.Edges {
		pos, ok := idx[e]
		require.True(t, ok, "edge %v was not in the input", e)
		require.Greater(t, pos, last, "edge %v duplicated or out of order", e)
		last = pos
	}
}

func allStrategies(t *testing.T, ratio float64) []Sparsifier {
	t.Helper()
	out := make([]Sparsifier, 0, len(Names()))
	for _, name := range Names() {
		s, err := New(name, ratio, nil)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func expectedCount(kind Kind, numEdges int, ratio float64) int {
	switch kind {
	case KindRandom, KindDegree:
		return int(float64(numEdges) * ratio)
	default:
		k := int(float64(numEdges) * ratio)
		return int(math.Max(1, math.Min(float64(numEdges), float64(k))))
	}
}

func TestKeepRatioValidation(t *testing.T) {
	tests := []struct {
		ratio       float64
		expectError bool
	}{
		{0.0, true},
		{-0.5, true},
		{1.0000001, true},
		{math.NaN(), true},
		{1e-9, false},
		{0.5, false},
		{1.0, false},
	}

	for _, tt := range tests {
		for _, name := range Names() {
			t.Run(fmt.Sprintf("%s_%v", name, tt.ratio), func(t *testing.T) {
				_, err := New(name, tt.ratio, nil)
				if tt.expectError {
					assert.True(t, errors.Is(err, ErrInvalidKeepRatio))
				} else {
					assert.NoError(t, err)
				}
			})
		}
	}
}

func TestEdgeCountFormulas(t *testing.T) {
	ratios := []float64{0.05, 0.1, 0.3, 0.5, 0.7, 0.9, 1.0}
	sizes := []int{1, 2, 7, 50, 333}

	for _, numEdges := range sizes {
		g := randomGraph(t, 40, numEdges, int64(numEdges))
		for _, r := range ratios {
			for _, s := range allStrategies(t, r) {
				t.Run(fmt.Sprintf("%s_E%d_r%v", s.Kind(), numEdges, r), func(t *testing.T) {
					out, err := s.Sparsify(g, rand.New(rand.NewSource(7)))
					require.NoError(t, err)

					assert.Len(t, out.Edges, expectedCount(s.Kind(), numEdges, r))
					assertSubsequence(t, g, out)
				})
			}
		}
	}
}

func TestEmptyGraphIsNoOp(t *testing.T) {
	g := graph.NewGraph(5)
	for _, r := range []float64{0.1, 0.5, 1.0} {
		for _, s := range allStrategies(t, r) {
			out, err := s.Sparsify(g, rand.New(rand.NewSource(1)))
			require.NoError(t, err, s.Kind())
			assert.Equal(t, 0, out.NumEdges(), s.Kind())
			assert.Equal(t, g.NumNodes, out.NumNodes)
		}
	}
}

func TestInputGraphUnchanged(t *testing.T) {
	g := randomGraph(t, 30, 120, 3)
	before := make([]graph.Edge, len(g.Edges))
	copy(before, g.Edges)

	for _, s := range allStrategies(t, 0.4) {
		out, err := s.Sparsify(g, rand.New(rand.NewSource(11)))
		require.NoError(t, err)
		if out.NumEdges() > 0 {
			out.Edges[0] = graph.Edge{Src: 0, Dst: 0}
		}
		assert.Equal(t, before, g.Edges, "strategy %s touched the input", s.Kind())
	}
}

func TestFullRatioKeepsEverything(t *testing.T) {
	g := randomGraph(t, 25, 80, 5)
	for _, s := range allStrategies(t, 1.0) {
		out, err := s.Sparsify(g, rand.New(rand.NewSource(2)))
		require.NoError(t, err)
		assert.Equal(t, g.Edges, out.Edges, s.Kind())
	}
}

func TestDegreeTopK(t *testing.T) {
	g := randomGraph(t, 20, 150, 9)
	scores := DegreeScores(g)
	idx := edgeIndex(g)

	for _, r := range []float64{0.1, 0.25, 0.5, 0.75} {
		s, err := NewDegree(r)
		require.NoError(t, err)
		out, err := s.Sparsify(g, nil)
		require.NoError(t, err)

		kept := make(map[int]bool)
		minKept := math.Inf(1)
		for _, e := range out.Edges {
			kept[idx[e]] = true
			minKept = math.Min(minKept, scores[idx[e]])
		}
		for i := range g.Edges {
			if !kept[i] {
				assert.LessOrEqual(t, scores[i], minKept, "dropped edge %d outscores a kept edge", i)
			}
		}
	}
}

func TestDegreeTiesUseEdgeOrder(t *testing.T) {
	// Every edge scores 2: the first k edges must win.
	g := graph.NewGraph(8)
	for i := 0; i < 4; i++ {
		require.NoError(t, g.AddEdge(2*i, 2*i+1))
	}
	s, err := NewDegree(0.5)
	require.NoError(t, err)

	out, err := s.Sparsify(g, nil)
	require.NoError(t, err)
	assert.Equal(t, []graph.Edge{{Src: 0, Dst: 1}, {Src: 2, Dst: 3}}, out.Edges)
}

func TestSimilarityPrefersAlignedFeatures(t *testing.T) {
	g := graph.NewGraph(4)
	g.Features = mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 0,
	})
	require.NoError(t, g.AddEdge(0, 2)) // orthogonal
	require.NoError(t, g.AddEdge(0, 1)) // identical
	require.NoError(t, g.AddEdge(3, 1)) // zero vector

	s, err := NewSimilarity(0.3)
	require.NoError(t, err)
	out, err := s.Sparsify(g, nil)
	require.NoError(t, err)

	assert.Equal(t, []graph.Edge{{Src: 0, Dst: 1}}, out.Edges)

	scores, err := SimilarityScores(g)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(scores[2]), "zero-norm features must not produce NaN")
	assert.InDelta(t, 1.0, scores[1], 1e-6)
}

func TestSimilarityRequiresFeatures(t *testing.T) {
	g := graph.NewGraph(2)
	require.NoError(t, g.AddEdge(0, 1))
	s, err := NewSimilarity(0.5)
	require.NoError(t, err)

	_, err = s.Sparsify(g, nil)
	assert.ErrorIs(t, err, ErrFeaturesRequired)
}

func TestTwoStagePlanBounds(t *testing.T) {
	for _, factor := range []float64{0.2, 1.0, 1.5, 2.0, 10.0} {
		for _, r := range []float64{0.01, 0.1, 0.5, 0.9, 1.0} {
			for _, numEdges := range []int{1, 3, 10, 97, 1000} {
				s, err := NewTwoStage(r, factor)
				require.NoError(t, err)
				p := s.Plan(numEdges)

				assert.GreaterOrEqual(t, s.IntermediateFactor(), 1.0)
				assert.LessOrEqual(t, p.Intermediate, numEdges)
				assert.GreaterOrEqual(t, p.Intermediate, p.Target)
				assert.LessOrEqual(t, p.Keep, p.Intermediate)
				assert.Equal(t, expectedCount(KindTwoStage, numEdges, r), p.Keep)
			}
		}
	}
}

func TestTwoStageFactorOneIsPurePool(t *testing.T) {
	g := randomGraph(t, 30, 100, 21)
	s, err := NewTwoStage(0.3, 1.0)
	require.NoError(t, err)

	out, err := s.Sparsify(g, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	assert.Len(t, out.Edges, 30)
	assertSubsequence(t, g, out)
}

func TestTwoStageDefaultFactor(t *testing.T) {
	s, err := New(string(KindTwoStage), 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultIntermediateFactor, s.(*TwoStage).IntermediateFactor())

	s, err = New(string(KindTwoStage), 0.5, Params{ParamIntermediateFactor: 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.(*TwoStage).IntermediateFactor())
}

func TestRandomIsReproducible(t *testing.T) {
	g := randomGraph(t, 50, 400, 8)
	s, err := NewRandom(0.35)
	require.NoError(t, err)

	a, err := s.Sparsify(g, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := s.Sparsify(g, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	c, err := s.Sparsify(g, rand.New(rand.NewSource(43)))
	require.NoError(t, err)

	assert.Equal(t, a.Edges, b.Edges)
	assert.NotEqual(t, a.Edges, c.Edges)
}

func TestSamplingStrategiesNeedRandomSource(t *testing.T) {
	g := randomGraph(t, 5, 4, 1)
	for _, name := range []Kind{KindRandom, KindTwoStage} {
		s, err := New(string(name), 0.5, nil)
		require.NoError(t, err)
		_, err = s.Sparsify(g, nil)
		assert.Error(t, err, name)
	}
}

func TestRegistry(t *testing.T) {
	entries := Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"random", "degree", "similarity", "two_stage"}, Names())
	for _, e := range entries {
		assert.NotEmpty(t, e.Label)
		assert.NotEmpty(t, e.Description)
		ctor, err := Lookup(string(e.Name))
		require.NoError(t, err)
		s, err := ctor(0.5, nil)
		require.NoError(t, err)
		assert.Equal(t, e.Name, s.Kind())
	}

	_, err := Lookup("spectral")
	assert.ErrorIs(t, err, ErrUnknownSparsifier)
	assert.Contains(t, err.Error(), "random, degree, similarity, two_stage")
	_, err = New("spectral", 0.5, nil)
	assert.ErrorIs(t, err, ErrUnknownSparsifier)
}
