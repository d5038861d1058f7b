package gcn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// propagator applies the symmetric normalised adjacency with self loops,
// D^-1/2 (A + I) D^-1/2, where messages flow from source to target and D
// counts in-degree plus one. Its cost is linear in the number of edges.
type propagator struct {
	numNodes int
	edges    []graph.Edge
	norms    []float64 // per-edge 1/sqrt(d_src * d_dst)
	self     []float64 // per-node 1/d
}

func newPropagator(g *graph.Graph) *propagator {
	deg := make([]float64, g.NumNodes)
	for i := range deg {
		deg[i] = 1
	}
	for _, e := range g.Edges {
		deg[e.Dst]++
	}

	p := &propagator{
		numNodes: g.NumNodes,
		edges:    g.Edges,
		norms:    make([]float64, len(g.Edges)),
		self:     make([]float64, g.NumNodes),
	}
	for i, e := range g.Edges {
		p.norms[i] = 1 / math.Sqrt(deg[e.Src]*deg[e.Dst])
	}
	for i, d := range deg {
		p.self[i] = 1 / d
	}
	return p
}

// forward returns Â x
func (p *propagator) forward(x *mat.Dense) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(p.numNodes, c, nil)
	for i := 0; i < p.numNodes; i++ {
		floats.AddScaled(out.RawRowView(i), p.self[i], x.RawRowView(i))
	}
	for i, e := range p.edges {
		floats.AddScaled(out.RawRowView(e.Dst), p.norms[i], x.RawRowView(e.Src))
	}
	return out
}

// backward returns Âᵀ x, used to push gradients back through a propagation
func (p *propagator) backward(x *mat.Dense) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(p.numNodes, c, nil)
	for i := 0; i < p.numNodes; i++ {
		floats.AddScaled(out.RawRowView(i), p.self[i], x.RawRowView(i))
	}
	for i, e := range p.edges {
		floats.AddScaled(out.RawRowView(e.Src), p.norms[i], x.RawRowView(e.Dst))
	}
	return out
}
