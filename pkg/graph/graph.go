package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Edge is a directed (source, target) pair of node indices
type Edge struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

// Graph is a node-classification graph: an ordered edge list plus optional
// per-node features, integer labels and train/val/test role masks.
//
// A Graph is immutable by convention. Operations that change the edge set
// return a new Graph with its own edge slice; features, labels and masks
// are shared read-only between a graph and the graphs derived from it.
type Graph struct {
	NumNodes  int        `json:"num_nodes"`
	Edges     []Edge     `json:"edges"`
	Features  *mat.Dense `json:"-"` // NumNodes x D, nil when the dataset has no features
	Labels    []int      `json:"labels"`
	TrainMask []bool     `json:"train_mask"`
	ValMask   []bool     `json:"val_mask"`
	TestMask  []bool     `json:"test_mask"`
}

// NewGraph creates a graph with n nodes, no edges and empty role masks
func NewGraph(numNodes int) *Graph {
	return &Graph{
		NumNodes:  numNodes,
		Edges:     make([]Edge, 0),
		Labels:    make([]int, numNodes),
		TrainMask: make([]bool, numNodes),
		ValMask:   make([]bool, numNodes),
		TestMask:  make([]bool, numNodes),
	}
}

// AddEdge appends a directed edge u -> v
func (g *Graph) AddEdge(u, v int) error {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return fmt.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, g.NumNodes)
	}
	g.Edges = append(g.Edges, Edge{Src: u, Dst: v})
	return nil
}

// NumEdges returns the length of the edge list
func (g *Graph) NumEdges() int {
	return len(g.Edges)
}

// FeatureDim returns the feature dimensionality, 0 when there are no features
func (g *Graph) FeatureDim() int {
	if g.Features == nil {
		return 0
	}
	_, c := g.Features.Dims()
	return c
}

// NumClasses returns max label + 1 as observed in the data
func (g *Graph) NumClasses() int {
	maxLabel := -1
	for _, l := range g.Labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	return maxLabel + 1
}

// OutDegrees counts how often every node appears as the first endpoint of an edge
func (g *Graph) OutDegrees() []int {
	return OutDegrees(g.NumNodes, g.Edges)
}

// OutDegrees counts source appearances of each node in edges
func OutDegrees(numNodes int, edges []Edge) []int {
	deg := make([]int, numNodes)
	for _, e := range edges {
		deg[e.Src]++
	}
	return deg
}

// WithEdges returns a new graph sharing everything with g except the edge
// list, which is copied from edges so the result never aliases the caller's
// storage.
func (g *Graph) WithEdges(edges []Edge) *Graph {
	out := *g
	out.Edges = make([]Edge, len(edges))
	copy(out.Edges, edges)
	return &out
}

// SelectEdges returns a new graph keeping the edges at the given indices, in
// the order given.
func (g *Graph) SelectEdges(indices []int) *Graph {
	out := *g
	out.Edges = make([]Edge, len(indices))
	for i, idx := range indices {
		out.Edges[i] = g.Edges[idx]
	}
	return &out
}

// Validate checks graph consistency
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("graph must have positive number of nodes")
	}

	for i, e := range g.Edges {
		if e.Src < 0 || e.Src >= g.NumNodes || e.Dst < 0 || e.Dst >= g.NumNodes {
			return fmt.Errorf("edge %d (%d -> %d) has endpoint outside [0, %d)", i, e.Src, e.Dst, g.NumNodes)
		}
	}

	if g.Features != nil {
		if r, _ := g.Features.Dims(); r != g.NumNodes {
			return fmt.Errorf("feature matrix has %d rows, expected %d", r, g.NumNodes)
		}
	}

	if len(g.Labels) != g.NumNodes {
		return fmt.Errorf("labels length %d does not match %d nodes", len(g.Labels), g.NumNodes)
	}
	for i, l := range g.Labels {
		if l < 0 {
			return fmt.Errorf("negative label %d for node %d", l, i)
		}
	}

	masks := map[string][]bool{"train": g.TrainMask, "val": g.ValMask, "test": g.TestMask}
	for name, m := range masks {
		if len(m) != g.NumNodes {
			return fmt.Errorf("%s mask length %d does not match %d nodes", name, len(m), g.NumNodes)
		}
	}

	return nil
}

// MaskCount returns the number of true entries in a role mask
func MaskCount(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}
