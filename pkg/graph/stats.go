package graph

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the structure of a graph
type Stats struct {
	NumNodes      int     `json:"num_nodes" yaml:"num_nodes"`
	NumEdges      int     `json:"num_edges" yaml:"num_edges"`
	FeatureDim    int     `json:"feature_dim" yaml:"feature_dim"`
	NumClasses    int     `json:"num_classes" yaml:"num_classes"`
	MeanOutDegree float64 `json:"mean_out_degree" yaml:"mean_out_degree"`
	StdOutDegree  float64 `json:"std_out_degree" yaml:"std_out_degree"`
	MaxOutDegree  int     `json:"max_out_degree" yaml:"max_out_degree"`
	IsolatedNodes int     `json:"isolated_nodes" yaml:"isolated_nodes"`
	Components    int     `json:"components" yaml:"components"`
	SelfLoops     int     `json:"self_loops" yaml:"self_loops"`
	TrainNodes    int     `json:"train_nodes" yaml:"train_nodes"`
	ValNodes      int     `json:"val_nodes" yaml:"val_nodes"`
	TestNodes     int     `json:"test_nodes" yaml:"test_nodes"`
}

// ComputeStats computes degree statistics and weakly connected components
func ComputeStats(g *Graph) Stats {
	s := Stats{
		NumNodes:   g.NumNodes,
		NumEdges:   len(g.Edges),
		FeatureDim: g.FeatureDim(),
		NumClasses: g.NumClasses(),
		TrainNodes: MaskCount(g.TrainMask),
		ValNodes:   MaskCount(g.ValMask),
		TestNodes:  MaskCount(g.TestMask),
	}
	if g.NumNodes == 0 {
		return s
	}

	deg := g.OutDegrees()
	degF := make([]float64, len(deg))
	for i, d := range deg {
		degF[i] = float64(d)
		if d > s.MaxOutDegree {
			s.MaxOutDegree = d
		}
	}
	if len(degF) > 1 {
		s.MeanOutDegree, s.StdOutDegree = stat.MeanStdDev(degF, nil)
	} else {
		s.MeanOutDegree = degF[0]
	}

	// Undirected view for component counting; self loops are not representable
	// in a simple graph and do not affect connectivity.
	ug := simple.NewUndirectedGraph()
	for i := 0; i < g.NumNodes; i++ {
		ug.AddNode(simple.Node(int64(i)))
	}
	for _, e := range g.Edges {
		if e.Src == e.Dst {
			s.SelfLoops++
			continue
		}
		ug.SetEdge(ug.NewEdge(simple.Node(int64(e.Src)), simple.Node(int64(e.Dst))))
	}
	s.Components = len(topo.ConnectedComponents(ug))

	for i := 0; i < g.NumNodes; i++ {
		if ug.From(int64(i)).Len() == 0 {
			s.IsolatedNodes++
		}
	}

	return s
}

// ValidateDisjointMasks reports the first node that belongs to more than one role
func (g *Graph) ValidateDisjointMasks() error {
	for i := 0; i < g.NumNodes; i++ {
		roles := 0
		if i < len(g.TrainMask) && g.TrainMask[i] {
			roles++
		}
		if i < len(g.ValMask) && g.ValMask[i] {
			roles++
		}
		if i < len(g.TestMask) && g.TestMask[i] {
			roles++
		}
		if roles > 1 {
			return fmt.Errorf("node %d belongs to %d role masks", i, roles)
		}
	}
	return nil
}
