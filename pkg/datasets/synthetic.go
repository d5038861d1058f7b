package datasets

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// SBMConfig parameterises a stochastic block model with class-correlated features
type SBMConfig struct {
	NumNodes     int
	NumClasses   int
	FeatureDim   int
	PIn          float64 // edge probability within a class
	POut         float64 // edge probability across classes
	FeatureNoise float64 // weight of uniform noise added to the class prototype
	Seed         int64
}

// syntheticPresets are generated on demand by FileLoader
var syntheticPresets = map[string]SBMConfig{
	"synthetic": {
		NumNodes: 1000, NumClasses: 5, FeatureDim: 64,
		PIn: 0.03, POut: 0.002, FeatureNoise: 1.5,
	},
	"synthetic-small": {
		NumNodes: 150, NumClasses: 3, FeatureDim: 16,
		PIn: 0.12, POut: 0.01, FeatureNoise: 1.0,
	},
	"sbm": {
		NumNodes: 2000, NumClasses: 7, FeatureDim: 128,
		PIn: 0.01, POut: 0.0008, FeatureNoise: 2.0,
	},
}

// GenerateSBM builds a symmetric (both directions stored) SBM graph with
// non-negative, row-normalised features and a default split
func GenerateSBM(cfg SBMConfig) (*graph.Graph, error) {
	if cfg.NumNodes <= 0 || cfg.NumClasses <= 0 || cfg.FeatureDim <= 0 {
		return nil, fmt.Errorf("invalid SBM shape: nodes=%d classes=%d dim=%d",
			cfg.NumNodes, cfg.NumClasses, cfg.FeatureDim)
	}
	if cfg.PIn < 0 || cfg.PIn > 1 || cfg.POut < 0 || cfg.POut > 1 {
		return nil, fmt.Errorf("SBM probabilities must be in [0, 1]: pin=%v pout=%v", cfg.PIn, cfg.POut)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	g := graph.NewGraph(cfg.NumNodes)
	for i := range g.Labels {
		g.Labels[i] = i % cfg.NumClasses
	}
	rng.Shuffle(len(g.Labels), func(i, j int) { g.Labels[i], g.Labels[j] = g.Labels[j], g.Labels[i] })

	for i := 0; i < cfg.NumNodes; i++ {
		for j := i + 1; j < cfg.NumNodes; j++ {
			p := cfg.POut
			if g.Labels[i] == g.Labels[j] {
				p = cfg.PIn
			}
			if rng.Float64() < p {
				g.Edges = append(g.Edges, graph.Edge{Src: i, Dst: j}, graph.Edge{Src: j, Dst: i})
			}
		}
	}

	prototypes := mat.NewDense(cfg.NumClasses, cfg.FeatureDim, nil)
	prototypes.Apply(func(_, _ int, _ float64) float64 { return rng.Float64() }, prototypes)

	features := mat.NewDense(cfg.NumNodes, cfg.FeatureDim, nil)
	for i := 0; i < cfg.NumNodes; i++ {
		row := features.RawRowView(i)
		proto := prototypes.RawRowView(g.Labels[i])
		for j := range row {
			row[j] = proto[j] + cfg.FeatureNoise*rng.Float64()
		}
	}
	NormalizeRows(features)
	g.Features = features

	ApplyDefaultSplit(g, rng)
	return g, nil
}
