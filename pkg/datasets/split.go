package datasets

import (
	"math/rand"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

const (
	trainPerClass = 20
	maxValNodes   = 500
	maxTestNodes  = 1000
)

// ApplyDefaultSplit assigns a Planetoid-style split: up to 20 training nodes
// per class, then up to 500 validation and 1000 test nodes from the rest.
// Small graphs get a third of the remainder for validation and the rest for
// test. Existing masks are cleared.
func ApplyDefaultSplit(g *graph.Graph, rng *rand.Rand) {
	for i := 0; i < g.NumNodes; i++ {
		g.TrainMask[i], g.ValMask[i], g.TestMask[i] = false, false, false
	}

	order := rng.Perm(g.NumNodes)
	perClass := make(map[int]int)
	rest := make([]int, 0, g.NumNodes)
	for _, node := range order {
		label := g.Labels[node]
		if perClass[label] < trainPerClass {
			perClass[label]++
			g.TrainMask[node] = true
			continue
		}
		rest = append(rest, node)
	}

	numVal := len(rest) / 3
	if numVal > maxValNodes {
		numVal = maxValNodes
	}
	numTest := len(rest) - numVal
	if numTest > maxTestNodes {
		numTest = maxTestNodes
	}

	for _, node := range rest[:numVal] {
		g.ValMask[node] = true
	}
	for _, node := range rest[numVal : numVal+numTest] {
		g.TestMask[node] = true
	}
}
