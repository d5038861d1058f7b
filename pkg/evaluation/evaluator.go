package evaluation

import (
	"fmt"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// Predictor produces one class id per node of a graph
type Predictor interface {
	Predict(g *graph.Graph) ([]int, error)
}

// TestSetEvaluator scores a predictor against the graph's test role mask
type TestSetEvaluator struct{}

// Evaluate runs the predictor on g and scores it on g.TestMask
func (TestSetEvaluator) Evaluate(p Predictor, g *graph.Graph) (Scores, error) {
	preds, err := p.Predict(g)
	if err != nil {
		return Scores{}, fmt.Errorf("prediction failed: %w", err)
	}
	return Compute(preds, g.Labels, g.TestMask)
}
