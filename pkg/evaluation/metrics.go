// Package evaluation scores node-classification predictions on the test role mask.
package evaluation

import (
	"fmt"
	"sort"
)

// Scores holds the test-set classification metrics
type Scores struct {
	Accuracy float64 `json:"accuracy"`
	MacroF1  float64 `json:"macro_f1"`
	MicroF1  float64 `json:"micro_f1"`
	Support  int     `json:"support"`
}

// Compute scores predictions against labels over the nodes selected by mask.
// Macro-F1 averages per-class F1 over every class that appears in either the
// true or predicted labels of the masked nodes. An empty mask scores zero.
func Compute(predictions, labels []int, mask []bool) (Scores, error) {
	if len(predictions) != len(labels) || len(labels) != len(mask) {
		return Scores{}, fmt.Errorf("length mismatch: predictions=%d labels=%d mask=%d",
			len(predictions), len(labels), len(mask))
	}

	type counts struct{ tp, fp, fn int }
	perClass := make(map[int]*counts)
	get := func(c int) *counts {
		if perClass[c] == nil {
			perClass[c] = &counts{}
		}
		return perClass[c]
	}

	total, correct := 0, 0
	for i, inTest := range mask {
		if !inTest {
			continue
		}
		total++
		pred, truth := predictions[i], labels[i]
		if pred == truth {
			correct++
			get(truth).tp++
			continue
		}
		get(pred).fp++
		get(truth).fn++
	}

	if total == 0 {
		return Scores{}, nil
	}

	classes := make([]int, 0, len(perClass))
	for c := range perClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	sumF1 := 0.0
	sumTP, sumFP, sumFN := 0, 0, 0
	for _, c := range classes {
		k := perClass[c]
		sumF1 += f1(k.tp, k.fp, k.fn)
		sumTP += k.tp
		sumFP += k.fp
		sumFN += k.fn
	}

	return Scores{
		Accuracy: float64(correct) / float64(total),
		MacroF1:  sumF1 / float64(len(classes)),
		MicroF1:  f1(sumTP, sumFP, sumFN),
		Support:  total,
	}, nil
}

// f1 is 2tp / (2tp + fp + fn), zero when undefined
func f1(tp, fp, fn int) float64 {
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(denom)
}
