package experiment

// Metrics is the record produced by one experiment run. It is never
// modified after Run returns; annotated copies are made with Annotate.
type Metrics struct {
	RunID          string  `json:"run_id" yaml:"run_id"`
	Dataset        string  `json:"dataset" yaml:"dataset"`
	Sparsifier     string  `json:"sparsifier" yaml:"sparsifier"`
	SparsityConfig float64 `json:"sparsity_config" yaml:"sparsity_config"`
	Seed           int64   `json:"seed" yaml:"seed"`

	NumEdgesBefore int     `json:"num_edges_before" yaml:"num_edges_before"`
	NumEdgesAfter  int     `json:"num_edges_after" yaml:"num_edges_after"`
	SparsityRatio  float64 `json:"sparsity_ratio" yaml:"sparsity_ratio"`

	Epochs       int     `json:"epochs" yaml:"epochs"`
	FinalLoss    float64 `json:"final_loss" yaml:"final_loss"`
	TrainTimeSec float64 `json:"train_time_sec" yaml:"train_time_sec"`

	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
	MacroF1  float64 `json:"macro_f1" yaml:"macro_f1"`
	MicroF1  float64 `json:"micro_f1" yaml:"micro_f1"`

	// Set by the optimizer on its own copy
	AccuracyDrop *float64 `json:"accuracy_drop,omitempty" yaml:"accuracy_drop,omitempty"`
	Speedup      *float64 `json:"speedup,omitempty" yaml:"speedup,omitempty"`
}

// Annotate returns a copy of m carrying the given accuracy drop and speedup
func (m Metrics) Annotate(accuracyDrop, speedup float64) Metrics {
	m.AccuracyDrop = &accuracyDrop
	m.Speedup = &speedup
	return m
}

// EdgeRatio returns after/before, 1.0 for an edgeless graph
func EdgeRatio(before, after int) float64 {
	if before == 0 {
		return 1.0
	}
	return float64(after) / float64(before)
}
