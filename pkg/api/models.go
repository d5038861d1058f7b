package api

import (
	"time"

	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExperimentParams are the request fields shared by run and optimize
type ExperimentParams struct {
	Dataset            string  `json:"dataset" validate:"required"`
	Sparsifier         string  `json:"sparsifier" validate:"required"`
	IntermediateFactor *float64 `json:"intermediate_factor,omitempty"`
	Epochs             int     `json:"epochs" validate:"min=1,max=10000"`
	HiddenChannels     int     `json:"hidden_channels" validate:"min=1"`
	Dropout            float64 `json:"dropout" validate:"gte=0,lt=1"`
	LR                 float64 `json:"lr" validate:"gt=0"`
	WeightDecay        float64 `json:"weight_decay" validate:"gte=0"`
	Seed               int64   `json:"seed"`
}

// RunRequest runs one experiment
type RunRequest struct {
	ExperimentParams
	Sparsity float64 `json:"sparsity" validate:"gt=0,lte=1"`
}

// OptimizeRequest sweeps keep ratios
type OptimizeRequest struct {
	ExperimentParams
	SparsityValues  []float64 `json:"sparsity_values"`
	MaxAccuracyDrop float64   `json:"max_accuracy_drop"`
	TargetSpeedup   float64   `json:"target_speedup"`
	Workers         int       `json:"workers" validate:"min=1,max=16"`
}

func defaultParams(epochs int) ExperimentParams {
	return ExperimentParams{
		Dataset:        "Cora",
		Sparsifier:     "random",
		Epochs:         epochs,
		HiddenChannels: 16,
		Dropout:        0.5,
		LR:             0.01,
		WeightDecay:    5e-4,
		Seed:           42,
	}
}

// NewRunRequest returns a request holding the defaults of the run endpoint
func NewRunRequest() RunRequest {
	return RunRequest{ExperimentParams: defaultParams(200), Sparsity: 0.5}
}

// NewOptimizeRequest returns a request holding the defaults of the optimize endpoints
func NewOptimizeRequest() OptimizeRequest {
	return OptimizeRequest{
		ExperimentParams: defaultParams(100),
		SparsityValues:   []float64{1.0, 0.9, 0.7, 0.5, 0.3},
		MaxAccuracyDrop:  0.02,
		TargetSpeedup:    0.30,
		Workers:          1,
	}
}

// Settings layers the request over the experiment config defaults and
// returns validated runner settings rooted at datasetRoot
func (p ExperimentParams) Settings(datasetRoot string, sparsity float64) (experiment.Settings, error) {
	sparsifier := map[string]interface{}{
		"name":     p.Sparsifier,
		"sparsity": sparsity,
	}
	if p.IntermediateFactor != nil {
		sparsifier["intermediate_factor"] = *p.IntermediateFactor
	}

	cfg := experiment.NewConfig()
	err := cfg.MergeMap(map[string]interface{}{
		"seed": p.Seed,
		"dataset": map[string]interface{}{
			"name": p.Dataset,
			"root": datasetRoot,
		},
		"sparsifier": sparsifier,
		"model": map[string]interface{}{
			"hidden_channels": p.HiddenChannels,
			"dropout":         p.Dropout,
		},
		"training": map[string]interface{}{
			"epochs":       p.Epochs,
			"lr":           p.LR,
			"weight_decay": p.WeightDecay,
		},
	})
	if err != nil {
		return experiment.Settings{}, err
	}
	return cfg.Settings()
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a background task and, once finished, its result
type Job struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Parameters  interface{} `json:"parameters,omitempty"`
	Status      JobStatus   `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Done reports whether the job reached a terminal state
func (j Job) Done() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
