package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/graph-sparsification-service/pkg/datasets"
	"github.com/gilchrisn/graph-sparsification-service/pkg/optimize"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

var validate = validator.New()

// DatasetCatalog lists the datasets a loader can serve
type DatasetCatalog interface {
	Catalog(root string) []datasets.Info
}

// Handlers contains HTTP request handlers
type Handlers struct {
	runner      optimize.Runner
	catalog     DatasetCatalog
	jobs        *JobService
	datasetRoot string
}

// NewHandlers creates new API handlers
func NewHandlers(runner optimize.Runner, catalog DatasetCatalog, jobs *JobService, datasetRoot string) *Handlers {
	return &Handlers{
		runner:      runner,
		catalog:     catalog,
		jobs:        jobs,
		datasetRoot: datasetRoot,
	}
}

// HealthCheck reports liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Service is healthy", map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// ListSparsifiers returns the registered strategies with their UI metadata
func (h *Handlers) ListSparsifiers(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Sparsifiers retrieved successfully", sparsify.Entries())
}

// ListDatasets returns built-in and on-disk datasets
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Datasets retrieved successfully", h.catalog.Catalog(h.datasetRoot))
}

// RunExperiment runs one experiment synchronously
func (h *Handlers) RunExperiment(w http.ResponseWriter, r *http.Request) {
	req := NewRunRequest()
	if !decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := req.Settings(h.datasetRoot, req.Sparsity)
	if err != nil {
		WriteDomainError(w, "Invalid request parameters", err)
		return
	}

	metrics, err := h.runner.Run(r.Context(), settings)
	if err != nil {
		log.Error().Err(err).Str("dataset", req.Dataset).Str("sparsifier", req.Sparsifier).Msg("Experiment failed")
		WriteDomainError(w, "Experiment failed", err)
		return
	}

	WriteSuccessResponse(w, "Experiment completed", metrics)
}

// OptimizeSparsity runs a keep-ratio sweep synchronously
func (h *Handlers) OptimizeSparsity(w http.ResponseWriter, r *http.Request) {
	req := NewOptimizeRequest()
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.optimize(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("dataset", req.Dataset).Msg("Optimization failed")
		WriteDomainError(w, "Optimization failed", err)
		return
	}

	WriteSuccessResponse(w, "Optimization completed", result)
}

// SubmitOptimizeJob starts a keep-ratio sweep in the background
func (h *Handlers) SubmitOptimizeJob(w http.ResponseWriter, r *http.Request) {
	req := NewOptimizeRequest()
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job := h.jobs.Submit("optimize", req, func(ctx context.Context) (interface{}, error) {
		return h.optimize(ctx, req)
	})

	WriteSuccessResponseWithStatus(w, http.StatusAccepted, "Optimization job submitted", job)
}

// GetJob returns the state and, when finished, the result of a job
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.jobs.Get(jobID)
	if err != nil {
		WriteDomainError(w, "Job not found", err)
		return
	}

	WriteSuccessResponse(w, "Job retrieved successfully", job)
}

// CancelJob cancels a queued or running job
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.jobs.Cancel(jobID)
	if err != nil {
		WriteDomainError(w, "Job not found", err)
		return
	}

	WriteSuccessResponse(w, "Job cancelled", job)
}

func (h *Handlers) optimize(ctx context.Context, req OptimizeRequest) (*optimize.Result, error) {
	opt := optimize.New(h.runner, optimize.WithWorkers(req.Workers), optimize.WithLogger(log.Logger))
	// the sweep overwrites the keep ratio of every candidate
	base, err := req.Settings(h.datasetRoot, 1.0)
	if err != nil {
		return nil, err
	}
	return opt.Optimize(ctx, base, req.SparsityValues, req.MaxAccuracyDrop, req.TargetSpeedup)
}

// decodeAndValidate overlays the JSON body on dst and validates it. An empty
// body keeps the defaults already in dst.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		WriteValidationErrorResponse(w, "Invalid request parameters", err)
		return false
	}
	return true
}
