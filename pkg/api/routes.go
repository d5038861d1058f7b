package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *mux.Router, handlers *Handlers) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/sparsifiers", handlers.ListSparsifiers).Methods("GET")
	api.HandleFunc("/datasets", handlers.ListDatasets).Methods("GET")

	// Experiment endpoints
	api.HandleFunc("/run", handlers.RunExperiment).Methods("POST")
	api.HandleFunc("/optimize", handlers.OptimizeSparsity).Methods("POST")

	// Job management endpoints
	jobs := api.PathPrefix("/jobs").Subrouter()
	jobs.HandleFunc("", handlers.SubmitOptimizeJob).Methods("POST")
	jobs.HandleFunc("/{jobId}", handlers.GetJob).Methods("GET")
	jobs.HandleFunc("/{jobId}/cancel", handlers.CancelJob).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// NewRouter builds the full handler: routes, logging, panic recovery and CORS
func NewRouter(handlers *Handlers) http.Handler {
	router := mux.NewRouter()
	SetupRoutes(router, handlers)

	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)

	return CORS(router)
}
