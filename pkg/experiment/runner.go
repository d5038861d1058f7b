// Package experiment runs one sparsification experiment: load a dataset,
// sparsify its edges, train a model and score it on the test mask.
package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-sparsification-service/pkg/datasets"
	"github.com/gilchrisn/graph-sparsification-service/pkg/evaluation"
	"github.com/gilchrisn/graph-sparsification-service/pkg/gcn"
	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
	"github.com/gilchrisn/graph-sparsification-service/pkg/training"
)

// Evaluator scores a trained model on a graph's test mask
type Evaluator interface {
	Evaluate(p evaluation.Predictor, g *graph.Graph) (evaluation.Scores, error)
}

// Runner executes experiments. It holds no per-run state and is safe for
// concurrent use when its collaborators are.
type Runner struct {
	loader    datasets.Loader
	trainer   training.Trainer
	evaluator Evaluator
	runLog    *RunLog
	logger    zerolog.Logger
}

// Option configures a Runner
type Option func(*Runner)

func WithLoader(l datasets.Loader) Option     { return func(r *Runner) { r.loader = l } }
func WithTrainer(t training.Trainer) Option   { return func(r *Runner) { r.trainer = t } }
func WithEvaluator(e Evaluator) Option        { return func(r *Runner) { r.evaluator = e } }
func WithRunLog(rl *RunLog) Option            { return func(r *Runner) { r.runLog = rl } }
func WithLogger(logger zerolog.Logger) Option { return func(r *Runner) { r.logger = logger } }

// NewRunner creates a runner backed by the file loader, the GCN trainer and
// the test-set evaluator unless overridden
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		evaluator: evaluation.TestSetEvaluator{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = datasets.NewFileLoader(r.logger)
	}
	if r.trainer == nil {
		r.trainer = gcn.NewTrainer(r.logger)
	}
	return r
}

// Prepared is a loaded and sparsified graph together with the run's random source
type Prepared struct {
	Original   *graph.Graph
	Sparsified *graph.Graph
	Sparsifier sparsify.Sparsifier
	RNG        *rand.Rand
}

// Prepare seeds the run, loads the dataset and applies the sparsifier
func (r *Runner) Prepare(ctx context.Context, s Settings) (*Prepared, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(s.Seed))

	g, err := r.loader.Load(ctx, s.Dataset.Name, s.Dataset.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	sp, err := sparsify.New(s.Sparsifier.Name, s.Sparsifier.Sparsity, s.SparsifierParams())
	if err != nil {
		return nil, fmt.Errorf("failed to build sparsifier: %w", err)
	}

	sparse, err := sp.Sparsify(g, rng)
	if err != nil {
		return nil, fmt.Errorf("sparsification failed: %w", err)
	}

	return &Prepared{Original: g, Sparsified: sparse, Sparsifier: sp, RNG: rng}, nil
}

// Run executes one experiment and returns its metrics record. Every
// failure is returned to the caller; no partial record is produced.
func (r *Runner) Run(ctx context.Context, s Settings) (m *Metrics, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		runsTotal.WithLabelValues(sparsifierLabel(s.Sparsifier.Name), result).Inc()
	}()

	r.logger.Info().
		Str("dataset", s.Dataset.Name).
		Str("sparsifier", s.Sparsifier.Name).
		Float64("sparsity", s.Sparsifier.Sparsity).
		Int64("seed", s.Seed).
		Msg("Starting experiment")

	prep, err := r.Prepare(ctx, s)
	if err != nil {
		return nil, err
	}
	g := prep.Sparsified

	before, after := prep.Original.NumEdges(), g.NumEdges()
	ratio := EdgeRatio(before, after)
	edgeKeepRatio.WithLabelValues(sparsifierLabel(s.Sparsifier.Name)).Observe(ratio)

	spec := training.Spec{
		InChannels:     g.FeatureDim(),
		HiddenChannels: s.Model.HiddenChannels,
		OutChannels:    g.NumClasses(),
		Dropout:        s.Model.Dropout,
	}
	model, err := r.trainer.NewModel(spec, prep.RNG)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	opts := training.Options{
		Epochs:      s.Training.Epochs,
		LR:          s.Training.LR,
		WeightDecay: s.Training.WeightDecay,
	}
	trainStart := time.Now()
	fit, err := model.Fit(ctx, g, opts)
	trainTime := time.Since(trainStart)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	trainDuration.WithLabelValues(sparsifierLabel(s.Sparsifier.Name)).Observe(trainTime.Seconds())

	scores, err := r.evaluator.Evaluate(model, g)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	m = &Metrics{
		RunID:          uuid.New().String(),
		Dataset:        s.Dataset.Name,
		Sparsifier:     s.Sparsifier.Name,
		SparsityConfig: s.Sparsifier.Sparsity,
		Seed:           s.Seed,
		NumEdgesBefore: before,
		NumEdgesAfter:  after,
		SparsityRatio:  ratio,
		Epochs:         fit.Epochs,
		FinalLoss:      fit.FinalLoss,
		TrainTimeSec:   trainTime.Seconds(),
		Accuracy:       scores.Accuracy,
		MacroF1:        scores.MacroF1,
		MicroF1:        scores.MicroF1,
	}

	if err := r.runLog.Record(s, *m); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to append run log")
	}

	r.logger.Info().
		Str("run_id", m.RunID).
		Int("edges_before", before).
		Int("edges_after", after).
		Float64("train_time_sec", m.TrainTimeSec).
		Float64("accuracy", m.Accuracy).
		Float64("macro_f1", m.MacroF1).
		Msg("Experiment completed")

	return m, nil
}
