// Package optimize sweeps keep ratios for one experiment configuration and
// recommends the fastest ratio that stays within an accuracy budget.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
)

const (
	// MinKeepRatio and MaxKeepRatio bound every candidate
	MinKeepRatio = 0.1
	MaxKeepRatio = 1.0

	baselineTolerance = 1e-6
)

// ErrBaselineMissing is returned when no run at keep ratio 1.0 came back
var ErrBaselineMissing = errors.New("baseline run (keep ratio 1.0) missing")

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sparsify_optimize_sweeps_total",
		Help: "Optimization sweeps by outcome",
	}, []string{"result"})

	recommendedRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sparsify_optimize_recommended_keep_ratio",
		Help: "Keep ratio recommended by the last successful sweep, 0 when none qualified",
	})
)

// Runner executes a single experiment
type Runner interface {
	Run(ctx context.Context, s experiment.Settings) (*experiment.Metrics, error)
}

// Constraints are the acceptance thresholds of a sweep
type Constraints struct {
	MaxAccuracyDrop float64 `json:"max_accuracy_drop" yaml:"max_accuracy_drop"`
	TargetSpeedup   float64 `json:"target_speedup" yaml:"target_speedup"`
}

// Result bundles every run of a sweep. Runs are ordered by ascending keep
// ratio and carry accuracy_drop and speedup relative to Baseline.
type Result struct {
	Baseline    experiment.Metrics   `json:"baseline" yaml:"baseline"`
	Runs        []experiment.Metrics `json:"runs" yaml:"runs"`
	Constraints Constraints          `json:"constraints" yaml:"constraints"`
	Recommended *experiment.Metrics  `json:"recommended" yaml:"recommended"`
}

// Optimizer runs sweeps over keep ratios
type Optimizer struct {
	runner  Runner
	workers int
	logger  zerolog.Logger
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithWorkers sets how many candidates run concurrently; values below 1 mean sequential
func WithWorkers(n int) Option {
	return func(o *Optimizer) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Optimizer) { o.logger = logger }
}

// New creates an optimizer around runner
func New(runner Runner, opts ...Option) *Optimizer {
	o := &Optimizer{runner: runner, workers: 1, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Candidates clamps values to [MinKeepRatio, MaxKeepRatio], always adds 1.0,
// removes duplicates and sorts ascending
func Candidates(values []float64) []float64 {
	set := map[float64]struct{}{MaxKeepRatio: {}}
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		set[math.Min(MaxKeepRatio, math.Max(MinKeepRatio, v))] = struct{}{}
	}

	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Optimize runs base once per candidate keep ratio, annotates every run
// against the full-graph baseline and picks the run below keep ratio 1.0 with the
// largest speedup among those meeting both constraints. Any run failure
// aborts the sweep.
func (o *Optimizer) Optimize(ctx context.Context, base experiment.Settings, values []float64, maxDrop, targetSpeedup float64) (res *Result, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		sweepsTotal.WithLabelValues(outcome).Inc()
	}()

	candidates := Candidates(values)
	o.logger.Info().
		Str("dataset", base.Dataset.Name).
		Str("sparsifier", base.Sparsifier.Name).
		Floats64("candidates", candidates).
		Int("workers", o.workers).
		Msg("Starting sparsity sweep")

	runs, err := o.runAll(ctx, base, candidates)
	if err != nil {
		return nil, err
	}

	// runs ascend by keep ratio, so the last near-full run is the dense one
	baselineIdx := -1
	for i, m := range runs {
		if isFull(m.SparsityConfig) {
			baselineIdx = i
		}
	}
	if baselineIdx < 0 {
		return nil, ErrBaselineMissing
	}
	baseline := runs[baselineIdx]

	res = &Result{
		Runs:        make([]experiment.Metrics, len(runs)),
		Constraints: Constraints{MaxAccuracyDrop: maxDrop, TargetSpeedup: targetSpeedup},
	}
	for i, m := range runs {
		if isFull(m.SparsityConfig) {
			res.Runs[i] = m.Annotate(0, 0)
			continue
		}
		res.Runs[i] = m.Annotate(baseline.Accuracy-m.Accuracy, speedup(baseline.TrainTimeSec, m.TrainTimeSec))
	}
	res.Baseline = res.Runs[baselineIdx]

	for i := range res.Runs {
		m := &res.Runs[i]
		if isFull(m.SparsityConfig) {
			continue
		}
		if *m.AccuracyDrop > maxDrop || *m.Speedup < targetSpeedup {
			continue
		}
		if res.Recommended == nil || *m.Speedup > *res.Recommended.Speedup {
			rec := *m
			res.Recommended = &rec
		}
	}

	if res.Recommended != nil {
		recommendedRatio.Set(res.Recommended.SparsityConfig)
		o.logger.Info().
			Float64("keep_ratio", res.Recommended.SparsityConfig).
			Float64("speedup", *res.Recommended.Speedup).
			Float64("accuracy_drop", *res.Recommended.AccuracyDrop).
			Msg("Sweep recommends keep ratio")
	} else {
		recommendedRatio.Set(0)
		o.logger.Info().Msg("No keep ratio satisfies the constraints")
	}
	return res, nil
}

// isFull reports whether a keep ratio counts as the unsparsified graph
func isFull(keep float64) bool {
	return math.Abs(keep-MaxKeepRatio) < baselineTolerance
}

// speedup is the fractional train-time reduction; a zero baseline time gives 0
func speedup(baseTime, t float64) float64 {
	if baseTime <= 0 {
		return 0
	}
	return 1 - t/baseTime
}

func (o *Optimizer) runAll(ctx context.Context, base experiment.Settings, candidates []float64) ([]experiment.Metrics, error) {
	runs := make([]experiment.Metrics, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, keep := range candidates {
		i, keep := i, keep
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := base
			s.Sparsifier.Sparsity = keep
			m, err := o.runner.Run(ctx, s)
			if err != nil {
				return fmt.Errorf("run at keep ratio %.2f: %w", keep, err)
			}
			runs[i] = *m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}
