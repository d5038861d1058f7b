package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/graph-sparsification-service/pkg/api"
	"github.com/gilchrisn/graph-sparsification-service/pkg/datasets"
	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
	"github.com/gilchrisn/graph-sparsification-service/pkg/optimize"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

// experimentFlags override keys of the experiment config when set
type experimentFlags struct {
	configPath string
	output     string
	logLevel   string
	dataset    string
	root       string
	sparsifier string
	sparsity   float64
	epochs     int
	seed       int64
	runLog     string
}

// flag name -> config key
var flagKeys = map[string]string{
	"dataset":    "dataset.name",
	"root":       "dataset.root",
	"sparsifier": "sparsifier.name",
	"sparsity":   "sparsifier.sparsity",
	"epochs":     "training.epochs",
	"seed":       "seed",
	"run-log":    "analysis.output_file",
	"log-level":  "logging.level",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gnnsparsify",
		Short:         "Sparsify graph edges and measure the effect on GCN training",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newOptimizeCmd(),
		newStrategiesCmd(),
		newDatasetsCmd(),
		newServeCmd(),
	)
	return root
}

func addExperimentFlags(cmd *cobra.Command, f *experimentFlags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "experiment config file (yaml, json or toml)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "dataset name")
	cmd.Flags().StringVar(&f.root, "root", "", "dataset root directory")
	cmd.Flags().StringVar(&f.sparsifier, "sparsifier", "", "sparsification strategy")
	cmd.Flags().Float64Var(&f.sparsity, "sparsity", 0, "fraction of edges to keep, in (0, 1]")
	cmd.Flags().IntVar(&f.epochs, "epochs", 0, "training epochs")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&f.runLog, "run-log", "", "append every run to this JSONL file")
}

// loadConfig layers defaults, the config file and explicitly set flags
func loadConfig(cmd *cobra.Command, f *experimentFlags) (*experiment.Config, error) {
	cfg := experiment.NewConfig()
	if f.configPath != "" {
		if err := cfg.LoadFromFile(f.configPath); err != nil {
			return nil, err
		}
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		cfg.Set(key, flag.Value.String())
	}
	return cfg, nil
}

// newRunner builds a runner with a cached file loader and an optional run log
func newRunner(cfg *experiment.Config, logger zerolog.Logger) (*experiment.Runner, func(), error) {
	opts := []experiment.Option{
		experiment.WithLogger(logger),
		experiment.WithLoader(datasets.NewCachingLoader(datasets.NewFileLoader(logger))),
	}

	closeFn := func() {}
	if path := cfg.OutputFile(); path != "" {
		rl, err := experiment.OpenRunLog(path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, experiment.WithRunLog(rl))
		closeFn = func() { _ = rl.Close() }
	}
	return experiment.NewRunner(opts...), closeFn, nil
}

func newRunCmd() *cobra.Command {
	f := &experimentFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sparsify-train-evaluate experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}

			runner, closeFn, err := newRunner(cfg, cfg.CreateLogger())
			if err != nil {
				return err
			}
			defer closeFn()

			metrics, err := runner.Run(cmd.Context(), settings)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), f.output, metrics)
		},
	}
	addExperimentFlags(cmd, f)
	return cmd
}

func newOptimizeCmd() *cobra.Command {
	f := &experimentFlags{}
	var (
		values        []float64
		maxDrop       float64
		targetSpeedup float64
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Sweep keep ratios and recommend the fastest one within the accuracy budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}

			logger := cfg.CreateLogger()
			runner, closeFn, err := newRunner(cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			opt := optimize.New(runner, optimize.WithWorkers(workers), optimize.WithLogger(logger))
			result, err := opt.Optimize(cmd.Context(), settings, values, maxDrop, targetSpeedup)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), f.output, result)
		},
	}
	addExperimentFlags(cmd, f)
	cmd.Flags().Float64SliceVar(&values, "values", []float64{1.0, 0.9, 0.7, 0.5, 0.3}, "keep ratios to evaluate")
	cmd.Flags().Float64Var(&maxDrop, "max-drop", 0.02, "maximum accuracy drop relative to the full graph")
	cmd.Flags().Float64Var(&targetSpeedup, "target-speedup", 0.30, "minimum fractional train-time reduction")
	cmd.Flags().IntVar(&workers, "workers", 1, "candidates to run concurrently")
	return cmd
}

func newStrategiesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List the available sparsification strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), output, sparsify.Entries())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

// datasetReport is one row of the datasets command
type datasetReport struct {
	datasets.Info `yaml:",inline"`
	Stats         *graph.Stats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

func newDatasetsCmd() *cobra.Command {
	var (
		output    string
		root      string
		withStats bool
	)
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List built-in and on-disk datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := datasets.NewFileLoader(zerolog.Nop())

			var reports []datasetReport
			for _, info := range loader.Catalog(root) {
				report := datasetReport{Info: info}
				if withStats && info.Available {
					g, err := loader.Load(cmd.Context(), info.Name, root)
					if err != nil {
						return fmt.Errorf("dataset %s: %w", info.Name, err)
					}
					stats := graph.ComputeStats(g)
					report.Stats = &stats
				}
				reports = append(reports, report)
			}
			return writeOutput(cmd.OutOrStdout(), output, reports)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&root, "root", "data", "dataset root directory")
	cmd.Flags().BoolVar(&withStats, "stats", false, "load every available dataset and report graph statistics")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (configured through SPARSIFY_* environment variables)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := api.LoadServerConfig()
			if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(level)
			}

			log.Info().
				Str("address", cfg.Address).
				Str("dataset_root", cfg.DatasetRoot).
				Int("max_workers", cfg.Jobs.MaxWorkers).
				Dur("job_timeout", cfg.Jobs.JobTimeout).
				Msg("Configuration loaded")

			loader := datasets.NewFileLoader(log.Logger)
			opts := []experiment.Option{
				experiment.WithLogger(log.Logger),
				experiment.WithLoader(datasets.NewCachingLoader(loader)),
			}
			if cfg.RunLogFile != "" {
				rl, err := experiment.OpenRunLog(cfg.RunLogFile)
				if err != nil {
					return err
				}
				defer rl.Close()
				opts = append(opts, experiment.WithRunLog(rl))
			}

			jobs := api.NewJobService(cfg.Jobs)
			defer jobs.Close()

			handlers := api.NewHandlers(experiment.NewRunner(opts...), loader, jobs, cfg.DatasetRoot)
			server := api.NewServer(cfg, handlers)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("address", cfg.Address).Msg("HTTP server starting")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				log.Info().Msg("Shutdown signal received")
			case err := <-errCh:
				return fmt.Errorf("failed to start server: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Info().Msg("Server shutdown complete")
			return nil
		},
	}
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
