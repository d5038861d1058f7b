package experiment

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("invalid experiment configuration")

var validate = validator.New()

// Config manages experiment configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	v.SetDefault("seed", 42)

	v.SetDefault("dataset.name", "Cora")
	v.SetDefault("dataset.root", "data")

	v.SetDefault("sparsifier.name", string(sparsify.KindRandom))
	v.SetDefault("sparsifier.sparsity", 0.5)

	v.SetDefault("model.hidden_channels", 16)
	v.SetDefault("model.dropout", 0.5)

	v.SetDefault("training.epochs", 200)
	v.SetDefault("training.lr", 0.01)
	v.SetDefault("training.weight_decay", 5e-4)

	v.SetDefault("logging.level", "info")

	v.SetDefault("analysis.output_file", "")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file (YAML, JSON or TOML by extension)
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// MergeMap overlays a nested key/value document, e.g. a decoded request body
func (c *Config) MergeMap(values map[string]interface{}) error {
	if err := c.v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Getters
func (c *Config) Seed() int64                 { return c.v.GetInt64("seed") }
func (c *Config) DatasetName() string         { return c.v.GetString("dataset.name") }
func (c *Config) DatasetRoot() string         { return c.v.GetString("dataset.root") }
func (c *Config) SparsifierName() string      { return c.v.GetString("sparsifier.name") }
func (c *Config) Sparsity() float64           { return c.v.GetFloat64("sparsifier.sparsity") }
func (c *Config) IntermediateFactor() float64 { return c.v.GetFloat64("sparsifier.intermediate_factor") }
func (c *Config) HiddenChannels() int         { return c.v.GetInt("model.hidden_channels") }
func (c *Config) Dropout() float64            { return c.v.GetFloat64("model.dropout") }
func (c *Config) Epochs() int                 { return c.v.GetInt("training.epochs") }
func (c *Config) LR() float64                 { return c.v.GetFloat64("training.lr") }
func (c *Config) WeightDecay() float64        { return c.v.GetFloat64("training.weight_decay") }
func (c *Config) LogLevel() string            { return c.v.GetString("logging.level") }
func (c *Config) OutputFile() string          { return c.v.GetString("analysis.output_file") }

// Settings snapshots the configuration into a validated plain value
func (c *Config) Settings() (Settings, error) {
	s := Settings{
		Seed: c.Seed(),
		Dataset: DatasetSettings{
			Name: c.DatasetName(),
			Root: c.DatasetRoot(),
		},
		Sparsifier: SparsifierSettings{
			Name:     c.SparsifierName(),
			Sparsity: c.Sparsity(),
		},
		Model: ModelSettings{
			HiddenChannels: c.HiddenChannels(),
			Dropout:        c.Dropout(),
		},
		Training: TrainingSettings{
			Epochs:      c.Epochs(),
			LR:          c.LR(),
			WeightDecay: c.WeightDecay(),
		},
	}
	// no default: an absent factor leaves the strategy default in place,
	// while an explicit value (0 included) is passed through and clamped
	if c.v.IsSet("sparsifier.intermediate_factor") {
		f := c.IntermediateFactor()
		s.Sparsifier.IntermediateFactor = &f
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "sparsify").Logger()
}

// Settings is the plain, validated form of an experiment configuration.
// Copies may share IntermediateFactor, which is never written after Settings returns.
type Settings struct {
	Seed       int64              `json:"seed" yaml:"seed"`
	Dataset    DatasetSettings    `json:"dataset" yaml:"dataset"`
	Sparsifier SparsifierSettings `json:"sparsifier" yaml:"sparsifier"`
	Model      ModelSettings      `json:"model" yaml:"model"`
	Training   TrainingSettings   `json:"training" yaml:"training"`
}

type DatasetSettings struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Root string `json:"root" yaml:"root"`
}

type SparsifierSettings struct {
	Name               string  `json:"name" yaml:"name" validate:"required"`
	Sparsity           float64 `json:"sparsity" yaml:"sparsity" validate:"gt=0,lte=1"`
	IntermediateFactor *float64 `json:"intermediate_factor,omitempty" yaml:"intermediate_factor,omitempty"`
}

type ModelSettings struct {
	HiddenChannels int     `json:"hidden_channels" yaml:"hidden_channels" validate:"min=1"`
	Dropout        float64 `json:"dropout" yaml:"dropout" validate:"gte=0,lt=1"`
}

type TrainingSettings struct {
	Epochs      int     `json:"epochs" yaml:"epochs" validate:"min=1"`
	LR          float64 `json:"lr" yaml:"lr" validate:"gt=0"`
	WeightDecay float64 `json:"weight_decay" yaml:"weight_decay" validate:"gte=0"`
}

// DefaultSettings returns the defaults of NewConfig
func DefaultSettings() Settings {
	s, _ := NewConfig().Settings()
	return s
}

// Validate checks field ranges; failures wrap ErrInvalidConfig
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SparsifierParams returns the strategy-specific parameters
func (s Settings) SparsifierParams() sparsify.Params {
	p := sparsify.Params{}
	if s.Sparsifier.IntermediateFactor != nil {
		p[sparsify.ParamIntermediateFactor] = *s.Sparsifier.IntermediateFactor
	}
	return p
}
