// Package training defines the contract between the experiment runner and
// a node-classification model implementation.
package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
)

// ErrInvalidParameters wraps Spec and Options validation failures
var ErrInvalidParameters = errors.New("invalid training parameters")

var validate = validator.New()

// Spec describes the shape of a model to build
type Spec struct {
	InChannels     int     `json:"in_channels" validate:"min=1"`
	HiddenChannels int     `json:"hidden_channels" validate:"min=1"`
	OutChannels    int     `json:"out_channels" validate:"min=1"`
	Dropout        float64 `json:"dropout" validate:"gte=0,lt=1"`
}

// Options controls the training loop
type Options struct {
	Epochs      int     `json:"epochs" validate:"min=1"`
	LR          float64 `json:"lr" validate:"gt=0"`
	WeightDecay float64 `json:"weight_decay" validate:"gte=0"`
}

// Validate checks the model shape against its field tags
func (s Spec) Validate() error { return check(s) }

// Validate checks the training loop settings against their field tags
func (o Options) Validate() error { return check(o) }

func check(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(msgs, "; "))
}

// FitStats summarises a finished training loop
type FitStats struct {
	Epochs    int     `json:"epochs"`
	FinalLoss float64 `json:"final_loss"`
}

// Model is a trainable node classifier
type Model interface {
	// Fit trains on the nodes of g.TrainMask using g's edges and features
	Fit(ctx context.Context, g *graph.Graph, opts Options) (FitStats, error)

	// Predict returns one class id per node
	Predict(g *graph.Graph) ([]int, error)
}

// Trainer builds models. rng drives parameter initialisation and any
// stochastic regularisation during Fit.
type Trainer interface {
	NewModel(spec Spec, rng *rand.Rand) (Model, error)
}
