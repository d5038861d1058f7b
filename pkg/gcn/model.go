// Package gcn implements a two-layer graph convolutional network trained with
// Adam on the train role mask. It is the default training.Trainer.
package gcn

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/graph-sparsification-service/pkg/graph"
	"github.com/gilchrisn/graph-sparsification-service/pkg/training"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Trainer builds GCN models
type Trainer struct {
	Logger zerolog.Logger
}

// NewTrainer creates a GCN trainer that logs with logger
func NewTrainer(logger zerolog.Logger) *Trainer {
	return &Trainer{Logger: logger}
}

// NewModel initialises weights with Glorot uniform draws from rng
func (t *Trainer) NewModel(spec training.Spec, rng *rand.Rand) (training.Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("gcn model requires a random source")
	}

	return &Model{
		spec:   spec,
		w1:     newParam(glorot(spec.InChannels, spec.HiddenChannels, rng)),
		b1:     newParam(mat.NewDense(1, spec.HiddenChannels, nil)),
		w2:     newParam(glorot(spec.HiddenChannels, spec.OutChannels, rng)),
		b2:     newParam(mat.NewDense(1, spec.OutChannels, nil)),
		rng:    rng,
		logger: t.Logger,
	}, nil
}

// Model is a two-layer GCN: softmax(Â · dropout(relu(Â X W1 + b1)) W2 + b2)
type Model struct {
	spec   training.Spec
	w1, b1 *param
	w2, b2 *param
	step   int
	rng    *rand.Rand
	logger zerolog.Logger
}

// param is a weight matrix with its Adam moment estimates
type param struct {
	w, m, v *mat.Dense
}

func newParam(w *mat.Dense) *param {
	r, c := w.Dims()
	return &param{w: w, m: mat.NewDense(r, c, nil), v: mat.NewDense(r, c, nil)}
}

func glorot(fanIn, fanOut int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := make([]float64, fanIn*fanOut)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(fanIn, fanOut, data)
}

// forwardState keeps the intermediates needed for backpropagation
type forwardState struct {
	ax     *mat.Dense // Â X
	z1     *mat.Dense // Â X W1 + b1
	mask   []float64  // inverted dropout scale per hidden unit, nil when disabled
	ah     *mat.Dense // Â dropout(relu(z1))
	logits *mat.Dense
}

func (m *Model) checkGraph(g *graph.Graph) error {
	if g.Features == nil {
		return fmt.Errorf("gcn requires node features")
	}
	if d := g.FeatureDim(); d != m.spec.InChannels {
		return fmt.Errorf("feature dimension %d does not match model input %d", d, m.spec.InChannels)
	}
	return nil
}

func (m *Model) forward(p *propagator, ax *mat.Dense, train bool) *forwardState {
	n, _ := ax.Dims()
	st := &forwardState{ax: ax}

	st.z1 = mat.NewDense(n, m.spec.HiddenChannels, nil)
	st.z1.Mul(ax, m.w1.w)
	addBias(st.z1, m.b1.w)

	h := mat.DenseCopyOf(st.z1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, h)

	if train && m.spec.Dropout > 0 {
		keep := 1 - m.spec.Dropout
		raw := h.RawMatrix().Data
		st.mask = make([]float64, len(raw))
		for i := range st.mask {
			if m.rng.Float64() < keep {
				st.mask[i] = 1 / keep
			}
		}
		floats.Mul(raw, st.mask)
	}

	st.ah = p.forward(h)
	st.logits = mat.NewDense(n, m.spec.OutChannels, nil)
	st.logits.Mul(st.ah, m.w2.w)
	addBias(st.logits, m.b2.w)
	return st
}

// Fit runs full-batch gradient descent for opts.Epochs epochs
func (m *Model) Fit(ctx context.Context, g *graph.Graph, opts training.Options) (training.FitStats, error) {
	if err := m.checkGraph(g); err != nil {
		return training.FitStats{}, err
	}
	if err := opts.Validate(); err != nil {
		return training.FitStats{}, err
	}

	trainNodes := make([]int, 0)
	for i, inTrain := range g.TrainMask {
		if inTrain {
			trainNodes = append(trainNodes, i)
		}
	}
	if len(trainNodes) == 0 {
		return training.FitStats{}, fmt.Errorf("train mask is empty")
	}

	p := newPropagator(g)
	ax := p.forward(g.Features)

	stats := training.FitStats{}
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		st := m.forward(p, ax, true)
		loss, dLogits := crossEntropy(st.logits, g.Labels, trainNodes)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return stats, fmt.Errorf("training diverged at epoch %d: loss=%v", epoch, loss)
		}

		m.backward(p, st, dLogits, opts)
		stats.Epochs = epoch + 1
		stats.FinalLoss = loss

		if epoch%50 == 0 {
			m.logger.Debug().
				Int("epoch", epoch).
				Float64("loss", loss).
				Msg("GCN training progress")
		}
	}

	return stats, nil
}

func (m *Model) backward(p *propagator, st *forwardState, dLogits *mat.Dense, opts training.Options) {
	n, _ := dLogits.Dims()

	var gW2 mat.Dense
	gW2.Mul(st.ah.T(), dLogits)
	gB2 := colSums(dLogits)

	dAH := mat.NewDense(n, m.spec.HiddenChannels, nil)
	dAH.Mul(dLogits, m.w2.w.T())
	dH := p.backward(dAH)

	raw := dH.RawMatrix().Data
	if st.mask != nil {
		floats.Mul(raw, st.mask)
	}
	z1 := st.z1.RawMatrix().Data
	for i := range raw {
		if z1[i] <= 0 {
			raw[i] = 0
		}
	}

	var gW1 mat.Dense
	gW1.Mul(st.ax.T(), dH)
	gB1 := colSums(dH)

	m.step++
	for _, u := range []struct {
		p *param
		g *mat.Dense
	}{{m.w1, &gW1}, {m.b1, gB1}, {m.w2, &gW2}, {m.b2, gB2}} {
		m.adam(u.p, u.g, opts)
	}
}

// adam applies one Adam step with L2 weight decay folded into the gradient
func (m *Model) adam(p *param, grad *mat.Dense, opts training.Options) {
	w := p.w.RawMatrix().Data
	mo := p.m.RawMatrix().Data
	ve := p.v.RawMatrix().Data
	g := grad.RawMatrix().Data

	c1 := 1 - math.Pow(adamBeta1, float64(m.step))
	c2 := 1 - math.Pow(adamBeta2, float64(m.step))
	for i := range w {
		gi := g[i] + opts.WeightDecay*w[i]
		mo[i] = adamBeta1*mo[i] + (1-adamBeta1)*gi
		ve[i] = adamBeta2*ve[i] + (1-adamBeta2)*gi*gi
		w[i] -= opts.LR * (mo[i] / c1) / (math.Sqrt(ve[i]/c2) + adamEpsilon)
	}
}

// Predict returns the arg-max class of every node with dropout disabled
func (m *Model) Predict(g *graph.Graph) ([]int, error) {
	if err := m.checkGraph(g); err != nil {
		return nil, err
	}
	p := newPropagator(g)
	st := m.forward(p, p.forward(g.Features), false)

	preds := make([]int, g.NumNodes)
	for i := range preds {
		preds[i] = floats.MaxIdx(st.logits.RawRowView(i))
	}
	return preds, nil
}

func addBias(x, bias *mat.Dense) {
	n, _ := x.Dims()
	b := bias.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(x.RawRowView(i), b)
	}
}

func colSums(x *mat.Dense) *mat.Dense {
	n, c := x.Dims()
	out := mat.NewDense(1, c, nil)
	row := out.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(row, x.RawRowView(i))
	}
	return out
}

// crossEntropy returns the mean softmax cross-entropy over nodes and the
// gradient with respect to the logits (zero outside nodes).
func crossEntropy(logits *mat.Dense, labels []int, nodes []int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	grad := mat.NewDense(r, c, nil)
	scale := 1 / float64(len(nodes))

	loss := 0.0
	probs := make([]float64, c)
	for _, i := range nodes {
		row := logits.RawRowView(i)
		maxLogit := floats.Max(row)
		sum := 0.0
		for j, v := range row {
			probs[j] = math.Exp(v - maxLogit)
			sum += probs[j]
		}
		floats.Scale(1/sum, probs)

		y := labels[i]
		loss -= math.Log(math.Max(probs[y], 1e-300))

		g := grad.RawRowView(i)
		for j := range g {
			g[j] = probs[j] * scale
		}
		g[y] -= scale
	}
	return loss * scale, grad
}
