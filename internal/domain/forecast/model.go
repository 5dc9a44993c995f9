// Package forecast implements the residual LSTM risk forecaster.
//
// A stacked LSTM encodes the feature sequence, a linear head maps the last
// hidden state to a delta, and the forecast is that delta added to the
// latest log10 Pc feature. Forecasts are therefore log10 Pc.
//
// Weights follow the PyTorch nn.LSTM layout (gate order i, f, g, o) so that
// trained state dicts load without conversion. A Model is immutable after
// construction and safe for concurrent use.
package forecast

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/conjunction/internal/domain/model"
)

// Mode selects whether dropout is active for a pass.
type Mode int

// Modes.
const (
	Deterministic Mode = iota
	Stochastic
)

// Pass parameterizes one forward pass. Seed is only used in Stochastic mode.
type Pass struct {
	Mode Mode
	Seed int64
}

// Predictor maps a sequence to a log10 Pc forecast.
type Predictor interface {
	Predict(seq model.Sequence, pass Pass) (float64, error)
}

type layer struct {
	wih *mat.Dense    // 4H x in
	whh *mat.Dense    // 4H x H
	b   *mat.VecDense // bias_ih + bias_hh, 4H
}

// Model is a loaded forecaster.
type Model struct {
	cfg    Config
	layers []layer
	fcW    *mat.VecDense // H
	fcB    float64
}

// Config returns the architecture.
func (m *Model) Config() Config { return m.cfg }

// Predict runs one forward pass.
func (m *Model) Predict(seq model.Sequence, pass Pass) (float64, error) {
	if err := m.checkShape(seq); err != nil {
		return 0, err
	}

	var rng *rand.Rand
	if pass.Mode == Stochastic && m.cfg.Dropout > 0 && len(m.layers) > 1 {
		rng = rand.New(rand.NewPCG(uint64(pass.Seed), uint64(pass.Seed)^0x9e3779b97f4a7c15)) //nolint:gosec // not security sensitive
	}

	h := m.cfg.HiddenSize
	inputs := make([]*mat.VecDense, len(seq.Rows))
	for t, row := range seq.Rows {
		inputs[t] = mat.NewVecDense(model.NumFeatures, []float64{row[0], row[1], row[2]})
	}

	gates := mat.NewVecDense(4*h, nil)
	rec := mat.NewVecDense(4*h, nil)
	for k, l := range m.layers {
		outputs := m.runLayer(l, inputs, gates, rec)
		if rng != nil && k < len(m.layers)-1 {
			dropout(outputs, m.cfg.Dropout, rng)
		}
		inputs = outputs
	}

	last := inputs[len(inputs)-1]
	delta := mat.Dot(m.fcW, last) + m.fcB
	out := delta + seq.Latest()[model.FeatureLogProbability]
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, &InputShapeError{Row: len(seq.Rows) - 1, Reason: "non-finite forecast"}
	}
	return out, nil
}

// PredictBatch forecasts every sequence. Stochastic passes derive a distinct
// seed per sequence from pass.Seed. The first error fails the batch.
func (m *Model) PredictBatch(seqs []model.Sequence, pass Pass) ([]float64, error) {
	out := make([]float64, len(seqs))
	for i, seq := range seqs {
		p := pass
		if p.Mode == Stochastic {
			p.Seed = pass.Seed + int64(i)
		}
		v, err := m.Predict(seq, p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// runLayer returns the hidden state at every time step.
func (m *Model) runLayer(l layer, inputs []*mat.VecDense, gates, rec *mat.VecDense) []*mat.VecDense {
	hs := m.cfg.HiddenSize
	h := mat.NewVecDense(hs, nil)
	c := make([]float64, hs)
	outputs := make([]*mat.VecDense, len(inputs))

	for t, x := range inputs {
		gates.MulVec(l.wih, x)
		rec.MulVec(l.whh, h)
		gates.AddVec(gates, rec)
		gates.AddVec(gates, l.b)

		next := mat.NewVecDense(hs, nil)
		for j := 0; j < hs; j++ {
			i := sigmoid(gates.AtVec(j))
			f := sigmoid(gates.AtVec(hs + j))
			g := math.Tanh(gates.AtVec(2*hs + j))
			o := sigmoid(gates.AtVec(3*hs + j))
			c[j] = f*c[j] + i*g
			next.SetVec(j, o*math.Tanh(c[j]))
		}
		h = next
		outputs[t] = next
	}
	return outputs
}

func (m *Model) checkShape(seq model.Sequence) error {
	if len(seq.Rows) != m.cfg.SequenceLength {
		return &InputShapeError{Want: m.cfg.SequenceLength, Got: len(seq.Rows)}
	}
	for i, row := range seq.Rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &InputShapeError{Want: m.cfg.SequenceLength, Got: len(seq.Rows), Row: i, Reason: "non-finite feature"}
			}
		}
	}
	return nil
}

// dropout zeroes each unit with probability p and scales survivors by
// 1/(1-p), in place.
func dropout(vs []*mat.VecDense, p float64, rng *rand.Rand) {
	scale := 1 / (1 - p)
	for _, v := range vs {
		for j := 0; j < v.Len(); j++ {
			if rng.Float64() < p {
				v.SetVec(j, 0)
			} else {
				v.SetVec(j, v.AtVec(j)*scale)
			}
		}
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
