package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML document that describes a model artifact.
type Manifest struct {
	Architecture Config `yaml:"architecture"`
	// Weights is a JSON state dict, relative to the manifest directory.
	Weights string `yaml:"weights"`
}

// StateDict maps PyTorch parameter names to values. Matrices are row-major
// nested lists; vectors are flat lists.
type StateDict map[string]json.RawMessage

// Load reads a manifest and its weights. Architecture problems wrap
// ErrInvalidArchitecture; anything else wraps ErrModelUnavailable.
func Load(manifestPath string) (*Model, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrModelUnavailable, err)
	}
	var man Manifest
	if err := yaml.Unmarshal(raw, &man); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", ErrModelUnavailable, err)
	}
	if err := man.Architecture.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(man.Weights) == "" {
		return nil, fmt.Errorf("%w: manifest names no weights file", ErrModelUnavailable)
	}

	weightsPath := man.Weights
	if !filepath.IsAbs(weightsPath) {
		weightsPath = filepath.Join(filepath.Dir(manifestPath), weightsPath)
	}
	f, err := os.Open(weightsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: weights %s not found", ErrModelUnavailable, weightsPath)
		}
		return nil, fmt.Errorf("%w: open weights: %w", ErrModelUnavailable, err)
	}
	defer f.Close()

	var sd StateDict
	if err := json.NewDecoder(f).Decode(&sd); err != nil {
		return nil, fmt.Errorf("%w: decode weights: %w", ErrModelUnavailable, err)
	}
	return FromStateDict(man.Architecture, sd)
}

// FromStateDict builds a model from named parameters. Names may carry the
// "lstm." prefix PyTorch adds for a submodule.
func FromStateDict(cfg Config, sd StateDict) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := cfg.HiddenSize
	m := &Model{cfg: cfg, layers: make([]layer, cfg.NumLayers)}

	for k := 0; k < cfg.NumLayers; k++ {
		in := cfg.InputSize
		if k > 0 {
			in = h
		}
		wih, err := sd.matrix(fmt.Sprintf("weight_ih_l%d", k), 4*h, in)
		if err != nil {
			return nil, err
		}
		whh, err := sd.matrix(fmt.Sprintf("weight_hh_l%d", k), 4*h, h)
		if err != nil {
			return nil, err
		}
		bih, err := sd.vector(fmt.Sprintf("bias_ih_l%d", k), 4*h)
		if err != nil {
			return nil, err
		}
		bhh, err := sd.vector(fmt.Sprintf("bias_hh_l%d", k), 4*h)
		if err != nil {
			return nil, err
		}
		b := mat.NewVecDense(4*h, nil)
		b.AddVec(bih, bhh)
		m.layers[k] = layer{wih: wih, whh: whh, b: b}
	}

	fcW, err := sd.matrix("fc.weight", 1, h)
	if err != nil {
		return nil, err
	}
	fcB, err := sd.vector("fc.bias", 1)
	if err != nil {
		return nil, err
	}
	m.fcW = mat.VecDenseCopyOf(fcW.RowView(0))
	m.fcB = fcB.AtVec(0)
	return m, nil
}

func (sd StateDict) lookup(name string) (json.RawMessage, bool) {
	if v, ok := sd[name]; ok {
		return v, true
	}
	v, ok := sd["lstm."+name]
	return v, ok
}

func (sd StateDict) matrix(name string, rows, cols int) (*mat.Dense, error) {
	raw, ok := sd.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: missing parameter %s", ErrModelUnavailable, name)
	}
	var vals [][]float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("%w: parameter %s: %w", ErrModelUnavailable, name, err)
	}
	if len(vals) != rows {
		return nil, fmt.Errorf("%w: parameter %s: want %d rows, got %d", ErrModelUnavailable, name, rows, len(vals))
	}
	data := make([]float64, 0, rows*cols)
	for i, r := range vals {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: parameter %s row %d: want %d cols, got %d", ErrModelUnavailable, name, i, cols, len(r))
		}
		data = append(data, r...)
	}
	if err := finite(name, data); err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}

func (sd StateDict) vector(name string, n int) (*mat.VecDense, error) {
	raw, ok := sd.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: missing parameter %s", ErrModelUnavailable, name)
	}
	var vals []float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("%w: parameter %s: %w", ErrModelUnavailable, name, err)
	}
	if len(vals) != n {
		return nil, fmt.Errorf("%w: parameter %s: want %d values, got %d", ErrModelUnavailable, name, n, len(vals))
	}
	if err := finite(name, vals); err != nil {
		return nil, err
	}
	return mat.NewVecDense(n, vals), nil
}

func finite(name string, vals []float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameter %s holds a non-finite value", ErrModelUnavailable, name)
		}
	}
	return nil
}

// NewZero returns a model whose delta is always zero, so the forecast
// equals the latest log10 Pc.
func NewZero(cfg Config) (*Model, error) {
	return build(cfg, func() float64 { return 0 })
}

// NewRandom returns a model with weights drawn uniformly from
// [-1/sqrt(H), 1/sqrt(H)], the PyTorch default initialization.
func NewRandom(cfg Config, seed int64) (*Model, error) {
	rng := rand.New(rand.NewPCG(uint64(seed), 0)) //nolint:gosec // not security sensitive
	bound := 1 / math.Sqrt(float64(max(cfg.HiddenSize, 1)))
	return build(cfg, func() float64 { return (rng.Float64()*2 - 1) * bound })
}

func build(cfg Config, next func() float64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := cfg.HiddenSize
	fill := func(n int) []float64 {
		d := make([]float64, n)
		for i := range d {
			d[i] = next()
		}
		return d
	}

	m := &Model{cfg: cfg, layers: make([]layer, cfg.NumLayers)}
	for k := range m.layers {
		in := cfg.InputSize
		if k > 0 {
			in = h
		}
		m.layers[k] = layer{
			wih: mat.NewDense(4*h, in, fill(4*h*in)),
			whh: mat.NewDense(4*h, h, fill(4*h*h)),
			b:   mat.NewVecDense(4*h, fill(4*h)),
		}
	}
	m.fcW = mat.NewVecDense(h, fill(h))
	m.fcB = next()
	return m, nil
}

// StateDict exports the parameters in PyTorch naming. The combined LSTM
// bias is written to bias_ih and bias_hh is zero.
func (m *Model) StateDict() (StateDict, error) {
	sd := StateDict{}
	put := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		sd[name] = b
		return nil
	}
	rowsOf := func(d *mat.Dense) [][]float64 {
		r, _ := d.Dims()
		out := make([][]float64, r)
		for i := range out {
			out[i] = mat.Row(nil, i, d)
		}
		return out
	}

	for k, l := range m.layers {
		if err := put(fmt.Sprintf("weight_ih_l%d", k), rowsOf(l.wih)); err != nil {
			return nil, err
		}
		if err := put(fmt.Sprintf("weight_hh_l%d", k), rowsOf(l.whh)); err != nil {
			return nil, err
		}
		if err := put(fmt.Sprintf("bias_ih_l%d", k), mat.Col(nil, 0, l.b)); err != nil {
			return nil, err
		}
		if err := put(fmt.Sprintf("bias_hh_l%d", k), make([]float64, l.b.Len())); err != nil {
			return nil, err
		}
	}
	if err := put("fc.weight", [][]float64{mat.Col(nil, 0, m.fcW)}); err != nil {
		return nil, err
	}
	if err := put("fc.bias", []float64{m.fcB}); err != nil {
		return nil, err
	}
	return sd, nil
}

// Save writes manifest.yaml and weights.json into dir and returns the
// manifest path.
func Save(dir string, m *Model) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	sd, err := m.StateDict()
	if err != nil {
		return "", err
	}
	weights, err := json.Marshal(sd)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "weights.json"), weights, 0o600); err != nil {
		return "", err
	}
	man, err := yaml.Marshal(Manifest{Architecture: m.cfg, Weights: "weights.json"})
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, man, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
