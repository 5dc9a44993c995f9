// Package uncertainty scores how much a forecast can be trusted by
// resampling the forecaster's dropout noise.
package uncertainty

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/model"
)

// Defaults.
const (
	DefaultSamples     = 20
	DefaultScale       = 100.0
	DefaultConcurrency = 4
)

// Estimator runs N stochastic passes and maps their spread to a certainty.
type Estimator struct {
	samples     int
	scale       float64
	concurrency int
	seeds       func() int64
}

// New creates an Estimator.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		samples:     DefaultSamples,
		scale:       DefaultScale,
		concurrency: DefaultConcurrency,
		seeds:       rand.Int64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Samples returns N.
func (e *Estimator) Samples() int { return e.samples }

// Summary describes one estimate.
type Summary struct {
	Certainty float64
	StdDev    float64
	Mean      float64
}

// Estimate returns the certainty for seq. Passes run concurrently, each with
// its own seed; their order does not affect the result.
func (e *Estimator) Estimate(ctx context.Context, p forecast.Predictor, seq model.Sequence) (float64, error) {
	s, err := e.Summarize(ctx, p, seq)
	if err != nil {
		return 0, err
	}
	return s.Certainty, nil
}

// Summarize is Estimate with the sample statistics attached.
func (e *Estimator) Summarize(ctx context.Context, p forecast.Predictor, seq model.Sequence) (Summary, error) {
	seeds := make([]int64, e.samples)
	for i := range seeds {
		seeds[i] = e.seeds()
	}

	outputs := make([]float64, e.samples)
	errs := make([]error, e.samples)
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i := range seeds {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			outputs[idx], errs[idx] = p.Predict(seq, forecast.Pass{Mode: forecast.Stochastic, Seed: seeds[idx]})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Summary{}, err
		}
	}
	if len(outputs) < 2 {
		return Summary{}, fmt.Errorf("%w: %d", ErrNoSamples, len(outputs))
	}

	mean, sd := stat.MeanStdDev(outputs, nil)
	return Summary{Certainty: e.Certainty(sd), StdDev: sd, Mean: mean}, nil
}

// Certainty maps a standard deviation to (0,1]: 1 at zero, decreasing as the
// spread grows.
func (e *Estimator) Certainty(sd float64) float64 {
	return Certainty(sd, e.scale)
}

// Certainty is 1/(1+k*sd). Negative or NaN spreads count as zero; an
// infinite spread yields the smallest positive value.
func Certainty(sd, k float64) float64 {
	if math.IsNaN(sd) || sd < 0 {
		sd = 0
	}
	c := 1 / (1 + k*sd)
	if c <= 0 || math.IsNaN(c) {
		return math.SmallestNonzeroFloat64
	}
	return c
}
