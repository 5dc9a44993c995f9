package uncertainty

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithSamples sets the number of stochastic passes. Values below 2 are
// ignored.
func WithSamples(n int) Option {
	return func(e *Estimator) {
		if n >= 2 {
			e.samples = n
		}
	}
}

// WithScale sets k in certainty = 1/(1+k*sigma).
func WithScale(k float64) Option {
	return func(e *Estimator) {
		if k > 0 {
			e.scale = k
		}
	}
}

// WithConcurrency bounds the passes run at once.
func WithConcurrency(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSeedSource sets the function that draws a seed for each pass.
func WithSeedSource(src func() int64) Option {
	return func(e *Estimator) {
		if src != nil {
			e.seeds = src
		}
	}
}
