package sequence

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithLength sets the fixed sequence length L. Values below 1 are ignored.
func WithLength(l int) Option {
	return func(b *Builder) {
		if l > 0 {
			b.length = l
		}
	}
}

// WithMissDistanceSentinel sets the miss distance, in meters, assumed when a
// report does not carry one.
func WithMissDistanceSentinel(m float64) Option {
	return func(b *Builder) {
		if m > 0 {
			b.missSentinel = m
		}
	}
}
