package synth

import (
	"time"

	"github.com/okian/conjunction/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithEvents sets the number of encounters. Values below 1 are ignored.
func WithEvents(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.events = n
		}
	}
}

// WithHighRiskRatio sets the share of close encounters, in [0,1].
func WithHighRiskRatio(r float64) Option {
	return func(g *Generator) {
		if r >= 0 && r <= 1 {
			g.highRiskRatio = r
		}
	}
}

// WithReportsPerEvent sets the range of reports per encounter.
func WithReportsPerEvent(lo, hi int) Option {
	return func(g *Generator) {
		if lo > 0 && hi >= lo {
			g.minReports, g.maxReports = lo, hi
		}
	}
}

// WithPrimaries sets the primary object ids, assigned round robin.
func WithPrimaries(ids ...string) Option {
	return func(g *Generator) {
		if len(ids) > 0 {
			g.primaries = ids
		}
	}
}

// WithMessyRatio sets the share of reports written with inconsistent
// field encodings.
func WithMessyRatio(r float64) Option {
	return func(g *Generator) {
		if r >= 0 && r <= 1 {
			g.messyRatio = r
		}
	}
}

// WithSeed sets the random seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithNow fixes the generation time.
func WithNow(t time.Time) Option {
	return func(g *Generator) {
		g.now = t.UTC()
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}
