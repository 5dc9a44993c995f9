package grouping

import (
	"strings"

	"github.com/okian/conjunction/pkg/logger"
)

// Option applies a configuration option to the Grouper.
type Option func(*grouper)

// WithLogger sets the logger used for dropped-record warnings.
func WithLogger(l logger.Logger) Option {
	return func(g *grouper) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithPrimaryObjectTypes keeps only reports whose primary object type is one
// of types (case-insensitive). No types means no filter.
func WithPrimaryObjectTypes(types ...string) Option {
	return func(g *grouper) {
		for _, t := range types {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t != "" {
				g.objectTypes[t] = struct{}{}
			}
		}
	}
}
