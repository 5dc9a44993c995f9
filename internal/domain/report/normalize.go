package report

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

// Coercion sentinels.
const (
	// ProbabilityFallback replaces an unparseable or missing Pc.
	ProbabilityFallback = 0.0
)

// Field names used in logs and metrics.
const (
	fieldProbability  = "PC"
	fieldMissDistance = "MIN_RNG"
)

// Stats summarizes one Normalize call.
type Stats struct {
	Records             int
	ProbabilityCoerced  int
	MissDistanceCoerced int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used for coercion warnings.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// Normalizer converts wire records into RawMessages.
type Normalizer struct {
	logger logger.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logger.Get().Named("report")
	}
	return n
}

// Normalize coerces numeric fields and returns one RawMessage per record.
// Records are never dropped here; required-field checks belong to grouping.
func (n *Normalizer) Normalize(ctx context.Context, recs []Record) ([]model.RawMessage, Stats) {
	out := make([]model.RawMessage, 0, len(recs))
	stats := Stats{Records: len(recs)}

	for i := range recs {
		rec := &recs[i]

		pc, err := parseProbability(rec.Probability)
		if err != nil {
			stats.ProbabilityCoerced++
			n.coerced(ctx, rec, fieldProbability, err)
		}

		miss, err := parseMissDistance(rec.MissDistance)
		if err != nil {
			stats.MissDistanceCoerced++
			n.coerced(ctx, rec, fieldMissDistance, err)
		}

		out = append(out, model.RawMessage{
			CDMID:             rec.CDMID.String(),
			PrimaryID:         rec.PrimaryID.String(),
			SecondaryID:       rec.SecondaryID.String(),
			PrimaryObjectType: rec.PrimaryObjectType.String(),
			TCA:               rec.TCA.String(),
			Created:           rec.Created.String(),
			Probability:       pc,
			MissDistance:      miss,
		})
	}

	metrics.RecordReportsIngested(len(recs))
	return out, stats
}

func (n *Normalizer) coerced(ctx context.Context, rec *Record, field string, err error) {
	metrics.RecordNumericCoercion(field)
	n.logger.Warn(ctx, "coerced non-numeric report field",
		logger.String("cdm_id", rec.CDMID.String()),
		logger.String("field", field),
		logger.Error(err),
	)
}

// parseProbability returns ProbabilityFallback for blank input without an
// error, and with an error for anything present that is not a finite number.
func parseProbability(v Value) (float64, error) {
	if v.Empty() {
		return ProbabilityFallback, nil
	}
	f, err := parseFinite(v.String())
	if err != nil {
		return ProbabilityFallback, fmt.Errorf("%w: %s=%q", ErrNumericParse, fieldProbability, v.String())
	}
	return f, nil
}

// parseMissDistance returns nil for blank or bad input. Downstream treats
// nil as "not reported".
func parseMissDistance(v Value) (*float64, error) {
	if v.Empty() {
		return nil, nil
	}
	f, err := parseFinite(v.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrNumericParse, fieldMissDistance, v.String())
	}
	return &f, nil
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}
