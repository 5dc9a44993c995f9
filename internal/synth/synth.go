// Package synth generates synthetic conjunction report feeds for demos and
// load tests. Output is deterministic for a given seed.
package synth

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunction/internal/domain/report"
	"github.com/okian/conjunction/pkg/logger"
)

// Distribution parameters for the two encounter populations.
const (
	highRiskMissScale  = 500.0 // meters, exponential
	highRiskMissOffset = 10.0
	highRiskTCAScale   = 24.0 // hours, exponential
	highRiskTCAOffset  = 0.1

	falseAlarmMissScale  = 5000.0
	falseAlarmMissOffset = 1000.0
	falseAlarmTCAScale   = 48.0
	falseAlarmTCAOffset  = 1.0

	minMiss  = 10.0
	maxMiss  = 50000.0
	minHours = 0.1
	maxHours = 200.0

	hardBodyRadius = 20.0 // meters
	minPc          = 1e-12
	maxPc          = 1e-1

	reportSpacing = 8 * time.Hour
)

// TimeLayout is the upstream timestamp shape.
const TimeLayout = "2006-01-02T15:04:05.000"

// Generator produces report feeds.
type Generator struct {
	events        int
	highRiskRatio float64
	minReports    int
	maxReports    int
	primaries     []string
	objectType    string
	messyRatio    float64
	seed          uint64
	now           time.Time
	logger        logger.Logger
}

// New creates a Generator. Defaults: 100 events, 30% high risk, 3-8
// reports per event.
func New(opts ...Option) *Generator {
	g := &Generator{
		events:        100,
		highRiskRatio: 0.3,
		minReports:    3,
		maxReports:    8,
		primaries:     []string{"65004", "43013", "25544"},
		objectType:    "PAYLOAD",
		seed:          42,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.now.IsZero() {
		g.now = time.Now().UTC()
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("synth")
	}
	return g
}

// Summary counts what Generate produced.
type Summary struct {
	Events     int `json:"events"`
	HighRisk   int `json:"high_risk"`
	FalseAlarm int `json:"false_alarm"`
	Reports    int `json:"reports"`
}

// Generate returns the reports of every event, ordered by event then
// creation time.
func (g *Generator) Generate(ctx context.Context) ([]report.Record, Summary, error) {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], g.seed)
	src := rand.NewChaCha8(seed)
	rng := rand.New(src) //nolint:gosec // synthetic data

	nHigh := int(float64(g.events) * g.highRiskRatio)
	kinds := make([]bool, g.events)
	for i := 0; i < nHigh; i++ {
		kinds[i] = true
	}
	rng.Shuffle(len(kinds), func(i, j int) { kinds[i], kinds[j] = kinds[j], kinds[i] })

	var (
		out []report.Record
		sum = Summary{Events: g.events}
	)
	for i, high := range kinds {
		if err := ctx.Err(); err != nil {
			return nil, Summary{}, fmt.Errorf("generate: %w", err)
		}
		if high {
			sum.HighRisk++
		} else {
			sum.FalseAlarm++
		}
		recs, err := g.event(i, high, rng, src)
		if err != nil {
			return nil, Summary{}, err
		}
		out = append(out, recs...)
	}
	sum.Reports = len(out)

	g.logger.Info(ctx, "generated synthetic reports",
		logger.Int("events", sum.Events),
		logger.Int("highRisk", sum.HighRisk),
		logger.Int("reports", sum.Reports),
		logger.Float64("messyRatio", g.messyRatio),
	)
	return out, sum, nil
}

func (g *Generator) event(i int, high bool, rng *rand.Rand, ids io.Reader) ([]report.Record, error) {
	missScale, missOffset, tcaScale, tcaOffset := falseAlarmMissScale, falseAlarmMissOffset, falseAlarmTCAScale, falseAlarmTCAOffset
	if high {
		missScale, missOffset, tcaScale, tcaOffset = highRiskMissScale, highRiskMissOffset, highRiskTCAScale, highRiskTCAOffset
	}
	finalMiss := clamp(rng.ExpFloat64()*missScale+missOffset, minMiss, maxMiss)
	hoursToTCA := clamp(rng.ExpFloat64()*tcaScale+tcaOffset, minHours, maxHours)

	primary := g.primaries[i%len(g.primaries)]
	secondary := strconv.Itoa(30000 + i)
	latest := g.now.Add(-time.Duration(rng.IntN(60)) * time.Minute)
	tca := latest.Add(time.Duration(hoursToTCA * float64(time.Hour)))

	n := g.minReports
	if g.maxReports > g.minReports {
		n += rng.IntN(g.maxReports - g.minReports + 1)
	}

	recs := make([]report.Record, 0, n)
	for j := 0; j < n; j++ {
		// Earlier reports carry a larger, noisier miss estimate that
		// converges on the final one.
		age := n - 1 - j
		created := latest.Add(-time.Duration(age) * reportSpacing)
		spread := 1 + 0.5*float64(age)*rng.Float64()
		miss := clamp(finalMiss*spread, minMiss, maxMiss)
		hours := tca.Sub(created).Hours()

		id, err := uuid.NewRandomFromReader(ids)
		if err != nil {
			return nil, fmt.Errorf("cdm id: %w", err)
		}
		rec := report.Record{
			CDMID:             report.Str(id.String()),
			PrimaryID:         report.Str(primary),
			SecondaryID:       report.Str(secondary),
			PrimaryObjectType: report.Str(g.objectType),
			TCA:               report.Str(tca.Format(TimeLayout)),
			Created:           report.Str(created.Format(TimeLayout)),
			Probability:       report.Num(Probability(miss, hours)),
			MissDistance:      report.Num(math.Round(miss*10) / 10),
		}
		if g.messyRatio > 0 && rng.Float64() < g.messyRatio {
			messUp(&rec, rng)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Probability is a simple encounter model: a Gaussian miss distribution
// whose spread grows with the time remaining to TCA.
func Probability(missMeters, hoursToTCA float64) float64 {
	sigma := 200 + 50*math.Max(hoursToTCA, 0)
	ratio := missMeters / sigma
	pc := (hardBodyRadius * hardBodyRadius) / (2 * sigma * sigma) * math.Exp(-ratio*ratio/2)
	return clamp(pc, minPc, maxPc)
}

// messUp reproduces the inconsistent encodings seen upstream.
func messUp(rec *report.Record, rng *rand.Rand) {
	switch rng.IntN(3) {
	case 0:
		rec.Probability = report.Str(rec.Probability.String())
	case 1:
		rec.MissDistance = report.Str("")
	default:
		rec.PrimaryID = report.Str(" " + rec.PrimaryID.String() + " ")
	}
}

// Write encodes recs as an indented JSON list.
func Write(w io.Writer, recs []report.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
