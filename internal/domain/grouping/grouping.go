// Package grouping collects raw conjunction reports into events.
//
// An event is every report for the same (primary, secondary) pair whose TCA
// falls in the same minute. The result does not depend on input order.
package grouping

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

// Grouper turns an unordered batch of reports into events keyed by event key.
type Grouper interface {
	Group(ctx context.Context, msgs []model.RawMessage) map[string]*model.ConjunctionEvent
}

type grouper struct {
	logger      logger.Logger
	objectTypes map[string]struct{} // empty means every type
}

// New creates a Grouper.
func New(opts ...Option) Grouper {
	g := &grouper{objectTypes: make(map[string]struct{})}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("grouping")
	}
	return g
}

// Group drops malformed reports, removes exact duplicates and sorts each
// event's history by creation time.
func (g *grouper) Group(ctx context.Context, msgs []model.RawMessage) map[string]*model.ConjunctionEvent {
	events := make(map[string]*model.ConjunctionEvent)
	seen := make(map[string]struct{}, len(msgs))
	malformed := 0
	duplicates := 0

	for i := range msgs {
		raw := &msgs[i]

		if !g.acceptsType(raw.PrimaryObjectType) {
			continue
		}

		msg, ev, why, err := g.prepare(raw)
		if err != nil {
			malformed++
			metrics.RecordMalformedRecord(why)
			g.logger.Warn(ctx, "dropping malformed record",
				logger.String("cdm_id", raw.CDMID),
				logger.Error(err),
			)
			continue
		}

		fp := fingerprint(ev.Key, msg)
		if _, dup := seen[fp]; dup {
			duplicates++
			continue
		}
		seen[fp] = struct{}{}

		existing, ok := events[ev.Key]
		if !ok {
			existing = ev
			events[ev.Key] = existing
		}
		existing.History = append(existing.History, msg)
	}

	for _, ev := range events {
		sortHistory(ev.History)
		if ev.TCAValid {
			// Refined TCAs within the same minute share a key. Keep the
			// floored value and the latest report's TCA as the raw form so
			// neither depends on input order.
			ev.TCA = ev.TCA.Truncate(time.Minute)
			ev.TCARaw = ev.History[len(ev.History)-1].TCA.Format(time.RFC3339Nano)
		}
	}

	metrics.RecordEventsGrouped(len(events))
	g.logger.Debug(ctx, "grouped reports",
		logger.Int("reports", len(msgs)),
		logger.Int("events", len(events)),
		logger.Int("malformed", malformed),
		logger.Int("duplicates", duplicates),
	)
	return events
}

func (g *grouper) acceptsType(objectType string) bool {
	if len(g.objectTypes) == 0 {
		return true
	}
	_, ok := g.objectTypes[strings.ToUpper(strings.TrimSpace(objectType))]
	return ok
}

// prepare validates one report and returns its parsed message together with
// a fresh event shell carrying the key. On failure it also returns a short
// reason label for metrics.
func (g *grouper) prepare(raw *model.RawMessage) (model.Message, *model.ConjunctionEvent, string, error) {
	primary := strings.TrimSpace(raw.PrimaryID)
	secondary := strings.TrimSpace(raw.SecondaryID)
	tcaRaw := strings.TrimSpace(raw.TCA)
	createdRaw := strings.TrimSpace(raw.Created)

	switch {
	case primary == "":
		return model.Message{}, nil, "missing_primary", fmt.Errorf("%w: missing primary id", ErrMalformedRecord)
	case secondary == "":
		return model.Message{}, nil, "missing_secondary", fmt.Errorf("%w: missing secondary id", ErrMalformedRecord)
	case tcaRaw == "":
		return model.Message{}, nil, "missing_tca", fmt.Errorf("%w: missing tca", ErrMalformedRecord)
	case createdRaw == "":
		return model.Message{}, nil, "missing_created", fmt.Errorf("%w: missing created", ErrMalformedRecord)
	}

	created, err := ParseTime(createdRaw)
	if err != nil {
		return model.Message{}, nil, "bad_created", fmt.Errorf("%w: created: %w", ErrMalformedRecord, err)
	}

	ev := &model.ConjunctionEvent{
		PrimaryID:   primary,
		SecondaryID: secondary,
		TCARaw:      tcaRaw,
	}
	msg := model.Message{
		CDMID:        strings.TrimSpace(raw.CDMID),
		Created:      created,
		Probability:  raw.Probability,
		MissDistance: raw.MissDistance,
	}

	if tca, err := ParseTime(tcaRaw); err == nil {
		ev.Key = EventKey(primary, secondary, tca)
		ev.TCA = tca
		ev.TCAValid = true
		msg.TCA = tca
	} else {
		ev.Key = rawEventKey(primary, secondary, tcaRaw)
	}
	return msg, ev, "", nil
}

// sortHistory orders by Created, breaking ties on fields that make the
// order total so that any input permutation gives the same history.
func sortHistory(h []model.Message) {
	sort.SliceStable(h, func(i, j int) bool {
		a, b := h[i], h[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		if a.CDMID != b.CDMID {
			return a.CDMID < b.CDMID
		}
		if a.Probability != b.Probability {
			return a.Probability < b.Probability
		}
		if !a.TCA.Equal(b.TCA) {
			return a.TCA.Before(b.TCA)
		}
		return missValue(a.MissDistance) < missValue(b.MissDistance)
	})
}

func missValue(m *float64) float64 {
	if m == nil {
		return math.Inf(1)
	}
	return *m
}

// fingerprint identifies a byte-for-byte repeated report.
func fingerprint(key string, m model.Message) string {
	miss := "-"
	if m.MissDistance != nil {
		miss = strconv.FormatFloat(*m.MissDistance, 'g', -1, 64)
	}
	return strings.Join([]string{
		key,
		m.CDMID,
		m.Created.Format(time.RFC3339Nano),
		m.TCA.Format(time.RFC3339Nano),
		strconv.FormatFloat(m.Probability, 'g', -1, 64),
		miss,
	}, "|")
}
