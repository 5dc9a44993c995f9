package sequence_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/conjunction/internal/domain/model"
	sequence "github.com/okian/conjunction/internal/domain/sequence"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

func event(n int) *model.ConjunctionEvent {
	tca := time.Date(2026, 1, 26, 16, 18, 38, 0, time.UTC)
	start := time.Date(2026, 1, 25, 23, 30, 0, 0, time.UTC)
	ev := &model.ConjunctionEvent{
		Key:         "65004_29891_2026-01-26T16:18:00",
		PrimaryID:   "65004",
		SecondaryID: "29891",
		TCA:         tca,
		TCAValid:    true,
	}
	for i := 0; i < n; i++ {
		ev.History = append(ev.History, model.Message{
			CDMID:        string(rune('a' + i)),
			TCA:          tca,
			Created:      start.Add(time.Duration(i) * 10 * time.Minute),
			Probability:  float64(i+1) * 1e-5,
			MissDistance: ptr(float64(100 - i)),
		})
	}
	return ev
}

func TestBuild(t *testing.T) {
	Convey("Given a builder with L=5", t, func() {
		b := sequence.NewBuilder(sequence.WithLength(5))

		Convey("When the history has one report", func() {
			seq, _, err := b.Build(event(1))

			Convey("Then there are four leading zero rows and one real row", func() {
				So(err, ShouldBeNil)
				So(seq.Len(), ShouldEqual, 5)
				for i := 0; i < 4; i++ {
					So(seq.Rows[i], ShouldResemble, model.FeatureVector{})
				}
				So(seq.Rows[4], ShouldNotResemble, model.FeatureVector{})
			})
		})

		Convey("When the history has two reports", func() {
			ev := event(2)
			ev.History[0].Probability = 0.00078
			ev.History[0].MissDistance = ptr(35)
			ev.History[1].Probability = 0.00079
			ev.History[1].MissDistance = ptr(30)
			seq, meta, err := b.Build(ev)

			Convey("Then three zero rows precede the real rows", func() {
				So(err, ShouldBeNil)
				So(seq.Rows[2], ShouldResemble, model.FeatureVector{})
				So(seq.Rows[3][model.FeatureLogProbability], ShouldAlmostEqual, math.Log10(0.00078), 1e-12)
				So(seq.Rows[4][model.FeatureLogMissDistance], ShouldAlmostEqual, math.Log1p(30), 1e-12)
			})

			Convey("Then hours to TCA are measured from each report", func() {
				first := ev.TCA.Sub(ev.History[0].Created).Hours()
				So(seq.Rows[3][model.FeatureHoursToTCA], ShouldAlmostEqual, first, 1e-9)
			})

			Convey("Then metadata describes the latest report", func() {
				So(meta.Key, ShouldEqual, ev.Key)
				So(meta.LatestProbability, ShouldEqual, 0.00079)
				So(*meta.LatestMissDistance, ShouldEqual, 30)
				So(*meta.MinMissDistance, ShouldEqual, 30)
				So(meta.MaxProbability, ShouldEqual, 0.00079)
				So(meta.MessageCount, ShouldEqual, 2)
				So(meta.ProbabilityHistory, ShouldResemble, []float64{0.00078, 0.00079})
				So(meta.LatestCreated.Equal(ev.History[1].Created), ShouldBeTrue)
				So(meta.TCA.Equal(time.Date(2026, 1, 26, 16, 18, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the history is longer than L", func() {
			ev := event(8)
			seq, _, err := b.Build(ev)

			Convey("Then only the latest five remain in order", func() {
				So(err, ShouldBeNil)
				So(seq.Len(), ShouldEqual, 5)
				for i := 0; i < 5; i++ {
					want := math.Log10(ev.History[3+i].Probability)
					So(seq.Rows[i][model.FeatureLogProbability], ShouldAlmostEqual, want, 1e-12)
				}
			})
		})

		Convey("When the history arrives out of order", func() {
			ev := event(3)
			ev.History[0], ev.History[2] = ev.History[2], ev.History[0]
			seq, meta, _ := b.Build(ev)

			Convey("Then rows are chronological", func() {
				So(seq.Rows[4][model.FeatureLogProbability], ShouldAlmostEqual, math.Log10(3e-5), 1e-12)
				So(meta.LatestProbability, ShouldAlmostEqual, 3e-5, 1e-15)
			})
		})

		Convey("When values need floors and sentinels", func() {
			ev := event(1)
			ev.History[0].Probability = 0
			ev.History[0].MissDistance = nil
			seq, meta, _ := b.Build(ev)

			Convey("Then Pc is floored and miss distance uses the sentinel", func() {
				So(seq.Latest()[model.FeatureLogProbability], ShouldAlmostEqual, -30, 1e-9)
				So(seq.Latest()[model.FeatureLogMissDistance], ShouldAlmostEqual, math.Log1p(1e5), 1e-9)
				So(meta.LatestMissDistance, ShouldBeNil)
			})
		})

		Convey("When TCA could not be parsed", func() {
			ev := event(1)
			ev.TCAValid = false
			ev.History[0].TCA = time.Time{}
			seq, meta, _ := b.Build(ev)

			Convey("Then hours to TCA is zero", func() {
				So(seq.Latest()[model.FeatureHoursToTCA], ShouldEqual, 0)
				So(meta.TCAValid, ShouldBeFalse)
			})
		})

		Convey("When the history is empty", func() {
			_, _, err := b.Build(event(0))

			Convey("Then ErrEmptyHistory is returned", func() {
				So(errors.Is(err, sequence.ErrEmptyHistory), ShouldBeTrue)
			})
		})
	})
}

func TestBuildAll(t *testing.T) {
	Convey("Given several events", t, func() {
		b := sequence.NewBuilder(sequence.WithLength(5))
		a := event(2)
		a.Key = "b_key"
		c := event(3)
		c.Key = "a_key"
		events := map[string]*model.ConjunctionEvent{"b_key": a, "a_key": c, "empty": {Key: "empty"}}

		Convey("When building twice", func() {
			first, skipped := b.BuildAll(events)
			second, _ := b.BuildAll(events)

			Convey("Then output is key-sorted and identical", func() {
				So(first, ShouldHaveLength, 2)
				So(first[0].Meta.Key, ShouldEqual, "a_key")
				So(first[1].Meta.Key, ShouldEqual, "b_key")
				So(second, ShouldResemble, first)
				So(skipped, ShouldResemble, []string{"empty"})
			})
		})
	})
}
