package report

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given a normalizer", t, func() {
		n := NewNormalizer()
		ctx := context.Background()

		Convey("When every field is well formed", func() {
			msgs, stats := n.Normalize(ctx, []Record{{
				CDMID:        Str("1"),
				PrimaryID:    Num(65004),
				SecondaryID:  Str("29891"),
				TCA:          Str("2026-01-26T16:18:38.552000"),
				Created:      Str("2026-01-25 23:30:17.000000"),
				Probability:  Str("0.00078"),
				MissDistance: Num(32.5),
			}})

			Convey("Then values pass through", func() {
				So(msgs, ShouldHaveLength, 1)
				So(stats.Records, ShouldEqual, 1)
				So(stats.ProbabilityCoerced, ShouldEqual, 0)
				So(msgs[0].PrimaryID, ShouldEqual, "65004")
				So(msgs[0].Probability, ShouldAlmostEqual, 0.00078)
				So(*msgs[0].MissDistance, ShouldEqual, 32.5)
				So(msgs[0].Created, ShouldEqual, "2026-01-25 23:30:17.000000")
			})
		})

		Convey("When numeric fields are blank", func() {
			msgs, stats := n.Normalize(ctx, []Record{{CDMID: Str("2"), Probability: Str("  ")}})

			Convey("Then Pc falls back to zero and miss distance is absent without counting a coercion", func() {
				So(msgs[0].Probability, ShouldEqual, ProbabilityFallback)
				So(msgs[0].MissDistance, ShouldBeNil)
				So(stats.ProbabilityCoerced, ShouldEqual, 0)
				So(stats.MissDistanceCoerced, ShouldEqual, 0)
			})
		})

		Convey("When numeric fields hold garbage", func() {
			msgs, stats := n.Normalize(ctx, []Record{
				{CDMID: Str("3"), Probability: Str("n/a"), MissDistance: Str("far")},
				{CDMID: Str("4"), Probability: Str("NaN"), MissDistance: Str("Inf")},
			})

			Convey("Then the record is kept with coerced values", func() {
				So(msgs, ShouldHaveLength, 2)
				So(msgs[0].Probability, ShouldEqual, 0)
				So(msgs[0].MissDistance, ShouldBeNil)
				So(msgs[1].Probability, ShouldEqual, 0)
				So(msgs[1].MissDistance, ShouldBeNil)
				So(stats.ProbabilityCoerced, ShouldEqual, 2)
				So(stats.MissDistanceCoerced, ShouldEqual, 2)
			})
		})
	})
}
