package grouping_test

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"testing"
	"time"

	grouping "github.com/okian/conjunction/internal/domain/grouping"
	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func miss(v float64) *float64 { return &v }

func sampleReports() []model.RawMessage {
	return []model.RawMessage{
		{CDMID: "1", PrimaryID: "65004", SecondaryID: "29891", TCA: "2026-01-26T16:18:38.552000", Created: "2026-01-25 23:30:17.000000", Probability: 0.00078, MissDistance: miss(35)},
		{CDMID: "2", PrimaryID: "65004", SecondaryID: "29891", TCA: "2026-01-26T16:18:38", Created: "2026-01-25 23:40:00", Probability: 0.00079, MissDistance: miss(30)},
		{CDMID: "3", PrimaryID: "65004", SecondaryID: "11111", TCA: "2026-01-27T02:00:05Z", Created: "2026-01-26T00:00:00Z", Probability: 1e-7},
		{CDMID: "4", PrimaryID: "40000", SecondaryID: "29891", TCA: "2026-01-26T16:18:59", Created: "2026-01-25T22:00:00", Probability: 0},
		{CDMID: "5", PrimaryID: "40000", SecondaryID: "29891", TCA: "2026-01-26T16:18:01", Created: "2026-01-25T21:00:00", Probability: 2e-6},
	}
}

func TestGroup(t *testing.T) {
	Convey("Given a grouper", t, func() {
		g := grouping.New()
		ctx := context.Background()

		Convey("When grouping two reports for the same encounter", func() {
			events := g.Group(ctx, sampleReports()[:2])

			Convey("Then they share the minute-floored key", func() {
				So(events, ShouldHaveLength, 1)
				ev, ok := events["65004_29891_2026-01-26T16:18:00"]
				So(ok, ShouldBeTrue)
				So(ev.TCAValid, ShouldBeTrue)
				So(ev.TCA.Equal(time.Date(2026, 1, 26, 16, 18, 0, 0, time.UTC)), ShouldBeTrue)
				So(ev.History, ShouldHaveLength, 2)
			})

			Convey("Then history is ascending by creation time", func() {
				ev := events["65004_29891_2026-01-26T16:18:00"]
				So(ev.History[0].Probability, ShouldEqual, 0.00078)
				So(ev.History[1].Probability, ShouldEqual, 0.00079)
				So(ev.History[0].Created.Before(ev.History[1].Created), ShouldBeTrue)
			})
		})

		Convey("When TCAs differ by seconds within one minute", func() {
			events := g.Group(ctx, sampleReports()[3:])

			Convey("Then they are one event", func() {
				So(events, ShouldHaveLength, 1)
				So(events, ShouldContainKey, "40000_29891_2026-01-26T16:18:00")
			})
		})

		Convey("When the input order is permuted", func() {
			base := g.Group(ctx, sampleReports())
			rng := rand.New(rand.NewSource(7))

			Convey("Then every permutation groups identically", func() {
				for i := 0; i < 20; i++ {
					shuffled := sampleReports()
					rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
					So(g.Group(ctx, shuffled), ShouldResemble, base)
				}
			})
		})

		Convey("When required fields are missing", func() {
			reports := []model.RawMessage{
				{CDMID: "a", SecondaryID: "2", TCA: "2026-01-26T16:18:38", Created: "2026-01-25T00:00:00"},
				{CDMID: "b", PrimaryID: "1", TCA: "2026-01-26T16:18:38", Created: "2026-01-25T00:00:00"},
				{CDMID: "c", PrimaryID: "1", SecondaryID: "2", Created: "2026-01-25T00:00:00"},
				{CDMID: "d", PrimaryID: "1", SecondaryID: "2", TCA: "2026-01-26T16:18:38"},
				{CDMID: "e", PrimaryID: "1", SecondaryID: "2", TCA: "2026-01-26T16:18:38", Created: "yesterday"},
			}

			Convey("Then every malformed record is dropped", func() {
				So(g.Group(ctx, reports), ShouldBeEmpty)
			})
		})

		Convey("When the TCA cannot be parsed", func() {
			events := g.Group(ctx, []model.RawMessage{
				{CDMID: "x", PrimaryID: "1", SecondaryID: "2", TCA: "soon", Created: "2026-01-25T00:00:00", Probability: 1e-5},
			})

			Convey("Then the raw string is used in the key", func() {
				ev, ok := events["1_2_soon"]
				So(ok, ShouldBeTrue)
				So(ev.TCAValid, ShouldBeFalse)
				So(ev.TCARaw, ShouldEqual, "soon")
				So(ev.History, ShouldHaveLength, 1)
			})
		})

		Convey("When a report is delivered twice", func() {
			reports := sampleReports()[:2]
			reports = append(reports, reports[0])
			events := g.Group(ctx, reports)

			Convey("Then the duplicate is dropped", func() {
				So(events["65004_29891_2026-01-26T16:18:00"].History, ShouldHaveLength, 2)
			})
		})

		Convey("When filtering by primary object type", func() {
			g := grouping.New(grouping.WithPrimaryObjectTypes("payload"))
			reports := sampleReports()[:2]
			reports[0].PrimaryObjectType = "PAYLOAD"
			reports[1].PrimaryObjectType = "DEBRIS"
			events := g.Group(ctx, reports)

			Convey("Then other types are skipped", func() {
				So(events["65004_29891_2026-01-26T16:18:00"].History, ShouldHaveLength, 1)
			})
		})
	})
}

func TestParseTime(t *testing.T) {
	Convey("Given upstream timestamp shapes", t, func() {
		want := time.Date(2026, 1, 25, 23, 30, 17, 0, time.UTC)

		Convey("Then every supported layout parses to UTC", func() {
			for _, s := range []string{
				"2026-01-25 23:30:17.000000",
				"2026-01-25T23:30:17",
				"2026-01-25T23:30:17Z",
				"2026-01-26T01:30:17+02:00",
				"2026-01-25T23:30:17.000",
			} {
				got, err := grouping.ParseTime(s)
				So(err, ShouldBeNil)
				So(got.Equal(want), ShouldBeTrue)
				So(got.Location(), ShouldEqual, time.UTC)
			}
		})

		Convey("Then garbage is rejected", func() {
			_, err := grouping.ParseTime("next tuesday")
			So(errors.Is(err, grouping.ErrTimestamp), ShouldBeTrue)
		})
	})
}

func TestEventKey(t *testing.T) {
	Convey("Given an encounter", t, func() {
		tca := time.Date(2026, 1, 26, 16, 18, 38, 552000000, time.UTC)

		Convey("Then the key floors TCA to the minute", func() {
			So(grouping.EventKey("65004", "29891", tca), ShouldEqual, "65004_29891_2026-01-26T16:18:00")
		})
	})
}
