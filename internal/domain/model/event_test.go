package model_test

import (
	"testing"

	model "github.com/okian/conjunction/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSequence(t *testing.T) {
	convey.Convey("Given a Sequence", t, func() {
		convey.Convey("When it is empty", func() {
			seq := model.Sequence{}

			convey.Convey("Then Latest returns a zero row", func() {
				convey.So(seq.Len(), convey.ShouldEqual, 0)
				convey.So(seq.Latest(), convey.ShouldResemble, model.FeatureVector{})
			})
		})

		convey.Convey("When it has rows", func() {
			seq := model.Sequence{Rows: []model.FeatureVector{
				{0, 0, 0},
				{-3.1, 3.5, 16.8},
			}}

			convey.Convey("Then Latest returns the last row", func() {
				convey.So(seq.Len(), convey.ShouldEqual, 2)
				convey.So(seq.Latest()[model.FeatureLogProbability], convey.ShouldEqual, -3.1)
				convey.So(seq.Latest()[model.FeatureHoursToTCA], convey.ShouldEqual, 16.8)
			})
		})
	})
}

func TestStatusSeverity(t *testing.T) {
	convey.Convey("Given the traffic-light statuses", t, func() {
		convey.Convey("Then severity orders RED > YELLOW > GREEN > GRAY", func() {
			convey.So(model.StatusRed.Severity(), convey.ShouldBeGreaterThan, model.StatusYellow.Severity())
			convey.So(model.StatusYellow.Severity(), convey.ShouldBeGreaterThan, model.StatusGreen.Severity())
			convey.So(model.StatusGreen.Severity(), convey.ShouldBeGreaterThan, model.StatusGray.Severity())
		})

		convey.Convey("Then a GRAY record has no forecast", func() {
			rec := model.DecisionRecord{Status: model.StatusGray}
			convey.So(rec.HasForecast(), convey.ShouldBeFalse)
		})
	})
}
