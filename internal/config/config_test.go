package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/conjunction/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.SourceType, convey.ShouldEqual, config.SourceNone)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 16)
			convey.So(cfg.ForecastWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.SequenceLength, convey.ShouldEqual, 10)
			convey.So(cfg.MCSamples, convey.ShouldEqual, 20)
			convey.So(cfg.CertaintyScale, convey.ShouldEqual, 100)
			convey.So(cfg.HighRiskThreshold, convey.ShouldEqual, -4)
			convey.So(cfg.MediumRiskThreshold, convey.ShouldEqual, -5)
			convey.So(cfg.CriticalMissDistance, convey.ShouldEqual, 1000)
			convey.So(cfg.ReactionWindow, convey.ShouldEqual, 6*time.Hour)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.StatsInterval, convey.ShouldEqual, 10*time.Second)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid values", t, func() {
		cases := map[string]func(*config.Config){
			"queue":      func(c *config.Config) { c.QueueSize = 0 },
			"samples":    func(c *config.Config) { c.MCSamples = 1 },
			"thresholds": func(c *config.Config) { c.HighRiskThreshold = -6 },
			"miss":       func(c *config.Config) { c.CriticalMissDistance = 0 },
			"window":     func(c *config.Config) { c.ReactionWindow = -time.Hour },
			"file":       func(c *config.Config) { c.SourceType = config.SourceFile },
			"http":       func(c *config.Config) { c.SourceType = config.SourceHTTP },
			"kind":       func(c *config.Config) { c.SourceType = "ftp" },
			"stats":      func(c *config.Config) { c.StatsInterval = 0 },
		}

		convey.Convey("Then each is rejected as ErrInvalidConfig", func() {
			for _, mutate := range cases {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})
	})

	convey.Convey("Given an object type filter", t, func() {
		cfg := config.New()
		cfg.PrimaryObjectTypes = " PAYLOAD, ,debris "

		convey.Convey("Then it splits into trimmed entries", func() {
			convey.So(cfg.ObjectTypes(), convey.ShouldResemble, []string{"PAYLOAD", "debris"})
		})
	})
}
