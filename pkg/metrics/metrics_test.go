package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the default namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "conjunction")
				So(manager.subsystem, ShouldEqual, "forecast")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_ns")
				So(manager.subsystem, ShouldEqual, "test_sub")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.enabled.Load(), ShouldBeFalse)
				So(time.Duration(manager.refreshInterval.Load()), ShouldEqual, 5*time.Second)
				So(manager.customLabels["env"], ShouldEqual, "test")
			})

			Convey("Then collectors are registered under the custom namespace", func() {
				manager.reportsIngested.Add(2)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_ns_test_sub_reports_ingested_total")
			})
		})

		Convey("When empty option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "conjunction")
				So(manager.subsystem, ShouldEqual, "forecast")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.enabled.Load(), ShouldBeTrue)
				So(time.Duration(manager.refreshInterval.Load()), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording every metric", func() {
			Convey("Then no call panics", func() {
				So(func() {
					RecordReportsIngested(3)
					RecordNumericCoercion("PC")
					RecordMalformedRecord("missing_created")
					RecordEventsGrouped(2)
					RecordEmptyHistory()
					UpdateModelAvailable(true)
					UpdateModelAvailable(false)
					RecordForecastLatency(12.5)
					RecordInferenceFailure()
					RecordCertainty(0.8)
					RecordDecision("RED")
					RecordRefresh("ok")
					RecordRefreshLatency(40)
					UpdateTrackedEvents(7)
					RecordStoreError("save_run")
					RecordSourceFetch("file", "ok")
					UpdateQueueSize(1)
					UpdateQueueCapacity(16)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueRejected("full")
					UpdateWorkerCount(2)
					RecordWorkerError()
					RecordWorkerProcessingLatency(3)
					RecordHTTPRequest("/events", "GET", "200")
					RecordHTTPRequestDuration("/events", "GET", "200", 1.5)
					RecordErrorByEndpoint("/forecast", "POST", "bad_request")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
				}, ShouldNotPanic)
			})
		})

		Convey("When looking up a recorded family", func() {
			UpdateTrackedEvents(42)
			f, err := Family("conjunction_forecast_tracked_events")

			Convey("Then the gauge value is visible", func() {
				So(err, ShouldBeNil)
				So(f.GetMetric(), ShouldHaveLength, 1)
				So(f.GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 42)
			})
		})

		Convey("When looking up an unknown family", func() {
			_, err := Family("conjunction_forecast_nope")

			Convey("Then ErrCollectorMissing is returned", func() {
				So(errors.Is(err, ErrCollectorMissing), ShouldBeTrue)
			})
		})

		Convey("When metrics are muted", func() {
			UpdateTrackedEvents(5)
			SetEnabled(false)
			defer SetEnabled(true)

			RecordReportsIngested(0)
			before, err := Family("conjunction_forecast_reports_ingested_total")
			So(err, ShouldBeNil)
			UpdateTrackedEvents(99)
			RecordReportsIngested(10)
			after, err := Family("conjunction_forecast_reports_ingested_total")
			So(err, ShouldBeNil)
			tracked, err := Family("conjunction_forecast_tracked_events")
			So(err, ShouldBeNil)

			Convey("Then helpers leave collectors untouched", func() {
				So(Enabled(), ShouldBeFalse)
				So(after.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, before.GetMetric()[0].GetCounter().GetValue())
				So(tracked.GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 5)
			})
		})

		Convey("When the refresh interval is changed", func() {
			orig := RefreshInterval()
			defer SetRefreshInterval(orig)

			SetRefreshInterval(3 * time.Second)
			SetRefreshInterval(0)

			Convey("Then the last positive value wins", func() {
				So(orig, ShouldEqual, defaultRefreshInterval)
				So(RefreshInterval(), ShouldEqual, 3*time.Second)
			})
		})

		Convey("When reading the registry", func() {
			Convey("Then it is the custom one", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
