package service_test

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/conjunction/internal/adapters/mq/queue"
	"github.com/okian/conjunction/internal/adapters/repository"
	"github.com/okian/conjunction/internal/adapters/source"
	service "github.com/okian/conjunction/internal/app"
	"github.com/okian/conjunction/internal/domain/forecast"
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

const exampleKey = "65004_29891_2026-01-26T16:18:00"

func miss(v float64) *float64 { return &v }

func reports() []model.RawMessage {
	return []model.RawMessage{
		{CDMID: "1", PrimaryID: "65004", SecondaryID: "29891", TCA: "2026-01-26T16:18:30", Created: "2026-01-25T20:00:00", Probability: 1e-5, MissDistance: miss(900)},
		{CDMID: "2", PrimaryID: "65004", SecondaryID: "29891", TCA: "2026-01-26T16:18:30", Created: "2026-01-25T22:00:00", Probability: 1e-3, MissDistance: miss(4000)},
		{CDMID: "3", PrimaryID: "65004", SecondaryID: "11111", TCA: "2026-01-27T08:00:00", Created: "2026-01-26T00:00:00", Probability: 1e-9, MissDistance: miss(20000)},
		{CDMID: "4", PrimaryID: "", SecondaryID: "22222", TCA: "2026-01-27T08:00:00", Created: "2026-01-26T00:00:00", Probability: 1e-2},
	}
}

func zeroModel() *forecast.Model {
	cfg := forecast.Config{InputSize: model.NumFeatures, HiddenSize: 4, NumLayers: 1, SequenceLength: 10, Dropout: 0.2}
	m, err := forecast.NewZero(cfg)
	So(err, ShouldBeNil)
	return m
}

// stubForecaster fails or panics on demand.
type stubForecaster struct {
	err     error
	panicky bool
}

func (f *stubForecaster) Predict(model.Sequence, forecast.Pass) (float64, error) {
	if f.panicky {
		panic("weights exploded")
	}
	return -6, f.err
}

func (f *stubForecaster) PredictBatch(seqs []model.Sequence, pass forecast.Pass) ([]float64, error) {
	out := make([]float64, len(seqs))
	for i, s := range seqs {
		v, err := f.Predict(s, pass)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// stochasticFailure succeeds in the batch pass and fails during sampling.
type stochasticFailure struct{ stubForecaster }

func (f *stochasticFailure) Predict(_ model.Sequence, pass forecast.Pass) (float64, error) {
	if pass.Mode == forecast.Stochastic {
		return 0, errors.New("sampling failed")
	}
	return -6, nil
}

type flakySource struct {
	msgs []model.RawMessage
	fail bool
}

func (f *flakySource) Fetch(context.Context) ([]model.RawMessage, error) {
	if f.fail {
		return nil, source.ErrFetch
	}
	return f.msgs, nil
}

func TestForecastEvents(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service without a model", t, func() {
		svc := service.New()

		Convey("When reports are forecast", func() {
			recs, err := svc.ForecastEvents(ctx, reports())

			Convey("Then every valid event is GRAY and malformed records are dropped", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 2)
				for _, r := range recs {
					So(r.Status, ShouldEqual, model.StatusGray)
					So(r.HasForecast(), ShouldBeFalse)
				}
				So(recs, ShouldContainKey, exampleKey)
			})

			Convey("Then the deadline is still computed", func() {
				r := recs[exampleKey]
				So(r.DeadlineKnown, ShouldBeTrue)
				So(r.HoursToDecision, ShouldAlmostEqual, 12.3, 1e-9)
			})
		})

		Convey("When there are no reports", func() {
			recs, err := svc.ForecastEvents(ctx, nil)

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a service with a zero-weight single-layer model", t, func() {
		svc := service.New(service.WithLoadedModel(zeroModel()))
		So(svc.ModelAvailable(), ShouldBeTrue)

		Convey("When reports are forecast", func() {
			recs, err := svc.ForecastEvents(ctx, reports())
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 2)

			Convey("Then the forecast equals the latest log10 Pc", func() {
				r := recs[exampleKey]
				So(*r.ForecastValue, ShouldAlmostEqual, -3, 1e-12)
				So(r.Status, ShouldEqual, model.StatusRed)
				So(r.Trend, ShouldEqual, model.TrendStable)
			})

			Convey("Then identical stochastic passes give certainty one", func() {
				So(recs[exampleKey].Certainty, ShouldAlmostEqual, 1, 1e-12)
			})

			Convey("Then a remote, unlikely event is GREEN", func() {
				r := recs["65004_11111_2026-01-27T08:00:00"]
				So(*r.ForecastValue, ShouldAlmostEqual, math.Log10(1e-9), 1e-12)
				So(r.Status, ShouldEqual, model.StatusGreen)
			})
		})
	})

	Convey("Given a model whose forward pass fails", t, func() {
		svc := service.New(service.WithModel(&stubForecaster{err: errors.New("bad shape")}))

		Convey("Then the batch yields an empty map without an error", func() {
			recs, err := svc.ForecastEvents(ctx, reports())
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})
	})

	Convey("Given a model whose forward pass panics", t, func() {
		svc := service.New(service.WithModel(&stubForecaster{panicky: true}))

		Convey("Then the panic is contained and the batch is empty", func() {
			recs, err := svc.ForecastEvents(ctx, reports())
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})
	})

	Convey("Given a model that fails only while sampling", t, func() {
		svc := service.New(service.WithModel(&stochasticFailure{}))

		Convey("Then the whole batch is dropped", func() {
			recs, err := svc.ForecastEvents(ctx, reports())
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})
	})

	Convey("Given a cancelled context", t, func() {
		svc := service.New(service.WithLoadedModel(zeroModel()))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Then the cancellation is returned", func() {
			_, err := svc.ForecastEvents(cctx, reports())
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service reading a static source", t, func() {
		svc := service.New(
			service.WithLoadedModel(zeroModel()),
			service.WithSource(source.Static(reports())),
		)

		Convey("When a refresh runs", func() {
			err := svc.Refresh(ctx, queue.Request{ID: "run-1", Reason: "manual"})
			So(err, ShouldBeNil)

			Convey("Then the snapshot is published", func() {
				So(svc.Latest(ctx), ShouldHaveLength, 2)
				e, err := svc.Event(ctx, exampleKey)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)

				top, err := svc.TopN(ctx, 1)
				So(err, ShouldBeNil)
				So(top[0].Record.Key, ShouldEqual, exampleKey)
			})

			Convey("Then the nested per-primary view is available", func() {
				ps := svc.Primaries(ctx)
				So(ps, ShouldHaveLength, 1)
				So(ps[0].Encounters, ShouldEqual, 2)
				enc, err := svc.Encounters(ctx, "65004")
				So(err, ShouldBeNil)
				So(enc, ShouldHaveLength, 2)
			})

			Convey("Then the run is recorded", func() {
				runs, err := svc.Runs(ctx, 10)
				So(err, ShouldBeNil)
				So(runs, ShouldHaveLength, 1)
				So(runs[0].ID, ShouldEqual, "run-1")
				So(runs[0].Events, ShouldEqual, 2)
				So(runs[0].Source, ShouldEqual, "static")
			})

			Convey("Then stats reflect it", func() {
				stats := svc.GetStats()
				So(stats["trackedEvents"], ShouldEqual, 2)
				So(stats["lastRunId"], ShouldEqual, "run-1")
				So(stats["modelAvailable"], ShouldEqual, true)
			})
		})
	})

	Convey("Given a source that fails after a good run", t, func() {
		src := &flakySource{msgs: reports()}
		svc := service.New(service.WithSource(src))
		So(svc.Refresh(ctx, queue.Request{ID: "good", Reason: "manual"}), ShouldBeNil)

		Convey("When the next refresh fails", func() {
			src.fail = true
			err := svc.Refresh(ctx, queue.Request{ID: "bad", Reason: "manual"})

			Convey("Then the error is returned and the run is marked failed", func() {
				So(errors.Is(err, source.ErrFetch), ShouldBeTrue)
				runs, err := svc.Runs(ctx, 1)
				So(err, ShouldBeNil)
				So(runs[0].ID, ShouldEqual, "bad")
				So(runs[0].Error, ShouldNotBeEmpty)
			})

			Convey("Then the previous snapshot is kept", func() {
				So(svc.Latest(ctx), ShouldHaveLength, 2)
				So(svc.GetStats()["lastRunId"], ShouldEqual, "good")
			})
		})
	})

	Convey("Given a service without a source", t, func() {
		svc := service.New()

		Convey("Then a refresh is refused", func() {
			So(errors.Is(svc.Refresh(ctx, queue.NewRequest("manual")), source.ErrNotConfigured), ShouldBeTrue)
		})

		Convey("Then history is unavailable", func() {
			_, err := svc.History(ctx, exampleKey, 5)
			So(errors.Is(err, service.ErrHistoryUnavailable), ShouldBeTrue)
		})

		Convey("Then a bad runs limit is rejected", func() {
			_, err := svc.Runs(ctx, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})
	})

	Convey("Given a service with SQLite run history", t, func() {
		dir, err := os.MkdirTemp("", "conj-runs")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		rs, err := repository.OpenSQLite(ctx, filepath.Join(dir, "runs.db"))
		So(err, ShouldBeNil)
		defer rs.Close()

		svc := service.New(
			service.WithLoadedModel(zeroModel()),
			service.WithSource(source.Static(reports())),
			service.WithRunStore(rs),
		)
		So(svc.Refresh(ctx, queue.Request{ID: "a", Reason: "manual"}), ShouldBeNil)
		So(svc.Refresh(ctx, queue.Request{ID: "b", Reason: "manual"}), ShouldBeNil)

		Convey("Then each run's decision is kept per event", func() {
			hist, err := svc.History(ctx, exampleKey, 10)
			So(err, ShouldBeNil)
			So(hist, ShouldHaveLength, 2)
			So(hist[0].RunID, ShouldEqual, "b")
			So(hist[0].Status, ShouldEqual, model.StatusRed)

			runs, err := svc.Runs(ctx, 10)
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 2)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		svc := service.New(service.WithSource(source.Static(reports())))

		Convey("Then refresh requests are refused", func() {
			_, err := svc.RequestRefresh(context.Background(), "manual")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(
			service.WithSource(source.Static(reports())),
			service.WithWorkerCount(2),
		)
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { svc.Stop(ctx) })

		Convey("When a refresh is requested", func() {
			req, err := svc.RequestRefresh(ctx, "manual")
			So(err, ShouldBeNil)
			So(req.ID, ShouldNotBeEmpty)

			Convey("Then a worker publishes the snapshot", func() {
				deadline := time.Now().Add(5 * time.Second)
				for len(svc.Latest(ctx)) == 0 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
				So(svc.Latest(ctx), ShouldHaveLength, 2)
				runID, _ := svc.GetStats()["lastRunId"].(string)
				So(runID, ShouldEqual, req.ID)
				svc.Stop(ctx)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service with a refresh interval", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := service.New(
			service.WithSource(source.Static(reports())),
			service.WithRefreshInterval(20*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("Then refreshes happen without being requested", func() {
			deadline := time.Now().Add(5 * time.Second)
			for svc.GetStats()["lastRunId"] == "" && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(svc.GetStats()["lastRunId"], ShouldNotBeEmpty)
		})
	})
}
