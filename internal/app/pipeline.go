package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/sequence"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

// Forecaster is the model capability the pipeline needs.
type Forecaster interface {
	forecast.Predictor
	PredictBatch(seqs []model.Sequence, pass forecast.Pass) ([]float64, error)
}

// ForecastEvents groups the messages into events and returns one decision
// per event, keyed by event key. An inference failure is logged and yields
// an empty map; the only error returned is context cancellation.
func (s *Service) ForecastEvents(ctx context.Context, msgs []model.RawMessage) (map[string]model.DecisionRecord, error) {
	recs, err := s.forecastEvents(ctx, msgs)
	if errors.Is(err, ErrInferenceFailure) {
		return map[string]model.DecisionRecord{}, nil
	}
	return recs, err
}

func (s *Service) forecastEvents(ctx context.Context, msgs []model.RawMessage) (map[string]model.DecisionRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordForecastLatency(float64(time.Since(start).Milliseconds()))
	}()

	events := s.grouper.Group(ctx, msgs)
	results, skipped := s.builder.BuildAll(events)
	for _, key := range skipped {
		metrics.RecordEmptyHistory()
		s.logger.Warn(ctx, "event skipped", logger.String("key", key), logger.Error(sequence.ErrEmptyHistory))
	}

	out := make(map[string]model.DecisionRecord, len(results))
	if len(results) == 0 {
		return out, ctx.Err()
	}

	if s.model == nil {
		for _, r := range results {
			s.record(out, s.engine.Decide(r.Meta, nil))
		}
		s.logger.Debug(ctx, "no model loaded, all events GRAY", logger.Int("events", len(out)))
		return out, nil
	}

	forecasts, err := s.infer(ctx, results)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.RecordInferenceFailure()
		s.logger.Error(ctx, "inference failed, batch dropped",
			logger.Int("events", len(results)),
			logger.Error(err),
		)
		return nil, err
	}

	for i, r := range results {
		fc := forecasts[i]
		metrics.RecordCertainty(fc.Certainty)
		s.record(out, s.engine.Decide(r.Meta, &fc))
	}
	return out, nil
}

func (s *Service) record(out map[string]model.DecisionRecord, rec model.DecisionRecord) {
	out[rec.Key] = rec
	metrics.RecordDecision(string(rec.Status))
}

// infer runs the deterministic batch pass and then the per-event
// uncertainty estimates, at most forecastWorkers at a time.
func (s *Service) infer(ctx context.Context, results []sequence.Result) ([]model.ForecastResult, error) {
	seqs := make([]model.Sequence, len(results))
	for i, r := range results {
		seqs[i] = r.Sequence
	}

	var values []float64
	if err := guard(func() error {
		var err error
		values, err = s.model.PredictBatch(seqs, forecast.Pass{Mode: forecast.Deterministic})
		return err
	}); err != nil {
		return nil, err
	}

	out := make([]model.ForecastResult, len(results))
	errs := make([]error, len(results))
	sem := make(chan struct{}, s.forecastWorkers)
	var wg sync.WaitGroup

	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			errs[idx] = guard(func() error {
				c, err := s.estimator.Estimate(ctx, s.model, seqs[idx])
				if err != nil {
					return err
				}
				out[idx] = model.ForecastResult{Value: values[idx], Certainty: c}
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", results[i].Meta.Key, err)
		}
	}
	return out, nil
}

// guard converts a panic in fn into an ErrInferenceFailure.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInferenceFailure, r)
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, ErrInferenceFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}
	return nil
}
