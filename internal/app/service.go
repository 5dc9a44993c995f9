// Package service wires the forecasting pipeline to its sources, stores and
// refresh workers, and serves the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/conjunction/internal/adapters/mq/queue"
	"github.com/okian/conjunction/internal/adapters/mq/worker"
	"github.com/okian/conjunction/internal/adapters/repository"
	"github.com/okian/conjunction/internal/adapters/source"
	"github.com/okian/conjunction/internal/domain/decision"
	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/grouping"
	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/sequence"
	"github.com/okian/conjunction/internal/domain/uncertainty"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

const (
	recentRunsKept = 50
	// ScheduleReason labels refreshes raised by the refresh interval.
	ScheduleReason = "schedule"
)

// Service is the pipeline context: every stage and adapter is held here and
// built once; nothing is kept in package state.
type Service struct {
	mu sync.RWMutex

	// Pipeline
	grouper   grouping.Grouper
	builder   *sequence.Builder
	model     Forecaster
	estimator *uncertainty.Estimator
	engine    *decision.Engine

	// Adapters
	source   source.DataSource
	store    repository.Store
	runStore repository.RunStore
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	// Configuration
	workerCount     int
	queueSize       int
	forecastWorkers int
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	watchPath       string

	// State
	started    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	runsMu     sync.Mutex
	recentRuns []repository.Run // newest last

	logger logger.Logger
}

// New constructs a Service. Stages not supplied by options get their
// defaults.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     1,
		queueSize:       16,
		forecastWorkers: runtime.NumCPU(),
		refreshTimeout:  2 * time.Minute,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.grouper == nil {
		s.grouper = grouping.New(grouping.WithLogger(s.logger.Named("grouping")))
	}
	if s.builder == nil {
		length := sequence.DefaultLength
		if cfg, ok := s.model.(interface{ Config() forecast.Config }); ok {
			length = cfg.Config().SequenceLength
		}
		s.builder = sequence.NewBuilder(sequence.WithLength(length))
	}
	if s.estimator == nil {
		s.estimator = uncertainty.New()
	}
	if s.engine == nil {
		s.engine = decision.New()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	metrics.UpdateModelAvailable(s.model != nil)
	return s
}

// ModelAvailable reports whether forecasts can be produced.
func (s *Service) ModelAvailable() bool { return s.model != nil }

// Start creates the refresh queue and workers, and the optional schedule
// and file watch.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting forecast service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithTimeout(s.refreshTimeout),
	)
	s.pool.Start(ctx)

	if s.refreshInterval > 0 {
		s.wg.Add(1)
		go s.schedule(ctx)
	}

	if s.watchPath != "" {
		w := source.NewWatcher(s.watchPath, s.queue, source.WithWatcherLogger(s.logger.Named("watch")))
		if err := w.Start(ctx); err != nil {
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("start watcher: %w", err)
		}
	}

	s.started = true
	s.logger.Info(ctx, "forecast service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("forecastWorkers", s.forecastWorkers),
		logger.Bool("modelAvailable", s.model != nil),
		logger.String("source", s.sourceName()),
	)
	return nil
}

// Stop drains pending refreshes and releases the run store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping forecast service...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if s.runStore != nil {
		if err := s.runStore.Close(); err != nil {
			s.logger.Warn(ctx, "closing run store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "forecast service stopped")
}

func (s *Service) schedule(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			req := queue.NewRequest(ScheduleReason)
			if err := s.queue.Submit(ctx, req); err != nil {
				s.logger.Warn(ctx, "scheduled refresh dropped", logger.Error(err))
			}
		}
	}
}

// RequestRefresh queues a refresh run and returns the request.
func (s *Service) RequestRefresh(ctx context.Context, reason string) (queue.Request, error) {
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()

	if !started {
		return queue.Request{}, ErrNotStarted
	}
	if s.source == nil {
		return queue.Request{}, source.ErrNotConfigured
	}
	req := queue.NewRequest(reason)
	if err := q.Submit(ctx, req); err != nil {
		return queue.Request{}, err
	}
	return req, nil
}

// Refresh fetches the source, forecasts every event and publishes the
// result. It implements worker.Refresher; the request id becomes the run
// id. A failed run keeps the previous snapshot.
func (s *Service) Refresh(ctx context.Context, req queue.Request) error {
	if s.source == nil {
		return source.ErrNotConfigured
	}

	run := repository.Run{
		ID:        req.ID,
		Reason:    req.Reason,
		Source:    s.sourceName(),
		StartedAt: time.Now().UTC(),
	}
	if run.ID == "" {
		run.ID = queue.NewRequest(req.Reason).ID
	}

	recs, err := s.refresh(ctx)
	run.FinishedAt = time.Now().UTC()
	metrics.RecordRefreshLatency(float64(run.FinishedAt.Sub(run.StartedAt).Milliseconds()))

	if err != nil {
		run.Error = err.Error()
		metrics.RecordRefresh(refreshResult(err))
		s.saveRun(ctx, run, nil)
		return err
	}

	run.Events = len(recs)
	s.store.Publish(ctx, run.ID, run.FinishedAt, recs)
	s.saveRun(ctx, run, recs)
	metrics.RecordRefresh("ok")
	s.logger.Info(ctx, "refresh complete",
		logger.String("run_id", run.ID),
		logger.String("reason", run.Reason),
		logger.Int("events", run.Events),
		logger.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
	)
	return nil
}

func (s *Service) refresh(ctx context.Context) (map[string]model.DecisionRecord, error) {
	msgs, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.forecastEvents(ctx, msgs)
}

func refreshResult(err error) string {
	switch {
	case errors.Is(err, source.ErrFetch):
		return "fetch_error"
	case errors.Is(err, ErrInferenceFailure):
		return "inference_failure"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func (s *Service) saveRun(ctx context.Context, run repository.Run, recs map[string]model.DecisionRecord) {
	s.runsMu.Lock()
	s.recentRuns = append(s.recentRuns, run)
	if len(s.recentRuns) > recentRunsKept {
		s.recentRuns = s.recentRuns[len(s.recentRuns)-recentRunsKept:]
	}
	s.runsMu.Unlock()

	if s.runStore == nil {
		return
	}
	// The run is recorded even when ctx has expired.
	if err := s.runStore.SaveRun(context.WithoutCancel(ctx), run, recs); err != nil {
		s.logger.Error(ctx, "saving run failed", logger.String("run_id", run.ID), logger.Error(err))
	}
}

func (s *Service) sourceName() string {
	if s.source == nil {
		return source.NameNone
	}
	return source.Name(s.source)
}

// Latest returns every event of the current snapshot in rank order.
func (s *Service) Latest(ctx context.Context) []repository.Entry {
	return s.store.All(ctx)
}

// Event returns one event of the current snapshot.
func (s *Service) Event(ctx context.Context, key string) (repository.Entry, error) {
	return s.store.Get(ctx, key)
}

// TopN returns the n highest-risk events.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.store.TopN(ctx, n)
}

// Primaries summarizes the current snapshot per primary object.
func (s *Service) Primaries(ctx context.Context) []repository.PrimarySummary {
	return s.store.Primaries(ctx)
}

// Encounters returns the events of one primary object.
func (s *Service) Encounters(ctx context.Context, primaryID string) ([]repository.Entry, error) {
	return s.store.Encounters(ctx, primaryID)
}

// Runs returns the most recent runs, newest first. Without a run store
// the in-process record of recent runs is used.
func (s *Service) Runs(ctx context.Context, limit int) ([]repository.Run, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	if s.runStore != nil {
		return s.runStore.Runs(ctx, limit)
	}

	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	out := make([]repository.Run, 0, min(limit, len(s.recentRuns)))
	for i := len(s.recentRuns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recentRuns[i])
	}
	return out, nil
}

// History returns one event's decisions across stored runs.
func (s *Service) History(ctx context.Context, key string, limit int) ([]repository.HistoryEntry, error) {
	if s.runStore == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.runStore.History(ctx, key, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	runID, at := s.store.Version(ctx)
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"forecastWorkers": s.forecastWorkers,
		"modelAvailable":  s.model != nil,
		"source":          s.sourceName(),
		"sequenceLength":  s.builder.Length(),
		"mcSamples":       s.estimator.Samples(),
		"trackedEvents":   s.store.Count(ctx),
		"lastRunId":       runID,
	}
	if !at.IsZero() {
		stats["lastRunAt"] = at.Format(time.RFC3339)
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
