package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/conjunction/internal/adapters/http/api"
	"github.com/okian/conjunction/internal/adapters/http/swagger"
	"github.com/okian/conjunction/internal/adapters/repository"
	"github.com/okian/conjunction/internal/adapters/source"
	service "github.com/okian/conjunction/internal/app"
	"github.com/okian/conjunction/internal/config"
	"github.com/okian/conjunction/internal/domain/decision"
	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/grouping"
	"github.com/okian/conjunction/internal/domain/sequence"
	"github.com/okian/conjunction/internal/domain/uncertainty"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		logger.Get().Fatal(ctx, "conjunction service failed", logger.Error(err))
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.SetEnabled(cfg.MetricsEnabled)
	metrics.SetRefreshInterval(cfg.StatsInterval)

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.Stop(stopCtx)
	}()

	if cfg.SourceType != config.SourceNone {
		if _, err := svc.RequestRefresh(ctx, "startup"); err != nil {
			log.Warn(ctx, "initial refresh not queued", logger.Error(err))
		}
	}

	go statsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newService assembles the pipeline and adapters described by cfg. An
// invalid model architecture is fatal; a missing model is not.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, error) {
	m, err := loadModel(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithLoadedModel(m),
		service.WithGrouper(grouping.New(
			grouping.WithLogger(log.Named("grouping")),
			grouping.WithPrimaryObjectTypes(cfg.ObjectTypes()...),
		)),
		service.WithSequenceBuilder(sequence.NewBuilder(sequence.WithLength(cfg.SequenceLength))),
		service.WithEstimator(uncertainty.New(
			uncertainty.WithSamples(cfg.MCSamples),
			uncertainty.WithScale(cfg.CertaintyScale),
		)),
		service.WithDecisionEngine(decision.New(
			decision.WithThresholds(cfg.HighRiskThreshold, cfg.MediumRiskThreshold),
			decision.WithCriticalMissDistance(cfg.CriticalMissDistance),
			decision.WithReactionWindow(cfg.ReactionWindow),
			decision.WithTrendBand(cfg.TrendBand),
		)),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithForecastWorkers(cfg.ForecastWorkers),
		service.WithRefreshInterval(cfg.RefreshInterval),
		service.WithRefreshTimeout(cfg.RefreshTimeout),
	}

	if ds := buildSource(cfg, log); ds != nil {
		opts = append(opts, service.WithSource(ds))
		if cfg.WatchSource && cfg.SourceType == config.SourceFile {
			opts = append(opts, service.WithWatchPath(cfg.SourcePath))
		}
	}

	if cfg.SQLitePath != "" {
		st, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithRunStore(st))
	}

	return service.New(opts...), nil
}

// loadModel returns nil without error when no model is configured or the
// artifact is unavailable; forecasts then come out GRAY.
func loadModel(ctx context.Context, cfg *config.Config, log logger.Logger) (*forecast.Model, error) {
	if cfg.ModelPath == "" {
		log.Warn(ctx, "no model_path configured; every event will be GRAY")
		return nil, nil
	}
	m, err := forecast.Load(cfg.ModelPath)
	switch {
	case errors.Is(err, forecast.ErrInvalidArchitecture):
		return nil, err
	case err != nil:
		log.Error(ctx, "model unavailable; every event will be GRAY",
			logger.String("model_path", cfg.ModelPath), logger.Error(err))
		return nil, nil
	}
	if got := m.Config().SequenceLength; got != cfg.SequenceLength {
		return nil, fmt.Errorf("%w: model sequence_length %d, configured %d",
			forecast.ErrInvalidArchitecture, got, cfg.SequenceLength)
	}
	log.Info(ctx, "model loaded",
		logger.String("model_path", cfg.ModelPath),
		logger.Int("hidden_size", m.Config().HiddenSize),
		logger.Int("num_layers", m.Config().NumLayers),
		logger.Float64("dropout", m.Config().Dropout),
	)
	return m, nil
}

// buildSource returns nil for the none source.
func buildSource(cfg *config.Config, log logger.Logger) source.DataSource {
	switch cfg.SourceType {
	case config.SourceFile:
		return source.NewFileSource(cfg.SourcePath, source.WithFileLogger(log.Named("source")))
	case config.SourceHTTP:
		return source.NewHTTPSource(cfg.SourceURL,
			source.WithTimeout(cfg.SourceTimeout),
			source.WithRateLimit(cfg.SourceRatePerSec),
			source.WithMaxRetries(cfg.SourceMaxRetries),
			source.WithHTTPLogger(log.Named("source")),
		)
	default:
		return nil
	}
}

func newMux(ctx context.Context, svc *service.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, cfg.MaxTopLimit).Register(ctx, mux)
	return mux
}

// statsUpdater refreshes the gauges GetStats maintains.
func statsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
