package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/okian/conjunction/internal/adapters/source"
	service "github.com/okian/conjunction/internal/app"
	"github.com/okian/conjunction/internal/domain/forecast"
	"github.com/okian/conjunction/internal/domain/grouping"
	"github.com/okian/conjunction/internal/domain/uncertainty"
	"github.com/okian/conjunction/pkg/logger"
)

type forecastOptions struct {
	input       string
	modelPath   string
	mcSamples   int
	objectTypes []string
	workers     int
	pretty      bool
}

func newForecastCmd() *cobra.Command {
	o := &forecastOptions{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast every event in a report file",
		Long: `Read a JSON report feed, forecast each conjunction event and print the
decisions keyed by event key. Without --model every event is GRAY.`,
		Example: "  conjctl forecast --input cdm.json --model model/manifest.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForecast(cmd, o)
		},
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "JSON report file")
	cmd.Flags().StringVarP(&o.modelPath, "model", "m", "", "Model manifest (manifest.yaml)")
	cmd.Flags().IntVar(&o.mcSamples, "mc-samples", uncertainty.DefaultSamples, "Stochastic passes per event")
	cmd.Flags().StringSliceVar(&o.objectTypes, "object-types", nil, "Primary object types to keep, e.g. PAYLOAD")
	cmd.Flags().IntVar(&o.workers, "workers", runtime.NumCPU(), "Events forecast concurrently")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "Indent the JSON output")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runForecast(cmd *cobra.Command, o *forecastOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get().Named("conjctl")

	m, err := loadForecastModel(ctx, o.modelPath, log)
	if err != nil {
		return err
	}

	svc := service.New(
		service.WithLogger(log),
		service.WithLoadedModel(m),
		service.WithGrouper(grouping.New(
			grouping.WithLogger(log.Named("grouping")),
			grouping.WithPrimaryObjectTypes(o.objectTypes...),
		)),
		service.WithEstimator(uncertainty.New(uncertainty.WithSamples(o.mcSamples))),
		service.WithForecastWorkers(o.workers),
	)

	msgs, err := source.NewFileSource(o.input, source.WithFileLogger(log.Named("source"))).Fetch(ctx)
	if err != nil {
		return err
	}
	out, err := svc.ForecastEvents(ctx, msgs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

// loadForecastModel returns nil when path is empty or the artifact cannot be
// read, so events fall back to GRAY. A malformed architecture is an error.
func loadForecastModel(ctx context.Context, path string, log logger.Logger) (*forecast.Model, error) {
	if path == "" {
		return nil, nil
	}
	m, err := forecast.Load(path)
	switch {
	case errors.Is(err, forecast.ErrInvalidArchitecture):
		return nil, fmt.Errorf("load model: %w", err)
	case err != nil:
		log.Warn(ctx, "model unavailable; every event will be GRAY",
			logger.String("model", path), logger.Error(err))
		return nil, nil
	}
	return m, nil
}
