// Package source fetches conjunction reports from outside the process.
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/conjunction/internal/domain/model"
	"github.com/okian/conjunction/internal/domain/report"
	"github.com/okian/conjunction/pkg/logger"
	"github.com/okian/conjunction/pkg/metrics"
)

// DataSource yields the current batch of reports.
type DataSource interface {
	Fetch(ctx context.Context) ([]model.RawMessage, error)
}

// NameNone labels a service running without a source.
const NameNone = "none"

// Name labels a source in logs, metrics and run history.
func Name(ds DataSource) string {
	if n, ok := ds.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}

// FileSource reads a JSON report feed from disk on every fetch.
type FileSource struct {
	path       string
	normalizer *report.Normalizer
	logger     logger.Logger
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string, opts ...FileOption) *FileSource {
	s := &FileSource{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("source.file")
	}
	if s.normalizer == nil {
		s.normalizer = report.NewNormalizer(report.WithLogger(s.logger))
	}
	return s
}

// Name implements the source label.
func (s *FileSource) Name() string { return "file" }

// Path returns the watched file.
func (s *FileSource) Path() string { return s.path }

// Fetch decodes the file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.RawMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		metrics.RecordSourceFetch(s.Name(), "error")
		return nil, fmt.Errorf("%w: open %s: %w", ErrFetch, s.path, err)
	}
	defer f.Close()

	msgs, err := decode(ctx, f, s.normalizer)
	if err != nil {
		metrics.RecordSourceFetch(s.Name(), "error")
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.path, err)
	}
	metrics.RecordSourceFetch(s.Name(), "ok")
	s.logger.Debug(ctx, "reports read", logger.String("path", s.path), logger.Int("reports", len(msgs)))
	return msgs, nil
}

// Static serves a fixed batch. Useful for one-shot runs and tests.
type Static []model.RawMessage

// Name implements the source label.
func (Static) Name() string { return "static" }

// Fetch returns a copy of the batch.
func (s Static) Fetch(context.Context) ([]model.RawMessage, error) {
	return append([]model.RawMessage(nil), s...), nil
}

func decode(ctx context.Context, r io.Reader, n *report.Normalizer) ([]model.RawMessage, error) {
	recs, err := report.DecodeJSON(r)
	if err != nil {
		return nil, err
	}
	msgs, _ := n.Normalize(ctx, recs)
	return msgs, nil
}
