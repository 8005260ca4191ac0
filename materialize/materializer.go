// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/metrics"
	"github.com/poiesic/steamset/storage"
)

const (
	// DefaultPageSize is the number of applications derived and written per transaction.
	DefaultPageSize = 2000
	// DefaultMaxIterations bounds the populate and validate loop.
	DefaultMaxIterations = 3
)

// Config holds materialization settings.
type Config struct {
	PageSize      int
	MaxIterations int
	MaxSamples    int
}

// DefaultConfig returns the default settings.
func DefaultConfig() *Config {
	return &Config{
		PageSize:      DefaultPageSize,
		MaxIterations: DefaultMaxIterations,
		MaxSamples:    DefaultMaxSamples,
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch {
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidConfig, c.PageSize)
	case c.MaxIterations <= 0:
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	case c.MaxSamples < 0:
		return fmt.Errorf("%w: max samples must not be negative, got %d", ErrInvalidConfig, c.MaxSamples)
	}
	return nil
}

type options struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
	derive  func(core.MaterialSource) core.MaterializedRow
}

// Option customizes a Materializer, Validator or Loop.
type Option func(*options)

// WithMetrics records row counts, discrepancies and violations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDerive replaces the rule table used by population.
func WithDerive(derive func(core.MaterialSource) core.MaterializedRow) Option {
	return func(o *options) {
		if derive != nil {
			o.derive = derive
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default().With("component", "materialize"),
		derive: Derive,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Materializer writes derived columns for every application.
type Materializer struct {
	repo   storage.MaterializationRepository
	config *Config
	options
}

// NewMaterializer creates a materializer.
func NewMaterializer(repo storage.MaterializationRepository, config *Config, opts ...Option) (*Materializer, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Materializer{repo: repo, config: config, options: buildOptions(opts)}, nil
}

// Populate clears every materialized column and derives them again from the
// stored fragments. It returns the number of rows written. Each page commits
// on its own; a failure leaves earlier pages written and later rows NULL.
func (m *Materializer) Populate(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()
	cleared, err := m.repo.ClearMaterialized(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("cleared materialized columns", "rows", cleared)

	var cursor, written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		page, err := m.repo.SourcePage(ctx, cursor, m.config.PageSize)
		if err != nil {
			return written, err
		}
		if len(page) == 0 {
			break
		}
		rows := make([]core.MaterializedRow, len(page))
		for i, src := range page {
			rows[i] = m.derive(src)
		}
		if err := m.repo.WriteMaterialized(ctx, rows); err != nil {
			return written, fmt.Errorf("write page after appid %d: %w", cursor, err)
		}
		written += int64(len(rows))
		cursor = page[len(page)-1].AppID
		if m.metrics != nil {
			m.metrics.MaterializedRows.Add(float64(len(rows)))
		}
	}
	m.logger.Info("populated materialized columns", "rows", written, "elapsed", time.Since(start))
	return written, nil
}
