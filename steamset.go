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

// Package steamset wires the catalog store, the checkpoint store and the
// embedding provider into one handle for the import, embed and
// materialize stages.
package steamset

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/ai/openai"
	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/embed"
	"github.com/poiesic/steamset/ingestion"
	"github.com/poiesic/steamset/materialize"
	"github.com/poiesic/steamset/metrics"
	"github.com/poiesic/steamset/storage/badger"
	"github.com/poiesic/steamset/storage/sqlstore"
)

// Catalog is an open steamset database.
type Catalog struct {
	store       *sqlstore.Backend
	cpBackend   *badger.Backend
	checkpoints *badger.CheckpointRepository
	provider    ai.AIProvider
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Catalog.
type Option func(*options)

type options struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	checkpointDir string
	maxOpenConns  int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// WithAIConfig sets the embedding provider configuration. Its dimension
// also sizes the vector columns.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) { o.aiConfig = cfg }
}

// WithProvider uses an existing embedding provider instead of creating an
// OpenAI-compatible one. The catalog closes it.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithCheckpointDir stores embedding checkpoints in dir. Without it
// checkpoints live in memory and do not survive the process.
func WithCheckpointDir(dir string) Option {
	return func(o *options) { o.checkpointDir = dir }
}

// WithMaxOpenConns caps the relational connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// WithMetrics instruments every stage created by the catalog.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open connects to the relational store named by driver and dsn, opens the
// checkpoint store and creates the embedding provider.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Catalog, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.aiConfig == nil {
		if o.provider != nil {
			cfg := o.provider.Config()
			o.aiConfig = &cfg
		} else {
			o.aiConfig = ai.DefaultConfig()
		}
	}

	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:       driver,
		DSN:          dsn,
		Dimension:    o.aiConfig.Dimension,
		MaxOpenConns: o.maxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	cpBackend, err := badger.OpenBackend(o.checkpointDir, o.checkpointDir == "")
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		provider, err = openai.NewProvider(o.aiConfig)
		if err != nil {
			cpBackend.Close()
			store.Close()
			return nil, err
		}
	}

	return &Catalog{
		store:       store,
		cpBackend:   cpBackend,
		checkpoints: badger.NewCheckpointRepository(cpBackend),
		provider:    provider,
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

// Close releases the provider and both stores.
func (c *Catalog) Close() error {
	var errs []error
	if err := c.provider.Close(); err != nil {
		c.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := c.cpBackend.Close(); err != nil {
		c.logger.Error("error closing checkpoint store", "err", err)
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("error closing catalog store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Migrate creates or upgrades the relational schema.
func (c *Catalog) Migrate(ctx context.Context) error {
	return c.store.Migrate(ctx)
}

// Store returns the relational backend.
func (c *Catalog) Store() *sqlstore.Backend {
	return c.store
}

// Checkpoints returns the embedding checkpoint repository.
func (c *Catalog) Checkpoints() *badger.CheckpointRepository {
	return c.checkpoints
}

// Provider returns the embedding provider.
func (c *Catalog) Provider() ai.AIProvider {
	return c.provider
}

// Runs lists the registered embedding runs.
func (c *Catalog) Runs(ctx context.Context) ([]core.EmbeddingRun, error) {
	return c.store.ListRuns(ctx)
}

// NewImporter creates an importer over the catalog store.
func (c *Catalog) NewImporter(cfg *ingestion.Config, opts ...ingestion.Option) (*ingestion.Importer, error) {
	base := []ingestion.Option{ingestion.WithLogger(c.logger.With("component", "ingestion"))}
	if c.metrics != nil {
		base = append(base, ingestion.WithMetrics(c.metrics))
	}
	return ingestion.NewImporter(c.store, cfg, append(base, opts...)...)
}

// NewGenerator creates an embedding generator that checkpoints every page.
func (c *Catalog) NewGenerator(cfg *embed.Config, opts ...embed.Option) (*embed.Generator, error) {
	base := []embed.Option{embed.WithCheckpoints(c.checkpoints)}
	if c.metrics != nil {
		base = append(base, embed.WithObserver(embed.NewMetricsObserver(c.metrics)))
	}
	return embed.NewGenerator(c.store, c.provider, cfg, append(base, opts...)...)
}

// NewMaterializeLoop creates the populate and validate loop.
func (c *Catalog) NewMaterializeLoop(cfg *materialize.Config, opts ...materialize.Option) (*materialize.Loop, error) {
	base := []materialize.Option{materialize.WithLogger(c.logger.With("component", "materialize"))}
	if c.metrics != nil {
		base = append(base, materialize.WithMetrics(c.metrics))
	}
	return materialize.NewLoop(c.store, cfg, append(base, opts...)...)
}

// NewValidator creates a stand-alone validator.
func (c *Catalog) NewValidator(cfg *materialize.Config, opts ...materialize.Option) (*materialize.Validator, error) {
	base := []materialize.Option{materialize.WithLogger(c.logger.With("component", "materialize"))}
	if c.metrics != nil {
		base = append(base, materialize.WithMetrics(c.metrics))
	}
	return materialize.NewValidator(c.store, cfg, append(base, opts...)...)
}
