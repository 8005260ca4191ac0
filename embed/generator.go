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

package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/monitor"
	"github.com/poiesic/steamset/retry"
	"github.com/poiesic/steamset/storage"
)

// Repository is the store the generator pages and writes.
type Repository interface {
	storage.EmbeddingRepository
	storage.EmbeddingRunRepository
}

// SnapshotSource supplies resource utilization for progress output.
// *monitor.Monitor implements it.
type SnapshotSource interface {
	Latest(maxAge time.Duration) (monitor.Snapshot, bool)
}

// Result summarizes one pass over a target.
type Result struct {
	Target  string
	Run     core.EmbeddingRun
	State   State
	Pending int64
	Pages   int
	Rows    int64
	Splits  int
	Cursor  int64
	Elapsed time.Duration
}

// Generator embeds the pending rows of one target at a time.
type Generator struct {
	repo        Repository
	checkpoints storage.CheckpointRepository
	provider    ai.AIProvider
	config      *Config
	observer    Observer
	snapshots   SnapshotSource
	progress    io.Writer
	logger      *slog.Logger
	state       atomic.Int32
}

// Option customizes a Generator.
type Option func(*Generator)

// WithCheckpoints persists the page cursor after every committed page.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(g *Generator) { g.checkpoints = repo }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(g *Generator) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithSnapshots appends the latest fresh monitor snapshot to progress lines.
func WithSnapshots(src SnapshotSource) Option {
	return func(g *Generator) { g.snapshots = src }
}

// WithProgress writes a progress line to w.
func WithProgress(w io.Writer) Option {
	return func(g *Generator) {
		if w != nil {
			g.progress = w
		}
	}
}

// NewGenerator creates a generator. The model name, dimension and
// normalization flag come from the provider's configuration.
func NewGenerator(repo Repository, provider ai.AIProvider, config *Config, opts ...Option) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		repo:     repo,
		provider: provider,
		config:   config,
		observer: noopObserver{},
		progress: io.Discard,
		logger:   slog.Default().With("component", "embed"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// State returns the current state of the page loop.
func (g *Generator) State() State {
	return State(g.state.Load())
}

func (g *Generator) setState(target string, s State) {
	g.state.Store(int32(s))
	g.observer.StateChanged(target, s)
}

// RunAll processes targets in order and stops at the first error.
func (g *Generator) RunAll(ctx context.Context, targets []core.EmbeddingTarget) ([]*Result, error) {
	results := make([]*Result, 0, len(targets))
	for _, target := range targets {
		result, err := g.Run(ctx, target)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
		if result.State == StateStopped {
			break
		}
	}
	return results, nil
}

// Run embeds every pending row of target. It returns with StateDone when a
// page comes back empty, StateStopped when ctx is cancelled between pages
// (the error is ctx.Err()) or the page limit is reached, and StateFailed on
// any other error.
func (g *Generator) Run(ctx context.Context, target core.EmbeddingTarget) (*Result, error) {
	start := time.Now()
	result := &Result{Target: target.Name}
	g.setState(target.Name, StateIdle)

	cfg := g.provider.Config()
	run, err := g.repo.ResolveRun(ctx, cfg.EmbeddingModel, cfg.Dimension, cfg.NormalizeVectors)
	if err != nil {
		return g.finish(result, start, StateFailed), fmt.Errorf("resolve embedding run: %w", err)
	}
	result.Run = run
	logger := g.logger.With("target", target.Name, "run_id", run.RunID)
	logger.Info("using embedding run", "model", run.ModelName, "dimension", run.Dimension, "normalized", run.Normalized)

	cursor, processedBefore, err := g.restoreCursor(ctx, target, run)
	if err != nil {
		return g.finish(result, start, StateFailed), err
	}
	result.Cursor = cursor

	pending, err := g.repo.CountPending(ctx, target)
	if err != nil {
		return g.finish(result, start, StateFailed), fmt.Errorf("count pending rows: %w", err)
	}
	result.Pending = pending
	logger.Info("starting embedding pass", "pending", pending, "cursor", cursor,
		"page_size", g.config.PageSize, "batch_size", g.config.BatchSize)

	tracker := NewProgressTracker(g.progress, target.Name, pending, g.config.ReportInterval, g.snapshotLine)
	tracker.Start()
	defer tracker.Finish()

	pager := NewPager(g.repo, target, g.config.PageSize, cursor)
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("stopping between pages", "reason", err, "cursor", pager.Cursor())
			return g.finish(result, start, StateStopped), err
		}
		if g.config.MaxPages > 0 && result.Pages >= g.config.MaxPages {
			logger.Info("page limit reached", "pages", result.Pages, "cursor", pager.Cursor())
			return g.finish(result, start, StateStopped), nil
		}

		// A started page always runs to commit.
		stats, page, err := g.processPage(context.WithoutCancel(ctx), target, run, pager)
		if err != nil {
			logger.Error("page failed", "error", err, "cursor", pager.Cursor())
			return g.finish(result, start, StateFailed), err
		}
		if len(page) == 0 {
			logger.Info("no pending rows remain", "pages", result.Pages, "rows", result.Rows)
			// Rows imported later may sort below the cursor, so a finished
			// pass starts the next one from the beginning.
			g.clearCursor(ctx, logger, target, run)
			return g.finish(result, start, StateDone), nil
		}

		pager.Advance(page)
		result.Pages++
		result.Rows += int64(stats.Rows)
		result.Splits += stats.Splits
		result.Cursor = pager.Cursor()

		g.saveCursor(ctx, logger, target, run, pager.Cursor(), processedBefore+result.Rows)
		g.observer.PageCommitted(target.Name, stats, pager.Cursor())
		tracker.Increment(stats.Rows)
		logger.Info("page committed",
			"first_id", stats.FirstID, "last_id", stats.LastID, "rows", stats.Rows,
			"splits", stats.Splits, "duration", stats.Duration.Round(time.Millisecond))
	}
}

func (g *Generator) processPage(ctx context.Context, target core.EmbeddingTarget, run core.EmbeddingRun, pager *Pager) (PageStats, []core.TextRow, error) {
	started := time.Now()

	g.setState(target.Name, StatePaging)
	page, err := pager.Next(ctx)
	if err != nil {
		return PageStats{}, nil, fmt.Errorf("fetch %s page after %d: %w", target.Table, pager.Cursor(), err)
	}
	if len(page) == 0 {
		return PageStats{}, nil, nil
	}
	stats := PageStats{FirstID: page[0].ID, LastID: page[len(page)-1].ID, Rows: len(page)}
	pageErr := func(err error) error {
		return &PageError{Table: target.Table, FirstID: stats.FirstID, LastID: stats.LastID, Err: err}
	}

	g.setState(target.Name, StateEmbedding)
	texts := make([]string, len(page))
	ids := make([]int64, len(page))
	for i, row := range page {
		texts[i] = row.Text
		ids[i] = row.ID
	}
	vectors, err := splitEmbed(ctx, texts, g.config.BatchSize, g.embedWithRetry, func(size int) {
		stats.Splits++
		g.logger.Warn("embedding backend out of memory, halving sub-batch",
			"target", target.Name, "size", size)
		g.observer.SubBatchSplit(target.Name, size)
	})
	if err != nil {
		return stats, nil, pageErr(err)
	}

	for i, v := range vectors {
		if len(v) != run.Dimension {
			return stats, nil, pageErr(fmt.Errorf("%w: row %d has %d, run %d expects %d",
				ErrDimensionMismatch, ids[i], len(v), run.RunID, run.Dimension))
		}
		if run.Normalized {
			vectors[i] = NormalizeVector(v)
		}
	}

	g.setState(target.Name, StateWritingBack)
	if err := g.repo.WriteBack(ctx, target, run.RunID, ids, vectors); err != nil {
		return stats, nil, pageErr(err)
	}

	stats.Duration = time.Since(started)
	return stats, page, nil
}

// embedWithRetry retries transient embedder failures. Out-of-memory errors
// are returned at once so the splitter can halve the batch.
func (g *Generator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(ctx, func() error {
		var err error
		vectors, err = g.provider.Embedder().EmbedTexts(ctx, texts)
		return err
	}, g.config.MaxRetries, g.config.RetryDelay, retry.Unless(ai.ErrOutOfMemory), retry.WithLogger(g.logger))
	return vectors, err
}

func (g *Generator) restoreCursor(ctx context.Context, target core.EmbeddingTarget, run core.EmbeddingRun) (int64, int64, error) {
	if g.checkpoints == nil {
		return 0, 0, nil
	}
	key := CheckpointKey(target, run.RunID)
	if g.config.ResetCursor {
		if err := g.checkpoints.DeleteCheckpoint(ctx, key); err != nil {
			return 0, 0, fmt.Errorf("reset checkpoint %s: %w", key, err)
		}
		return 0, 0, nil
	}
	cp, err := g.checkpoints.LoadCheckpoint(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	if cp == nil {
		return 0, 0, nil
	}
	g.logger.Info("resuming from checkpoint", "key", key, "cursor", cp.Cursor, "processed", cp.Processed)
	return cp.Cursor, cp.Processed, nil
}

// saveCursor records progress. A lost checkpoint only costs re-reading
// already embedded ids, which the pending filter skips, so failures are logged.
func (g *Generator) saveCursor(ctx context.Context, logger *slog.Logger, target core.EmbeddingTarget, run core.EmbeddingRun, cursor, processed int64) {
	if g.checkpoints == nil {
		return
	}
	cp := &core.Checkpoint{
		Key:       CheckpointKey(target, run.RunID),
		RunID:     run.RunID,
		Cursor:    cursor,
		Processed: processed,
	}
	if err := g.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		logger.Warn("failed to save checkpoint", "key", cp.Key, "error", err)
	}
}

func (g *Generator) clearCursor(ctx context.Context, logger *slog.Logger, target core.EmbeddingTarget, run core.EmbeddingRun) {
	if g.checkpoints == nil {
		return
	}
	key := CheckpointKey(target, run.RunID)
	if err := g.checkpoints.DeleteCheckpoint(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("failed to clear checkpoint", "key", key, "error", err)
	}
}

func (g *Generator) snapshotLine() (string, bool) {
	if g.snapshots == nil {
		return "", false
	}
	snap, ok := g.snapshots.Latest(g.config.SnapshotMaxAge)
	if !ok {
		return "", false
	}
	return snap.String(), true
}

func (g *Generator) finish(result *Result, start time.Time, state State) *Result {
	result.State = state
	result.Elapsed = time.Since(start)
	g.setState(result.Target, state)
	g.observer.Finished(result.Target, result)
	return result
}
