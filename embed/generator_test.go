package embed

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/ai/mock"
	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/monitor"
	"github.com/poiesic/steamset/storage"
	"github.com/poiesic/steamset/storage/badger"
	"github.com/poiesic/steamset/storage/sqlstore"
)

// countingRepo wraps a backend and counts write-backs.
type countingRepo struct {
	*sqlstore.Backend
	mu         sync.Mutex
	writeBacks int
	failAt     int
}

func (r *countingRepo) WriteBack(ctx context.Context, target core.EmbeddingTarget, runID int64, ids []int64, vectors [][]float32) error {
	r.mu.Lock()
	r.writeBacks++
	n := r.writeBacks
	r.mu.Unlock()
	if r.failAt > 0 && n == r.failAt {
		return fmt.Errorf("write back %s: %w", target.Table, storage.ErrTransient)
	}
	return r.Backend.WriteBack(ctx, target, runID, ids, vectors)
}

func (r *countingRepo) WriteBacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeBacks
}

// recordingObserver keeps every state transition.
type recordingObserver struct {
	mu     sync.Mutex
	states []State
	splits int
	pages  int
	onPage func()
}

func (o *recordingObserver) StateChanged(_ string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) SubBatchSplit(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.splits++
}

func (o *recordingObserver) PageCommitted(string, PageStats, int64) {
	o.mu.Lock()
	o.pages++
	fn := o.onPage
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (o *recordingObserver) Finished(string, *Result) {}

func seedApplications(t *testing.T, backend *sqlstore.Backend, n int) {
	t.Helper()
	apps := make([]*core.Application, n)
	for i := range apps {
		id := int64(i + 1)
		apps[i] = &core.Application{
			AppID:        id,
			Name:         fmt.Sprintf("app %d", id),
			CombinedText: fmt.Sprintf("app %d is a game about the number %d", id, id),
		}
	}
	_, err := backend.WriteImport(context.Background(), &storage.ImportRows{Applications: apps})
	require.NoError(t, err)
}

func testProvider(normalize bool) (ai.AIProvider, *mock.MockEmbedder) {
	cfg := ai.NewConfig(
		ai.WithEmbeddingModel("test-model"),
		ai.WithDimension(sqlstore.TestDimension),
		ai.WithNormalizeVectors(normalize),
	)
	embedder := mock.NewMockEmbedder(sqlstore.TestDimension)
	return mock.NewMockProviderWithEmbedder(embedder, cfg), embedder
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.PageSize = 4
	cfg.BatchSize = 4
	cfg.RetryDelay = time.Millisecond
	cfg.ReportInterval = 1
	return cfg
}

func TestGenerator_EmbedsEveryPendingRow(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 10)
	repo := &countingRepo{Backend: backend}
	provider, embedder := testProvider(true)

	var out bytes.Buffer
	gen, err := NewGenerator(repo, provider, testConfig(), WithProgress(&out))
	require.NoError(t, err)

	result, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, StateDone, gen.State())
	assert.Equal(t, int64(10), result.Pending)
	assert.Equal(t, int64(10), result.Rows)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, int64(10), result.Cursor)
	assert.Equal(t, 3, repo.WriteBacks())
	assert.Equal(t, 3, embedder.CallCount())
	assert.Contains(t, out.String(), "10/10")

	for id := int64(1); id <= 10; id++ {
		vec, runID, err := backend.Vector(ctx, ApplicationsTarget, id)
		require.NoError(t, err)
		require.Len(t, vec, sqlstore.TestDimension)
		require.NotNil(t, runID)
		assert.Equal(t, result.Run.RunID, *runID)
		assert.InDelta(t, 1.0, magnitude(vec), 1e-5)
	}

	pending, err := backend.CountPending(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestGenerator_SecondRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 5)
	repo := &countingRepo{Backend: backend}
	provider, embedder := testProvider(false)

	gen, err := NewGenerator(repo, provider, testConfig())
	require.NoError(t, err)
	first, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	require.Equal(t, StateDone, first.State)

	writes := repo.WriteBacks()
	calls := embedder.CallCount()

	second, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateDone, second.State)
	assert.Zero(t, second.Rows)
	assert.Zero(t, second.Pages)
	assert.Equal(t, first.Run.RunID, second.Run.RunID)
	assert.Equal(t, writes, repo.WriteBacks())
	assert.Equal(t, calls, embedder.CallCount())
}

func TestGenerator_StateSequence(t *testing.T) {
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 3)
	provider, _ := testProvider(false)
	observer := &recordingObserver{}

	gen, err := NewGenerator(backend, provider, testConfig(), WithObserver(observer))
	require.NoError(t, err)
	_, err = gen.Run(context.Background(), ApplicationsTarget)
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateIdle, StatePaging, StateEmbedding, StateWritingBack,
		StatePaging, StateDone,
	}, observer.states)
}

func TestGenerator_SplitsOnOutOfMemory(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 8)
	provider, embedder := testProvider(false)
	embedder.OOMAbove = 1
	observer := &recordingObserver{}

	cfg := testConfig()
	cfg.PageSize = 8
	cfg.BatchSize = 8
	gen, err := NewGenerator(backend, provider, cfg, WithObserver(observer))
	require.NoError(t, err)

	result, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, int64(8), result.Rows)
	// 8 -> 4,4 -> 2,2,2,2 -> 1 x 8 means 1 + 2 + 4 splits.
	assert.Equal(t, 7, result.Splits)
	assert.Equal(t, 7, observer.splits)

	for id := int64(1); id <= 8; id++ {
		vec, _, err := backend.Vector(ctx, ApplicationsTarget, id)
		require.NoError(t, err)
		assert.Equal(t, mock.DeterministicVector(fmt.Sprintf("app %d is a game about the number %d", id, id), sqlstore.TestDimension), vec)
	}
}

func TestGenerator_SingleItemOOMFailsPage(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 6)
	provider, embedder := testProvider(false)

	cfg := testConfig()
	cfg.PageSize = 3
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if text == "app 5 is a game about the number 5" {
				return nil, ai.ErrOutOfMemory
			}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, sqlstore.TestDimension)
		}
		return out, nil
	}

	gen, err := NewGenerator(backend, provider, cfg)
	require.NoError(t, err)
	result, err := gen.Run(ctx, ApplicationsTarget)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOOMAtMinimumBatch)
	assert.Equal(t, StateFailed, result.State)

	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, "applications", pageErr.Table)
	assert.Equal(t, int64(4), pageErr.FirstID)
	assert.Equal(t, int64(6), pageErr.LastID)

	// The first page stays committed and the failed page is untouched.
	pending, err := backend.CountPending(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
	assert.Equal(t, int64(3), result.Rows)
}

func TestGenerator_WriteBackFailure(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 8)
	repo := &countingRepo{Backend: backend, failAt: 2}
	provider, _ := testProvider(false)

	gen, err := NewGenerator(repo, provider, testConfig())
	require.NoError(t, err)
	result, err := gen.Run(ctx, ApplicationsTarget)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrTransient)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, int64(4), result.Cursor)

	pending, err := backend.CountPending(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pending)

	// Rerunning picks up exactly the rows that were not written.
	repo.failAt = 0
	result, err = gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Rows)
}

func TestGenerator_DimensionMismatch(t *testing.T) {
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 2)
	provider, embedder := testProvider(false)
	embedder.Dimension = sqlstore.TestDimension + 1

	gen, err := NewGenerator(backend, provider, testConfig())
	require.NoError(t, err)
	result, err := gen.Run(context.Background(), ApplicationsTarget)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, StateFailed, result.State)
}

func TestGenerator_RetriesTransientEmbedErrors(t *testing.T) {
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 2)
	provider, embedder := testProvider(false)

	var calls int
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("connection reset")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, sqlstore.TestDimension)
		}
		return out, nil
	}

	gen, err := NewGenerator(backend, provider, testConfig())
	require.NoError(t, err)
	result, err := gen.Run(context.Background(), ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Rows)
	assert.Equal(t, 3, calls)
}

func TestGenerator_MaxPagesAndCheckpointResume(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 10)
	checkpoints, store, err := badger.NewMemoryCheckpointRepository()
	require.NoError(t, err)
	defer store.Close()
	provider, _ := testProvider(false)

	cfg := testConfig()
	cfg.MaxPages = 1
	gen, err := NewGenerator(backend, provider, cfg, WithCheckpoints(checkpoints))
	require.NoError(t, err)

	result, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, result.State)
	assert.Equal(t, 1, result.Pages)

	cp, err := checkpoints.LoadCheckpoint(ctx, CheckpointKey(ApplicationsTarget, result.Run.RunID))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(4), cp.Cursor)
	assert.Equal(t, int64(4), cp.Processed)

	cfg.MaxPages = 0
	result, err = gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, int64(6), result.Rows)

	cp, err = checkpoints.LoadCheckpoint(ctx, CheckpointKey(ApplicationsTarget, result.Run.RunID))
	require.NoError(t, err)
	assert.Nil(t, cp, "a finished pass clears its checkpoint")
}

func TestGenerator_LaterImportBelowCursorIsEmbedded(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	importApps := func(ids ...int64) {
		apps := make([]*core.Application, len(ids))
		for i, id := range ids {
			apps[i] = &core.Application{
				AppID:        id,
				Name:         fmt.Sprintf("app %d", id),
				CombinedText: fmt.Sprintf("app %d is a game", id),
			}
		}
		_, err := backend.WriteImport(ctx, &storage.ImportRows{Applications: apps})
		require.NoError(t, err)
	}
	importApps(100, 200)

	checkpoints, store, err := badger.NewMemoryCheckpointRepository()
	require.NoError(t, err)
	defer store.Close()
	provider, _ := testProvider(false)
	gen, err := NewGenerator(backend, provider, testConfig(), WithCheckpoints(checkpoints))
	require.NoError(t, err)

	result, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	assert.Equal(t, int64(2), result.Rows)

	importApps(150)
	result, err = gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, int64(1), result.Pending)
	assert.Equal(t, int64(1), result.Rows)

	pending, err := backend.CountPending(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestGenerator_ResetCursor(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 3)
	checkpoints, store, err := badger.NewMemoryCheckpointRepository()
	require.NoError(t, err)
	defer store.Close()
	provider, _ := testProvider(false)

	run, err := backend.ResolveRun(ctx, "test-model", sqlstore.TestDimension, false)
	require.NoError(t, err)
	// A stale cursor past every row would otherwise skip them all.
	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Key: CheckpointKey(ApplicationsTarget, run.RunID), RunID: run.RunID, Cursor: 100,
	}))

	cfg := testConfig()
	cfg.ResetCursor = true
	gen, err := NewGenerator(backend, provider, cfg, WithCheckpoints(checkpoints))
	require.NoError(t, err)
	result, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Rows)
}

func TestGenerator_CancelBetweenPages(t *testing.T) {
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 12)
	provider, _ := testProvider(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	observer := &recordingObserver{onPage: cancel}

	gen, err := NewGenerator(backend, provider, testConfig(), WithObserver(observer))
	require.NoError(t, err)
	result, err := gen.Run(ctx, ApplicationsTarget)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, result.State)
	assert.Equal(t, 1, result.Pages)

	// The committed page stays; the rest is still pending.
	pending, err := backend.CountPending(context.Background(), ApplicationsTarget)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pending)
}

func TestGenerator_RunAllEmbedsReviews(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 2)
	text := "great game"
	_, err := backend.WriteImport(ctx, &storage.ImportRows{Reviews: []*core.Review{
		{RecommendationID: 500, AppID: 1, ReviewText: &text},
		{RecommendationID: 501, AppID: 2},
	}})
	require.NoError(t, err)
	provider, _ := testProvider(false)

	gen, err := NewGenerator(backend, provider, testConfig())
	require.NoError(t, err)
	targets, err := Targets("all")
	require.NoError(t, err)

	results, err := gen.RunAll(ctx, targets)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].Rows)
	assert.Equal(t, int64(1), results[1].Rows)
	assert.Equal(t, results[0].Run.RunID, results[1].Run.RunID)

	vec, _, err := backend.Vector(ctx, ReviewsTarget, 501)
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestGenerator_DistinctRunsPerModel(t *testing.T) {
	ctx := context.Background()
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 1)

	plain, _ := testProvider(false)
	normalized, _ := testProvider(true)

	gen, err := NewGenerator(backend, plain, testConfig())
	require.NoError(t, err)
	first, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)

	gen, err = NewGenerator(backend, normalized, testConfig())
	require.NoError(t, err)
	second, err := gen.Run(ctx, ApplicationsTarget)
	require.NoError(t, err)

	assert.NotEqual(t, first.Run.RunID, second.Run.RunID)
	assert.True(t, second.Run.Normalized)
}

type staticSnapshots struct{ snap monitor.Snapshot }

func (s staticSnapshots) Latest(time.Duration) (monitor.Snapshot, bool) { return s.snap, true }

func TestGenerator_ProgressIncludesSnapshot(t *testing.T) {
	backend := sqlstore.NewTestBackend(t)
	seedApplications(t, backend, 2)
	provider, _ := testProvider(false)

	var out bytes.Buffer
	snap := monitor.Snapshot{CPUPercent: 42.5, RAMPercent: 10, SampledAt: time.Now()}
	gen, err := NewGenerator(backend, provider, testConfig(),
		WithProgress(&out), WithSnapshots(staticSnapshots{snap}))
	require.NoError(t, err)
	_, err = gen.Run(context.Background(), ApplicationsTarget)
	require.NoError(t, err)
	assert.Contains(t, out.String(), snap.String())
}

func TestNewGenerator_InvalidConfig(t *testing.T) {
	provider, _ := testProvider(false)
	cfg := DefaultConfig()
	cfg.PageSize = 0
	_, err := NewGenerator(sqlstore.NewTestBackend(t), provider, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
