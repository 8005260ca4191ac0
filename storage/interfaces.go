package storage

import (
	"context"

	"github.com/poiesic/steamset/core"
)

// LookupRepository manages the dimension tables (developers, publishers,
// genres, categories). Dimension rows are append-only.
type LookupRepository interface {
	// EnsureDimensions inserts every name not already present, ignoring
	// duplicates, in a single transaction.
	// Returns the number of rows actually inserted per kind.
	EnsureDimensions(ctx context.Context, names map[core.DimensionKind][]string) (map[core.DimensionKind]int, error)

	// LoadDimensions reads the ids of the given names.
	// Names that do not exist are absent from the result.
	LoadDimensions(ctx context.Context, names map[core.DimensionKind][]string) (map[core.DimensionKind]map[string]int64, error)
}

// ImportRows is the fully resolved content of one Phase 2 write.
type ImportRows struct {
	Applications []*core.Application
	Reviews      []*core.Review
	Associations []core.Association
}

// WriteStats reports how many rows a Phase 2 write inserted.
type WriteStats struct {
	Applications int
	Reviews      int
	Associations map[core.DimensionKind]int
}

// ImportRepository writes imported records.
type ImportRepository interface {
	// WriteImport inserts applications, reviews and associations in one
	// transaction. Any constraint violation rolls back the whole write and
	// is reported as a *RowError wrapping ErrConstraintViolation.
	WriteImport(ctx context.Context, rows *ImportRows) (*WriteStats, error)

	// ExistingAppIDs returns the subset of ids already present in applications.
	ExistingAppIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
}

// EmbeddingRunRepository tracks embedding provenance.
type EmbeddingRunRepository interface {
	// ResolveRun returns the run for (model, dimension, normalized), creating it if needed.
	ResolveRun(ctx context.Context, model string, dimension int, normalized bool) (core.EmbeddingRun, error)

	// GetRun retrieves a run by id.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, runID int64) (core.EmbeddingRun, error)

	// ListRuns returns all runs ordered by id.
	ListRuns(ctx context.Context) ([]core.EmbeddingRun, error)
}

// EmbeddingRepository pages un-embedded rows and writes vectors back.
type EmbeddingRepository interface {
	// PendingPage returns up to limit rows with id > cursor whose text is
	// present and whose vector is NULL, ordered by id.
	PendingPage(ctx context.Context, target core.EmbeddingTarget, cursor int64, limit int) ([]core.TextRow, error)

	// CountPending counts rows whose text is present and whose vector is NULL.
	CountPending(ctx context.Context, target core.EmbeddingTarget) (int64, error)

	// WriteBack stages the vectors and applies them with a single join-based
	// update that also sets embedding_run_id. One transaction per call.
	WriteBack(ctx context.Context, target core.EmbeddingTarget, runID int64, ids []int64, vectors [][]float32) error
}

// MaterializationRepository reads source fragments and reads/writes the
// materialized columns of applications.
type MaterializationRepository interface {
	// ClearMaterialized sets every materialized column to NULL.
	ClearMaterialized(ctx context.Context) (int64, error)

	// SourcePage returns up to limit sources with appid > cursor, ordered by appid.
	SourcePage(ctx context.Context, cursor int64, limit int) ([]core.MaterialSource, error)

	// WriteMaterialized writes the rows in one transaction.
	WriteMaterialized(ctx context.Context, rows []core.MaterializedRow) error

	// StoredPage returns sources together with their stored materialized values.
	StoredPage(ctx context.Context, cursor int64, limit int) ([]core.StoredMaterial, error)
}

// CheckpointRepository persists embedding cursors between runs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint under its key.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for key.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, key string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for key. Missing keys are not an error.
	DeleteCheckpoint(ctx context.Context, key string) error
}
