package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

// ResolveRun returns the run for (model, dimension, normalized), creating it
// on first use. The no-op DO UPDATE makes RETURNING yield the existing row.
func (b *Backend) ResolveRun(ctx context.Context, model string, dimension int, normalized bool) (core.EmbeddingRun, error) {
	if err := b.checkOpen(); err != nil {
		return core.EmbeddingRun{}, err
	}
	run := core.EmbeddingRun{ModelName: model, Dimension: dimension, Normalized: normalized}
	var created timestamp
	err := b.queryRow(ctx, b.db, `
		INSERT INTO embedding_runs (model_name, dimension, normalized, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, dimension, normalized)
		DO UPDATE SET model_name = excluded.model_name
		RETURNING run_id, created_at`,
		model, dimension, normalized, time.Now().UTC(),
	).Scan(&run.RunID, &created)
	if err != nil {
		return core.EmbeddingRun{}, fmt.Errorf("resolve embedding run: %w", classify(err))
	}
	run.CreatedAt = created.Time
	return run, nil
}

// GetRun retrieves a run by id.
func (b *Backend) GetRun(ctx context.Context, runID int64) (core.EmbeddingRun, error) {
	if err := b.checkOpen(); err != nil {
		return core.EmbeddingRun{}, err
	}
	run, err := scanRun(b.queryRow(ctx, b.db,
		"SELECT run_id, model_name, dimension, normalized, created_at FROM embedding_runs WHERE run_id = $1",
		runID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmbeddingRun{}, fmt.Errorf("embedding run %d: %w", runID, storage.ErrNotFound)
	}
	if err != nil {
		return core.EmbeddingRun{}, fmt.Errorf("get embedding run %d: %w", runID, classify(err))
	}
	return run, nil
}

// ListRuns returns all runs ordered by id.
func (b *Backend) ListRuns(ctx context.Context) ([]core.EmbeddingRun, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := b.query(ctx, b.db,
		"SELECT run_id, model_name, dimension, normalized, created_at FROM embedding_runs ORDER BY run_id")
	if err != nil {
		return nil, fmt.Errorf("list embedding runs: %w", classify(err))
	}
	defer rows.Close()

	var runs []core.EmbeddingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list embedding runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, classify(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (core.EmbeddingRun, error) {
	var (
		run     core.EmbeddingRun
		created timestamp
	)
	if err := row.Scan(&run.RunID, &run.ModelName, &run.Dimension, &run.Normalized, &created); err != nil {
		return core.EmbeddingRun{}, err
	}
	run.CreatedAt = created.Time
	return run, nil
}

// timestamp scans a time that the SQLite driver may hand back as text.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	// Go's time.String adds a monotonic clock suffix that no layout accepts.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
