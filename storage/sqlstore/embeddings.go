package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

const stagingTable = "embedding_stage"

// PendingPage returns up to limit rows after cursor that have text but no vector.
func (b *Backend) PendingPage(ctx context.Context, target core.EmbeddingTarget, cursor int64, limit int) ([]core.TextRow, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %[1]s, %[2]s FROM %[3]s
		WHERE %[1]s > $1 AND %[2]s IS NOT NULL AND %[2]s <> '' AND %[4]s IS NULL
		ORDER BY %[1]s LIMIT $2`,
		target.IDColumn, target.TextColumn, target.Table, target.VectorColumn)
	rows, err := b.query(ctx, b.db, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", target.Table, classify(err))
	}
	defer rows.Close()

	page := make([]core.TextRow, 0, limit)
	for rows.Next() {
		var row core.TextRow
		if err := rows.Scan(&row.ID, &row.Text); err != nil {
			return nil, fmt.Errorf("page %s: %w", target.Table, err)
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("page %s: %w", target.Table, classify(err))
	}
	return page, nil
}

// CountPending counts rows that have text but no vector.
func (b *Backend) CountPending(ctx context.Context, target core.EmbeddingTarget) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %[1]s WHERE %[2]s IS NOT NULL AND %[2]s <> '' AND %[3]s IS NULL",
		target.Table, target.TextColumn, target.VectorColumn)
	var n int64
	if err := b.queryRow(ctx, b.db, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending %s: %w", target.Table, classify(err))
	}
	return n, nil
}

// WriteBack stages the page's vectors in a temporary table and applies them
// with one UPDATE ... FROM that also records the run id.
func (b *Backend) WriteBack(ctx context.Context, target core.EmbeddingTarget, runID int64, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("write back %s: %d ids but %d vectors", target.Table, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != b.dimension {
			return fmt.Errorf("write back %s row %d: vector has %d dimensions, column has %d",
				target.Table, ids[i], len(v), b.dimension)
		}
	}

	return b.WithTx(ctx, func(tx *sql.Tx) error {
		create := fmt.Sprintf("CREATE TEMP TABLE %s (id BIGINT PRIMARY KEY, embedding %s NOT NULL)",
			stagingTable, b.dialect.vector(b.dimension))
		if _, err := b.exec(ctx, tx, create); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		for chunk := range slices.Chunk(indexes(len(ids)), maxParamsPerStatement/2) {
			args := make([]any, 0, len(chunk)*2)
			values := make([]string, len(chunk))
			for i, idx := range chunk {
				args = append(args, ids[idx], pgvector.NewVector(vectors[idx]))
				values[i] = fmt.Sprintf("($%d, $%d)", 2*i+1, 2*i+2)
			}
			insert := fmt.Sprintf("INSERT INTO %s (id, embedding) VALUES %s", stagingTable, strings.Join(values, ", "))
			if _, err := b.exec(ctx, tx, insert, args...); err != nil {
				return fmt.Errorf("stage vectors: %w", err)
			}
		}

		update := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[4]s.embedding, embedding_run_id = $1
			FROM %[4]s WHERE %[1]s.%[3]s = %[4]s.id`,
			target.Table, target.VectorColumn, target.IDColumn, stagingTable)
		res, err := b.exec(ctx, tx, update, runID)
		if err != nil {
			return fmt.Errorf("apply vectors to %s: %w", target.Table, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != int64(len(ids)) {
			b.logger.Warn("write back updated fewer rows than staged",
				"table", target.Table, "staged", len(ids), "updated", n)
		}

		if _, err := b.exec(ctx, tx, "DROP TABLE "+stagingTable); err != nil {
			return fmt.Errorf("drop staging table: %w", err)
		}
		return nil
	})
}

// Vector returns the stored vector and run id of one row.
// Returns storage.ErrNotFound if the row does not exist; a row without a
// vector yields a nil slice.
func (b *Backend) Vector(ctx context.Context, target core.EmbeddingTarget, id int64) ([]float32, *int64, error) {
	query := fmt.Sprintf("SELECT %s, embedding_run_id FROM %s WHERE %s = $1",
		target.VectorColumn, target.Table, target.IDColumn)
	var (
		vec   sql.Null[pgvector.Vector]
		runID sql.NullInt64
	)
	err := b.queryRow(ctx, b.db, query, id).Scan(&vec, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%s row %d: %w", target.Table, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, nil, classify(err)
	}
	var out []float32
	if vec.Valid {
		out = vec.V.Slice()
	}
	var run *int64
	if runID.Valid {
		run = &runID.Int64
	}
	return out, run, nil
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
