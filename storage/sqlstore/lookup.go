package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/steamset/core"
)

// maxParamsPerStatement keeps IN lists and multi-row VALUES below the
// SQLite and PostgreSQL parameter limits.
const maxParamsPerStatement = 500

// EnsureDimensions inserts missing dimension names with insert-or-ignore
// semantics. All kinds are written in one transaction.
func (b *Backend) EnsureDimensions(ctx context.Context, names map[core.DimensionKind][]string) (map[core.DimensionKind]int, error) {
	inserted := make(map[core.DimensionKind]int, len(names))
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range core.DimensionKinds {
			distinct := distinctNames(names[kind])
			for chunk := range slices.Chunk(distinct, maxParamsPerStatement) {
				args := make([]any, len(chunk))
				values := make([]string, len(chunk))
				for i, name := range chunk {
					args[i] = name
					values[i] = fmt.Sprintf("($%d)", i+1)
				}
				query := fmt.Sprintf("INSERT INTO %s (name) VALUES %s ON CONFLICT (name) DO NOTHING",
					kind.Table(), strings.Join(values, ", "))
				res, err := b.exec(ctx, tx, query, args...)
				if err != nil {
					return fmt.Errorf("insert %s: %w", kind.Table(), err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("insert %s: %w", kind.Table(), err)
				}
				inserted[kind] += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// LoadDimensions reads the ids of the given names.
func (b *Backend) LoadDimensions(ctx context.Context, names map[core.DimensionKind][]string) (map[core.DimensionKind]map[string]int64, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	result := make(map[core.DimensionKind]map[string]int64, len(names))
	for _, kind := range core.DimensionKinds {
		ids := make(map[string]int64)
		result[kind] = ids
		distinct := distinctNames(names[kind])
		for chunk := range slices.Chunk(distinct, maxParamsPerStatement) {
			args := make([]any, len(chunk))
			for i, name := range chunk {
				args[i] = name
			}
			query := fmt.Sprintf("SELECT id, name FROM %s WHERE name IN (%s)",
				kind.Table(), placeholders(1, len(chunk)))
			if err := b.scanDimensions(ctx, query, args, ids); err != nil {
				return nil, fmt.Errorf("load %s: %w", kind.Table(), err)
			}
		}
	}
	return result, nil
}

func (b *Backend) scanDimensions(ctx context.Context, query string, args []any, into map[string]int64) error {
	rows, err := b.query(ctx, b.db, query, args...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		into[name] = id
	}
	return classify(rows.Err())
}

func distinctNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
