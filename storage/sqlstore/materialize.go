package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/steamset/core"
)

const materialSourceColumns = "appid, is_free, price_overview, pc_requirements, mac_requirements, linux_requirements, achievements"

// ClearMaterialized sets every materialized column of every application to NULL.
func (b *Backend) ClearMaterialized(ctx context.Context) (int64, error) {
	sets := make([]string, len(core.MaterializedColumns))
	for i, col := range core.MaterializedColumns {
		sets[i] = col.Name + " = NULL"
	}
	var cleared int64
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := b.exec(ctx, tx, "UPDATE applications SET "+strings.Join(sets, ", "))
		if err != nil {
			return fmt.Errorf("clear materialized columns: %w", err)
		}
		cleared, err = res.RowsAffected()
		return err
	})
	return cleared, err
}

// SourcePage returns up to limit material sources after cursor, ordered by appid.
func (b *Backend) SourcePage(ctx context.Context, cursor int64, limit int) ([]core.MaterialSource, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := b.query(ctx, b.db,
		"SELECT "+materialSourceColumns+" FROM applications WHERE appid > $1 ORDER BY appid LIMIT $2",
		cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("page material sources: %w", classify(err))
	}
	defer rows.Close()

	page := make([]core.MaterialSource, 0, limit)
	for rows.Next() {
		var src core.MaterialSource
		if err := rows.Scan(sourceTargets(&src)...); err != nil {
			return nil, fmt.Errorf("scan material source: %w", err)
		}
		page = append(page, src)
	}
	return page, classify(rows.Err())
}

// WriteMaterialized updates the materialized columns of each row in one transaction.
// Columns missing from a row's Values are written as NULL.
func (b *Backend) WriteMaterialized(ctx context.Context, rows []core.MaterializedRow) error {
	if len(rows) == 0 {
		return nil
	}
	sets := make([]string, len(core.MaterializedColumns))
	for i, col := range core.MaterializedColumns {
		sets[i] = fmt.Sprintf("%s = $%d", col.Name, i+1)
	}
	query := fmt.Sprintf("UPDATE applications SET %s WHERE appid = $%d",
		strings.Join(sets, ", "), len(core.MaterializedColumns)+1)

	return b.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, b.dialect.rebind(query))
		if err != nil {
			return fmt.Errorf("prepare materialized update: %w", err)
		}
		defer stmt.Close()

		args := make([]any, len(core.MaterializedColumns)+1)
		for _, row := range rows {
			for i, col := range core.MaterializedColumns {
				args[i] = row.Get(col.Name).SQL()
			}
			args[len(args)-1] = row.AppID
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("update materialized columns of %d: %w", row.AppID, err)
			}
		}
		return nil
	})
}

// StoredPage returns material sources along with the values currently stored
// in their materialized columns.
func (b *Backend) StoredPage(ctx context.Context, cursor int64, limit int) ([]core.StoredMaterial, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	names := make([]string, len(core.MaterializedColumns))
	for i, col := range core.MaterializedColumns {
		names[i] = col.Name
	}
	rows, err := b.query(ctx, b.db,
		"SELECT "+materialSourceColumns+", "+strings.Join(names, ", ")+
			" FROM applications WHERE appid > $1 ORDER BY appid LIMIT $2",
		cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("page stored materials: %w", classify(err))
	}
	defer rows.Close()

	page := make([]core.StoredMaterial, 0, limit)
	for rows.Next() {
		var (
			item  core.StoredMaterial
			cells = make([]columnCell, len(core.MaterializedColumns))
		)
		dest := sourceTargets(&item.Source)
		for i := range cells {
			cells[i].kind = core.MaterializedColumns[i].Kind
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan stored material: %w", err)
		}
		item.Stored = core.MaterializedRow{AppID: item.Source.AppID, Values: make(map[string]core.Value)}
		for i, col := range core.MaterializedColumns {
			if !cells[i].value.IsNull() {
				item.Stored.Values[col.Name] = cells[i].value
			}
		}
		page = append(page, item)
	}
	return page, classify(rows.Err())
}

func sourceTargets(src *core.MaterialSource) []any {
	return []any{
		&src.AppID, &src.IsFree,
		fragment{&src.PriceOverview}, fragment{&src.PCRequirements},
		fragment{&src.MacRequirements}, fragment{&src.LinuxRequirements},
		fragment{&src.Achievements},
	}
}

// fragment scans a JSON column that may arrive as text, bytes or NULL.
type fragment struct {
	dst *json.RawMessage
}

func (f fragment) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f.dst = nil
	case string:
		*f.dst = json.RawMessage(v)
	case []byte:
		*f.dst = bytes.Clone(v)
	default:
		return fmt.Errorf("cannot scan %T into a JSON fragment", src)
	}
	return nil
}

// columnCell scans one materialized column into a core.Value of a fixed kind.
type columnCell struct {
	kind  core.ValueKind
	value core.Value
}

func (c *columnCell) Scan(src any) error {
	if src == nil {
		c.value = core.Null()
		return nil
	}
	switch c.kind {
	case core.KindBool:
		var v sql.NullBool
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = core.Bool(v.Bool)
	case core.KindInt:
		var v sql.NullInt64
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = core.Int(v.Int64)
	default:
		var v sql.NullString
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = core.Text(v.String)
	}
	return nil
}
