package embed

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

// Pager walks the pending rows of a target in increasing id order.
//
// Next fetches rows with id > cursor; Advance moves the cursor past a page
// once it is committed. Every id handed out is recorded in a bitmap, and an
// id seen twice is reported as ErrDuplicateRow.
type Pager struct {
	repo     storage.EmbeddingRepository
	target   core.EmbeddingTarget
	pageSize int
	cursor   int64
	seen     *roaring64.Bitmap
}

// NewPager creates a pager that starts after cursor.
func NewPager(repo storage.EmbeddingRepository, target core.EmbeddingTarget, pageSize int, cursor int64) *Pager {
	return &Pager{
		repo:     repo,
		target:   target,
		pageSize: pageSize,
		cursor:   cursor,
		seen:     roaring64.New(),
	}
}

// Cursor returns the id after which the next page starts.
func (p *Pager) Cursor() int64 {
	return p.cursor
}

// Next returns the next page. An empty page means the target is done.
func (p *Pager) Next(ctx context.Context) ([]core.TextRow, error) {
	rows, err := p.repo.PendingPage(ctx, p.target, p.cursor, p.pageSize)
	if err != nil {
		return nil, err
	}
	prev := p.cursor
	for _, row := range rows {
		if row.ID <= prev {
			return nil, fmt.Errorf("%w: %s id %d not above %d", ErrDuplicateRow, p.target.Table, row.ID, prev)
		}
		if row.ID >= 0 && p.seen.Contains(uint64(row.ID)) {
			return nil, fmt.Errorf("%w: %s id %d", ErrDuplicateRow, p.target.Table, row.ID)
		}
		prev = row.ID
	}
	for _, row := range rows {
		if row.ID >= 0 {
			p.seen.Add(uint64(row.ID))
		}
	}
	return rows, nil
}

// Advance moves the cursor to the last id of a committed page.
func (p *Pager) Advance(page []core.TextRow) {
	if len(page) > 0 {
		p.cursor = page[len(page)-1].ID
	}
}

// Processed returns a copy of the set of ids handed out so far.
func (p *Pager) Processed() *roaring64.Bitmap {
	return p.seen.Clone()
}
