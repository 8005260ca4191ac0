package ingestion

import (
	"context"
	"fmt"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

// LookupResult is the outcome of Phase 1.
type LookupResult struct {
	Lookups core.LookupMap
	// Inserted counts the dimension rows that did not exist before, per kind.
	Inserted map[core.DimensionKind]int
}

// CollectDimensions returns the distinct dimension names referenced by apps,
// per kind, in first-seen order.
func CollectDimensions(apps []*core.Application) map[core.DimensionKind][]string {
	out := make(map[core.DimensionKind][]string, len(core.DimensionKinds))
	for _, kind := range core.DimensionKinds {
		seen := make(map[string]struct{})
		for _, app := range apps {
			for _, name := range app.Dimensions(kind) {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				out[kind] = append(out[kind], name)
			}
		}
	}
	return out
}

// PopulateLookups inserts every dimension name the batch references, ignoring
// names already present, then reads back the id of each one. The returned
// map is built fresh for the batch.
func PopulateLookups(ctx context.Context, repo storage.LookupRepository, apps []*core.Application) (*LookupResult, error) {
	names := CollectDimensions(apps)

	inserted, err := repo.EnsureDimensions(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("populate lookup tables: %w", err)
	}
	ids, err := repo.LoadDimensions(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load lookup ids: %w", err)
	}

	lookups := core.NewLookupMap(ids)
	for kind, list := range names {
		for _, name := range list {
			if _, ok := lookups.ID(kind, name); !ok {
				return nil, fmt.Errorf("%w: %s %q", ErrUnresolvedDimension, kind, name)
			}
		}
	}
	return &LookupResult{Lookups: lookups, Inserted: inserted}, nil
}

// Associations resolves every application's dimension names to junction rows.
func Associations(apps []*core.Application, lookups core.LookupMap) ([]core.Association, error) {
	var out []core.Association
	for _, app := range apps {
		for _, kind := range core.DimensionKinds {
			seen := make(map[int64]struct{})
			for _, name := range app.Dimensions(kind) {
				id, ok := lookups.ID(kind, name)
				if !ok {
					return nil, fmt.Errorf("%w: %s %q for appid %d", ErrUnresolvedDimension, kind, name, app.AppID)
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, core.Association{Kind: kind, AppID: app.AppID, DimensionID: id})
			}
		}
	}
	return out, nil
}
