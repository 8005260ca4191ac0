package core

// LookupMap resolves dimension names to surrogate ids for one import batch.
// It is built once per batch from the store and never mutated afterwards.
type LookupMap struct {
	ids map[DimensionKind]map[string]int64
}

// NewLookupMap copies ids into a new LookupMap.
func NewLookupMap(ids map[DimensionKind]map[string]int64) LookupMap {
	m := LookupMap{ids: make(map[DimensionKind]map[string]int64, len(ids))}
	for kind, names := range ids {
		cp := make(map[string]int64, len(names))
		for name, id := range names {
			cp[name] = id
		}
		m.ids[kind] = cp
	}
	return m
}

// ID returns the id for name under kind.
func (m LookupMap) ID(kind DimensionKind, name string) (int64, bool) {
	id, ok := m.ids[kind][name]
	return id, ok
}

// Len returns the number of names known for kind.
func (m LookupMap) Len(kind DimensionKind) int {
	return len(m.ids[kind])
}
