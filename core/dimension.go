package core

import "fmt"

// DimensionKind identifies one of the many-to-many attribute tables.
type DimensionKind int

const (
	// DimensionDeveloper is the developers table.
	DimensionDeveloper DimensionKind = iota
	// DimensionPublisher is the publishers table.
	DimensionPublisher
	// DimensionGenre is the genres table.
	DimensionGenre
	// DimensionCategory is the categories table.
	DimensionCategory
)

// DimensionKinds lists every kind in a stable order.
var DimensionKinds = []DimensionKind{
	DimensionDeveloper,
	DimensionPublisher,
	DimensionGenre,
	DimensionCategory,
}

type dimensionSchema struct {
	name     string
	table    string
	junction string
	fk       string
}

var dimensionSchemas = [...]dimensionSchema{
	DimensionDeveloper: {"developer", "developers", "application_developers", "developer_id"},
	DimensionPublisher: {"publisher", "publishers", "application_publishers", "publisher_id"},
	DimensionGenre:     {"genre", "genres", "application_genres", "genre_id"},
	DimensionCategory:  {"category", "categories", "application_categories", "category_id"},
}

func (k DimensionKind) schema() dimensionSchema {
	if k < 0 || int(k) >= len(dimensionSchemas) {
		panic(fmt.Sprintf("core: unknown dimension kind %d", int(k)))
	}
	return dimensionSchemas[k]
}

// String returns the singular name of the kind.
func (k DimensionKind) String() string { return k.schema().name }

// Table returns the lookup table name.
func (k DimensionKind) Table() string { return k.schema().table }

// JunctionTable returns the association table linking applications to the kind.
func (k DimensionKind) JunctionTable() string { return k.schema().junction }

// ForeignKey returns the dimension id column in the junction table.
func (k DimensionKind) ForeignKey() string { return k.schema().fk }
