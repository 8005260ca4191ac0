package embed

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRow indicates that the pager saw an id twice, which would
	// mean a row was embedded more than once.
	ErrDuplicateRow = errors.New("row returned by more than one page")

	// ErrOOMAtMinimumBatch indicates that a single text does not fit into
	// accelerator memory.
	ErrOOMAtMinimumBatch = errors.New("out of memory on a single-item batch")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownTarget indicates an embedding target name that is not defined.
	ErrUnknownTarget = errors.New("unknown embedding target")

	// ErrInvalidConfig indicates an invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
)

// PageError reports a failed page by its id range. Earlier pages stay
// committed; rerunning resumes at FirstID.
type PageError struct {
	Table   string
	FirstID int64
	LastID  int64
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s page [%d, %d]: %v", e.Table, e.FirstID, e.LastID, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
