package materialize

import "errors"

var (
	// ErrNotConverged indicates that validation still reported problems
	// after the last loop iteration.
	ErrNotConverged = errors.New("materialized columns did not converge")

	// ErrInvalidConfig indicates an invalid materialization configuration.
	ErrInvalidConfig = errors.New("invalid materialization configuration")
)
