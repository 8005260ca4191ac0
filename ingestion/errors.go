package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when no store is provided.
	ErrStoreRequired = errors.New("store required")

	// ErrMalformedPayload indicates a source file that is not a JSON array of records.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidRequiredAge indicates a required_age that is neither a number
	// nor a string starting with one.
	ErrInvalidRequiredAge = errors.New("required_age is not numeric")

	// ErrUnresolvedDimension indicates a dimension name that has no id after
	// the lookup tables were populated.
	ErrUnresolvedDimension = errors.New("unresolved dimension name")

	// ErrInvalidConfig indicates an invalid importer configuration.
	ErrInvalidConfig = errors.New("invalid import configuration")
)
