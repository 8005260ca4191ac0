package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrConstraintViolation indicates a duplicate key, dangling reference or
	// check failure reported by the store.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrTransient indicates a failure that may succeed if the whole unit of
	// work is retried (connection loss, serialization failure, busy database).
	ErrTransient = errors.New("transient storage failure")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnsupportedDriver indicates an unknown database driver name.
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)

// RowError ties a failed write to the table and row that caused it.
type RowError struct {
	Table string
	ID    int64
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.ID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
