package embed

import (
	"fmt"
	"time"
)

// Config holds configuration for the embedding generator.
type Config struct {
	// PageSize is the number of rows fetched per keyset page.
	// Each page is one write-back transaction.
	PageSize int

	// BatchSize is the initial number of texts sent to the embedder at once.
	// It is halved automatically when the backend runs out of memory.
	BatchSize int

	// MaxRetries is the number of attempts for each sub-batch embedding call.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// MaxPages stops the loop after this many pages. Zero means no limit.
	MaxPages int

	// ResetCursor discards the stored checkpoint and starts from the lowest id.
	ResetCursor bool

	// ReportInterval is how often to report progress (number of rows).
	ReportInterval int

	// SnapshotMaxAge bounds how old a monitor snapshot may be to appear in
	// progress output.
	SnapshotMaxAge time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       10000,
		BatchSize:      16,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		ReportInterval: 1000,
		SnapshotMaxAge: time.Minute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidConfig, c.PageSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxRetries <= 0:
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max pages must not be negative, got %d", ErrInvalidConfig, c.MaxPages)
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = c.PageSize
	}
	return nil
}
