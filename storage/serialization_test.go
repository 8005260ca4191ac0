package storage

import (
	"testing"
	"time"

	"github.com/poiesic/steamset/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalCheckpoint(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name       string
		checkpoint *core.Checkpoint
	}{
		{
			name: "fresh cursor",
			checkpoint: &core.Checkpoint{
				Key:       "embed:applications:run=1",
				RunID:     1,
				UpdatedAt: now,
			},
		},
		{
			name: "large appid cursor",
			checkpoint: &core.Checkpoint{
				Key:       "embed:reviews:run=7",
				RunID:     7,
				Cursor:    204_830_011_223,
				Processed: 1_500_000,
				UpdatedAt: now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalCheckpoint(tt.checkpoint)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalCheckpoint(data)
			require.NoError(t, err)
			assert.Equal(t, tt.checkpoint.Key, decoded.Key)
			assert.Equal(t, tt.checkpoint.RunID, decoded.RunID)
			assert.Equal(t, tt.checkpoint.Cursor, decoded.Cursor)
			assert.Equal(t, tt.checkpoint.Processed, decoded.Processed)
			assert.True(t, tt.checkpoint.UpdatedAt.Equal(decoded.UpdatedAt))
		})
	}
}

func TestUnmarshalCheckpoint_Invalid(t *testing.T) {
	t.Run("empty data", func(t *testing.T) {
		_, err := UnmarshalCheckpoint([]byte{})
		assert.ErrorIs(t, err, ErrTruncatedData)
	})

	t.Run("truncated after key", func(t *testing.T) {
		data := MarshalCheckpoint(&core.Checkpoint{Key: "k", RunID: 3, Cursor: 10})
		_, err := UnmarshalCheckpoint(data[:2])
		assert.Error(t, err)
	})
}

func TestRowError(t *testing.T) {
	err := &RowError{Table: "applications", ID: 570, Err: ErrConstraintViolation}
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.Contains(t, err.Error(), "applications row 570")
}
