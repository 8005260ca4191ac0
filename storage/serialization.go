package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/steamset/core"
)

// MarshalCheckpoint serializes a Checkpoint to bytes.
// Layout: key, run id, cursor, processed, updated-at (unix micro).
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	updated := checkpoint.UpdatedAt.UnixMicro()
	size := ord.String.Size(checkpoint.Key) +
		varint.Int64.Size(checkpoint.RunID) +
		varint.Int64.Size(checkpoint.Cursor) +
		varint.Int64.Size(checkpoint.Processed) +
		varint.Int64.Size(updated)

	buf := make([]byte, size)
	n := ord.String.Marshal(checkpoint.Key, buf)
	n += varint.Int64.Marshal(checkpoint.RunID, buf[n:])
	n += varint.Int64.Marshal(checkpoint.Cursor, buf[n:])
	n += varint.Int64.Marshal(checkpoint.Processed, buf[n:])
	varint.Int64.Marshal(updated, buf[n:])
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	if len(data) == 0 {
		return nil, ErrTruncatedData
	}

	var (
		checkpoint core.Checkpoint
		updated    int64
		offset     int
	)

	key, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrSerializationFailed, err)
	}
	checkpoint.Key = key
	offset += n

	for _, field := range []struct {
		name string
		dst  *int64
	}{
		{"run id", &checkpoint.RunID},
		{"cursor", &checkpoint.Cursor},
		{"processed", &checkpoint.Processed},
		{"updated at", &updated},
	} {
		if offset >= len(data) {
			return nil, fmt.Errorf("%w: %s", ErrTruncatedData, field.name)
		}
		v, n, err := varint.Int64.Unmarshal(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, field.name, err)
		}
		*field.dst = v
		offset += n
	}

	checkpoint.UpdatedAt = time.UnixMicro(updated).UTC()
	return &checkpoint, nil
}
