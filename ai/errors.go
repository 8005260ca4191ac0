package ai

import (
	"errors"
	"strings"
)

var (
	// ErrOutOfMemory indicates that the embedding backend could not fit the
	// batch into accelerator memory. A smaller batch may succeed.
	ErrOutOfMemory = errors.New("embedding backend out of memory")

	// ErrEmptyResponse indicates that the backend returned fewer vectors than texts.
	ErrEmptyResponse = errors.New("embedding backend returned too few vectors")
)

var outOfMemoryMarkers = []string{
	"out of memory",
	"outofmemory",
	"cuda error: out of memory",
	"insufficient memory",
	"failed to allocate",
}

// IsOutOfMemoryMessage reports whether an error message from a remote
// embedding server describes memory exhaustion.
func IsOutOfMemoryMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range outOfMemoryMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
