// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"context"
	"testing"
)

// TestDimension is the vector width of backends created by NewTestBackend.
const TestDimension = 4

// NewMemoryBackend opens and migrates a private in-memory SQLite database.
// Caller must close the backend when done.
func NewMemoryBackend(ctx context.Context, dimension int) (*Backend, error) {
	backend, err := Open(ctx, Options{Driver: DriverSQLite, DSN: ":memory:", Dimension: dimension})
	if err != nil {
		return nil, err
	}
	if err := backend.Migrate(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}

// NewTestBackend returns a migrated in-memory backend with TestDimension
// wide vectors that is closed when the test finishes.
func NewTestBackend(t testing.TB) *Backend {
	t.Helper()
	backend, err := NewMemoryBackend(context.Background(), TestDimension)
	if err != nil {
		t.Fatalf("open test backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}
