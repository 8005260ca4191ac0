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

// Package storage provides the storage abstraction layer for steamset.
//
// This package defines repository interfaces that decouple the importer,
// the embedding generator and the materializer from the concrete store.
//
// # Backends
//
//   - sqlstore: the relational catalog (PostgreSQL via pgx, or SQLite via
//     modernc.org/sqlite for tests and local runs)
//   - badger: embedding cursor checkpoints
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - LookupRepository: append-only dimension tables
//   - ImportRepository: atomic Phase 2 writes of applications, reviews and associations
//   - EmbeddingRunRepository: embedding provenance
//   - EmbeddingRepository: keyset paging and bulk vector write-back
//   - MaterializationRepository: materialized column population and readback
//   - CheckpointRepository: resumable cursors
//
// # Errors
//
// Backends classify driver errors into ErrConstraintViolation and
// ErrTransient so callers can decide between failing a batch and retrying
// the whole unit of work:
//
//	if errors.Is(err, storage.ErrTransient) {
//	    // retry the unit of work
//	}
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
