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

// Package embed generates vector embeddings for rows that have text but no
// vector, one keyset page at a time.
//
// # Pipeline
//
// For each target the Generator resolves the embedding run, restores the
// page cursor from the checkpoint store, and then loops:
//
//	PAGING        fetch ids > cursor that still need a vector
//	EMBEDDING     embed the page in sub-batches, halving on out-of-memory
//	WRITING_BACK  stage the vectors and apply them in one UPDATE
//
// until a page comes back empty (DONE) or an error stops it (FAILED).
//
// Rows leave the pending filter as soon as their page commits, so paging
// uses the last seen id rather than an offset. An offset would skip rows
// whenever earlier pages shrink the filtered set.
//
// # Cancellation
//
// Cancellation is honored between pages only. A page that has started runs
// to commit on a context that ignores cancellation, so no page is ever half
// written.
package embed
