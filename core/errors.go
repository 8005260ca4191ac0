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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidBatch indicates a Batch failed structural validation.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrInvalidAppID indicates a missing or non-positive appid.
	ErrInvalidAppID = errors.New("appid must be positive")

	// ErrDuplicateAppID indicates an appid appears twice in a batch.
	ErrDuplicateAppID = errors.New("duplicate appid")

	// ErrEmptyName indicates the application name is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrEmptyDimension indicates a blank developer, publisher, genre or category.
	ErrEmptyDimension = errors.New("dimension name cannot be empty")

	// ErrInvalidReviewID indicates a missing or non-positive recommendationid.
	ErrInvalidReviewID = errors.New("recommendationid must be positive")

	// ErrDuplicateReviewID indicates a recommendationid appears twice in a batch.
	ErrDuplicateReviewID = errors.New("duplicate recommendationid")

	// ErrOrphanReview indicates a review whose application is neither in the batch nor in the store.
	ErrOrphanReview = errors.New("review references unknown appid")

	// ErrInvalidFragment indicates a nested fragment is not a JSON object.
	ErrInvalidFragment = errors.New("fragment must be a JSON object")

	// ErrInvalidPrice indicates a negative price or an out-of-range discount.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidRequiredAge indicates a negative required age.
	ErrInvalidRequiredAge = errors.New("required age cannot be negative")

	// ErrUnknownColumn indicates a materialized column name that is not declared.
	ErrUnknownColumn = errors.New("unknown materialized column")
)
