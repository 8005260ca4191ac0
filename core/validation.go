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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Problem is a single validation failure tied to the record that caused it.
type Problem struct {
	Entity string // "application" or "review"
	ID     int64
	Err    error
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %d: %v", p.Entity, p.ID, p.Err)
}

// BatchValidationError lists every structural problem found in a batch.
type BatchValidationError struct {
	Problems []Problem
}

func (e *BatchValidationError) Error() string {
	const maxShown = 5
	parts := make([]string, 0, maxShown)
	for i, p := range e.Problems {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("and %d more", len(e.Problems)-maxShown))
			break
		}
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%v: %d problem(s): %s", ErrInvalidBatch, len(e.Problems), strings.Join(parts, "; "))
}

// Unwrap exposes ErrInvalidBatch and each problem's cause to errors.Is.
func (e *BatchValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Problems)+1)
	errs = append(errs, ErrInvalidBatch)
	for _, p := range e.Problems {
		errs = append(errs, p.Err)
	}
	return errs
}

// ValidateBatch checks the structural integrity of a batch before anything
// touches the store.
//
// Validation rules:
//   - appid must be positive and unique within the batch
//   - name must not be empty
//   - dimension names must not be empty
//   - required age must not be negative
//   - fragments, when present, must be JSON objects (screenshots, movies and
//     package_groups may also be arrays)
//   - price_overview must not carry negative prices or a discount outside 0..100
//   - recommendationid must be positive and unique within the batch
//   - every review must reference an appid in the batch or in KnownAppIDs
//
// NOT validated (derived later):
//   - materialized columns
//   - embeddings
func ValidateBatch(batch *Batch) error {
	if batch == nil {
		return &BatchValidationError{Problems: []Problem{{Entity: "batch", Err: fmt.Errorf("batch is nil")}}}
	}

	var problems []Problem
	appIDs := make(map[int64]struct{}, len(batch.Applications))

	for _, app := range batch.Applications {
		if app == nil {
			problems = append(problems, Problem{Entity: "application", Err: fmt.Errorf("application is nil")})
			continue
		}
		for _, err := range ValidateApplication(app) {
			problems = append(problems, Problem{Entity: "application", ID: app.AppID, Err: err})
		}
		if app.AppID > 0 {
			if _, dup := appIDs[app.AppID]; dup {
				problems = append(problems, Problem{Entity: "application", ID: app.AppID, Err: ErrDuplicateAppID})
			}
			appIDs[app.AppID] = struct{}{}
		}
	}

	reviewIDs := make(map[int64]struct{}, len(batch.Reviews))
	for _, review := range batch.Reviews {
		if review == nil {
			problems = append(problems, Problem{Entity: "review", Err: fmt.Errorf("review is nil")})
			continue
		}
		if review.RecommendationID <= 0 {
			problems = append(problems, Problem{Entity: "review", ID: review.RecommendationID, Err: ErrInvalidReviewID})
		} else {
			if _, dup := reviewIDs[review.RecommendationID]; dup {
				problems = append(problems, Problem{Entity: "review", ID: review.RecommendationID, Err: ErrDuplicateReviewID})
			}
			reviewIDs[review.RecommendationID] = struct{}{}
		}
		_, inBatch := appIDs[review.AppID]
		_, known := batch.KnownAppIDs[review.AppID]
		if !inBatch && !known {
			problems = append(problems, Problem{
				Entity: "review",
				ID:     review.RecommendationID,
				Err:    fmt.Errorf("%w: %d", ErrOrphanReview, review.AppID),
			})
		}
	}

	if len(problems) > 0 {
		return &BatchValidationError{Problems: problems}
	}
	return nil
}

// ValidateApplication returns every rule the application breaks.
func ValidateApplication(app *Application) []error {
	var errs []error
	if app.AppID <= 0 {
		errs = append(errs, ErrInvalidAppID)
	}
	if strings.TrimSpace(app.Name) == "" {
		errs = append(errs, ErrEmptyName)
	}
	if app.RequiredAge < 0 {
		errs = append(errs, ErrInvalidRequiredAge)
	}
	for _, kind := range DimensionKinds {
		for _, name := range app.Dimensions(kind) {
			if strings.TrimSpace(name) == "" {
				errs = append(errs, fmt.Errorf("%w: %s", ErrEmptyDimension, kind))
				break
			}
		}
	}

	objects := []struct {
		name      string
		raw       json.RawMessage
		allowList bool
	}{
		{"price_overview", app.PriceOverview, false},
		{"pc_requirements", app.PCRequirements, true},
		{"mac_requirements", app.MacRequirements, true},
		{"linux_requirements", app.LinuxRequirements, true},
		{"achievements", app.Achievements, false},
		{"content_descriptors", app.ContentDescriptors, false},
		{"package_groups", app.PackageGroups, true},
		{"screenshots", app.Screenshots, true},
		{"movies", app.Movies, true},
		{"ratings", app.Ratings, false},
	}
	for _, o := range objects {
		if err := ValidateFragment(o.raw, o.allowList); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.name, err))
		}
	}

	if err := ValidatePriceOverview(app.PriceOverview); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ValidateFragment checks that raw is either empty or a JSON object.
// When allowList is true, a JSON array is also accepted; the upstream API
// returns [] in place of an empty requirements object.
func ValidateFragment(raw json.RawMessage, allowList bool) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: malformed JSON", ErrInvalidFragment)
	}
	switch trimmed[0] {
	case '{':
		return nil
	case '[':
		if allowList {
			return nil
		}
	}
	return ErrInvalidFragment
}

// ValidatePriceOverview rejects negative prices and discounts outside 0..100.
// Fields that are missing or not numbers are left to the materializer.
func ValidatePriceOverview(raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var price struct {
		Initial         *float64 `json:"initial"`
		Final           *float64 `json:"final"`
		DiscountPercent *float64 `json:"discount_percent"`
	}
	if err := json.Unmarshal(raw, &price); err != nil {
		// type mismatch on a field is not structural; ValidateFragment covers syntax
		return nil
	}
	if price.Initial != nil && *price.Initial < 0 {
		return fmt.Errorf("%w: negative initial price", ErrInvalidPrice)
	}
	if price.Final != nil && *price.Final < 0 {
		return fmt.Errorf("%w: negative final price", ErrInvalidPrice)
	}
	if price.DiscountPercent != nil && (*price.DiscountPercent < 0 || *price.DiscountPercent > 100) {
		return fmt.Errorf("%w: discount %v out of range", ErrInvalidPrice, *price.DiscountPercent)
	}
	return nil
}
