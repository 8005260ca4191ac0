package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func validApp(id int64) *Application {
	return &Application{
		AppID:      id,
		Name:       "Half-Life",
		Developers: []string{"Valve"},
		Genres:     []string{"Action"},
	}
}

func TestValidateApplication(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Application)
		wantErr error
	}{
		{name: "valid application", mutate: func(a *Application) {}},
		{name: "zero appid", mutate: func(a *Application) { a.AppID = 0 }, wantErr: ErrInvalidAppID},
		{name: "blank name", mutate: func(a *Application) { a.Name = "  " }, wantErr: ErrEmptyName},
		{name: "negative age", mutate: func(a *Application) { a.RequiredAge = -1 }, wantErr: ErrInvalidRequiredAge},
		{name: "empty developer", mutate: func(a *Application) { a.Developers = []string{""} }, wantErr: ErrEmptyDimension},
		{
			name:    "price overview is a string",
			mutate:  func(a *Application) { a.PriceOverview = json.RawMessage(`"free"`) },
			wantErr: ErrInvalidFragment,
		},
		{
			name:    "malformed achievements",
			mutate:  func(a *Application) { a.Achievements = json.RawMessage(`{"total":`) },
			wantErr: ErrInvalidFragment,
		},
		{
			name:   "requirements may be an empty list",
			mutate: func(a *Application) { a.PCRequirements = json.RawMessage(`[]`) },
		},
		{
			name:    "negative final price",
			mutate:  func(a *Application) { a.PriceOverview = json.RawMessage(`{"initial":999,"final":-1}`) },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "discount above 100",
			mutate:  func(a *Application) { a.PriceOverview = json.RawMessage(`{"discount_percent":150}`) },
			wantErr: ErrInvalidPrice,
		},
		{
			name:   "valid price",
			mutate: func(a *Application) { a.PriceOverview = json.RawMessage(`{"initial":999,"final":499,"discount_percent":50}`) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := validApp(10)
			tt.mutate(app)
			errs := ValidateApplication(app)
			if tt.wantErr == nil {
				if len(errs) != 0 {
					t.Errorf("ValidateApplication() = %v, want no errors", errs)
				}
				return
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("ValidateApplication() = %v, want %v", errs, tt.wantErr)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	t.Run("valid batch", func(t *testing.T) {
		batch := &Batch{
			Applications: []*Application{validApp(10), validApp(20)},
			Reviews: []*Review{
				{RecommendationID: 1, AppID: 10},
				{RecommendationID: 2, AppID: 30},
			},
			KnownAppIDs: map[int64]struct{}{30: {}},
		}
		if err := ValidateBatch(batch); err != nil {
			t.Errorf("ValidateBatch() = %v, want nil", err)
		}
	})

	t.Run("nil batch", func(t *testing.T) {
		if err := ValidateBatch(nil); !errors.Is(err, ErrInvalidBatch) {
			t.Errorf("ValidateBatch(nil) = %v, want ErrInvalidBatch", err)
		}
	})

	t.Run("duplicate appid reports the id", func(t *testing.T) {
		batch := &Batch{Applications: []*Application{validApp(10), validApp(10)}}
		err := ValidateBatch(batch)
		if !errors.Is(err, ErrDuplicateAppID) {
			t.Fatalf("ValidateBatch() = %v, want ErrDuplicateAppID", err)
		}
		var verr *BatchValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *BatchValidationError, got %T", err)
		}
		if len(verr.Problems) != 1 || verr.Problems[0].ID != 10 {
			t.Errorf("Problems = %v, want one problem for appid 10", verr.Problems)
		}
	})

	t.Run("duplicate and orphan reviews", func(t *testing.T) {
		batch := &Batch{
			Applications: []*Application{validApp(10)},
			Reviews: []*Review{
				{RecommendationID: 5, AppID: 10},
				{RecommendationID: 5, AppID: 10},
				{RecommendationID: 6, AppID: 99},
				{RecommendationID: 0, AppID: 10},
			},
		}
		err := ValidateBatch(batch)
		for _, want := range []error{ErrDuplicateReviewID, ErrOrphanReview, ErrInvalidReviewID} {
			if !errors.Is(err, want) {
				t.Errorf("ValidateBatch() = %v, want %v", err, want)
			}
		}
	})

	t.Run("all problems are collected", func(t *testing.T) {
		bad := validApp(0)
		bad.Name = ""
		batch := &Batch{Applications: []*Application{bad, validApp(20)}}
		var verr *BatchValidationError
		if !errors.As(ValidateBatch(batch), &verr) {
			t.Fatal("expected *BatchValidationError")
		}
		if len(verr.Problems) != 2 {
			t.Errorf("got %d problems, want 2: %v", len(verr.Problems), verr.Problems)
		}
	})
}
