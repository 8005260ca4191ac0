package materialize

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

// Validator compares stored materialized columns with independently derived
// expectations and checks the invariants.
type Validator struct {
	repo   storage.MaterializationRepository
	config *Config
	options
}

// NewValidator creates a validator.
func NewValidator(repo storage.MaterializationRepository, config *Config, opts ...Option) (*Validator, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Validator{repo: repo, config: config, options: buildOptions(opts)}, nil
}

// Validate checks every application and returns the report. It never
// modifies stored rows.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(v.config.MaxSamples)
	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := v.repo.StoredPage(ctx, cursor, v.config.PageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			v.check(report, item)
		}
		cursor = page[len(page)-1].Source.AppID
	}
	report.Elapsed = time.Since(start)
	v.export(report)
	return report, nil
}

func (v *Validator) check(report *Report, item core.StoredMaterial) {
	report.Checked++
	appID := item.Source.AppID
	expected := Expected(item.Source)
	for _, col := range core.MaterializedColumns {
		if !expected.Get(col.Name).Equal(item.Stored.Get(col.Name)) {
			report.discrepancy(col.Name, appID)
		}
	}
	for _, inv := range Invariants {
		if !inv.Holds(item.Source, item.Stored) {
			report.violation(inv.Name, appID)
		}
	}
}

// export publishes the report as gauges, zeroing columns and rules that
// came back clean.
func (v *Validator) export(report *Report) {
	if v.metrics == nil {
		return
	}
	for _, col := range core.MaterializedColumns {
		v.metrics.Discrepancies.WithLabelValues(col.Name).Set(float64(report.Discrepancies[col.Name]))
	}
	for _, inv := range Invariants {
		v.metrics.RuleViolations.WithLabelValues(inv.Name).Set(float64(report.Violations[inv.Name]))
	}
}
