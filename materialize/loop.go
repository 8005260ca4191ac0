package materialize

import (
	"context"
	"fmt"

	"github.com/poiesic/steamset/storage"
)

// Loop alternates population and validation until a pass is clean.
type Loop struct {
	materializer *Materializer
	validator    *Validator
	config       *Config
	options
}

// NewLoop creates a loop over repo. Options apply to both phases.
func NewLoop(repo storage.MaterializationRepository, config *Config, opts ...Option) (*Loop, error) {
	if config == nil {
		config = DefaultConfig()
	}
	m, err := NewMaterializer(repo, config, opts...)
	if err != nil {
		return nil, err
	}
	v, err := NewValidator(repo, config, opts...)
	if err != nil {
		return nil, err
	}
	return &Loop{materializer: m, validator: v, config: config, options: buildOptions(opts)}, nil
}

// Run populates and validates up to MaxIterations times. It returns the last
// report, wrapped in ErrNotConverged when no pass was clean.
func (l *Loop) Run(ctx context.Context) (*Report, error) {
	var report *Report
	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		if _, err := l.materializer.Populate(ctx); err != nil {
			return report, fmt.Errorf("iteration %d: populate: %w", iteration, err)
		}
		var err error
		report, err = l.validator.Validate(ctx)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: validate: %w", iteration, err)
		}
		l.logger.Info("materialize iteration",
			"iteration", iteration,
			"checked", report.Checked,
			"discrepancies", report.TotalDiscrepancies(),
			"violations", report.TotalViolations())
		if report.Clean() {
			return report, nil
		}
		for column, n := range report.Discrepancies {
			l.logger.Warn("column discrepancy", "column", column, "rows", n, "samples", report.Samples[column])
		}
		for rule, n := range report.Violations {
			l.logger.Warn("invariant violated", "rule", rule, "rows", n, "samples", report.Samples[rule])
		}
	}
	return report, fmt.Errorf("%w after %d iterations: %d discrepancies, %d violations",
		ErrNotConverged, l.config.MaxIterations, report.TotalDiscrepancies(), report.TotalViolations())
}
