package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/metrics"
	"github.com/poiesic/steamset/retry"
	"github.com/poiesic/steamset/storage"
)

// Store is everything the importer writes to.
type Store interface {
	storage.LookupRepository
	storage.ImportRepository
}

// Config holds importer settings.
type Config struct {
	// MaxRetries is the number of attempts for the whole unit of work when
	// the store reports a transient failure.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// SkipExisting drops applications whose appid is already stored instead
	// of failing the batch on the primary key.
	SkipExisting bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		RetryDelay:   time.Second,
		SkipExisting: true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ImportReport summarizes one import.
type ImportReport struct {
	Applications  int
	Reviews       int
	Associations  map[core.DimensionKind]int
	NewDimensions map[core.DimensionKind]int

	// SkippedRecords counts failed fetches and records without appid or name.
	SkippedRecords  int
	SkippedExisting int
	// SkippedReviews counts reviews without an id, of unknown applications,
	// or already stored.
	SkippedReviews int

	Attempts int
	Sources  []string
	Elapsed  time.Duration
}

// Importer writes batches in two phases: lookup tables first, then one
// transaction for applications, reviews and associations.
type Importer struct {
	store   Store
	config  *Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithMetrics records import counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewImporter creates an importer.
func NewImporter(store Store, config *Config, opts ...Option) (*Importer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	i := &Importer{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "importer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ImportFiles loads games and reviews files and imports them as one batch.
func (i *Importer) ImportFiles(ctx context.Context, gamePaths, reviewPaths []string) (*ImportReport, error) {
	games, err := LoadGames(ctx, gamePaths...)
	if err != nil {
		return nil, err
	}
	reviews, err := LoadReviews(ctx, reviewPaths...)
	if err != nil {
		return nil, err
	}

	batch := &core.Batch{}
	var skippedRecords, skippedReviews int
	for _, f := range games {
		batch.Applications = append(batch.Applications, f.Applications...)
		batch.Sources = append(batch.Sources, f.Digest)
		skippedRecords += f.Skipped
		i.logger.Info("loaded games file", "path", f.Path, "digest", f.Digest,
			"applications", len(f.Applications), "skipped", f.Skipped)
	}
	for _, f := range reviews {
		batch.Reviews = append(batch.Reviews, f.Reviews...)
		batch.Sources = append(batch.Sources, f.Digest)
		skippedReviews += f.Skipped
		i.logger.Info("loaded reviews file", "path", f.Path, "digest", f.Digest,
			"reviews", len(f.Reviews), "skipped", f.Skipped)
	}

	report, err := i.Import(ctx, batch)
	if report != nil {
		report.SkippedRecords += skippedRecords
		report.SkippedReviews += skippedReviews
	}
	return report, err
}

// Import validates batch and writes it.
//
// Structural problems are reported as *core.BatchValidationError before the
// store is touched. Reviews of applications that are neither in the batch nor
// stored are dropped and counted. A constraint violation rolls back the whole
// write and is never retried; transient failures retry both phases.
func (i *Importer) Import(ctx context.Context, batch *core.Batch) (*ImportReport, error) {
	start := time.Now()
	if batch == nil {
		batch = &core.Batch{}
	}
	if err := validateStructure(batch); err != nil {
		i.countBatch("invalid")
		return nil, err
	}

	report := &ImportReport{Sources: batch.Sources}
	prepared, err := i.prepare(ctx, batch, report)
	if err != nil {
		i.countBatch("failed")
		return report, err
	}
	if err := core.ValidateBatch(prepared); err != nil {
		i.countBatch("invalid")
		return report, err
	}

	var stats *storage.WriteStats
	err = retry.Do(ctx, func() error {
		report.Attempts++
		if report.Attempts > 1 && i.metrics != nil {
			i.metrics.ImportRetries.Inc()
		}
		var err error
		stats, err = i.writeOnce(ctx, prepared, report)
		return err
	}, i.config.MaxRetries, i.config.RetryDelay, retry.If(isTransient), retry.WithLogger(i.logger))
	report.Elapsed = time.Since(start)
	if err != nil {
		i.countBatch("failed")
		i.logger.Error("import failed", "error", err, "attempts", report.Attempts, "sources", batch.Sources)
		return report, err
	}

	report.Applications = stats.Applications
	report.Reviews = stats.Reviews
	report.Associations = stats.Associations
	report.SkippedReviews += len(prepared.Reviews) - stats.Reviews
	i.record(report)
	i.logger.Info("import committed",
		"applications", report.Applications, "reviews", report.Reviews,
		"skipped_existing", report.SkippedExisting, "skipped_reviews", report.SkippedReviews,
		"attempts", report.Attempts, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// writeOnce runs Phase 1 and Phase 2.
func (i *Importer) writeOnce(ctx context.Context, batch *core.Batch, report *ImportReport) (*storage.WriteStats, error) {
	phase1, err := PopulateLookups(ctx, i.store, batch.Applications)
	if err != nil {
		return nil, err
	}
	// Phase 1 commits on its own, so names inserted by a failed attempt stay.
	if report.NewDimensions == nil {
		report.NewDimensions = make(map[core.DimensionKind]int, len(core.DimensionKinds))
	}
	for _, kind := range core.DimensionKinds {
		if n := phase1.Inserted[kind]; n > 0 {
			report.NewDimensions[kind] += n
			i.logger.Info("populated lookup table", "table", kind.Table(), "new", n)
		}
	}

	associations, err := Associations(batch.Applications, phase1.Lookups)
	if err != nil {
		return nil, err
	}
	return i.store.WriteImport(ctx, &storage.ImportRows{
		Applications: batch.Applications,
		Reviews:      batch.Reviews,
		Associations: associations,
	})
}

// prepare drops already stored applications when configured and reviews
// whose application cannot be found. It returns a new batch.
func (i *Importer) prepare(ctx context.Context, batch *core.Batch, report *ImportReport) (*core.Batch, error) {
	apps := batch.Applications
	if i.config.SkipExisting && len(apps) > 0 {
		ids := make([]int64, len(apps))
		for n, app := range apps {
			ids[n] = app.AppID
		}
		existing, err := i.store.ExistingAppIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("check existing applications: %w", err)
		}
		if len(existing) > 0 {
			kept := make([]*core.Application, 0, len(apps)-len(existing))
			for _, app := range apps {
				if _, ok := existing[app.AppID]; ok {
					report.SkippedExisting++
					continue
				}
				kept = append(kept, app)
			}
			apps = kept
		}
	}

	inBatch := make(map[int64]struct{}, len(batch.Applications))
	for _, app := range batch.Applications {
		inBatch[app.AppID] = struct{}{}
	}
	var outside []int64
	for _, review := range batch.Reviews {
		if _, ok := inBatch[review.AppID]; !ok {
			outside = append(outside, review.AppID)
		}
	}
	known := make(map[int64]struct{}, len(batch.KnownAppIDs))
	for id := range batch.KnownAppIDs {
		known[id] = struct{}{}
	}
	if len(outside) > 0 {
		stored, err := i.store.ExistingAppIDs(ctx, outside)
		if err != nil {
			return nil, fmt.Errorf("check review applications: %w", err)
		}
		for id := range stored {
			known[id] = struct{}{}
		}
	}
	// Applications skipped as existing are stored, so their reviews stay valid.
	for _, app := range batch.Applications {
		known[app.AppID] = struct{}{}
	}

	reviews := make([]*core.Review, 0, len(batch.Reviews))
	orphans := make(map[int64]int)
	for _, review := range batch.Reviews {
		if _, ok := known[review.AppID]; !ok {
			orphans[review.AppID]++
			continue
		}
		reviews = append(reviews, review)
	}
	if len(orphans) > 0 {
		dropped := len(batch.Reviews) - len(reviews)
		report.SkippedReviews += dropped
		i.logger.Warn("skipped reviews for unknown applications", "reviews", dropped, "appids", len(orphans))
	}

	return &core.Batch{
		Applications: apps,
		Reviews:      reviews,
		KnownAppIDs:  known,
		Sources:      batch.Sources,
	}, nil
}

// validateStructure runs the batch validator with every review treated as
// referencing a known application; references are checked after the store
// has been consulted.
func validateStructure(batch *core.Batch) error {
	assumed := make(map[int64]struct{}, len(batch.Reviews))
	for _, review := range batch.Reviews {
		if review != nil {
			assumed[review.AppID] = struct{}{}
		}
	}
	return core.ValidateBatch(&core.Batch{
		Applications: batch.Applications,
		Reviews:      batch.Reviews,
		KnownAppIDs:  assumed,
	})
}

func isTransient(err error) bool {
	return errors.Is(err, storage.ErrTransient)
}

func (i *Importer) countBatch(outcome string) {
	if i.metrics != nil {
		i.metrics.ImportBatches.WithLabelValues(outcome).Inc()
	}
}

func (i *Importer) record(report *ImportReport) {
	if i.metrics == nil {
		return
	}
	i.countBatch("committed")
	i.metrics.ImportedRows.WithLabelValues("applications").Add(float64(report.Applications))
	i.metrics.ImportedRows.WithLabelValues("reviews").Add(float64(report.Reviews))
	for kind, n := range report.Associations {
		i.metrics.ImportedRows.WithLabelValues(kind.JunctionTable()).Add(float64(n))
	}
	for kind, n := range report.NewDimensions {
		i.metrics.DimensionsAdded.WithLabelValues(kind.String()).Add(float64(n))
	}
}
