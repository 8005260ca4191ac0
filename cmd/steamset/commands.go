package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/steamset"
	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/embed"
	"github.com/poiesic/steamset/ingestion"
	"github.com/poiesic/steamset/materialize"
	"github.com/poiesic/steamset/metrics"
	"github.com/poiesic/steamset/monitor"
	"github.com/poiesic/steamset/storage/sqlstore"
)

// driverName maps the user facing driver names to database/sql drivers.
func driverName(name string) (string, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", sqlstore.DriverPostgres:
		return sqlstore.DriverPostgres, nil
	case sqlstore.DriverSQLite, "sqlite3":
		return sqlstore.DriverSQLite, nil
	}
	return "", fmt.Errorf("unsupported driver %q: must be postgres or sqlite", name)
}

// startMetrics creates the instruments and, when --metrics-addr is set,
// serves them until ctx ends.
func startMetrics(ctx context.Context, c *cli.Context) *metrics.Metrics {
	m := metrics.New()
	if addr := c.String("metrics-addr"); addr != "" {
		go func() {
			if err := m.Serve(ctx, addr); err != nil {
				slog.Error("metrics server failed", "addr", addr, "err", err)
			}
		}()
	}
	return m
}

// openCatalog opens the database named by the global flags.
func openCatalog(c *cli.Context, aiConfig *ai.Config, opts ...steamset.Option) (*steamset.Catalog, error) {
	dsn := c.String("dsn")
	if dsn == "" {
		return nil, fmt.Errorf("database connection string is required (--dsn or STEAMSET_DSN)")
	}
	driver, err := driverName(c.String("driver"))
	if err != nil {
		return nil, err
	}
	if aiConfig == nil {
		aiConfig = ai.NewConfig(ai.WithDimension(c.Int("dimension")))
	}
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	opts = append([]steamset.Option{
		steamset.WithAIConfig(aiConfig),
		steamset.WithLogger(slog.Default()),
	}, opts...)
	catalog, err := steamset.Open(c.Context, driver, dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return catalog, nil
}

func migrateCommand(c *cli.Context) error {
	catalog, err := openCatalog(c, nil)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if err := catalog.Migrate(c.Context); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "schema ready (%s, dimension %d)\n", catalog.Store().Dialect(), catalog.Store().Dimension())
	return nil
}

func importCommand(c *cli.Context) error {
	m := startMetrics(c.Context, c)
	catalog, err := openCatalog(c, nil, steamset.WithMetrics(m))
	if err != nil {
		return err
	}
	defer catalog.Close()

	cfg := &ingestion.Config{
		MaxRetries:   c.Int("max-retries"),
		RetryDelay:   c.Duration("retry-delay"),
		SkipExisting: c.Bool("skip-existing"),
	}
	importer, err := catalog.NewImporter(cfg)
	if err != nil {
		return err
	}

	report, err := importer.ImportFiles(c.Context, c.StringSlice("games"), c.StringSlice("reviews"))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "imported %d applications and %d reviews in %s (%d attempts)\n",
		report.Applications, report.Reviews, formatDuration(report.Elapsed), report.Attempts)
	fmt.Fprintf(w, "skipped %d records, %d existing applications, %d reviews\n",
		report.SkippedRecords, report.SkippedExisting, report.SkippedReviews)
	for kind, n := range report.NewDimensions {
		fmt.Fprintf(w, "new %s: %d, links: %d\n", kind, n, report.Associations[kind])
	}
	return nil
}

func embedCommand(c *cli.Context) error {
	ctx := c.Context
	m := startMetrics(ctx, c)

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIToken(c.String("api-token")),
		ai.WithDimension(c.Int("dimension")),
		ai.WithNormalizeVectors(c.Bool("normalize")),
	)
	catalog, err := openCatalog(c, aiConfig,
		steamset.WithMetrics(m),
		steamset.WithCheckpointDir(c.String("checkpoint-dir")))
	if err != nil {
		return err
	}
	defer catalog.Close()

	targets, err := embed.Targets(c.String("target"))
	if err != nil {
		return err
	}

	cfg := embed.DefaultConfig()
	cfg.BatchSize = c.Int("batch-size")
	cfg.PageSize = c.Int("page-size")
	cfg.MaxRetries = c.Int("max-retries")
	cfg.RetryDelay = c.Duration("retry-delay")
	cfg.MaxPages = c.Int("max-pages")
	cfg.ReportInterval = c.Int("report-interval")
	cfg.ResetCursor = c.Bool("reset-cursor")

	mon := monitor.New(monitor.NewSystemSampler(),
		monitor.WithInterval(c.Duration("monitor-interval")),
		monitor.WithOnSample(m.RecordSnapshot))
	mon.Start()
	defer mon.Stop()
	cfg.SnapshotMaxAge = mon.StaleAfter()

	gen, err := catalog.NewGenerator(cfg, embed.WithSnapshots(mon), embed.WithProgress(os.Stderr))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s (dimension %d, normalized %t)\n",
		aiConfig.EmbeddingModel, aiConfig.Dimension, aiConfig.NormalizeVectors)
	fmt.Fprintln(os.Stderr)

	results, err := gen.RunAll(ctx, targets)
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%s: %s, run %d, %d rows in %d pages, %d splits, cursor %d, %s\n",
			r.Target, r.State, r.Run.RunID, r.Rows, r.Pages, r.Splits, r.Cursor, formatDuration(r.Elapsed))
	}
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	return nil
}

func materializeConfig(c *cli.Context) *materialize.Config {
	cfg := materialize.DefaultConfig()
	// validate has no iteration flag
	if n := c.Int("max-iterations"); n > 0 {
		cfg.MaxIterations = n
	}
	cfg.PageSize = c.Int("page-size")
	cfg.MaxSamples = c.Int("max-samples")
	return cfg
}

func materializeCommand(c *cli.Context) error {
	m := startMetrics(c.Context, c)
	catalog, err := openCatalog(c, nil, steamset.WithMetrics(m))
	if err != nil {
		return err
	}
	defer catalog.Close()

	loop, err := catalog.NewMaterializeLoop(materializeConfig(c))
	if err != nil {
		return err
	}
	report, err := loop.Run(c.Context)
	if report != nil {
		fmt.Fprintln(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("materialization failed: %w", err)
	}
	return nil
}

func validateCommand(c *cli.Context) error {
	m := startMetrics(c.Context, c)
	catalog, err := openCatalog(c, nil, steamset.WithMetrics(m))
	if err != nil {
		return err
	}
	defer catalog.Close()

	validator, err := catalog.NewValidator(materializeConfig(c))
	if err != nil {
		return err
	}
	report, err := validator.Validate(c.Context)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, report)
	if !report.Clean() {
		return fmt.Errorf("materialized columns are inconsistent: %d discrepancies, %d violations",
			report.TotalDiscrepancies(), report.TotalViolations())
	}
	return nil
}

func runsCommand(c *cli.Context) error {
	catalog, err := openCatalog(c, nil)
	if err != nil {
		return err
	}
	defer catalog.Close()

	runs, err := catalog.Runs(c.Context)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODEL\tDIMENSION\tNORMALIZED\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%s\n", r.RunID, r.ModelName, r.Dimension, r.Normalized, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
