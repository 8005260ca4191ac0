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

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/embed"
	"github.com/poiesic/steamset/ingestion"
	"github.com/poiesic/steamset/materialize"
	"github.com/poiesic/steamset/monitor"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	globalFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML file supplying default flag values",
			EnvVars: []string{"STEAMSET_CONFIG"},
		},
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "dsn",
			Usage:   "Database connection string",
			EnvVars: []string{"STEAMSET_DSN"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "driver",
			Usage:   "Database driver (postgres, sqlite)",
			Value:   "postgres",
			EnvVars: []string{"STEAMSET_DRIVER"},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    "dimension",
			Usage:   "Embedding vector width; sizes the vector columns",
			Value:   ai.DefaultConfig().Dimension,
			EnvVars: []string{"STEAMSET_DIMENSION"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"STEAMSET_LOG_LEVEL"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log output format (text, json)",
			Value:   "text",
			EnvVars: []string{"STEAMSET_LOG_FORMAT"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Serve Prometheus metrics on this address while a command runs",
			EnvVars: []string{"STEAMSET_METRICS_ADDR"},
		}),
	}

	embedFlags := []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "target",
			Usage: "Embedding target (applications, reviews, all)",
			Value: "all",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   ai.DefaultConfig().EmbeddingHost,
			EnvVars: []string{"STEAMSET_EMBEDDING_HOST"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name, recorded in the run registry",
			Value:   ai.DefaultConfig().EmbeddingModel,
			EnvVars: []string{"STEAMSET_EMBEDDING_MODEL"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token for the embedding service",
			Value:   ai.DefaultConfig().APIToken,
			EnvVars: []string{"STEAMSET_API_TOKEN"},
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  "normalize",
			Usage: "Scale vectors to unit length before storing them",
			Value: true,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Initial number of texts per embedding call",
			Value: embed.DefaultConfig().BatchSize,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "page-size",
			Usage: "Rows per keyset page and write-back transaction",
			Value: embed.DefaultConfig().PageSize,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts per embedding call",
			Value: embed.DefaultConfig().MaxRetries,
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: embed.DefaultConfig().RetryDelay,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-pages",
			Usage: "Stop each target after this many pages (0 means no limit)",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N rows",
			Value: embed.DefaultConfig().ReportInterval,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "checkpoint-dir",
			Usage:   "BadgerDB directory for page cursors (in memory when empty)",
			EnvVars: []string{"STEAMSET_CHECKPOINT_DIR"},
		}),
		&cli.BoolFlag{
			Name:  "reset-cursor",
			Usage: "Ignore stored page cursors and start from the lowest id",
		},
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  "monitor-interval",
			Usage: "Resource sampling period",
			Value: monitor.DefaultInterval,
		}),
	}

	importFlags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "games",
			Aliases:  []string{"g"},
			Usage:    "Game payload file (repeatable)",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "reviews",
			Aliases: []string{"r"},
			Usage:   "Review payload file (repeatable)",
		},
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts for a transient write failure",
			Value: ingestion.DefaultConfig().MaxRetries,
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: ingestion.DefaultConfig().RetryDelay,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  "skip-existing",
			Usage: "Skip applications and reviews that are already stored",
			Value: ingestion.DefaultConfig().SkipExisting,
		}),
	}

	materializeFlags := []cli.Flag{
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-iterations",
			Usage: "Populate and validate at most this many times",
			Value: materialize.DefaultMaxIterations,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "page-size",
			Usage: "Applications per page",
			Value: materialize.DefaultPageSize,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-samples",
			Usage: "Sample appids kept per failing column or rule",
			Value: materialize.DefaultMaxSamples,
		}),
	}

	return &cli.App{
		Name:   "steamset",
		Usage:  "Import, embed and materialize a Steam catalog",
		Writer: out,
		Flags:  globalFlags,
		Before: func(c *cli.Context) error {
			if err := loadConfigFile(globalFlags)(c); err != nil {
				return err
			}
			return setupLogger(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the database schema",
				Action: migrateCommand,
			},
			{
				Name:   "import",
				Usage:  "Load game and review payload files",
				Flags:  importFlags,
				Before: loadConfigFile(importFlags),
				Action: importCommand,
			},
			{
				Name:   "embed",
				Usage:  "Embed application descriptions and review texts",
				Flags:  embedFlags,
				Before: loadConfigFile(embedFlags),
				Action: embedCommand,
			},
			{
				Name:   "materialize",
				Usage:  "Derive typed columns from stored fragments and validate them",
				Flags:  materializeFlags,
				Before: loadConfigFile(materializeFlags),
				Action: materializeCommand,
			},
			{
				Name:   "validate",
				Usage:  "Check materialized columns without rewriting them",
				Flags:  materializeFlags[1:],
				Before: loadConfigFile(materializeFlags[1:]),
				Action: validateCommand,
			},
			{
				Name:   "runs",
				Usage:  "List embedding runs",
				Action: runsCommand,
			},
		},
	}
}

// loadConfigFile fills unset flags from the YAML file named by --config.
func loadConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if c.String("config") == "" {
			return nil
		}
		return altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc("config"))(c)
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}

	job, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	slog.SetDefault(slog.New(handler).With("job", job.String()))
	return nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
