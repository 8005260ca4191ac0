package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/steamset/core"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS embedding_runs (
	run_id {{serial}},
	model_name TEXT NOT NULL,
	dimension INTEGER NOT NULL CHECK (dimension > 0),
	normalized BOOLEAN NOT NULL,
	created_at {{timestamp}} NOT NULL,
	UNIQUE (model_name, dimension, normalized)
);

{{dimensions}}

CREATE TABLE IF NOT EXISTS applications (
	appid BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT,
	is_free BOOLEAN NOT NULL DEFAULT FALSE,
	release_date DATE,
	required_age INTEGER NOT NULL DEFAULT 0 CHECK (required_age >= 0),
	metacritic_score INTEGER,
	recommendations_total INTEGER,
	header_image TEXT,
	background TEXT,
	detailed_description TEXT,
	short_description TEXT,
	about_the_game TEXT,
	supported_languages TEXT,
	price_overview {{json}},
	pc_requirements {{json}},
	mac_requirements {{json}},
	linux_requirements {{json}},
	achievements {{json}},
	content_descriptors {{json}},
	package_groups {{json}},
	screenshots {{json}},
	movies {{json}},
	ratings {{json}},
	base_app_id BIGINT,
	supports_windows BOOLEAN NOT NULL DEFAULT FALSE,
	supports_mac BOOLEAN NOT NULL DEFAULT FALSE,
	supports_linux BOOLEAN NOT NULL DEFAULT FALSE,
	fetched_at {{timestamp}},
	combined_text TEXT,
	description_embedding {{vector}},
	embedding_run_id BIGINT REFERENCES embedding_runs(run_id),
{{materialized}}
);

CREATE TABLE IF NOT EXISTS reviews (
	recommendationid BIGINT PRIMARY KEY,
	appid BIGINT NOT NULL REFERENCES applications(appid) ON DELETE CASCADE,
	author_steamid TEXT,
	author_num_games_owned INTEGER,
	author_num_reviews INTEGER,
	author_playtime_forever INTEGER,
	author_playtime_last_two_weeks INTEGER,
	author_playtime_at_review INTEGER,
	author_last_played BIGINT,
	language TEXT,
	review_text TEXT,
	timestamp_created BIGINT,
	timestamp_updated BIGINT,
	voted_up BOOLEAN NOT NULL DEFAULT FALSE,
	votes_up INTEGER NOT NULL DEFAULT 0,
	votes_funny INTEGER NOT NULL DEFAULT 0,
	weighted_vote_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	steam_purchase BOOLEAN NOT NULL DEFAULT FALSE,
	received_for_free BOOLEAN NOT NULL DEFAULT FALSE,
	written_during_early_access BOOLEAN NOT NULL DEFAULT FALSE,
	review_embedding {{vector}},
	embedding_run_id BIGINT REFERENCES embedding_runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_appid ON reviews (appid);
CREATE INDEX IF NOT EXISTS idx_applications_pending_embedding
	ON applications (appid) WHERE description_embedding IS NULL;
CREATE INDEX IF NOT EXISTS idx_reviews_pending_embedding
	ON reviews (recommendationid) WHERE review_embedding IS NULL;

{{junctions}}
`

// schemaStatements renders the DDL for d, one statement per element.
func schemaStatements(d dialect, dimension int) []string {
	var dims, junctions strings.Builder
	for _, kind := range core.DimensionKinds {
		fmt.Fprintf(&dims, "CREATE TABLE IF NOT EXISTS %s (\n\tid {{serial}},\n\tname TEXT NOT NULL UNIQUE\n);\n", kind.Table())
		fmt.Fprintf(&junctions,
			"CREATE TABLE IF NOT EXISTS %s (\n\tappid BIGINT NOT NULL REFERENCES applications(appid) ON DELETE CASCADE,\n\t%s BIGINT NOT NULL REFERENCES %s(id),\n\tPRIMARY KEY (appid, %s)\n);\n",
			kind.JunctionTable(), kind.ForeignKey(), kind.Table(), kind.ForeignKey())
	}

	mat := make([]string, len(core.MaterializedColumns))
	for i, col := range core.MaterializedColumns {
		mat[i] = "\t" + col.Name + " " + sqlType(col.Kind)
	}

	replacer := strings.NewReplacer(
		"{{dimensions}}", dims.String(),
		"{{junctions}}", junctions.String(),
		"{{materialized}}", strings.Join(mat, ",\n"),
	)
	rendered := replacer.Replace(schemaTemplate)
	rendered = strings.NewReplacer(
		"{{serial}}", d.serial,
		"{{json}}", d.json,
		"{{timestamp}}", d.timestamp,
		"{{vector}}", d.vector(dimension),
	).Replace(rendered)

	stmts := append([]string(nil), d.preamble...)
	for _, stmt := range strings.Split(rendered, ";") {
		if strings.TrimSpace(stmt) != "" {
			stmts = append(stmts, strings.TrimSpace(stmt))
		}
	}
	return stmts
}

func sqlType(kind core.ValueKind) string {
	switch kind {
	case core.KindBool:
		return "BOOLEAN"
	case core.KindInt:
		return "INTEGER"
	}
	return "TEXT"
}

// Migrate applies the schema. Every statement is idempotent.
func (b *Backend) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(b.dialect, b.dimension) {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", classify(err))
		}
	}
	b.logger.Info("schema applied", "dialect", b.dialect.name, "dimension", b.dimension)
	return nil
}
