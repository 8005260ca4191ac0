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

package steamset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/ai/mock"
	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/embed"
	"github.com/poiesic/steamset/ingestion"
	"github.com/poiesic/steamset/metrics"
	"github.com/poiesic/steamset/storage/sqlstore"
)

const testDimension = 8

func openTestCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	cfg := ai.NewConfig(ai.WithDimension(testDimension), ai.WithEmbeddingModel("mock-embed"))
	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedder(testDimension), cfg)
	opts = append([]Option{WithProvider(provider)}, opts...)

	c, err := Open(context.Background(), sqlstore.DriverSQLite, ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func writePayloads(t *testing.T) (games, reviews string) {
	t.Helper()
	dir := t.TempDir()
	games = filepath.Join(dir, "games.json")
	reviews = filepath.Join(dir, "reviews.json")
	require.NoError(t, os.WriteFile(games, []byte(`[
		{"appid": 10, "success": true, "data": {
			"steam_appid": 10, "name": "Counter-Strike", "type": "game", "is_free": false,
			"required_age": 0, "short_description": "Team shooter",
			"about_the_game": "<p>Play <b>now</b></p>",
			"price_overview": {"currency": "USD", "initial": 999, "final": 499, "discount_percent": 50},
			"pc_requirements": {"minimum": "<ul><li><strong>OS:</strong> Windows XP</li></ul>"},
			"mac_requirements": {"minimum": "<ul><li><strong>OS:</strong> macOS 10.15</li></ul>"},
			"achievements": {"total": 0},
			"developers": ["Valve"], "publishers": ["Valve"],
			"genres": [{"id": "1", "description": "Action"}],
			"categories": [{"id": 1, "description": "Multi-player"}],
			"release_date": {"coming_soon": false, "date": "1 Nov, 2000"}
		}},
		{"appid": 20, "success": false}
	]`), 0o644))
	require.NoError(t, os.WriteFile(reviews, []byte(`[
		{"appid": 10, "reviews": {"success": 1, "reviews": [{"recommendationid": "111", "review": "great",
			"voted_up": true, "author": {"steamid": "7656", "num_games_owned": 3}}]}}
	]`), 0o644))
	return games, reviews
}

func TestOpen_DefaultsToInMemoryCheckpoints(t *testing.T) {
	c := openTestCatalog(t)
	assert.NotNil(t, c.Store())
	assert.NotNil(t, c.Checkpoints())
	assert.Equal(t, testDimension, c.Store().Dimension())
	assert.Equal(t, "mock-embed", c.Provider().Config().EmbeddingModel)
}

func TestOpen_CheckpointDirMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not_a_dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := ai.NewConfig(ai.WithDimension(testDimension))
	_, err := Open(context.Background(), sqlstore.DriverSQLite, ":memory:",
		WithProvider(mock.NewMockProvider(cfg)), WithCheckpointDir(file))
	assert.Error(t, err)
}

func TestCatalog_EndToEnd(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	c := openTestCatalog(t, WithMetrics(m), WithCheckpointDir(t.TempDir()))
	games, reviews := writePayloads(t)

	importer, err := c.NewImporter(nil)
	require.NoError(t, err)
	report, err := importer.ImportFiles(ctx, []string{games}, []string{reviews})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applications)
	assert.Equal(t, 1, report.Reviews)

	cfg := embed.DefaultConfig()
	cfg.PageSize, cfg.BatchSize = 2, 2
	gen, err := c.NewGenerator(cfg)
	require.NoError(t, err)
	targets, err := embed.Targets("all")
	require.NoError(t, err)
	results, err := gen.RunAll(ctx, targets)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, embed.StateDone, r.State)
		assert.Equal(t, int64(1), r.Rows)
	}

	vec, runID, err := c.Store().Vector(ctx, targets[0], 10)
	require.NoError(t, err)
	assert.Len(t, vec, testDimension)
	require.NotNil(t, runID)

	runs, err := c.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.EmbeddingRun{
		RunID: *runID, ModelName: "mock-embed", Dimension: testDimension,
		Normalized: true, CreatedAt: runs[0].CreatedAt,
	}, runs[0])

	loop, err := c.NewMaterializeLoop(nil)
	require.NoError(t, err)
	matReport, err := loop.Run(ctx)
	require.NoError(t, err)
	assert.True(t, matReport.Clean())

	page, err := c.Store().StoredPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, core.Text("Windows XP"), page[0].Stored.Get(core.ColPCOSMin))
	assert.Equal(t, core.Bool(true), page[0].Stored.Get(core.ColSupportsMac))
	assert.Equal(t, core.Int(0), page[0].Stored.Get(core.ColAchievementCount))

	var price map[string]any
	require.NoError(t, json.Unmarshal(page[0].Source.PriceOverview, &price))
	assert.Equal(t, "USD", price["currency"])
}

func TestCatalog_ImporterRejectsInvalidConfig(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.NewImporter(&ingestion.Config{MaxRetries: -1})
	assert.ErrorIs(t, err, ingestion.ErrInvalidConfig)
}
