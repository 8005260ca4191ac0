package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func gameJSON(id int, name string, extra string) string {
	return fmt.Sprintf(`{"appid": %d, "success": true, "data": {"steam_appid": %d, "name": %q%s}}`, id, id, name, extra)
}

func TestLoadGames_KeepsFileOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 1; i <= 6; i++ {
		content := "[" + gameJSON(i*10, fmt.Sprintf("game %d", i), "") + `, {"appid": 9, "success": false}]`
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("games-%d.json", i), content))
	}

	files, err := LoadGames(context.Background(), paths...)
	require.NoError(t, err)
	require.Len(t, files, 6)
	for i, f := range files {
		assert.Equal(t, paths[i], f.Path)
		assert.Equal(t, 2, f.Records)
		assert.Equal(t, 1, f.Skipped)
		require.Len(t, f.Applications, 1)
		assert.Equal(t, int64((i+1)*10), f.Applications[0].AppID)
		assert.Len(t, f.Digest, 32)
	}
	assert.NotEqual(t, files[0].Digest, files[1].Digest)
}

func TestLoadFiles_DigestCoversWholeFile(t *testing.T) {
	dir := t.TempDir()
	games := "[" + gameJSON(10, "game", "") + "]\n\n"
	reviews := `[{"appid": 10, "reviews": {"success": 1, "reviews": []}}]` + "\n"
	gamesPath := writeFile(t, dir, "games.json", games)
	reviewsPath := writeFile(t, dir, "reviews.json", reviews)

	gf, err := LoadGames(context.Background(), gamesPath)
	require.NoError(t, err)
	assert.Equal(t, core.Digest([]byte(games)), gf[0].Digest)

	rf, err := LoadReviews(context.Background(), reviewsPath)
	require.NoError(t, err)
	assert.Equal(t, core.Digest([]byte(reviews)), rf[0].Digest)
}

func TestLoadGames_NoPaths(t *testing.T) {
	files, err := LoadGames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadGames_MissingFile(t *testing.T) {
	_, err := LoadGames(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadGames_Malformed(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"object.json":    `{"appid": 1}`,
		"truncated.json": `[{"appid": 1}, `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadGames(context.Background(), writeFile(t, dir, name, content))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestLoadGames_InvalidRequiredAgeIsValidationError(t *testing.T) {
	dir := t.TempDir()
	content := "[" + strings.Join([]string{
		gameJSON(1, "ok", ""),
		gameJSON(2, "bad", `, "required_age": "mature"`),
		gameJSON(3, "worse", `, "required_age": {"min": 18}`),
	}, ",") + "]"

	_, err := LoadGames(context.Background(), writeFile(t, dir, "games.json", content))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidBatch)
	assert.ErrorIs(t, err, ErrInvalidRequiredAge)

	var verr *core.BatchValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 2)
	assert.Equal(t, int64(2), verr.Problems[0].ID)
	assert.Equal(t, int64(3), verr.Problems[1].ID)
}

func TestLoadGames_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "games.json", "[]")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadGames(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadReviews(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "reviews.json", `[
		{"appid": 10, "reviews": {"success": 1, "reviews": [{"recommendationid": "1"}, {"review": "x"}]}},
		{"appid": 20, "reviews": {"success": 1, "reviews": [{"recommendationid": "2"}]}},
		{"appid": 30, "reviews": {"success": 0}}
	]`)

	files, err := LoadReviews(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 3, files[0].Records)
	assert.Equal(t, 1, files[0].Skipped)
	require.Len(t, files[0].Reviews, 2)
	assert.Equal(t, int64(20), files[0].Reviews[1].AppID)
}
