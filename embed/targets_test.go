package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargets(t *testing.T) {
	all, err := Targets("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"applications", "reviews"}, []string{all[0].Name, all[1].Name})

	empty, err := Targets("")
	require.NoError(t, err)
	assert.Len(t, empty, 2)

	reviews, err := Targets("Reviews")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "review_embedding", reviews[0].VectorColumn)

	_, err = Targets("screenshots")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "applications:3", CheckpointKey(ApplicationsTarget, 3))
	assert.NotEqual(t, CheckpointKey(ApplicationsTarget, 1), CheckpointKey(ReviewsTarget, 1))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "WRITING_BACK", StateWritingBack.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StateEmbedding.Terminal())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.BatchSize = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.MaxPages = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	defaulted := DefaultConfig()
	defaulted.ReportInterval = 0
	require.NoError(t, defaulted.Validate())
	assert.Equal(t, defaulted.PageSize, defaulted.ReportInterval)
}
