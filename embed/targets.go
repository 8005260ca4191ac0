package embed

import (
	"fmt"
	"strings"

	"github.com/poiesic/steamset/core"
)

var (
	// ApplicationsTarget embeds the combined description text of applications.
	ApplicationsTarget = core.EmbeddingTarget{
		Name:         "applications",
		Table:        "applications",
		IDColumn:     "appid",
		TextColumn:   "combined_text",
		VectorColumn: "description_embedding",
	}

	// ReviewsTarget embeds review text.
	ReviewsTarget = core.EmbeddingTarget{
		Name:         "reviews",
		Table:        "reviews",
		IDColumn:     "recommendationid",
		TextColumn:   "review_text",
		VectorColumn: "review_embedding",
	}
)

// Targets resolves a target name. "all" returns every target in processing order.
func Targets(name string) ([]core.EmbeddingTarget, error) {
	switch strings.ToLower(name) {
	case "all", "":
		return []core.EmbeddingTarget{ApplicationsTarget, ReviewsTarget}, nil
	case ApplicationsTarget.Name:
		return []core.EmbeddingTarget{ApplicationsTarget}, nil
	case ReviewsTarget.Name:
		return []core.EmbeddingTarget{ReviewsTarget}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}

// CheckpointKey names the cursor checkpoint of target for run.
func CheckpointKey(target core.EmbeddingTarget, runID int64) string {
	return fmt.Sprintf("%s:%d", target.Name, runID)
}
