package ingestion

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/poiesic/steamset/core"
)

// Selectors into one games-file record.
var (
	pathSuccess     = jp.MustParseString("$.success")
	pathData        = jp.MustParseString("$.data")
	pathRecordAppID = jp.MustParseString("$.appid")
	pathFetchedAt   = jp.MustParseString("$.fetched_at")
	pathSteamAppID  = jp.MustParseString("$.steam_appid")
	pathName        = jp.MustParseString("$.name")
	pathType        = jp.MustParseString("$.type")
	pathIsFree      = jp.MustParseString("$.is_free")
	pathReleaseDate = jp.MustParseString("$.release_date.date")
	pathRequiredAge = jp.MustParseString("$.required_age")
	pathMetacritic  = jp.MustParseString("$.metacritic.score")
	pathRecommends  = jp.MustParseString("$.recommendations.total")
	pathFullGameID  = jp.MustParseString("$.fullgame.appid")
	pathWindows     = jp.MustParseString("$.platforms.windows")
	pathMac         = jp.MustParseString("$.platforms.mac")
	pathLinux       = jp.MustParseString("$.platforms.linux")
	pathDevelopers  = jp.MustParseString("$.developers[*]")
	pathPublishers  = jp.MustParseString("$.publishers[*]")
	pathGenres      = jp.MustParseString("$.genres[*].description")
	pathCategories  = jp.MustParseString("$.categories[*].description")
	pathReviewsOK   = jp.MustParseString("$.reviews.success")
	pathReviewList  = jp.MustParseString("$.reviews.reviews[*]")
	pathRecommendID = jp.MustParseString("$.recommendationid")
)

var reviewPaths = func() map[string]jp.Expr {
	keys := []string{
		"author.steamid", "author.num_games_owned", "author.num_reviews",
		"author.playtime_forever", "author.playtime_last_two_weeks",
		"author.playtime_at_review", "author.last_played",
		"language", "review", "timestamp_created", "timestamp_updated",
		"voted_up", "votes_up", "votes_funny", "weighted_vote_score",
		"comment_count", "steam_purchase", "received_for_free",
		"written_during_early_access",
	}
	paths := make(map[string]jp.Expr, len(keys))
	for _, k := range keys {
		paths[k] = jp.MustParseString("$." + k)
	}
	return paths
}()

// releaseDateLayouts are tried in order after commas are removed.
var releaseDateLayouts = []string{"2 Jan 2006", "Jan 2 2006"}

// fragmentFields are stored verbatim when the source value is non-empty.
var fragmentFields = []struct {
	key string
	dst func(*core.Application) *json.RawMessage
}{
	{"price_overview", func(a *core.Application) *json.RawMessage { return &a.PriceOverview }},
	{"pc_requirements", func(a *core.Application) *json.RawMessage { return &a.PCRequirements }},
	{"mac_requirements", func(a *core.Application) *json.RawMessage { return &a.MacRequirements }},
	{"linux_requirements", func(a *core.Application) *json.RawMessage { return &a.LinuxRequirements }},
	{"achievements", func(a *core.Application) *json.RawMessage { return &a.Achievements }},
	{"content_descriptors", func(a *core.Application) *json.RawMessage { return &a.ContentDescriptors }},
	{"package_groups", func(a *core.Application) *json.RawMessage { return &a.PackageGroups }},
	{"screenshots", func(a *core.Application) *json.RawMessage { return &a.Screenshots }},
	{"movies", func(a *core.Application) *json.RawMessage { return &a.Movies }},
	{"ratings", func(a *core.Application) *json.RawMessage { return &a.Ratings }},
}

// ParseGameRecord converts one games-file record into an Application.
// It returns nil, nil for records that are skipped: failed fetches, a
// missing data object, or a missing appid or name.
func ParseGameRecord(record any) (*core.Application, error) {
	if !truthy(pathSuccess.First(record)) {
		return nil, nil
	}
	data, ok := pathData.First(record).(map[string]any)
	if !ok {
		return nil, nil
	}
	appID, ok := toInt64(pathSteamAppID.First(data))
	if !ok || appID == 0 {
		appID, ok = toInt64(pathRecordAppID.First(record))
		if !ok || appID == 0 {
			return nil, nil
		}
	}
	name, _ := pathName.First(data).(string)
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	age, err := requiredAge(pathRequiredAge.First(data))
	if err != nil {
		return nil, err
	}

	app := &core.Application{
		AppID:                appID,
		Name:                 name,
		Type:                 appType(pathType.First(data)),
		IsFree:               truthy(pathIsFree.First(data)),
		ReleaseDate:          releaseDate(pathReleaseDate.First(data)),
		RequiredAge:          age,
		MetacriticScore:      optInt(pathMetacritic.First(data)),
		RecommendationsTotal: optInt(pathRecommends.First(data)),
		HeaderImage:          optString(data["header_image"]),
		Background:           optString(data["background"]),
		DetailedDescription:  optString(data["detailed_description"]),
		ShortDescription:     optString(data["short_description"]),
		AboutTheGame:         optString(data["about_the_game"]),
		SupportedLanguages:   optString(data["supported_languages"]),
		SupportsWindows:      truthy(pathWindows.First(data)),
		SupportsMac:          truthy(pathMac.First(data)),
		SupportsLinux:        truthy(pathLinux.First(data)),
		Developers:           names(pathDevelopers.Get(data)),
		Publishers:           names(pathPublishers.Get(data)),
		Genres:               names(pathGenres.Get(data)),
		Categories:           names(pathCategories.Get(data)),
	}
	if id, ok := toInt64(pathFullGameID.First(data)); ok {
		app.BaseAppID = &id
	}
	if s, ok := pathFetchedAt.First(record).(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			t = t.UTC()
			app.FetchedAt = &t
		}
	}
	for _, f := range fragmentFields {
		raw, err := fragment(data[f.key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst(app) = raw
	}
	app.CombinedText = CombinedText(name, deref(app.ShortDescription), deref(app.AboutTheGame))
	return app, nil
}

// ParseReviewRecord converts one reviews-file record into its reviews.
// Records whose reviews.success is not 1 yield nothing. Reviews without a
// usable recommendationid are skipped and counted.
func ParseReviewRecord(record any) (reviews []*core.Review, skipped int) {
	appID, ok := toInt64(pathRecordAppID.First(record))
	if !ok || appID == 0 {
		return nil, 0
	}
	if status, ok := toInt64(pathReviewsOK.First(record)); !ok || status != 1 {
		return nil, 0
	}
	for _, item := range pathReviewList.Get(record) {
		id, ok := toInt64(pathRecommendID.First(item))
		if !ok || id == 0 {
			skipped++
			continue
		}
		reviews = append(reviews, parseReview(appID, id, item))
	}
	return reviews, skipped
}

func parseReview(appID, id int64, item any) *core.Review {
	get := func(key string) any {
		return reviewPaths[key].First(item)
	}
	score, _ := toFloat64(get("weighted_vote_score"))
	return &core.Review{
		RecommendationID:         id,
		AppID:                    appID,
		AuthorSteamID:            optString(get("author.steamid")),
		AuthorNumGamesOwned:      optInt64(get("author.num_games_owned")),
		AuthorNumReviews:         optInt64(get("author.num_reviews")),
		AuthorPlaytimeForever:    optInt64(get("author.playtime_forever")),
		AuthorPlaytimeLastTwoWks: optInt64(get("author.playtime_last_two_weeks")),
		AuthorPlaytimeAtReview:   optInt64(get("author.playtime_at_review")),
		AuthorLastPlayed:         optInt64(get("author.last_played")),
		Language:                 optString(get("language")),
		ReviewText:               optString(get("review")),
		TimestampCreated:         optInt64(get("timestamp_created")),
		TimestampUpdated:         optInt64(get("timestamp_updated")),
		VotedUp:                  truthy(get("voted_up")),
		VotesUp:                  int64OrZero(get("votes_up")),
		VotesFunny:               int64OrZero(get("votes_funny")),
		WeightedVoteScore:        score,
		CommentCount:             int64OrZero(get("comment_count")),
		SteamPurchase:            truthy(get("steam_purchase")),
		ReceivedForFree:          truthy(get("received_for_free")),
		WrittenDuringEarlyAccess: truthy(get("written_during_early_access")),
	}
}

// ParseReleaseDate parses the store's display date. Announcements, TBA and
// unknown formats give nil.
func ParseReleaseDate(s string) *time.Time {
	if s == "" || strings.Contains(s, "TBA") || strings.Contains(s, "announced") {
		return nil
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func releaseDate(v any) *time.Time {
	s, _ := v.(string)
	return ParseReleaseDate(s)
}

// requiredAge coerces the age gate. Missing means 0; strings like "18+"
// give their leading integer.
func requiredAge(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		s := strings.TrimSpace(t)
		end := 0
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidRequiredAge, t)
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidRequiredAge, t)
		}
		return n, nil
	}
	if n, ok := toInt64(v); ok {
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidRequiredAge, v)
}

func appType(v any) *string {
	s, ok := v.(string)
	if !ok || !slices.Contains(core.AppTypes, s) {
		return nil
	}
	return &s
}

// fragment re-encodes a nested value. Null, false, zero and empty
// strings, arrays and objects are not stored.
func fragment(v any) (json.RawMessage, error) {
	if !truthy(v) {
		return nil, nil
	}
	return json.Marshal(v)
}

// names collects non-blank strings in order, without duplicates.
func names(values []any) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// truthy follows the source collector's notion of presence.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func optInt(v any) *int {
	n, ok := toInt64(v)
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}

func optInt64(v any) *int64 {
	n, ok := toInt64(v)
	if !ok {
		return nil
	}
	return &n
}

func int64OrZero(v any) int64 {
	n, _ := toInt64(v)
	return n
}

func optString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
