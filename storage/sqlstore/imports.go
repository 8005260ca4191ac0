package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/steamset/core"
	"github.com/poiesic/steamset/storage"
)

var applicationColumns = []string{
	"appid", "name", "type", "is_free", "release_date", "required_age",
	"metacritic_score", "recommendations_total", "header_image", "background",
	"detailed_description", "short_description", "about_the_game", "supported_languages",
	"price_overview", "pc_requirements", "mac_requirements", "linux_requirements",
	"achievements", "content_descriptors", "package_groups", "screenshots", "movies", "ratings",
	"base_app_id", "supports_windows", "supports_mac", "supports_linux",
	"fetched_at", "combined_text",
}

var reviewColumns = []string{
	"recommendationid", "appid", "author_steamid", "author_num_games_owned",
	"author_num_reviews", "author_playtime_forever", "author_playtime_last_two_weeks",
	"author_playtime_at_review", "author_last_played", "language", "review_text",
	"timestamp_created", "timestamp_updated", "voted_up", "votes_up", "votes_funny",
	"weighted_vote_score", "comment_count", "steam_purchase", "received_for_free",
	"written_during_early_access",
}

// WriteImport inserts applications, then reviews, then associations in one
// transaction. Applications use a plain INSERT, so a duplicate appid fails the
// whole write. Reviews and associations ignore rows that already exist.
func (b *Backend) WriteImport(ctx context.Context, rows *storage.ImportRows) (*storage.WriteStats, error) {
	stats := &storage.WriteStats{Associations: make(map[core.DimensionKind]int)}
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		// Counters are reset on every attempt so a retried unit of work
		// never double counts.
		*stats = storage.WriteStats{Associations: make(map[core.DimensionKind]int)}

		if err := b.insertApplications(ctx, tx, rows.Applications, stats); err != nil {
			return err
		}
		if err := b.insertReviews(ctx, tx, rows.Reviews, stats); err != nil {
			return err
		}
		return b.insertAssociations(ctx, tx, rows.Associations, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (b *Backend) insertApplications(ctx context.Context, tx *sql.Tx, apps []*core.Application, stats *storage.WriteStats) error {
	if len(apps) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO applications (%s) VALUES (%s)",
		strings.Join(applicationColumns, ", "), placeholders(1, len(applicationColumns)))
	stmt, err := tx.PrepareContext(ctx, b.dialect.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare applications insert: %w", classify(err))
	}
	defer stmt.Close()

	for _, app := range apps {
		_, err := stmt.ExecContext(ctx,
			app.AppID, app.Name, app.Type, app.IsFree, app.ReleaseDate, app.RequiredAge,
			app.MetacriticScore, app.RecommendationsTotal, app.HeaderImage, app.Background,
			app.DetailedDescription, app.ShortDescription, app.AboutTheGame, app.SupportedLanguages,
			jsonArg(app.PriceOverview), jsonArg(app.PCRequirements), jsonArg(app.MacRequirements),
			jsonArg(app.LinuxRequirements), jsonArg(app.Achievements), jsonArg(app.ContentDescriptors),
			jsonArg(app.PackageGroups), jsonArg(app.Screenshots), jsonArg(app.Movies), jsonArg(app.Ratings),
			app.BaseAppID, app.SupportsWindows, app.SupportsMac, app.SupportsLinux,
			app.FetchedAt, textArg(app.CombinedText),
		)
		if err != nil {
			return &storage.RowError{Table: "applications", ID: app.AppID, Err: classify(err)}
		}
		stats.Applications++
	}
	return nil
}

func (b *Backend) insertReviews(ctx context.Context, tx *sql.Tx, reviews []*core.Review, stats *storage.WriteStats) error {
	if len(reviews) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO reviews (%s) VALUES (%s) ON CONFLICT (recommendationid) DO NOTHING",
		strings.Join(reviewColumns, ", "), placeholders(1, len(reviewColumns)))
	stmt, err := tx.PrepareContext(ctx, b.dialect.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare reviews insert: %w", classify(err))
	}
	defer stmt.Close()

	for _, r := range reviews {
		res, err := stmt.ExecContext(ctx,
			r.RecommendationID, r.AppID, r.AuthorSteamID, r.AuthorNumGamesOwned,
			r.AuthorNumReviews, r.AuthorPlaytimeForever, r.AuthorPlaytimeLastTwoWks,
			r.AuthorPlaytimeAtReview, r.AuthorLastPlayed, r.Language, r.ReviewText,
			r.TimestampCreated, r.TimestampUpdated, r.VotedUp, r.VotesUp, r.VotesFunny,
			r.WeightedVoteScore, r.CommentCount, r.SteamPurchase, r.ReceivedForFree,
			r.WrittenDuringEarlyAccess,
		)
		if err != nil {
			return &storage.RowError{Table: "reviews", ID: r.RecommendationID, Err: classify(err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reviews insert: %w", err)
		}
		stats.Reviews += int(n)
	}
	return nil
}

func (b *Backend) insertAssociations(ctx context.Context, tx *sql.Tx, assocs []core.Association, stats *storage.WriteStats) error {
	for _, kind := range core.DimensionKinds {
		var ofKind []core.Association
		for _, a := range assocs {
			if a.Kind == kind {
				ofKind = append(ofKind, a)
			}
		}
		if len(ofKind) == 0 {
			continue
		}
		query := fmt.Sprintf("INSERT INTO %s (appid, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			kind.JunctionTable(), kind.ForeignKey())
		stmt, err := tx.PrepareContext(ctx, b.dialect.rebind(query))
		if err != nil {
			return fmt.Errorf("prepare %s insert: %w", kind.JunctionTable(), classify(err))
		}
		for _, a := range ofKind {
			res, err := stmt.ExecContext(ctx, a.AppID, a.DimensionID)
			if err != nil {
				stmt.Close()
				return &storage.RowError{Table: kind.JunctionTable(), ID: a.AppID, Err: classify(err)}
			}
			n, err := res.RowsAffected()
			if err != nil {
				stmt.Close()
				return fmt.Errorf("%s insert: %w", kind.JunctionTable(), err)
			}
			stats.Associations[kind] += int(n)
		}
		stmt.Close()
	}
	return nil
}

// ExistingAppIDs returns the subset of ids already present in applications.
func (b *Backend) ExistingAppIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	found := make(map[int64]struct{})
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for chunk := range slices.Chunk(sorted, maxParamsPerStatement) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		err := func() error {
			rows, err := b.query(ctx, b.db,
				fmt.Sprintf("SELECT appid FROM applications WHERE appid IN (%s)", placeholders(1, len(chunk))),
				args...)
			if err != nil {
				return classify(err)
			}
			defer rows.Close()
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return err
				}
				found[id] = struct{}{}
			}
			return classify(rows.Err())
		}()
		if err != nil {
			return nil, fmt.Errorf("query existing appids: %w", err)
		}
	}
	return found, nil
}

// CountRows returns the number of rows in table. table must be a fixed
// identifier, never user input.
func (b *Backend) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := b.queryRow(ctx, b.db, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func textArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}
