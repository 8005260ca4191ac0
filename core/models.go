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

package core

import (
	"encoding/hex"
	"encoding/json"
	"hash"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Digest returns a short, deterministic BLAKE2b fingerprint of raw bytes.
// It identifies source payload files in logs and import reports.
func Digest(data []byte) string {
	h := NewDigest()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NewDigest returns the streaming form of Digest. The hex encoding of its
// Sum equals Digest of the same bytes.
func NewDigest() hash.Hash {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	return h
}

// AppTypes lists the content-type tags accepted for an application.
// Any other tag is stored as NULL.
var AppTypes = []string{
	"game", "dlc", "software", "video", "demo",
	"music", "advertising", "mod", "episode", "series",
}

// Application is the primary catalog record, keyed by its Steam appid.
type Application struct {
	AppID                int64
	Name                 string
	Type                 *string
	IsFree               bool
	ReleaseDate          *time.Time
	RequiredAge          int
	MetacriticScore      *int
	RecommendationsTotal *int
	HeaderImage          *string
	Background           *string
	DetailedDescription  *string
	ShortDescription     *string
	AboutTheGame         *string
	SupportedLanguages   *string

	// Nested fragments, stored verbatim. Nil means the source had none.
	PriceOverview      json.RawMessage
	PCRequirements     json.RawMessage
	MacRequirements    json.RawMessage
	LinuxRequirements  json.RawMessage
	Achievements       json.RawMessage
	ContentDescriptors json.RawMessage
	PackageGroups      json.RawMessage
	Screenshots        json.RawMessage
	Movies             json.RawMessage
	Ratings            json.RawMessage

	BaseAppID       *int64
	SupportsWindows bool
	SupportsMac     bool
	SupportsLinux   bool
	FetchedAt       *time.Time

	// CombinedText is the source text for the description embedding.
	CombinedText string

	Developers []string
	Publishers []string
	Genres     []string
	Categories []string
}

// Dimensions returns the dimension names the application references for kind.
func (a *Application) Dimensions(kind DimensionKind) []string {
	switch kind {
	case DimensionDeveloper:
		return a.Developers
	case DimensionPublisher:
		return a.Publishers
	case DimensionGenre:
		return a.Genres
	case DimensionCategory:
		return a.Categories
	}
	return nil
}

// Review is a user review. It always belongs to an existing Application.
type Review struct {
	RecommendationID         int64
	AppID                    int64
	AuthorSteamID            *string
	AuthorNumGamesOwned      *int64
	AuthorNumReviews         *int64
	AuthorPlaytimeForever    *int64
	AuthorPlaytimeLastTwoWks *int64
	AuthorPlaytimeAtReview   *int64
	AuthorLastPlayed         *int64
	Language                 *string
	ReviewText               *string
	TimestampCreated         *int64
	TimestampUpdated         *int64
	VotedUp                  bool
	VotesUp                  int64
	VotesFunny               int64
	WeightedVoteScore        float64
	CommentCount             int64
	SteamPurchase            bool
	ReceivedForFree          bool
	WrittenDuringEarlyAccess bool
}

// Batch is one unit of import: applications plus the reviews that hang off them.
type Batch struct {
	Applications []*Application
	Reviews      []*Review

	// KnownAppIDs holds appids that already exist in the store and may be
	// referenced by reviews without being part of Applications.
	KnownAppIDs map[int64]struct{}

	// Sources lists the digests of the payload files that produced the batch.
	Sources []string
}

// Association links an application to a dimension entity.
type Association struct {
	Kind        DimensionKind
	AppID       int64
	DimensionID int64
}

// EmbeddingRun records the provenance of a set of vectors.
// (ModelName, Dimension, Normalized) is unique.
type EmbeddingRun struct {
	RunID      int64
	ModelName  string
	Dimension  int
	Normalized bool
	CreatedAt  time.Time
}

// EmbeddingTarget names the table and columns an embedding pass reads and writes.
type EmbeddingTarget struct {
	Name         string
	Table        string
	IDColumn     string
	TextColumn   string
	VectorColumn string
}

// TextRow is one row awaiting an embedding.
type TextRow struct {
	ID   int64
	Text string
}

// Checkpoint stores the last committed keyset cursor of an embedding target.
type Checkpoint struct {
	Key       string
	RunID     int64
	Cursor    int64
	Processed int64
	UpdatedAt time.Time
}

// MaterialSource carries the fragments that materialized columns derive from.
type MaterialSource struct {
	AppID             int64
	IsFree            bool
	PriceOverview     json.RawMessage
	PCRequirements    json.RawMessage
	MacRequirements   json.RawMessage
	LinuxRequirements json.RawMessage
	Achievements      json.RawMessage
}

// MaterializedRow is the set of materialized column values for one application.
// Columns absent from Values are NULL.
type MaterializedRow struct {
	AppID  int64
	Values map[string]Value
}

// Get returns the value of column, NULL if unset.
func (r MaterializedRow) Get(column string) Value {
	if v, ok := r.Values[column]; ok {
		return v
	}
	return Null()
}

// StoredMaterial pairs an application's source fragments with the values
// currently stored in its materialized columns.
type StoredMaterial struct {
	Source MaterialSource
	Stored MaterializedRow
}
