// Package store defines the catalog's persistence contracts. Every method is
// a single-document operation: counters move through atomic increments or
// conditional sets, never through read-modify-write in application code.
package store

import (
	"context"
	"time"

	"github.com/example/animefan/services/catalog/internal/domain"
)

// AnimeRef is the slim projection used by reconciliation sweeps.
type AnimeRef struct {
	ID            string
	StudioID      string
	Genres        []string
	FavoriteCount int64
}

type AnimeStore interface {
	CreateAnime(ctx context.Context, a *domain.Anime) error
	GetAnime(ctx context.Context, id string) (domain.Anime, error)
	GetAnimeByIDs(ctx context.Context, ids []string) ([]domain.Anime, error)
	// UpdateAnime replaces descriptive fields only; rating, counters,
	// episodes and related links have their own writers.
	UpdateAnime(ctx context.Context, a domain.Anime) (domain.Anime, error)
	DeleteAnime(ctx context.Context, id string) (domain.Anime, error)

	FindAnime(ctx context.Context, q AnimeQuery) ([]domain.Anime, int64, error)
	TextSearch(ctx context.Context, text string, offset, limit int) ([]domain.Anime, int64, error)
	TitleContains(ctx context.Context, text string, limit int) ([]domain.Anime, error)
	TopRated(ctx context.Context, minRatings, limit int) ([]domain.Anime, error)
	GenreAggregates(ctx context.Context) ([]domain.GenreStat, error)
	CountAnime(ctx context.Context) (int64, error)
	CountAnimeWithGenres(ctx context.Context, names []string) (map[string]int64, error)
	AllGenreCounts(ctx context.Context) (map[string]int64, error)
	AnimeIDsByStudio(ctx context.Context, studioID string) ([]string, error)
	ListAnimeRefs(ctx context.Context, afterID string, limit int) ([]AnimeRef, error)

	SetRating(ctx context.Context, id string, rating float64, count int) error
	IncrementViewCount(ctx context.Context, id string, delta int64) error
	IncrementFavoriteCount(ctx context.Context, id string, delta int64) error
	SetFavoriteCount(ctx context.Context, id string, n int64) error

	PushEpisode(ctx context.Context, animeID string, ep domain.Episode) error
	ReplaceEpisode(ctx context.Context, animeID string, ep domain.Episode) error
	PullEpisode(ctx context.Context, animeID string, number int) error
	PushRelated(ctx context.Context, animeID string, link domain.RelatedAnime) error
	PullRelated(ctx context.Context, animeID, relatedID string) error
}

type ReviewOrder int

const (
	ReviewsNewest ReviewOrder = iota
	ReviewsMostHelpful
)

type ReviewEdit struct {
	Rating  int
	Title   string
	Content string
	Spoiler bool
}

type ReviewStore interface {
	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (domain.Review, error)
	FindReview(ctx context.Context, userID, animeID string) (domain.Review, error)
	UpdateReview(ctx context.Context, id string, edit ReviewEdit) (domain.Review, error)
	DeleteReview(ctx context.Context, id string) (domain.Review, error)
	ListReviewsByAnime(ctx context.Context, animeID string, order ReviewOrder, offset, limit int) ([]domain.Review, int64, error)
	ListReviewsByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Review, int64, error)
	IncrementHelpful(ctx context.Context, id string, helpful bool) error

	// RatingAggregate is the store-side SUM/COUNT over an anime's reviews.
	RatingAggregate(ctx context.Context, animeID string) (sum, count int64, err error)
	ReviewRatings(ctx context.Context, animeID string) ([]int, error)
	RatingHistogram(ctx context.Context, animeID string) ([]domain.RatingBucket, error)
	TopReviewers(ctx context.Context, limit int) ([]domain.ReviewerStat, error)
	CountReviews(ctx context.Context) (int64, error)
	CountReviewsByAnime(ctx context.Context, animeID string) (int64, error)
	CountReviewsByUser(ctx context.Context, userID string) (int64, error)
}

// RelationChange is applied to one relation in a single atomic write.
// Nil fields are left untouched.
type RelationChange struct {
	Status          *domain.WatchStatus
	UserRating      *int
	EpisodesWatched *int
	Notes           *string
	Favorite        *bool
	ToggleFavorite  bool
	// MarkStarted and MarkCompleted set the timestamp only when unset.
	MarkStarted   bool
	MarkCompleted bool
	At            time.Time
}

type RelationFilter struct {
	Status        domain.WatchStatus
	FavoritesOnly bool
}

type RelationStore interface {
	CreateRelation(ctx context.Context, r *domain.Relation) error
	GetRelation(ctx context.Context, id string) (domain.Relation, error)
	FindRelation(ctx context.Context, userID, animeID string) (domain.Relation, error)
	// ApplyRelationChange returns the document as it was immediately before
	// and after the write, so callers can derive counter deltas race-free.
	ApplyRelationChange(ctx context.Context, id string, ch RelationChange) (prev, cur domain.Relation, err error)
	DeleteRelation(ctx context.Context, id string) (domain.Relation, error)
	ListRelationsByUser(ctx context.Context, userID string, f RelationFilter, offset, limit int) ([]domain.Relation, int64, error)
	ListRelationsByAnime(ctx context.Context, animeID string) ([]domain.Relation, error)

	CountRelationsByStatus(ctx context.Context, userID string, status domain.WatchStatus) (int64, error)
	CountUserFavorites(ctx context.Context, userID string) (int64, error)
	CountUserCompletions(ctx context.Context, userID string) (int64, error)
	CountRelationsByAnime(ctx context.Context, animeID string) (int64, error)
	CountAnimeFavorites(ctx context.Context, animeID string) (int64, error)
	UserGenrePreferences(ctx context.Context, userID string, limit int) ([]domain.GenrePreference, error)
}

type StudioStore interface {
	CreateStudio(ctx context.Context, s *domain.Studio) error
	GetStudio(ctx context.Context, id string) (domain.Studio, error)
	UpdateStudio(ctx context.Context, s domain.Studio) (domain.Studio, error)
	DeleteStudio(ctx context.Context, id string) error
	ListStudios(ctx context.Context, offset, limit int) ([]domain.Studio, int64, error)
	TopStudios(ctx context.Context, limit int) ([]domain.Studio, error)
	CountStudios(ctx context.Context) (int64, error)
	ListStudioIDs(ctx context.Context, afterID string, limit int) ([]string, error)

	// AddStudioAnime appends animeID and bumps AnimeCount in one write; a
	// no-op when already present.
	AddStudioAnime(ctx context.Context, studioID, animeID string) error
	// RemoveStudioAnime is the inverse; a no-op when absent.
	RemoveStudioAnime(ctx context.Context, studioID, animeID string) error
	// SetStudioAnime overwrites the list and its count together.
	SetStudioAnime(ctx context.Context, studioID string, animeIDs []string) (changed bool, err error)
}

type GenreStore interface {
	CreateGenre(ctx context.Context, g *domain.Genre) error
	GetGenre(ctx context.Context, id string) (domain.Genre, error)
	GetGenreByName(ctx context.Context, name string) (domain.Genre, error)
	UpdateGenre(ctx context.Context, g domain.Genre) (domain.Genre, error)
	DeleteGenre(ctx context.Context, id string) error
	ListGenres(ctx context.Context, activeOnly bool) ([]domain.Genre, error)
	MaxGenreOrder(ctx context.Context) (int, error)
	SetGenreAnimeCount(ctx context.Context, name string, n int64) (changed bool, err error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
	// ListUserIDs pages every known user id in byte order, including ids
	// that appear only on relations or reviews.
	ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	IncrementUserCounter(ctx context.Context, id string, c domain.UserCounter, delta int) error
	SetUserCounter(ctx context.Context, id string, c domain.UserCounter, n int64) (changed bool, err error)
	// RaiseWatchedCount lifts WatchedCount to at least n; it never lowers it.
	RaiseWatchedCount(ctx context.Context, id string, n int64) (changed bool, err error)
}

// Store bundles the collections the catalog core reads and writes.
type Store struct {
	Anime     AnimeStore
	Reviews   ReviewStore
	Relations RelationStore
	Studios   StudioStore
	Genres    GenreStore
	Users     UserStore
}

// Backend is implemented by a single type serving every collection.
type Backend interface {
	AnimeStore
	ReviewStore
	RelationStore
	StudioStore
	GenreStore
	UserStore
}

// From exposes one backend through every collection slot.
func From(b Backend) Store {
	return Store{Anime: b, Reviews: b, Relations: b, Studios: b, Genres: b, Users: b}
}
