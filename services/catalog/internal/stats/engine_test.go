package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

var errDown = errors.New("aggregation unavailable")

// brokenStore fails every aggregate on top of the in-memory backend.
type brokenStore struct{ *store.Memory }

func (brokenStore) GenreAggregates(context.Context) ([]domain.GenreStat, error) {
	return nil, errDown
}

func (brokenStore) TopRated(context.Context, int, int) ([]domain.Anime, error) {
	return nil, errDown
}

func (brokenStore) CountRelationsByStatus(context.Context, string, domain.WatchStatus) (int64, error) {
	return 0, errDown
}

func (brokenStore) CountReviewsByAnime(context.Context, string) (int64, error) {
	return 0, errDown
}

func addAnime(t *testing.T, m *store.Memory, title string, rating float64, count int, genres ...string) domain.Anime {
	t.Helper()
	a := domain.Anime{Title: title, Genres: genres, Rating: rating, RatingCount: count, Status: domain.AnimeCompleted, Type: domain.TypeTV}
	require.NoError(t, m.CreateAnime(context.Background(), &a))
	return a
}

func TestTopAnimeRequiresMinimumRatings(t *testing.T) {
	m := store.NewMemory()
	addAnime(t, m, "Niche Gem", 9.9, 3)
	addAnime(t, m, "Classic", 9.0, 120)
	addAnime(t, m, "Popular", 8.1, 10)
	e := NewEngine(m.Store(), nil, Options{}, nil)

	top := e.TopAnime(context.Background(), 10)
	require.Len(t, top, 2)
	assert.Equal(t, "Classic", top[0].Title)
	assert.Equal(t, "Popular", top[1].Title)

	loose := NewEngine(m.Store(), nil, Options{MinRatings: 1}, nil)
	assert.Equal(t, "Niche Gem", loose.TopAnime(context.Background(), 1)[0].Title)
}

func TestTopAnimeFullListSkipsThinlyRated(t *testing.T) {
	m := store.NewMemory()
	addAnime(t, m, "Perfect Debut", 10.0, 3)
	addAnime(t, m, "Almost There", 9.5, 9)
	for i := range 11 {
		addAnime(t, m, fmt.Sprintf("Established %02d", i), 8.0-float64(i)/10, 10+i)
	}
	e := NewEngine(m.Store(), nil, Options{}, nil)

	top := e.TopAnime(context.Background(), 10)
	require.Len(t, top, 10)
	for i, a := range top {
		assert.Equal(t, fmt.Sprintf("Established %02d", i), a.Title)
		assert.GreaterOrEqual(t, a.RatingCount, 10)
	}
}

func TestGenreStatisticsUnwindsTags(t *testing.T) {
	m := store.NewMemory()
	addAnime(t, m, "A", 8, 10, "Action", "Drama")
	addAnime(t, m, "B", 6, 10, "Action")
	e := NewEngine(m.Store(), nil, Options{}, nil)

	got := e.GenreStatistics(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "Action", got[0].Genre)
	assert.Equal(t, int64(2), got[0].AnimeCount)
	assert.InDelta(t, 7.0, got[0].AverageRating, 1e-9)
	assert.Equal(t, "Drama", got[1].Genre)
}

func TestPlatformStatsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	addAnime(t, m, "Only", 9, 12, "Mecha")
	require.NoError(t, m.CreateStudio(ctx, &domain.Studio{Name: "Sunrise"}))
	require.NoError(t, m.IncrementUserCounter(ctx, "u1", domain.CounterReviews, 0))
	e := NewEngine(m.Store(), NewTTLCache(0), Options{}, nil)

	first := e.PlatformStats(ctx)
	assert.Equal(t, int64(1), first.TotalAnime)
	assert.Equal(t, int64(1), first.TotalStudios)
	assert.Equal(t, int64(1), first.TotalUsers)
	require.Len(t, first.TopAnime, 1)
	require.Len(t, first.Genres, 1)

	addAnime(t, m, "Second", 5, 1)
	assert.Equal(t, int64(1), e.PlatformStats(ctx).TotalAnime)

	require.NoError(t, e.Invalidate(ctx))
	assert.Equal(t, int64(2), e.PlatformStats(ctx).TotalAnime)
}

func TestDegradedReadsAreEmptyAndUncached(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	a := addAnime(t, m, "Solo", 7, 10, "Drama")
	cache := NewTTLCache(0)
	e := NewEngine(store.From(brokenStore{m}), cache, Options{}, nil)

	ps := e.PlatformStats(ctx)
	assert.Zero(t, ps.TotalAnime)
	assert.Empty(t, ps.Genres)
	assert.Empty(t, ps.TopAnime)
	var held domain.PlatformStats
	hit, err := cache.Get(ctx, keyPlatform, &held)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Empty(t, e.GenreStatistics(ctx))
	assert.Empty(t, e.TopAnime(ctx, 5))

	st, err := e.AnimeStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Solo", st.Title)
	assert.Zero(t, st.ReviewCount)
}

func TestUserStats(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for i, st := range []domain.WatchStatus{domain.Watching, domain.Completed, domain.Completed, domain.PlanToWatch} {
		a := addAnime(t, m, string(rune('A'+i)), 7, 1, "Action")
		require.NoError(t, m.CreateRelation(ctx, &domain.Relation{UserID: "u1", AnimeID: a.ID, Status: st, Favorite: i == 0}))
	}
	require.NoError(t, m.CreateReview(ctx, &domain.Review{UserID: "u1", AnimeID: "x", Rating: 5, Content: "ok"}))
	e := NewEngine(m.Store(), nil, Options{}, nil)

	got := e.UserStats(ctx, "u1")
	assert.Equal(t, domain.UserStats{
		UserID:      "u1",
		Watching:    1,
		Completed:   2,
		PlanToWatch: 1,
		Favorites:   1,
		Reviews:     1,
		TotalInList: 4,
	}, got)

	prefs := e.UserGenrePreferences(ctx, "u1", 5)
	require.Len(t, prefs, 1)
	assert.Equal(t, domain.GenrePreference{Genre: "Action", Count: 4}, prefs[0])

	degraded := NewEngine(store.From(brokenStore{m}), nil, Options{}, nil).UserStats(ctx, "u1")
	assert.Zero(t, degraded.TotalInList)
	assert.Equal(t, int64(1), degraded.Favorites)
}

func TestAnimeStats(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	a := addAnime(t, m, "Frieren", 9.3, 2)
	require.NoError(t, m.CreateRelation(ctx, &domain.Relation{UserID: "u1", AnimeID: a.ID, Status: domain.Watching, Favorite: true}))
	require.NoError(t, m.CreateRelation(ctx, &domain.Relation{UserID: "u2", AnimeID: a.ID, Status: domain.Dropped}))
	require.NoError(t, m.CreateReview(ctx, &domain.Review{UserID: "u1", AnimeID: a.ID, Rating: 10, Content: "x", Username: "himmel"}))
	require.NoError(t, m.CreateReview(ctx, &domain.Review{UserID: "u3", AnimeID: a.ID, Rating: 8, Content: "y"}))
	e := NewEngine(m.Store(), nil, Options{}, nil)

	st, err := e.AnimeStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.UserCount)
	assert.Equal(t, int64(1), st.FavoriteCount)
	assert.Equal(t, int64(2), st.ReviewCount)
	assert.Equal(t, 9.3, st.Rating)

	_, err = e.AnimeStats(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, []domain.RatingBucket{{Rating: 8, Count: 1}, {Rating: 10, Count: 1}}, e.RatingDistribution(ctx, a.ID))
	reviewers := e.TopReviewers(ctx, 1)
	require.Len(t, reviewers, 1)
	assert.Equal(t, int64(1), reviewers[0].ReviewCount)
}
