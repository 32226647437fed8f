package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func seedAnime(t *testing.T, m *Memory, a domain.Anime) domain.Anime {
	t.Helper()
	require.NoError(t, m.CreateAnime(context.Background(), &a))
	return a
}

func TestMemoryAnimeTitleUnique(t *testing.T) {
	m := NewMemory()
	seedAnime(t, m, domain.Anime{Title: "Mushishi", Status: domain.AnimeCompleted, Type: domain.TypeTV})

	err := m.CreateAnime(context.Background(), &domain.Anime{Title: "MUSHISHI"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestMemoryFindAnimeComposesPredicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedAnime(t, m, domain.Anime{Title: "A", Genres: []string{"Action"}, ReleaseYear: 2012, Rating: 7.5})
	seedAnime(t, m, domain.Anime{Title: "B", Genres: []string{"Action", "Drama"}, ReleaseYear: 2018, Rating: 8.9})
	seedAnime(t, m, domain.Anime{Title: "C", Genres: []string{"Action"}, ReleaseYear: 2005, Rating: 9.1})
	seedAnime(t, m, domain.Anime{Title: "D", Genres: []string{"Comedy"}, ReleaseYear: 2015, Rating: 6.0})

	from, to := 2010, 2020
	items, total, err := m.FindAnime(ctx, AnimeQuery{
		Predicates: []Predicate{GenresAny{Genres: []string{"Action"}}, YearRange{From: &from, To: &to}},
		Sort:       Sort{Field: SortRating},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].Title)
	assert.Equal(t, "A", items[1].Title)
}

func TestMemoryFindAnimeWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		seedAnime(t, m, domain.Anime{Title: title})
	}
	items, total, err := m.FindAnime(ctx, AnimeQuery{Sort: Sort{Field: SortTitle, Asc: true}, Offset: 3, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "d", items[0].Title)
}

func TestMemoryTextSearchRanksTitleFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedAnime(t, m, domain.Anime{Title: "Quiet River", Description: "a story about dragons"})
	seedAnime(t, m, domain.Anime{Title: "Dragon Road", Description: "travel"})
	seedAnime(t, m, domain.Anime{Title: "Unrelated"})

	items, total, err := m.TextSearch(ctx, "dragon", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "Dragon Road", items[0].Title)

	items, total, err = m.TextSearch(ctx, "   ", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := seedAnime(t, m, domain.Anime{Title: "X", Genres: []string{"Drama"}})

	got, err := m.GetAnime(ctx, a.ID)
	require.NoError(t, err)
	got.Genres[0] = "Mutated"

	again, err := m.GetAnime(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drama"}, again.Genres)
}

func TestMemoryApplyRelationChange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := domain.Relation{UserID: "u1", AnimeID: "a1", Status: domain.PlanToWatch}
	require.NoError(t, m.CreateRelation(ctx, &r))

	err := m.CreateRelation(ctx, &domain.Relation{UserID: "u1", AnimeID: "a1", Status: domain.Watching})
	assert.ErrorIs(t, err, domain.ErrConflict)

	status := domain.Completed
	prev, cur, err := m.ApplyRelationChange(ctx, r.ID, RelationChange{Status: &status, MarkCompleted: true, ToggleFavorite: true})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanToWatch, prev.Status)
	assert.False(t, prev.Favorite)
	assert.Nil(t, prev.CompletedAt)
	assert.Equal(t, domain.Completed, cur.Status)
	assert.True(t, cur.Favorite)
	require.NotNil(t, cur.CompletedAt)
	first := *cur.CompletedAt

	prev, cur, err = m.ApplyRelationChange(ctx, r.ID, RelationChange{MarkCompleted: true, ToggleFavorite: true})
	require.NoError(t, err)
	assert.True(t, prev.Favorite)
	assert.False(t, cur.Favorite)
	assert.Equal(t, first, *cur.CompletedAt)

	_, _, err = m.ApplyRelationChange(ctx, "missing", RelationChange{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryUserCountersUpsertAndClamp(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.IncrementUserCounter(ctx, "u1", domain.CounterFavorites, 1))
	require.NoError(t, m.IncrementUserCounter(ctx, "u1", domain.CounterFavorites, -3))
	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.FavoriteCount)

	changed, err := m.RaiseWatchedCount(ctx, "u1", 4)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = m.RaiseWatchedCount(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.SetUserCounter(ctx, "nobody", domain.CounterReviews, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStudioAnimeIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := domain.Studio{Name: "Bones"}
	require.NoError(t, m.CreateStudio(ctx, &s))

	require.NoError(t, m.AddStudioAnime(ctx, s.ID, "a1"))
	require.NoError(t, m.AddStudioAnime(ctx, s.ID, "a1"))
	got, err := m.GetStudio(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnimeCount)

	require.NoError(t, m.RemoveStudioAnime(ctx, s.ID, "a1"))
	require.NoError(t, m.RemoveStudioAnime(ctx, s.ID, "a1"))
	got, err = m.GetStudio(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AnimeCount)
	assert.Empty(t, got.AnimeIDs)

	changed, err := m.SetStudioAnime(ctx, s.ID, []string{"b", "a"})
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = m.SetStudioAnime(ctx, s.ID, []string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMemorySetGenreAnimeCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateGenre(ctx, &domain.Genre{Name: "Action", Active: true}))

	changed, err := m.SetGenreAnimeCount(ctx, "Action", 3)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = m.SetGenreAnimeCount(ctx, "Action", 3)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.SetGenreAnimeCount(ctx, "Nope", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRatingAggregate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, rating := range []int{7, 8, 9} {
		r := domain.Review{UserID: string(rune('a' + i)), AnimeID: "x", Rating: rating}
		require.NoError(t, m.CreateReview(ctx, &r))
	}
	sum, count, err := m.RatingAggregate(ctx, "x")
	require.NoError(t, err)
	assert.EqualValues(t, 24, sum)
	assert.EqualValues(t, 3, count)
}

func TestMemoryFavoritesOrderedByAddedAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	older := domain.Relation{UserID: "u1", AnimeID: "a1", Status: domain.Watching, Favorite: true, AddedAt: base}
	newer := domain.Relation{UserID: "u1", AnimeID: "a2", Status: domain.Watching, Favorite: true, AddedAt: base.Add(time.Hour)}
	require.NoError(t, m.CreateRelation(ctx, &older))
	require.NoError(t, m.CreateRelation(ctx, &newer))

	// touching the older entry moves it first by update time only
	_, _, err := m.ApplyRelationChange(ctx, older.ID, RelationChange{Notes: ptr("rewatch"), At: base.Add(2 * time.Hour)})
	require.NoError(t, err)

	all, _, err := m.ListRelationsByUser(ctx, "u1", RelationFilter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, older.ID, all[0].ID)

	favs, total, err := m.ListRelationsByUser(ctx, "u1", RelationFilter{FavoritesOnly: true}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, favs, 2)
	assert.Equal(t, newer.ID, favs[0].ID)
	assert.Equal(t, older.ID, favs[1].ID)
}
