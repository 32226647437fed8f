package consistency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

var errInjected = errors.New("injected failure")

// faultyStore fails selected writes on top of the in-memory backend.
type faultyStore struct {
	*store.Memory
	mu             sync.Mutex
	failAggregate  bool
	dropFavoriteN  int
	dropUserCountN int
}

func (f *faultyStore) RatingAggregate(ctx context.Context, animeID string) (int64, int64, error) {
	if f.failAggregate {
		return 0, 0, errInjected
	}
	return f.Memory.RatingAggregate(ctx, animeID)
}

func (f *faultyStore) IncrementFavoriteCount(ctx context.Context, id string, delta int64) error {
	f.mu.Lock()
	drop := f.dropFavoriteN > 0
	if drop {
		f.dropFavoriteN--
	}
	f.mu.Unlock()
	if drop {
		return errInjected
	}
	return f.Memory.IncrementFavoriteCount(ctx, id, delta)
}

func (f *faultyStore) IncrementUserCounter(ctx context.Context, id string, c domain.UserCounter, delta int) error {
	f.mu.Lock()
	drop := f.dropUserCountN > 0
	if drop {
		f.dropUserCountN--
	}
	f.mu.Unlock()
	if drop {
		return errInjected
	}
	return f.Memory.IncrementUserCounter(ctx, id, c, delta)
}

type repairLog struct {
	mu   sync.Mutex
	reqs []string
}

func (l *repairLog) RequestRepair(_ context.Context, kind Kind, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, string(kind)+":"+id)
}

type fixture struct {
	backend  *faultyStore
	s        store.Store
	ratings  *RatingManager
	counters *Counters
	rec      *Reconciler
	repairs  *repairLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := &faultyStore{Memory: store.NewMemory()}
	s := store.From(b)
	repairs := &repairLog{}
	ratings := NewRatingManager(s, RatingOptions{}, nil)
	counters := NewCounters(s, repairs, nil)
	return &fixture{
		backend:  b,
		s:        s,
		ratings:  ratings,
		counters: counters,
		rec:      NewReconciler(s, ratings, counters, ReconcileOptions{BatchSize: 2}, nil),
		repairs:  repairs,
	}
}

func (f *fixture) anime(t *testing.T, title string, genres ...string) domain.Anime {
	t.Helper()
	a := domain.Anime{Title: title, Genres: genres, Status: domain.AnimeOngoing, Type: domain.TypeTV}
	require.NoError(t, f.s.Anime.CreateAnime(context.Background(), &a))
	return a
}

func (f *fixture) reviews(t *testing.T, animeID string, ratings ...int) {
	t.Helper()
	for i, r := range ratings {
		rv := domain.Review{UserID: fmt.Sprintf("reviewer-%d", i), AnimeID: animeID, Rating: r}
		require.NoError(t, f.s.Reviews.CreateReview(context.Background(), &rv))
	}
}

func TestRecomputeRating(t *testing.T) {
	cases := []struct {
		name    string
		ratings []int
		want    float64
	}{
		{"mean of three", []int{7, 8, 9}, 8.0},
		{"rounds half up", []int{6, 7, 7}, 6.7},
		{"no reviews", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			a := f.anime(t, "Subject")
			f.reviews(t, a.ID, tc.ratings...)

			rating, count, err := f.ratings.Recompute(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, rating)
			assert.Equal(t, len(tc.ratings), count)

			stored, err := f.s.Anime.GetAnime(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stored.Rating)
			assert.Equal(t, len(tc.ratings), stored.RatingCount)
		})
	}
}

func TestRecomputeRatingIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "Subject")
	f.reviews(t, a.ID, 3, 10, 6, 9)

	r1, c1, err := f.ratings.Recompute(ctx, a.ID)
	require.NoError(t, err)
	r2, c2, err := f.ratings.Recompute(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c2)
}

func TestRecomputeRatingFallsBackWhenAggregateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "Subject")
	f.reviews(t, a.ID, 6, 7, 7)
	f.backend.failAggregate = true

	// enough calls to open the breaker; every one must still succeed
	for range 8 {
		rating, count, err := f.ratings.Recompute(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 6.7, rating)
		assert.Equal(t, 3, count)
	}
}

func TestRecomputeRatingUnknownAnime(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.ratings.Recompute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFavoriteCounterRecoversAfterDroppedWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "Subject")

	for _, user := range []string{"u1", "u2", "u3"} {
		rel := domain.Relation{UserID: user, AnimeID: a.ID, Status: domain.Watching, Favorite: true}
		require.NoError(t, f.s.Relations.CreateRelation(ctx, &rel))
		if user == "u2" {
			f.backend.dropFavoriteN = 1
		}
		f.counters.FavoriteChanged(ctx, user, a.ID, +1)
	}

	drifted, err := f.s.Anime.GetAnime(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, drifted.FavoriteCount)
	assert.Contains(t, f.repairs.reqs, "anime:"+a.ID)

	rep, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Positive(t, rep.Corrections)

	healed, err := f.s.Anime.GetAnime(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, healed.FavoriteCount)

	again, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Corrections)
}

func TestReconcileUserCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "One")
	b := f.anime(t, "Two")

	require.NoError(t, f.s.Users.UpsertUser(ctx, domain.User{ID: "u1", Username: "kei"}))
	require.NoError(t, f.s.Users.IncrementUserCounter(ctx, "u1", domain.CounterWatched, 5))
	require.NoError(t, f.s.Users.IncrementUserCounter(ctx, "u1", domain.CounterReviews, 4))

	for _, id := range []string{a.ID, b.ID} {
		rel := domain.Relation{UserID: "u1", AnimeID: id, Status: domain.Watching, Favorite: true}
		require.NoError(t, f.s.Relations.CreateRelation(ctx, &rel))
	}
	rv := domain.Review{UserID: "u1", AnimeID: a.ID, Rating: 8}
	require.NoError(t, f.s.Reviews.CreateReview(ctx, &rv))

	n, err := f.rec.ReconcileUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, err := f.s.Users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.FavoriteCount)
	assert.Equal(t, 1, u.ReviewCount)
	assert.Equal(t, 5, u.WatchedCount, "watched is never lowered")
}

func TestReconcileUserCreatesMissingUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "One")
	rel := domain.Relation{UserID: "ghost", AnimeID: a.ID, Status: domain.Completed, Favorite: true}
	require.NoError(t, f.s.Relations.CreateRelation(ctx, &rel))
	_, _, err := f.s.Relations.ApplyRelationChange(ctx, rel.ID, store.RelationChange{MarkCompleted: true})
	require.NoError(t, err)

	_, err = f.rec.Repair(ctx, KindUser, "ghost")
	require.NoError(t, err)

	u, err := f.s.Users.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, u.FavoriteCount)
	assert.Equal(t, 1, u.WatchedCount)
}

func TestSweepFindsUsersWithoutRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.anime(t, "One")
	require.NoError(t, f.s.Users.UpsertUser(ctx, domain.User{ID: "known", Username: "kei"}))

	rel := domain.Relation{UserID: "ghost", AnimeID: a.ID, Status: domain.Watching, Favorite: true}
	require.NoError(t, f.s.Relations.CreateRelation(ctx, &rel))
	rv := domain.Review{UserID: "critic", AnimeID: a.ID, Rating: 6}
	require.NoError(t, f.s.Reviews.CreateReview(ctx, &rv))

	rep, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Users)

	ghost, err := f.s.Users.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, ghost.FavoriteCount)
	critic, err := f.s.Users.GetUser(ctx, "critic")
	require.NoError(t, err)
	assert.Equal(t, 1, critic.ReviewCount)
}

func TestStudioMembershipAndReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	studio := domain.Studio{Name: "Madhouse"}
	require.NoError(t, f.s.Studios.CreateStudio(ctx, &studio))

	a := domain.Anime{Title: "One", StudioID: studio.ID, Status: domain.AnimeOngoing, Type: domain.TypeTV}
	require.NoError(t, f.s.Anime.CreateAnime(ctx, &a))
	f.counters.AddAnimeToStudio(ctx, studio.ID, a.ID)
	f.counters.AddAnimeToStudio(ctx, studio.ID, a.ID)

	got, err := f.s.Studios.GetStudio(ctx, studio.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnimeCount)

	// an anime referencing the studio that never made it into the list
	b := domain.Anime{Title: "Two", StudioID: studio.ID, Status: domain.AnimeOngoing, Type: domain.TypeTV}
	require.NoError(t, f.s.Anime.CreateAnime(ctx, &b))

	n, err := f.rec.ReconcileStudio(ctx, studio.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = f.s.Studios.GetStudio(ctx, studio.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AnimeCount)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, got.AnimeIDs)

	f.counters.RemoveAnimeFromStudio(ctx, studio.ID, a.ID)
	got, err = f.s.Studios.GetStudio(ctx, studio.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnimeCount)
}

func TestGenreRecountConverges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"Action", "Drama", "Comedy"} {
		require.NoError(t, f.s.Genres.CreateGenre(ctx, &domain.Genre{Name: name, Active: true}))
	}
	fixtures := []domain.Anime{
		f.anime(t, "A", "Action"),
		f.anime(t, "B", "Action", "Drama"),
		f.anime(t, "C", "Comedy"),
		f.anime(t, "D", "Drama", "Unlisted"),
	}

	// retag without any incremental update
	for i, genres := range [][]string{{"Drama"}, {"Action", "Comedy"}, {"Comedy", "Drama"}} {
		a := fixtures[i]
		a.Genres = genres
		_, err := f.s.Anime.UpdateAnime(ctx, a)
		require.NoError(t, err)
	}

	_, err := f.counters.RecountAllGenres(ctx)
	require.NoError(t, err)

	want := map[string]int{}
	all, _, err := f.s.Anime.FindAnime(ctx, store.AnimeQuery{})
	require.NoError(t, err)
	for _, a := range all {
		for _, g := range a.Genres {
			want[g]++
		}
	}
	genres, err := f.s.Genres.ListGenres(ctx, false)
	require.NoError(t, err)
	require.Len(t, genres, 3)
	for _, g := range genres {
		assert.Equal(t, want[g.Name], g.AnimeCount, g.Name)
	}
}

func TestRecountGenresSkipsUnknownTags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.s.Genres.CreateGenre(ctx, &domain.Genre{Name: "Action", Active: true}))
	f.anime(t, "A", "Action", "Mystery")

	f.counters.RecountGenres(ctx, "Action", "Mystery")
	g, err := f.s.Genres.GetGenreByName(ctx, "Action")
	require.NoError(t, err)
	assert.Equal(t, 1, g.AnimeCount)
	assert.Empty(t, f.repairs.reqs)
}

func TestDroppedUserCounterRequestsRepair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.dropUserCountN = 1
	f.counters.Completed(ctx, "u9")
	assert.Equal(t, []string{"user:u9"}, f.repairs.reqs)
}

func TestRunRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.rec.running.Store(true)
	_, err := f.rec.Run(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRepairRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Repair(context.Background(), Kind("planet"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}
