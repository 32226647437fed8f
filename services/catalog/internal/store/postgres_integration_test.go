//go:build integration

package store

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func startPostgres(t *testing.T) *Postgres {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "catalog",
				"POSTGRES_PASSWORD": "catalog",
				"POSTGRES_DB":       "catalog",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(90*time.Second),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://catalog:catalog@%s:%s/catalog?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))
	return NewPostgres(pool)
}

func TestPostgresBackend(t *testing.T) {
	p := startPostgres(t)
	ctx := context.Background()

	a := domain.Anime{Title: "Dragon Road", Description: "travel", Genres: []string{"Action"}, ReleaseYear: 2015,
		Status: domain.AnimeCompleted, Type: domain.TypeTV}
	require.NoError(t, p.CreateAnime(ctx, &a))
	b := domain.Anime{Title: "Quiet River", Description: "dragon lore", Genres: []string{"Drama"}, ReleaseYear: 2009,
		Status: domain.AnimeOngoing, Type: domain.TypeTV}
	require.NoError(t, p.CreateAnime(ctx, &b))

	t.Run("title conflict", func(t *testing.T) {
		err := p.CreateAnime(ctx, &domain.Anime{Title: "dragon road", Status: domain.AnimeOngoing, Type: domain.TypeTV})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		_, err := p.GetAnime(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("find composes predicates", func(t *testing.T) {
		from, to := 2010, 2020
		items, total, err := p.FindAnime(ctx, AnimeQuery{
			Predicates: []Predicate{GenresAny{Genres: []string{"Action"}}, YearRange{From: &from, To: &to}},
			Limit:      10,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, a.ID, items[0].ID)
	})

	t.Run("text search ranks title matches first", func(t *testing.T) {
		items, total, err := p.TextSearch(ctx, "dragon", 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Equal(t, a.ID, items[0].ID)
	})

	t.Run("rating aggregate", func(t *testing.T) {
		for i, rating := range []int{7, 8, 9} {
			r := domain.Review{UserID: fmt.Sprintf("u%d", i), AnimeID: a.ID, Rating: rating}
			require.NoError(t, p.CreateReview(ctx, &r))
		}
		sum, count, err := p.RatingAggregate(ctx, a.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 24, sum)
		assert.EqualValues(t, 3, count)

		dup := domain.Review{UserID: "u0", AnimeID: a.ID, Rating: 5}
		assert.ErrorIs(t, p.CreateReview(ctx, &dup), domain.ErrConflict)
	})

	t.Run("relation change returns both sides", func(t *testing.T) {
		r := domain.Relation{UserID: "u1", AnimeID: a.ID, Status: domain.PlanToWatch}
		require.NoError(t, p.CreateRelation(ctx, &r))
		status := domain.Completed
		prev, cur, err := p.ApplyRelationChange(ctx, r.ID, RelationChange{Status: &status, MarkCompleted: true, ToggleFavorite: true})
		require.NoError(t, err)
		assert.Equal(t, domain.PlanToWatch, prev.Status)
		assert.Nil(t, prev.CompletedAt)
		assert.False(t, prev.Favorite)
		assert.Equal(t, domain.Completed, cur.Status)
		assert.NotNil(t, cur.CompletedAt)
		assert.True(t, cur.Favorite)
	})

	t.Run("user counters upsert and clamp", func(t *testing.T) {
		require.NoError(t, p.IncrementUserCounter(ctx, "fresh", domain.CounterFavorites, 1))
		require.NoError(t, p.IncrementUserCounter(ctx, "fresh", domain.CounterFavorites, -5))
		u, err := p.GetUser(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, 0, u.FavoriteCount)
	})

	t.Run("studio membership is idempotent", func(t *testing.T) {
		s := domain.Studio{Name: "Bones"}
		require.NoError(t, p.CreateStudio(ctx, &s))
		require.NoError(t, p.AddStudioAnime(ctx, s.ID, a.ID))
		require.NoError(t, p.AddStudioAnime(ctx, s.ID, a.ID))
		got, err := p.GetStudio(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AnimeCount)
		assert.Equal(t, []string{a.ID}, got.AnimeIDs)

		changed, err := p.SetStudioAnime(ctx, s.ID, []string{a.ID})
		require.NoError(t, err)
		assert.False(t, changed)
	})
}
