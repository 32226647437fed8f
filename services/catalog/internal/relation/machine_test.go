package relation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func intp(v int) *int { return &v }

func statusp(s domain.WatchStatus) *domain.WatchStatus { return &s }

func TestPlanAutoCompletesAtLastEpisode(t *testing.T) {
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rel := domain.Relation{Status: domain.Watching, TotalEpisodes: intp(12)}

	cases := []struct {
		name         string
		episodes     int
		wantEpisodes int
		wantComplete bool
	}{
		{"one short", 11, 11, false},
		{"exactly last", 12, 12, true},
		{"past the end clamps", 15, 12, true},
		{"negative clamps to zero", -3, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := Plan(rel, Request{EpisodesWatched: intp(tc.episodes)}, at)
			assert.Equal(t, tc.wantEpisodes, *ch.EpisodesWatched)
			assert.Equal(t, tc.wantComplete, ch.MarkCompleted)
			if tc.wantComplete {
				assert.Equal(t, domain.Completed, *ch.Status)
			} else {
				assert.Nil(t, ch.Status)
			}
		})
	}
}

func TestPlanOverridesRequestedStatusWhenComplete(t *testing.T) {
	rel := domain.Relation{TotalEpisodes: intp(3)}
	ch := Plan(rel, Request{Status: statusp(domain.OnHold), EpisodesWatched: intp(3)}, time.Now())
	assert.Equal(t, domain.Completed, *ch.Status)
	assert.True(t, ch.MarkCompleted)
	assert.False(t, ch.MarkStarted)
}

func TestPlanUnknownTotalNeverCompletes(t *testing.T) {
	ch := Plan(domain.Relation{}, Request{EpisodesWatched: intp(500)}, time.Now())
	assert.Equal(t, 500, *ch.EpisodesWatched)
	assert.Nil(t, ch.Status)
}

func TestPlanMarksStarted(t *testing.T) {
	ch := Plan(domain.Relation{}, Request{Status: statusp(domain.Watching)}, time.Now())
	assert.True(t, ch.MarkStarted)
	assert.False(t, ch.MarkCompleted)
}

func TestInitial(t *testing.T) {
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	a := domain.Anime{ID: "a1", Title: "Frieren", PosterURL: "p.jpg", Rating: 9.1, EpisodeCount: 28}

	rel := Initial("u1", a, Request{}, at)
	assert.Equal(t, domain.Watching, rel.Status)
	assert.Equal(t, &at, rel.StartedAt)
	assert.Nil(t, rel.CompletedAt)
	assert.Equal(t, "Frieren", rel.AnimeTitle)
	assert.Equal(t, 28, *rel.TotalEpisodes)

	rel = Initial("u1", a, Request{Status: statusp(domain.PlanToWatch), EpisodesWatched: intp(28)}, at)
	assert.Equal(t, domain.Completed, rel.Status)
	assert.NotNil(t, rel.CompletedAt)

	rel = Initial("u1", domain.Anime{ID: "a2"}, Request{Status: statusp(domain.Dropped)}, at)
	assert.Nil(t, rel.TotalEpisodes)
	assert.Nil(t, rel.StartedAt)
}

func TestDiff(t *testing.T) {
	now := time.Now()
	assert.Equal(t, Effects{FavoriteDelta: 1}, Diff(domain.Relation{}, domain.Relation{Favorite: true}))
	assert.Equal(t, Effects{FavoriteDelta: -1}, Diff(domain.Relation{Favorite: true}, domain.Relation{}))
	assert.Equal(t, Effects{FirstCompletion: true}, Diff(domain.Relation{}, domain.Relation{CompletedAt: &now}))
	assert.Equal(t, Effects{}, Diff(domain.Relation{CompletedAt: &now}, domain.Relation{CompletedAt: &now}))
}
