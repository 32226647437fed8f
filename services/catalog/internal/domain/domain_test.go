package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundRating(t *testing.T) {
	cases := []struct {
		name    string
		ratings []int64
		want    float64
	}{
		{"empty", nil, 0},
		{"exact mean", []int64{7, 8, 9}, 8.0},
		{"repeating two thirds", []int64{6, 7, 7}, 6.7},
		{"repeating one third", []int64{6, 6, 7}, 6.3},
		{"single", []int64{10}, 10},
		{"half rounds up", []int64{6, 7}, 6.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sum int64
			for _, r := range tc.ratings {
				sum += r
			}
			assert.Equal(t, tc.want, RoundRating(sum, int64(len(tc.ratings))))
		})
	}
}

func TestRoundRating_HalfTenthRoundsUp(t *testing.T) {
	// 133/20 = 6.65
	assert.Equal(t, 6.7, RoundRating(133, 20))
	// 131/20 = 6.55
	assert.Equal(t, 6.6, RoundRating(131, 20))
}

func TestNormalizeGenres(t *testing.T) {
	assert.Equal(t, []string{"Action", "Drama"}, NormalizeGenres([]string{" Action", "", "Drama", "Action "}))
}

func TestEnums(t *testing.T) {
	assert.True(t, AnimeOngoing.Valid())
	assert.False(t, AnimeStatus("AIRING").Valid())
	assert.True(t, TypeONA.Valid())
	assert.False(t, AnimeType("WEB").Valid())
	assert.True(t, PlanToWatch.Valid())
	assert.False(t, WatchStatus("").Valid())
	assert.True(t, RelSpinOff.Valid())
	assert.Equal(t, "favorites", CounterFavorites.String())
}

func TestAnimeClone_Independent(t *testing.T) {
	a := Anime{Genres: []string{"Action"}, Episodes: []Episode{{Number: 1}}}
	c := a.Clone()
	c.Genres[0] = "Drama"
	c.Episodes[0].Number = 9
	assert.Equal(t, "Action", a.Genres[0])
	assert.Equal(t, 1, a.Episodes[0].Number)
	assert.True(t, a.HasGenre("Action"))
	assert.False(t, a.HasGenre("action"))
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, 25, 1, 12)
	assert.Equal(t, 3, p.TotalPages)
	assert.NotNil(t, p.Items)

	assert.Zero(t, NewPage([]int{}, 0, 0, 12).TotalPages)
}

func TestWindow(t *testing.T) {
	offset, limit, page, size := Window(-1, 0, 12, 100)
	assert.Equal(t, []int{0, 12, 0, 12}, []int{offset, limit, page, size})

	offset, limit, page, size = Window(3, 500, 12, 100)
	assert.Equal(t, []int{300, 100, 3, 100}, []int{offset, limit, page, size})

	offset, limit, page, size = Window(math.MaxInt, 12, 12, 100)
	assert.Equal(t, math.MaxInt/12, page)
	assert.Equal(t, 12, limit)
	assert.Positive(t, offset)
	assert.GreaterOrEqual(t, offset, math.MaxInt-12)
	assert.Equal(t, 12, size)
}
