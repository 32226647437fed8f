package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/animefan/services/catalog/internal/domain"
)

// Memory is an in-process Backend for development and tests. One mutex
// stands in for the per-document atomicity a real store provides; no method
// holds it across calls.
type Memory struct {
	mu        sync.RWMutex
	anime     map[string]*domain.Anime
	reviews   map[string]*domain.Review
	relations map[string]*domain.Relation
	studios   map[string]*domain.Studio
	genres    map[string]*domain.Genre
	users     map[string]*domain.User

	now func() time.Time
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		anime:     make(map[string]*domain.Anime),
		reviews:   make(map[string]*domain.Review),
		relations: make(map[string]*domain.Relation),
		studios:   make(map[string]*domain.Studio),
		genres:    make(map[string]*domain.Genre),
		users:     make(map[string]*domain.User),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes m through every collection slot.
func (m *Memory) Store() Store { return From(m) }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrConflict)...)
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ── Anime ──────────────────────────────────────────────────────────────────

func (m *Memory) titleTaken(title, exceptID string) bool {
	for id, a := range m.anime {
		if id != exceptID && strings.EqualFold(a.Title, title) {
			return true
		}
	}
	return false
}

func (m *Memory) CreateAnime(_ context.Context, a *domain.Anime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.titleTaken(a.Title, "") {
		return conflict("anime title %q", a.Title)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := m.anime[a.ID]; ok {
		return conflict("anime id %q", a.ID)
	}
	now := m.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Genres == nil {
		a.Genres = []string{}
	}
	c := a.Clone()
	m.anime[a.ID] = &c
	return nil
}

func (m *Memory) GetAnime(_ context.Context, id string) (domain.Anime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.anime[id]
	if !ok {
		return domain.Anime{}, notFound("anime", id)
	}
	return a.Clone(), nil
}

func (m *Memory) GetAnimeByIDs(_ context.Context, ids []string) ([]domain.Anime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Anime, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.anime[id]; ok {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (m *Memory) UpdateAnime(_ context.Context, in domain.Anime) (domain.Anime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anime[in.ID]
	if !ok {
		return domain.Anime{}, notFound("anime", in.ID)
	}
	if m.titleTaken(in.Title, in.ID) {
		return domain.Anime{}, conflict("anime title %q", in.Title)
	}
	a.Title = in.Title
	a.TitleEnglish = in.TitleEnglish
	a.TitleJapanese = in.TitleJapanese
	a.Description = in.Description
	a.PosterURL = in.PosterURL
	a.BannerURL = in.BannerURL
	a.TrailerURL = in.TrailerURL
	a.Genres = append([]string{}, in.Genres...)
	a.ReleaseYear = in.ReleaseYear
	a.Status = in.Status
	a.Type = in.Type
	a.EpisodeCount = in.EpisodeCount
	a.StudioID = in.StudioID
	a.StudioName = in.StudioName
	a.UpdatedAt = m.now()
	return a.Clone(), nil
}

func (m *Memory) DeleteAnime(_ context.Context, id string) (domain.Anime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anime[id]
	if !ok {
		return domain.Anime{}, notFound("anime", id)
	}
	delete(m.anime, id)
	return a.Clone(), nil
}

func (m *Memory) FindAnime(_ context.Context, q AnimeQuery) ([]domain.Anime, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []*domain.Anime
	for _, a := range m.anime {
		if q.Matches(a) {
			hits = append(hits, a)
		}
	}
	slices.SortFunc(hits, func(a, b *domain.Anime) int {
		c := q.Sort.Field.Compare(a, b)
		if !q.Sort.Asc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	page := window(hits, q.Offset, q.Limit)
	out := make([]domain.Anime, 0, len(page))
	for _, a := range page {
		out = append(out, a.Clone())
	}
	return out, int64(len(hits)), nil
}

// Relevance weights per field, highest first.
const (
	weightTitle       = 3
	weightDescription = 2
	weightAltTitle    = 1
)

func relevance(a *domain.Anime, terms []string) int {
	score := 0
	title := strings.ToLower(a.Title)
	desc := strings.ToLower(a.Description)
	alt := strings.ToLower(a.TitleEnglish + " " + a.TitleJapanese)
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += weightTitle
		}
		if strings.Contains(desc, t) {
			score += weightDescription
		}
		if strings.Contains(alt, t) {
			score += weightAltTitle
		}
	}
	return score
}

func (m *Memory) TextSearch(_ context.Context, text string, offset, limit int) ([]domain.Anime, int64, error) {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return []domain.Anime{}, 0, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		a     *domain.Anime
		score int
	}
	var hits []scored
	for _, a := range m.anime {
		if s := relevance(a, terms); s > 0 {
			hits = append(hits, scored{a, s})
		}
	}
	slices.SortFunc(hits, func(x, y scored) int {
		if c := cmp.Compare(y.score, x.score); c != 0 {
			return c
		}
		return cmp.Compare(x.a.ID, y.a.ID)
	})
	page := window(hits, offset, limit)
	out := make([]domain.Anime, 0, len(page))
	for _, h := range page {
		out = append(out, h.a.Clone())
	}
	return out, int64(len(hits)), nil
}

func (m *Memory) TitleContains(_ context.Context, text string, limit int) ([]domain.Anime, error) {
	needle := strings.ToLower(text)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []*domain.Anime
	for _, a := range m.anime {
		if strings.Contains(strings.ToLower(a.Title), needle) {
			hits = append(hits, a)
		}
	}
	slices.SortFunc(hits, func(a, b *domain.Anime) int { return cmp.Compare(a.Title, b.Title) })
	hits = window(hits, 0, limit)
	out := make([]domain.Anime, 0, len(hits))
	for _, a := range hits {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *Memory) TopRated(_ context.Context, minRatings, limit int) ([]domain.Anime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []*domain.Anime
	for _, a := range m.anime {
		if a.RatingCount >= minRatings {
			hits = append(hits, a)
		}
	}
	slices.SortFunc(hits, func(a, b *domain.Anime) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		if c := cmp.Compare(b.RatingCount, a.RatingCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	hits = window(hits, 0, limit)
	out := make([]domain.Anime, 0, len(hits))
	for _, a := range hits {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *Memory) GenreAggregates(_ context.Context) ([]domain.GenreStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type acc struct {
		domain.GenreStat
		ratingSum float64
	}
	groups := make(map[string]*acc)
	for _, a := range m.anime {
		for _, g := range a.Genres {
			st, ok := groups[g]
			if !ok {
				st = &acc{GenreStat: domain.GenreStat{Genre: g}}
				groups[g] = st
			}
			st.AnimeCount++
			st.ratingSum += a.Rating
			st.TotalViews += a.ViewCount
			st.TotalFavorites += a.FavoriteCount
		}
	}
	out := make([]domain.GenreStat, 0, len(groups))
	for _, st := range groups {
		st.AverageRating = st.ratingSum / float64(st.AnimeCount)
		out = append(out, st.GenreStat)
	}
	slices.SortFunc(out, func(a, b domain.GenreStat) int {
		if c := cmp.Compare(b.AnimeCount, a.AnimeCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Genre, b.Genre)
	})
	return out, nil
}

func (m *Memory) CountAnime(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.anime)), nil
}

func (m *Memory) CountAnimeWithGenres(_ context.Context, names []string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(names))
	for _, n := range names {
		out[n] = 0
	}
	for _, a := range m.anime {
		for _, g := range a.Genres {
			if _, ok := out[g]; ok {
				out[g]++
			}
		}
	}
	return out, nil
}

func (m *Memory) AllGenreCounts(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for _, a := range m.anime {
		for _, g := range a.Genres {
			out[g]++
		}
	}
	return out, nil
}

func (m *Memory) AnimeIDsByStudio(_ context.Context, studioID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	for id, a := range m.anime {
		if a.StudioID == studioID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) ListAnimeRefs(_ context.Context, afterID string, limit int) ([]AnimeRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id := range m.anime {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = window(ids, 0, limit)
	out := make([]AnimeRef, 0, len(ids))
	for _, id := range ids {
		a := m.anime[id]
		out = append(out, AnimeRef{
			ID:            a.ID,
			StudioID:      a.StudioID,
			Genres:        append([]string(nil), a.Genres...),
			FavoriteCount: a.FavoriteCount,
		})
	}
	return out, nil
}

func (m *Memory) withAnime(id string, fn func(a *domain.Anime) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anime[id]
	if !ok {
		return notFound("anime", id)
	}
	return fn(a)
}

func (m *Memory) SetRating(_ context.Context, id string, rating float64, count int) error {
	return m.withAnime(id, func(a *domain.Anime) error {
		a.Rating, a.RatingCount = rating, count
		return nil
	})
}

func (m *Memory) IncrementViewCount(_ context.Context, id string, delta int64) error {
	return m.withAnime(id, func(a *domain.Anime) error {
		a.ViewCount = max(0, a.ViewCount+delta)
		return nil
	})
}

func (m *Memory) IncrementFavoriteCount(_ context.Context, id string, delta int64) error {
	return m.withAnime(id, func(a *domain.Anime) error {
		a.FavoriteCount = max(0, a.FavoriteCount+delta)
		return nil
	})
}

func (m *Memory) SetFavoriteCount(_ context.Context, id string, n int64) error {
	return m.withAnime(id, func(a *domain.Anime) error {
		a.FavoriteCount = n
		return nil
	})
}

func (m *Memory) PushEpisode(_ context.Context, animeID string, ep domain.Episode) error {
	return m.withAnime(animeID, func(a *domain.Anime) error {
		for _, e := range a.Episodes {
			if e.Number == ep.Number {
				return conflict("episode %d of anime %q", ep.Number, animeID)
			}
		}
		a.Episodes = append(a.Episodes, ep)
		a.EpisodeCount++
		a.UpdatedAt = m.now()
		return nil
	})
}

func (m *Memory) ReplaceEpisode(_ context.Context, animeID string, ep domain.Episode) error {
	return m.withAnime(animeID, func(a *domain.Anime) error {
		for i, e := range a.Episodes {
			if e.Number == ep.Number {
				a.Episodes[i] = ep
				a.UpdatedAt = m.now()
				return nil
			}
		}
		return notFound("episode", fmt.Sprint(ep.Number))
	})
}

func (m *Memory) PullEpisode(_ context.Context, animeID string, number int) error {
	return m.withAnime(animeID, func(a *domain.Anime) error {
		i := slices.IndexFunc(a.Episodes, func(e domain.Episode) bool { return e.Number == number })
		if i < 0 {
			return notFound("episode", fmt.Sprint(number))
		}
		a.Episodes = slices.Delete(a.Episodes, i, i+1)
		a.EpisodeCount = max(0, a.EpisodeCount-1)
		a.UpdatedAt = m.now()
		return nil
	})
}

func (m *Memory) PushRelated(_ context.Context, animeID string, link domain.RelatedAnime) error {
	return m.withAnime(animeID, func(a *domain.Anime) error {
		for _, r := range a.Related {
			if r.AnimeID == link.AnimeID {
				return conflict("anime %q already related to %q", animeID, link.AnimeID)
			}
		}
		a.Related = append(a.Related, link)
		a.UpdatedAt = m.now()
		return nil
	})
}

func (m *Memory) PullRelated(_ context.Context, animeID, relatedID string) error {
	return m.withAnime(animeID, func(a *domain.Anime) error {
		i := slices.IndexFunc(a.Related, func(r domain.RelatedAnime) bool { return r.AnimeID == relatedID })
		if i < 0 {
			return notFound("related anime", relatedID)
		}
		a.Related = slices.Delete(a.Related, i, i+1)
		a.UpdatedAt = m.now()
		return nil
	})
}
