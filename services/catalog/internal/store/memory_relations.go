package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func (m *Memory) CreateRelation(_ context.Context, r *domain.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.relations {
		if existing.UserID == r.UserID && existing.AnimeID == r.AnimeID {
			return conflict("relation of %q to anime %q", r.UserID, r.AnimeID)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.now()
	if r.AddedAt.IsZero() {
		r.AddedAt = now
	}
	r.UpdatedAt = r.AddedAt
	c := *r
	m.relations[r.ID] = &c
	return nil
}

func (m *Memory) GetRelation(_ context.Context, id string) (domain.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relations[id]
	if !ok {
		return domain.Relation{}, notFound("relation", id)
	}
	return *r, nil
}

func (m *Memory) FindRelation(_ context.Context, userID, animeID string) (domain.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.relations {
		if r.UserID == userID && r.AnimeID == animeID {
			return *r, nil
		}
	}
	return domain.Relation{}, notFound("relation", userID+"/"+animeID)
}

func ptr[T any](v T) *T { return &v }

func (m *Memory) ApplyRelationChange(_ context.Context, id string, ch RelationChange) (domain.Relation, domain.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.relations[id]
	if !ok {
		return domain.Relation{}, domain.Relation{}, notFound("relation", id)
	}
	prev := *r
	at := ch.At
	if at.IsZero() {
		at = m.now()
	}
	if ch.Status != nil {
		r.Status = *ch.Status
	}
	if ch.UserRating != nil {
		r.UserRating = ptr(*ch.UserRating)
	}
	if ch.EpisodesWatched != nil {
		r.EpisodesWatched = *ch.EpisodesWatched
	}
	if ch.Notes != nil {
		r.Notes = *ch.Notes
	}
	switch {
	case ch.ToggleFavorite:
		r.Favorite = !r.Favorite
	case ch.Favorite != nil:
		r.Favorite = *ch.Favorite
	}
	if ch.MarkStarted && r.StartedAt == nil {
		r.StartedAt = ptr(at)
	}
	if ch.MarkCompleted && r.CompletedAt == nil {
		r.CompletedAt = ptr(at)
	}
	r.UpdatedAt = at
	return prev, *r, nil
}

func (m *Memory) DeleteRelation(_ context.Context, id string) (domain.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.relations[id]
	if !ok {
		return domain.Relation{}, notFound("relation", id)
	}
	delete(m.relations, id)
	return *r, nil
}

func (m *Memory) ListRelationsByUser(_ context.Context, userID string, f RelationFilter, offset, limit int) ([]domain.Relation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []*domain.Relation
	for _, r := range m.relations {
		if r.UserID != userID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.FavoritesOnly && !r.Favorite {
			continue
		}
		hits = append(hits, r)
	}
	slices.SortFunc(hits, func(a, b *domain.Relation) int {
		c := b.UpdatedAt.Compare(a.UpdatedAt)
		if f.FavoritesOnly {
			c = b.AddedAt.Compare(a.AddedAt)
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	page := window(hits, offset, limit)
	out := make([]domain.Relation, 0, len(page))
	for _, r := range page {
		out = append(out, *r)
	}
	return out, int64(len(hits)), nil
}

func (m *Memory) ListRelationsByAnime(_ context.Context, animeID string) ([]domain.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Relation{}
	for _, r := range m.relations {
		if r.AnimeID == animeID {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b domain.Relation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) countRelations(keep func(r *domain.Relation) bool) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.relations {
		if keep(r) {
			n++
		}
	}
	return n
}

func (m *Memory) CountRelationsByStatus(_ context.Context, userID string, status domain.WatchStatus) (int64, error) {
	return m.countRelations(func(r *domain.Relation) bool { return r.UserID == userID && r.Status == status }), nil
}

func (m *Memory) CountUserFavorites(_ context.Context, userID string) (int64, error) {
	return m.countRelations(func(r *domain.Relation) bool { return r.UserID == userID && r.Favorite }), nil
}

func (m *Memory) CountUserCompletions(_ context.Context, userID string) (int64, error) {
	return m.countRelations(func(r *domain.Relation) bool { return r.UserID == userID && r.CompletedAt != nil }), nil
}

func (m *Memory) CountRelationsByAnime(_ context.Context, animeID string) (int64, error) {
	return m.countRelations(func(r *domain.Relation) bool { return r.AnimeID == animeID }), nil
}

func (m *Memory) CountAnimeFavorites(_ context.Context, animeID string) (int64, error) {
	return m.countRelations(func(r *domain.Relation) bool { return r.AnimeID == animeID && r.Favorite }), nil
}

func (m *Memory) UserGenrePreferences(_ context.Context, userID string, limit int) ([]domain.GenrePreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64)
	for _, r := range m.relations {
		if r.UserID != userID {
			continue
		}
		if a, ok := m.anime[r.AnimeID]; ok {
			for _, g := range a.Genres {
				counts[g]++
			}
		}
	}
	out := make([]domain.GenrePreference, 0, len(counts))
	for g, n := range counts {
		out = append(out, domain.GenrePreference{Genre: g, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.GenrePreference) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Genre, b.Genre)
	})
	return window(out, 0, limit), nil
}
