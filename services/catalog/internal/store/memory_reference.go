package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/example/animefan/services/catalog/internal/domain"
)

// ── Studios ────────────────────────────────────────────────────────────────

func (m *Memory) studioNameTaken(name, exceptID string) bool {
	for id, s := range m.studios {
		if id != exceptID && strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func cloneStudio(s *domain.Studio) domain.Studio {
	c := *s
	c.AnimeIDs = append([]string{}, s.AnimeIDs...)
	return c
}

func (m *Memory) CreateStudio(_ context.Context, s *domain.Studio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.studioNameTaken(s.Name, "") {
		return conflict("studio name %q", s.Name)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	if s.AnimeIDs == nil {
		s.AnimeIDs = []string{}
	}
	s.AnimeCount = len(s.AnimeIDs)
	c := cloneStudio(s)
	m.studios[s.ID] = &c
	return nil
}

func (m *Memory) GetStudio(_ context.Context, id string) (domain.Studio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.studios[id]
	if !ok {
		return domain.Studio{}, notFound("studio", id)
	}
	return cloneStudio(s), nil
}

func (m *Memory) UpdateStudio(_ context.Context, in domain.Studio) (domain.Studio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studios[in.ID]
	if !ok {
		return domain.Studio{}, notFound("studio", in.ID)
	}
	if m.studioNameTaken(in.Name, in.ID) {
		return domain.Studio{}, conflict("studio name %q", in.Name)
	}
	s.Name = in.Name
	s.Description = in.Description
	s.Country = in.Country
	s.FoundedYear = in.FoundedYear
	s.LogoURL = in.LogoURL
	s.Website = in.Website
	return cloneStudio(s), nil
}

func (m *Memory) DeleteStudio(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.studios[id]; !ok {
		return notFound("studio", id)
	}
	delete(m.studios, id)
	return nil
}

func (m *Memory) sortedStudios(less func(a, b *domain.Studio) int) []*domain.Studio {
	out := make([]*domain.Studio, 0, len(m.studios))
	for _, s := range m.studios {
		out = append(out, s)
	}
	slices.SortFunc(out, less)
	return out
}

func (m *Memory) ListStudios(_ context.Context, offset, limit int) ([]domain.Studio, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sortedStudios(func(a, b *domain.Studio) int { return cmp.Compare(a.Name, b.Name) })
	page := window(all, offset, limit)
	out := make([]domain.Studio, 0, len(page))
	for _, s := range page {
		out = append(out, cloneStudio(s))
	}
	return out, int64(len(all)), nil
}

func (m *Memory) TopStudios(_ context.Context, limit int) ([]domain.Studio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sortedStudios(func(a, b *domain.Studio) int {
		if c := cmp.Compare(b.AnimeCount, a.AnimeCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	page := window(all, 0, limit)
	out := make([]domain.Studio, 0, len(page))
	for _, s := range page {
		out = append(out, cloneStudio(s))
	}
	return out, nil
}

func (m *Memory) CountStudios(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.studios)), nil
}

func (m *Memory) ListStudioIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id := range m.studios {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return window(ids, 0, limit), nil
}

func (m *Memory) AddStudioAnime(_ context.Context, studioID, animeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studios[studioID]
	if !ok {
		return notFound("studio", studioID)
	}
	if slices.Contains(s.AnimeIDs, animeID) {
		return nil
	}
	s.AnimeIDs = append(s.AnimeIDs, animeID)
	s.AnimeCount++
	return nil
}

func (m *Memory) RemoveStudioAnime(_ context.Context, studioID, animeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studios[studioID]
	if !ok {
		return notFound("studio", studioID)
	}
	i := slices.Index(s.AnimeIDs, animeID)
	if i < 0 {
		return nil
	}
	s.AnimeIDs = slices.Delete(s.AnimeIDs, i, i+1)
	s.AnimeCount--
	return nil
}

func (m *Memory) SetStudioAnime(_ context.Context, studioID string, animeIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studios[studioID]
	if !ok {
		return false, notFound("studio", studioID)
	}
	want := slices.Clone(animeIDs)
	slices.Sort(want)
	have := slices.Clone(s.AnimeIDs)
	slices.Sort(have)
	if slices.Equal(want, have) && s.AnimeCount == len(want) {
		return false, nil
	}
	s.AnimeIDs = want
	s.AnimeCount = len(want)
	return true, nil
}

// ── Genres ─────────────────────────────────────────────────────────────────

func (m *Memory) genreNameTaken(name, exceptID string) bool {
	for id, g := range m.genres {
		if id != exceptID && strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}

func (m *Memory) CreateGenre(_ context.Context, g *domain.Genre) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.genreNameTaken(g.Name, "") {
		return conflict("genre name %q", g.Name)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	c := *g
	m.genres[g.ID] = &c
	return nil
}

func (m *Memory) GetGenre(_ context.Context, id string) (domain.Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.genres[id]
	if !ok {
		return domain.Genre{}, notFound("genre", id)
	}
	return *g, nil
}

func (m *Memory) GetGenreByName(_ context.Context, name string) (domain.Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.genres {
		if g.Name == name {
			return *g, nil
		}
	}
	return domain.Genre{}, notFound("genre", name)
}

func (m *Memory) UpdateGenre(_ context.Context, in domain.Genre) (domain.Genre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.genres[in.ID]
	if !ok {
		return domain.Genre{}, notFound("genre", in.ID)
	}
	if m.genreNameTaken(in.Name, in.ID) {
		return domain.Genre{}, conflict("genre name %q", in.Name)
	}
	g.Name = in.Name
	g.NameRu = in.NameRu
	g.Description = in.Description
	g.BannerURL = in.BannerURL
	g.Order = in.Order
	g.Active = in.Active
	return *g, nil
}

func (m *Memory) DeleteGenre(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.genres[id]; !ok {
		return notFound("genre", id)
	}
	delete(m.genres, id)
	return nil
}

func (m *Memory) ListGenres(_ context.Context, activeOnly bool) ([]domain.Genre, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Genre{}
	for _, g := range m.genres {
		if activeOnly && !g.Active {
			continue
		}
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b domain.Genre) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (m *Memory) MaxGenreOrder(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	top := 0
	for _, g := range m.genres {
		top = max(top, g.Order)
	}
	return top, nil
}

func (m *Memory) SetGenreAnimeCount(_ context.Context, name string, n int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.genres {
		if g.Name == name {
			if int64(g.AnimeCount) == n {
				return false, nil
			}
			g.AnimeCount = int(n)
			return true, nil
		}
	}
	return false, notFound("genre", name)
}

// ── Users ──────────────────────────────────────────────────────────────────

func (m *Memory) UpsertUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		existing.Username = u.Username
		existing.AvatarURL = u.AvatarURL
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
	}
	m.users[u.ID] = &u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, notFound("user", id)
	}
	return *u, nil
}

func (m *Memory) CountUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *Memory) ListUserIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.users))
	for id := range m.users {
		seen[id] = struct{}{}
	}
	for _, r := range m.relations {
		seen[r.UserID] = struct{}{}
	}
	for _, r := range m.reviews {
		seen[r.UserID] = struct{}{}
	}
	var ids []string
	for id := range seen {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return window(ids, 0, limit), nil
}

func userCounterField(u *domain.User, c domain.UserCounter) (*int, error) {
	switch c {
	case domain.CounterWatched:
		return &u.WatchedCount, nil
	case domain.CounterFavorites:
		return &u.FavoriteCount, nil
	case domain.CounterReviews:
		return &u.ReviewCount, nil
	}
	return nil, fmt.Errorf("user counter %d: %w", c, domain.ErrInvalid)
}

// IncrementUserCounter creates the user document on first use.
func (m *Memory) IncrementUserCounter(_ context.Context, id string, c domain.UserCounter, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = &domain.User{ID: id, CreatedAt: m.now()}
	}
	field, err := userCounterField(u, c)
	if err != nil {
		return err
	}
	*field = max(0, *field+delta)
	m.users[id] = u
	return nil
}

func (m *Memory) SetUserCounter(_ context.Context, id string, c domain.UserCounter, n int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, notFound("user", id)
	}
	field, err := userCounterField(u, c)
	if err != nil {
		return false, err
	}
	if int64(*field) == n {
		return false, nil
	}
	*field = int(n)
	return true, nil
}

func (m *Memory) RaiseWatchedCount(_ context.Context, id string, n int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, notFound("user", id)
	}
	if int64(u.WatchedCount) >= n {
		return false, nil
	}
	u.WatchedCount = int(n)
	return true, nil
}
