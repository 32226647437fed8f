package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/example/animefan/services/catalog/internal/domain"
)

func (m *Memory) CreateReview(_ context.Context, r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.UserID == r.UserID && existing.AnimeID == r.AnimeID {
			return conflict("review by %q for anime %q", r.UserID, r.AnimeID)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	c := *r
	m.reviews[r.ID] = &c
	return nil
}

func (m *Memory) GetReview(_ context.Context, id string) (domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.Review{}, notFound("review", id)
	}
	return *r, nil
}

func (m *Memory) FindReview(_ context.Context, userID, animeID string) (domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reviews {
		if r.UserID == userID && r.AnimeID == animeID {
			return *r, nil
		}
	}
	return domain.Review{}, notFound("review", userID+"/"+animeID)
}

func (m *Memory) UpdateReview(_ context.Context, id string, edit ReviewEdit) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.Review{}, notFound("review", id)
	}
	r.Rating = edit.Rating
	r.Title = edit.Title
	r.Content = edit.Content
	r.Spoiler = edit.Spoiler
	r.UpdatedAt = m.now()
	return *r, nil
}

func (m *Memory) DeleteReview(_ context.Context, id string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.Review{}, notFound("review", id)
	}
	delete(m.reviews, id)
	return *r, nil
}

func newestFirst(a, b *domain.Review) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (m *Memory) collectReviews(keep func(r *domain.Review) bool, order func(a, b *domain.Review) int, offset, limit int) ([]domain.Review, int64) {
	var hits []*domain.Review
	for _, r := range m.reviews {
		if keep(r) {
			hits = append(hits, r)
		}
	}
	slices.SortFunc(hits, order)
	page := window(hits, offset, limit)
	out := make([]domain.Review, 0, len(page))
	for _, r := range page {
		out = append(out, *r)
	}
	return out, int64(len(hits))
}

func (m *Memory) ListReviewsByAnime(_ context.Context, animeID string, order ReviewOrder, offset, limit int) ([]domain.Review, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sortFn := newestFirst
	if order == ReviewsMostHelpful {
		sortFn = func(a, b *domain.Review) int {
			if c := cmp.Compare(b.HelpfulCount, a.HelpfulCount); c != 0 {
				return c
			}
			return newestFirst(a, b)
		}
	}
	items, total := m.collectReviews(func(r *domain.Review) bool { return r.AnimeID == animeID }, sortFn, offset, limit)
	return items, total, nil
}

func (m *Memory) ListReviewsByUser(_ context.Context, userID string, offset, limit int) ([]domain.Review, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items, total := m.collectReviews(func(r *domain.Review) bool { return r.UserID == userID }, newestFirst, offset, limit)
	return items, total, nil
}

func (m *Memory) IncrementHelpful(_ context.Context, id string, helpful bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return notFound("review", id)
	}
	if helpful {
		r.HelpfulCount++
	} else {
		r.UnhelpfulCount++
	}
	return nil
}

func (m *Memory) RatingAggregate(_ context.Context, animeID string) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, count int64
	for _, r := range m.reviews {
		if r.AnimeID == animeID {
			sum += int64(r.Rating)
			count++
		}
	}
	return sum, count, nil
}

func (m *Memory) ReviewRatings(_ context.Context, animeID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []int{}
	for _, r := range m.reviews {
		if r.AnimeID == animeID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

func (m *Memory) RatingHistogram(_ context.Context, animeID string) ([]domain.RatingBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[int]int64)
	for _, r := range m.reviews {
		if r.AnimeID == animeID {
			counts[r.Rating]++
		}
	}
	out := make([]domain.RatingBucket, 0, len(counts))
	for rating, n := range counts {
		out = append(out, domain.RatingBucket{Rating: rating, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.RatingBucket) int { return cmp.Compare(a.Rating, b.Rating) })
	return out, nil
}

func (m *Memory) TopReviewers(_ context.Context, limit int) ([]domain.ReviewerStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type acc struct {
		stat   domain.ReviewerStat
		latest *domain.Review
	}
	byUser := make(map[string]*acc)
	for _, r := range m.reviews {
		a, ok := byUser[r.UserID]
		if !ok {
			a = &acc{stat: domain.ReviewerStat{UserID: r.UserID}}
			byUser[r.UserID] = a
		}
		a.stat.ReviewCount++
		if a.latest == nil || r.CreatedAt.After(a.latest.CreatedAt) {
			a.latest = r
			a.stat.Username = r.Username
		}
	}
	out := make([]domain.ReviewerStat, 0, len(byUser))
	for _, a := range byUser {
		out = append(out, a.stat)
	}
	slices.SortFunc(out, func(a, b domain.ReviewerStat) int {
		if c := cmp.Compare(b.ReviewCount, a.ReviewCount); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return window(out, 0, limit), nil
}

func (m *Memory) countReviews(keep func(r *domain.Review) bool) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.reviews {
		if keep(r) {
			n++
		}
	}
	return n
}

func (m *Memory) CountReviews(_ context.Context) (int64, error) {
	return m.countReviews(func(*domain.Review) bool { return true }), nil
}

func (m *Memory) CountReviewsByAnime(_ context.Context, animeID string) (int64, error) {
	return m.countReviews(func(r *domain.Review) bool { return r.AnimeID == animeID }), nil
}

func (m *Memory) CountReviewsByUser(_ context.Context, userID string) (int64, error) {
	return m.countReviews(func(r *domain.Review) bool { return r.UserID == userID }), nil
}
