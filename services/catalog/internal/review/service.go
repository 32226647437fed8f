// Package review handles review writes. Every create, edit and delete is
// followed by a rating recompute for the anime and, for create and delete,
// a move of the author's review counter.
package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/internal/platform/validate"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type Input struct {
	Rating  int    `json:"rating" validate:"min=1,max=10"`
	Title   string `json:"title" validate:"max=200"`
	Content string `json:"content" validate:"required,max=10000"`
	Spoiler bool   `json:"spoiler"`
}

type CreateRequest struct {
	AnimeID string `json:"anime_id" validate:"required"`
	Input
}

type Service struct {
	s        store.Store
	ratings  *consistency.RatingManager
	counters *consistency.Counters
	events   *events.Publisher
	log      *zap.Logger
}

func NewService(s store.Store, ratings *consistency.RatingManager, counters *consistency.Counters, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{s: s, ratings: ratings, counters: counters, events: pub, log: logging.OrNop(log).Named("review")}
}

// Create stores the caller's review. The author and anime display fields are
// snapshots taken now and never refreshed.
func (svc *Service) Create(ctx context.Context, userID string, req CreateRequest) (domain.Review, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Review{}, domain.Invalid(err)
	}
	a, err := svc.s.Anime.GetAnime(ctx, req.AnimeID)
	if err != nil {
		return domain.Review{}, err
	}
	r := domain.Review{
		UserID:     userID,
		AnimeID:    a.ID,
		Rating:     req.Rating,
		Title:      req.Title,
		Content:    req.Content,
		Spoiler:    req.Spoiler,
		AnimeTitle: a.Title,
	}
	u, err := svc.s.Users.GetUser(ctx, userID)
	switch {
	case err == nil:
		r.Username, r.UserAvatarURL = u.Username, u.AvatarURL
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Review{}, err
	}
	if err := svc.s.Reviews.CreateReview(ctx, &r); err != nil {
		return domain.Review{}, err
	}
	svc.counters.ReviewCountChanged(ctx, userID, 1)
	svc.settle(ctx, r, "review_created")
	return r, nil
}

// Update edits a review the caller wrote.
func (svc *Service) Update(ctx context.Context, userID, reviewID string, in Input) (domain.Review, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Review{}, domain.Invalid(err)
	}
	r, err := svc.s.Reviews.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if r.UserID != userID {
		return domain.Review{}, fmt.Errorf("review %s: %w", reviewID, domain.ErrForbidden)
	}
	updated, err := svc.s.Reviews.UpdateReview(ctx, reviewID, store.ReviewEdit{
		Rating:  in.Rating,
		Title:   in.Title,
		Content: in.Content,
		Spoiler: in.Spoiler,
	})
	if err != nil {
		return domain.Review{}, err
	}
	svc.settle(ctx, updated, "review_updated")
	return updated, nil
}

// Delete removes a review written by the caller, or any review when admin.
func (svc *Service) Delete(ctx context.Context, userID, reviewID string, admin bool) error {
	r, err := svc.s.Reviews.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if !admin && r.UserID != userID {
		return fmt.Errorf("review %s: %w", reviewID, domain.ErrForbidden)
	}
	deleted, err := svc.s.Reviews.DeleteReview(ctx, reviewID)
	if err != nil {
		return err
	}
	svc.counters.ReviewCountChanged(ctx, deleted.UserID, -1)
	svc.settle(ctx, deleted, "review_deleted")
	return nil
}

// Vote bumps the helpful or unhelpful counter.
func (svc *Service) Vote(ctx context.Context, reviewID string, helpful bool) error {
	return svc.s.Reviews.IncrementHelpful(ctx, reviewID, helpful)
}

func (svc *Service) Get(ctx context.Context, reviewID string) (domain.Review, error) {
	return svc.s.Reviews.GetReview(ctx, reviewID)
}

// UserReview is the caller's review of an anime, if any.
func (svc *Service) UserReview(ctx context.Context, userID, animeID string) (domain.Review, error) {
	return svc.s.Reviews.FindReview(ctx, userID, animeID)
}

func (svc *Service) ListForAnime(ctx context.Context, animeID string, order store.ReviewOrder, page, size int) (domain.Page[domain.Review], error) {
	offset, limit, page, size := domain.Window(page, size, defaultPageSize, maxPageSize)
	items, total, err := svc.s.Reviews.ListReviewsByAnime(ctx, animeID, order, offset, limit)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}
	return domain.NewPage(items, total, page, size), nil
}

func (svc *Service) ListByUser(ctx context.Context, userID string, page, size int) (domain.Page[domain.Review], error) {
	offset, limit, page, size := domain.Window(page, size, defaultPageSize, maxPageSize)
	items, total, err := svc.s.Reviews.ListReviewsByUser(ctx, userID, offset, limit)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}
	return domain.NewPage(items, total, page, size), nil
}

// settle recomputes the anime's rating. A failure is left to reconciliation.
func (svc *Service) settle(ctx context.Context, r domain.Review, name string) {
	if _, _, err := svc.ratings.Recompute(context.WithoutCancel(ctx), r.AnimeID); err != nil {
		svc.counters.Drifted(ctx, "anime_rating", consistency.KindAnime, r.AnimeID, err)
	}
	svc.events.Publish(events.SubjectReviewChanged, name, r.UserID, map[string]any{
		"review_id": r.ID,
		"anime_id":  r.AnimeID,
		"rating":    r.Rating,
	})
	svc.events.Publish(events.SubjectStatsInvalidate, "stats_invalidate", r.UserID, map[string]any{"anime_id": r.AnimeID})
}
