package relation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/internal/platform/validate"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AddRequest struct {
	AnimeID string `json:"anime_id" validate:"required"`
	Request
}

type Service struct {
	s        store.Store
	counters *consistency.Counters
	events   *events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(s store.Store, counters *consistency.Counters, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{
		s:        s,
		counters: counters,
		events:   pub,
		log:      logging.OrNop(log).Named("relation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddToList creates the caller's entry for an anime, or updates it when one
// already exists.
func (svc *Service) AddToList(ctx context.Context, userID string, req AddRequest) (domain.Relation, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Relation{}, domain.Invalid(err)
	}
	existing, err := svc.s.Relations.FindRelation(ctx, userID, req.AnimeID)
	switch {
	case err == nil:
		return svc.apply(ctx, existing, req.Request)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Relation{}, err
	}

	a, err := svc.s.Anime.GetAnime(ctx, req.AnimeID)
	if err != nil {
		return domain.Relation{}, err
	}
	rel := Initial(userID, a, req.Request, svc.now())
	if err := svc.s.Relations.CreateRelation(ctx, &rel); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Relation{}, err
		}
		// lost a race with a concurrent add; fold into an update
		existing, ferr := svc.s.Relations.FindRelation(ctx, userID, req.AnimeID)
		if ferr != nil {
			return domain.Relation{}, err
		}
		return svc.apply(ctx, existing, req.Request)
	}
	svc.settle(ctx, domain.Relation{}, rel, "relation_created")
	return rel, nil
}

// Update applies req to a relation the caller owns.
func (svc *Service) Update(ctx context.Context, userID, relationID string, req Request) (domain.Relation, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Relation{}, domain.Invalid(err)
	}
	rel, err := svc.owned(ctx, userID, relationID)
	if err != nil {
		return domain.Relation{}, err
	}
	return svc.apply(ctx, rel, req)
}

// UpdateProgress sets episodesWatched, auto-completing when the last known
// episode is reached.
func (svc *Service) UpdateProgress(ctx context.Context, userID, relationID string, episodes int) (domain.Relation, error) {
	if episodes < 0 {
		return domain.Relation{}, fmt.Errorf("episodes_watched must not be negative: %w", domain.ErrInvalid)
	}
	return svc.Update(ctx, userID, relationID, Request{EpisodesWatched: &episodes})
}

// ToggleFavorite flips the favorite flag. Without an entry it creates one in
// PLAN_TO_WATCH, already favorited.
func (svc *Service) ToggleFavorite(ctx context.Context, userID, animeID string) (domain.Relation, error) {
	for attempt := 0; ; attempt++ {
		rel, err := svc.s.Relations.FindRelation(ctx, userID, animeID)
		if err == nil {
			prev, cur, err := svc.s.Relations.ApplyRelationChange(ctx, rel.ID, store.RelationChange{ToggleFavorite: true, At: svc.now()})
			if err != nil {
				return domain.Relation{}, err
			}
			svc.settle(ctx, prev, cur, "favorite_toggled")
			return cur, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Relation{}, err
		}

		a, err := svc.s.Anime.GetAnime(ctx, animeID)
		if err != nil {
			return domain.Relation{}, err
		}
		status, fav := domain.PlanToWatch, true
		rel = Initial(userID, a, Request{Status: &status, Favorite: &fav}, svc.now())
		err = svc.s.Relations.CreateRelation(ctx, &rel)
		if err == nil {
			svc.settle(ctx, domain.Relation{}, rel, "favorite_toggled")
			return rel, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt > 0 {
			return domain.Relation{}, err
		}
	}
}

// Remove deletes a relation the caller owns.
func (svc *Service) Remove(ctx context.Context, userID, relationID string) error {
	if _, err := svc.owned(ctx, userID, relationID); err != nil {
		return err
	}
	return svc.remove(ctx, relationID)
}

// RemoveByAnime deletes the caller's entry for an anime. A missing entry is
// not an error.
func (svc *Service) RemoveByAnime(ctx context.Context, userID, animeID string) error {
	rel, err := svc.s.Relations.FindRelation(ctx, userID, animeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = svc.remove(ctx, rel.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// RemoveAllForAnime deletes every relation to an anime that is itself being
// deleted. Only the owners' favorite counters are compensated.
func (svc *Service) RemoveAllForAnime(ctx context.Context, animeID string) (int, error) {
	rels, err := svc.s.Relations.ListRelationsByAnime(ctx, animeID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rel := range rels {
		deleted, err := svc.s.Relations.DeleteRelation(ctx, rel.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		if deleted.Favorite {
			svc.counters.UserFavoriteChanged(ctx, deleted.UserID, -1)
		}
	}
	return n, nil
}

// Get returns a relation the caller owns.
func (svc *Service) Get(ctx context.Context, userID, relationID string) (domain.Relation, error) {
	return svc.owned(ctx, userID, relationID)
}

func (svc *Service) Find(ctx context.Context, userID, animeID string) (domain.Relation, error) {
	return svc.s.Relations.FindRelation(ctx, userID, animeID)
}

// List returns the caller's list, most recently updated first. Favorites
// listings are ordered by when the entry was added instead.
func (svc *Service) List(ctx context.Context, userID string, f store.RelationFilter, page, size int) (domain.Page[domain.Relation], error) {
	if f.Status != "" && !f.Status.Valid() {
		return domain.Page[domain.Relation]{}, fmt.Errorf("status %q: %w", f.Status, domain.ErrInvalid)
	}
	offset, limit, page, size := domain.Window(page, size, defaultPageSize, maxPageSize)
	items, total, err := svc.s.Relations.ListRelationsByUser(ctx, userID, f, offset, limit)
	if err != nil {
		return domain.Page[domain.Relation]{}, err
	}
	return domain.NewPage(items, total, page, size), nil
}

func (svc *Service) IsInList(ctx context.Context, userID, animeID string) (bool, error) {
	_, err := svc.s.Relations.FindRelation(ctx, userID, animeID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (svc *Service) IsFavorite(ctx context.Context, userID, animeID string) (bool, error) {
	rel, err := svc.s.Relations.FindRelation(ctx, userID, animeID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rel.Favorite, nil
}

func (svc *Service) owned(ctx context.Context, userID, relationID string) (domain.Relation, error) {
	rel, err := svc.s.Relations.GetRelation(ctx, relationID)
	if err != nil {
		return domain.Relation{}, err
	}
	if rel.UserID != userID {
		return domain.Relation{}, fmt.Errorf("relation %s: %w", relationID, domain.ErrForbidden)
	}
	return rel, nil
}

func (svc *Service) apply(ctx context.Context, rel domain.Relation, req Request) (domain.Relation, error) {
	prev, cur, err := svc.s.Relations.ApplyRelationChange(ctx, rel.ID, Plan(rel, req, svc.now()))
	if err != nil {
		return domain.Relation{}, err
	}
	svc.settle(ctx, prev, cur, "relation_updated")
	return cur, nil
}

func (svc *Service) remove(ctx context.Context, relationID string) error {
	deleted, err := svc.s.Relations.DeleteRelation(ctx, relationID)
	if err != nil {
		return err
	}
	svc.settle(ctx, deleted, domain.Relation{UserID: deleted.UserID, AnimeID: deleted.AnimeID, CompletedAt: deleted.CompletedAt}, "relation_removed")
	return nil
}

// settle applies the counter side effects of prev→cur and announces it.
func (svc *Service) settle(ctx context.Context, prev, cur domain.Relation, name string) {
	e := Diff(prev, cur)
	userID, animeID := cur.UserID, cur.AnimeID
	if e.FavoriteDelta != 0 {
		svc.counters.FavoriteChanged(ctx, userID, animeID, e.FavoriteDelta)
	}
	if e.FirstCompletion {
		svc.counters.Completed(ctx, userID)
	}
	svc.events.Publish(events.SubjectRelationChanged, name, userID, map[string]any{
		"anime_id": animeID,
		"status":   string(cur.Status),
		"favorite": cur.Favorite,
	})
	if e.FavoriteDelta != 0 {
		svc.events.Publish(events.SubjectStatsInvalidate, "stats_invalidate", userID, map[string]any{"anime_id": animeID})
	}
}
