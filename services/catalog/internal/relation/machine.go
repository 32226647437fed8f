// Package relation owns the watch-list lifecycle: status transitions, their
// one-time timestamps, auto-completion from progress and the counter side
// effects each change implies.
package relation

import (
	"time"

	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

// Request is a change to a list entry. Nil fields are left as they are.
type Request struct {
	Status          *domain.WatchStatus `json:"status,omitempty" validate:"omitempty,oneof=WATCHING COMPLETED ON_HOLD DROPPED PLAN_TO_WATCH"`
	UserRating      *int                `json:"user_rating,omitempty" validate:"omitempty,min=1,max=10"`
	EpisodesWatched *int                `json:"episodes_watched,omitempty" validate:"omitempty,min=0"`
	Notes           *string             `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Favorite        *bool               `json:"favorite,omitempty"`
}

// Plan turns req into the single write to apply to rel. It reads only
// TotalEpisodes, which never changes after creation, so the plan cannot go
// stale between the read and the write.
func Plan(rel domain.Relation, req Request, at time.Time) store.RelationChange {
	ch := store.RelationChange{
		UserRating: req.UserRating,
		Notes:      req.Notes,
		Favorite:   req.Favorite,
		At:         at,
	}
	target := req.Status
	if req.EpisodesWatched != nil {
		eps := progress(*req.EpisodesWatched, rel.TotalEpisodes)
		ch.EpisodesWatched = &eps
		if reachedEnd(eps, rel.TotalEpisodes) {
			done := domain.Completed
			target = &done
		}
	}
	if target != nil {
		ch.Status = target
		ch.MarkStarted = *target == domain.Watching
		ch.MarkCompleted = *target == domain.Completed
	}
	return ch
}

// progress clamps episodes to [0, total] when total is known.
func progress(episodes int, total *int) int {
	episodes = max(0, episodes)
	if total != nil && *total > 0 {
		episodes = min(episodes, *total)
	}
	return episodes
}

func reachedEnd(episodes int, total *int) bool {
	return total != nil && *total > 0 && episodes >= *total
}

// Initial builds a new list entry for userID from the anime's current
// snapshot. Status defaults to WATCHING.
func Initial(userID string, a domain.Anime, req Request, at time.Time) domain.Relation {
	rel := domain.Relation{
		UserID:         userID,
		AnimeID:        a.ID,
		Status:         domain.Watching,
		AnimeTitle:     a.Title,
		AnimePosterURL: a.PosterURL,
		AnimeRating:    a.Rating,
		AddedAt:        at,
		UpdatedAt:      at,
	}
	if a.EpisodeCount > 0 {
		total := a.EpisodeCount
		rel.TotalEpisodes = &total
	}
	if req.Status != nil {
		rel.Status = *req.Status
	}
	if req.UserRating != nil {
		r := *req.UserRating
		rel.UserRating = &r
	}
	if req.Notes != nil {
		rel.Notes = *req.Notes
	}
	if req.Favorite != nil {
		rel.Favorite = *req.Favorite
	}
	if req.EpisodesWatched != nil {
		rel.EpisodesWatched = progress(*req.EpisodesWatched, rel.TotalEpisodes)
		if reachedEnd(rel.EpisodesWatched, rel.TotalEpisodes) {
			rel.Status = domain.Completed
		}
	}
	switch rel.Status {
	case domain.Watching:
		rel.StartedAt = &at
	case domain.Completed:
		rel.CompletedAt = &at
	}
	return rel
}

// Effects are the counter movements implied by one write.
type Effects struct {
	FavoriteDelta   int
	FirstCompletion bool
}

// Diff derives Effects from the document before and after a write. A
// creation is a diff from the zero Relation.
func Diff(prev, cur domain.Relation) Effects {
	var e Effects
	switch {
	case !prev.Favorite && cur.Favorite:
		e.FavoriteDelta = 1
	case prev.Favorite && !cur.Favorite:
		e.FavoriteDelta = -1
	}
	e.FirstCompletion = prev.CompletedAt == nil && cur.CompletedAt != nil
	return e
}
