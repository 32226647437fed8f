package domain

import "time"

type WatchStatus string

const (
	Watching    WatchStatus = "WATCHING"
	Completed   WatchStatus = "COMPLETED"
	OnHold      WatchStatus = "ON_HOLD"
	Dropped     WatchStatus = "DROPPED"
	PlanToWatch WatchStatus = "PLAN_TO_WATCH"
)

// WatchStatuses lists every status in display order.
var WatchStatuses = []WatchStatus{Watching, Completed, OnHold, Dropped, PlanToWatch}

func (s WatchStatus) Valid() bool {
	switch s {
	case Watching, Completed, OnHold, Dropped, PlanToWatch:
		return true
	}
	return false
}

// Relation is a user's watch-list entry for one anime, unique per
// (UserID, AnimeID). The Anime* fields and TotalEpisodes are snapshots.
type Relation struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	AnimeID         string      `json:"anime_id"`
	Status          WatchStatus `json:"status"`
	UserRating      *int        `json:"user_rating,omitempty"`
	EpisodesWatched int         `json:"episodes_watched"`
	TotalEpisodes   *int        `json:"total_episodes,omitempty"`
	Favorite        bool        `json:"favorite"`
	Notes           string      `json:"notes,omitempty"`
	AnimeTitle      string      `json:"anime_title,omitempty"`
	AnimePosterURL  string      `json:"anime_poster_url,omitempty"`
	AnimeRating     float64     `json:"anime_rating"`
	AddedAt         time.Time   `json:"added_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}
