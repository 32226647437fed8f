package domain

import "time"

const (
	MinRating = 1
	MaxRating = 10
)

// Review is unique per (UserID, AnimeID). Username, UserAvatarURL and
// AnimeTitle are snapshots taken at creation.
type Review struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AnimeID        string    `json:"anime_id"`
	Rating         int       `json:"rating"`
	Title          string    `json:"title,omitempty"`
	Content        string    `json:"content"`
	Spoiler        bool      `json:"spoiler"`
	HelpfulCount   int       `json:"helpful_count"`
	UnhelpfulCount int       `json:"unhelpful_count"`
	Username       string    `json:"username,omitempty"`
	UserAvatarURL  string    `json:"user_avatar_url,omitempty"`
	AnimeTitle     string    `json:"anime_title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
