package domain

import "time"

type GenreStat struct {
	Genre          string  `json:"genre"`
	AnimeCount     int64   `json:"anime_count"`
	AverageRating  float64 `json:"average_rating"`
	TotalViews     int64   `json:"total_views"`
	TotalFavorites int64   `json:"total_favorites"`
}

type RatingBucket struct {
	Rating int   `json:"rating"`
	Count  int64 `json:"count"`
}

type ReviewerStat struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	ReviewCount int64  `json:"review_count"`
}

type PlatformStats struct {
	TotalAnime   int64       `json:"total_anime"`
	TotalUsers   int64       `json:"total_users"`
	TotalReviews int64       `json:"total_reviews"`
	TotalStudios int64       `json:"total_studios"`
	Genres       []GenreStat `json:"genre_stats"`
	TopAnime     []Anime     `json:"top_anime"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

type UserStats struct {
	UserID      string `json:"user_id"`
	Watching    int64  `json:"watching_count"`
	Completed   int64  `json:"completed_count"`
	OnHold      int64  `json:"on_hold_count"`
	Dropped     int64  `json:"dropped_count"`
	PlanToWatch int64  `json:"plan_to_watch_count"`
	Favorites   int64  `json:"favorites_count"`
	Reviews     int64  `json:"review_count"`
	TotalInList int64  `json:"total_in_list"`
}

type AnimeStats struct {
	AnimeID       string  `json:"anime_id"`
	Title         string  `json:"title"`
	Rating        float64 `json:"rating"`
	RatingCount   int     `json:"rating_count"`
	ViewCount     int64   `json:"view_count"`
	UserCount     int64   `json:"user_count"`
	FavoriteCount int64   `json:"favorite_count"`
	ReviewCount   int64   `json:"review_count"`
}

// GenrePreference is how many of a user's list entries carry a genre.
type GenrePreference struct {
	Genre string `json:"genre"`
	Count int64  `json:"count"`
}
