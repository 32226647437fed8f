package domain

import "time"

// Studio owns an explicit list of anime ids; AnimeCount mirrors its length.
type Studio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Country     string    `json:"country,omitempty"`
	FoundedYear int       `json:"founded_year,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	Website     string    `json:"website,omitempty"`
	AnimeIDs    []string  `json:"anime_ids"`
	AnimeCount  int       `json:"anime_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Genre is a reference entry; AnimeCount is recounted from anime tags.
type Genre struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	NameRu      string `json:"name_ru,omitempty"`
	Description string `json:"description,omitempty"`
	BannerURL   string `json:"banner_url,omitempty"`
	Order       int    `json:"order"`
	Active      bool   `json:"active"`
	AnimeCount  int    `json:"anime_count"`
}

// User as seen by the catalog: identity, display snapshot source and
// derived counters.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	WatchedCount  int       `json:"watched_count"`
	FavoriteCount int       `json:"favorite_count"`
	ReviewCount   int       `json:"review_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserCounter names one of the User's derived counters.
type UserCounter int

const (
	CounterWatched UserCounter = iota
	CounterFavorites
	CounterReviews
)

func (c UserCounter) String() string {
	switch c {
	case CounterWatched:
		return "watched"
	case CounterFavorites:
		return "favorites"
	case CounterReviews:
		return "reviews"
	}
	return "unknown"
}
