// Package domain holds the catalog's document types and error taxonomy.
package domain

import (
	"strings"
	"time"
)

type AnimeStatus string

const (
	AnimeOngoing   AnimeStatus = "ONGOING"
	AnimeCompleted AnimeStatus = "COMPLETED"
	AnimeUpcoming  AnimeStatus = "UPCOMING"
)

func (s AnimeStatus) Valid() bool {
	switch s {
	case AnimeOngoing, AnimeCompleted, AnimeUpcoming:
		return true
	}
	return false
}

type AnimeType string

const (
	TypeTV      AnimeType = "TV"
	TypeMovie   AnimeType = "MOVIE"
	TypeOVA     AnimeType = "OVA"
	TypeONA     AnimeType = "ONA"
	TypeSpecial AnimeType = "SPECIAL"
)

func (t AnimeType) Valid() bool {
	switch t {
	case TypeTV, TypeMovie, TypeOVA, TypeONA, TypeSpecial:
		return true
	}
	return false
}

type RelationType string

const (
	RelSequel      RelationType = "SEQUEL"
	RelPrequel     RelationType = "PREQUEL"
	RelSeason      RelationType = "SEASON"
	RelSideStory   RelationType = "SIDE_STORY"
	RelSpinOff     RelationType = "SPIN_OFF"
	RelAlternative RelationType = "ALTERNATIVE"
	RelMovie       RelationType = "MOVIE"
	RelOVA         RelationType = "OVA"
	RelSpecial     RelationType = "SPECIAL"
	RelOther       RelationType = "OTHER"
)

func (t RelationType) Valid() bool {
	switch t {
	case RelSequel, RelPrequel, RelSeason, RelSideStory, RelSpinOff,
		RelAlternative, RelMovie, RelOVA, RelSpecial, RelOther:
		return true
	}
	return false
}

// Episode is embedded in its Anime and unique by Number within it.
type Episode struct {
	Number       int        `json:"number"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Duration     int        `json:"duration,omitempty"` // minutes
	VideoURL     string     `json:"video_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	AirDate      *time.Time `json:"air_date,omitempty"`
	Filler       bool       `json:"filler,omitempty"`
}

// RelatedAnime links to another Anime. Title and PosterURL are copied at
// link time and never refreshed.
type RelatedAnime struct {
	AnimeID      string       `json:"anime_id"`
	Title        string       `json:"title"`
	PosterURL    string       `json:"poster_url,omitempty"`
	RelationType RelationType `json:"relation_type"`
	SeasonNumber *int         `json:"season_number,omitempty"`
}

type Anime struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	TitleEnglish  string         `json:"title_english,omitempty"`
	TitleJapanese string         `json:"title_japanese,omitempty"`
	Description   string         `json:"description,omitempty"`
	PosterURL     string         `json:"poster_url,omitempty"`
	BannerURL     string         `json:"banner_url,omitempty"`
	TrailerURL    string         `json:"trailer_url,omitempty"`
	Genres        []string       `json:"genres"`
	ReleaseYear   int            `json:"release_year,omitempty"`
	Status        AnimeStatus    `json:"status"`
	Type          AnimeType      `json:"type"`
	EpisodeCount  int            `json:"episode_count"`
	StudioID      string         `json:"studio_id,omitempty"`
	StudioName    string         `json:"studio_name,omitempty"`
	Rating        float64        `json:"rating"`
	RatingCount   int            `json:"rating_count"`
	ViewCount     int64          `json:"view_count"`
	FavoriteCount int64          `json:"favorite_count"`
	Episodes      []Episode      `json:"episodes,omitempty"`
	Related       []RelatedAnime `json:"related,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasGenre reports exact membership of name in the genre set.
func (a *Anime) HasGenre(name string) bool {
	for _, g := range a.Genres {
		if g == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a store.
func (a Anime) Clone() Anime {
	a.Genres = append([]string(nil), a.Genres...)
	if a.Episodes != nil {
		a.Episodes = append([]Episode(nil), a.Episodes...)
	}
	if a.Related != nil {
		a.Related = append([]RelatedAnime(nil), a.Related...)
	}
	return a
}

// NormalizeGenres trims, drops blanks and de-duplicates while keeping order.
func NormalizeGenres(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, g := range in {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
