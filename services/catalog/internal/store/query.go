package store

import (
	"cmp"
	"strings"

	"github.com/example/animefan/services/catalog/internal/domain"
)

// Predicate is one conjunct of a catalog filter. The set of implementations
// is closed; backends render each variant with a type switch.
type Predicate interface {
	Match(a *domain.Anime) bool
	predicate()
}

// TextContains matches a case-insensitive substring of the title,
// description or either alternate title.
type TextContains struct{ Text string }

// GenresAny matches anime carrying at least one of the listed genres.
type GenresAny struct{ Genres []string }

// YearRange bounds ReleaseYear inclusively; nil ends are open.
type YearRange struct{ From, To *int }

// RatingRange bounds Rating inclusively; nil ends are open.
type RatingRange struct{ Min, Max *float64 }

type StatusIs struct{ Status domain.AnimeStatus }

type TypeIs struct{ Type domain.AnimeType }

type StudioIs struct{ StudioID string }

func (TextContains) predicate() {}
func (GenresAny) predicate()    {}
func (YearRange) predicate()    {}
func (RatingRange) predicate()  {}
func (StatusIs) predicate()     {}
func (TypeIs) predicate()       {}
func (StudioIs) predicate()     {}

func (p TextContains) Match(a *domain.Anime) bool {
	needle := strings.ToLower(p.Text)
	for _, field := range []string{a.Title, a.Description, a.TitleEnglish, a.TitleJapanese} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (p GenresAny) Match(a *domain.Anime) bool {
	for _, g := range p.Genres {
		if a.HasGenre(g) {
			return true
		}
	}
	return false
}

func (p YearRange) Match(a *domain.Anime) bool {
	if p.From != nil && a.ReleaseYear < *p.From {
		return false
	}
	if p.To != nil && a.ReleaseYear > *p.To {
		return false
	}
	return true
}

func (p RatingRange) Match(a *domain.Anime) bool {
	if p.Min != nil && a.Rating < *p.Min {
		return false
	}
	if p.Max != nil && a.Rating > *p.Max {
		return false
	}
	return true
}

func (p StatusIs) Match(a *domain.Anime) bool { return a.Status == p.Status }
func (p TypeIs) Match(a *domain.Anime) bool   { return a.Type == p.Type }
func (p StudioIs) Match(a *domain.Anime) bool { return a.StudioID == p.StudioID }

// SortField is the closed set of sortable anime fields.
type SortField int

const (
	SortRating SortField = iota
	SortTitle
	SortReleaseYear
	SortViewCount
	SortFavoriteCount
	SortCreatedAt
)

// Column is the backing column for SQL backends.
func (f SortField) Column() string {
	switch f {
	case SortTitle:
		return "title"
	case SortReleaseYear:
		return "release_year"
	case SortViewCount:
		return "view_count"
	case SortFavoriteCount:
		return "favorite_count"
	case SortCreatedAt:
		return "created_at"
	default:
		return "rating"
	}
}

// Compare orders a and b by the field alone.
func (f SortField) Compare(a, b *domain.Anime) int {
	switch f {
	case SortTitle:
		return cmp.Compare(a.Title, b.Title)
	case SortReleaseYear:
		return cmp.Compare(a.ReleaseYear, b.ReleaseYear)
	case SortViewCount:
		return cmp.Compare(a.ViewCount, b.ViewCount)
	case SortFavoriteCount:
		return cmp.Compare(a.FavoriteCount, b.FavoriteCount)
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return cmp.Compare(a.Rating, b.Rating)
	}
}

type Sort struct {
	Field SortField
	Asc   bool
}

// AnimeQuery is a conjunction of predicates plus an ordering and a window.
// Ties are broken by id so pages are stable.
type AnimeQuery struct {
	Predicates []Predicate
	Sort       Sort
	Offset     int
	Limit      int
}

// Matches reports whether a satisfies every predicate.
func (q AnimeQuery) Matches(a *domain.Anime) bool {
	for _, p := range q.Predicates {
		if !p.Match(a) {
			return false
		}
	}
	return true
}
