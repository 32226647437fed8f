// Package query composes catalog filters into store queries.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
	"github.com/example/animefan/services/catalog/internal/store"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
	maxAutocomplete = 50
)

// Filter is a structured catalog search. Zero-valued fields do not constrain
// the result. Page is zero-based.
type Filter struct {
	Query     string
	Genres    []string
	YearFrom  *int
	YearTo    *int
	RatingMin *float64
	RatingMax *float64
	Status    domain.AnimeStatus
	Type      domain.AnimeType
	StudioID  string
	SortBy    string
	SortDir   string
	Page      int
	Size      int
}

type Engine struct {
	anime store.AnimeStore
	log   *zap.Logger
}

func NewEngine(anime store.AnimeStore, log *zap.Logger) *Engine {
	return &Engine{anime: anime, log: logging.OrNop(log).Named("query")}
}

// Predicates turns f into a conjunction, one predicate per present field.
// Contradictory bounds are kept; they simply match nothing.
func (f Filter) Predicates() []store.Predicate {
	var ps []store.Predicate
	if q := strings.TrimSpace(f.Query); q != "" {
		ps = append(ps, store.TextContains{Text: q})
	}
	if genres := domain.NormalizeGenres(f.Genres); len(genres) > 0 {
		ps = append(ps, store.GenresAny{Genres: genres})
	}
	if f.YearFrom != nil || f.YearTo != nil {
		ps = append(ps, store.YearRange{From: f.YearFrom, To: f.YearTo})
	}
	if f.RatingMin != nil || f.RatingMax != nil {
		ps = append(ps, store.RatingRange{Min: f.RatingMin, Max: f.RatingMax})
	}
	if f.Status != "" {
		ps = append(ps, store.StatusIs{Status: f.Status})
	}
	if f.Type != "" {
		ps = append(ps, store.TypeIs{Type: f.Type})
	}
	if f.StudioID != "" {
		ps = append(ps, store.StudioIs{StudioID: f.StudioID})
	}
	return ps
}

// ParseSort maps a sort key and direction onto a store ordering. Unknown
// keys sort by rating; only "asc" sorts ascending.
func ParseSort(by, dir string) store.Sort {
	s := store.Sort{Asc: strings.EqualFold(strings.TrimSpace(dir), "asc")}
	switch strings.ToLower(strings.TrimSpace(by)) {
	case "title":
		s.Field = store.SortTitle
	case "releaseyear", "release_year", "year":
		s.Field = store.SortReleaseYear
	case "viewcount", "view_count", "views":
		s.Field = store.SortViewCount
	case "favoritecount", "favorite_count", "favorites":
		s.Field = store.SortFavoriteCount
	case "createdat", "created_at", "new":
		s.Field = store.SortCreatedAt
	default:
		s.Field = store.SortRating
	}
	return s
}

// Search runs the filter and returns one page plus the filter's total.
func (e *Engine) Search(ctx context.Context, f Filter) (domain.Page[domain.Anime], error) {
	offset, limit, page, size := domain.Window(f.Page, f.Size, DefaultPageSize, MaxPageSize)
	items, total, err := e.anime.FindAnime(ctx, store.AnimeQuery{
		Predicates: f.Predicates(),
		Sort:       ParseSort(f.SortBy, f.SortDir),
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return domain.Page[domain.Anime]{}, e.unavailable("search", err)
	}
	return domain.NewPage(items, total, page, size), nil
}

// FullTextSearch ranks by relevance: title above description above the
// alternate titles.
func (e *Engine) FullTextSearch(ctx context.Context, text string, page, size int) (domain.Page[domain.Anime], error) {
	offset, limit, p, s := domain.Window(page, size, DefaultPageSize, MaxPageSize)
	if strings.TrimSpace(text) == "" {
		return domain.NewPage([]domain.Anime{}, 0, p, s), nil
	}
	items, total, err := e.anime.TextSearch(ctx, text, offset, limit)
	if err != nil {
		return domain.Page[domain.Anime]{}, e.unavailable("full_text", err)
	}
	return domain.NewPage(items, total, p, s), nil
}

// SearchByTitle backs autocomplete.
func (e *Engine) SearchByTitle(ctx context.Context, text string, limit int) ([]domain.Anime, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.Anime{}, nil
	}
	if limit <= 0 || limit > maxAutocomplete {
		limit = 10
	}
	items, err := e.anime.TitleContains(ctx, text, limit)
	if err != nil {
		return nil, e.unavailable("title", err)
	}
	return items, nil
}

func (e *Engine) unavailable(op string, err error) error {
	metrics.QueryFailures.WithLabelValues(op).Inc()
	e.log.Warn("catalog query failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
