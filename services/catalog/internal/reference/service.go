// Package reference manages studios, genres and the catalog's view of users.
package reference

import (
	"context"
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
	defaultStudioPage = 20
	maxStudioPage     = 100
)

type StudioInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Country     string `json:"country" validate:"max=100"`
	FoundedYear int    `json:"founded_year" validate:"omitempty,min=1900,max=2100"`
	LogoURL     string `json:"logo_url" validate:"omitempty,url"`
	Website     string `json:"website" validate:"omitempty,url"`
}

type GenreInput struct {
	Name        string `json:"name" validate:"required,max=50"`
	NameRu      string `json:"name_ru" validate:"max=50"`
	Description string `json:"description" validate:"max=2000"`
	BannerURL   string `json:"banner_url" validate:"omitempty,url"`
	// Order and Active are ignored on create.
	Order  int  `json:"order" validate:"min=0"`
	Active bool `json:"active"`
}

type ProfileInput struct {
	Username  string `json:"username" validate:"required,max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

type Service struct {
	s        store.Store
	counters *consistency.Counters
	events   *events.Publisher
	log      *zap.Logger
}

func NewService(s store.Store, counters *consistency.Counters, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{s: s, counters: counters, events: pub, log: logging.OrNop(log).Named("reference")}
}

// ── Studios ────────────────────────────────────────────────────────────────

func (svc *Service) CreateStudio(ctx context.Context, in StudioInput) (domain.Studio, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Studio{}, domain.Invalid(err)
	}
	st := domain.Studio{
		Name:        in.Name,
		Description: in.Description,
		Country:     in.Country,
		FoundedYear: in.FoundedYear,
		LogoURL:     in.LogoURL,
		Website:     in.Website,
	}
	if err := svc.s.Studios.CreateStudio(ctx, &st); err != nil {
		return domain.Studio{}, err
	}
	return st, nil
}

func (svc *Service) UpdateStudio(ctx context.Context, id string, in StudioInput) (domain.Studio, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Studio{}, domain.Invalid(err)
	}
	return svc.s.Studios.UpdateStudio(ctx, domain.Studio{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Country:     in.Country,
		FoundedYear: in.FoundedYear,
		LogoURL:     in.LogoURL,
		Website:     in.Website,
	})
}

// DeleteStudio refuses while the studio still owns anime.
func (svc *Service) DeleteStudio(ctx context.Context, id string) error {
	st, err := svc.s.Studios.GetStudio(ctx, id)
	if err != nil {
		return err
	}
	if len(st.AnimeIDs) > 0 {
		return fmt.Errorf("studio %s still owns %d anime: %w", id, len(st.AnimeIDs), domain.ErrConflict)
	}
	return svc.s.Studios.DeleteStudio(ctx, id)
}

func (svc *Service) GetStudio(ctx context.Context, id string) (domain.Studio, error) {
	return svc.s.Studios.GetStudio(ctx, id)
}

func (svc *Service) ListStudios(ctx context.Context, page, size int) (domain.Page[domain.Studio], error) {
	offset, limit, p, sz := domain.Window(page, size, defaultStudioPage, maxStudioPage)
	items, total, err := svc.s.Studios.ListStudios(ctx, offset, limit)
	if err != nil {
		return domain.Page[domain.Studio]{}, err
	}
	return domain.NewPage(items, total, p, sz), nil
}

// TopStudios orders by AnimeCount, largest first.
func (svc *Service) TopStudios(ctx context.Context, limit int) ([]domain.Studio, error) {
	if limit <= 0 || limit > maxStudioPage {
		limit = 10
	}
	return svc.s.Studios.TopStudios(ctx, limit)
}

// StudioAnime loads the anime a studio lists, in list order where they still
// exist.
func (svc *Service) StudioAnime(ctx context.Context, id string) ([]domain.Anime, error) {
	st, err := svc.s.Studios.GetStudio(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(st.AnimeIDs) == 0 {
		return []domain.Anime{}, nil
	}
	return svc.s.Anime.GetAnimeByIDs(ctx, st.AnimeIDs)
}

// ── Genres ─────────────────────────────────────────────────────────────────

// CreateGenre appends an active genre after the current last one. Its count
// is taken from anime already carrying the tag.
func (svc *Service) CreateGenre(ctx context.Context, in GenreInput) (domain.Genre, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Genre{}, domain.Invalid(err)
	}
	top, err := svc.s.Genres.MaxGenreOrder(ctx)
	if err != nil {
		return domain.Genre{}, err
	}
	g := domain.Genre{
		Name:        in.Name,
		NameRu:      in.NameRu,
		Description: in.Description,
		BannerURL:   in.BannerURL,
		Order:       top + 1,
		Active:      true,
	}
	if err := svc.s.Genres.CreateGenre(ctx, &g); err != nil {
		return domain.Genre{}, err
	}
	svc.counters.RecountGenres(ctx, g.Name)
	return svc.s.Genres.GetGenre(ctx, g.ID)
}

func (svc *Service) UpdateGenre(ctx context.Context, id string, in GenreInput) (domain.Genre, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Genre{}, domain.Invalid(err)
	}
	prev, err := svc.s.Genres.GetGenre(ctx, id)
	if err != nil {
		return domain.Genre{}, err
	}
	g, err := svc.s.Genres.UpdateGenre(ctx, domain.Genre{
		ID:          id,
		Name:        in.Name,
		NameRu:      in.NameRu,
		Description: in.Description,
		BannerURL:   in.BannerURL,
		Order:       in.Order,
		Active:      in.Active,
	})
	if err != nil {
		return domain.Genre{}, err
	}
	if g.Name != prev.Name {
		svc.counters.RecountGenres(ctx, g.Name)
		return svc.s.Genres.GetGenre(ctx, id)
	}
	return g, nil
}

func (svc *Service) DeleteGenre(ctx context.Context, id string) error {
	return svc.s.Genres.DeleteGenre(ctx, id)
}

func (svc *Service) GetGenre(ctx context.Context, id string) (domain.Genre, error) {
	return svc.s.Genres.GetGenre(ctx, id)
}

func (svc *Service) ListGenres(ctx context.Context, activeOnly bool) ([]domain.Genre, error) {
	return svc.s.Genres.ListGenres(ctx, activeOnly)
}

// ── Users ──────────────────────────────────────────────────────────────────

// SaveProfile records the display fields used for review snapshots. Counters
// are untouched.
func (svc *Service) SaveProfile(ctx context.Context, userID string, in ProfileInput) (domain.User, error) {
	if err := validate.Struct(in); err != nil {
		return domain.User{}, domain.Invalid(err)
	}
	if err := svc.s.Users.UpsertUser(ctx, domain.User{ID: userID, Username: in.Username, AvatarURL: in.AvatarURL}); err != nil {
		return domain.User{}, err
	}
	svc.events.Publish(events.SubjectStatsInvalidate, "stats_invalidate", userID, map[string]any{"key": "ALL"})
	return svc.s.Users.GetUser(ctx, userID)
}

func (svc *Service) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return svc.s.Users.GetUser(ctx, userID)
}
