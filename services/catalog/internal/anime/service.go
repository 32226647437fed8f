// Package anime handles catalog edits: the anime documents themselves, their
// embedded episodes and related links, and the studio and genre counts that
// follow from them.
package anime

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/internal/platform/validate"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/store"
)

type Input struct {
	Title         string             `json:"title" validate:"required,max=300"`
	TitleEnglish  string             `json:"title_english" validate:"max=300"`
	TitleJapanese string             `json:"title_japanese" validate:"max=300"`
	Description   string             `json:"description" validate:"max=20000"`
	PosterURL     string             `json:"poster_url" validate:"omitempty,url"`
	BannerURL     string             `json:"banner_url" validate:"omitempty,url"`
	TrailerURL    string             `json:"trailer_url" validate:"omitempty,url"`
	Genres        []string           `json:"genres" validate:"max=30,dive,max=50"`
	ReleaseYear   int                `json:"release_year" validate:"omitempty,min=1900,max=2100"`
	Status        domain.AnimeStatus `json:"status" validate:"required,oneof=ONGOING COMPLETED UPCOMING"`
	Type          domain.AnimeType   `json:"type" validate:"required,oneof=TV MOVIE OVA ONA SPECIAL"`
	EpisodeCount  int                `json:"episode_count" validate:"min=0"`
	StudioID      string             `json:"studio_id"`
}

type RelatedInput struct {
	AnimeID      string              `json:"anime_id" validate:"required"`
	RelationType domain.RelationType `json:"relation_type" validate:"required,oneof=SEQUEL PREQUEL SEASON SIDE_STORY SPIN_OFF ALTERNATIVE MOVIE OVA SPECIAL OTHER"`
	SeasonNumber *int                `json:"season_number,omitempty" validate:"omitempty,min=1"`
}

// RelationCascade removes list entries of a deleted anime.
type RelationCascade interface {
	RemoveAllForAnime(ctx context.Context, animeID string) (int, error)
}

type Service struct {
	s         store.Store
	counters  *consistency.Counters
	relations RelationCascade
	events    *events.Publisher
	log       *zap.Logger
}

func NewService(s store.Store, counters *consistency.Counters, relations RelationCascade, pub *events.Publisher, log *zap.Logger) *Service {
	return &Service{s: s, counters: counters, relations: relations, events: pub, log: logging.OrNop(log).Named("anime")}
}

func (svc *Service) Get(ctx context.Context, id string) (domain.Anime, error) {
	return svc.s.Anime.GetAnime(ctx, id)
}

// View returns the anime after counting one view.
func (svc *Service) View(ctx context.Context, id, userID string) (domain.Anime, error) {
	if err := svc.s.Anime.IncrementViewCount(ctx, id, 1); err != nil {
		return domain.Anime{}, err
	}
	a, err := svc.s.Anime.GetAnime(ctx, id)
	if err != nil {
		return domain.Anime{}, err
	}
	svc.events.Publish(events.SubjectAnimeViewed, "anime_viewed", userID, map[string]any{"anime_id": id})
	return a, nil
}

func (svc *Service) studioName(ctx context.Context, studioID string) (string, error) {
	if studioID == "" {
		return "", nil
	}
	st, err := svc.s.Studios.GetStudio(ctx, studioID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("studio %s does not exist: %w", studioID, domain.ErrInvalid)
	}
	return st.Name, err
}

func (in Input) apply(a *domain.Anime) {
	a.Title = in.Title
	a.TitleEnglish = in.TitleEnglish
	a.TitleJapanese = in.TitleJapanese
	a.Description = in.Description
	a.PosterURL = in.PosterURL
	a.BannerURL = in.BannerURL
	a.TrailerURL = in.TrailerURL
	a.Genres = domain.NormalizeGenres(in.Genres)
	a.ReleaseYear = in.ReleaseYear
	a.Status = in.Status
	a.Type = in.Type
	a.EpisodeCount = in.EpisodeCount
	a.StudioID = in.StudioID
}

// Create adds an anime, registers it with its studio and recounts its
// genres.
func (svc *Service) Create(ctx context.Context, in Input) (domain.Anime, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Anime{}, domain.Invalid(err)
	}
	name, err := svc.studioName(ctx, in.StudioID)
	if err != nil {
		return domain.Anime{}, err
	}
	var a domain.Anime
	in.apply(&a)
	a.StudioName = name
	if err := svc.s.Anime.CreateAnime(ctx, &a); err != nil {
		return domain.Anime{}, err
	}
	svc.counters.AddAnimeToStudio(ctx, a.StudioID, a.ID)
	svc.counters.RecountGenres(ctx, a.Genres...)
	svc.changed(a.ID, "anime_created")
	return a, nil
}

// Update replaces the descriptive fields. A studio change moves the anime
// between studio lists; genres entering or leaving the set are recounted.
func (svc *Service) Update(ctx context.Context, id string, in Input) (domain.Anime, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Anime{}, domain.Invalid(err)
	}
	cur, err := svc.s.Anime.GetAnime(ctx, id)
	if err != nil {
		return domain.Anime{}, err
	}
	next := cur
	in.apply(&next)
	if next.StudioID != cur.StudioID {
		if next.StudioName, err = svc.studioName(ctx, next.StudioID); err != nil {
			return domain.Anime{}, err
		}
	}
	updated, err := svc.s.Anime.UpdateAnime(ctx, next)
	if err != nil {
		return domain.Anime{}, err
	}
	if updated.StudioID != cur.StudioID {
		svc.counters.RemoveAnimeFromStudio(ctx, cur.StudioID, id)
		svc.counters.AddAnimeToStudio(ctx, updated.StudioID, id)
	}
	svc.counters.RecountGenres(ctx, changedGenres(cur.Genres, updated.Genres)...)
	svc.changed(id, "anime_updated")
	return updated, nil
}

// changedGenres is the symmetric difference of two genre sets.
func changedGenres(before, after []string) []string {
	var out []string
	for _, g := range before {
		if !slices.Contains(after, g) {
			out = append(out, g)
		}
	}
	for _, g := range after {
		if !slices.Contains(before, g) {
			out = append(out, g)
		}
	}
	return out
}

// Delete removes the anime and cascades: its studio list entry, every list
// entry referencing it and its genre counts. Reviews are kept.
func (svc *Service) Delete(ctx context.Context, id string) error {
	a, err := svc.s.Anime.DeleteAnime(ctx, id)
	if err != nil {
		return err
	}
	svc.counters.RemoveAnimeFromStudio(ctx, a.StudioID, id)
	if svc.relations != nil {
		n, err := svc.relations.RemoveAllForAnime(context.WithoutCancel(ctx), id)
		if err != nil {
			svc.log.Warn("relation cascade incomplete", zap.String("anime_id", id), zap.Int("removed", n), zap.Error(err))
		}
	}
	svc.counters.RecountGenres(ctx, a.Genres...)
	svc.changed(id, "anime_deleted")
	return nil
}

func (svc *Service) AddEpisode(ctx context.Context, animeID string, ep domain.Episode) error {
	if ep.Number < 1 {
		return fmt.Errorf("episode number must be positive: %w", domain.ErrInvalid)
	}
	if err := svc.s.Anime.PushEpisode(ctx, animeID, ep); err != nil {
		return err
	}
	svc.changed(animeID, "episode_added")
	return nil
}

func (svc *Service) UpdateEpisode(ctx context.Context, animeID string, ep domain.Episode) error {
	if err := svc.s.Anime.ReplaceEpisode(ctx, animeID, ep); err != nil {
		return err
	}
	svc.changed(animeID, "episode_updated")
	return nil
}

func (svc *Service) RemoveEpisode(ctx context.Context, animeID string, number int) error {
	if err := svc.s.Anime.PullEpisode(ctx, animeID, number); err != nil {
		return err
	}
	svc.changed(animeID, "episode_removed")
	return nil
}

// AddRelated links another anime, copying its title and poster now.
func (svc *Service) AddRelated(ctx context.Context, animeID string, in RelatedInput) error {
	if err := validate.Struct(in); err != nil {
		return domain.Invalid(err)
	}
	if in.AnimeID == animeID {
		return fmt.Errorf("anime cannot relate to itself: %w", domain.ErrInvalid)
	}
	other, err := svc.s.Anime.GetAnime(ctx, in.AnimeID)
	if err != nil {
		return err
	}
	link := domain.RelatedAnime{
		AnimeID:      other.ID,
		Title:        other.Title,
		PosterURL:    other.PosterURL,
		RelationType: in.RelationType,
		SeasonNumber: in.SeasonNumber,
	}
	if err := svc.s.Anime.PushRelated(ctx, animeID, link); err != nil {
		return err
	}
	svc.changed(animeID, "related_added")
	return nil
}

func (svc *Service) RemoveRelated(ctx context.Context, animeID, relatedID string) error {
	if err := svc.s.Anime.PullRelated(ctx, animeID, relatedID); err != nil {
		return err
	}
	svc.changed(animeID, "related_removed")
	return nil
}

// RelatedDetails loads the current documents of every linked anime that
// still exists.
func (svc *Service) RelatedDetails(ctx context.Context, animeID string) ([]domain.Anime, error) {
	a, err := svc.s.Anime.GetAnime(ctx, animeID)
	if err != nil {
		return nil, err
	}
	if len(a.Related) == 0 {
		return []domain.Anime{}, nil
	}
	ids := make([]string, 0, len(a.Related))
	for _, r := range a.Related {
		ids = append(ids, r.AnimeID)
	}
	return svc.s.Anime.GetAnimeByIDs(ctx, ids)
}

func (svc *Service) changed(animeID, name string) {
	svc.events.Publish(events.SubjectAnimeChanged, name, "", map[string]any{"anime_id": animeID})
	svc.events.Publish(events.SubjectStatsInvalidate, "stats_invalidate", "", map[string]any{"key": "ALL"})
}
