package consistency

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
	"github.com/example/animefan/services/catalog/internal/store"
)

// Kind names an entity whose derived values can be recounted on its own.
type Kind string

const (
	KindAnime  Kind = "anime"
	KindUser   Kind = "user"
	KindStudio Kind = "studio"
	KindGenre  Kind = "genre"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAnime, KindUser, KindStudio, KindGenre:
		return true
	}
	return false
}

// Repairs accepts requests to recount a single entity later. Implementations
// must not block the caller.
type Repairs interface {
	RequestRepair(ctx context.Context, kind Kind, id string)
}

// Counters applies compensating increments after a primary write has
// committed. Its methods never return an error: a failed write is logged,
// counted and handed to Repairs, and the periodic sweep is the backstop.
type Counters struct {
	s       store.Store
	repairs Repairs
	log     *zap.Logger
}

// NewCounters returns Counters writing through s. repairs may be nil.
func NewCounters(s store.Store, repairs Repairs, log *zap.Logger) *Counters {
	return &Counters{s: s, repairs: repairs, log: logging.OrNop(log).Named("counters")}
}

// Drifted records a derived-value write that failed after its primary write
// committed, and asks for a targeted repair.
func (c *Counters) Drifted(ctx context.Context, counter string, kind Kind, id string, err error) {
	metrics.CounterWriteFailures.WithLabelValues(counter).Inc()
	c.log.Warn("counter write failed, left for reconciliation",
		zap.String("counter", counter), zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	if c.repairs != nil {
		c.repairs.RequestRepair(ctx, kind, id)
	}
}

// FavoriteChanged moves both favorite counters by delta: +1 when a relation
// becomes favorited, -1 when it stops being one or is deleted while favorited.
func (c *Counters) FavoriteChanged(ctx context.Context, userID, animeID string, delta int) {
	if delta == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Anime.IncrementFavoriteCount(ctx, animeID, int64(delta)); err != nil {
		c.Drifted(ctx, "anime_favorites", KindAnime, animeID, err)
	}
	if err := c.s.Users.IncrementUserCounter(ctx, userID, domain.CounterFavorites, delta); err != nil {
		c.Drifted(ctx, "user_favorites", KindUser, userID, err)
	}
}

// UserFavoriteChanged moves only the user's favorite counter, for relations
// removed together with their anime.
func (c *Counters) UserFavoriteChanged(ctx context.Context, userID string, delta int) {
	if delta == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Users.IncrementUserCounter(ctx, userID, domain.CounterFavorites, delta); err != nil {
		c.Drifted(ctx, "user_favorites", KindUser, userID, err)
	}
}

// Completed records a relation's first entry into COMPLETED.
func (c *Counters) Completed(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Users.IncrementUserCounter(ctx, userID, domain.CounterWatched, 1); err != nil {
		c.Drifted(ctx, "user_watched", KindUser, userID, err)
	}
}

func (c *Counters) ReviewCountChanged(ctx context.Context, userID string, delta int) {
	if delta == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Users.IncrementUserCounter(ctx, userID, domain.CounterReviews, delta); err != nil {
		c.Drifted(ctx, "user_reviews", KindUser, userID, err)
	}
}

// AddAnimeToStudio appends animeID to the studio's list and bumps its count
// in one write. An empty studioID is a no-op.
func (c *Counters) AddAnimeToStudio(ctx context.Context, studioID, animeID string) {
	if studioID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Studios.AddStudioAnime(ctx, studioID, animeID); err != nil {
		c.Drifted(ctx, "studio_anime", KindStudio, studioID, err)
	}
}

func (c *Counters) RemoveAnimeFromStudio(ctx context.Context, studioID, animeID string) {
	if studioID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.s.Studios.RemoveStudioAnime(ctx, studioID, animeID); err != nil {
		c.Drifted(ctx, "studio_anime", KindStudio, studioID, err)
	}
}

// RecountGenres recounts the named genres from anime tag membership. Tags
// without a reference genre are skipped.
func (c *Counters) RecountGenres(ctx context.Context, names ...string) {
	names = domain.NormalizeGenres(names)
	if len(names) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if _, err := c.recountGenres(ctx, names); err != nil {
		for _, name := range names {
			c.Drifted(ctx, "genre_anime", KindGenre, name, err)
		}
	}
}

// RecountAllGenres recounts every reference genre and reports how many
// counts changed.
func (c *Counters) RecountAllGenres(ctx context.Context) (int, error) {
	genres, err := c.s.Genres.ListGenres(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("recount genres: %w", err)
	}
	counts, err := c.s.Anime.AllGenreCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("recount genres: %w", err)
	}
	changed := 0
	for _, g := range genres {
		ok, err := c.s.Genres.SetGenreAnimeCount(ctx, g.Name, counts[g.Name])
		if errors.Is(err, domain.ErrNotFound) {
			continue // renamed or deleted since the listing
		}
		if err != nil {
			return changed, fmt.Errorf("recount genre %s: %w", g.Name, err)
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (c *Counters) recountGenres(ctx context.Context, names []string) (int, error) {
	counts, err := c.s.Anime.CountAnimeWithGenres(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("recount genres: %w", err)
	}
	changed := 0
	for _, name := range names {
		ok, err := c.s.Genres.SetGenreAnimeCount(ctx, name, counts[name])
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("recount genre %s: %w", name, err)
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
