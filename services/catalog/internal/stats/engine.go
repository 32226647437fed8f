// Package stats computes advisory catalog statistics. Aggregate failures
// degrade to empty results; only a missing entity is reported as an error.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
	"github.com/example/animefan/services/catalog/internal/store"
)

const (
	DefaultMinRatings = 10
	platformTopAnime  = 10
	maxListLimit      = 100

	keyPlatform = "platform"
	keyGenres   = "genres"
)

type Options struct {
	// MinRatings is the rating count an anime needs to appear in top lists.
	MinRatings int
}

type Engine struct {
	s          store.Store
	cache      Cache
	minRatings int
	group      singleflight.Group
	log        *zap.Logger
	now        func() time.Time
}

// NewEngine returns an Engine. cache may be nil.
func NewEngine(s store.Store, cache Cache, opts Options, log *zap.Logger) *Engine {
	if opts.MinRatings <= 0 {
		opts.MinRatings = DefaultMinRatings
	}
	return &Engine{
		s:          s,
		cache:      cache,
		minRatings: opts.MinRatings,
		log:        logging.OrNop(log).Named("stats"),
		now:        time.Now,
	}
}

func (e *Engine) degraded(op string, err error) {
	metrics.DegradedReads.WithLabelValues(op).Inc()
	e.log.Warn("statistics read degraded", zap.String("operation", op), zap.Error(err))
}

// cached serves key from the cache or computes it once across concurrent
// callers. Results that report ok=false are not stored.
func cached[T any](ctx context.Context, e *Engine, key string, compute func(context.Context) (T, bool)) T {
	var out T
	if e.cache != nil {
		hit, err := e.cache.Get(ctx, key, &out)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			e.log.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		case hit:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return out
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}
	v, _, _ := e.group.Do(key, func() (any, error) {
		val, ok := compute(context.WithoutCancel(ctx))
		if ok && e.cache != nil {
			if err := e.cache.Set(context.WithoutCancel(ctx), key, val); err != nil {
				e.log.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return val, nil
	})
	return v.(T)
}

// Invalidate drops every cached statistic.
func (e *Engine) Invalidate(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx, InvalidateAll)
}

// GenreStatistics groups the catalog by genre tag, largest group first.
func (e *Engine) GenreStatistics(ctx context.Context) []domain.GenreStat {
	return cached(ctx, e, keyGenres, e.genreStatistics)
}

func (e *Engine) genreStatistics(ctx context.Context) ([]domain.GenreStat, bool) {
	out, err := e.s.Anime.GenreAggregates(ctx)
	if err != nil {
		e.degraded("genre_statistics", err)
		return []domain.GenreStat{}, false
	}
	return out, true
}

// TopAnime lists the best rated anime with at least MinRatings reviews.
func (e *Engine) TopAnime(ctx context.Context, limit int) []domain.Anime {
	out, err := e.s.Anime.TopRated(ctx, e.minRatings, clampLimit(limit))
	if err != nil {
		e.degraded("top_anime", err)
		return []domain.Anime{}
	}
	return out
}

func (e *Engine) RatingDistribution(ctx context.Context, animeID string) []domain.RatingBucket {
	out, err := e.s.Reviews.RatingHistogram(ctx, animeID)
	if err != nil {
		e.degraded("rating_distribution", err)
		return []domain.RatingBucket{}
	}
	return out
}

func (e *Engine) TopReviewers(ctx context.Context, limit int) []domain.ReviewerStat {
	out, err := e.s.Reviews.TopReviewers(ctx, clampLimit(limit))
	if err != nil {
		e.degraded("top_reviewers", err)
		return []domain.ReviewerStat{}
	}
	return out
}

// PlatformStats snapshots catalog totals, genre statistics and the top ten.
// The snapshot is cached; a failed snapshot is returned empty and not cached.
func (e *Engine) PlatformStats(ctx context.Context) domain.PlatformStats {
	return cached(ctx, e, keyPlatform, e.platformStats)
}

func (e *Engine) platformStats(ctx context.Context) (domain.PlatformStats, bool) {
	out := domain.PlatformStats{GeneratedAt: e.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalAnime, err = e.s.Anime.CountAnime(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.TotalUsers, err = e.s.Users.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.TotalReviews, err = e.s.Reviews.CountReviews(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.TotalStudios, err = e.s.Studios.CountStudios(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Genres, err = e.s.Anime.GenreAggregates(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.TopAnime, err = e.s.Anime.TopRated(gctx, e.minRatings, platformTopAnime)
		return err
	})
	if err := g.Wait(); err != nil {
		e.degraded("platform_stats", err)
		return domain.PlatformStats{Genres: []domain.GenreStat{}, TopAnime: []domain.Anime{}, GeneratedAt: out.GeneratedAt}, false
	}
	return out, true
}

// UserStats counts a user's list by status. Each count stands alone: one
// failed count reads as zero without hiding the others.
func (e *Engine) UserStats(ctx context.Context, userID string) domain.UserStats {
	out := domain.UserStats{UserID: userID}
	count := func(op string, fn func() (int64, error)) int64 {
		n, err := fn()
		if err != nil {
			e.degraded(op, err)
			return 0
		}
		return n
	}
	byStatus := func(st domain.WatchStatus) int64 {
		return count("user_stats_status", func() (int64, error) {
			return e.s.Relations.CountRelationsByStatus(ctx, userID, st)
		})
	}
	out.Watching = byStatus(domain.Watching)
	out.Completed = byStatus(domain.Completed)
	out.OnHold = byStatus(domain.OnHold)
	out.Dropped = byStatus(domain.Dropped)
	out.PlanToWatch = byStatus(domain.PlanToWatch)
	out.Favorites = count("user_stats_favorites", func() (int64, error) {
		return e.s.Relations.CountUserFavorites(ctx, userID)
	})
	out.Reviews = count("user_stats_reviews", func() (int64, error) {
		return e.s.Reviews.CountReviewsByUser(ctx, userID)
	})
	out.TotalInList = out.Watching + out.Completed + out.OnHold + out.Dropped + out.PlanToWatch
	return out
}

// AnimeStats combines the anime's stored counters with live relation and
// review counts. It returns ErrNotFound for an unknown anime.
func (e *Engine) AnimeStats(ctx context.Context, animeID string) (domain.AnimeStats, error) {
	a, err := e.s.Anime.GetAnime(ctx, animeID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AnimeStats{}, err
	}
	if err != nil {
		return domain.AnimeStats{}, fmt.Errorf("anime stats: %w: %w", domain.ErrUnavailable, err)
	}
	out := domain.AnimeStats{
		AnimeID:     a.ID,
		Title:       a.Title,
		Rating:      a.Rating,
		RatingCount: a.RatingCount,
		ViewCount:   a.ViewCount,
	}
	if out.UserCount, err = e.s.Relations.CountRelationsByAnime(ctx, animeID); err != nil {
		e.degraded("anime_stats_users", err)
	}
	if out.FavoriteCount, err = e.s.Relations.CountAnimeFavorites(ctx, animeID); err != nil {
		e.degraded("anime_stats_favorites", err)
	}
	if out.ReviewCount, err = e.s.Reviews.CountReviewsByAnime(ctx, animeID); err != nil {
		e.degraded("anime_stats_reviews", err)
	}
	return out, nil
}

// UserGenrePreferences ranks the genres across a user's list.
func (e *Engine) UserGenrePreferences(ctx context.Context, userID string, limit int) []domain.GenrePreference {
	out, err := e.s.Relations.UserGenrePreferences(ctx, userID, clampLimit(limit))
	if err != nil {
		e.degraded("user_genre_preferences", err)
		return []domain.GenrePreference{}
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return min(limit, maxListLimit)
}
