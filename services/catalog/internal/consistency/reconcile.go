package consistency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
	"github.com/example/animefan/services/catalog/internal/store"
)

// ErrSweepRunning is returned by Run while another sweep is in progress.
var ErrSweepRunning = fmt.Errorf("reconciliation already running: %w", domain.ErrConflict)

type ReconcileOptions struct {
	// BatchSize is the keyset page size. Zero means 200.
	BatchSize int
	// EntitiesPerSecond throttles per-entity recounts. Zero disables it.
	EntitiesPerSecond float64
	// Events receives a summary after each full sweep. May be nil.
	Events *events.Publisher
}

// Report summarises one sweep.
type Report struct {
	Anime       int           `json:"anime"`
	Studios     int           `json:"studios"`
	Genres      int           `json:"genres"`
	Users       int           `json:"users"`
	Corrections int           `json:"corrections"`
	Failures    int           `json:"failures"`
	Duration    time.Duration `json:"duration_ns"`
}

// Reconciler recomputes derived values from their sources. It processes one
// entity at a time without a global lock, so it can run beside live writers
// and a crash loses at most the entity in flight.
type Reconciler struct {
	s        store.Store
	ratings  *RatingManager
	counters *Counters
	limiter  *rate.Limiter
	batch    int
	events   *events.Publisher
	log      *zap.Logger
	running  atomic.Bool
}

func NewReconciler(s store.Store, ratings *RatingManager, counters *Counters, opts ReconcileOptions, log *zap.Logger) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	limit := rate.Inf
	if opts.EntitiesPerSecond > 0 {
		limit = rate.Limit(opts.EntitiesPerSecond)
	}
	return &Reconciler{
		s:        s,
		ratings:  ratings,
		counters: counters,
		limiter:  rate.NewLimiter(limit, 1),
		batch:    opts.BatchSize,
		events:   opts.Events,
		log:      logging.OrNop(log).Named("reconcile"),
	}
}

// Running reports whether a sweep is in progress.
func (r *Reconciler) Running() bool { return r.running.Load() }

// Run sweeps every anime, studio, genre and user. Per-entity failures are
// logged and counted; only cancellation stops the sweep early.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrSweepRunning
	}
	defer r.running.Store(false)

	start := time.Now()
	var rep Report
	err := r.sweep(ctx, &rep)
	rep.Duration = time.Since(start)
	metrics.ReconcileDuration.Observe(rep.Duration.Seconds())

	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("aborted").Inc()
		r.log.Warn("sweep aborted", zap.Error(err), zap.Int("corrections", rep.Corrections))
		return rep, err
	}
	metrics.ReconcileRuns.WithLabelValues("completed").Inc()
	r.log.Info("sweep completed",
		zap.Int("anime", rep.Anime), zap.Int("studios", rep.Studios), zap.Int("genres", rep.Genres),
		zap.Int("users", rep.Users), zap.Int("corrections", rep.Corrections), zap.Int("failures", rep.Failures),
		zap.Duration("took", rep.Duration))
	r.events.Publish(events.SubjectReconcileSummary, "reconcile_completed", "", map[string]any{
		"corrections": rep.Corrections,
		"failures":    rep.Failures,
	})
	if rep.Corrections > 0 {
		r.events.Publish(events.SubjectStatsInvalidate, "stats_invalidate", "", map[string]any{"key": "ALL"})
	}
	return rep, nil
}

func (r *Reconciler) sweep(ctx context.Context, rep *Report) error {
	after := ""
	for {
		refs, err := r.s.Anime.ListAnimeRefs(ctx, after, r.batch)
		if err != nil {
			return fmt.Errorf("list anime: %w", err)
		}
		for _, ref := range refs {
			if err := r.step(ctx, rep, KindAnime, ref.ID, r.ReconcileAnime); err != nil {
				return err
			}
			rep.Anime++
		}
		if len(refs) < r.batch {
			break
		}
		after = refs[len(refs)-1].ID
	}

	if err := r.keyset(ctx, rep, KindStudio, r.s.Studios.ListStudioIDs, r.ReconcileStudio, &rep.Studios); err != nil {
		return err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	changed, err := r.counters.RecountAllGenres(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rep.Failures++
		r.log.Warn("genre recount failed", zap.Error(err))
	} else {
		r.corrected(rep, KindGenre, changed)
		genres, err := r.s.Genres.ListGenres(ctx, false)
		if err == nil {
			rep.Genres = len(genres)
		}
	}

	return r.keyset(ctx, rep, KindUser, r.s.Users.ListUserIDs, r.ReconcileUser, &rep.Users)
}

type listIDs func(ctx context.Context, afterID string, limit int) ([]string, error)

func (r *Reconciler) keyset(ctx context.Context, rep *Report, kind Kind, list listIDs, fix func(context.Context, string) (int, error), seen *int) error {
	after := ""
	for {
		ids, err := list(ctx, after, r.batch)
		if err != nil {
			return fmt.Errorf("list %s: %w", kind, err)
		}
		for _, id := range ids {
			if err := r.step(ctx, rep, kind, id, fix); err != nil {
				return err
			}
			*seen++
		}
		if len(ids) < r.batch {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (r *Reconciler) step(ctx context.Context, rep *Report, kind Kind, id string, fix func(context.Context, string) (int, error)) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	n, err := fix(ctx, id)
	switch {
	case err == nil:
		r.corrected(rep, kind, n)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, domain.ErrNotFound):
		// deleted after it was listed
	default:
		rep.Failures++
		r.log.Warn("entity recount failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
	return nil
}

func (r *Reconciler) corrected(rep *Report, kind Kind, n int) {
	if n == 0 {
		return
	}
	rep.Corrections += n
	metrics.ReconcileCorrections.WithLabelValues(string(kind)).Add(float64(n))
}

// ReconcileAnime recounts favoriteCount from favorited relations and
// recomputes the rating. It returns the number of fields it corrected.
func (r *Reconciler) ReconcileAnime(ctx context.Context, id string) (int, error) {
	a, err := r.s.Anime.GetAnime(ctx, id)
	if err != nil {
		return 0, err
	}
	n := 0
	favorites, err := r.s.Relations.CountAnimeFavorites(ctx, id)
	if err != nil {
		return 0, err
	}
	if favorites != a.FavoriteCount {
		if err := r.s.Anime.SetFavoriteCount(ctx, id, favorites); err != nil {
			return 0, err
		}
		n++
	}
	rating, count, err := r.ratings.Recompute(ctx, id)
	if err != nil {
		return n, err
	}
	if rating != a.Rating || count != a.RatingCount {
		n++
	}
	return n, nil
}

// ReconcileStudio rebuilds the studio's anime list from the anime that
// reference it.
func (r *Reconciler) ReconcileStudio(ctx context.Context, id string) (int, error) {
	ids, err := r.s.Anime.AnimeIDsByStudio(ctx, id)
	if err != nil {
		return 0, err
	}
	changed, err := r.s.Studios.SetStudioAnime(ctx, id, ids)
	if err != nil || !changed {
		return 0, err
	}
	return 1, nil
}

// ReconcileUser recounts favorites and reviews exactly. watchedCount is a
// lifetime counter, so it is only raised to the number of relations that
// have ever completed.
func (r *Reconciler) ReconcileUser(ctx context.Context, id string) (int, error) {
	if _, err := r.s.Users.GetUser(ctx, id); errors.Is(err, domain.ErrNotFound) {
		// a zero increment creates the row the first activity failed to
		if err := r.s.Users.IncrementUserCounter(ctx, id, domain.CounterFavorites, 0); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}
	favorites, err := r.s.Relations.CountUserFavorites(ctx, id)
	if err != nil {
		return 0, err
	}
	reviews, err := r.s.Reviews.CountReviewsByUser(ctx, id)
	if err != nil {
		return 0, err
	}
	completions, err := r.s.Relations.CountUserCompletions(ctx, id)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, set := range []struct {
		c domain.UserCounter
		v int64
	}{{domain.CounterFavorites, favorites}, {domain.CounterReviews, reviews}} {
		changed, err := r.s.Users.SetUserCounter(ctx, id, set.c, set.v)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	raised, err := r.s.Users.RaiseWatchedCount(ctx, id, completions)
	if err != nil {
		return n, err
	}
	if raised {
		n++
	}
	return n, nil
}

// ReconcileGenre recounts a single genre by name.
func (r *Reconciler) ReconcileGenre(ctx context.Context, name string) (int, error) {
	return r.counters.recountGenres(ctx, []string{name})
}

// Repair recounts one entity. It is the handler behind targeted repair
// requests.
func (r *Reconciler) Repair(ctx context.Context, kind Kind, id string) (int, error) {
	var (
		n   int
		err error
	)
	switch kind {
	case KindAnime:
		n, err = r.ReconcileAnime(ctx, id)
	case KindStudio:
		n, err = r.ReconcileStudio(ctx, id)
	case KindUser:
		n, err = r.ReconcileUser(ctx, id)
	case KindGenre:
		n, err = r.ReconcileGenre(ctx, id)
	default:
		return 0, fmt.Errorf("repair kind %q: %w", kind, domain.ErrInvalid)
	}
	if err == nil {
		metrics.ReconcileCorrections.WithLabelValues(string(kind)).Add(float64(n))
	}
	return n, err
}
