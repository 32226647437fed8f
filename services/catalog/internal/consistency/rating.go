// Package consistency keeps the catalog's derived values in step with their
// source collections: the per-anime rating, the favorite/view/watched/review
// counters and the studio and genre membership counts. Nothing here opens a
// transaction; drift left by a failed follow-up write is repaired by the
// Reconciler.
package consistency

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/metrics"
	"github.com/example/animefan/services/catalog/internal/store"
)

type RatingOptions struct {
	// BreakerFailures is the number of consecutive aggregate failures that
	// opens the breaker. Zero means 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open. Zero means 30s.
	BreakerTimeout time.Duration
}

// RatingManager is the only writer of Anime.Rating and Anime.RatingCount.
type RatingManager struct {
	anime   store.AnimeStore
	reviews store.ReviewStore
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
	// recomputes of one anime run one at a time in this process so a stale
	// aggregate cannot overwrite a newer one
	locks [64]sync.Mutex
}

func NewRatingManager(s store.Store, opts RatingOptions, log *zap.Logger) *RatingManager {
	log = logging.OrNop(log).Named("rating")
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rating-aggregate",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &RatingManager{anime: s.Anime, reviews: s.Reviews, cb: cb, log: log}
}

type aggregate struct{ sum, count int64 }

// Recompute reads the full review set for animeID and writes the rounded
// mean and count in one update. It is idempotent, and calls for the same
// anime are serialised within the process. With no reviews it writes 0.0 and 0.
func (m *RatingManager) Recompute(ctx context.Context, animeID string) (float64, int, error) {
	mu := m.lockFor(animeID)
	mu.Lock()
	defer mu.Unlock()

	agg, err := m.aggregate(ctx, animeID)
	if err != nil {
		return 0, 0, err
	}
	rating := domain.RoundRating(agg.sum, agg.count)
	if err := m.anime.SetRating(ctx, animeID, rating, int(agg.count)); err != nil {
		return 0, 0, fmt.Errorf("recompute rating %s: %w", animeID, err)
	}
	return rating, int(agg.count), nil
}

func (m *RatingManager) lockFor(animeID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(animeID))
	return &m.locks[h.Sum32()%uint32(len(m.locks))]
}

func (m *RatingManager) aggregate(ctx context.Context, animeID string) (aggregate, error) {
	out, err := m.cb.Execute(func() (interface{}, error) {
		sum, count, err := m.reviews.RatingAggregate(ctx, animeID)
		if err != nil {
			return nil, err
		}
		return aggregate{sum, count}, nil
	})
	if err == nil {
		return out.(aggregate), nil
	}
	if ctx.Err() != nil {
		return aggregate{}, ctx.Err()
	}
	metrics.RatingFallbacks.Inc()
	m.log.Warn("rating aggregate unavailable, summing in process", zap.String("anime_id", animeID), zap.Error(err))

	ratings, ferr := m.reviews.ReviewRatings(ctx, animeID)
	if ferr != nil {
		return aggregate{}, fmt.Errorf("recompute rating %s: %w", animeID, ferr)
	}
	var agg aggregate
	for _, r := range ratings {
		agg.sum += int64(r)
		agg.count++
	}
	return agg, nil
}
