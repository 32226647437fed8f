package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/internal/platform/httpserver"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/internal/platform/run"
	"github.com/example/animefan/services/catalog/internal/anime"
	"github.com/example/animefan/services/catalog/internal/config"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/handlers"
	"github.com/example/animefan/services/catalog/internal/query"
	"github.com/example/animefan/services/catalog/internal/reference"
	"github.com/example/animefan/services/catalog/internal/relation"
	"github.com/example/animefan/services/catalog/internal/repair"
	"github.com/example/animefan/services/catalog/internal/review"
	"github.com/example/animefan/services/catalog/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(logging.Options{
		Service: cfg.App.ServiceName,
		Level:   cfg.App.LogLevel,
		Console: !cfg.App.IsProduction() && cfg.LogConsole,
	})
	if err != nil {
		panic(err)
	}
	code := serve(cfg, log)
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// serve blocks until a signal or a fatal server error. Deferred cleanups run
// before the process exits.
func serve(cfg config.Config, log *zap.Logger) int {
	st, ping, closeStore, err := initStore(cfg, log)
	if err != nil {
		log.Error("store init", zap.Error(err))
		return 1
	}
	defer closeStore()

	bus := initBus(cfg, log)
	defer bus.Close()

	cache, closeCache := initCache(cfg, bus, log)
	defer closeCache()

	// Counters need a repair sink and the reconciler needs counters; the
	// inline sink is completed once the reconciler exists.
	var repairs consistency.Repairs
	inline := repair.NewInline(nil, log)
	if bus.js != nil {
		repairs = repair.NewQueue(bus.js, log)
	} else {
		repairs = inline
	}

	counters := consistency.NewCounters(st, repairs, log)
	ratings := consistency.NewRatingManager(st, consistency.RatingOptions{
		BreakerFailures: uint32(cfg.AggBreakerFailures),
		BreakerTimeout:  cfg.AggBreakerTimeout,
	}, log)
	reconciler := consistency.NewReconciler(st, ratings, counters, consistency.ReconcileOptions{
		BatchSize:         cfg.ReconcileBatch,
		EntitiesPerSecond: cfg.ReconcileRPS,
		Events:            bus.events,
	}, log)
	inline.SetRepairer(reconciler)

	// lifetime ends admin-triggered sweeps before graceful shutdown
	runner := run.New(log)
	lifetime, endLifetime := context.WithCancel(context.Background())
	defer endLifetime()

	relations := relation.NewService(st, counters, bus.events, log)
	deps := handlers.Deps{
		Query:      query.NewEngine(st.Anime, log),
		Stats:      stats.NewEngine(st, cache, stats.Options{MinRatings: cfg.TopAnimeMinRatings}, log),
		Anime:      anime.NewService(st, counters, relations, bus.events, log),
		Reviews:    review.NewService(st, ratings, counters, bus.events, log),
		Relations:  relations,
		Reference:  reference.NewService(st, counters, bus.events, log),
		Ratings:    ratings,
		Counters:   counters,
		Reconciler: reconciler,
		Verifier:   auth.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer, Leeway: 30 * time.Second},
		Background: func(name string, fn func(context.Context) error) {
			runner.Background(lifetime, name, fn)
		},
		Logger: log,
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger:    log,
		ReadyFunc: ping,
	})
	r.Handle("/metrics", promhttp.Handler())
	handlers.Mount(r, deps)

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Logger: log, Router: r})

	code := runner.WithSignals(func(ctx context.Context) error {
		runner.Background(ctx, "reconcile", func(ctx context.Context) error {
			return reconcileLoop(ctx, reconciler, cfg.ReconcileEvery, log)
		})
		if bus.js != nil {
			worker := repair.NewWorker(log, bus.js, reconciler)
			runner.Background(ctx, "repair", worker.Run)
		}
		return srv.Start()
	})
	endLifetime()
	runner.Graceful(srv.Shutdown)
	return code
}

// reconcileLoop sweeps once shortly after start and then on every tick.
func reconcileLoop(ctx context.Context, rec *consistency.Reconciler, every time.Duration, log *zap.Logger) error {
	first := time.NewTimer(30 * time.Second)
	defer first.Stop()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-first.C:
		case <-tick.C:
		}
		if _, err := rec.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn("scheduled sweep failed", zap.Error(err))
		}
	}
}
