package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/db"
	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/natsconn"
	"github.com/example/animefan/services/catalog/internal/config"
	"github.com/example/animefan/services/catalog/internal/repair"
	"github.com/example/animefan/services/catalog/internal/stats"
	"github.com/example/animefan/services/catalog/internal/store"
)

// initStore selects the backend. Without DATABASE_URL the in-memory store is
// used; config.Load already refuses that in production.
func initStore(cfg config.Config, log *zap.Logger) (store.Store, func(context.Context) error, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory catalog store (development only)")
		return store.NewMemory().Store(), func(context.Context) error { return nil }, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pool, err := db.OpenDSN(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns), Application: cfg.App.ServiceName})
	if err != nil {
		return store.Store{}, nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return store.Store{}, nil, nil, err
	}
	pg := store.NewPostgres(pool)
	return pg.Store(), pg.Ping, pool.Close, nil
}

type messaging struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	events *events.Publisher
}

func (b messaging) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// initBus connects to NATS when configured. Failure is not fatal: events
// become no-ops and repairs run in process.
func initBus(cfg config.Config, log *zap.Logger) messaging {
	if cfg.NATSURL == "" {
		log.Info("NATS_URL not set, events disabled")
		return messaging{}
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats connect failed, events disabled", zap.Error(err))
		return messaging{}
	}
	js, err := natsconn.JetStream(nc)
	if err != nil {
		log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		nc.Close()
		return messaging{}
	}
	pub := events.New(js, log)
	if err := pub.EnsureStream(context.Background()); err != nil {
		log.Warn("event stream setup failed", zap.Error(err))
	}
	if err := repair.EnsureStream(js); err != nil {
		log.Warn("repair stream setup failed", zap.Error(err))
	}
	return messaging{nc: nc, js: js, events: pub}
}

// initCache prefers Redis for a cache shared across replicas; the in-process
// cache additionally listens for invalidation events.
func initCache(cfg config.Config, b messaging, log *zap.Logger) (stats.Cache, func()) {
	if cfg.RedisURL != "" {
		rc, err := stats.NewRedisCache(cfg.RedisURL, cfg.StatsCacheTTL)
		if err == nil {
			if err = rc.Client.Ping(context.Background()).Err(); err == nil {
				return withInvalidation(rc, b, log), func() { _ = rc.Close() }
			}
			_ = rc.Close()
		}
		log.Warn("redis unavailable, using in-process stats cache", zap.Error(err))
	}
	return withInvalidation(stats.NewTTLCache(cfg.StatsCacheTTL), b, log), func() {}
}

func withInvalidation(c stats.Cache, b messaging, log *zap.Logger) stats.Cache {
	if b.nc == nil {
		return c
	}
	if _, err := stats.SubscribeInvalidation(b.nc, c, log); err != nil {
		log.Warn("stats invalidation subscribe failed", zap.Error(err))
	}
	return c
}
