package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformconfig "github.com/example/animefan/internal/platform/config"
	"github.com/example/animefan/internal/platform/db"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/store"
)

var (
	databaseURL string
	logLevel    string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "catalogctl",
	Short:         "Catalog maintenance commands",
	Long:          `Run schema migrations, reconciliation sweeps and targeted recounts against the catalog database.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	platformconfig.LoadDotEnv()
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", platformconfig.String("DATABASE_URL", ""), "postgres DSN (defaults to $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", platformconfig.String("LOG_LEVEL", "info"), "log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall command timeout")

	rootCmd.AddCommand(migrateCmd, reconcileCmd, recountGenresCmd, recomputeRatingCmd, repairCmd)
}

// env holds what every maintenance command needs.
type env struct {
	log        *zap.Logger
	pool       *pgxpool.Pool
	store      store.Store
	ratings    *consistency.RatingManager
	counters   *consistency.Counters
	reconciler *consistency.Reconciler
}

func (e *env) Close() {
	e.pool.Close()
	_ = e.log.Sync()
}

// syncRepairs runs requested repairs immediately; a CLI has no queue.
type syncRepairs struct {
	rec *consistency.Reconciler
	log *zap.Logger
}

func (s *syncRepairs) RequestRepair(ctx context.Context, kind consistency.Kind, id string) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.Repair(ctx, kind, id); err != nil {
		s.log.Warn("repair failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
}

func open(ctx context.Context, migrate bool) (*env, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}
	log, err := logging.New(logging.Options{Service: "catalogctl", Level: logLevel, Console: true})
	if err != nil {
		return nil, err
	}
	pool, err := db.OpenDSN(ctx, databaseURL, db.PoolOptions{MaxConns: 4, Application: "catalogctl"})
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	st := store.NewPostgres(pool).Store()
	repairs := &syncRepairs{log: log}
	counters := consistency.NewCounters(st, repairs, log)
	ratings := consistency.NewRatingManager(st, consistency.RatingOptions{}, log)
	rec := consistency.NewReconciler(st, ratings, counters, consistency.ReconcileOptions{
		EntitiesPerSecond: platformconfig.Float("RECONCILE_RPS", 200),
		BatchSize:         platformconfig.Int("RECONCILE_BATCH", 200),
	}, log)
	repairs.rec = rec
	return &env{log: log, pool: pool, store: st, ratings: ratings, counters: counters, reconciler: rec}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
