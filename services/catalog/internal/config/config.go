// Package config reads the catalog service settings from the environment.
package config

import (
	"errors"
	"strings"
	"time"

	platformconfig "github.com/example/animefan/internal/platform/config"
)

type Config struct {
	App platformconfig.AppConfig

	// LogConsole selects the console encoder outside production.
	LogConsole bool

	DatabaseURL string
	DBMaxConns  int
	RedisURL    string
	NATSURL     string
	JWTSecret   string
	JWTIssuer   string

	StatsCacheTTL      time.Duration
	TopAnimeMinRatings int

	ReconcileEvery time.Duration
	ReconcileRPS   float64
	ReconcileBatch int

	AggBreakerFailures int
	AggBreakerTimeout  time.Duration
}

// Load reads the environment after an optional .env. SERVICE_NAME defaults
// to "catalog". Production requires a database and a JWT secret.
func Load() (Config, error) {
	platformconfig.LoadDotEnv()
	app := platformconfig.AppConfig{
		ServiceName: platformconfig.String("SERVICE_NAME", "catalog"),
		Env:         platformconfig.String("APP_ENV", "development"),
		LogLevel:    platformconfig.String("LOG_LEVEL", "info"),
		HTTP:        platformconfig.HTTPConfig{Addr: platformconfig.String("HTTP_ADDR", ":8080")},
	}
	cfg := Config{
		App:                app,
		LogConsole:         strings.EqualFold(platformconfig.String("LOG_FORMAT", "json"), "console"),
		DatabaseURL:        platformconfig.String("DATABASE_URL", ""),
		DBMaxConns:         platformconfig.Int("DB_MAX_CONNS", 10),
		RedisURL:           platformconfig.String("REDIS_URL", ""),
		NATSURL:            platformconfig.String("NATS_URL", ""),
		JWTSecret:          platformconfig.String("JWT_SECRET", ""),
		JWTIssuer:          platformconfig.String("JWT_ISSUER", ""),
		StatsCacheTTL:      platformconfig.Duration("STATS_CACHE_TTL", 5*time.Minute),
		TopAnimeMinRatings: platformconfig.Int("TOP_ANIME_MIN_RATINGS", 10),
		ReconcileEvery:     platformconfig.Duration("RECONCILE_EVERY", time.Hour),
		ReconcileRPS:       platformconfig.Float("RECONCILE_RPS", 200),
		ReconcileBatch:     platformconfig.Int("RECONCILE_BATCH", 200),
		AggBreakerFailures: platformconfig.Int("AGG_CB_FAILURES", 5),
		AggBreakerTimeout:  platformconfig.Duration("AGG_CB_TIMEOUT", 30*time.Second),
	}
	if app.IsProduction() {
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			return Config{}, errors.New("JWT_SECRET is required in production")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	return cfg, nil
}
