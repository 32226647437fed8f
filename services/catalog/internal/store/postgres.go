package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/animefan/services/catalog/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the production Backend. Each method issues exactly one
// statement; multi-statement transactions are never opened.
type Postgres struct {
	db *pgxpool.Pool
}

var _ Backend = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Store exposes p through every collection slot.
func (p *Postgres) Store() Store { return From(p) }

// Ping reports pool health for readiness probes.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.Ping(ctx) }

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrConflict)
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectOne turns a zero-row command into ErrNotFound.
func expectOne(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return translate(err, op)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
