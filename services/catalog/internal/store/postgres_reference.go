package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/animefan/services/catalog/internal/domain"
)

// ── Studios ────────────────────────────────────────────────────────────────

const studioColumns = `id::text, name, description, country, founded_year, logo_url, website, anime_ids::text[], anime_count, created_at`

func scanStudio(row scanner) (domain.Studio, error) {
	var s domain.Studio
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Country, &s.FoundedYear, &s.LogoURL, &s.Website, &s.AnimeIDs, &s.AnimeCount, &s.CreatedAt)
	if s.AnimeIDs == nil {
		s.AnimeIDs = []string{}
	}
	return s, err
}

func collectStudios(rows pgx.Rows, op string) ([]domain.Studio, error) {
	defer rows.Close()
	out := []domain.Studio{}
	for rows.Next() {
		s, err := scanStudio(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		out = append(out, s)
	}
	return out, translate(rows.Err(), op)
}

func (p *Postgres) CreateStudio(ctx context.Context, s *domain.Studio) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.AnimeIDs == nil {
		s.AnimeIDs = []string{}
	}
	s.AnimeCount = len(s.AnimeIDs)
	err := p.db.QueryRow(ctx, `
INSERT INTO studios (id, name, description, country, founded_year, logo_url, website, anime_ids, anime_count)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8::uuid[], $9)
RETURNING created_at`,
		s.ID, s.Name, s.Description, s.Country, s.FoundedYear, s.LogoURL, s.Website, s.AnimeIDs, s.AnimeCount,
	).Scan(&s.CreatedAt)
	return translate(err, "create studio")
}

func (p *Postgres) GetStudio(ctx context.Context, id string) (domain.Studio, error) {
	s, err := scanStudio(p.db.QueryRow(ctx, `SELECT `+studioColumns+` FROM studios WHERE id = $1::uuid`, id))
	return s, translate(err, "get studio")
}

func (p *Postgres) UpdateStudio(ctx context.Context, s domain.Studio) (domain.Studio, error) {
	out, err := scanStudio(p.db.QueryRow(ctx, `
UPDATE studios SET name = $2, description = $3, country = $4, founded_year = $5, logo_url = $6, website = $7
WHERE id = $1::uuid
RETURNING `+studioColumns, s.ID, s.Name, s.Description, s.Country, s.FoundedYear, s.LogoURL, s.Website))
	return out, translate(err, "update studio")
}

func (p *Postgres) DeleteStudio(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM studios WHERE id = $1::uuid`, id)
	return expectOne(tag, err, "delete studio")
}

func (p *Postgres) ListStudios(ctx context.Context, offset, limit int) ([]domain.Studio, int64, error) {
	total, err := p.CountStudios(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := p.db.Query(ctx, `SELECT `+studioColumns+` FROM studios ORDER BY name, id LIMIT $1 OFFSET $2`,
		clampLimit(limit), max(0, offset))
	if err != nil {
		return nil, 0, translate(err, "list studios")
	}
	items, err := collectStudios(rows, "list studios")
	return items, total, err
}

func (p *Postgres) TopStudios(ctx context.Context, limit int) ([]domain.Studio, error) {
	rows, err := p.db.Query(ctx, `SELECT `+studioColumns+` FROM studios ORDER BY anime_count DESC, name LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "top studios")
	}
	return collectStudios(rows, "top studios")
}

func (p *Postgres) CountStudios(ctx context.Context) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM studios`)
}

func (p *Postgres) ListStudioIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT id::text FROM studios WHERE id::text > $1 COLLATE "C" ORDER BY id LIMIT $2`,
		afterID, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "list studio ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, translate(err, "list studio ids")
}

func (p *Postgres) studioExists(ctx context.Context, id string) error {
	var ok bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM studios WHERE id = $1::uuid)`, id).Scan(&ok); err != nil {
		return translate(err, "studio exists")
	}
	if !ok {
		return notFound("studio", id)
	}
	return nil
}

func (p *Postgres) AddStudioAnime(ctx context.Context, studioID, animeID string) error {
	tag, err := p.db.Exec(ctx, `
UPDATE studios SET anime_ids = array_append(anime_ids, $2::uuid), anime_count = anime_count + 1
WHERE id = $1::uuid AND NOT ($2::uuid = ANY (anime_ids))`, studioID, animeID)
	if err != nil {
		return translate(err, "add studio anime")
	}
	if tag.RowsAffected() == 0 {
		return p.studioExists(ctx, studioID)
	}
	return nil
}

func (p *Postgres) RemoveStudioAnime(ctx context.Context, studioID, animeID string) error {
	tag, err := p.db.Exec(ctx, `
UPDATE studios SET anime_ids = array_remove(anime_ids, $2::uuid), anime_count = anime_count - 1
WHERE id = $1::uuid AND $2::uuid = ANY (anime_ids)`, studioID, animeID)
	if err != nil {
		return translate(err, "remove studio anime")
	}
	if tag.RowsAffected() == 0 {
		return p.studioExists(ctx, studioID)
	}
	return nil
}

func (p *Postgres) SetStudioAnime(ctx context.Context, studioID string, animeIDs []string) (bool, error) {
	if animeIDs == nil {
		animeIDs = []string{}
	}
	tag, err := p.db.Exec(ctx, `
UPDATE studios SET anime_ids = $2::uuid[], anime_count = cardinality($2::uuid[])
WHERE id = $1::uuid
  AND (anime_count <> cardinality($2::uuid[])
       OR cardinality(anime_ids) <> cardinality($2::uuid[])
       OR NOT (anime_ids @> $2::uuid[] AND anime_ids <@ $2::uuid[]))`, studioID, animeIDs)
	if err != nil {
		return false, translate(err, "set studio anime")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, p.studioExists(ctx, studioID)
}

// ── Genres ─────────────────────────────────────────────────────────────────

const genreColumns = `id::text, name, name_ru, description, banner_url, display_order, active, anime_count`

func scanGenre(row scanner) (domain.Genre, error) {
	var g domain.Genre
	err := row.Scan(&g.ID, &g.Name, &g.NameRu, &g.Description, &g.BannerURL, &g.Order, &g.Active, &g.AnimeCount)
	return g, err
}

func (p *Postgres) CreateGenre(ctx context.Context, g *domain.Genre) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	_, err := p.db.Exec(ctx, `
INSERT INTO genres (id, name, name_ru, description, banner_url, display_order, active, anime_count)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.NameRu, g.Description, g.BannerURL, g.Order, g.Active, g.AnimeCount)
	return translate(err, "create genre")
}

func (p *Postgres) GetGenre(ctx context.Context, id string) (domain.Genre, error) {
	g, err := scanGenre(p.db.QueryRow(ctx, `SELECT `+genreColumns+` FROM genres WHERE id = $1::uuid`, id))
	return g, translate(err, "get genre")
}

func (p *Postgres) GetGenreByName(ctx context.Context, name string) (domain.Genre, error) {
	g, err := scanGenre(p.db.QueryRow(ctx, `SELECT `+genreColumns+` FROM genres WHERE name = $1`, name))
	return g, translate(err, "get genre by name")
}

func (p *Postgres) UpdateGenre(ctx context.Context, g domain.Genre) (domain.Genre, error) {
	out, err := scanGenre(p.db.QueryRow(ctx, `
UPDATE genres SET name = $2, name_ru = $3, description = $4, banner_url = $5, display_order = $6, active = $7
WHERE id = $1::uuid
RETURNING `+genreColumns, g.ID, g.Name, g.NameRu, g.Description, g.BannerURL, g.Order, g.Active))
	return out, translate(err, "update genre")
}

func (p *Postgres) DeleteGenre(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM genres WHERE id = $1::uuid`, id)
	return expectOne(tag, err, "delete genre")
}

func (p *Postgres) ListGenres(ctx context.Context, activeOnly bool) ([]domain.Genre, error) {
	rows, err := p.db.Query(ctx, `SELECT `+genreColumns+` FROM genres WHERE active OR NOT $1 ORDER BY display_order, name`, activeOnly)
	if err != nil {
		return nil, translate(err, "list genres")
	}
	defer rows.Close()
	out := []domain.Genre{}
	for rows.Next() {
		g, err := scanGenre(rows)
		if err != nil {
			return nil, translate(err, "list genres")
		}
		out = append(out, g)
	}
	return out, translate(rows.Err(), "list genres")
}

func (p *Postgres) MaxGenreOrder(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT COALESCE(max(display_order), 0) FROM genres`).Scan(&n)
	return n, translate(err, "max genre order")
}

func (p *Postgres) SetGenreAnimeCount(ctx context.Context, name string, n int64) (bool, error) {
	tag, err := p.db.Exec(ctx, `UPDATE genres SET anime_count = $2 WHERE name = $1 AND anime_count <> $2`, name, n)
	if err != nil {
		return false, translate(err, "set genre count")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := p.GetGenreByName(ctx, name); err != nil {
		return false, err
	}
	return false, nil
}

// ── Users ──────────────────────────────────────────────────────────────────

func userCounterColumn(c domain.UserCounter) (string, error) {
	switch c {
	case domain.CounterWatched:
		return "watched_count", nil
	case domain.CounterFavorites:
		return "favorite_count", nil
	case domain.CounterReviews:
		return "review_count", nil
	}
	return "", fmt.Errorf("user counter %d: %w", c, domain.ErrInvalid)
}

func (p *Postgres) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO users (id, username, avatar_url) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url`,
		u.ID, u.Username, u.AvatarURL)
	return translate(err, "upsert user")
}

func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := p.db.QueryRow(ctx, `
SELECT id, username, avatar_url, watched_count, favorite_count, review_count, created_at
FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Username, &u.AvatarURL, &u.WatchedCount, &u.FavoriteCount, &u.ReviewCount, &u.CreatedAt)
	return u, translate(err, "get user")
}

func (p *Postgres) CountUsers(ctx context.Context) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM users`)
}

func (p *Postgres) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := p.db.Query(ctx, `
SELECT id FROM (
    SELECT id FROM users
    UNION SELECT user_id FROM user_anime_relations
    UNION SELECT user_id FROM reviews
) u
WHERE id > $1 COLLATE "C"
ORDER BY id COLLATE "C"
LIMIT $2`, afterID, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "list user ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, translate(err, "list user ids")
}

// IncrementUserCounter upserts so a user's first activity creates the row.
func (p *Postgres) IncrementUserCounter(ctx context.Context, id string, c domain.UserCounter, delta int) error {
	col, err := userCounterColumn(c)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
INSERT INTO users (id, `+col+`) VALUES ($1, GREATEST(0, $2::int))
ON CONFLICT (id) DO UPDATE SET `+col+` = GREATEST(0, users.`+col+` + $2::int)`, id, delta)
	return translate(err, "increment user counter")
}

func (p *Postgres) userExists(ctx context.Context, id string) error {
	var ok bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok); err != nil {
		return translate(err, "user exists")
	}
	if !ok {
		return notFound("user", id)
	}
	return nil
}

func (p *Postgres) SetUserCounter(ctx context.Context, id string, c domain.UserCounter, n int64) (bool, error) {
	col, err := userCounterColumn(c)
	if err != nil {
		return false, err
	}
	tag, err := p.db.Exec(ctx, `UPDATE users SET `+col+` = $2 WHERE id = $1 AND `+col+` <> $2`, id, n)
	if err != nil {
		return false, translate(err, "set user counter")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, p.userExists(ctx, id)
}

func (p *Postgres) RaiseWatchedCount(ctx context.Context, id string, n int64) (bool, error) {
	tag, err := p.db.Exec(ctx, `UPDATE users SET watched_count = $2 WHERE id = $1 AND watched_count < $2`, id, n)
	if err != nil {
		return false, translate(err, "raise watched count")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, p.userExists(ctx, id)
}
