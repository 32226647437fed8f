package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/animefan/services/catalog/internal/domain"
)

var relationFields = []string{
	"id::text", "user_id", "anime_id::text", "status", "user_rating::int", "episodes_watched", "total_episodes",
	"favorite", "notes", "anime_title", "anime_poster_url", "anime_rating", "added_at", "updated_at",
	"started_at", "completed_at",
}

// relationColumns qualifies every relation column with alias.
func relationColumns(alias string) string {
	if alias == "" {
		return strings.Join(relationFields, ", ")
	}
	cols := make([]string, len(relationFields))
	for i, f := range relationFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

func relationDest(r *domain.Relation, status *string) []any {
	return []any{&r.ID, &r.UserID, &r.AnimeID, status, &r.UserRating, &r.EpisodesWatched, &r.TotalEpisodes,
		&r.Favorite, &r.Notes, &r.AnimeTitle, &r.AnimePosterURL, &r.AnimeRating, &r.AddedAt, &r.UpdatedAt,
		&r.StartedAt, &r.CompletedAt}
}

func scanRelation(row scanner) (domain.Relation, error) {
	var (
		r      domain.Relation
		status string
	)
	if err := row.Scan(relationDest(&r, &status)...); err != nil {
		return domain.Relation{}, err
	}
	r.Status = domain.WatchStatus(status)
	return r, nil
}

func collectRelations(rows pgx.Rows, op string) ([]domain.Relation, error) {
	defer rows.Close()
	out := []domain.Relation{}
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		out = append(out, r)
	}
	return out, translate(rows.Err(), op)
}

func (p *Postgres) CreateRelation(ctx context.Context, r *domain.Relation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.AddedAt.IsZero() {
		r.AddedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.AddedAt
	_, err := p.db.Exec(ctx, `
INSERT INTO user_anime_relations (id, user_id, anime_id, status, user_rating, episodes_watched, total_episodes, favorite,
                                  notes, anime_title, anime_poster_url, anime_rating, added_at, updated_at, started_at, completed_at)
VALUES ($1::uuid, $2, $3::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13, $14, $15)`,
		r.ID, r.UserID, r.AnimeID, string(r.Status), r.UserRating, r.EpisodesWatched, r.TotalEpisodes, r.Favorite,
		r.Notes, r.AnimeTitle, r.AnimePosterURL, r.AnimeRating, r.AddedAt, r.StartedAt, r.CompletedAt)
	return translate(err, "create relation")
}

func (p *Postgres) GetRelation(ctx context.Context, id string) (domain.Relation, error) {
	r, err := scanRelation(p.db.QueryRow(ctx, `SELECT `+relationColumns("")+` FROM user_anime_relations WHERE id = $1::uuid`, id))
	return r, translate(err, "get relation")
}

func (p *Postgres) FindRelation(ctx context.Context, userID, animeID string) (domain.Relation, error) {
	r, err := scanRelation(p.db.QueryRow(ctx,
		`SELECT `+relationColumns("")+` FROM user_anime_relations WHERE user_id = $1 AND anime_id = $2::uuid`, userID, animeID))
	return r, translate(err, "find relation")
}

// ApplyRelationChange locks the row inside the statement so prev is exactly
// the version the update replaced.
func (p *Postgres) ApplyRelationChange(ctx context.Context, id string, ch RelationChange) (domain.Relation, domain.Relation, error) {
	at := ch.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var status *string
	if ch.Status != nil {
		s := string(*ch.Status)
		status = &s
	}
	row := p.db.QueryRow(ctx, `
WITH prev AS (
    SELECT * FROM user_anime_relations WHERE id = $1::uuid FOR UPDATE
)
UPDATE user_anime_relations r
SET status           = COALESCE($2::text, r.status),
    user_rating      = COALESCE($3::int, r.user_rating),
    episodes_watched = COALESCE($4::int, r.episodes_watched),
    notes            = COALESCE($5::text, r.notes),
    favorite         = CASE WHEN $6::boolean THEN NOT r.favorite ELSE COALESCE($7::boolean, r.favorite) END,
    started_at       = CASE WHEN $8::boolean THEN COALESCE(r.started_at, $10::timestamptz) ELSE r.started_at END,
    completed_at     = CASE WHEN $9::boolean THEN COALESCE(r.completed_at, $10::timestamptz) ELSE r.completed_at END,
    updated_at       = $10::timestamptz
FROM prev
WHERE r.id = prev.id
RETURNING `+relationColumns("prev")+`, `+relationColumns("r"),
		id, status, ch.UserRating, ch.EpisodesWatched, ch.Notes, ch.ToggleFavorite, ch.Favorite,
		ch.MarkStarted, ch.MarkCompleted, at)

	var (
		prev, cur             domain.Relation
		prevStatus, curStatus string
	)
	dest := append(relationDest(&prev, &prevStatus), relationDest(&cur, &curStatus)...)
	if err := row.Scan(dest...); err != nil {
		return domain.Relation{}, domain.Relation{}, translate(err, "apply relation change")
	}
	prev.Status, cur.Status = domain.WatchStatus(prevStatus), domain.WatchStatus(curStatus)
	return prev, cur, nil
}

func (p *Postgres) DeleteRelation(ctx context.Context, id string) (domain.Relation, error) {
	r, err := scanRelation(p.db.QueryRow(ctx,
		`DELETE FROM user_anime_relations WHERE id = $1::uuid RETURNING `+relationColumns(""), id))
	return r, translate(err, "delete relation")
}

func (p *Postgres) ListRelationsByUser(ctx context.Context, userID string, f RelationFilter, offset, limit int) ([]domain.Relation, int64, error) {
	args := sqlArgs{userID}
	where := "user_id = $1"
	if f.Status != "" {
		where += " AND status = " + args.add(string(f.Status))
	}
	if f.FavoritesOnly {
		where += " AND favorite"
	}
	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM user_anime_relations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, "count user relations")
	}
	order := "updated_at DESC, id"
	if f.FavoritesOnly {
		order = "added_at DESC, id"
	}
	lim, off := args.add(clampLimit(limit)), args.add(max(0, offset))
	rows, err := p.db.Query(ctx, `SELECT `+relationColumns("")+` FROM user_anime_relations WHERE `+where+
		` ORDER BY `+order+` LIMIT `+lim+` OFFSET `+off, args...)
	if err != nil {
		return nil, 0, translate(err, "list user relations")
	}
	items, err := collectRelations(rows, "list user relations")
	return items, total, err
}

func (p *Postgres) ListRelationsByAnime(ctx context.Context, animeID string) ([]domain.Relation, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+relationColumns("")+` FROM user_anime_relations WHERE anime_id = $1::uuid ORDER BY id`, animeID)
	if err != nil {
		return nil, translate(err, "list anime relations")
	}
	return collectRelations(rows, "list anime relations")
}

func (p *Postgres) CountRelationsByStatus(ctx context.Context, userID string, status domain.WatchStatus) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM user_anime_relations WHERE user_id = $1 AND status = $2`, userID, string(status))
}

func (p *Postgres) CountUserFavorites(ctx context.Context, userID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM user_anime_relations WHERE user_id = $1 AND favorite`, userID)
}

func (p *Postgres) CountUserCompletions(ctx context.Context, userID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM user_anime_relations WHERE user_id = $1 AND completed_at IS NOT NULL`, userID)
}

func (p *Postgres) CountRelationsByAnime(ctx context.Context, animeID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM user_anime_relations WHERE anime_id = $1::uuid`, animeID)
}

func (p *Postgres) CountAnimeFavorites(ctx context.Context, animeID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM user_anime_relations WHERE anime_id = $1::uuid AND favorite`, animeID)
}

func (p *Postgres) UserGenrePreferences(ctx context.Context, userID string, limit int) ([]domain.GenrePreference, error) {
	rows, err := p.db.Query(ctx, `
SELECT g, count(*)
FROM user_anime_relations r
JOIN anime a ON a.id = r.anime_id
CROSS JOIN LATERAL unnest(a.genres) AS g
WHERE r.user_id = $1
GROUP BY g
ORDER BY count(*) DESC, g
LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "genre preferences")
	}
	defer rows.Close()
	out := []domain.GenrePreference{}
	for rows.Next() {
		var gp domain.GenrePreference
		if err := rows.Scan(&gp.Genre, &gp.Count); err != nil {
			return nil, translate(err, "genre preferences")
		}
		out = append(out, gp)
	}
	return out, translate(rows.Err(), "genre preferences")
}
