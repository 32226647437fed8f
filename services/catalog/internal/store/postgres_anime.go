package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/animefan/services/catalog/internal/domain"
)

const animeColumns = `id::text, title, title_english, title_japanese, description, poster_url, banner_url, trailer_url,
genres, release_year, status, type, episode_count, COALESCE(studio_id::text, ''), studio_name,
rating, rating_count, view_count, favorite_count, episodes, related, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnime(row scanner) (domain.Anime, error) {
	var (
		a                 domain.Anime
		status, typ       string
		episodes, related []byte
	)
	if err := row.Scan(&a.ID, &a.Title, &a.TitleEnglish, &a.TitleJapanese, &a.Description, &a.PosterURL, &a.BannerURL, &a.TrailerURL,
		&a.Genres, &a.ReleaseYear, &status, &typ, &a.EpisodeCount, &a.StudioID, &a.StudioName,
		&a.Rating, &a.RatingCount, &a.ViewCount, &a.FavoriteCount, &episodes, &related, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Anime{}, err
	}
	a.Status, a.Type = domain.AnimeStatus(status), domain.AnimeType(typ)
	if err := json.Unmarshal(episodes, &a.Episodes); err != nil {
		return domain.Anime{}, fmt.Errorf("decode episodes: %w", err)
	}
	if err := json.Unmarshal(related, &a.Related); err != nil {
		return domain.Anime{}, fmt.Errorf("decode related: %w", err)
	}
	if a.Genres == nil {
		a.Genres = []string{}
	}
	return a, nil
}

func collectAnime(rows pgx.Rows, op string) ([]domain.Anime, error) {
	defer rows.Close()
	out := []domain.Anime{}
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		out = append(out, a)
	}
	return out, translate(rows.Err(), op)
}

func jsonArray[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func (p *Postgres) CreateAnime(ctx context.Context, a *domain.Anime) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Genres == nil {
		a.Genres = []string{}
	}
	episodes, err := jsonArray(a.Episodes)
	if err != nil {
		return err
	}
	related, err := jsonArray(a.Related)
	if err != nil {
		return err
	}
	err = p.db.QueryRow(ctx, `
INSERT INTO anime (id, title, title_english, title_japanese, description, poster_url, banner_url, trailer_url,
                   genres, release_year, status, type, episode_count, studio_id, studio_name, episodes, related)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, '')::uuid, $15, $16::jsonb, $17::jsonb)
RETURNING created_at, updated_at`,
		a.ID, a.Title, a.TitleEnglish, a.TitleJapanese, a.Description, a.PosterURL, a.BannerURL, a.TrailerURL,
		a.Genres, a.ReleaseYear, string(a.Status), string(a.Type), a.EpisodeCount, a.StudioID, a.StudioName, episodes, related,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err, "create anime")
}

func (p *Postgres) GetAnime(ctx context.Context, id string) (domain.Anime, error) {
	a, err := scanAnime(p.db.QueryRow(ctx, `SELECT `+animeColumns+` FROM anime WHERE id = $1::uuid`, id))
	if err != nil {
		return domain.Anime{}, translate(err, "get anime")
	}
	return a, nil
}

func (p *Postgres) GetAnimeByIDs(ctx context.Context, ids []string) ([]domain.Anime, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []domain.Anime{}, nil
	}
	rows, err := p.db.Query(ctx, `
SELECT `+animeColumns+`
FROM anime JOIN unnest($1::uuid[]) WITH ORDINALITY AS want(id, ord) USING (id)
ORDER BY want.ord`, valid)
	if err != nil {
		return nil, translate(err, "get anime by ids")
	}
	return collectAnime(rows, "get anime by ids")
}

func (p *Postgres) UpdateAnime(ctx context.Context, a domain.Anime) (domain.Anime, error) {
	if a.Genres == nil {
		a.Genres = []string{}
	}
	out, err := scanAnime(p.db.QueryRow(ctx, `
UPDATE anime
SET title = $2, title_english = $3, title_japanese = $4, description = $5, poster_url = $6, banner_url = $7,
    trailer_url = $8, genres = $9, release_year = $10, status = $11, type = $12, episode_count = $13,
    studio_id = NULLIF($14, '')::uuid, studio_name = $15, updated_at = now()
WHERE id = $1::uuid
RETURNING `+animeColumns,
		a.ID, a.Title, a.TitleEnglish, a.TitleJapanese, a.Description, a.PosterURL, a.BannerURL,
		a.TrailerURL, a.Genres, a.ReleaseYear, string(a.Status), string(a.Type), a.EpisodeCount,
		a.StudioID, a.StudioName))
	if err != nil {
		return domain.Anime{}, translate(err, "update anime")
	}
	return out, nil
}

func (p *Postgres) DeleteAnime(ctx context.Context, id string) (domain.Anime, error) {
	a, err := scanAnime(p.db.QueryRow(ctx, `DELETE FROM anime WHERE id = $1::uuid RETURNING `+animeColumns, id))
	if err != nil {
		return domain.Anime{}, translate(err, "delete anime")
	}
	return a, nil
}

type sqlArgs []any

func (s *sqlArgs) add(v any) string {
	*s = append(*s, v)
	return fmt.Sprintf("$%d", len(*s))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

// renderPredicates turns the closed predicate set into a SQL conjunction.
func renderPredicates(preds []Predicate, args *sqlArgs) string {
	clauses := make([]string, 0, len(preds))
	for _, pred := range preds {
		switch p := pred.(type) {
		case TextContains:
			ph := args.add(containsPattern(p.Text))
			clauses = append(clauses, fmt.Sprintf(
				"(title ILIKE %[1]s OR description ILIKE %[1]s OR title_english ILIKE %[1]s OR title_japanese ILIKE %[1]s)", ph))
		case GenresAny:
			clauses = append(clauses, "genres && "+args.add(p.Genres)+"::text[]")
		case YearRange:
			if p.From != nil {
				clauses = append(clauses, "release_year >= "+args.add(*p.From))
			}
			if p.To != nil {
				clauses = append(clauses, "release_year <= "+args.add(*p.To))
			}
		case RatingRange:
			if p.Min != nil {
				clauses = append(clauses, "rating >= "+args.add(*p.Min))
			}
			if p.Max != nil {
				clauses = append(clauses, "rating <= "+args.add(*p.Max))
			}
		case StatusIs:
			clauses = append(clauses, "status = "+args.add(string(p.Status)))
		case TypeIs:
			clauses = append(clauses, "type = "+args.add(string(p.Type)))
		case StudioIs:
			if _, err := uuid.Parse(p.StudioID); err != nil {
				clauses = append(clauses, "FALSE")
				continue
			}
			clauses = append(clauses, "studio_id = "+args.add(p.StudioID)+"::uuid")
		default:
			clauses = append(clauses, "FALSE")
		}
	}
	if len(clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(clauses, " AND ")
}

func orderBy(s Sort) string {
	dir := "DESC"
	if s.Asc {
		dir = "ASC"
	}
	return s.Field.Column() + " " + dir + ", id ASC"
}

func (p *Postgres) FindAnime(ctx context.Context, q AnimeQuery) ([]domain.Anime, int64, error) {
	var args sqlArgs
	where := renderPredicates(q.Predicates, &args)

	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM anime WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, "count anime")
	}
	limit := args.add(clampLimit(q.Limit))
	offset := args.add(max(0, q.Offset))
	rows, err := p.db.Query(ctx, `SELECT `+animeColumns+` FROM anime WHERE `+where+
		` ORDER BY `+orderBy(q.Sort)+` LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, translate(err, "find anime")
	}
	items, err := collectAnime(rows, "find anime")
	return items, total, err
}

// anyTermQuery ORs the terms of free text into a tsquery.
const anyTermQuery = `to_tsquery('simple', replace(plainto_tsquery('simple', $1)::text, ' & ', ' | '))`

func (p *Postgres) TextSearch(ctx context.Context, text string, offset, limit int) ([]domain.Anime, int64, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.Anime{}, 0, nil
	}
	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM anime WHERE search_vector @@ `+anyTermQuery, text).Scan(&total); err != nil {
		return nil, 0, translate(err, "text search count")
	}
	rows, err := p.db.Query(ctx, `
SELECT `+animeColumns+`
FROM anime, `+anyTermQuery+` AS q
WHERE search_vector @@ q
ORDER BY ts_rank(search_vector, q) DESC, id
LIMIT $2 OFFSET $3`, text, clampLimit(limit), max(0, offset))
	if err != nil {
		return nil, 0, translate(err, "text search")
	}
	items, err := collectAnime(rows, "text search")
	return items, total, err
}

func (p *Postgres) TitleContains(ctx context.Context, text string, limit int) ([]domain.Anime, error) {
	rows, err := p.db.Query(ctx, `SELECT `+animeColumns+` FROM anime WHERE title ILIKE $1 ORDER BY title LIMIT $2`,
		containsPattern(text), clampLimit(limit))
	if err != nil {
		return nil, translate(err, "title search")
	}
	return collectAnime(rows, "title search")
}

func (p *Postgres) TopRated(ctx context.Context, minRatings, limit int) ([]domain.Anime, error) {
	rows, err := p.db.Query(ctx, `
SELECT `+animeColumns+` FROM anime
WHERE rating_count >= $1
ORDER BY rating DESC, rating_count DESC, id
LIMIT $2`, minRatings, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "top rated")
	}
	return collectAnime(rows, "top rated")
}

func (p *Postgres) GenreAggregates(ctx context.Context) ([]domain.GenreStat, error) {
	rows, err := p.db.Query(ctx, `
SELECT g, count(*), COALESCE(avg(rating), 0), COALESCE(sum(view_count), 0)::bigint, COALESCE(sum(favorite_count), 0)::bigint
FROM anime CROSS JOIN LATERAL unnest(genres) AS g
GROUP BY g
ORDER BY count(*) DESC, g`)
	if err != nil {
		return nil, translate(err, "genre aggregates")
	}
	defer rows.Close()
	out := []domain.GenreStat{}
	for rows.Next() {
		var st domain.GenreStat
		if err := rows.Scan(&st.Genre, &st.AnimeCount, &st.AverageRating, &st.TotalViews, &st.TotalFavorites); err != nil {
			return nil, translate(err, "genre aggregates")
		}
		out = append(out, st)
	}
	return out, translate(rows.Err(), "genre aggregates")
}

func (p *Postgres) CountAnime(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM anime`).Scan(&n)
	return n, translate(err, "count anime")
}

func (p *Postgres) genreCounts(ctx context.Context, filter []string) (map[string]int64, error) {
	q := `SELECT g, count(DISTINCT id) FROM anime CROSS JOIN LATERAL unnest(genres) AS g`
	var args []any
	if filter != nil {
		q += ` WHERE g = ANY($1::text[])`
		args = append(args, filter)
	}
	rows, err := p.db.Query(ctx, q+` GROUP BY g`, args...)
	if err != nil {
		return nil, translate(err, "genre counts")
	}
	defer rows.Close()
	out := make(map[string]int64)
	for _, name := range filter {
		out[name] = 0
	}
	for rows.Next() {
		var (
			g string
			n int64
		)
		if err := rows.Scan(&g, &n); err != nil {
			return nil, translate(err, "genre counts")
		}
		out[g] = n
	}
	return out, translate(rows.Err(), "genre counts")
}

func (p *Postgres) CountAnimeWithGenres(ctx context.Context, names []string) (map[string]int64, error) {
	if names == nil {
		names = []string{}
	}
	return p.genreCounts(ctx, names)
}

func (p *Postgres) AllGenreCounts(ctx context.Context) (map[string]int64, error) {
	return p.genreCounts(ctx, nil)
}

func (p *Postgres) AnimeIDsByStudio(ctx context.Context, studioID string) ([]string, error) {
	if _, err := uuid.Parse(studioID); err != nil {
		return []string{}, nil
	}
	rows, err := p.db.Query(ctx, `SELECT id::text FROM anime WHERE studio_id = $1::uuid ORDER BY id`, studioID)
	if err != nil {
		return nil, translate(err, "anime by studio")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, translate(err, "anime by studio")
}

func (p *Postgres) ListAnimeRefs(ctx context.Context, afterID string, limit int) ([]AnimeRef, error) {
	rows, err := p.db.Query(ctx, `
SELECT id::text, COALESCE(studio_id::text, ''), genres, favorite_count
FROM anime
WHERE id::text > $1 COLLATE "C"
ORDER BY id
LIMIT $2`, afterID, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "list anime refs")
	}
	defer rows.Close()
	out := []AnimeRef{}
	for rows.Next() {
		var r AnimeRef
		if err := rows.Scan(&r.ID, &r.StudioID, &r.Genres, &r.FavoriteCount); err != nil {
			return nil, translate(err, "list anime refs")
		}
		out = append(out, r)
	}
	return out, translate(rows.Err(), "list anime refs")
}

func (p *Postgres) SetRating(ctx context.Context, id string, rating float64, count int) error {
	tag, err := p.db.Exec(ctx, `UPDATE anime SET rating = $2, rating_count = $3 WHERE id = $1::uuid`, id, rating, count)
	return expectOne(tag, err, "set rating")
}

func (p *Postgres) IncrementViewCount(ctx context.Context, id string, delta int64) error {
	tag, err := p.db.Exec(ctx, `UPDATE anime SET view_count = GREATEST(0, view_count + $2) WHERE id = $1::uuid`, id, delta)
	return expectOne(tag, err, "increment view count")
}

func (p *Postgres) IncrementFavoriteCount(ctx context.Context, id string, delta int64) error {
	tag, err := p.db.Exec(ctx, `UPDATE anime SET favorite_count = GREATEST(0, favorite_count + $2) WHERE id = $1::uuid`, id, delta)
	return expectOne(tag, err, "increment favorite count")
}

func (p *Postgres) SetFavoriteCount(ctx context.Context, id string, n int64) error {
	tag, err := p.db.Exec(ctx, `UPDATE anime SET favorite_count = $2 WHERE id = $1::uuid`, id, n)
	return expectOne(tag, err, "set favorite count")
}

// animeExists distinguishes "no such anime" from "guard failed" after a
// conditional update touched no rows.
func (p *Postgres) animeExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM anime WHERE id = $1::uuid)`, id).Scan(&ok)
	return ok, translate(err, "anime exists")
}

func (p *Postgres) PushEpisode(ctx context.Context, animeID string, ep domain.Episode) error {
	b, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `
UPDATE anime
SET episodes = episodes || jsonb_build_array($2::jsonb), episode_count = episode_count + 1, updated_at = now()
WHERE id = $1::uuid
  AND NOT EXISTS (SELECT 1 FROM jsonb_array_elements(episodes) e WHERE (e->>'number')::int = $3)`,
		animeID, string(b), ep.Number)
	if err != nil {
		return translate(err, "push episode")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := p.animeExists(ctx, animeID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("anime", animeID)
	}
	return conflict("episode %d of anime %q", ep.Number, animeID)
}

func (p *Postgres) ReplaceEpisode(ctx context.Context, animeID string, ep domain.Episode) error {
	b, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `
UPDATE anime
SET episodes = (
        SELECT jsonb_agg(CASE WHEN (t.e->>'number')::int = $2 THEN $3::jsonb ELSE t.e END ORDER BY t.ord)
        FROM jsonb_array_elements(episodes) WITH ORDINALITY AS t(e, ord)
    ),
    updated_at = now()
WHERE id = $1::uuid
  AND EXISTS (SELECT 1 FROM jsonb_array_elements(episodes) e WHERE (e->>'number')::int = $2)`,
		animeID, ep.Number, string(b))
	return expectOne(tag, err, "replace episode")
}

func (p *Postgres) PullEpisode(ctx context.Context, animeID string, number int) error {
	tag, err := p.db.Exec(ctx, `
UPDATE anime
SET episodes = COALESCE((
        SELECT jsonb_agg(t.e ORDER BY t.ord)
        FROM jsonb_array_elements(episodes) WITH ORDINALITY AS t(e, ord)
        WHERE (t.e->>'number')::int <> $2
    ), '[]'::jsonb),
    episode_count = GREATEST(0, episode_count - 1),
    updated_at = now()
WHERE id = $1::uuid
  AND EXISTS (SELECT 1 FROM jsonb_array_elements(episodes) e WHERE (e->>'number')::int = $2)`,
		animeID, number)
	return expectOne(tag, err, "pull episode")
}

func (p *Postgres) PushRelated(ctx context.Context, animeID string, link domain.RelatedAnime) error {
	b, err := json.Marshal(link)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `
UPDATE anime
SET related = related || jsonb_build_array($2::jsonb), updated_at = now()
WHERE id = $1::uuid
  AND NOT EXISTS (SELECT 1 FROM jsonb_array_elements(related) r WHERE r->>'anime_id' = $3)`,
		animeID, string(b), link.AnimeID)
	if err != nil {
		return translate(err, "push related")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := p.animeExists(ctx, animeID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("anime", animeID)
	}
	return conflict("anime %q already related to %q", animeID, link.AnimeID)
}

func (p *Postgres) PullRelated(ctx context.Context, animeID, relatedID string) error {
	tag, err := p.db.Exec(ctx, `
UPDATE anime
SET related = COALESCE((
        SELECT jsonb_agg(t.r ORDER BY t.ord)
        FROM jsonb_array_elements(related) WITH ORDINALITY AS t(r, ord)
        WHERE t.r->>'anime_id' <> $2
    ), '[]'::jsonb),
    updated_at = now()
WHERE id = $1::uuid
  AND EXISTS (SELECT 1 FROM jsonb_array_elements(related) r WHERE r->>'anime_id' = $2)`,
		animeID, relatedID)
	return expectOne(tag, err, "pull related")
}
