package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/animefan/services/catalog/internal/domain"
)

const reviewColumns = `id::text, user_id, anime_id::text, rating, title, content, spoiler, helpful_count, unhelpful_count,
username, user_avatar_url, anime_title, created_at, updated_at`

func scanReview(row scanner) (domain.Review, error) {
	var r domain.Review
	err := row.Scan(&r.ID, &r.UserID, &r.AnimeID, &r.Rating, &r.Title, &r.Content, &r.Spoiler, &r.HelpfulCount, &r.UnhelpfulCount,
		&r.Username, &r.UserAvatarURL, &r.AnimeTitle, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func collectReviews(rows pgx.Rows, op string) ([]domain.Review, error) {
	defer rows.Close()
	out := []domain.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		out = append(out, r)
	}
	return out, translate(rows.Err(), op)
}

func (p *Postgres) CreateReview(ctx context.Context, r *domain.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := p.db.QueryRow(ctx, `
INSERT INTO reviews (id, user_id, anime_id, rating, title, content, spoiler, username, user_avatar_url, anime_title)
VALUES ($1::uuid, $2, $3::uuid, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at, updated_at`,
		r.ID, r.UserID, r.AnimeID, r.Rating, r.Title, r.Content, r.Spoiler, r.Username, r.UserAvatarURL, r.AnimeTitle,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return translate(err, "create review")
}

func (p *Postgres) GetReview(ctx context.Context, id string) (domain.Review, error) {
	r, err := scanReview(p.db.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1::uuid`, id))
	return r, translate(err, "get review")
}

func (p *Postgres) FindReview(ctx context.Context, userID, animeID string) (domain.Review, error) {
	r, err := scanReview(p.db.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE user_id = $1 AND anime_id = $2::uuid`, userID, animeID))
	return r, translate(err, "find review")
}

func (p *Postgres) UpdateReview(ctx context.Context, id string, edit ReviewEdit) (domain.Review, error) {
	r, err := scanReview(p.db.QueryRow(ctx, `
UPDATE reviews SET rating = $2, title = $3, content = $4, spoiler = $5, updated_at = now()
WHERE id = $1::uuid
RETURNING `+reviewColumns, id, edit.Rating, edit.Title, edit.Content, edit.Spoiler))
	return r, translate(err, "update review")
}

func (p *Postgres) DeleteReview(ctx context.Context, id string) (domain.Review, error) {
	r, err := scanReview(p.db.QueryRow(ctx, `DELETE FROM reviews WHERE id = $1::uuid RETURNING `+reviewColumns, id))
	return r, translate(err, "delete review")
}

func (p *Postgres) listReviews(ctx context.Context, where, order string, key any, offset, limit int, op string) ([]domain.Review, int64, error) {
	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM reviews WHERE `+where, key).Scan(&total); err != nil {
		return nil, 0, translate(err, op)
	}
	rows, err := p.db.Query(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE `+where+
		` ORDER BY `+order+` LIMIT $2 OFFSET $3`, key, clampLimit(limit), max(0, offset))
	if err != nil {
		return nil, 0, translate(err, op)
	}
	items, err := collectReviews(rows, op)
	return items, total, err
}

func (p *Postgres) ListReviewsByAnime(ctx context.Context, animeID string, order ReviewOrder, offset, limit int) ([]domain.Review, int64, error) {
	sortBy := "created_at DESC, id"
	if order == ReviewsMostHelpful {
		sortBy = "helpful_count DESC, created_at DESC, id"
	}
	return p.listReviews(ctx, "anime_id = $1::uuid", sortBy, animeID, offset, limit, "list reviews by anime")
}

func (p *Postgres) ListReviewsByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Review, int64, error) {
	return p.listReviews(ctx, "user_id = $1", "created_at DESC, id", userID, offset, limit, "list reviews by user")
}

func (p *Postgres) IncrementHelpful(ctx context.Context, id string, helpful bool) error {
	q := `UPDATE reviews SET unhelpful_count = unhelpful_count + 1 WHERE id = $1::uuid`
	if helpful {
		q = `UPDATE reviews SET helpful_count = helpful_count + 1 WHERE id = $1::uuid`
	}
	tag, err := p.db.Exec(ctx, q, id)
	return expectOne(tag, err, "increment helpful")
}

func (p *Postgres) RatingAggregate(ctx context.Context, animeID string) (int64, int64, error) {
	var sum, count int64
	err := p.db.QueryRow(ctx,
		`SELECT COALESCE(sum(rating), 0)::bigint, count(*) FROM reviews WHERE anime_id = $1::uuid`, animeID,
	).Scan(&sum, &count)
	return sum, count, translate(err, "rating aggregate")
}

func (p *Postgres) ReviewRatings(ctx context.Context, animeID string) ([]int, error) {
	rows, err := p.db.Query(ctx, `SELECT rating::int FROM reviews WHERE anime_id = $1::uuid`, animeID)
	if err != nil {
		return nil, translate(err, "review ratings")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int])
	return out, translate(err, "review ratings")
}

func (p *Postgres) RatingHistogram(ctx context.Context, animeID string) ([]domain.RatingBucket, error) {
	rows, err := p.db.Query(ctx, `
SELECT rating::int, count(*) FROM reviews WHERE anime_id = $1::uuid GROUP BY rating ORDER BY rating`, animeID)
	if err != nil {
		return nil, translate(err, "rating histogram")
	}
	defer rows.Close()
	out := []domain.RatingBucket{}
	for rows.Next() {
		var b domain.RatingBucket
		if err := rows.Scan(&b.Rating, &b.Count); err != nil {
			return nil, translate(err, "rating histogram")
		}
		out = append(out, b)
	}
	return out, translate(rows.Err(), "rating histogram")
}

func (p *Postgres) TopReviewers(ctx context.Context, limit int) ([]domain.ReviewerStat, error) {
	rows, err := p.db.Query(ctx, `
SELECT user_id, (array_agg(username ORDER BY created_at DESC))[1], count(*)
FROM reviews
GROUP BY user_id
ORDER BY count(*) DESC, user_id
LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, translate(err, "top reviewers")
	}
	defer rows.Close()
	out := []domain.ReviewerStat{}
	for rows.Next() {
		var s domain.ReviewerStat
		if err := rows.Scan(&s.UserID, &s.Username, &s.ReviewCount); err != nil {
			return nil, translate(err, "top reviewers")
		}
		out = append(out, s)
	}
	return out, translate(rows.Err(), "top reviewers")
}

func (p *Postgres) count(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	err := p.db.QueryRow(ctx, q, args...).Scan(&n)
	return n, translate(err, "count")
}

func (p *Postgres) CountReviews(ctx context.Context) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM reviews`)
}

func (p *Postgres) CountReviewsByAnime(ctx context.Context, animeID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM reviews WHERE anime_id = $1::uuid`, animeID)
}

func (p *Postgres) CountReviewsByUser(ctx context.Context, userID string) (int64, error) {
	return p.count(ctx, `SELECT count(*) FROM reviews WHERE user_id = $1`, userID)
}
