// Package handlers is the catalog's HTTP surface: thin chi handlers over the
// core services, mapping domain errors to statuses.
package handlers

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/internal/platform/logging"
	"github.com/example/animefan/internal/platform/run"
	"github.com/example/animefan/services/catalog/internal/anime"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/query"
	"github.com/example/animefan/services/catalog/internal/reference"
	"github.com/example/animefan/services/catalog/internal/relation"
	"github.com/example/animefan/services/catalog/internal/review"
	"github.com/example/animefan/services/catalog/internal/stats"
)

type Deps struct {
	Query      *query.Engine
	Stats      *stats.Engine
	Anime      *anime.Service
	Reviews    *review.Service
	Relations  *relation.Service
	Reference  *reference.Service
	Ratings    *consistency.RatingManager
	Counters   *consistency.Counters
	Reconciler *consistency.Reconciler
	Verifier   auth.JWTVerifier
	// Background runs admin-triggered sweeps. Nil runs them under a
	// context that is never cancelled.
	Background Launcher
	Logger     *zap.Logger
}

// Mount registers every /v1 route on r.
func Mount(r chi.Router, d Deps) {
	d.Logger = logging.OrNop(d.Logger)
	if d.Background == nil {
		runner := run.New(d.Logger)
		d.Background = func(name string, fn func(context.Context) error) {
			runner.Background(context.Background(), name, fn)
		}
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/anime", SearchAnime(d.Query))
		r.Get("/anime/search", FullTextSearch(d.Query))
		r.Get("/anime/autocomplete", Autocomplete(d.Query))
		r.With(auth.OptionalUser(d.Verifier)).Get("/anime/{anime_id}", GetAnime(d.Anime))
		r.Get("/anime/{anime_id}/related", RelatedAnime(d.Anime))
		r.Get("/anime/{anime_id}/reviews", ListAnimeReviews(d.Reviews))
		r.Get("/reviews/{review_id}", GetReview(d.Reviews))
		r.Get("/users/{user_id}", GetUser(d.Reference))
		r.Get("/users/{user_id}/reviews", ListUserReviews(d.Reviews))

		r.Get("/studios", ListStudios(d.Reference))
		r.Get("/studios/top", TopStudios(d.Reference))
		r.Get("/studios/{studio_id}", GetStudio(d.Reference))
		r.Get("/studios/{studio_id}/anime", StudioAnime(d.Reference))
		r.Get("/genres", ListGenres(d.Reference))

		r.Get("/stats/platform", PlatformStats(d.Stats))
		r.Get("/stats/genres", GenreStats(d.Stats))
		r.Get("/stats/top-anime", TopAnime(d.Stats))
		r.Get("/stats/top-reviewers", TopReviewers(d.Stats))
		r.Get("/stats/anime/{anime_id}", AnimeStats(d.Stats))
		r.Get("/stats/anime/{anime_id}/ratings", RatingDistribution(d.Stats))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(d.Verifier))
			r.Post("/anime/{anime_id}/reviews", CreateReview(d.Reviews))
			r.Get("/anime/{anime_id}/reviews/mine", MyReview(d.Reviews))
			r.Put("/reviews/{review_id}", UpdateReview(d.Reviews))
			r.Delete("/reviews/{review_id}", DeleteReview(d.Reviews))
			r.Post("/reviews/{review_id}/helpful", VoteReview(d.Reviews))

			r.Put("/me/profile", SaveProfile(d.Reference))
			r.Get("/me/stats", UserStats(d.Stats))
			r.Get("/me/list", MyList(d.Relations))
			r.Post("/me/list", AddToList(d.Relations))
			r.Get("/me/list/anime/{anime_id}", GetListEntry(d.Relations))
			r.Patch("/me/list/{relation_id}", UpdateListEntry(d.Relations))
			r.Put("/me/list/{relation_id}/progress", UpdateProgress(d.Relations))
			r.Delete("/me/list/{relation_id}", RemoveListEntry(d.Relations))
			r.Post("/me/favorites/{anime_id}", ToggleFavorite(d.Relations))

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Post("/admin/anime", CreateAnime(d.Anime))
				r.Put("/admin/anime/{anime_id}", UpdateAnime(d.Anime))
				r.Delete("/admin/anime/{anime_id}", DeleteAnime(d.Anime))
				r.Post("/admin/anime/{anime_id}/episodes", AddEpisode(d.Anime))
				r.Put("/admin/anime/{anime_id}/episodes/{number}", UpdateEpisode(d.Anime))
				r.Delete("/admin/anime/{anime_id}/episodes/{number}", RemoveEpisode(d.Anime))
				r.Post("/admin/anime/{anime_id}/related", AddRelated(d.Anime))
				r.Delete("/admin/anime/{anime_id}/related/{related_id}", RemoveRelated(d.Anime))
				r.Post("/admin/anime/{anime_id}/rating", RecomputeRating(d.Ratings))

				r.Post("/admin/studios", CreateStudio(d.Reference))
				r.Put("/admin/studios/{studio_id}", UpdateStudio(d.Reference))
				r.Delete("/admin/studios/{studio_id}", DeleteStudio(d.Reference))
				r.Post("/admin/genres", CreateGenre(d.Reference))
				r.Put("/admin/genres/{genre_id}", UpdateGenre(d.Reference))
				r.Delete("/admin/genres/{genre_id}", DeleteGenre(d.Reference))

				r.Post("/admin/reconcile", Reconcile(d.Reconciler, d.Background))
				r.Post("/admin/genres/recount", RecountGenres(d.Counters))
				r.Post("/admin/repair/{kind}/{id}", RepairEntity(d.Reconciler))
			})
		})
	})
}
