package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/services/catalog/internal/stats"
)

func PlatformStats(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, e.PlatformStats(r.Context()))
	}
}

func GenreStats(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": e.GenreStatistics(r.Context())})
	}
}

func TopAnime(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": e.TopAnime(r.Context(), queryInt(r, "limit", 10))})
	}
}

func TopReviewers(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": e.TopReviewers(r.Context(), queryInt(r, "limit", 10))})
	}
}

func RatingDistribution(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": e.RatingDistribution(r.Context(), chi.URLParam(r, "anime_id"))})
	}
}

func AnimeStats(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := e.AnimeStats(r.Context(), chi.URLParam(r, "anime_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, st)
	}
}

// UserStats serves the caller's list counts and genre preferences.
func UserStats(e *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"stats":             e.UserStats(r.Context(), uid),
			"genre_preferences": e.UserGenrePreferences(r.Context(), uid, queryInt(r, "limit", 10)),
		})
	}
}
