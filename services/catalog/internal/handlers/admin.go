package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/httpserver"
	"github.com/example/animefan/services/catalog/internal/consistency"
)

// Launcher runs fn in the background under a context that ends with the
// server.
type Launcher func(name string, fn func(ctx context.Context) error)

// Reconcile starts a full sweep through launch and answers 202, or runs it
// inline and returns the report when wait=true.
func Reconcile(rec *consistency.Reconciler, launch Launcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rec.Running() {
			writeError(w, r, consistency.ErrSweepRunning)
			return
		}
		if r.URL.Query().Get("wait") == "true" {
			rep, err := rec.Run(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			api.WriteJSON(w, http.StatusOK, rep)
			return
		}
		launch("admin-sweep", func(ctx context.Context) error {
			_, err := rec.Run(ctx)
			return err
		})
		api.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
	}
}

func RecountGenres(c *consistency.Counters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := c.RecountAllGenres(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"changed": n})
	}
}

func RecomputeRating(m *consistency.RatingManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "anime_id")
		rating, count, err := m.Recompute(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"anime_id": id, "rating": rating, "rating_count": count})
	}
}

// RepairEntity recounts one entity now.
func RepairEntity(rec *consistency.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := consistency.Kind(chi.URLParam(r, "kind"))
		if !kind.Valid() {
			api.BadRequest(w, "INVALID_KIND", "kind must be anime, user, studio or genre", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}
		n, err := rec.Repair(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"corrections": n})
	}
}

