package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/relation"
	"github.com/example/animefan/services/catalog/internal/store"
)

// MyList pages the caller's list, optionally by status or favorites only.
func MyList(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		f := store.RelationFilter{
			Status:        domain.WatchStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
			FavoritesOnly: r.URL.Query().Get("favorites") == "true",
		}
		page, err := svc.List(r.Context(), uid, f, queryInt(r, "page", 0), queryInt(r, "size", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// AddToList creates the entry, or updates it when the anime is already
// listed.
func AddToList(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req relation.AddRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			badJSON(w, r)
			return
		}
		rel, err := svc.AddToList(r.Context(), uid, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rel)
	}
}

func GetListEntry(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		rel, err := svc.Find(r.Context(), uid, chi.URLParam(r, "anime_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rel)
	}
}

func UpdateListEntry(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req relation.Request
		if err := api.DecodeJSON(w, r, &req); err != nil {
			badJSON(w, r)
			return
		}
		rel, err := svc.Update(r.Context(), uid, chi.URLParam(r, "relation_id"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rel)
	}
}

type progressRequest struct {
	EpisodesWatched int `json:"episodes_watched"`
}

func UpdateProgress(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var req progressRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			badJSON(w, r)
			return
		}
		rel, err := svc.UpdateProgress(r.Context(), uid, chi.URLParam(r, "relation_id"), req.EpisodesWatched)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rel)
	}
}

func RemoveListEntry(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		if err := svc.Remove(r.Context(), uid, chi.URLParam(r, "relation_id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ToggleFavorite(svc *relation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		rel, err := svc.ToggleFavorite(r.Context(), uid, chi.URLParam(r, "anime_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rel)
	}
}
