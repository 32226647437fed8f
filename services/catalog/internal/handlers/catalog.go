package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/services/catalog/internal/anime"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/query"
)

// SearchAnime runs the structured catalog filter.
func SearchAnime(q *query.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := r.URL.Query()
		f := query.Filter{
			Query:     v.Get("q"),
			Genres:    queryList(r, "genre"),
			YearFrom:  queryIntPtr(r, "year_from"),
			YearTo:    queryIntPtr(r, "year_to"),
			RatingMin: queryFloatPtr(r, "rating_min"),
			RatingMax: queryFloatPtr(r, "rating_max"),
			Status:    domain.AnimeStatus(strings.ToUpper(strings.TrimSpace(v.Get("status")))),
			Type:      domain.AnimeType(strings.ToUpper(strings.TrimSpace(v.Get("type")))),
			StudioID:  strings.TrimSpace(v.Get("studio_id")),
			SortBy:    v.Get("sort"),
			SortDir:   v.Get("dir"),
			Page:      queryInt(r, "page", 0),
			Size:      queryInt(r, "size", 0),
		}
		page, err := q.Search(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// FullTextSearch ranks anime by text relevance.
func FullTextSearch(q *query.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := q.FullTextSearch(r.Context(), r.URL.Query().Get("q"), queryInt(r, "page", 0), queryInt(r, "size", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

func Autocomplete(q *query.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := q.SearchByTitle(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 10))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// GetAnime returns the anime and counts the view.
func GetAnime(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, _ := auth.UserIDFromContext(r.Context())
		a, err := svc.View(r.Context(), chi.URLParam(r, "anime_id"), uid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, a)
	}
}

func RelatedAnime(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.RelatedDetails(r.Context(), chi.URLParam(r, "anime_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func CreateAnime(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in anime.Input
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		a, err := svc.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, a)
	}
}

func UpdateAnime(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in anime.Input
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		a, err := svc.Update(r.Context(), chi.URLParam(r, "anime_id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, a)
	}
}

func DeleteAnime(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "anime_id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddEpisode(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ep domain.Episode
		if err := api.DecodeJSON(w, r, &ep); err != nil {
			badJSON(w, r)
			return
		}
		if err := svc.AddEpisode(r.Context(), chi.URLParam(r, "anime_id"), ep); err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, ep)
	}
}

func UpdateEpisode(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ep domain.Episode
		if err := api.DecodeJSON(w, r, &ep); err != nil {
			badJSON(w, r)
			return
		}
		ep.Number = queryPathInt(r, "number")
		if err := svc.UpdateEpisode(r.Context(), chi.URLParam(r, "anime_id"), ep); err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, ep)
	}
}

func RemoveEpisode(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveEpisode(r.Context(), chi.URLParam(r, "anime_id"), queryPathInt(r, "number")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddRelated(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in anime.RelatedInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		if err := svc.AddRelated(r.Context(), chi.URLParam(r, "anime_id"), in); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func RemoveRelated(svc *anime.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveRelated(r.Context(), chi.URLParam(r, "anime_id"), chi.URLParam(r, "related_id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
