package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/services/catalog/internal/reference"
)

func ListStudios(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ListStudios(r.Context(), queryInt(r, "page", 0), queryInt(r, "size", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

func TopStudios(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.TopStudios(r.Context(), queryInt(r, "limit", 10))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func GetStudio(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.GetStudio(r.Context(), chi.URLParam(r, "studio_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, st)
	}
}

func StudioAnime(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.StudioAnime(r.Context(), chi.URLParam(r, "studio_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func CreateStudio(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in reference.StudioInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		st, err := svc.CreateStudio(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, st)
	}
}

func UpdateStudio(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in reference.StudioInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		st, err := svc.UpdateStudio(r.Context(), chi.URLParam(r, "studio_id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, st)
	}
}

func DeleteStudio(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteStudio(r.Context(), chi.URLParam(r, "studio_id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListGenres returns active genres; all=true includes inactive ones.
func ListGenres(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListGenres(r.Context(), r.URL.Query().Get("all") != "true")
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func CreateGenre(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in reference.GenreInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		g, err := svc.CreateGenre(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, g)
	}
}

func UpdateGenre(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in reference.GenreInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		g, err := svc.UpdateGenre(r.Context(), chi.URLParam(r, "genre_id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, g)
	}
}

func DeleteGenre(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteGenre(r.Context(), chi.URLParam(r, "genre_id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SaveProfile stores the caller's display name and avatar.
func SaveProfile(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var in reference.ProfileInput
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		u, err := svc.SaveProfile(r.Context(), uid, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, u)
	}
}

func GetUser(svc *reference.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.GetUser(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, u)
	}
}
