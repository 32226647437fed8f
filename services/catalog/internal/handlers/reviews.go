package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/services/catalog/internal/review"
	"github.com/example/animefan/services/catalog/internal/store"
)

// ListAnimeReviews pages an anime's reviews, newest first unless
// order=helpful.
func ListAnimeReviews(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order := store.ReviewsNewest
		if strings.EqualFold(r.URL.Query().Get("order"), "helpful") {
			order = store.ReviewsMostHelpful
		}
		page, err := svc.ListForAnime(r.Context(), chi.URLParam(r, "anime_id"), order, queryInt(r, "page", 0), queryInt(r, "size", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

func ListUserReviews(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ListByUser(r.Context(), chi.URLParam(r, "user_id"), queryInt(r, "page", 0), queryInt(r, "size", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

func GetReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := svc.Get(r.Context(), chi.URLParam(r, "review_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rv)
	}
}

// MyReview returns the caller's review of an anime.
func MyReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		rv, err := svc.UserReview(r.Context(), uid, chi.URLParam(r, "anime_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rv)
	}
}

func CreateReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var in review.Input
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		rv, err := svc.Create(r.Context(), uid, review.CreateRequest{AnimeID: chi.URLParam(r, "anime_id"), Input: in})
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, rv)
	}
}

func UpdateReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		var in review.Input
		if err := api.DecodeJSON(w, r, &in); err != nil {
			badJSON(w, r)
			return
		}
		rv, err := svc.Update(r.Context(), uid, chi.URLParam(r, "review_id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rv)
	}
}

// DeleteReview lets the author or an admin remove a review.
func DeleteReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), uid, chi.URLParam(r, "review_id"), auth.IsAdmin(r.Context())); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type voteRequest struct {
	Helpful bool `json:"helpful"`
}

func VoteReview(svc *review.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userID(w, r); !ok {
			return
		}
		var req voteRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			badJSON(w, r)
			return
		}
		if err := svc.Vote(r.Context(), chi.URLParam(r, "review_id"), req.Helpful); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
