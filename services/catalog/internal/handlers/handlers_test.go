package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/services/catalog/internal/anime"
	"github.com/example/animefan/services/catalog/internal/consistency"
	"github.com/example/animefan/services/catalog/internal/domain"
	"github.com/example/animefan/services/catalog/internal/query"
	"github.com/example/animefan/services/catalog/internal/reference"
	"github.com/example/animefan/services/catalog/internal/relation"
	"github.com/example/animefan/services/catalog/internal/review"
	"github.com/example/animefan/services/catalog/internal/stats"
	"github.com/example/animefan/services/catalog/internal/store"
)

var secret = []byte("test-secret")

// setupReq builds a request with chi URL params and optional user_id in context.
func setupReq(method, url string, body string, params map[string]string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

type env struct {
	deps   Deps
	s      store.Store
	router http.Handler
}

func newEnv(t *testing.T) env {
	t.Helper()
	s := store.NewMemory().Store()
	counters := consistency.NewCounters(s, nil, nil)
	ratings := consistency.NewRatingManager(s, consistency.RatingOptions{}, nil)
	rels := relation.NewService(s, counters, nil, nil)
	d := Deps{
		Query:      query.NewEngine(s.Anime, nil),
		Stats:      stats.NewEngine(s, nil, stats.Options{}, nil),
		Anime:      anime.NewService(s, counters, rels, nil, nil),
		Reviews:    review.NewService(s, ratings, counters, nil, nil),
		Relations:  rels,
		Reference:  reference.NewService(s, counters, nil, nil),
		Ratings:    ratings,
		Counters:   counters,
		Reconciler: consistency.NewReconciler(s, ratings, counters, consistency.ReconcileOptions{}, nil),
		Verifier:   auth.JWTVerifier{Secret: secret},
	}
	r := chi.NewRouter()
	Mount(r, d)
	return env{deps: d, s: s, router: r}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func (e env) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e env) anime(t *testing.T, title string, genres ...string) domain.Anime {
	t.Helper()
	a := domain.Anime{Title: title, Genres: genres, ReleaseYear: 2015, Status: domain.AnimeCompleted, Type: domain.TypeTV, EpisodeCount: 12}
	require.NoError(t, e.s.Anime.CreateAnime(context.Background(), &a))
	return a
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestSearchAnime(t *testing.T) {
	e := newEnv(t)
	e.anime(t, "Mushishi", "Mystery")
	e.anime(t, "Monster", "Thriller")

	rr := e.do(t, http.MethodGet, "/v1/anime?genre=Mystery,Horror&year_from=2010&sort=title&dir=asc", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[domain.Page[domain.Anime]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Mushishi", page.Items[0].Title)
	assert.Equal(t, query.DefaultPageSize, page.Size)
}

func TestGetAnimeCountsViews(t *testing.T) {
	e := newEnv(t)
	a := e.anime(t, "Baccano")

	handler := GetAnime(e.deps.Anime)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/anime/"+a.ID, "", map[string]string{"anime_id": a.ID}, ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decode[domain.Anime](t, rr).ViewCount)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/anime/nope", "", map[string]string{"anime_id": "nope"}, ""))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decode[api.ErrorResponse](t, rr).Error.Code)
}

func TestCreateReviewFlow(t *testing.T) {
	e := newEnv(t)
	a := e.anime(t, "Planetes")

	rr := e.do(t, http.MethodPost, "/v1/anime/"+a.ID+"/reviews", `{"rating":9,"content":"great"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/anime/"+a.ID+"/reviews", `{"rating":9,"content":"great"}`, token(t, "u1", ""))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rv := decode[domain.Review](t, rr)

	rr = e.do(t, http.MethodPost, "/v1/anime/"+a.ID+"/reviews", `{"rating":3,"content":"again"}`, token(t, "u1", ""))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/anime/"+a.ID+"/reviews", `{"rating":11,"content":"x"}`, token(t, "u2", ""))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rr).Error.Details, "rating")

	rr = e.do(t, http.MethodPut, "/v1/reviews/"+rv.ID, `{"rating":5,"content":"changed"}`, token(t, "u2", ""))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	got, err := e.s.Anime.GetAnime(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 9.0, got.Rating)

	rr = e.do(t, http.MethodDelete, "/v1/reviews/"+rv.ID, "", token(t, "admin1", "admin"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListAndFavorites(t *testing.T) {
	e := newEnv(t)
	a := e.anime(t, "Shirobako")
	tok := token(t, "u1", "")

	rr := e.do(t, http.MethodPost, "/v1/me/favorites/"+a.ID, "", tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rel := decode[domain.Relation](t, rr)
	assert.True(t, rel.Favorite)
	assert.Equal(t, domain.PlanToWatch, rel.Status)

	rr = e.do(t, http.MethodPut, "/v1/me/list/"+rel.ID+"/progress", `{"episodes_watched":12}`, tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, domain.Completed, decode[domain.Relation](t, rr).Status)

	rr = e.do(t, http.MethodGet, "/v1/me/list?favorites=true", "", tok)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decode[domain.Page[domain.Relation]](t, rr).Total)

	rr = e.do(t, http.MethodPatch, "/v1/me/list/"+rel.ID, `{"status":"DROPPED"}`, token(t, "u2", ""))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodDelete, "/v1/me/list/"+rel.ID, "", tok)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	got, err := e.s.Anime.GetAnime(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FavoriteCount)
	u, err := e.s.Users.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.WatchedCount)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)
	body := `{"title":"Gurren Lagann","status":"COMPLETED","type":"TV","genres":["Mecha"]}`

	rr := e.do(t, http.MethodPost, "/v1/admin/anime", body, token(t, "u1", ""))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/admin/anime", body, token(t, "root", "admin"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	a := decode[domain.Anime](t, rr)

	rr = e.do(t, http.MethodPost, "/v1/admin/anime/"+a.ID+"/rating", "", token(t, "root", "admin"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/admin/reconcile?wait=true", "", token(t, "root", "admin"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, decode[consistency.Report](t, rr).Anime)

	rr = e.do(t, http.MethodPost, "/v1/admin/repair/planet/x", "", token(t, "root", "admin"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/v1/admin/genres/recount", "", token(t, "root", "admin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReconcileRunsThroughLauncher(t *testing.T) {
	e := newEnv(t)
	e.anime(t, "Hyouka", "Mystery")

	var (
		name  string
		sweep func(context.Context) error
	)
	h := Reconcile(e.deps.Reconciler, func(n string, fn func(context.Context) error) {
		name, sweep = n, fn
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/v1/admin/reconcile", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "admin-sweep", name)
	require.NotNil(t, sweep)

	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sweep(stopped), context.Canceled)
	assert.False(t, e.deps.Reconciler.Running())

	assert.NoError(t, sweep(context.Background()))
}

func TestStatsRoutes(t *testing.T) {
	e := newEnv(t)
	a := e.anime(t, "Hyouka", "Mystery")

	rr := e.do(t, http.MethodGet, "/v1/stats/platform", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decode[domain.PlatformStats](t, rr).TotalAnime)

	rr = e.do(t, http.MethodGet, "/v1/stats/anime/"+a.ID, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = e.do(t, http.MethodGet, "/v1/stats/anime/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/v1/me/stats", "", token(t, "u1", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBadJSON(t *testing.T) {
	e := newEnv(t)
	rr := httptest.NewRecorder()
	AddToList(e.deps.Relations).ServeHTTP(rr, setupReq(http.MethodPost, "/v1/me/list", "{", nil, "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_JSON", decode[api.ErrorResponse](t, rr).Error.Code)
}
