package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/handsomefox/movie-catalog/internal/catalog"
	"github.com/handsomefox/movie-catalog/internal/store"
	"github.com/handsomefox/movie-catalog/internal/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageBase = "https://img.test/w500"

type fakeTMDB struct {
	failPages atomic.Bool
	discovers atomic.Int32
}

func (f *fakeTMDB) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /discover/movie", func(w http.ResponseWriter, r *http.Request) {
		f.discovers.Add(1)
		page := r.URL.Query().Get("page")
		if page != "1" && f.failPages.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if page == "1" {
			fmt.Fprint(w, `{"page":1,"results":[
				{"id":1,"title":"Heat","poster_path":"/heat.jpg","release_date":"1995-12-15","popularity":50,"vote_average":8.3,"genre_ids":[28,80],"original_language":"en"},
				{"id":2,"title":"Superbad","release_date":"2007-08-17","popularity":80,"vote_average":7.2,"genre_ids":[35],"original_language":"en"},
				{"id":3,"title":"Amélie","release_date":"2001-04-25","popularity":20,"vote_average":7.9,"genre_ids":[35,10749],"original_language":"fr"}]}`)
			return
		}
		fmt.Fprintf(w, `{"page":%[1]s,"results":[{"id":10%[1]s,"title":"Page %[1]s movie","popularity":1,"vote_average":5}]}`, page)
	})
	mux.HandleFunc("GET /genre/movie/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"genres":[{"id":28,"name":"Action"},{"id":35,"name":"Comedy"}]}`)
	})
	mux.HandleFunc("GET /movie/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":1,"title":"Heat","tagline":"A Los Angeles crime saga","overview":"Cops and robbers.",
			"release_date":"1995-12-15","runtime":170,"poster_path":"/heat.jpg","vote_average":8.3,"vote_count":7000,
			"imdb_id":"tt0113277","genres":[{"id":28,"name":"Action"},{"id":80,"name":"Crime"}],
			"production_countries":[{"iso_3166_1":"US","name":"United States of America"}]}`)
	})
	mux.HandleFunc("GET /movie/1/credits", func(w http.ResponseWriter, r *http.Request) {
		cast := make([]string, 0, 12)
		for i := range 12 {
			cast = append(cast, fmt.Sprintf(`{"name":"Actor %d","character":"Role %d","profile_path":"/a%d.jpg"}`, i, i, i))
		}
		fmt.Fprintf(w, `{"cast":[%s],"crew":[
			{"name":"Dante Spinotti","job":"Director of Photography"},
			{"name":"Michael Mann","job":"Director"},
			{"name":"Michael Mann","job":"Screenplay"}]}`, strings.Join(cast, ","))
	})
	mux.HandleFunc("GET /movie/1/videos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"key":"teaser","site":"YouTube","type":"Teaser"},{"key":"trailer","site":"YouTube","type":"Trailer"}]}`)
	})
	return mux
}

type testEnv struct {
	router  http.Handler
	tmdb    *fakeTMDB
	storage *store.Memory
	catalog *catalog.Catalog
}

func newTestEnv(t *testing.T, password string) *testEnv {
	t.Helper()
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	hc := &http.Client{Transport: &tmdb.Transport{Base: http.DefaultTransport, RetryMax: 1, Backoff: time.Millisecond}}
	client := tmdb.New("test-key", "", tmdb.WithBaseURL(srv.URL), tmdb.WithHTTPClient(hc))
	st := store.NewMemory()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.New(context.Background(), client, st, catalog.WithLogger(discard))
	require.NoError(t, err)

	h, err := New(&Config{
		Catalog:   cat,
		TMDB:      client,
		Health:    st,
		Password:  password,
		ImageBase: testImageBase,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return &testEnv{router: r, tmdb: fake, storage: st, catalog: cat}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type viewBody struct {
	Page      int    `json:"page"`
	NoResults bool   `json:"no_results"`
	Error     string `json:"error"`
	Movies    []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		PosterURL   string `json:"poster_url"`
		InWatchlist bool   `json:"in_watchlist"`
		Saved       bool   `json:"saved"`
		Comments    int    `json:"comments"`
	} `json:"movies"`
	Counts struct {
		Saved int `json:"saved"`
	} `json:"counts"`
	Sort struct {
		Mode    string `json:"mode"`
		Weights struct {
			Popularity float64 `json:"popularity"`
			Rating     float64 `json:"rating"`
		} `json:"weights"`
	} `json:"sort"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (v viewBody) ids() []int64 {
	out := make([]int64, 0, len(v.Movies))
	for _, m := range v.Movies {
		out = append(out, m.ID)
	}
	return out
}

func TestGetMovies(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(t, http.MethodGet, "/api/movies", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[viewBody](t, rec)
	assert.Equal(t, 1, v.Page)
	assert.Equal(t, []int64{2, 1, 3}, v.ids(), "popularity order")
	assert.Equal(t, testImageBase+"/heat.jpg", v.Movies[1].PosterURL)
	assert.Empty(t, v.Movies[0].PosterURL)

	e.do(t, http.MethodGet, "/api/movies", "")
	assert.Equal(t, int32(1), e.tmdb.discovers.Load())
}

func TestFiltersAndSort(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")

	rec := e.do(t, http.MethodPut, "/api/filters", `{"category":"comedy"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{2, 3}, decodeBody[viewBody](t, rec).ids())

	rec = e.do(t, http.MethodPut, "/api/filters", `{"category":"Romance","language":"en"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeBody[viewBody](t, rec)
	assert.Empty(t, v.Movies)
	assert.True(t, v.NoResults)

	rec = e.do(t, http.MethodPut, "/api/filters", `{"category":"Western"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/filters", `{"genre":"Action"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = e.do(t, http.MethodPut, "/api/filters", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/sort", `{"mode":"popularity_and_rating","popularity_weight":0.2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeBody[viewBody](t, rec)
	assert.Equal(t, "popularity_and_rating", v.Sort.Mode)
	assert.InDelta(t, 0.2, v.Sort.Weights.Popularity, 1e-9)
	assert.InDelta(t, 0.8, v.Sort.Weights.Rating, 1e-9)
	assert.Equal(t, []int64{2, 1, 3}, v.ids())

	rec = e.do(t, http.MethodPut, "/api/sort", `{"mode":"vote_average"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeBody[viewBody](t, rec)
	assert.Equal(t, []int64{1, 3, 2}, v.ids())
	assert.InDelta(t, 0.2, v.Sort.Weights.Popularity, 1e-9, "weights survive a mode change")

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/sort", `{"mode":"title"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodPut, "/api/sort", `{"mode":"popularity_and_rating","popularity_weight":1.5}`).Code)
}

func TestPagination(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")

	rec := e.do(t, http.MethodPut, "/api/page", `{"page":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, e.catalog.State().Page)

	rec = e.do(t, http.MethodPut, "/api/page", `{"page":"3"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[viewBody](t, rec)
	assert.Equal(t, 3, v.Page)
	assert.Equal(t, []int64{103}, v.ids())

	rec = e.do(t, http.MethodPut, "/api/page", `{"page":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeBody[viewBody](t, rec).Page)

	rec = e.do(t, http.MethodPut, "/api/page", `{"page":"10000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, decodeBody[viewBody](t, rec).Page)

	rec = e.do(t, http.MethodPost, "/api/page/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, decodeBody[viewBody](t, rec).Page)

	rec = e.do(t, http.MethodPost, "/api/page/first", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[viewBody](t, rec).Page)

	rec = e.do(t, http.MethodPost, "/api/page/prev", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[viewBody](t, rec).Page)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/page/sideways", "").Code)
}

func TestFetchFailureKeepsMovies(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")
	e.tmdb.failPages.Store(true)

	rec := e.do(t, http.MethodPost, "/api/page/next", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	v := decodeBody[viewBody](t, rec)
	assert.Equal(t, 2, v.Page)
	assert.Equal(t, "Failed to load movies", v.Error)
	assert.Equal(t, []int64{2, 1, 3}, v.ids())

	e.tmdb.failPages.Store(false)
	rec = e.do(t, http.MethodPost, "/api/page/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeBody[viewBody](t, rec)
	assert.Empty(t, v.Error)
	assert.Equal(t, []int64{102}, v.ids())
}

func TestCollectionsAndComments(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")

	rec := e.do(t, http.MethodPost, "/api/movies/1/saved", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"movie_id":1,"kind":"saved","member":true}`, rec.Body.String())

	raw, ok, err := e.storage.Get(context.Background(), "saveList")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"title":"Heat"`)

	v := decodeBody[viewBody](t, e.do(t, http.MethodGet, "/api/movies", ""))
	assert.Equal(t, 1, v.Counts.Saved)
	for _, m := range v.Movies {
		assert.Equal(t, m.ID == 1, m.Saved)
	}

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/movies/1/favourites", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/movies/999/liked", "").Code)

	rec = e.do(t, http.MethodPost, "/api/movies/42/comments", `{"text":"Great film"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cm := decodeBody[catalog.Comment](t, rec)
	assert.Equal(t, "Great film", cm.Text)
	assert.NotEmpty(t, cm.ID)
	assert.False(t, cm.Timestamp.IsZero())

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/movies/42/comments", `{"text":"  "}`).Code)

	rec = e.do(t, http.MethodGet, "/api/movies/42/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]catalog.Comment](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/api/movies/7/comments", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/collections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cols := decodeBody[catalog.Collections](t, rec)
	assert.Equal(t, []int64{1}, cols.Saved.IDs())
	assert.Len(t, cols.Comments[42], 1)

	rec = e.do(t, http.MethodDelete, "/api/collections/saved", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"saved":[]`)
	_, ok, err = e.storage.Get(context.Background(), "saveList")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHideMovie(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")

	rec := e.do(t, http.MethodDelete, "/api/movies/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 3}, decodeBody[viewBody](t, rec).ids())

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/movies/999", "").Code)

	e.do(t, http.MethodPost, "/api/page/next", "")
	rec = e.do(t, http.MethodPost, "/api/page/prev", "")
	assert.Equal(t, []int64{2, 1, 3}, decodeBody[viewBody](t, rec).ids(), "hidden movies return after a page load")
}

func TestTopAndRandom(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")
	e.do(t, http.MethodPut, "/api/sort", `{"mode":"vote_average"}`)

	rec := e.do(t, http.MethodGet, "/api/movies/top?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].ID)
	assert.Equal(t, int64(3), top[1].ID)

	rec = e.do(t, http.MethodGet, "/api/movies/random?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var picks []struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &picks))
	assert.Len(t, picks, 2)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/movies/random?n=x", "").Code)
}

func TestGetMovieDetails(t *testing.T) {
	e := newTestEnv(t, "")
	e.do(t, http.MethodGet, "/api/movies", "")
	e.do(t, http.MethodPost, "/api/movies/1/watchlist", "")
	e.do(t, http.MethodPost, "/api/movies/1/comments", `{"text":"Best heist"}`)

	rec := e.do(t, http.MethodGet, "/api/movies/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decodeBody[detailsResponse](t, rec)
	assert.Equal(t, "Heat", d.Title)
	assert.Equal(t, 170, d.Runtime)
	assert.Equal(t, []string{"Action", "Crime"}, d.Genres)
	assert.Equal(t, []string{"United States of America"}, d.Countries)
	assert.Equal(t, "https://www.imdb.com/title/tt0113277/", d.IMDbURL)
	assert.Equal(t, "Michael Mann", d.Director)
	assert.Equal(t, []string{"Michael Mann"}, d.Writers)
	assert.Len(t, d.Cast, topCastSize)
	assert.Equal(t, testImageBase+"/a0.jpg", d.Cast[0].ProfileURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=trailer", d.TrailerURL)
	assert.True(t, d.InWatchlist)
	assert.False(t, d.Liked)
	require.Len(t, d.Comments, 1)
	assert.Equal(t, "Best heist", d.Comments[0].Text)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/movies/404", "").Code)
}

func TestGenresAndCategories(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(t, http.MethodGet, "/api/genres", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":28,"name":"Action"},{"id":35,"name":"Comedy"}]`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decodeBody[[]catalog.Category](t, rec)
	require.Len(t, cats, 6)
	assert.Equal(t, catalog.CategoryAll, cats[0].Name)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "secret")
	require.NoError(t, e.storage.Set(context.Background(), "watchlist", "[]"))

	rec := e.do(t, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Storage.Keys)
}

type keysFailing struct{}

func (keysFailing) Ping(context.Context) error { return nil }
func (keysFailing) Keys(context.Context) ([]string, error) {
	return nil, errors.New("table is locked")
}

func TestHealth_KeysFailure(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := &Handler{health: keysFailing{}}
	rec := httptest.NewRecorder()
	Adapt(h.getHealth).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "list keys failed", resp.Storage.Message)
	assert.Contains(t, logs.String(), "health: list keys failed")
	assert.Contains(t, logs.String(), "table is locked")
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/movies", "").Code)

	rec := e.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false,"auth_required":true}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/login", `{"password":"wrong"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/login", `not json`).Code)

	rec = e.do(t, http.MethodPost, "/api/login", `{"password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, authCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = e.do(t, http.MethodGet, "/api/movies", "", cookies[0])
	assert.Equal(t, http.StatusOK, rec.Code)

	forged := &http.Cookie{Name: authCookieName, Value: "forged"}
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/movies", "", forged).Code)

	rec = e.do(t, http.MethodPost, "/api/logout", "", cookies[0])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestOpenAccessWithoutPassword(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(t, http.MethodGet, "/api/session", "")
	assert.JSONEq(t, `{"authenticated":true,"auth_required":false,"image_base":"`+testImageBase+`"}`, rec.Body.String())
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/login", "").Code)
}
