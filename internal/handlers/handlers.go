// Package handlers wires HTTP routing and API handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/handsomefox/movie-catalog/internal/catalog"
	"github.com/handsomefox/movie-catalog/internal/logger"
	"github.com/handsomefox/movie-catalog/internal/tmdb"
)

// HealthChecker reports on the backing storage.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

type Handler struct {
	catalog   *catalog.Catalog
	tmdb      *tmdb.Client
	health    HealthChecker
	passHash  string
	imageBase string
	genres    genreCache
}

type Config struct {
	Catalog *catalog.Catalog
	TMDB    *tmdb.Client
	Health  HealthChecker
	// Password enables cookie auth on the API when non-empty.
	Password  string
	ImageBase string
}

type genreCache struct {
	mu        sync.RWMutex
	items     []tmdb.Genre
	fetchedAt time.Time
}

func New(cfg *Config) (*Handler, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.TMDB == nil {
		return nil, errors.New("tmdb client is required")
	}
	if cfg.Health == nil {
		return nil, errors.New("health checker is required")
	}
	h := &Handler{
		catalog:   cfg.Catalog,
		tmdb:      cfg.TMDB,
		health:    cfg.Health,
		imageBase: strings.TrimSpace(cfg.ImageBase),
	}
	if pw := strings.TrimSpace(cfg.Password); pw != "" {
		h.passHash = hashPassword(pw)
	}
	return h, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/session", Adapt(h.getSession))
	r.Method(http.MethodPost, "/login", Adapt(h.postLogin))
	r.Method(http.MethodGet, "/healthz", Adapt(h.getHealth))

	r.Group(func(r chi.Router) {
		r.Use(h.MiddlewareRequireAuth)

		r.Method(http.MethodPost, "/logout", Adapt(h.postLogout))
		r.Method(http.MethodGet, "/categories", Adapt(h.getCategories))
		r.Method(http.MethodGet, "/genres", Adapt(h.getGenres))
		r.Method(http.MethodPut, "/filters", Adapt(h.putFilters))
		r.Method(http.MethodPut, "/sort", Adapt(h.putSort))

		r.Route("/page", func(r chi.Router) {
			r.Method(http.MethodPut, "/", Adapt(h.putPage))
			r.Method(http.MethodPost, "/{action}", Adapt(h.postPageAction))
		})

		r.Route("/movies", func(r chi.Router) {
			r.Method(http.MethodGet, "/", Adapt(h.getMovies))
			r.Method(http.MethodGet, "/top", Adapt(h.getTopMovies))
			r.Method(http.MethodGet, "/random", Adapt(h.getRandomMovies))

			r.Route("/{id:[0-9]+}", func(r chi.Router) {
				r.Method(http.MethodGet, "/", Adapt(h.getMovie))
				r.Method(http.MethodDelete, "/", Adapt(h.deleteMovie))
				r.Method(http.MethodGet, "/comments", Adapt(h.getComments))
				r.Method(http.MethodPost, "/comments", Adapt(h.postComment))
				r.Method(http.MethodPost, "/{kind}", Adapt(h.postToggle))
			})
		})

		r.Route("/collections", func(r chi.Router) {
			r.Method(http.MethodGet, "/", Adapt(h.getCollections))
			r.Method(http.MethodDelete, "/{kind}", Adapt(h.deleteCollection))
		})
	})
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	AuthRequired  bool   `json:"auth_required"`
	ImageBase     string `json:"image_base,omitempty"`
}

func (h *Handler) session(authed bool) sessionResponse {
	resp := sessionResponse{Authenticated: authed, AuthRequired: h.authRequired()}
	if authed {
		resp.ImageBase = h.imageBase
	}
	return resp
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, h.session(h.isAuthenticated(r)))
	return nil
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) postLogin(w http.ResponseWriter, r *http.Request) error {
	if !h.authRequired() {
		writeJSON(w, http.StatusOK, h.session(true))
		return nil
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return badRequest("bad request")
	}
	if hashPassword(req.Password) != h.passHash {
		slog.Warn("login: invalid password", slog.String("remote", r.RemoteAddr))
		return unauthorized("invalid password")
	}

	setAuthCookie(w, h.passHash)
	writeJSON(w, http.StatusOK, h.session(true))
	return nil
}

func (h *Handler) postLogout(w http.ResponseWriter, r *http.Request) error {
	clearAuthCookie(w)
	writeJSON(w, http.StatusOK, h.session(!h.authRequired()))
	return nil
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Storage   struct {
		Status  string `json:"status"`
		Keys    int    `json:"keys"`
		Message string `json:"message,omitempty"`
	} `json:"storage"`
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC()}
	resp.Storage.Status = "ok"
	if err := h.health.Ping(ctx); err != nil {
		slog.Warn("health: storage ping failed", logger.Error(err))
		resp.Status = "degraded"
		resp.Storage.Status = "error"
		resp.Storage.Message = "storage ping failed"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return nil
	}
	keys, err := h.health.Keys(ctx)
	if err != nil {
		slog.Warn("health: list keys failed", logger.Error(err))
		resp.Status = "degraded"
		resp.Storage.Status = "error"
		resp.Storage.Message = "list keys failed"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return nil
	}
	resp.Storage.Keys = len(keys)
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) getCategories(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, catalog.Categories())
	return nil
}

func (h *Handler) getGenres(w http.ResponseWriter, r *http.Request) error {
	genres, err := h.fetchGenres(r.Context())
	if err != nil {
		slog.Warn("genres: tmdb fetch failed", logger.Error(err))
		return badGateway("failed to load genres")
	}
	writeJSON(w, http.StatusOK, genres)
	return nil
}

func (h *Handler) fetchGenres(ctx context.Context) ([]tmdb.Genre, error) {
	const cacheTTL = 24 * time.Hour

	h.genres.mu.RLock()
	if h.genres.items != nil && time.Since(h.genres.fetchedAt) < cacheTTL {
		items := append([]tmdb.Genre(nil), h.genres.items...)
		h.genres.mu.RUnlock()
		return items, nil
	}
	h.genres.mu.RUnlock()

	genres, err := h.tmdb.FetchGenres(ctx)
	if err != nil {
		return nil, err
	}
	if genres == nil {
		genres = []tmdb.Genre{}
	}

	h.genres.mu.Lock()
	h.genres.items = append([]tmdb.Genre(nil), genres...)
	h.genres.fetchedAt = time.Now()
	h.genres.mu.Unlock()

	return genres, nil
}

type movieResponse struct {
	catalog.MovieView
	PosterURL string `json:"poster_url,omitempty"`
}

type viewResponse struct {
	catalog.View
	Movies []movieResponse `json:"movies"`
}

func (h *Handler) toViewResponse(v *catalog.View) viewResponse {
	return viewResponse{View: *v, Movies: h.toMovieResponses(v.Movies)}
}

func (h *Handler) toMovieResponses(items []catalog.MovieView) []movieResponse {
	out := make([]movieResponse, 0, len(items))
	for i := range items {
		out = append(out, movieResponse{
			MovieView: items[i],
			PosterURL: tmdb.ImageURL(h.imageBase, items[i].PosterPath),
		})
	}
	return out
}

// writeView renders v. A failed fetch still returns the view, which keeps the
// previously loaded movies, with a 502.
func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, v catalog.View, err error) error {
	switch {
	case err == nil, errors.Is(err, catalog.ErrStaleFetch):
		writeJSON(w, http.StatusOK, h.toViewResponse(&v))
		return nil
	case errors.Is(err, catalog.ErrInvalidPage):
		return badRequest(err.Error())
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		return nil
	default:
		slog.Warn("catalog fetch failed", slog.Int("page", v.Page), logger.Error(err))
		writeJSON(w, http.StatusBadGateway, h.toViewResponse(&v))
		return nil
	}
}

func (h *Handler) getMovies(w http.ResponseWriter, r *http.Request) error {
	v, err := h.catalog.EnsureLoaded(r.Context())
	return h.writeView(w, r, v, err)
}

func (h *Handler) putFilters(w http.ResponseWriter, r *http.Request) error {
	var f catalog.Filter
	if err := decodeJSON(w, r, &f); err != nil {
		return badRequest("bad request")
	}
	v, err := h.catalog.SetFilter(r.Context(), f)
	if err != nil {
		return badRequest(err.Error())
	}
	writeJSON(w, http.StatusOK, h.toViewResponse(&v))
	return nil
}

type sortRequest struct {
	Mode             catalog.SortMode `json:"mode"`
	PopularityWeight *float64         `json:"popularity_weight"`
}

func (h *Handler) putSort(w http.ResponseWriter, r *http.Request) error {
	var req sortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return badRequest("bad request")
	}
	weights := h.catalog.State().Sort.Weights
	if req.PopularityWeight != nil {
		weights.Popularity = *req.PopularityWeight
	}
	v, err := h.catalog.SetSort(r.Context(), catalog.Sort{Mode: req.Mode, Weights: weights})
	if err != nil {
		return badRequest(err.Error())
	}
	writeJSON(w, http.StatusOK, h.toViewResponse(&v))
	return nil
}

// pageInput accepts the page as a JSON string or number; validation is left
// to catalog.ParsePage.
type pageInput string

func (p *pageInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = pageInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = pageInput(n.String())
	return nil
}

type pageRequest struct {
	Page pageInput `json:"page"`
}

func (h *Handler) putPage(w http.ResponseWriter, r *http.Request) error {
	var req pageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return badRequest("bad request")
	}
	v, err := h.catalog.GoTo(r.Context(), string(req.Page))
	return h.writeView(w, r, v, err)
}

func (h *Handler) postPageAction(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	var (
		v   catalog.View
		err error
	)
	switch chi.URLParam(r, "action") {
	case "next":
		v, err = h.catalog.Navigate(ctx, catalog.NextPage{})
	case "prev":
		v, err = h.catalog.Navigate(ctx, catalog.PrevPage{})
	case "first":
		v, err = h.catalog.Navigate(ctx, catalog.FirstPage{})
	case "last":
		v, err = h.catalog.Navigate(ctx, catalog.LastPage{})
	case "reload":
		v, err = h.catalog.Reload(ctx)
	default:
		return notFound("unknown page action")
	}
	return h.writeView(w, r, v, err)
}

func (h *Handler) getTopMovies(w http.ResponseWriter, r *http.Request) error {
	n, err := intQuery(r, "n", catalog.DefaultTopCount)
	if err != nil {
		return badRequest("bad n")
	}
	top := h.catalog.Top(n)
	writeJSON(w, http.StatusOK, h.toMovieResponses(top))
	return nil
}

func (h *Handler) getRandomMovies(w http.ResponseWriter, r *http.Request) error {
	n, err := intQuery(r, "n", catalog.DefaultRandomCount)
	if err != nil || n < 0 {
		return badRequest("bad n")
	}
	picks := h.catalog.RandomPicks(n)
	cols := h.catalog.Collections()
	out := make([]movieResponse, 0, len(picks))
	for i := range picks {
		out = append(out, movieResponse{
			MovieView: catalog.MovieView{
				Movie:       picks[i],
				InWatchlist: cols.Watchlist.Contains(picks[i].ID),
				Liked:       cols.Liked.Contains(picks[i].ID),
				Saved:       cols.Saved.Contains(picks[i].ID),
				Comments:    len(cols.Comments[picks[i].ID]),
			},
			PosterURL: tmdb.ImageURL(h.imageBase, picks[i].PosterPath),
		})
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (h *Handler) deleteMovie(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r, "id")
	if err != nil {
		return badRequest(err.Error())
	}
	if err := h.catalog.Hide(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return notFound("movie is not on the current page")
		}
		return err
	}
	v := h.catalog.View()
	writeJSON(w, http.StatusOK, h.toViewResponse(&v))
	return nil
}

type toggleResponse struct {
	MovieID int64        `json:"movie_id"`
	Kind    catalog.Kind `json:"kind"`
	Member  bool         `json:"member"`
}

func (h *Handler) postToggle(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r, "id")
	if err != nil {
		return badRequest(err.Error())
	}
	kind, ok := catalog.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		return notFound("unknown collection")
	}
	member, err := h.catalog.Toggle(r.Context(), kind, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return notFound("movie not found")
		}
		return err
	}
	writeJSON(w, http.StatusOK, toggleResponse{MovieID: id, Kind: kind, Member: member})
	return nil
}

func (h *Handler) getComments(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r, "id")
	if err != nil {
		return badRequest(err.Error())
	}
	comments := h.catalog.Comments(id)
	if comments == nil {
		comments = []catalog.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
	return nil
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) postComment(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r, "id")
	if err != nil {
		return badRequest(err.Error())
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return badRequest("bad request")
	}
	cm, err := h.catalog.Comment(r.Context(), id, req.Text)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyComment) {
			return badRequest(err.Error())
		}
		return err
	}
	writeJSON(w, http.StatusCreated, cm)
	return nil
}

func (h *Handler) getCollections(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, collectionsResponse(h.catalog.Collections()))
	return nil
}

// collectionsResponse renders empty collections as [] rather than null.
func collectionsResponse(c catalog.Collections) catalog.Collections {
	if c.Watchlist == nil {
		c.Watchlist = catalog.Collection{}
	}
	if c.Liked == nil {
		c.Liked = catalog.Collection{}
	}
	if c.Saved == nil {
		c.Saved = catalog.Collection{}
	}
	if c.Comments == nil {
		c.Comments = catalog.Comments{}
	}
	return c
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) error {
	kind, ok := catalog.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		return notFound("unknown collection")
	}
	if err := h.catalog.Clear(r.Context(), kind); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, collectionsResponse(h.catalog.Collections()))
	return nil
}
