package handlers

import (
	"log/slog"
	"net/http"

	"github.com/handsomefox/movie-catalog/internal/catalog"
	"github.com/handsomefox/movie-catalog/internal/logger"
	"github.com/handsomefox/movie-catalog/internal/tmdb"
	"golang.org/x/sync/errgroup"
)

const topCastSize = 10

type castResponse struct {
	Name       string `json:"name"`
	Character  string `json:"character"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type detailsResponse struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Tagline     string            `json:"tagline,omitempty"`
	Overview    string            `json:"overview"`
	ReleaseDate string            `json:"release_date"`
	Runtime     int               `json:"runtime"`
	PosterURL   string            `json:"poster_url,omitempty"`
	BackdropURL string            `json:"backdrop_url,omitempty"`
	VoteAverage float64           `json:"vote_average"`
	VoteCount   int               `json:"vote_count"`
	Genres      []string          `json:"genres"`
	Countries   []string          `json:"countries"`
	IMDbURL     string            `json:"imdb_url,omitempty"`
	Director    string            `json:"director,omitempty"`
	Writers     []string          `json:"writers"`
	Cast        []castResponse    `json:"cast"`
	TrailerURL  string            `json:"trailer_url,omitempty"`
	InWatchlist bool              `json:"in_watchlist"`
	Liked       bool              `json:"liked"`
	Saved       bool              `json:"saved"`
	Comments    []catalog.Comment `json:"comments"`
}

// getMovie fetches details, credits and videos concurrently and merges them
// with the user's collection state.
func (h *Handler) getMovie(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r, "id")
	if err != nil {
		return badRequest(err.Error())
	}

	var (
		details *tmdb.Details
		credits *tmdb.Credits
		videos  []tmdb.Video
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var derr error
		details, derr = h.tmdb.FetchDetails(ctx, id)
		return derr
	})
	g.Go(func() error {
		var cerr error
		credits, cerr = h.tmdb.FetchCredits(ctx, id)
		return cerr
	})
	g.Go(func() error {
		var verr error
		videos, verr = h.tmdb.FetchVideos(ctx, id)
		return verr
	})
	if err := g.Wait(); err != nil {
		if tmdb.IsNotFound(err) {
			return notFound("movie not found")
		}
		if r.Context().Err() != nil {
			return nil
		}
		slog.Warn("movie details: tmdb fetch failed", slog.Int64("id", id), logger.Error(err))
		return badGateway("failed to load movie details")
	}

	writeJSON(w, http.StatusOK, h.buildDetails(details, credits, videos))
	return nil
}

func (h *Handler) buildDetails(d *tmdb.Details, cr *tmdb.Credits, videos []tmdb.Video) detailsResponse {
	cols := h.catalog.Collections()
	resp := detailsResponse{
		ID:          d.ID,
		Title:       d.Title,
		Tagline:     d.Tagline,
		Overview:    d.Overview,
		ReleaseDate: d.ReleaseDate,
		Runtime:     d.Runtime,
		PosterURL:   tmdb.ImageURL(h.imageBase, d.PosterPath),
		BackdropURL: tmdb.ImageURL(h.imageBase, d.BackdropPath),
		VoteAverage: d.VoteAverage,
		VoteCount:   d.VoteCount,
		Genres:      make([]string, 0, len(d.Genres)),
		Countries:   make([]string, 0, len(d.ProductionCountries)),
		IMDbURL:     imdbURL(d.IMDbID),
		Director:    cr.Director(),
		Writers:     cr.Writers(),
		Cast:        []castResponse{},
		TrailerURL:  tmdb.TrailerURL(videos),
		InWatchlist: cols.Watchlist.Contains(d.ID),
		Liked:       cols.Liked.Contains(d.ID),
		Saved:       cols.Saved.Contains(d.ID),
		Comments:    cols.Comments[d.ID],
	}
	for _, g := range d.Genres {
		resp.Genres = append(resp.Genres, g.Name)
	}
	for _, c := range d.ProductionCountries {
		resp.Countries = append(resp.Countries, c.Name)
	}
	for _, m := range cr.TopCast(topCastSize) {
		resp.Cast = append(resp.Cast, castResponse{
			Name:       m.Name,
			Character:  m.Character,
			ProfileURL: tmdb.ImageURL(h.imageBase, m.ProfilePath),
		})
	}
	if resp.Writers == nil {
		resp.Writers = []string{}
	}
	if resp.Comments == nil {
		resp.Comments = []catalog.Comment{}
	}
	return resp
}
