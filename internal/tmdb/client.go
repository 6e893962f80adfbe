// Package tmdb wraps the TMDB API for discovering movies and fetching their
// details, credits and videos.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/handsomefox/movie-catalog/internal/catalog"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

type Client struct {
	apiKey    string
	readToken string
	baseURL   string
	http      *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New builds a client. A JWT-looking api key with no read token is used as
// the bearer token instead.
func New(apiKey, readToken string, opts ...Option) *Client {
	if strings.TrimSpace(readToken) == "" && looksLikeJWT(apiKey) {
		readToken = apiKey
		apiKey = ""
	}
	c := &Client{
		apiKey:    strings.TrimSpace(apiKey),
		readToken: strings.TrimSpace(readToken),
		baseURL:   DefaultBaseURL,
		http:      NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for non-2xx TMDB responses.
type StatusError struct {
	Code   int
	Status string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s: %s", e.Path, e.Status)
}

func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type discoverResponse struct {
	Page    int             `json:"page"`
	Results []catalog.Movie `json:"results"`
}

// DiscoverPage returns one page of movies ordered by popularity.
func (c *Client) DiscoverPage(ctx context.Context, page int) ([]catalog.Movie, error) {
	values := url.Values{}
	values.Set("include_adult", "false")
	values.Set("sort_by", "popularity.desc")
	values.Set("page", strconv.Itoa(catalog.ClampPage(page)))

	var payload discoverResponse
	if err := c.get(ctx, "/discover/movie", values, &payload); err != nil {
		return nil, err
	}
	if payload.Results == nil {
		payload.Results = []catalog.Movie{}
	}
	return payload.Results, nil
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (c *Client) FetchGenres(ctx context.Context) ([]Genre, error) {
	var payload struct {
		Genres []Genre `json:"genres"`
	}
	if err := c.get(ctx, "/genre/movie/list", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Genres, nil
}

type Country struct {
	Code string `json:"iso_3166_1"`
	Name string `json:"name"`
}

type Details struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Tagline             string    `json:"tagline"`
	Overview            string    `json:"overview"`
	ReleaseDate         string    `json:"release_date"`
	Runtime             int       `json:"runtime"`
	PosterPath          string    `json:"poster_path"`
	BackdropPath        string    `json:"backdrop_path"`
	VoteAverage         float64   `json:"vote_average"`
	VoteCount           int       `json:"vote_count"`
	IMDbID              string    `json:"imdb_id"`
	Genres              []Genre   `json:"genres"`
	ProductionCountries []Country `json:"production_countries"`
}

func (c *Client) FetchDetails(ctx context.Context, id int64) (*Details, error) {
	var d Details
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

type CastMember struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
}

type CrewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

func (c *Client) FetchCredits(ctx context.Context, id int64) (*Credits, error) {
	var cr Credits
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/credits", id), nil, &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

// Director returns the first crew member credited as Director.
func (cr *Credits) Director() string {
	for _, m := range cr.Crew {
		if m.Job == "Director" {
			return m.Name
		}
	}
	return ""
}

func (cr *Credits) Writers() []string {
	var out []string
	for _, m := range cr.Crew {
		if m.Job == "Screenplay" {
			out = append(out, m.Name)
		}
	}
	return out
}

func (cr *Credits) TopCast(n int) []CastMember {
	return cr.Cast[:min(max(n, 0), len(cr.Cast))]
}

type Video struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

func (c *Client) FetchVideos(ctx context.Context, id int64) ([]Video, error) {
	var payload struct {
		Results []Video `json:"results"`
	}
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/videos", id), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// TrailerURL picks a YouTube trailer, falling back to any YouTube video.
func TrailerURL(videos []Video) string {
	fallback := ""
	for _, v := range videos {
		if v.Site != "YouTube" || v.Key == "" {
			continue
		}
		if v.Type == "Trailer" {
			return youtubeURL(v.Key)
		}
		if fallback == "" {
			fallback = youtubeURL(v.Key)
		}
	}
	return fallback
}

func youtubeURL(key string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(key)
}

// ImageURL joins an image base such as https://image.tmdb.org/t/p/w500 with
// a TMDB file path. Empty paths stay empty.
func ImageURL(base, path string) string {
	if path == "" || base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) get(ctx context.Context, path string, values url.Values, dst any) error {
	if values == nil {
		values = url.Values{}
	}
	if c.apiKey != "" {
		values.Set("api_key", c.apiKey)
	}
	endpoint := c.baseURL + path
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status, Path: path}
		if cerr := resp.Body.Close(); cerr != nil {
			return errors.Join(statusErr, cerr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		err = fmt.Errorf("decode tmdb %s: %w", path, err)
		if cerr := resp.Body.Close(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	return resp.Body.Close()
}

func (c *Client) applyAuth(req *http.Request) {
	if c.readToken == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.readToken)
}

func looksLikeJWT(token string) bool {
	parts := strings.Split(strings.TrimSpace(token), ".")
	return len(parts) == 3 && len(token) > 80
}
