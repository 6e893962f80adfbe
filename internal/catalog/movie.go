// Package catalog holds the movie catalog view model: the fetched page,
// the filter and sort pipeline, the page cursor and the user's persisted
// collections.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidPage     = errors.New("invalid page")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidWeights  = errors.New("weights must be within [0, 1]")
	ErrUnknownSort     = errors.New("unknown sort mode")
	ErrEmptyComment    = errors.New("comment text is empty")
	ErrStaleFetch      = errors.New("fetch result superseded by a newer request")
	ErrNotFound        = errors.New("movie not found")
)

// Movie is a single title as returned by the discover endpoint.
type Movie struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	ReleaseDate      string  `json:"release_date"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
}

// Year returns the release year, or 0 when the date is missing or malformed.
func (m *Movie) Year() int {
	t, ok := m.released()
	if !ok {
		return 0
	}
	return t.Year()
}

func (m *Movie) released() (time.Time, bool) {
	if m.ReleaseDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, m.ReleaseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Source supplies pages of movies. The TMDB client implements it.
type Source interface {
	DiscoverPage(ctx context.Context, page int) ([]Movie, error)
}

// Storage is a durable string key-value store.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
