package catalog

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

type SortMode string

const (
	SortPopularity       SortMode = "popularity"
	SortReleaseDate      SortMode = "release_date"
	SortRating           SortMode = "vote_average"
	SortPopularityRating SortMode = "popularity_and_rating"
)

// ParseSortMode accepts the wire names above; empty means popularity.
func ParseSortMode(raw string) (SortMode, error) {
	switch mode := SortMode(strings.TrimSpace(raw)); mode {
	case "":
		return SortPopularity, nil
	case SortPopularity, SortReleaseDate, SortRating, SortPopularityRating:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSort, raw)
	}
}

// Weights is the hybrid score weight pair. Popularity + Rating == 1.
type Weights struct {
	Popularity float64 `json:"popularity"`
	Rating     float64 `json:"rating"`
}

const defaultPopularityWeight = 0.7

func DefaultWeights() Weights {
	w, _ := NewWeights(defaultPopularityWeight)
	return w
}

// NewWeights builds a weight pair from the popularity share.
func NewWeights(popularity float64) (Weights, error) {
	if math.IsNaN(popularity) || popularity < 0 || popularity > 1 {
		return Weights{}, fmt.Errorf("%w: popularity=%v", ErrInvalidWeights, popularity)
	}
	return Weights{Popularity: popularity, Rating: 1 - popularity}, nil
}

// Sort selects the ordering of the view.
type Sort struct {
	Mode    SortMode `json:"mode"`
	Weights Weights  `json:"weights"`
}

func DefaultSort() Sort {
	return Sort{Mode: SortPopularity, Weights: DefaultWeights()}
}

// PageStats carries the popularity range of the fetched page.
type PageStats struct {
	MinPopularity float64
	MaxPopularity float64
}

// StatsOf computes the popularity range over the full page.
func StatsOf(page []Movie) PageStats {
	if len(page) == 0 {
		return PageStats{}
	}
	stats := PageStats{MinPopularity: page[0].Popularity, MaxPopularity: page[0].Popularity}
	for i := 1; i < len(page); i++ {
		stats.MinPopularity = min(stats.MinPopularity, page[i].Popularity)
		stats.MaxPopularity = max(stats.MaxPopularity, page[i].Popularity)
	}
	return stats
}

// Normalize maps p into [0, 1] over the page range. A flat range yields 0.
func (s PageStats) Normalize(p float64) float64 {
	span := s.MaxPopularity - s.MinPopularity
	if span <= 0 {
		return 0
	}
	return (p - s.MinPopularity) / span
}

// HybridScore combines normalised popularity and rating.
func HybridScore(m *Movie, stats PageStats, w Weights) float64 {
	return stats.Normalize(m.Popularity)*w.Popularity + (m.VoteAverage/10)*w.Rating
}

// Apply returns a sorted copy of movies. page is the full fetched page and
// only matters for the hybrid mode, where it fixes the popularity range.
// All modes sort descending and keep the relative order of ties.
func (s Sort) Apply(movies, page []Movie) []Movie {
	out := slices.Clone(movies)

	switch s.Mode {
	case SortReleaseDate:
		slices.SortStableFunc(out, func(a, b Movie) int {
			ta, okA := a.released()
			tb, okB := b.released()
			switch {
			case okA && okB:
				return tb.Compare(ta)
			case okA:
				return -1
			case okB:
				return 1
			default:
				return 0
			}
		})
	case SortRating:
		slices.SortStableFunc(out, func(a, b Movie) int {
			return cmp.Compare(b.VoteAverage, a.VoteAverage)
		})
	case SortPopularityRating:
		stats := StatsOf(page)
		type scored struct {
			movie Movie
			score float64
		}
		ranked := make([]scored, len(out))
		for i := range out {
			ranked[i] = scored{movie: out[i], score: HybridScore(&out[i], stats, s.Weights)}
		}
		slices.SortStableFunc(ranked, func(a, b scored) int {
			return cmp.Compare(b.score, a.score)
		})
		for i := range ranked {
			out[i] = ranked[i].movie
		}
	default:
		slices.SortStableFunc(out, func(a, b Movie) int {
			return cmp.Compare(b.Popularity, a.Popularity)
		})
	}
	return out
}
