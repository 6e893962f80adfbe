package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// CategoryAll disables the category predicate.
const CategoryAll = "All"

// Category is a UI-level genre filter.
type Category struct {
	Name    string `json:"name"`
	GenreID int    `json:"genre_id,omitempty"`
}

var categories = []Category{
	{Name: CategoryAll},
	{Name: "Action", GenreID: 28},
	{Name: "Comedy", GenreID: 35},
	{Name: "Drama", GenreID: 18},
	{Name: "Horror", GenreID: 27},
	{Name: "Romance", GenreID: 10749},
}

// Categories lists the selectable categories in display order.
func Categories() []Category {
	return slices.Clone(categories)
}

// GenreID resolves a category name (case-insensitive) to its TMDB genre id.
// "All" and the empty string resolve to 0.
func GenreID(category string) (int, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return 0, nil
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, category) {
			return c.GenreID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

// Filter narrows a page of movies. Zero values disable a predicate.
type Filter struct {
	Category  string   `json:"category"`
	Search    string   `json:"search"`
	Year      *int     `json:"year,omitempty"`
	MinRating *float64 `json:"min_rating,omitempty"`
	Language  string   `json:"language"`
}

// Normalize trims the text fields and validates the category. A year of
// zero or below is dropped.
func (f Filter) Normalize() (Filter, error) {
	if f.Year != nil && *f.Year <= 0 {
		f.Year = nil
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Language = strings.ToLower(strings.TrimSpace(f.Language))
	f.Category = strings.TrimSpace(f.Category)
	if f.Category == "" {
		f.Category = CategoryAll
	}
	if _, err := GenreID(f.Category); err != nil {
		return Filter{}, err
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, f.Category) {
			f.Category = c.Name
		}
	}
	return f, nil
}

type predicate func(m *Movie) bool

// predicates returns the active predicates in their fixed order:
// category, year, minimum rating, language, title search.
func (f Filter) predicates() []predicate {
	var out []predicate

	if genre, err := GenreID(f.Category); err == nil && genre != 0 {
		out = append(out, func(m *Movie) bool {
			return slices.Contains(m.GenreIDs, genre)
		})
	}
	if f.Year != nil && *f.Year > 0 {
		year := *f.Year
		out = append(out, func(m *Movie) bool {
			return m.Year() == year
		})
	}
	if f.MinRating != nil {
		minRating := *f.MinRating
		out = append(out, func(m *Movie) bool {
			return m.VoteAverage >= minRating
		})
	}
	if lang := strings.TrimSpace(f.Language); lang != "" {
		out = append(out, func(m *Movie) bool {
			return strings.EqualFold(m.OriginalLanguage, lang)
		})
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		out = append(out, func(m *Movie) bool {
			return strings.Contains(strings.ToLower(m.Title), term)
		})
	}
	return out
}

// Apply returns a new slice with the movies matching every active predicate.
// The input is never modified.
func (f Filter) Apply(movies []Movie) []Movie {
	preds := f.predicates()
	out := make([]Movie, 0, len(movies))
	for i := range movies {
		if matchesAll(&movies[i], preds) {
			out = append(out, movies[i])
		}
	}
	return out
}

func matchesAll(m *Movie, preds []predicate) bool {
	for _, p := range preds {
		if !p(m) {
			return false
		}
	}
	return true
}
