package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TMDB refuses discover pages above 500.
const (
	MinPage = 1
	MaxPage = 500
)

// ClampPage bounds n to [MinPage, MaxPage].
func ClampPage(n int) int {
	return min(max(n, MinPage), MaxPage)
}

func nextPage(p int) int { return ClampPage(p + 1) }
func prevPage(p int) int { return ClampPage(p - 1) }

// ParsePage validates free-form page input. Blank input means the first page.
// Otherwise only ASCII digits are accepted; anything else is rejected so the
// caller can keep the current page. Digit strings out of range, including
// ones too large for int, are clamped.
func ParsePage(input string) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return MinPage, nil
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPage, input)
		}
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return MaxPage, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidPage, input)
	}
	return ClampPage(n), nil
}
