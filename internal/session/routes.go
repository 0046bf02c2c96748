package session

import (
	"fmt"
	"strings"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/search"
)

var listingRoutes = map[string]domain.Category{
	"/movies":       domain.CategoryMovies,
	"/anime-list":   domain.CategoryAnimeList,
	"/most-popular": domain.CategoryMostPopular,
	"/top-airing":   domain.CategoryTop,
	"/genre":        domain.CategoryGenre,
}

// ParseRoute maps a listing route onto its feed. "/genre/{slug}" lists one
// genre; "/genre" alone is the genre overview.
func ParseRoute(route string) (domain.Category, string, error) {
	path := strings.TrimRight(strings.TrimSpace(route), "/")
	if category, ok := listingRoutes[path]; ok {
		return category, "", nil
	}
	if slug, ok := strings.CutPrefix(path, "/genre/"); ok && slug != "" && !strings.Contains(slug, "/") {
		return domain.CategoryGenre, slug, nil
	}
	return "", "", fmt.Errorf("%w: route %q", search.ErrUnknownCategory, route)
}

// RouteTitle is the heading shown above a listing.
func RouteTitle(route string) string {
	category, slug, err := ParseRoute(route)
	if err != nil {
		return ""
	}
	if category == domain.CategoryTop {
		return "Top Airing Anime"
	}
	if slug != "" {
		return "Genre: " + slug
	}
	return domain.CategoryTitle(category)
}
