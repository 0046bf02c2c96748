package search

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/metrics"
)

const (
	sourceCatalog = "catalog-api"
	sourceJikan   = "jikan"
)

var yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// normalizeCatalogItem maps one first-party item onto the canonical shape.
func normalizeCatalogItem(item domain.CatalogItem) (domain.Result, error) {
	id := strings.TrimSpace(string(item.ID))
	if id == "" {
		return domain.Result{}, fmt.Errorf("%w: missing id", ErrMalformedResponse)
	}
	title := strings.TrimSpace(item.Title.Value)
	if title == "" {
		return domain.Result{}, fmt.Errorf("%w: item %s has no title", ErrMalformedResponse, id)
	}

	popularity := 0
	if item.Popularity != nil && *item.Popularity > 0 {
		popularity = *item.Popularity
	}

	return domain.Result{
		ID:          id,
		Title:       title,
		ImageURL:    imageOrPlaceholder(item.Image),
		ReleaseYear: extractYear(string(item.ReleaseDate)),
		SourceURL:   strings.TrimSpace(item.URL),
		Genres:      uniqueGenres(item.Genres),
		Popularity:  popularity,
	}, nil
}

// normalizeJikanItem maps one fallback item. The large image wins over the
// regular one; members count stands in for popularity.
func normalizeJikanItem(item domain.JikanItem) (domain.Result, error) {
	if item.MalID <= 0 {
		return domain.Result{}, fmt.Errorf("%w: missing mal_id", ErrMalformedResponse)
	}
	id := strconv.Itoa(item.MalID)
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.Result{}, fmt.Errorf("%w: item %s has no title", ErrMalformedResponse, id)
	}

	image := item.Images.JPG.LargeImageURL
	if strings.TrimSpace(image) == "" {
		image = item.Images.JPG.ImageURL
	}

	year := ""
	if item.Aired.From != nil {
		year = extractYear(*item.Aired.From)
	}

	genres := make([]string, 0, len(item.Genres))
	for _, genre := range item.Genres {
		genres = append(genres, genre.Name)
	}

	popularity := 0
	if item.Members != nil && *item.Members > 0 {
		popularity = *item.Members
	}

	return domain.Result{
		ID:          id,
		Title:       title,
		ImageURL:    imageOrPlaceholder(image),
		ReleaseYear: year,
		SourceURL:   strings.TrimSpace(item.URL),
		Genres:      uniqueGenres(genres),
		Popularity:  popularity,
	}, nil
}

// NormalizeCatalogItems drops malformed items and keeps input order.
func NormalizeCatalogItems(items []domain.CatalogItem) []domain.Result {
	results := make([]domain.Result, 0, len(items))
	for _, item := range items {
		result, err := normalizeCatalogItem(item)
		if err != nil {
			dropMalformed(sourceCatalog, err)
			continue
		}
		results = append(results, result)
	}
	return results
}

func NormalizeJikanItems(items []domain.JikanItem) []domain.Result {
	results := make([]domain.Result, 0, len(items))
	for _, item := range items {
		result, err := normalizeJikanItem(item)
		if err != nil {
			dropMalformed(sourceJikan, err)
			continue
		}
		results = append(results, result)
	}
	return results
}

// NormalizeCatalogPage counts and drops the items the page could not decode,
// then normalizes the rest.
func NormalizeCatalogPage(page domain.CatalogPage) []domain.Result {
	for _, err := range page.Rejected {
		dropMalformed(sourceCatalog, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return NormalizeCatalogItems(page.Items)
}

func NormalizeJikanPage(page domain.JikanPage) []domain.Result {
	for _, err := range page.Rejected {
		dropMalformed(sourceJikan, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return NormalizeJikanItems(page.Items)
}

func dropMalformed(source string, err error) {
	metrics.MalformedItemsTotal.WithLabelValues(source).Inc()
	slog.Debug("dropping upstream item", slog.String("source", source), slog.String("error", err.Error()))
}

func imageOrPlaceholder(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return domain.PlaceholderImage
	}
	return value
}

// extractYear accepts a bare year, an ISO timestamp or a free-form date.
func extractYear(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if match := yearPattern.FindString(value); match != "" {
		return match
	}
	return ""
}

func uniqueGenres(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, genre := range genres {
		name := strings.TrimSpace(genre)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
