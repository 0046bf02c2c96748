package search

import (
	"context"
	"errors"

	"animestream/catalog/internal/domain"
)

var (
	// ErrEmptyQuery is a validation error; no network call is made.
	ErrEmptyQuery = errors.New("query is required")
	// ErrCancelled means the issuing token was superseded. Never shown to users.
	ErrCancelled = errors.New("search cancelled")
	// ErrTransportFailure marks a failed primary attempt. It triggers the
	// fallback protocol and is not surfaced on its own.
	ErrTransportFailure = errors.New("primary provider failed")
	// ErrFallbackUnavailable is terminal for a search call.
	ErrFallbackUnavailable = errors.New("failed to fetch search results")
	// ErrMalformedResponse marks a single upstream item that cannot be
	// normalized. The item is dropped and the batch proceeds.
	ErrMalformedResponse  = errors.New("malformed upstream item")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrDetailsUnavailable = errors.New("details unavailable")
	ErrInvalidID          = errors.New("id is required")
)

// PrimarySearcher is the first-party search endpoint.
type PrimarySearcher interface {
	Info() domain.ProviderInfo
	Search(ctx context.Context, query string, page int) (domain.CatalogPage, error)
}

// CategoryLister serves the paginated listings of the first-party API.
type CategoryLister interface {
	ListCategory(ctx context.Context, category domain.Category, genre string, page int) (domain.CatalogPage, error)
}

// FallbackCatalog is the public catalog used when the primary fails.
type FallbackCatalog interface {
	Info() domain.ProviderInfo
	SearchTitles(ctx context.Context, query string, page, limit int) (domain.JikanPage, error)
	SearchByGenre(ctx context.Context, genreID, limit int) (domain.JikanPage, error)
}

// GenreSource loads the genre list of the fallback catalog.
type GenreSource interface {
	Genres(ctx context.Context) ([]domain.Genre, error)
}

// Expander normalizes a raw query and resolves abbreviations.
type Expander interface {
	Expand(raw string) string
}

// SearchContext carries the process-wide, read-mostly state a search needs.
type SearchContext struct {
	Genres        []domain.Genre
	Abbreviations Expander
}

// DetailFetcher loads the detail document of one first-party item.
type DetailFetcher interface {
	Details(ctx context.Context, id string) (domain.CatalogInfo, error)
}
