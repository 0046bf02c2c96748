package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/metrics"
)

var ErrGenresUnavailable = errors.New("genre catalog unavailable")

// GenreStore shares a loaded genre list across restarts and replicas.
type GenreStore interface {
	LoadGenres(ctx context.Context) ([]domain.Genre, bool, error)
	SaveGenres(ctx context.Context, genres []domain.Genre, ttl time.Duration) error
}

// GenreCatalog holds the fallback catalog's genre list. It is loaded once,
// best-effort; until then (or after a failed load) it is empty and the
// genre search path yields nothing.
type GenreCatalog struct {
	source GenreSource
	store  GenreStore
	ttl    time.Duration
	retry  RetryConfig
	logger *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	genres []domain.Genre
	loaded bool
}

type GenreCatalogOption func(*GenreCatalog)

func WithGenreStore(store GenreStore, ttl time.Duration) GenreCatalogOption {
	return func(c *GenreCatalog) {
		c.store = store
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithGenreRetry(cfg RetryConfig) GenreCatalogOption {
	return func(c *GenreCatalog) {
		c.retry = cfg
	}
}

func WithGenreLogger(logger *slog.Logger) GenreCatalogOption {
	return func(c *GenreCatalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewGenreCatalog(source GenreSource, opts ...GenreCatalogOption) *GenreCatalog {
	c := &GenreCatalog{
		source: source,
		ttl:    24 * time.Hour,
		retry:  DefaultRetryConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the genre list unless it is already loaded. Concurrent
// callers share one upstream request.
func (c *GenreCatalog) Load(ctx context.Context) ([]domain.Genre, error) {
	if c.Loaded() {
		return c.Snapshot(), nil
	}
	_, err, _ := c.group.Do("genres", func() (any, error) {
		if c.Loaded() {
			return nil, nil
		}
		return nil, c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

func (c *GenreCatalog) load(ctx context.Context) error {
	if c.store != nil {
		genres, ok, err := c.store.LoadGenres(ctx)
		switch {
		case err != nil:
			c.logger.Warn("genre store read failed", slog.String("error", err.Error()))
		case ok && len(genres) > 0:
			c.set(genres)
			metrics.GenreCatalogLoadsTotal.WithLabelValues("store").Inc()
			return nil
		}
	}

	if c.source == nil {
		metrics.GenreCatalogLoadsTotal.WithLabelValues("error").Inc()
		return ErrGenresUnavailable
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, wait time.Duration, err error) {
			c.logger.Warn("genre list fetch failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}
	}

	var genres []domain.Genre
	err := RetryWithBackoff(ctx, retry, func() error {
		var err error
		genres, err = c.source.Genres(ctx)
		return err
	})
	if err != nil {
		metrics.GenreCatalogLoadsTotal.WithLabelValues("error").Inc()
		return errors.Join(ErrGenresUnavailable, err)
	}

	genres = cleanGenres(genres)
	c.set(genres)
	metrics.GenreCatalogLoadsTotal.WithLabelValues("upstream").Inc()

	if c.store != nil && len(genres) > 0 {
		if err := c.store.SaveGenres(ctx, genres, c.ttl); err != nil {
			c.logger.Warn("genre store write failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *GenreCatalog) set(genres []domain.Genre) {
	c.mu.Lock()
	c.genres = append([]domain.Genre(nil), genres...)
	c.loaded = true
	c.mu.Unlock()
}

// Snapshot returns a copy that callers may keep in a SearchContext.
func (c *GenreCatalog) Snapshot() []domain.Genre {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Genre(nil), c.genres...)
}

func (c *GenreCatalog) Loaded() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func cleanGenres(genres []domain.Genre) []domain.Genre {
	out := make([]domain.Genre, 0, len(genres))
	seen := make(map[int]struct{}, len(genres))
	for _, genre := range genres {
		genre.Name = strings.TrimSpace(genre.Name)
		if genre.ID <= 0 || genre.Name == "" {
			continue
		}
		if _, ok := seen[genre.ID]; ok {
			continue
		}
		seen[genre.ID] = struct{}{}
		out = append(out, genre)
	}
	return out
}

// matchGenres returns the genres whose name contains query, compared
// case-insensitively.
func matchGenres(genres []domain.Genre, query string) []domain.Genre {
	needle := normalizeText(query)
	if needle == "" {
		return nil
	}
	var matched []domain.Genre
	for _, genre := range genres {
		if strings.Contains(normalizeText(genre.Name), needle) {
			matched = append(matched, genre)
		}
	}
	return matched
}
