package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/lifecycle"
	"animestream/catalog/internal/metrics"
)

const (
	// maxConcurrentGenreFetches bounds the genre path fan-out. A broad query
	// such as "a" matches most of the genre list.
	maxConcurrentGenreFetches = 4
	genreFetchLimit           = 10
	titleFetchLimit           = 20
)

var tracer = otel.Tracer("animestream/catalog/search")

// Orchestrator runs the primary-then-fallback search protocol. Providers
// are injected once; everything else arrives per call.
type Orchestrator struct {
	primary     PrimarySearcher
	lister      CategoryLister
	details     DetailFetcher
	fallback    FallbackCatalog
	logger      *slog.Logger
	genreFanOut int64

	health *providerBook
}

type OrchestratorOption func(*Orchestrator)

func WithCategoryLister(lister CategoryLister) OrchestratorOption {
	return func(o *Orchestrator) {
		o.lister = lister
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithGenreConcurrency(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.genreFanOut = int64(limit)
		}
	}
}

func NewOrchestrator(primary PrimarySearcher, fallback FallbackCatalog, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		primary:     primary,
		fallback:    fallback,
		logger:      slog.Default(),
		genreFanOut: maxConcurrentGenreFetches,
		health:      newProviderBook(),
	}
	if lister, ok := primary.(CategoryLister); ok {
		o.lister = lister
	}
	if details, ok := primary.(DetailFetcher); ok {
		o.details = details
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search resolves one page of results for query. The call is bound to token:
// once the token is superseded in-flight requests are aborted and the call
// returns ErrCancelled. A nil token binds the call to ctx alone.
func (o *Orchestrator) Search(ctx context.Context, sc SearchContext, query string, page int, token *lifecycle.Token) (domain.SearchPage, error) {
	if strings.TrimSpace(query) == "" {
		return domain.SearchPage{}, ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}

	runCtx, release := bindToken(ctx, token)
	defer release()

	expanded := expandQuery(sc.Abbreviations, query)
	runCtx, span := tracer.Start(runCtx, "search.Search", trace.WithAttributes(
		attribute.String("query", expanded),
		attribute.Int("page", page),
		attribute.String("stream", token.Stream()),
	))
	defer span.End()

	result, err := o.search(runCtx, sc, expanded, page, token)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int("result_count", len(result.Items)))
		metrics.SearchOutcomesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrCancelled):
		span.SetAttributes(attribute.Bool("cancelled", true))
		metrics.SearchOutcomesTotal.WithLabelValues("cancelled").Inc()
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.SearchOutcomesTotal.WithLabelValues("error").Inc()
	}
	return result, err
}

func (o *Orchestrator) search(ctx context.Context, sc SearchContext, expanded string, page int, token *lifecycle.Token) (domain.SearchPage, error) {
	if o.primary != nil {
		if stale(ctx, token) {
			return domain.SearchPage{}, ErrCancelled
		}
		startedAt := time.Now()
		response, err := o.primary.Search(ctx, expanded, page)
		o.health.observe(o.primary.Info().Name, expanded, err, time.Since(startedAt), time.Now())
		if stale(ctx, token) {
			return domain.SearchPage{}, ErrCancelled
		}
		if err == nil {
			items := Rank(Merge(NormalizeCatalogPage(response)), expanded)
			return domain.SearchPage{
				Items:   items,
				Page:    pageNumber(string(response.CurrentPage), page),
				HasMore: response.HasNextPage,
			}, nil
		}
		primaryErr := primaryFailure(err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(primaryErr)
		span.SetAttributes(attribute.String("primary_outcome", "transport_failure"))
		o.logger.Warn("primary search failed, using fallback",
			slog.String("query", expanded),
			slog.Int("page", page),
			slog.String("outcome", "transport_failure"),
			slog.String("error", primaryErr.Error()),
		)
	}
	return o.searchFallback(ctx, sc, expanded, page, token)
}

// primaryFailure classifies a primary error before the fallback takes over.
// Cancellation keeps its own identity.
func primaryFailure(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}

// searchFallback runs the genre path and the title path concurrently. Only a
// title path failure fails the call; genre fetches are best-effort.
func (o *Orchestrator) searchFallback(ctx context.Context, sc SearchContext, expanded string, page int, token *lifecycle.Token) (domain.SearchPage, error) {
	if o.fallback == nil {
		return domain.SearchPage{}, ErrFallbackUnavailable
	}
	metrics.FallbackInvocationsTotal.Inc()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("fallback", true))

	var (
		genreItems []domain.Result
		titleItems []domain.Result
		pagination domain.JikanPagination
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		genreItems = o.searchGenres(groupCtx, sc.Genres, expanded, token)
		return nil
	})
	group.Go(func() error {
		if stale(groupCtx, token) {
			return ErrCancelled
		}
		startedAt := time.Now()
		response, err := o.fallback.SearchTitles(groupCtx, expanded, page, titleFetchLimit)
		o.health.observe(o.fallback.Info().Name, expanded, err, time.Since(startedAt), time.Now())
		if err != nil {
			return err
		}
		titleItems = NormalizeJikanPage(response)
		pagination = response.Pagination
		return nil
	})

	err := group.Wait()
	if stale(ctx, token) {
		return domain.SearchPage{}, ErrCancelled
	}
	if err != nil {
		o.logger.Warn("fallback search failed",
			slog.String("query", expanded),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		return domain.SearchPage{}, fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
	}

	resultPage := pagination.CurrentPage
	if resultPage < 1 {
		resultPage = page
	}
	return domain.SearchPage{
		Items:   Rank(Merge(genreItems, titleItems), expanded),
		Page:    resultPage,
		HasMore: pagination.HasNextPage,
	}, nil
}

func (o *Orchestrator) searchGenres(ctx context.Context, genres []domain.Genre, expanded string, token *lifecycle.Token) []domain.Result {
	matched := matchGenres(genres, expanded)
	if len(matched) == 0 {
		return nil
	}

	perGenre := make([][]domain.Result, len(matched))
	sem := semaphore.NewWeighted(o.genreFanOut)
	group, groupCtx := errgroup.WithContext(ctx)
	for i, genre := range matched {
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if stale(groupCtx, token) {
				return nil
			}
			genrePage, err := o.fallback.SearchByGenre(groupCtx, genre.ID, genreFetchLimit)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					o.logger.Warn("genre search failed",
						slog.String("genre", genre.Name),
						slog.Int("genre_id", genre.ID),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			perGenre[i] = NormalizeJikanPage(genrePage)
			return nil
		})
	}
	_ = group.Wait()
	return Merge(perGenre...)
}

// Category lists one page of a first-party feed. Results keep the
// upstream order and are only de-duplicated.
func (o *Orchestrator) Category(ctx context.Context, category domain.Category, genre string, page int, token *lifecycle.Token) (domain.SearchPage, error) {
	if o.lister == nil {
		return domain.SearchPage{}, ErrUnknownCategory
	}
	if page < 1 {
		page = 1
	}

	runCtx, release := bindToken(ctx, token)
	defer release()

	runCtx, span := tracer.Start(runCtx, "search.Category", trace.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("genre", genre),
		attribute.Int("page", page),
	))
	defer span.End()

	if stale(runCtx, token) {
		return domain.SearchPage{}, ErrCancelled
	}
	startedAt := time.Now()
	response, err := o.lister.ListCategory(runCtx, category, genre, page)
	if o.primary != nil {
		o.health.observe(o.primary.Info().Name, string(category), err, time.Since(startedAt), time.Now())
	}
	if stale(runCtx, token) {
		return domain.SearchPage{}, ErrCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SearchPage{}, err
	}
	return domain.SearchPage{
		Items:   Merge(NormalizeCatalogPage(response)),
		Page:    pageNumber(string(response.CurrentPage), page),
		HasMore: response.HasNextPage,
	}, nil
}

// Details loads the expanded view of one item for the open card.
func (o *Orchestrator) Details(ctx context.Context, id string, token *lifecycle.Token) (domain.Details, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Details{}, ErrInvalidID
	}
	if o.details == nil {
		return domain.Details{}, ErrDetailsUnavailable
	}

	runCtx, release := bindToken(ctx, token)
	defer release()

	runCtx, span := tracer.Start(runCtx, "search.Details", trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	if stale(runCtx, token) {
		return domain.Details{}, ErrCancelled
	}
	startedAt := time.Now()
	info, err := o.details.Details(runCtx, id)
	if o.primary != nil {
		o.health.observe(o.primary.Info().Name, id, err, time.Since(startedAt), time.Now())
	}
	if stale(runCtx, token) {
		return domain.Details{}, ErrCancelled
	}
	if err != nil {
		span.RecordError(err)
		return domain.Details{}, fmt.Errorf("%w: %v", ErrDetailsUnavailable, err)
	}
	if strings.TrimSpace(string(info.ID)) == "" {
		info.ID = domain.FlexString(id)
	}
	result, err := normalizeCatalogItem(info.CatalogItem)
	if err != nil {
		dropMalformed(sourceCatalog, err)
		return domain.Details{}, err
	}
	return domain.Details{
		Result:        result,
		Description:   strings.TrimSpace(info.Description),
		Rating:        strings.TrimSpace(string(info.Rating)),
		Type:          strings.TrimSpace(info.Type),
		Status:        strings.TrimSpace(info.Status),
		TotalEpisodes: max(info.TotalEpisodes, 0),
	}, nil
}

// bindToken derives a context that ends when either ctx or the token ends.
func bindToken(ctx context.Context, token *lifecycle.Token) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	if token == nil {
		return runCtx, cancel
	}
	stop := context.AfterFunc(token.Context(), cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func stale(ctx context.Context, token *lifecycle.Token) bool {
	return ctx.Err() != nil || token.Invalidated()
}

func expandQuery(expander Expander, query string) string {
	if expander == nil {
		return normalizeText(query)
	}
	return expander.Expand(query)
}

func pageNumber(raw string, requested int) int {
	if value, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && value > 0 {
		return value
	}
	return requested
}
