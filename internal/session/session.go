// Package session drives one user's browsing state: the live search box,
// the home page category rows, the paginated listing view and the opened
// card. Every change is published as an Event.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"animestream/catalog/internal/debounce"
	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/lifecycle"
	"animestream/catalog/internal/paginate"
	"animestream/catalog/internal/search"
)

const (
	StreamSearch  = "search"
	StreamListing = "listing"
	StreamDetails = "details"
)

const (
	MessageEmptyQuery   = "Please enter a search term"
	MessageSearchFailed = "Failed to fetch search results. Please try again."
	MessageListFailed   = "Failed to fetch anime data"
	MessageInfoFailed   = "Failed to load details"
)

// CategoryStream is the stream key of one home page row.
func CategoryStream(category domain.Category) string {
	return "category:" + string(category)
}

// Event is one committed state change of a stream.
type Event struct {
	Stream  string          `json:"stream"`
	View    paginate.View   `json:"view"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
	Query   string          `json:"query,omitempty"`
	Route   string          `json:"route,omitempty"`
	Details *domain.Details `json:"details,omitempty"`
}

// Searcher is the orchestration surface a session drives.
type Searcher interface {
	Search(ctx context.Context, sc search.SearchContext, query string, page int, token *lifecycle.Token) (domain.SearchPage, error)
	Category(ctx context.Context, category domain.Category, genre string, page int, token *lifecycle.Token) (domain.SearchPage, error)
	Details(ctx context.Context, id string, token *lifecycle.Token) (domain.Details, error)
}

// Selection is the card a user opened, carried explicitly to the detail view.
type Selection struct {
	Result domain.Result `json:"result"`
	From   string        `json:"from,omitempty"`
}

type listingRequest struct {
	route    string
	category domain.Category
	genre    string
	page     int
}

type Session struct {
	id         string
	searcher   Searcher
	contextFor func() search.SearchContext
	publish    func(Event)
	logger     *slog.Logger

	tracker *lifecycle.Tracker
	acc     *paginate.Accumulator
	cancel  context.CancelFunc

	searchDebounce  *debounce.Debouncer[string]
	listingDebounce *debounce.Debouncer[listingRequest]

	mu          sync.Mutex
	query       string
	genreFilter []string
	route       string
	selection   *Selection
	closed      bool
	wg          sync.WaitGroup

	// publishMu orders publish against Close: once muted is set no event
	// reaches publish, and Close waits out one already being delivered.
	publishMu sync.RWMutex
	muted     bool
}

type Option func(*options)

type options struct {
	searchDelay  time.Duration
	listingDelay time.Duration
	logger       *slog.Logger
	parent       context.Context
}

func WithDelays(searchDelay, listingDelay time.Duration) Option {
	return func(o *options) {
		if searchDelay >= 0 {
			o.searchDelay = searchDelay
		}
		if listingDelay >= 0 {
			o.listingDelay = listingDelay
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithParent ties every stream of the session to parent.
func WithParent(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.parent = ctx
		}
	}
}

// New creates a session. contextFor is consulted on every search so the
// genre list and abbreviation table are read fresh; publish must be safe
// for concurrent use.
func New(searcher Searcher, contextFor func() search.SearchContext, publish func(Event), opts ...Option) *Session {
	cfg := options{
		searchDelay:  debounce.KeystrokeDelay,
		listingDelay: debounce.NavigationDelay,
		logger:       slog.Default(),
		parent:       context.Background(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if publish == nil {
		publish = func(Event) {}
	}
	if contextFor == nil {
		contextFor = func() search.SearchContext { return search.SearchContext{} }
	}

	parent, cancel := context.WithCancel(cfg.parent)
	s := &Session{
		id:         uuid.NewString(),
		searcher:   searcher,
		contextFor: contextFor,
		publish:    publish,
		acc:        paginate.New(),
		cancel:     cancel,
	}
	s.logger = cfg.logger.With(slog.String("session", s.id))
	s.tracker = lifecycle.NewTracker(parent, lifecycle.WithStaleHook(func(stream string) {
		s.logger.Debug("request superseded", slog.String("stream", stream))
	}))
	s.searchDebounce = debounce.New(cfg.searchDelay, func(query string) {
		s.startSearch(query, 1)
	})
	s.listingDebounce = debounce.New(cfg.listingDelay, s.startListing)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// View returns the committed list of stream.
func (s *Session) View(stream string) paginate.View {
	return s.acc.Snapshot(stream)
}

// Loading reports whether stream has an unresolved request.
func (s *Session) Loading(stream string) bool {
	return s.tracker.Pending(stream)
}

// Type records a keystroke. The search runs once input has been quiet for
// the search delay. An empty box clears the list without a request.
func (s *Session) Type(query string) {
	if s.isClosed() {
		return
	}
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		s.searchDebounce.Cancel()
		s.tracker.CancelStream(StreamSearch)
		s.acc.Reset(StreamSearch)
		s.emit(Event{Stream: StreamSearch, View: s.acc.Snapshot(StreamSearch)})
		return
	}
	s.searchDebounce.Push(query)
}

// Submit searches immediately, bypassing the debounce.
func (s *Session) Submit(query string) {
	if s.isClosed() {
		return
	}
	s.searchDebounce.Cancel()
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()
	s.startSearch(query, 1)
}

// LoadMore fetches the next page of the current search. It reports false
// when there is nothing more to load or a request is already in flight.
func (s *Session) LoadMore() bool {
	if s.isClosed() || s.tracker.Pending(StreamSearch) {
		return false
	}
	view := s.acc.Snapshot(StreamSearch)
	if !view.HasMore || view.Page < 1 {
		return false
	}
	s.mu.Lock()
	query := s.query
	s.mu.Unlock()
	if strings.TrimSpace(query) == "" {
		return false
	}
	s.startSearch(query, view.Page+1)
	return true
}

// SetGenreFilter restricts search results to items tagged with any of
// genres and re-runs the first page. An empty list removes the filter.
func (s *Session) SetGenreFilter(genres []string) {
	if s.isClosed() {
		return
	}
	cleaned := make([]string, 0, len(genres))
	for _, genre := range genres {
		if value := strings.TrimSpace(genre); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	s.mu.Lock()
	s.genreFilter = cleaned
	query := s.query
	s.mu.Unlock()

	if strings.TrimSpace(query) != "" {
		s.searchDebounce.Cancel()
		s.startSearch(query, 1)
	}
}

// ToggleGenre adds genre to the filter or removes it when already present.
func (s *Session) ToggleGenre(genre string) []string {
	genre = strings.TrimSpace(genre)
	s.mu.Lock()
	next := make([]string, 0, len(s.genreFilter)+1)
	found := false
	for _, existing := range s.genreFilter {
		if existing == genre {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if !found && genre != "" {
		next = append(next, genre)
	}
	s.mu.Unlock()
	s.SetGenreFilter(next)
	return next
}

func (s *Session) GenreFilter() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.genreFilter...)
}

func (s *Session) startSearch(query string, page int) {
	if s.isClosed() {
		return
	}
	token := s.tracker.BeginStream(StreamSearch)
	s.emit(Event{Stream: StreamSearch, View: s.acc.Snapshot(StreamSearch), Loading: true, Query: query})

	s.goTrack(func() {
		result, err := s.searcher.Search(token.Context(), s.contextFor(), query, page, token)
		if err == nil {
			result.Items = s.filterByGenre(result.Items)
		}
		s.finish(StreamSearch, token, page, result, err, Event{Query: query})
	})
}

func (s *Session) filterByGenre(items []domain.Result) []domain.Result {
	filter := s.GenreFilter()
	if len(filter) == 0 {
		return items
	}
	filtered := make([]domain.Result, 0, len(items))
	for _, item := range items {
		if item.HasGenre(filter) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// finish commits the outcome of a paginated request when its token is
// still current. Page 1 failures clear the list; later failures keep it.
func (s *Session) finish(stream string, token *lifecycle.Token, page int, result domain.SearchPage, err error, base Event) {
	current := func() bool { return s.tracker.IsCurrent(stream, token) }
	base.Stream = stream

	switch {
	case err == nil:
		view, ok := s.acc.CommitIf(stream, current, result)
		if !ok {
			return
		}
		s.tracker.Resolve(stream, token)
		base.View = view
	case errors.Is(err, search.ErrCancelled):
		return
	default:
		if !current() {
			return
		}
		if page <= 1 {
			s.acc.ResetIf(stream, current)
		}
		s.tracker.Resolve(stream, token)
		base.View = s.acc.Snapshot(stream)
		base.Error = userMessage(stream, err)
		s.logger.Warn("request failed",
			slog.String("stream", stream),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
	}
	base.Loading = s.tracker.Pending(stream)
	s.emit(base)
}

// Browse opens page of a listing route such as "/movies" or "/genre/isekai".
// Route changes drop the current list at once; the fetch itself is
// debounced so rapid paging only loads the final page.
func (s *Session) Browse(route string, page int) error {
	if s.isClosed() {
		return nil
	}
	category, genre, err := ParseRoute(route)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}
	route = strings.TrimRight(strings.TrimSpace(route), "/")

	s.mu.Lock()
	changed := s.route != route
	s.route = route
	s.mu.Unlock()
	if changed {
		s.tracker.CancelStream(StreamListing)
		s.acc.Reset(StreamListing)
		s.emit(Event{Stream: StreamListing, View: s.acc.Snapshot(StreamListing), Loading: true, Route: route})
	}

	s.listingDebounce.Push(listingRequest{route: route, category: category, genre: genre, page: page})
	return nil
}

func (s *Session) startListing(req listingRequest) {
	if s.isClosed() {
		return
	}
	token := s.tracker.BeginStream(StreamListing)
	s.emit(Event{Stream: StreamListing, View: s.acc.Snapshot(StreamListing), Loading: true, Route: req.route})

	s.goTrack(func() {
		result, err := s.searcher.Category(token.Context(), req.category, req.genre, req.page, token)
		s.finish(StreamListing, token, req.page, result, err, Event{Route: req.route})
	})
}

// LoadCategories starts one independent loader per home page row. A
// failing row reports its own error and leaves the others untouched.
func (s *Session) LoadCategories(categories ...domain.Category) {
	if len(categories) == 0 {
		categories = domain.HomeCategories()
	}
	for _, category := range categories {
		if s.isClosed() {
			return
		}
		stream := CategoryStream(category)
		token := s.tracker.BeginStream(stream)
		s.emit(Event{Stream: stream, View: s.acc.Snapshot(stream), Loading: true})

		s.goTrack(func() {
			result, err := s.searcher.Category(token.Context(), category, "", 1, token)
			s.finish(stream, token, 1, result, err, Event{})
		})
	}
}

// Open selects a card and loads its details. The selection is kept as
// explicit session state for the detail view.
func (s *Session) Open(selection Selection) {
	if s.isClosed() {
		return
	}
	s.mu.Lock()
	selected := selection
	s.selection = &selected
	s.mu.Unlock()

	token := s.tracker.BeginStream(StreamDetails)
	preview := domain.Details{Result: selection.Result}
	s.emit(Event{Stream: StreamDetails, Loading: true, Details: &preview})

	s.goTrack(func() {
		details, err := s.searcher.Details(token.Context(), selection.Result.ID, token)
		if errors.Is(err, search.ErrCancelled) || !s.tracker.IsCurrent(StreamDetails, token) {
			return
		}
		s.tracker.Resolve(StreamDetails, token)
		event := Event{Stream: StreamDetails}
		if err != nil {
			event.Details = &preview
			event.Error = userMessage(StreamDetails, err)
		} else {
			event.Details = &details
		}
		s.emit(event)
	})
}

// Selected returns the opened card, if any.
func (s *Session) Selected() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

// Dismiss closes the detail view.
func (s *Session) Dismiss() {
	s.mu.Lock()
	s.selection = nil
	s.mu.Unlock()
	s.tracker.CancelStream(StreamDetails)
}

// Close tears down every stream and waits for in-flight requests to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.publishMu.Lock()
	s.muted = true
	s.publishMu.Unlock()

	s.searchDebounce.Stop()
	s.listingDebounce.Stop()
	s.tracker.CancelAll()
	s.cancel()
	s.wg.Wait()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// goTrack runs fn in a goroutine Close waits for. Nothing starts once the
// session is closed.
func (s *Session) goTrack(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// emit drops events once Close has started. publish runs under a read lock,
// so it must not call Close.
func (s *Session) emit(event Event) {
	s.publishMu.RLock()
	defer s.publishMu.RUnlock()
	if s.muted {
		return
	}
	s.publish(event)
}

// userMessage hides transport detail from the display layer.
func userMessage(stream string, err error) string {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return MessageEmptyQuery
	case stream == StreamSearch:
		return MessageSearchFailed
	case stream == StreamDetails:
		return MessageInfoFailed
	case errors.Is(err, search.ErrUnknownCategory):
		return fmt.Sprintf("%s: unknown listing", MessageListFailed)
	default:
		return MessageListFailed
	}
}
