package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"animestream/catalog/internal/debounce"
	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/search"
	"animestream/catalog/internal/session"
)

// CatalogService is the search surface served over HTTP and driven by
// websocket sessions.
type CatalogService interface {
	session.Searcher
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type GenreService interface {
	Snapshot() []domain.Genre
	Loaded() bool
}

type AbbreviationService interface {
	search.Expander
	Add(short, full string) bool
	Entries() []search.Abbreviation
}

type Server struct {
	catalog       CatalogService
	genres        GenreService
	abbreviations AbbreviationService
	logger        *slog.Logger

	rateLimitRPS   float64
	rateLimitBurst int
	searchDelay    time.Duration
	listingDelay   time.Duration
	userAgent      string
	imageHosts     []string

	hub *wsHub
}

const (
	maxQueryLength  = 500
	defaultRPS      = 20
	defaultBurst    = 40
	defaultImageUA  = "animestream-catalog/1.0"
	maxAbbreviation = 200
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithGenres(genres GenreService) ServerOption {
	return func(s *Server) {
		s.genres = genres
	}
}

func WithAbbreviations(table AbbreviationService) ServerOption {
	return func(s *Server) {
		s.abbreviations = table
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateLimitRPS = rps
			s.rateLimitBurst = burst
		}
	}
}

// WithSessionDelays sets the debounce delays of websocket sessions.
func WithSessionDelays(searchDelay, listingDelay time.Duration) ServerOption {
	return func(s *Server) {
		s.searchDelay = searchDelay
		s.listingDelay = listingDelay
	}
}

func WithUserAgent(userAgent string) ServerOption {
	return func(s *Server) {
		if value := strings.TrimSpace(userAgent); value != "" {
			s.userAgent = value
		}
	}
}

// WithImageHosts restricts the image proxy to the given hosts and their
// subdomains. Without it any public host is allowed.
func WithImageHosts(hosts []string) ServerOption {
	return func(s *Server) {
		s.imageHosts = append([]string(nil), hosts...)
	}
}

func NewServer(catalog CatalogService, options ...ServerOption) *Server {
	server := &Server{
		catalog:        catalog,
		logger:         slog.Default(),
		rateLimitRPS:   defaultRPS,
		rateLimitBurst: defaultBurst,
		searchDelay:    debounce.KeystrokeDelay,
		listingDelay:   debounce.NavigationDelay,
		userAgent:      defaultImageUA,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	server.hub = newWSHub(server.logger)
	go server.hub.run()
	return server
}

// Close disconnects every websocket session.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/categories/", s.handleCategory)
	mux.HandleFunc("/listing", s.handleListing)
	mux.HandleFunc("/anime/", s.handleDetails)
	mux.HandleFunc("/genres", s.handleGenres)
	mux.HandleFunc("/abbreviations", s.handleAbbreviations)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/ws/session", s.handleSessionWS)
	mux.Handle("/image", newImageProxy(s.imageHosts, s.userAgent, s.logger))
	traced := otelhttp.NewHandler(instrumentMiddleware(s.logger, mux), "anime-catalog",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ws/session"
		}),
	)
	limited := rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst, traced)
	return recoveryMiddleware(s.logger, requestIDMiddleware(limited))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC(),
		"genresLoaded": s.genres != nil && s.genres.Loaded(),
	})
}

func (s *Server) searchContext() search.SearchContext {
	sc := search.SearchContext{}
	if s.genres != nil {
		sc.Genres = s.genres.Snapshot()
	}
	if s.abbreviations != nil {
		sc.Abbreviations = s.abbreviations
	}
	return sc
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", session.MessageEmptyQuery)
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}
	genres := parseCSV(r.URL.Query().Get("genres"))

	result, err := s.catalog.Search(r.Context(), s.searchContext(), query, page, nil)
	if err != nil {
		s.writeSearchError(w, r, "search request failed", err,
			slog.String("query", truncate(query, 80)),
			slog.Int("page", page),
		)
		return
	}
	if len(genres) > 0 {
		result.Items = filterGenres(result.Items, genres)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/categories/"), "/")
	category, ok := parseCategory(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown category")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}
	s.serveListing(w, r, category, strings.TrimSpace(r.URL.Query().Get("genre")), page, domain.CategoryTitle(category))
}

// handleListing serves a page of a listing route, e.g. /listing?route=/genre/isekai&page=2.
func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/listing" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	route := strings.TrimSpace(r.URL.Query().Get("route"))
	category, genre, err := session.ParseRoute(route)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown listing route")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}
	s.serveListing(w, r, category, genre, page, session.RouteTitle(route))
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, category domain.Category, genre string, page int, title string) {
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	result, err := s.catalog.Category(r.Context(), category, genre, page, nil)
	if err != nil {
		s.writeSearchError(w, r, "listing request failed", err,
			slog.String("category", string(category)),
			slog.String("genre", genre),
			slog.Int("page", page),
		)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title":       title,
		"results":     result.Items,
		"currentPage": result.Page,
		"hasNextPage": result.HasMore,
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/anime/"), "/")
	details, err := s.catalog.Details(r.Context(), id, nil)
	if err != nil {
		s.writeSearchError(w, r, "details request failed", err, slog.String("id", truncate(id, 80)))
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/genres" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items := []domain.Genre{}
	loaded := false
	if s.genres != nil {
		if snapshot := s.genres.Snapshot(); snapshot != nil {
			items = snapshot
		}
		loaded = s.genres.Loaded()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded": loaded,
		"items":  items,
	})
}

type abbreviationRequest struct {
	Short string `json:"short"`
	Full  string `json:"full"`
}

func (s *Server) handleAbbreviations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/abbreviations" {
		http.NotFound(w, r)
		return
	}
	if s.abbreviations == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "abbreviations are not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.abbreviations.Entries()})
	case http.MethodPost:
		var body abbreviationRequest
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if len(body.Short) > maxAbbreviation || len(body.Full) > maxAbbreviation {
			writeError(w, http.StatusBadRequest, "invalid_request", "abbreviation too long")
			return
		}
		if !s.abbreviations.Add(body.Short, body.Full) {
			writeError(w, http.StatusBadRequest, "invalid_request", "short and full are required")
			return
		}
		entry := search.Abbreviation{
			Short: strings.ToLower(strings.TrimSpace(body.Short)),
			Full:  s.abbreviations.Expand(body.Short),
		}
		s.logger.Info("abbreviation added", slog.String("short", entry.Short), slog.String("full", entry.Full))
		s.hub.Broadcast("abbreviation", entry)
		writeJSON(w, http.StatusCreated, entry)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.catalog.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.catalog.ProviderDiagnostics(),
	})
}

// writeSearchError maps orchestration errors onto HTTP responses. Upstream
// detail is logged, never returned.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, msg string, err error, attrs ...any) {
	if errors.Is(err, search.ErrCancelled) || errors.Is(r.Context().Err(), context.Canceled) {
		s.logger.Debug("request cancelled by client", attrs...)
		return
	}
	s.logger.Warn(msg, append(attrs, slog.String("error", err.Error()))...)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", session.MessageEmptyQuery)
	case errors.Is(err, search.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrUnknownCategory):
		writeError(w, http.StatusNotFound, "not_found", "unknown category")
	case errors.Is(err, search.ErrFallbackUnavailable):
		writeError(w, http.StatusBadGateway, "upstream_error", session.MessageSearchFailed)
	case errors.Is(err, search.ErrDetailsUnavailable):
		writeError(w, http.StatusBadGateway, "upstream_error", session.MessageInfoFailed)
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", session.MessageListFailed)
	}
}

func parseCategory(raw string) (domain.Category, bool) {
	category := domain.Category(strings.ToLower(strings.TrimSpace(raw)))
	switch category {
	case domain.CategoryRecent, domain.CategoryTop, domain.CategoryAction, domain.CategoryComedy,
		domain.CategoryRomance, domain.CategoryFantasy, domain.CategoryMovies, domain.CategoryAnimeList,
		domain.CategoryMostPopular, domain.CategoryGenre:
		return category, true
	default:
		return "", false
	}
}

// filterGenres keeps items tagged with any of names, compared case-insensitively.
func filterGenres(items []domain.Result, names []string) []domain.Result {
	filtered := make([]domain.Result, 0, len(items))
	for _, item := range items {
		for _, genre := range item.Genres {
			if containsFold(names, genre) {
				filtered = append(filtered, item)
				break
			}
		}
	}
	return filtered
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
