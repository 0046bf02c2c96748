package jikan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/providers/common"
)

const (
	providerName     = "jikan"
	defaultBaseURL   = "https://api.jikan.moe/v4"
	defaultUserAgent = "animestream-catalog/1.0"
	// Jikan allows three requests per second per client.
	defaultRequestsPerSecond = 3
)

type Config struct {
	BaseURL           string
	UserAgent         string
	Client            *http.Client
	RequestsPerSecond float64
}

// Provider is the public fallback catalog. All calls share one limiter so
// a fallback search with several genre matches stays under the quota.
type Provider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

type genreList struct {
	Data []domain.JikanGenre `json:"data"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	return &Provider{
		client:    client,
		baseURL:   baseURL,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Jikan (MyAnimeList)",
		Kind:    "fallback",
		Enabled: true,
	}
}

// SearchTitles runs a free-text anime search.
func (p *Provider) SearchTitles(ctx context.Context, query string, page, limit int) (domain.JikanPage, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(query))
	params.Set("page", strconv.Itoa(max(page, 1)))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response domain.JikanPage
	if err := p.get(ctx, "/anime", params, &response); err != nil {
		return domain.JikanPage{}, err
	}
	return response, nil
}

// SearchByGenre lists anime tagged with one genre.
func (p *Provider) SearchByGenre(ctx context.Context, genreID, limit int) (domain.JikanPage, error) {
	params := url.Values{}
	params.Set("genres", strconv.Itoa(genreID))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response domain.JikanPage
	if err := p.get(ctx, "/anime", params, &response); err != nil {
		return domain.JikanPage{}, err
	}
	return response, nil
}

// Genres returns the anime genre list.
func (p *Provider) Genres(ctx context.Context) ([]domain.Genre, error) {
	var response genreList
	if err := p.get(ctx, "/genres/anime", nil, &response); err != nil {
		return nil, err
	}
	genres := make([]domain.Genre, 0, len(response.Data))
	for _, item := range response.Data {
		genres = append(genres, domain.Genre{ID: item.MalID, Name: item.Name})
	}
	return genres, nil
}

func (p *Provider) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("jikan rate limit wait: %w", err)
	}
	endpoint := p.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return common.GetJSON(ctx, p.client, common.Request{
		Provider:  providerName,
		URL:       endpoint,
		UserAgent: p.userAgent,
	}, out)
}
