package catalogapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/providers/common"
	"animestream/catalog/internal/search"
)

const (
	providerName     = "catalog-api"
	defaultUserAgent = "animestream-catalog/1.0"
	// recentEpisodeType selects subbed releases on the recent episodes feed.
	recentEpisodeType = "1"
)

var ErrNotConfigured = errors.New("catalog api base url is not configured")

type Config struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Provider talks to the first-party catalog API: search, listings and
// per-item details.
type Provider struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		client:    client,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Catalog API",
		Kind:    "primary",
		Enabled: p.baseURL != "",
	}
}

func (p *Provider) Search(ctx context.Context, query string, page int) (domain.CatalogPage, error) {
	return p.getPage(ctx, "search", strings.TrimSpace(query), strconv.Itoa(max(page, 1)))
}

func (p *Provider) ListCategory(ctx context.Context, category domain.Category, genre string, page int) (domain.CatalogPage, error) {
	segments, err := categoryPath(category, genre, max(page, 1))
	if err != nil {
		return domain.CatalogPage{}, err
	}
	return p.getPage(ctx, segments...)
}

func (p *Provider) Details(ctx context.Context, id string) (domain.CatalogInfo, error) {
	if p.baseURL == "" {
		return domain.CatalogInfo{}, ErrNotConfigured
	}
	endpoint, err := common.JoinPath(p.baseURL, "anime-info", strings.TrimSpace(id))
	if err != nil {
		return domain.CatalogInfo{}, err
	}
	var info domain.CatalogInfo
	if err := common.GetJSON(ctx, p.client, p.request(endpoint), &info); err != nil {
		return domain.CatalogInfo{}, err
	}
	info.Title.Value = common.CleanHTMLText(info.Title.Value)
	info.Description = common.CleanSynopsis(info.Description)
	return info, nil
}

func (p *Provider) getPage(ctx context.Context, segments ...string) (domain.CatalogPage, error) {
	if p.baseURL == "" {
		return domain.CatalogPage{}, ErrNotConfigured
	}
	endpoint, err := common.JoinPath(p.baseURL, segments...)
	if err != nil {
		return domain.CatalogPage{}, err
	}
	var page domain.CatalogPage
	if err := common.GetJSON(ctx, p.client, p.request(endpoint), &page); err != nil {
		return domain.CatalogPage{}, err
	}
	for i := range page.Items {
		page.Items[i].Title.Value = common.CleanHTMLText(page.Items[i].Title.Value)
	}
	return page, nil
}

func (p *Provider) request(endpoint string) common.Request {
	return common.Request{Provider: providerName, URL: endpoint, UserAgent: p.userAgent}
}

// categoryPath maps a feed onto its route below the API base.
func categoryPath(category domain.Category, genre string, page int) ([]string, error) {
	pageText := strconv.Itoa(page)
	switch category {
	case domain.CategoryRecent:
		return []string{"recent-episodes", pageText, recentEpisodeType}, nil
	case domain.CategoryTop:
		return []string{"top-airing", pageText}, nil
	case domain.CategoryMovies:
		return []string{"movies", pageText}, nil
	case domain.CategoryAnimeList:
		return []string{"anime-list", pageText}, nil
	case domain.CategoryMostPopular:
		return []string{"most-popular", pageText}, nil
	case domain.CategoryAction, domain.CategoryComedy, domain.CategoryRomance, domain.CategoryFantasy:
		return []string{"genre-search", string(category), pageText}, nil
	case domain.CategoryGenre:
		slug := strings.TrimSpace(genre)
		if slug == "" {
			// The genre overview feed.
			return []string{"genre", pageText}, nil
		}
		return []string{"genre-search", slug, pageText}, nil
	default:
		return nil, fmt.Errorf("%w: %s", search.ErrUnknownCategory, category)
	}
}
