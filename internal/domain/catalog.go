package domain

import "time"

// PlaceholderImage is used for items whose source carries no image.
// Image processing recognizes it and skips it.
const PlaceholderImage = "/api/placeholder/250/375"

// Result is the source-agnostic representation of a catalog item.
// Identity is ID; two results with the same ID are the same entity.
type Result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	ImageURL    string   `json:"image"`
	ReleaseYear string   `json:"releaseDate,omitempty"`
	SourceURL   string   `json:"url,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Popularity  int      `json:"popularity"`
}

// HasGenre reports whether the result is tagged with any of names.
func (r Result) HasGenre(names []string) bool {
	for _, genre := range r.Genres {
		for _, name := range names {
			if genre == name {
				return true
			}
		}
	}
	return false
}

type SearchPage struct {
	Items   []Result `json:"results"`
	Page    int      `json:"currentPage"`
	HasMore bool     `json:"hasNextPage"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Degraded            bool       `json:"degraded"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// Category is a home-page or listing feed served by the first-party API.
type Category string

const (
	CategoryRecent      Category = "recent"
	CategoryTop         Category = "top"
	CategoryAction      Category = "action"
	CategoryComedy      Category = "comedy"
	CategoryRomance     Category = "romance"
	CategoryFantasy     Category = "fantasy"
	CategoryMovies      Category = "movies"
	CategoryAnimeList   Category = "anime-list"
	CategoryMostPopular Category = "most-popular"

	// CategoryGenre lists one genre; the genre slug is passed alongside.
	CategoryGenre Category = "genre"
)

// HomeCategories are loaded together by the home view, one stream each.
func HomeCategories() []Category {
	return []Category{
		CategoryRecent,
		CategoryTop,
		CategoryAction,
		CategoryComedy,
		CategoryRomance,
		CategoryFantasy,
	}
}

func CategoryTitle(category Category) string {
	switch category {
	case CategoryRecent:
		return "Recently added"
	case CategoryTop:
		return "Trending Now"
	case CategoryAction:
		return "Popular in Action"
	case CategoryComedy:
		return "Popular in Comedy"
	case CategoryRomance:
		return "Popular in Romance"
	case CategoryFantasy:
		return "Popular in Fantasy"
	case CategoryMovies:
		return "Recent Anime Movies"
	case CategoryAnimeList:
		return "List of Anime"
	case CategoryMostPopular:
		return "Most Popular Anime"
	case CategoryGenre:
		return "Explore various genres of anime"
	default:
		return string(category)
	}
}

// Details is the expanded view of one result, shown when it is opened.
type Details struct {
	Result
	Description   string `json:"description,omitempty"`
	Rating        string `json:"rating,omitempty"`
	Type          string `json:"type,omitempty"`
	Status        string `json:"status,omitempty"`
	TotalEpisodes int    `json:"totalEpisodes,omitempty"`
}
