package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString decodes a JSON string or number into its textual form. The
// first-party API is not consistent about ids and release dates.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*f = FlexString(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	*f = FlexString(number.String())
	return nil
}

// FlexTitle accepts either a plain title or a localized title object.
type FlexTitle struct {
	Value string
}

func (f *FlexTitle) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		f.Value = ""
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &f.Value)
	}
	var localized struct {
		English       string `json:"english"`
		Romaji        string `json:"romaji"`
		UserPreferred string `json:"userPreferred"`
		Native        string `json:"native"`
	}
	if err := json.Unmarshal(trimmed, &localized); err != nil {
		return err
	}
	for _, candidate := range []string{localized.English, localized.Romaji, localized.UserPreferred, localized.Native} {
		if value := strings.TrimSpace(candidate); value != "" {
			f.Value = value
			return nil
		}
	}
	f.Value = ""
	return nil
}

func (f FlexTitle) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// CatalogItem is one entry of the first-party search and listing API.
type CatalogItem struct {
	ID          FlexString `json:"id"`
	Title       FlexTitle  `json:"title"`
	Image       string     `json:"image"`
	ReleaseDate FlexString `json:"releaseDate"`
	URL         string     `json:"url"`
	Genres      []string   `json:"genres"`
	Popularity  *int       `json:"popularity"`
}

// CatalogPage is one page of first-party results. Items that fail to decode
// are left out of Items and recorded in Rejected; the rest of the page
// survives.
type CatalogPage struct {
	Items       []CatalogItem `json:"results"`
	CurrentPage FlexString    `json:"currentPage"`
	HasNextPage bool          `json:"hasNextPage"`
	Rejected    []error       `json:"-"`
}

// UnmarshalJSON also accepts a bare item array, which some listing routes
// return instead of the paged envelope.
func (p *CatalogPage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*p = CatalogPage{}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		p.Items, p.Rejected = decodeEach[CatalogItem](raw)
		return nil
	}
	var envelope struct {
		Items       []json.RawMessage `json:"results"`
		CurrentPage FlexString        `json:"currentPage"`
		HasNextPage bool              `json:"hasNextPage"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	p.Items, p.Rejected = decodeEach[CatalogItem](envelope.Items)
	p.CurrentPage = envelope.CurrentPage
	p.HasNextPage = envelope.HasNextPage
	return nil
}

// decodeEach decodes array elements one at a time so a single mistyped
// field costs one item, not the page.
func decodeEach[T any](raw []json.RawMessage) ([]T, []error) {
	items := make([]T, 0, len(raw))
	var rejected []error
	for i, element := range raw {
		var item T
		if err := json.Unmarshal(element, &item); err != nil {
			rejected = append(rejected, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		items = append(items, item)
	}
	return items, rejected
}

// JikanItem is one anime entry of the public Jikan v4 API.
type JikanItem struct {
	MalID  int    `json:"mal_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Images struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Aired struct {
		From *string `json:"from"`
	} `json:"aired"`
	Genres  []JikanGenre `json:"genres"`
	Members *int         `json:"members"`
}

// JikanGenre is used both inside items and by the genre list endpoint.
type JikanGenre struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
}

type JikanPagination struct {
	HasNextPage bool `json:"has_next_page"`
	CurrentPage int  `json:"current_page"`
}

// JikanPage is one page of fallback results, decoded per item like
// CatalogPage.
type JikanPage struct {
	Items      []JikanItem     `json:"data"`
	Pagination JikanPagination `json:"pagination"`
	Rejected   []error         `json:"-"`
}

func (p *JikanPage) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Items      []json.RawMessage `json:"data"`
		Pagination JikanPagination   `json:"pagination"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*p = JikanPage{Pagination: envelope.Pagination}
	p.Items, p.Rejected = decodeEach[JikanItem](envelope.Items)
	return nil
}

// CatalogInfo is the first-party detail document for one item.
type CatalogInfo struct {
	CatalogItem
	Description   string     `json:"description"`
	Rating        FlexString `json:"rating"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	TotalEpisodes int        `json:"totalEpisodes"`
}
