package search

import (
	"encoding/json"
	"errors"
	"testing"

	"animestream/catalog/internal/domain"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestNormalizeCatalogItemFillsPlaceholderAndYear(t *testing.T) {
	result, err := normalizeCatalogItem(domain.CatalogItem{
		ID:          "spy-x-family",
		Title:       domain.FlexTitle{Value: "  Spy x Family "},
		ReleaseDate: "2022-04-09",
		Genres:      []string{"Action", "Comedy", "action", " "},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.Title != "Spy x Family" {
		t.Fatalf("unexpected title %q", result.Title)
	}
	if result.ImageURL != domain.PlaceholderImage {
		t.Fatalf("expected placeholder image, got %q", result.ImageURL)
	}
	if result.ReleaseYear != "2022" {
		t.Fatalf("expected year 2022, got %q", result.ReleaseYear)
	}
	if len(result.Genres) != 2 || result.Genres[0] != "Action" || result.Genres[1] != "Comedy" {
		t.Fatalf("unexpected genres %#v", result.Genres)
	}
	if result.Popularity != 0 {
		t.Fatalf("expected popularity 0, got %d", result.Popularity)
	}
}

func TestNormalizeCatalogItemRejectsMissingIdentity(t *testing.T) {
	if _, err := normalizeCatalogItem(domain.CatalogItem{Title: domain.FlexTitle{Value: "x"}}); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if _, err := normalizeCatalogItem(domain.CatalogItem{ID: "1"}); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for missing title, got %v", err)
	}
}

func TestNormalizeCatalogItemClampsNegativePopularity(t *testing.T) {
	result, err := normalizeCatalogItem(domain.CatalogItem{ID: "1", Title: domain.FlexTitle{Value: "A"}, Popularity: intPtr(-4)})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.Popularity != 0 {
		t.Fatalf("expected clamped popularity, got %d", result.Popularity)
	}
}

func TestNormalizeJikanItemPrefersLargeImage(t *testing.T) {
	item := domain.JikanItem{MalID: 40748, Title: "Jujutsu Kaisen", Members: intPtr(3000000)}
	item.Images.JPG.ImageURL = "https://cdn/small.jpg"
	item.Images.JPG.LargeImageURL = "https://cdn/large.jpg"
	item.Aired.From = strPtr("2020-10-03T00:00:00+00:00")
	item.Genres = []domain.JikanGenre{{MalID: 1, Name: "Action"}}

	result, err := normalizeJikanItem(item)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.ID != "40748" {
		t.Fatalf("unexpected id %q", result.ID)
	}
	if result.ImageURL != "https://cdn/large.jpg" {
		t.Fatalf("expected large image, got %q", result.ImageURL)
	}
	if result.ReleaseYear != "2020" {
		t.Fatalf("expected year 2020, got %q", result.ReleaseYear)
	}
	if result.Popularity != 3000000 {
		t.Fatalf("unexpected popularity %d", result.Popularity)
	}
	if len(result.Genres) != 1 || result.Genres[0] != "Action" {
		t.Fatalf("unexpected genres %#v", result.Genres)
	}
}

func TestNormalizeJikanItemFallsBackToRegularImage(t *testing.T) {
	item := domain.JikanItem{MalID: 1, Title: "Cowboy Bebop"}
	item.Images.JPG.ImageURL = "https://cdn/small.jpg"
	result, err := normalizeJikanItem(item)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.ImageURL != "https://cdn/small.jpg" {
		t.Fatalf("unexpected image %q", result.ImageURL)
	}
	if result.ReleaseYear != "" {
		t.Fatalf("expected absent year, got %q", result.ReleaseYear)
	}
}

func TestNormalizeItemsDropsMalformedAndKeepsOrder(t *testing.T) {
	results := NormalizeCatalogItems([]domain.CatalogItem{
		{ID: "b", Title: domain.FlexTitle{Value: "B"}},
		{ID: "", Title: domain.FlexTitle{Value: "broken"}},
		{ID: "a", Title: domain.FlexTitle{Value: "A"}},
	})
	if len(results) != 2 || results[0].ID != "b" || results[1].ID != "a" {
		t.Fatalf("unexpected results %#v", results)
	}

	jikan := NormalizeJikanItems([]domain.JikanItem{{MalID: 0, Title: "x"}, {MalID: 7, Title: "Seven"}})
	if len(jikan) != 1 || jikan[0].ID != "7" {
		t.Fatalf("unexpected jikan results %#v", jikan)
	}
}

func TestNormalizePagesSkipItemsThatFailedToDecode(t *testing.T) {
	var catalog domain.CatalogPage
	if err := json.Unmarshal([]byte(`{"results":[{"id":"a","title":"Alpha","popularity":100},{"id":"b","title":"Beta","popularity":12.5}]}`), &catalog); err != nil {
		t.Fatalf("decode catalog page: %v", err)
	}
	results := NormalizeCatalogPage(catalog)
	if len(results) != 1 || results[0].ID != "a" || results[0].Popularity != 100 {
		t.Fatalf("unexpected catalog results %#v", results)
	}

	var bare domain.CatalogPage
	if err := json.Unmarshal([]byte(`[{"id":"x","title":"X","genres":"Action"},{"id":"y","title":"Y"}]`), &bare); err != nil {
		t.Fatalf("decode bare page: %v", err)
	}
	if results := NormalizeCatalogPage(bare); len(results) != 1 || results[0].ID != "y" {
		t.Fatalf("unexpected bare results %#v", results)
	}

	var jikan domain.JikanPage
	if err := json.Unmarshal([]byte(`{"data":[{"mal_id":"seven","title":"Seven"},{"mal_id":8,"title":"Eight","members":"n/a"},{"mal_id":9,"title":"Nine"}]}`), &jikan); err != nil {
		t.Fatalf("decode jikan page: %v", err)
	}
	if results := NormalizeJikanPage(jikan); len(results) != 1 || results[0].ID != "9" {
		t.Fatalf("unexpected jikan results %#v", results)
	}
}

func TestPageDecodingStillRejectsBrokenEnvelope(t *testing.T) {
	var page domain.CatalogPage
	if err := json.Unmarshal([]byte(`{"results":"nope"}`), &page); err == nil {
		t.Fatal("expected an error for a non-array results field")
	}
}
