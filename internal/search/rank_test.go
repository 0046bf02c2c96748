package search

import (
	"reflect"
	"testing"

	"animestream/catalog/internal/domain"
)

func TestRankOrdersByMatchStrengthThenPopularity(t *testing.T) {
	items := []domain.Result{
		{ID: "contains", Title: "The Naruto Chronicles", Popularity: 900},
		{ID: "none", Title: "Bleach", Popularity: 10000},
		{ID: "prefix", Title: "Naruto Shippuden", Popularity: 50},
		{ID: "exact", Title: "NARUTO", Popularity: 1},
	}
	got := ids(Rank(items, "naruto"))
	want := []string{"exact", "prefix", "contains", "none"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRankFallsBackToPopularityWithoutTitleMatch(t *testing.T) {
	items := []domain.Result{
		{ID: "1", Title: "Xyz Adventure", Popularity: 10},
		{ID: "2", Title: "Another xyz tale", Popularity: 50},
	}
	got := ids(Rank(items, "xyz123"))
	if want := []string{"2", "1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRankIsStableForFullTies(t *testing.T) {
	items := []domain.Result{
		{ID: "a", Title: "One"},
		{ID: "b", Title: "Two"},
		{ID: "c", Title: "Three"},
	}
	got := ids(Rank(items, "zzz"))
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected input order %v, got %v", want, got)
	}
}

func TestRankIsIdempotentAndDoesNotMutateInput(t *testing.T) {
	items := []domain.Result{
		{ID: "1", Title: "Attack on Titan Final Season", Popularity: 3},
		{ID: "2", Title: "attack on titan", Popularity: 1},
		{ID: "3", Title: "Titan", Popularity: 99},
	}
	original := append([]domain.Result(nil), items...)

	once := Rank(items, "Attack on Titan")
	twice := Rank(once, "Attack on Titan")
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("rank is not idempotent: %v vs %v", ids(once), ids(twice))
	}
	if !reflect.DeepEqual(items, original) {
		t.Fatalf("input was mutated: %v", ids(items))
	}
	if ids(once)[0] != "2" {
		t.Fatalf("expected exact match first, got %v", ids(once))
	}
}
