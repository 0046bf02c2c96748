package search

import (
	"sort"
	"strings"

	"animestream/catalog/internal/domain"
)

// Rank orders results for a query: exact title match, then title prefix,
// then title substring, then descending popularity. The sort is stable and
// returns a new slice.
func Rank(items []domain.Result, query string) []domain.Result {
	ranked := make([]domain.Result, len(items))
	copy(ranked, items)
	if len(ranked) < 2 {
		return ranked
	}

	needle := normalizeText(query)
	keys := make(map[string]matchKey, len(ranked))
	keyFor := func(item domain.Result) matchKey {
		if key, ok := keys[item.Title]; ok {
			return key
		}
		key := titleMatch(normalizeText(item.Title), needle)
		keys[item.Title] = key
		return key
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		left, right := keyFor(ranked[i]), keyFor(ranked[j])
		if left != right {
			return left.beats(right)
		}
		return popularity(ranked[i]) > popularity(ranked[j])
	})
	return ranked
}

type matchKey struct {
	exact    bool
	prefix   bool
	contains bool
}

func (k matchKey) beats(other matchKey) bool {
	if k.exact != other.exact {
		return k.exact
	}
	if k.prefix != other.prefix {
		return k.prefix
	}
	return k.contains && !other.contains
}

func titleMatch(title, needle string) matchKey {
	if needle == "" {
		return matchKey{}
	}
	return matchKey{
		exact:    title == needle,
		prefix:   strings.HasPrefix(title, needle),
		contains: strings.Contains(title, needle),
	}
}

func popularity(item domain.Result) int {
	if item.Popularity < 0 {
		return 0
	}
	return item.Popularity
}
