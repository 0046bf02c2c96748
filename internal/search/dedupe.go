package search

import "animestream/catalog/internal/domain"

// Merge concatenates lists in argument order and collapses duplicates by ID.
// The last occurrence supplies the fields; the first occurrence fixes the
// position. Callers pass the authoritative source last.
func Merge(lists ...[]domain.Result) []domain.Result {
	total := 0
	for _, list := range lists {
		total += len(list)
	}
	if total == 0 {
		return []domain.Result{}
	}

	out := make([]domain.Result, 0, total)
	position := make(map[string]int, total)
	for _, list := range lists {
		for _, item := range list {
			if index, ok := position[item.ID]; ok {
				out[index] = item
				continue
			}
			position[item.ID] = len(out)
			out = append(out, item)
		}
	}
	return out
}
