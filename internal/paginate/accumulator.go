// Package paginate owns the visible result list of every stream and is its
// only writer.
package paginate

import (
	"strings"
	"sync"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/metrics"
	"animestream/catalog/internal/search"
)

// View is a committed snapshot of one stream.
type View struct {
	Items   []domain.Result `json:"results"`
	Page    int             `json:"currentPage"`
	HasMore bool            `json:"hasNextPage"`
}

type stream struct {
	mu   sync.Mutex
	view View
}

// Accumulator keeps one list per stream key. Writes to the same key are
// serialized; different keys never contend.
type Accumulator struct {
	mu      sync.Mutex
	streams map[string]*stream
}

func New() *Accumulator {
	return &Accumulator{streams: make(map[string]*stream)}
}

func (a *Accumulator) stream(key string) *stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[key]
	if !ok {
		s = &stream{}
		a.streams[key] = s
	}
	return s
}

// Reset empties the list of key; the next Append starts from scratch.
func (a *Accumulator) Reset(key string) {
	s := a.stream(key)
	s.mu.Lock()
	s.view = View{}
	s.mu.Unlock()
}

// Append merges page into the list of key. Page 1 replaces the list; later
// pages are merged behind it, with the page's fields winning on a shared id.
func (a *Accumulator) Append(key string, page domain.SearchPage) View {
	s := a.stream(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(page)
	return s.view.clone()
}

// CommitIf applies page only while gate holds. The gate runs under the
// stream lock, so a token superseded before the check can never write.
func (a *Accumulator) CommitIf(key string, gate func() bool, page domain.SearchPage) (View, bool) {
	s := a.stream(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if gate != nil && !gate() {
		metrics.StaleCommitsTotal.WithLabelValues(streamKind(key)).Inc()
		return s.view.clone(), false
	}
	s.apply(page)
	return s.view.clone(), true
}

// ResetIf empties the list of key only while gate holds.
func (a *Accumulator) ResetIf(key string, gate func() bool) bool {
	s := a.stream(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if gate != nil && !gate() {
		metrics.StaleCommitsTotal.WithLabelValues(streamKind(key)).Inc()
		return false
	}
	s.view = View{}
	return true
}

func (s *stream) apply(page domain.SearchPage) {
	pageNumber := page.Page
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageNumber == 1 {
		s.view.Items = search.Merge(page.Items)
	} else {
		s.view.Items = search.Merge(s.view.Items, page.Items)
	}
	s.view.Page = pageNumber
	s.view.HasMore = page.HasMore
}

// Snapshot returns a copy of the committed list of key.
func (a *Accumulator) Snapshot(key string) View {
	a.mu.Lock()
	s, ok := a.streams[key]
	a.mu.Unlock()
	if !ok {
		return View{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Clear drops key entirely.
func (a *Accumulator) Clear(key string) {
	a.mu.Lock()
	delete(a.streams, key)
	a.mu.Unlock()
}

func (v View) clone() View {
	out := v
	if v.Items != nil {
		out.Items = append([]domain.Result(nil), v.Items...)
	}
	return out
}

// streamKind keeps metric labels bounded: "category:action" -> "category".
func streamKind(key string) string {
	if kind, _, ok := strings.Cut(key, ":"); ok {
		return kind
	}
	return key
}
