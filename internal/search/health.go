package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/metrics"
)

// degradedAfter consecutive failures flips the availability gauge and the
// Degraded flag. Neither changes routing: the primary is attempted on every
// search.
const degradedAfter = 3

type providerStats struct {
	streak      int
	lastError   string
	lastSuccess time.Time
	lastFailure time.Time
	lastLatency time.Duration
	lastTimeout bool
	lastQuery   string
	requests    int64
	failures    int64
	timeouts    int64
}

// providerBook keeps per-upstream call statistics for /providers/health.
type providerBook struct {
	mu    sync.Mutex
	stats map[string]*providerStats
}

func newProviderBook() *providerBook {
	return &providerBook{stats: make(map[string]*providerStats)}
}

// observe records one upstream call. Cancelled calls were superseded by the
// user and say nothing about the provider.
func (b *providerBook) observe(provider, query string, err error, latency time.Duration, now time.Time) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if b == nil || name == "" || errors.Is(err, context.Canceled) {
		return
	}
	if latency > 0 {
		metrics.ProviderRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	timedOut := isTimeoutLikeError(err)
	metrics.ProviderRequestsTotal.WithLabelValues(name, callOutcome(err, timedOut)).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stats[name]
	if !ok {
		s = &providerStats{}
		b.stats[name] = s
	}
	s.requests++
	s.lastQuery = strings.TrimSpace(query)
	s.lastTimeout = timedOut
	if latency > 0 {
		s.lastLatency = latency
	}
	if timedOut {
		s.timeouts++
	}

	if err == nil {
		s.streak = 0
		s.lastError = ""
		s.lastSuccess = now
		metrics.ProviderAvailable.WithLabelValues(name).Set(1)
		return
	}
	s.streak++
	s.failures++
	s.lastFailure = now
	s.lastError = err.Error()
	if s.streak >= degradedAfter {
		metrics.ProviderAvailable.WithLabelValues(name).Set(0)
	}
}

// describe fills the runtime fields of one diagnostics row.
func (b *providerBook) describe(item *domain.ProviderDiagnostics) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stats[item.Name]
	if !ok {
		return
	}
	item.ConsecutiveFailures = s.streak
	item.Degraded = s.streak >= degradedAfter
	item.LastError = s.lastError
	item.LastSuccessAt = timePtr(s.lastSuccess)
	item.LastFailureAt = timePtr(s.lastFailure)
	item.LastLatencyMS = s.lastLatency.Milliseconds()
	item.LastTimeout = s.lastTimeout
	item.LastQuery = s.lastQuery
	item.TotalRequests = s.requests
	item.TotalFailures = s.failures
	item.TimeoutCount = s.timeouts
}

func callOutcome(err error, timedOut bool) string {
	switch {
	case err == nil:
		return "ok"
	case timedOut:
		return "timeout"
	default:
		return "error"
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "deadline exceeded")
}

// Providers lists the configured upstreams sorted by name.
func (o *Orchestrator) Providers() []domain.ProviderInfo {
	var items []domain.ProviderInfo
	for _, upstream := range []interface{ Info() domain.ProviderInfo }{o.primary, o.fallback} {
		if upstream == nil {
			continue
		}
		info := upstream.Info()
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" || slices.ContainsFunc(items, func(existing domain.ProviderInfo) bool { return existing.Name == info.Name }) {
			continue
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	slices.SortFunc(items, func(a, b domain.ProviderInfo) int { return strings.Compare(a.Name, b.Name) })
	return items
}

// ProviderDiagnostics reports call statistics for every configured upstream.
func (o *Orchestrator) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := o.Providers()
	if len(infos) == 0 {
		return nil
	}
	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		o.health.describe(&item)
		items = append(items, item)
	}
	return items
}
