package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginStreamSupersedesPreviousToken(t *testing.T) {
	tracker := NewTracker(context.Background())

	first := tracker.BeginStream("search")
	require.True(t, tracker.IsCurrent("search", first))

	second := tracker.BeginStream("search")
	assert.False(t, tracker.IsCurrent("search", first))
	assert.True(t, tracker.IsCurrent("search", second))
	assert.True(t, first.Invalidated())
	assert.ErrorIs(t, first.Context().Err(), context.Canceled)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, "search", second.Stream())
}

func TestStreamsAreIndependent(t *testing.T) {
	tracker := NewTracker(context.Background())

	action := tracker.BeginStream("category:action")
	comedy := tracker.BeginStream("category:comedy")
	tracker.BeginStream("category:comedy")

	assert.True(t, tracker.IsCurrent("category:action", action))
	assert.False(t, tracker.IsCurrent("category:comedy", comedy))
	assert.False(t, tracker.IsCurrent("category:comedy", action))
}

func TestCancelStreamInvalidatesCurrent(t *testing.T) {
	tracker := NewTracker(context.Background())
	token := tracker.BeginStream("page:3")

	tracker.CancelStream("page:3")

	assert.False(t, tracker.IsCurrent("page:3", token))
	assert.False(t, tracker.Pending("page:3"))
	select {
	case <-token.Done():
	default:
		t.Fatal("expected token context to be cancelled")
	}
}

func TestCancelAllTearsDownEveryStream(t *testing.T) {
	tracker := NewTracker(context.Background())
	a := tracker.BeginStream("a")
	b := tracker.BeginStream("b")

	tracker.CancelAll()

	assert.True(t, a.Invalidated())
	assert.True(t, b.Invalidated())
	assert.Empty(t, tracker.Streams())
}

func TestParentCancellationInvalidatesTokens(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	tracker := NewTracker(parent)
	token := tracker.BeginStream("search")

	cancel()

	assert.False(t, tracker.IsCurrent("search", token))
}

func TestPendingFollowsResolve(t *testing.T) {
	tracker := NewTracker(context.Background())
	assert.False(t, tracker.Pending("search"))

	token := tracker.BeginStream("search")
	assert.True(t, tracker.Pending("search"))

	stale := token
	fresh := tracker.BeginStream("search")
	tracker.Resolve("search", stale)
	assert.True(t, tracker.Pending("search"), "resolving a stale token must not clear the indicator")

	tracker.Resolve("search", fresh)
	assert.False(t, tracker.Pending("search"))
}

func TestStaleHookFiresOnlyForUnresolvedTokens(t *testing.T) {
	var stale atomic.Int32
	tracker := NewTracker(context.Background(), WithStaleHook(func(string) { stale.Add(1) }))

	first := tracker.BeginStream("search")
	tracker.Resolve("search", first)
	tracker.BeginStream("search")
	assert.Equal(t, int32(0), stale.Load())

	tracker.BeginStream("search")
	assert.Equal(t, int32(1), stale.Load())
}

func TestNilTokenIsNeverCurrent(t *testing.T) {
	tracker := NewTracker(context.Background())
	tracker.BeginStream("search")
	assert.False(t, tracker.IsCurrent("search", nil))

	var token *Token
	assert.Equal(t, "", token.ID())
	assert.NoError(t, token.Context().Err())
}

func TestConcurrentBeginStreamLeavesExactlyOneCurrent(t *testing.T) {
	tracker := NewTracker(context.Background())
	tokens := make([]*Token, 64)

	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			tokens[index] = tracker.BeginStream("search")
		}(i)
	}
	wg.Wait()

	current := 0
	for _, token := range tokens {
		if tracker.IsCurrent("search", token) {
			current++
		}
	}
	assert.Equal(t, 1, current)
}
