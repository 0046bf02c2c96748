// Package lifecycle tracks the current request of every logical stream
// (search box, category loader, paginated listing) and decides whether a
// completed response may still be applied.
//
// Each stream has at most one current Token. BeginStream supersedes the
// previous token of the same stream and cancels its context, which aborts
// any transport call issued with it. Commits must check IsCurrent right
// before issuing a call and again right before applying its result.
package lifecycle

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Token marks one attempt of a stream. It is opaque to callers apart from
// its context, which is cancelled once the token is superseded.
type Token struct {
	id     string
	stream string
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *Token) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

func (t *Token) Stream() string {
	if t == nil {
		return ""
	}
	return t.stream
}

// Context is cancelled when the token is superseded or its stream torn down.
func (t *Token) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

func (t *Token) Done() <-chan struct{} {
	return t.Context().Done()
}

// Invalidated reports whether the token has been superseded or cancelled.
func (t *Token) Invalidated() bool {
	return t != nil && t.ctx.Err() != nil
}

type entry struct {
	token    *Token
	resolved bool
}

type Tracker struct {
	parent  context.Context
	mu      sync.Mutex
	streams map[string]*entry
	onStale func(stream string)
}

type TrackerOption func(*Tracker)

// WithStaleHook registers a callback invoked whenever a token is superseded
// while its request is still unresolved.
func WithStaleHook(hook func(stream string)) TrackerOption {
	return func(t *Tracker) {
		t.onStale = hook
	}
}

// NewTracker derives every token context from parent, so cancelling parent
// tears down all streams at once.
func NewTracker(parent context.Context, opts ...TrackerOption) *Tracker {
	if parent == nil {
		parent = context.Background()
	}
	tracker := &Tracker{
		parent:  parent,
		streams: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// BeginStream issues a new current token for stream, invalidating and
// cancelling the previous one.
func (t *Tracker) BeginStream(stream string) *Token {
	ctx, cancel := context.WithCancel(t.parent)
	token := &Token{
		id:     uuid.NewString(),
		stream: stream,
		ctx:    ctx,
		cancel: cancel,
	}

	t.mu.Lock()
	previous := t.streams[stream]
	t.streams[stream] = &entry{token: token}
	t.mu.Unlock()

	if previous != nil {
		previous.token.cancel()
		if !previous.resolved && t.onStale != nil {
			t.onStale(stream)
		}
	}
	return token
}

func (t *Tracker) IsCurrent(stream string, token *Token) bool {
	if token == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.streams[stream]
	return current != nil && current.token == token && token.ctx.Err() == nil
}

// CancelStream invalidates the current token of stream, if any.
func (t *Tracker) CancelStream(stream string) {
	t.mu.Lock()
	current := t.streams[stream]
	delete(t.streams, stream)
	t.mu.Unlock()
	if current != nil {
		current.token.cancel()
	}
}

// CancelAll tears down every stream.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	streams := t.streams
	t.streams = make(map[string]*entry)
	t.mu.Unlock()
	for _, current := range streams {
		current.token.cancel()
	}
}

// Resolve marks token as finished. Resolving a superseded token is a no-op.
func (t *Tracker) Resolve(stream string, token *Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.streams[stream]
	if current != nil && current.token == token {
		current.resolved = true
	}
}

// Pending reports whether the current token of stream is still unresolved.
// Loading indicators are keyed to it.
func (t *Tracker) Pending(stream string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.streams[stream]
	return current != nil && !current.resolved && current.token.ctx.Err() == nil
}

// Streams lists the keys that currently hold a token.
func (t *Tracker) Streams() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.streams))
	for key := range t.streams {
		keys = append(keys, key)
	}
	return keys
}
