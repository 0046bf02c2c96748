package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []string
	fired  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) fire(value string) {
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestKeystrokesWithinDelayFireOnceWithFinalValue(t *testing.T) {
	rec := newRecorder()
	debouncer := New(KeystrokeDelay, rec.fire)

	debouncer.Push("naru")
	time.Sleep(100 * time.Millisecond)
	debouncer.Push("naruto")

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	// Give a superseded timer the chance to misfire.
	time.Sleep(KeystrokeDelay)

	assert.Equal(t, []string{"naruto"}, rec.snapshot())
}

func TestPushAfterQuiescenceFiresAgain(t *testing.T) {
	rec := newRecorder()
	debouncer := New(20*time.Millisecond, rec.fire)

	debouncer.Push("a")
	<-rec.fired
	debouncer.Push("b")
	<-rec.fired

	assert.Equal(t, []string{"a", "b"}, rec.snapshot())
}

func TestFlushEmitsPendingImmediately(t *testing.T) {
	rec := newRecorder()
	debouncer := New(time.Hour, rec.fire)

	debouncer.Push("bleach")
	require.True(t, debouncer.Pending())
	debouncer.Flush()

	assert.Equal(t, []string{"bleach"}, rec.snapshot())
	assert.False(t, debouncer.Pending())

	debouncer.Flush()
	assert.Len(t, rec.snapshot(), 1)
}

func TestCancelDiscardsPendingEmission(t *testing.T) {
	rec := newRecorder()
	debouncer := New(20*time.Millisecond, rec.fire)

	debouncer.Push("x")
	debouncer.Cancel()
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, rec.snapshot())

	debouncer.Push("y")
	<-rec.fired
	assert.Equal(t, []string{"y"}, rec.snapshot())
}

func TestStopIgnoresLaterPushes(t *testing.T) {
	rec := newRecorder()
	debouncer := New(10*time.Millisecond, rec.fire)

	debouncer.Push("x")
	debouncer.Stop()
	debouncer.Push("y")
	time.Sleep(40 * time.Millisecond)

	assert.Empty(t, rec.snapshot())
}
