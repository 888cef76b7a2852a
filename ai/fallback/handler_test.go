package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/store/catalog"
)

func newTestHandler() *Handler {
	return NewHandler(NewBank(catalog.Default(), 42))
}

func TestHandleRateLimit(t *testing.T) {
	h := newTestHandler()

	decision := h.Handle(apiError(429), HandleContext{SessionID: "s1", Module: "math"})
	assert.Equal(t, KindRateLimit, decision.Kind)
	assert.True(t, decision.ShouldRetry)
	assert.Equal(t, 60, decision.WaitTimeSeconds)
	assert.True(t, decision.QueueForReplay)
	require.NotNil(t, decision.Fallback)
	assert.Equal(t, "math", decision.Fallback.Module)
	assert.False(t, decision.NotifyGuardian)
}

func TestHandleAuthFailure(t *testing.T) {
	h := newTestHandler()

	decision := h.Handle(apiError(401), HandleContext{Module: "math"})
	assert.False(t, decision.ShouldRetry)
	assert.Nil(t, decision.Fallback, "auth failures serve no fallback")
	assert.True(t, decision.NotifyGuardian)
}

func TestHandleServiceMaintenance(t *testing.T) {
	h := newTestHandler()

	decision := h.Handle(apiError(503), HandleContext{Module: "science"})
	assert.True(t, decision.ShouldRetry)
	assert.Equal(t, 300, decision.WaitTimeSeconds)
	assert.True(t, decision.QueueForReplay)
	assert.True(t, decision.NotifyGuardian)
	require.NotNil(t, decision.Fallback)
}

func TestHandleEmptyBank(t *testing.T) {
	h := NewHandler(NewBank(nil, 1))

	decision := h.Handle(apiError(429), HandleContext{Module: "math"})
	assert.Nil(t, decision.Fallback, "empty bank yields no fallback payload")
	assert.True(t, decision.ShouldRetry)
}

func TestBankPickDeterministicSequence(t *testing.T) {
	first := NewBank(catalog.Default(), 7)
	second := NewBank(catalog.Default(), 7)

	for i := 0; i < 10; i++ {
		a, okA := first.Pick("science")
		b, okB := second.Pick("science")
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, a.ID, b.ID, "same seed must yield the same sequence")
	}

	_, ok := first.Pick("geography")
	assert.False(t, ok)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 2*time.Second, Backoff(2))
	assert.Equal(t, 4*time.Second, Backoff(3))
	assert.Equal(t, 10*time.Second, Backoff(6), "backoff caps at 10s")
	assert.Equal(t, time.Second, Backoff(0))
}

func TestReplayQueueFIFO(t *testing.T) {
	q := NewReplayQueue()
	q.Enqueue("s1", "first")
	q.Enqueue("s1", "second")
	q.Enqueue("s2", "third")
	require.Equal(t, 3, q.Len())

	var order []string
	n := q.Drain(context.Background(), func(_ context.Context, item QueuedUtterance) error {
		order = append(order, item.Utterance)
		return nil
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Zero(t, q.Len())
}

func TestReplayQueueStopsOnFailure(t *testing.T) {
	q := NewReplayQueue()
	q.Enqueue("s1", "ok")
	q.Enqueue("s1", "fails")
	q.Enqueue("s1", "behind")

	n := q.Drain(context.Background(), func(_ context.Context, item QueuedUtterance) error {
		if item.Utterance == "fails" {
			return assert.AnError
		}
		return nil
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, q.Len(), "failed item and everything behind it stay queued")
}
