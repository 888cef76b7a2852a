package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Retry policy constants.
const (
	// MaxAttempts bounds provider retries per turn.
	MaxAttempts = 3

	backoffBase = time.Second
	backoffCap  = 10 * time.Second
)

// Backoff returns the exponential backoff delay for an attempt (1-based),
// capped at 10 seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

// QueuedUtterance is one utterance awaiting replay.
type QueuedUtterance struct {
	SessionID string
	Utterance string
	QueuedAt  time.Time
}

// ReplayQueue holds utterances queued during provider unavailability and
// replays them in FIFO order once availability returns.
type ReplayQueue struct {
	mu    sync.Mutex
	queue []QueuedUtterance
}

// NewReplayQueue creates an empty replay queue.
func NewReplayQueue() *ReplayQueue {
	return &ReplayQueue{}
}

// Enqueue appends an utterance to the queue.
func (q *ReplayQueue) Enqueue(sessionID, utterance string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, QueuedUtterance{
		SessionID: sessionID,
		Utterance: utterance,
		QueuedAt:  time.Now(),
	})
}

// Len returns the number of queued utterances.
func (q *ReplayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Drain replays queued utterances in FIFO order through the given function.
// Replay stops at the first failure; the failed utterance and everything
// behind it stay queued for the next drain.
func (q *ReplayQueue) Drain(ctx context.Context, replay func(context.Context, QueuedUtterance) error) int {
	q.mu.Lock()
	pending := q.queue
	q.queue = nil
	q.mu.Unlock()

	replayed := 0
	for i, item := range pending {
		if err := replay(ctx, item); err != nil {
			slog.Warn("replay failed, requeueing remainder",
				"session_id", item.SessionID,
				"remaining", len(pending)-i,
				"error", err,
			)
			q.mu.Lock()
			q.queue = append(pending[i:], q.queue...)
			q.mu.Unlock()
			return replayed
		}
		replayed++
	}
	return replayed
}
