package session

import (
	"context"
	"time"
)

const defaultCleanupInterval = time.Minute

// CleanupJob periodically ends sessions that have exceeded the idle timeout
// and replays queued utterances once the provider answers again. Idle
// sessions end through the normal End path, so their memory still
// consolidates and their summaries still archive.
type CleanupJob struct {
	orch     *Orchestrator
	idle     time.Duration
	interval time.Duration
	done     chan struct{}
}

// NewCleanupJob creates a cleanup job for the orchestrator.
func NewCleanupJob(orch *Orchestrator, idle, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &CleanupJob{
		orch:     orch,
		idle:     idle,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or the context ends.
func (j *CleanupJob) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunOnce performs a single sweep: idle sessions end with reason
// "inactivity", expired cache entries are dropped, then any queued
// utterances replay.
func (j *CleanupJob) RunOnce(ctx context.Context) int {
	now := j.orch.now()

	// The per-session lock is never taken while the registry lock is held;
	// end() acquires them in the opposite order.
	j.orch.mu.RLock()
	sessions := make([]*Session, 0, len(j.orch.sessions))
	for _, s := range j.orch.sessions {
		sessions = append(sessions, s)
	}
	j.orch.mu.RUnlock()

	var expired []string
	for _, s := range sessions {
		s.mu.Lock()
		id := s.ID
		idle := now.Sub(s.LastInteractionAt)
		s.mu.Unlock()
		if idle >= j.idle {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		if _, err := j.orch.end(ctx, id, "inactivity"); err != nil {
			j.orch.deps.Logger.Warn("idle session cleanup failed", "session_id", id, "error", err)
		}
	}

	if removed := j.orch.deps.Cache.CleanupExpired(); removed > 0 {
		j.orch.deps.Logger.Debug("expired cache entries removed", "count", removed)
	}

	if j.orch.deps.Replay.Len() > 0 {
		j.orch.ReplayPending(ctx)
	}
	return len(expired)
}

// Stop halts the cleanup loop.
func (j *CleanupJob) Stop() {
	close(j.done)
}
