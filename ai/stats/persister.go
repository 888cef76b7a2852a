// Package stats provides async persistence for usage records and session
// archives. The turn path only ever enqueues; database latency never blocks
// a learner's reply.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/tutorsense/ai/optimizer"
	"github.com/hrygo/tutorsense/ai/session"
	"github.com/hrygo/tutorsense/store"
)

const defaultQueueSize = 256

// op is one queued persistence operation. Exactly one field is set.
type op struct {
	usage   *store.UsageRecord
	archive *store.SessionArchive
}

// Persister handles async persistence of usage records and session archives.
type Persister struct {
	store  *store.Store
	queue  chan op
	wg     sync.WaitGroup
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
}

// NewPersister creates a new async persister and starts its worker.
func NewPersister(s *store.Store, queueSize int, logger *slog.Logger) *Persister {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Persister{
		store:  s,
		queue:  make(chan op, queueSize),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.processQueue()
	return p
}

// UsageSink returns a tracker sink that enqueues each record. The sink never
// blocks; records are dropped with a warning when the queue is full.
func (p *Persister) UsageSink() func(optimizer.UsageRecord) {
	return func(r optimizer.UsageRecord) {
		p.enqueue(op{usage: &store.UsageRecord{
			SessionID:    r.SessionID,
			Module:       r.Module,
			Tier:         string(r.Tier),
			InputTokens:  int32(r.InputTokens),
			OutputTokens: int32(r.OutputTokens),
			CostUSD:      r.CostUSD,
			CachedHit:    r.CachedHit,
			Day:          r.Timestamp.Format("2006-01-02"),
			CreatedTs:    r.Timestamp.Unix(),
		}})
	}
}

// ArchiveSession queues a finished session's summary for persistence.
func (p *Persister) ArchiveSession(_ context.Context, summary *session.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	p.enqueue(op{archive: &store.SessionArchive{
		SessionID: summary.SessionID,
		UID:       summary.UserID,
		Module:    summary.Module,
		Payload:   string(payload),
		StartedTs: summary.StartedAt.Unix(),
		EndedTs:   summary.EndedAt.Unix(),
		Messages:  int32(summary.Messages),
		EndReason: summary.EndReason,
	}})
	return nil
}

func (p *Persister) enqueue(o op) bool {
	select {
	case p.queue <- o:
		return true
	default:
		p.logger.Warn("persister queue full, dropping record")
		return false
	}
}

// processQueue persists records in the background.
func (p *Persister) processQueue() {
	defer p.wg.Done()

	for {
		select {
		case o := <-p.queue:
			p.save(o)
		case <-p.stopCh:
			p.drainQueue()
			return
		}
	}
}

func (p *Persister) save(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case o.usage != nil:
		_, err = p.store.CreateUsageRecord(ctx, o.usage)
	case o.archive != nil:
		_, err = p.store.CreateSessionArchive(ctx, o.archive)
	}
	if err != nil {
		p.logger.Error("persister save failed", "error", err)
	}
}

// drainQueue persists whatever is still queued during shutdown.
func (p *Persister) drainQueue() {
	for {
		select {
		case o := <-p.queue:
			p.save(o)
		default:
			return
		}
	}
}

// Stop drains the queue and stops the worker. Safe to call more than once.
func (p *Persister) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}
