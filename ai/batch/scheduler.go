// Package batch schedules non-interactive content generation: similar
// requests consolidate into one provider call per (type, module) group, and
// a periodic pre-generation pass refills the bulk cache during quiet periods.
package batch

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/store/catalog"
)

// Sink receives results as groups finish. It must not block.
type Sink func(Result)

// Config configures the batch scheduler.
type Config struct {
	// DrainInterval is how often pending requests are drained.
	DrainInterval time.Duration

	// PregenInterval is how often the pre-generation pass runs. Bundles
	// still fresh in the bulk cache are skipped, so the effective refill
	// cadence follows the bulk TTL.
	PregenInterval time.Duration

	// GroupConcurrency caps concurrent provider calls during a drain.
	GroupConcurrency int

	// MaxItemsPerCall caps the consolidated item count of one group call.
	MaxItemsPerCall int

	// PregenCount is the bundle size requested per (module, type) pair.
	PregenCount int

	Tier      llm.Tier
	MaxTokens int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		DrainInterval:    30 * time.Second,
		PregenInterval:   12 * time.Hour,
		GroupConcurrency: 3,
		MaxItemsPerCall:  20,
		PregenCount:      5,
		Tier:             llm.TierEconomy,
		MaxTokens:        800,
	}
}

// Scheduler batches content generation requests. High-priority requests wake
// the drain loop immediately; lower priorities wait for the next tick.
type Scheduler struct {
	cfg      Config
	provider llm.Service
	cache    *cache.ResponseCache
	catalog  *catalog.Catalog
	sink     Sink
	logger   *slog.Logger

	mu   sync.Mutex
	heap requestHeap
	seq  int64

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a batch scheduler.
func NewScheduler(cfg Config, provider llm.Service, responseCache *cache.ResponseCache, cat *catalog.Catalog, sink Sink, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.PregenInterval <= 0 {
		cfg.PregenInterval = def.PregenInterval
	}
	if cfg.GroupConcurrency <= 0 {
		cfg.GroupConcurrency = def.GroupConcurrency
	}
	if cfg.MaxItemsPerCall <= 0 {
		cfg.MaxItemsPerCall = def.MaxItemsPerCall
	}
	if cfg.PregenCount <= 0 {
		cfg.PregenCount = def.PregenCount
	}
	if cfg.Tier == "" {
		cfg.Tier = def.Tier
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = func(Result) {}
	}

	return &Scheduler{
		cfg:      cfg,
		provider: provider,
		cache:    responseCache,
		catalog:  cat,
		sink:     sink,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue adds a generation request and returns its request ID.
func (s *Scheduler) Enqueue(typ catalog.ContentType, module string, count int, priority Priority) (string, error) {
	if count <= 0 {
		return "", errors.New("count must be positive")
	}
	if module == "" {
		return "", errors.New("module is required")
	}

	req := &Request{
		ID:         uuid.NewString(),
		Type:       typ,
		Module:     module,
		Count:      count,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}

	s.mu.Lock()
	s.seq++
	req.seq = s.seq
	heap.Push(&s.heap, req)
	pending := s.heap.Len()
	s.mu.Unlock()

	if priority == PriorityHigh {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}

	s.logger.Debug("batch request enqueued",
		"request_id", req.ID,
		"type", typ,
		"module", module,
		"count", count,
		"priority", priority,
		"pending", pending,
	)
	return req.ID, nil
}

// Pending returns the number of queued requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Start runs the drain and pre-generation loops until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		drain := time.NewTicker(s.cfg.DrainInterval)
		defer drain.Stop()
		pregen := time.NewTicker(s.cfg.PregenInterval)
		defer pregen.Stop()

		for {
			select {
			case <-drain.C:
				s.DrainOnce(ctx)
			case <-s.wake:
				s.DrainOnce(ctx)
			case <-pregen.C:
				s.Pregenerate()
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("batch scheduler started",
		"drain_interval", s.cfg.DrainInterval,
		"pregen_interval", s.cfg.PregenInterval,
	)
}

// Stop halts the loops and drains whatever is still queued.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.DrainOnce(ctx)
}

// groupKey identifies one consolidated provider call.
type groupKey struct {
	typ    catalog.ContentType
	module string
}

// DrainOnce drains all pending requests. Requests sharing (type, module)
// consolidate into a single provider call; the reply is sliced back to the
// individual requests in enqueue order. Returns the number of requests served.
func (s *Scheduler) DrainOnce(ctx context.Context) int {
	s.mu.Lock()
	var pending []*Request
	for s.heap.Len() > 0 {
		pending = append(pending, heap.Pop(&s.heap).(*Request))
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	groups := make(map[groupKey][]*Request)
	var order []groupKey
	for _, req := range pending {
		key := groupKey{typ: req.Type, module: req.Module}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], req)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.GroupConcurrency)
	for _, key := range order {
		key := key
		reqs := groups[key]
		g.Go(func() error {
			s.serveGroup(gctx, key, reqs)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // group errors resolve into per-request results

	s.logger.Info("batch drain completed", "requests", len(pending), "groups", len(groups))
	return len(pending)
}

// serveGroup issues one consolidated call and slices the items back out.
// Requests keep their enqueue order; a short reply truncates the tail.
func (s *Scheduler) serveGroup(ctx context.Context, key groupKey, reqs []*Request) {
	total := 0
	for _, req := range reqs {
		total += req.Count
	}
	if total > s.cfg.MaxItemsPerCall {
		total = s.cfg.MaxItemsPerCall
	}

	items, err := s.generate(ctx, key.typ, key.module, total)
	if err != nil {
		s.logger.Warn("batch group failed", "type", key.typ, "module", key.module, "error", err)
		for _, req := range reqs {
			s.sink(Result{RequestID: req.ID, Type: req.Type, Module: req.Module, Err: err})
		}
		return
	}

	if s.cache != nil && len(items) > 0 {
		s.cache.Store(bundleKey(key.typ, key.module), key.module,
			strings.Join(items, "\n"), estimateItemTokens(items),
			cache.Bulk(), cache.WithTags("pregen", string(key.typ)))
	}

	for _, req := range reqs {
		n := req.Count
		if n > len(items) {
			n = len(items)
		}
		s.sink(Result{
			RequestID: req.ID,
			Type:      req.Type,
			Module:    req.Module,
			Items:     items[:n],
		})
		items = items[n:]
	}
}

// Pregenerate enqueues low-priority refill requests for every (module, type)
// pair whose bundle has expired from the bulk cache.
func (s *Scheduler) Pregenerate() int {
	enqueued := 0
	for _, module := range s.catalog.Modules() {
		for _, typ := range []catalog.ContentType{catalog.TypeQuiz, catalog.TypeFact, catalog.TypeJoke, catalog.TypeChallenge} {
			if s.cache != nil {
				if _, fresh := s.cache.Lookup(bundleKey(typ, module), module); fresh {
					continue
				}
			}
			if _, err := s.Enqueue(typ, module, s.cfg.PregenCount, PriorityLow); err == nil {
				enqueued++
			}
		}
	}
	if enqueued > 0 {
		s.logger.Info("pre-generation pass enqueued refills", "count", enqueued)
	}
	return enqueued
}

var itemPattern = regexp.MustCompile(`^\s*\d+[.)]\s+(.*\S)\s*$`)

// generate issues one consolidated provider call and parses the numbered list.
func (s *Scheduler) generate(ctx context.Context, typ catalog.ContentType, module string, count int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate %d short, child-friendly %s items for the %s module. Reply with a numbered list only, one item per line.",
		count, typ, module,
	)

	res, err := s.provider.Generate(ctx, &llm.GenerateRequest{
		Messages:     []llm.Message{llm.UserMessage(prompt)},
		Instructions: "You create fun tutoring content for children aged 6 to 10. Keep every item to one or two sentences.",
		Tier:         s.cfg.Tier,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  0.9,
	})
	if err != nil {
		return nil, errors.Wrap(err, "batch generation")
	}

	var items []string
	for _, line := range strings.Split(res.Text, "\n") {
		if m := itemPattern.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
		}
	}
	if len(items) == 0 && strings.TrimSpace(res.Text) != "" {
		// Providers occasionally ignore the list format; fall back to
		// non-empty lines.
		for _, line := range strings.Split(res.Text, "\n") {
			if t := strings.TrimSpace(line); t != "" {
				items = append(items, t)
			}
		}
	}
	if len(items) > count {
		items = items[:count]
	}
	return items, nil
}

func bundleKey(typ catalog.ContentType, module string) string {
	return fmt.Sprintf("pregen bundle %s %s", typ, module)
}

func estimateItemTokens(items []string) int {
	n := 0
	for _, item := range items {
		n += len(item)/4 + 1
	}
	return n
}
