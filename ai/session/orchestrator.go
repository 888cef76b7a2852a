package session

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/ai/fallback"
	"github.com/hrygo/tutorsense/ai/format"
	"github.com/hrygo/tutorsense/ai/internal/strutil"
	"github.com/hrygo/tutorsense/ai/memory"
	"github.com/hrygo/tutorsense/ai/metrics"
	"github.com/hrygo/tutorsense/ai/observability/logging"
	"github.com/hrygo/tutorsense/ai/optimizer"
	"github.com/hrygo/tutorsense/store/catalog"
)

var (
	// ErrSessionNotFound is returned for an unknown or already archived session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a turn arrives after End.
	ErrSessionEnded = errors.New("session already ended")
)

const (
	defaultGreeting = "Hi! Ready to learn something new today?"
	offlineApology  = "My thinking cap slipped off for a moment! Let's try that again in a little bit."
	breakSuggestion = "We've been at this a while. How about a quick stretch break? I'll be right here."

	baseTurnXP      = 5
	excellingBonus  = 3
	notableWordLen  = 7
	progressPerTurn = 5.0

	// maxTrackedQuestions bounds the per-session question log fed into the
	// long-term profile's recurring questions.
	maxTrackedQuestions = 10
)

// GuardianEvent is an out-of-band alert for the guardian channel.
type GuardianEvent struct {
	Kind      string // cost_alert, provider_down, auth_failure
	SessionID string
	UserID    string
	Module    string
	Message   string
	At        time.Time
}

// GuardianNotifier delivers guardian events. Implementations must not block;
// delivery is fire-and-forget.
type GuardianNotifier interface {
	NotifyAsync(event GuardianEvent)
}

// Archiver persists a finished session's summary.
type Archiver interface {
	ArchiveSession(ctx context.Context, summary *Summary) error
}

// Config holds the orchestrator pacing knobs.
type Config struct {
	BreakAfter     time.Duration // continuous time before a break is suggested
	BreakAfterMsgs int           // message count before a break is suggested
	MaxTokens      int           // per-reply provider token cap
	Temperature    float32
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		BreakAfter:     20 * time.Minute,
		BreakAfterMsgs: 15,
		MaxTokens:      400,
		Temperature:    0.7,
	}
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Consolidator *memory.Consolidator
	Optimizer    *optimizer.Optimizer
	Tracker      *optimizer.Tracker
	Cache        *cache.ResponseCache
	Provider     llm.Service
	Failures     *fallback.Handler
	Replay       *fallback.ReplayQueue
	Notifier     GuardianNotifier            // optional
	Archiver     Archiver                    // optional
	Exporter     *metrics.PrometheusExporter // optional
	Catalog      *catalog.Catalog
	Logger       *slog.Logger
}

// Orchestrator drives every tutoring turn through the full pipeline:
// classification, pacing, context building, prompt optimization, cache,
// provider, fallback and usage tracking. Turns within one session are
// serialized; different sessions proceed concurrently.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session

	alertMu  sync.Mutex
	alertDay string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a session orchestrator.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.BreakAfter <= 0 {
		cfg.BreakAfter = def.BreakAfter
	}
	if cfg.BreakAfterMsgs <= 0 {
		cfg.BreakAfterMsgs = def.BreakAfterMsgs
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if deps.Replay == nil {
		deps.Replay = fallback.NewReplayQueue()
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartResult is the outcome of opening a session.
type StartResult struct {
	SessionID string
	Greeting  string
}

// Start opens a new session and returns a personalized greeting. Memory
// failures degrade to a default greeting rather than failing the start.
func (o *Orchestrator) Start(ctx context.Context, userID, module string) (*StartResult, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if module == "" {
		return nil, errors.New("module is required")
	}

	s := newSession(shortuuid.New(), userID, module, o.now())
	logger := logging.WithSession(o.deps.Logger, s.ID, userID, module)

	greeting := defaultGreeting
	if pctx, err := o.deps.Consolidator.BuildContext(ctx, userID); err != nil {
		logger.Warn("personal context unavailable, using default greeting", "error", err)
	} else if pctx.Greeting != "" {
		greeting = pctx.Greeting
	}

	s.State = StateActive
	s.history = append(s.history, llm.AssistantMessage(greeting))

	o.mu.Lock()
	o.sessions[s.ID] = s
	active := len(o.sessions)
	o.mu.Unlock()
	o.deps.Exporter.SetActiveSessions(active)

	logger.Info("session started", "active_sessions", active)
	return &StartResult{SessionID: s.ID, Greeting: greeting}, nil
}

// TurnResult is the outcome of one tutoring turn.
type TurnResult struct {
	Reply          string
	XPDelta        int
	CacheHit       bool
	FuzzyHit       bool
	Fallback       bool
	BreakSuggested bool // set only on the turn the suggestion fires
	Tier           llm.Tier
	CostUSD        float64
}

// Ingest processes one learner utterance end to end and returns the reply.
// Provider failures never surface as errors; they resolve to fallback content.
func (o *Orchestrator) Ingest(ctx context.Context, sessionID, utterance string) (*TurnResult, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateActive {
		return nil, ErrSessionEnded
	}

	started := o.now()
	logger := logging.WithSession(o.deps.Logger, s.ID, s.UserID, s.Module)

	o.observe(s, utterance, started)
	breakNow := o.checkBreak(s, started)

	s.history = append(s.history, llm.UserMessage(utterance))
	s.LastInteractionAt = started

	tier := optimizer.SelectTier(o.priority(s), o.deps.Tracker.DailyUsageRatio())
	req := o.deps.Optimizer.Optimize(s.history, "", s.Module)
	if hints := adaptationHints(s); hints != "" {
		req.Instructions = strings.TrimSpace(req.Instructions + " " + hints)
	}

	result := &TurnResult{Tier: tier, BreakSuggested: breakNow}

	if hit, ok := o.deps.Cache.Lookup(utterance, s.Module); ok {
		result.Reply = hit.Response
		result.CacheHit = true
		result.FuzzyHit = hit.Fuzzy
		result.XPDelta = o.turnXP(s)

		match := "exact"
		if hit.Fuzzy {
			match = "fuzzy"
		}
		o.deps.Exporter.RecordCacheHit(match, hit.TokenCost)
		// No provider call happened; the ledger records zero tokens.
		o.deps.Tracker.Track(s.ID, 0, 0, tier, s.Module, true)

		o.finishTurn(s, result, breakNow)
		o.deps.Exporter.RecordTurn(s.Module, "cache", o.now().Sub(started))
		logger.Info("turn served from cache", "fuzzy", hit.Fuzzy, "similarity", hit.Similarity)
		return result, nil
	}
	o.deps.Exporter.RecordCacheMiss(s.Module)

	gen, genErr := o.generate(ctx, req, tier)
	if genErr != nil {
		o.resolveFailure(s, utterance, genErr, result)
		o.finishTurn(s, result, breakNow)
		o.deps.Exporter.RecordTurn(s.Module, "fallback", o.now().Sub(started))
		return result, nil
	}

	reply := format.PlainText(gen.Text)
	o.deps.Cache.Store(utterance, s.Module, reply, gen.InputTokens+gen.OutputTokens)

	tr := o.deps.Tracker.Track(s.ID, gen.InputTokens, gen.OutputTokens, tier, s.Module, false)
	result.Reply = reply
	result.CostUSD = tr.CostUSD
	result.XPDelta = o.turnXP(s)

	o.deps.Exporter.RecordLLMCall(string(tier), gen.InputTokens, gen.OutputTokens,
		time.Duration(gen.DurationMs)*time.Millisecond)
	o.deps.Exporter.RecordCost(string(tier), tr.CostUSD, tr.DailyUsagePercent/100)
	if tr.CostAlert {
		o.alertOnce(s, tr)
	}

	o.finishTurn(s, result, breakNow)
	o.deps.Exporter.RecordTurn(s.Module, "ok", o.now().Sub(started))
	logger.Info("turn completed",
		"tier", tier,
		"input_tokens", gen.InputTokens,
		"output_tokens", gen.OutputTokens,
		"cost_usd", tr.CostUSD,
		"daily_usage_pct", tr.DailyUsagePercent,
		"compression", req.CompressionRatio,
	)
	return result, nil
}

// observe updates the classified state and per-topic tallies from one utterance.
func (o *Orchestrator) observe(s *Session, utterance string, now time.Time) {
	s.MessageCount++
	s.Energy = classifyEnergy(utterance, s.Energy)

	prev := s.Performance
	s.Performance = classifyPerformance(utterance, prev)

	for _, topic := range o.deps.Catalog.ModuleTopics(s.Module) {
		if strutil.ContainsAny(utterance, []string{topic}) {
			s.addTopic(topic)
		}
	}

	topic := s.currentTopic()
	t := s.tally(topic)
	t.attempts++
	switch {
	case s.Performance == PerfExcelling && strutil.ContainsAny(utterance, excellencePhrases):
		t.correct++
		if t.attempts >= 3 && float64(t.correct)/float64(t.attempts) >= 0.8 {
			s.MasteredConcepts[topic] = struct{}{}
		}
	case s.Performance == PerfStruggling && prev != PerfStruggling:
		s.ReviewConcepts[topic] = struct{}{}
		s.mistakes = append(s.mistakes, strutil.Truncate(utterance, 80))
	}

	for w := range strutil.WordSet(utterance) {
		if len(w) >= notableWordLen {
			s.vocab[w] = struct{}{}
		}
	}

	if strings.Contains(utterance, "?") && len(s.questions) < maxTrackedQuestions {
		q := strutil.Truncate(strings.TrimSpace(utterance), 120)
		if !containsQuestion(s.questions, q) {
			s.questions = append(s.questions, q)
		}
	}

	s.MissionProgressPct = math.Min(100, s.MissionProgressPct+progressPerTurn)
}

func containsQuestion(questions []string, q string) bool {
	h := strutil.HashText(q)
	for _, existing := range questions {
		if strutil.HashText(existing) == h {
			return true
		}
	}
	return false
}

// checkBreak fires the one-shot break suggestion when either pacing bound is hit.
func (o *Orchestrator) checkBreak(s *Session, now time.Time) bool {
	if s.BreakSuggested {
		return false
	}
	if now.Sub(s.StartedAt) < o.cfg.BreakAfter && s.MessageCount < o.cfg.BreakAfterMsgs {
		return false
	}
	s.BreakSuggested = true
	return true
}

// generate calls the provider with bounded exponential backoff. Non-retriable
// kinds fail immediately.
func (o *Orchestrator) generate(ctx context.Context, req *optimizer.OptimizedRequest, tier llm.Tier) (*llm.GenerateResult, error) {
	var lastErr error
	for attempt := 1; attempt <= fallback.MaxAttempts; attempt++ {
		res, err := o.deps.Provider.Generate(ctx, &llm.GenerateRequest{
			Messages:     req.Messages,
			Instructions: req.Instructions,
			Tier:         tier,
			MaxTokens:    o.cfg.MaxTokens,
			Temperature:  o.cfg.Temperature,
		})
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !fallback.Retriable(fallback.Classify(err)) || attempt == fallback.MaxAttempts {
			break
		}
		if serr := o.sleep(ctx, fallback.Backoff(attempt)); serr != nil {
			break
		}
	}
	return nil, lastErr
}

// resolveFailure turns a provider failure into offline content per the policy.
func (o *Orchestrator) resolveFailure(s *Session, utterance string, genErr error, result *TurnResult) {
	decision := o.deps.Failures.Handle(genErr, fallback.HandleContext{
		SessionID: s.ID,
		Module:    s.Module,
	})
	o.deps.Exporter.RecordProviderError(string(decision.Kind))

	if decision.QueueForReplay {
		o.deps.Replay.Enqueue(s.ID, utterance)
		o.deps.Exporter.SetReplayQueueSize(o.deps.Replay.Len())
	}
	if decision.NotifyGuardian {
		o.notifyAsync(GuardianEvent{
			Kind:      "provider_down",
			SessionID: s.ID,
			UserID:    s.UserID,
			Module:    s.Module,
			Message:   "tutoring provider unavailable: " + string(decision.Kind),
			At:        o.now(),
		})
	}

	result.Fallback = true
	if decision.Fallback != nil {
		result.Reply = decision.Fallback.Payload
		result.XPDelta = decision.Fallback.RewardValue
		o.deps.Exporter.RecordFallbackServed(s.Module)
	} else {
		result.Reply = offlineApology
	}
}

// finishTurn appends the reply to history and attaches the break suggestion.
func (o *Orchestrator) finishTurn(s *Session, result *TurnResult, breakNow bool) {
	if breakNow {
		result.Reply = result.Reply + "\n\n" + breakSuggestion
	}
	s.history = append(s.history, llm.AssistantMessage(result.Reply))
}

func (o *Orchestrator) turnXP(s *Session) int {
	xp := baseTurnXP
	if s.Performance == PerfExcelling {
		xp += excellingBonus
	}
	return xp
}

// priority maps the learner's state to a cost/quality preference.
// Struggling learners get the strongest model; excelling ones coast on economy.
func (o *Orchestrator) priority(s *Session) optimizer.Priority {
	switch s.Performance {
	case PerfStruggling:
		return optimizer.PriorityQuality
	case PerfExcelling:
		return optimizer.PriorityEconomy
	default:
		return optimizer.PriorityBalanced
	}
}

// adaptationHints appends tone guidance derived from the classified state.
func adaptationHints(s *Session) string {
	var hints []string
	if s.Energy == EnergyLow {
		hints = append(hints, "The learner seems tired; keep replies extra short and playful.")
	}
	switch s.Performance {
	case PerfStruggling:
		hints = append(hints, "The learner is struggling; slow down and re-explain with a simpler example.")
	case PerfExcelling:
		hints = append(hints, "The learner is doing great; offer a slightly harder challenge.")
	}
	return strings.Join(hints, " ")
}

// alertOnce fires the daily cost alert at most once per calendar day.
func (o *Orchestrator) alertOnce(s *Session, tr optimizer.TrackResult) {
	day := o.now().Format("2006-01-02")

	o.alertMu.Lock()
	if o.alertDay == day {
		o.alertMu.Unlock()
		return
	}
	o.alertDay = day
	o.alertMu.Unlock()

	o.notifyAsync(GuardianEvent{
		Kind:      "cost_alert",
		SessionID: s.ID,
		UserID:    s.UserID,
		Module:    s.Module,
		Message:   "daily spend crossed the alert threshold",
		At:        o.now(),
	})
}

func (o *Orchestrator) notifyAsync(event GuardianEvent) {
	if o.deps.Notifier == nil {
		return
	}
	o.deps.Notifier.NotifyAsync(event)
}

func (o *Orchestrator) lookup(sessionID string) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ActiveSessions returns the number of registered sessions.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// ReplayPending calls the provider for every queued utterance, storing
// replies into the cache for the next turn. The cleanup job invokes it on
// every sweep while the queue is non-empty; entries that still fail are
// re-queued by Drain.
func (o *Orchestrator) ReplayPending(ctx context.Context) int {
	replayed := o.deps.Replay.Drain(ctx, func(ctx context.Context, qu fallback.QueuedUtterance) error {
		s, err := o.lookup(qu.SessionID)
		module := "general"
		if err == nil {
			module = s.Module
		}

		req := o.deps.Optimizer.Optimize([]llm.Message{llm.UserMessage(qu.Utterance)}, "", module)
		res, err := o.deps.Provider.Generate(ctx, &llm.GenerateRequest{
			Messages:     req.Messages,
			Instructions: req.Instructions,
			Tier:         llm.TierEconomy,
			MaxTokens:    o.cfg.MaxTokens,
			Temperature:  o.cfg.Temperature,
		})
		if err != nil {
			return err
		}
		o.deps.Cache.Store(qu.Utterance, module, format.PlainText(res.Text), res.InputTokens+res.OutputTokens)
		o.deps.Tracker.Track(qu.SessionID, res.InputTokens, res.OutputTokens, llm.TierEconomy, module, false)
		return nil
	})
	o.deps.Exporter.SetReplayQueueSize(o.deps.Replay.Len())
	return replayed
}
